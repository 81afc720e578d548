package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/siftcrawl/siftcrawl/internal/model"
)

// InsertDocument persists a Document row and its child Image rows in a
// single transaction, per step 5 of the Ingestion Transaction (§4.4).
// If doc.ID is unset it is assigned here (see newID), as is any unset
// Image ID, and each Image's Source field is overwritten with doc.ID.
func (s *Store) InsertDocument(ctx context.Context, doc *model.Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = newID()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("insert document: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	textFields, err := json.Marshal(nonNilStrings(doc.TextFields))
	if err != nil {
		return fmt.Errorf("marshal text_fields: %w", err)
	}
	sections, err := json.Marshal(nonNilStrings(doc.Sections))
	if err != nil {
		return fmt.Errorf("marshal sections: %w", err)
	}
	keywords, err := json.Marshal(nonNilStrings(doc.Keywords))
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}
	categories, err := json.Marshal(nonNilStrings(doc.SiteCategories))
	if err != nil {
		return fmt.Errorf("marshal site_categories: %w", err)
	}

	manifest := pqtype.NullRawMessage{}
	if doc.Manifest != nil {
		manifest = pqtype.NullRawMessage{RawMessage: doc.Manifest, Valid: true}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (
			id, url, title, description, icon_url,
			text_fields, sections, keywords,
			site_name, site_short_name, site_description, site_categories, manifest,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
	`,
		doc.ID, doc.URL, doc.Title, doc.Description, doc.IconURL,
		textFields, sections, keywords,
		doc.SiteName, doc.SiteShortName, doc.SiteDescription, categories, manifest,
	)
	if err != nil {
		return fmt.Errorf("insert document %s: %w", doc.URL, err)
	}

	for i := range doc.Images {
		img := &doc.Images[i]
		if img.ID == uuid.Nil {
			img.ID = newID()
		}
		img.Source = doc.ID

		_, err = tx.ExecContext(ctx, `
			INSERT INTO images (id, url, source, width, height, alt_text, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, now())
		`, img.ID, img.URL, img.Source, img.Width, img.Height, img.AltText)
		if err != nil {
			return fmt.Errorf("insert image %s for document %s: %w", img.URL, doc.URL, err)
		}
	}

	return tx.Commit()
}

// GetDocumentByURL loads a Document and its images, for joining search
// index hits with canonical content on the read path.
func (s *Store) GetDocumentByURL(ctx context.Context, url string) (model.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, url, title, description, icon_url,
		       text_fields, sections, keywords,
		       site_name, site_short_name, site_description, site_categories, manifest,
		       created_at
		FROM documents WHERE url = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, url)

	var doc model.Document
	var textFields, sections, keywords, categories []byte
	var manifest pqtype.NullRawMessage
	err := row.Scan(
		&doc.ID, &doc.URL, &doc.Title, &doc.Description, &doc.IconURL,
		&textFields, &sections, &keywords,
		&doc.SiteName, &doc.SiteShortName, &doc.SiteDescription, &categories, &manifest,
		&doc.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return model.Document{}, ErrNotFound
	}
	if err != nil {
		return model.Document{}, fmt.Errorf("get document %q: %w", url, err)
	}
	if manifest.Valid {
		doc.Manifest = manifest.RawMessage
	}

	if err := json.Unmarshal(textFields, &doc.TextFields); err != nil {
		return model.Document{}, fmt.Errorf("unmarshal text_fields: %w", err)
	}
	if err := json.Unmarshal(sections, &doc.Sections); err != nil {
		return model.Document{}, fmt.Errorf("unmarshal sections: %w", err)
	}
	if err := json.Unmarshal(keywords, &doc.Keywords); err != nil {
		return model.Document{}, fmt.Errorf("unmarshal keywords: %w", err)
	}
	if err := json.Unmarshal(categories, &doc.SiteCategories); err != nil {
		return model.Document{}, fmt.Errorf("unmarshal site_categories: %w", err)
	}

	images, err := s.imagesForDocument(ctx, doc.ID)
	if err != nil {
		return model.Document{}, err
	}
	doc.Images = images
	return doc, nil
}

func (s *Store) imagesForDocument(ctx context.Context, documentID uuid.UUID) ([]model.Image, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, source, width, height, alt_text, created_at
		FROM images WHERE source = $1
		ORDER BY created_at
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list images for document %s: %w", documentID, err)
	}
	defer rows.Close()

	var images []model.Image
	for rows.Next() {
		var img model.Image
		if err := rows.Scan(&img.ID, &img.URL, &img.Source, &img.Width, &img.Height, &img.AltText, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan image row: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func newID() uuid.UUID {
	if id, err := uuid.NewV7(); err == nil {
		return id
	}
	return uuid.New()
}
