package store

import (
	"context"
	"fmt"
)

// RecordQuery upserts text into search_history, incrementing its count
// on repeat. Called by SearchWeb/SearchImage per spec.md §4.5.
func (s *Store) RecordQuery(ctx context.Context, text string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_history (id, text, count, last_updated_at, created_at)
		VALUES ($1, $2, 1, now(), now())
		ON CONFLICT (text) DO UPDATE
		SET count = search_history.count + 1, last_updated_at = now()
	`, newID(), text)
	if err != nil {
		return fmt.Errorf("record query %q: %w", text, err)
	}
	return nil
}

// CompleteSearch returns the most-issued search_history entries whose
// text starts with prefix, for the CompleteSearch RPC.
func (s *Store) CompleteSearch(ctx context.Context, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT text FROM search_history
		WHERE text ILIKE $1 || '%'
		ORDER BY count DESC, last_updated_at DESC
		LIMIT $2
	`, prefix, limit)
	if err != nil {
		return nil, fmt.Errorf("complete search %q: %w", prefix, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scan search_history row: %w", err)
		}
		out = append(out, text)
	}
	return out, rows.Err()
}
