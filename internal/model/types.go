// Package model defines the entities persisted by the frontier store and
// ingestion transaction: jobs, documents, images, and search history.
package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Job row.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusExecuting Status = "executing"
	StatusComplete  Status = "complete"
)

// Job is a frontier queue row: one per unique URL.
type Job struct {
	ID          int64
	URL         string
	Status      Status
	Expiry      *time.Time
	LastUpdated time.Time
	CreatedAt   time.Time
}

// Image is a child row of Document, one per <img> discovered on the page.
type Image struct {
	ID        uuid.UUID
	URL       string
	Source    uuid.UUID // FK -> Document.ID
	Width     *int32
	Height    *int32
	AltText   *string
	CreatedAt time.Time
}

// Document is the canonical record of a successfully crawled HTML page.
type Document struct {
	ID              uuid.UUID
	URL             string
	Title           *string
	Description     *string
	IconURL         *string
	TextFields      []string
	Sections        []string
	Keywords        []string
	SiteName        *string
	SiteShortName   *string
	SiteDescription *string
	SiteCategories  []string
	// Manifest is the raw decoded web-app manifest JSON (name, short_name,
	// description, categories), present only when the page linked one and
	// it fetched and decoded successfully. Stored alongside the flattened
	// Site* fields above rather than instead of them, so manifest-derived
	// search/display fields don't require re-parsing this blob.
	Manifest  json.RawMessage
	CreatedAt time.Time
	Images    []Image
}

// SearchHistory records a distinct search query text and how often it was issued.
type SearchHistory struct {
	ID            uuid.UUID
	Text          string
	Count         int64
	LastUpdatedAt time.Time
	CreatedAt     time.Time
}
