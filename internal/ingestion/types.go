// Package ingestion defines the raw book shape read from CSV files and HTTP
// requests, and the reports returned by the ingestion pipeline.
package ingestion

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/records"
)

// RawBook is an uncleaned book as supplied by a source. Authors and Genres
// hold delimiter-separated lists.
type RawBook struct {
	ISBN        string `json:"isbn"`
	Title       string `json:"title"`
	Authors     string `json:"authors"`
	Description string `json:"description"`
	Genres      string `json:"genres"`
	PublishDate string `json:"publish_date"`
}

// IngestResponse is returned to the caller after a single book is accepted.
type IngestResponse struct {
	Book    records.Record `json:"book"`
	Created bool           `json:"created"`
}

// Report summarises one pipeline run. Read counts raw rows; Rejected rows
// failed cleaning; Duplicates repeated an ISBN seen earlier in the run.
type Report struct {
	Files      []string      `json:"files"`
	Read       int           `json:"read"`
	Cleaned    int           `json:"cleaned"`
	Rejected   int           `json:"rejected"`
	Duplicates int           `json:"duplicates"`
	Inserted   int           `json:"inserted"`
	Updated    int           `json:"updated"`
	Duration   time.Duration `json:"duration_ns"`
}
