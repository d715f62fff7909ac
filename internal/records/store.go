// Package records is the durable store of cleaned book records. The index
// builder reads it in full; the HTTP API and the ingestion pipeline read and
// upsert individual records.
package records

import (
	"context"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/errors"
)

// Record is one cleaned book.
type Record struct {
	ISBN        string    `json:"isbn"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Authors     []string  `json:"authors,omitempty"`
	Genres      []string  `json:"genres,omitempty"`
	PublishDate string    `json:"publish_date,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// HasDescription reports whether the record can be indexed.
func (r Record) HasDescription() bool {
	return strings.TrimSpace(r.Description) != ""
}

// UpsertResult counts what an UpsertBatch did.
type UpsertResult struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}

// Stats summarises the store.
type Stats struct {
	Total           int   `json:"total"`
	WithDescription int   `json:"with_description"`
	SizeBytes       int64 `json:"size_bytes"`
}

// Store is implemented by the SQLite and Postgres backends.
type Store interface {
	// ListAll returns every record ordered by ISBN.
	ListAll(ctx context.Context) ([]Record, error)
	// Get returns the record with isbn or an error matching ErrNotFound.
	Get(ctx context.Context, isbn string) (Record, error)
	// List returns up to limit records, newest first.
	List(ctx context.Context, limit int) ([]Record, error)
	UpsertBatch(ctx context.Context, recs []Record) (UpsertResult, error)
	Stats(ctx context.Context) (Stats, error)
	Ping(ctx context.Context) error
	Close() error
}

// JoinList encodes a list column the way the books table stores it. Items
// must not contain a comma; UpsertBatch rejects records where one does.
func JoinList(items []string) string {
	return strings.Join(items, ", ")
}

// SplitList decodes a list column, dropping empty items.
func SplitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// checkList returns a validation error naming field when an item of items
// would not survive a JoinList/SplitList round trip.
func checkList(field string, items []string) error {
	for _, item := range items {
		if strings.Contains(item, ",") {
			return apperrors.Invalid(field, "item %q contains a comma", item)
		}
	}
	return nil
}
