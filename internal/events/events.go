// Package events defines the Kafka payloads exchanged between the ingestion
// pipeline and searcher replicas.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/resilience"
)

const (
	TypeRecordsIngested = "records.ingested"
	TypeIndexRebuilt    = "index.rebuilt"
)

// RecordsIngested is published after a batch of records is written to the
// record store.
type RecordsIngested struct {
	Type       string    `json:"type"`
	Source     string    `json:"source"`
	Inserted   int       `json:"inserted"`
	Updated    int       `json:"updated"`
	ISBNs      []string  `json:"isbns,omitempty"`
	IngestedAt time.Time `json:"ingested_at"`
}

// IndexRebuilt announces a committed snapshot so peers sharing the data
// directory can reload it.
type IndexRebuilt struct {
	Type      string    `json:"type"`
	BuildID   string    `json:"build_id"`
	Records   int       `json:"records"`
	Skipped   int       `json:"skipped"`
	Model     string    `json:"model"`
	Dimension int       `json:"dimension"`
	BuiltAt   time.Time `json:"built_at"`
	Origin    string    `json:"origin"`
}

// maxAnnouncedISBNs caps the ISBN list carried by a RecordsIngested event.
const maxAnnouncedISBNs = 100

// PublishRecordsIngested announces an upsert of isbns from source.
func PublishRecordsIngested(ctx context.Context, pub kafka.Publisher, source string, inserted, updated int, isbns []string) error {
	if len(isbns) > maxAnnouncedISBNs {
		isbns = isbns[:maxAnnouncedISBNs]
	}
	ev := RecordsIngested{
		Type:       TypeRecordsIngested,
		Source:     source,
		Inserted:   inserted,
		Updated:    updated,
		ISBNs:      isbns,
		IngestedAt: time.Now().UTC(),
	}
	if err := pub.Publish(ctx, kafka.Event{Key: source, Type: TypeRecordsIngested, Value: ev}); err != nil {
		return fmt.Errorf("publishing %s: %w", TypeRecordsIngested, err)
	}
	return nil
}

// PublishIndexRebuilt announces the snapshot buildID.
func PublishIndexRebuilt(ctx context.Context, pub kafka.Publisher, ev IndexRebuilt) error {
	ev.Type = TypeIndexRebuilt
	if ev.Origin == "" {
		ev.Origin = Origin()
	}
	if err := pub.Publish(ctx, kafka.Event{Key: ev.BuildID, Type: TypeIndexRebuilt, Value: ev}); err != nil {
		return fmt.Errorf("publishing %s: %w", TypeIndexRebuilt, err)
	}
	return nil
}

// announceTimeout bounds how long a swap hook waits on the broker.
const announceTimeout = 5 * time.Second

// AnnounceHook returns an engine hook that publishes IndexRebuilt for every
// committed build. Snapshots loaded from disk are not announced.
func AnnounceHook(pub kafka.Publisher) indexer.Hook {
	return func(ctx context.Context, _ *snapshot.Snapshot, stats indexer.BuildStats) {
		if stats.Loaded {
			return
		}
		ev := IndexRebuilt{
			BuildID:   stats.BuildID,
			Records:   stats.RecordsIndexed,
			Skipped:   stats.RecordsSkipped,
			Model:     stats.Model,
			Dimension: stats.Dimension,
			BuiltAt:   stats.BuiltAt,
		}
		err := resilience.WithTimeout(ctx, announceTimeout, "announce "+TypeIndexRebuilt, func(ctx context.Context) error {
			return PublishIndexRebuilt(ctx, pub, ev)
		})
		if err != nil {
			slog.Error("failed to announce rebuild", "build_id", stats.BuildID, "error", err)
		}
	}
}

// Origin names this process in announcements.
func Origin() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s/%d", host, os.Getpid())
}
