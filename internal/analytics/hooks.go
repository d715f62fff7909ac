package analytics

import (
	"context"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer/snapshot"
)

// RebuildHook returns an engine hook that tracks a successful RebuildEvent
// for every committed build. Loads from disk are not rebuilds and are
// ignored; failed builds never reach the hook.
func RebuildHook(c *Collector) indexer.Hook {
	return func(_ context.Context, _ *snapshot.Snapshot, stats indexer.BuildStats) {
		if stats.Loaded {
			return
		}
		c.Track(RebuildEvent{
			Type:       EventRebuild,
			BuildID:    stats.BuildID,
			Status:     "success",
			Indexed:    stats.RecordsIndexed,
			Skipped:    stats.RecordsSkipped,
			DurationMs: stats.Duration.Milliseconds(),
			Timestamp:  time.Now().UTC(),
		})
	}
}
