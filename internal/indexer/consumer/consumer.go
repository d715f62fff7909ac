// Package consumer reacts to Kafka lifecycle events: it reloads the served
// snapshot when a peer announces a rebuild and, when enabled, rebuilds after
// records are ingested.
package consumer

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/events"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/kafka"
)

// Reloader is satisfied by *indexer.Engine.
type Reloader interface {
	Reload(ctx context.Context, buildID string) error
}

// Rebuilder is satisfied by *indexer.Engine.
type Rebuilder interface {
	Rebuild(ctx context.Context) (indexer.BuildStats, error)
}

// IndexConsumer wraps a Kafka consumer driving the index lifecycle.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IndexConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleIndexRebuilt returns a handler that reloads the persisted snapshot
// when another process announces one this process is not serving. Events
// from origin itself are ignored.
func HandleIndexRebuilt(r Reloader, origin string) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[events.IndexRebuilt](value)
		if err != nil {
			logger.Error("failed to decode index event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		if event.BuildID == "" || event.Origin == origin {
			return nil
		}
		err = r.Reload(ctx, event.BuildID)
		switch {
		case errors.Is(err, apperrors.ErrBuildInProgress):
			logger.Info("reload skipped, build in progress", "build_id", event.BuildID)
			return nil
		case err != nil:
			logger.Error("snapshot reload failed", "build_id", event.BuildID, "error", err)
			return nil
		}
		logger.Info("snapshot reloaded after peer rebuild",
			"build_id", event.BuildID,
			"origin", event.Origin,
			"records", event.Records,
		)
		return nil
	}
}

// pendingRetryInterval is how often a deferred rebuild retries while another
// build holds the lock.
const pendingRetryInterval = 2 * time.Second

// HandleRecordsIngested returns a handler that rebuilds the index after each
// ingested batch. When another build holds the lock the batch may not be in
// that build's record listing, so a follow-up rebuild is scheduled and
// retried until it runs. Events arriving while a follow-up is pending
// coalesce into it.
func HandleRecordsIngested(r Rebuilder) kafka.MessageHandler {
	return newIngestRebuilder(r, pendingRetryInterval).handle
}

type ingestRebuilder struct {
	rebuilder  Rebuilder
	retryEvery time.Duration
	logger     *slog.Logger

	pending atomic.Bool
	running atomic.Bool
}

func newIngestRebuilder(r Rebuilder, retryEvery time.Duration) *ingestRebuilder {
	return &ingestRebuilder{
		rebuilder:  r,
		retryEvery: retryEvery,
		logger:     slog.Default().With("component", "index-consumer"),
	}
}

func (b *ingestRebuilder) handle(ctx context.Context, key []byte, value []byte) error {
	event, err := kafka.DecodeJSON[events.RecordsIngested](value)
	if err != nil {
		b.logger.Error("failed to decode ingest event",
			"error", err,
			"key", string(key),
		)
		return nil
	}
	if event.Inserted+event.Updated == 0 {
		return nil
	}
	b.logger.Debug("processing ingest event",
		"source", event.Source,
		"inserted", event.Inserted,
		"updated", event.Updated,
	)
	stats, err := b.rebuilder.Rebuild(ctx)
	switch {
	case errors.Is(err, apperrors.ErrBuildInProgress):
		b.logger.Info("build in progress, rebuild deferred", "source", event.Source)
		b.scheduleFollowUp(ctx)
		return nil
	case err != nil:
		b.logger.Error("rebuild after ingest failed", "source", event.Source, "error", err)
		return nil
	}
	b.logger.Info("index rebuilt after ingest",
		"build_id", stats.BuildID,
		"indexed", stats.RecordsIndexed,
	)
	return nil
}

// scheduleFollowUp marks a rebuild as pending and starts the retry loop
// unless one is already running.
func (b *ingestRebuilder) scheduleFollowUp(ctx context.Context) {
	b.pending.Store(true)
	if b.running.CompareAndSwap(false, true) {
		go b.follow(ctx)
	}
}

func (b *ingestRebuilder) follow(ctx context.Context) {
	ticker := time.NewTicker(b.retryEvery)
	defer ticker.Stop()
	for {
		for b.pending.Load() {
			select {
			case <-ctx.Done():
				b.running.Store(false)
				return
			case <-ticker.C:
			}
			b.pending.Store(false)
			stats, err := b.rebuilder.Rebuild(ctx)
			switch {
			case errors.Is(err, apperrors.ErrBuildInProgress):
				b.pending.Store(true)
			case err != nil:
				b.logger.Error("deferred rebuild failed", "error", err)
			default:
				b.logger.Info("deferred rebuild committed",
					"build_id", stats.BuildID,
					"indexed", stats.RecordsIndexed,
				)
			}
		}
		b.running.Store(false)
		// A handler may have set pending after the loop check but before
		// running was cleared.
		if !b.pending.Load() || !b.running.CompareAndSwap(false, true) {
			return
		}
	}
}
