package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/kafka"
)

// CollectorOptions tunes a Collector.
type CollectorOptions struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	// Local, when set, also receives every event in-process.
	Local *Aggregator
}

// Collector publishes analytics events asynchronously. Track never blocks:
// when the buffer is full the event is dropped and counted. Events are sent
// to Kafka in batches, flushed when a batch fills or on a timer.
type Collector struct {
	producer kafka.Publisher
	opts     CollectorOptions
	eventCh  chan any
	dropped  atomic.Int64
	mu       sync.RWMutex
	closed   bool
	logger   *slog.Logger
	done     chan struct{}
}

func NewCollector(producer kafka.Publisher, opts CollectorOptions) *Collector {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 10000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 5 * time.Second
	}
	return &Collector{
		producer: producer,
		opts:     opts,
		eventCh:  make(chan any, opts.BufferSize),
		logger:   slog.Default().With("component", "analytics-collector"),
		done:     make(chan struct{}),
	}
}

// Start launches the publish loop. It returns immediately; the loop ends
// when ctx is cancelled or Close is called, flushing what it holds.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.opts.FlushInterval)
		defer ticker.Stop()
		batch := make([]kafka.Event, 0, c.opts.BatchSize)

		flush := func(ctx context.Context) {
			if len(batch) == 0 {
				return
			}
			if err := c.producer.PublishBatch(ctx, batch); err != nil {
				c.logger.Error("failed to publish analytics events", "count", len(batch), "error", err)
			}
			batch = batch[:0]
		}
		add := func(event any) {
			if c.opts.Local != nil {
				c.opts.Local.Record(event)
			}
			batch = append(batch, kafka.Event{Key: "analytics", Type: string(typeOf(event)), Value: event})
			if len(batch) >= c.opts.BatchSize {
				flush(ctx)
			}
		}

		for {
			select {
			case event, ok := <-c.eventCh:
				if !ok {
					flush(context.WithoutCancel(ctx))
					return
				}
				add(event)
			case <-ticker.C:
				flush(ctx)
			case <-ctx.Done():
				flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				ctx = flushCtx
				c.drainRemaining(add)
				flush(ctx)
				cancel()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.eventCh),
		"batch_size", c.opts.BatchSize,
		"flush_interval", c.opts.FlushInterval,
	)
}

// Track enqueues a SearchEvent or RebuildEvent. Events tracked after Close
// are dropped.
func (c *Collector) Track(event any) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		c.dropped.Add(1)
		return
	}
	select {
	case c.eventCh <- event:
	default:
		if c.dropped.Add(1)%1000 == 1 {
			c.logger.Warn("analytics event dropped (buffer full)", "dropped_total", c.dropped.Load())
		}
	}
}

// Dropped returns how many events were discarded on overflow.
func (c *Collector) Dropped() int64 { return c.dropped.Load() }

// Close waits for the loop to flush. Start must have been called.
func (c *Collector) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.eventCh)
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) drainRemaining(add func(any)) {
	for {
		select {
		case event, ok := <-c.eventCh:
			if !ok {
				return
			}
			add(event)
		default:
			return
		}
	}
}

func typeOf(event any) EventType {
	switch e := event.(type) {
	case SearchEvent:
		return e.Type
	case *SearchEvent:
		return e.Type
	case RebuildEvent:
		return e.Type
	case *RebuildEvent:
		return e.Type
	}
	return ""
}
