// Package publisher writes cleaned books to the record store and announces
// each write on Kafka so searcher replicas can rebuild. It backs both the
// single-book HTTP endpoint and the CSV pipeline.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/events"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/ingestion/reader"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/records"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/metrics"
)

const defaultBatchSize = 500

// Options configures a Publisher.
type Options struct {
	Rules     validator.Rules
	BatchSize int
	Metrics   *metrics.Metrics
}

// Publisher coordinates record persistence and event production.
type Publisher struct {
	store    records.Store
	producer kafka.Publisher
	rules    validator.Rules
	batch    int
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a Publisher. A nil producer disables announcements.
func New(store records.Store, producer kafka.Publisher, opts Options) *Publisher {
	if producer == nil {
		producer = kafka.NopPublisher{}
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	return &Publisher{
		store:    store,
		producer: producer,
		rules:    opts.Rules,
		batch:    opts.BatchSize,
		metrics:  opts.Metrics,
		logger:   slog.Default().With("component", "publisher"),
	}
}

// Ingest cleans and upserts a single book, then announces it.
func (p *Publisher) Ingest(ctx context.Context, raw ingestion.RawBook) (*ingestion.IngestResponse, error) {
	rec, err := p.rules.Clean(raw)
	if err != nil {
		p.count("rejected", 1)
		return nil, err
	}
	res, err := p.store.UpsertBatch(ctx, []records.Record{rec})
	if err != nil {
		return nil, fmt.Errorf("storing book %s: %w", rec.ISBN, err)
	}
	p.count("inserted", res.Inserted)
	p.count("updated", res.Updated)
	p.announce(ctx, "api", res, []string{rec.ISBN})

	stored, err := p.store.Get(ctx, rec.ISBN)
	if err != nil {
		return nil, fmt.Errorf("reading back book %s: %w", rec.ISBN, err)
	}
	return &ingestion.IngestResponse{Book: stored, Created: res.Inserted > 0}, nil
}

// IngestDir runs the pipeline over every CSV file in dir.
func (p *Publisher) IngestDir(ctx context.Context, dir string) (ingestion.Report, error) {
	start := time.Now()
	files, err := reader.Files(dir)
	if err != nil {
		return ingestion.Report{}, err
	}
	log := logger.FromContext(ctx).With("component", "publisher")
	if len(files) == 0 {
		log.Warn("no csv files found", "dir", dir)
	}

	var raws []ingestion.RawBook
	for _, f := range files {
		books, err := reader.ReadFile(f)
		if err != nil {
			return ingestion.Report{}, err
		}
		log.Info("csv file read", "file", f, "rows", len(books))
		raws = append(raws, books...)
	}

	report, err := p.IngestBatch(ctx, "csv", raws)
	report.Files = files
	report.Duration = time.Since(start)
	return report, err
}

// IngestBatch cleans raws, keeps the first occurrence of each ISBN and
// upserts the result in batches. One event is published for the run.
func (p *Publisher) IngestBatch(ctx context.Context, source string, raws []ingestion.RawBook) (ingestion.Report, error) {
	log := logger.FromContext(ctx).With("component", "publisher")
	report := ingestion.Report{Read: len(raws)}

	seen := make(map[string]struct{}, len(raws))
	cleaned := make([]records.Record, 0, len(raws))
	for _, raw := range raws {
		rec, err := p.rules.Clean(raw)
		if err != nil {
			report.Rejected++
			log.Debug("row rejected", "isbn", raw.ISBN, "error", err)
			continue
		}
		if _, dup := seen[rec.ISBN]; dup {
			report.Duplicates++
			continue
		}
		seen[rec.ISBN] = struct{}{}
		cleaned = append(cleaned, rec)
	}
	report.Cleaned = len(cleaned)
	p.count("rejected", report.Rejected)
	p.count("duplicate", report.Duplicates)

	isbns := make([]string, 0, len(cleaned))
	for start := 0; start < len(cleaned); start += p.batch {
		end := min(start+p.batch, len(cleaned))
		res, err := p.store.UpsertBatch(ctx, cleaned[start:end])
		if err != nil {
			return report, fmt.Errorf("upserting batch at %d: %w", start, err)
		}
		report.Inserted += res.Inserted
		report.Updated += res.Updated
		for _, r := range cleaned[start:end] {
			isbns = append(isbns, r.ISBN)
		}
	}
	p.count("inserted", report.Inserted)
	p.count("updated", report.Updated)

	p.announce(ctx, source, records.UpsertResult{Inserted: report.Inserted, Updated: report.Updated}, isbns)
	log.Info("ingestion completed",
		"source", source,
		"read", report.Read,
		"cleaned", report.Cleaned,
		"rejected", report.Rejected,
		"duplicates", report.Duplicates,
		"inserted", report.Inserted,
		"updated", report.Updated,
	)
	return report, nil
}

// announce publishes the ingested event. Failures are logged: the records
// are stored and the next rebuild picks them up regardless.
func (p *Publisher) announce(ctx context.Context, source string, res records.UpsertResult, isbns []string) {
	if res.Inserted+res.Updated == 0 {
		return
	}
	if err := events.PublishRecordsIngested(ctx, p.producer, source, res.Inserted, res.Updated, isbns); err != nil {
		p.logger.Error("failed to publish ingest event",
			"source", source,
			"records", res.Inserted+res.Updated,
			"error", err,
		)
	}
}

func (p *Publisher) count(outcome string, n int) {
	if p.metrics == nil || n == 0 {
		return
	}
	p.metrics.RecordsIngestedTotal.WithLabelValues(outcome).Add(float64(n))
}
