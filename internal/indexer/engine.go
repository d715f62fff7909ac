// Package indexer owns the index lifecycle: it builds a snapshot from the
// record store, persists it, and publishes it to readers with a single
// pointer swap. Readers that started before a swap finish against the old
// snapshot.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/encoder"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer/lexical"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/records"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/tracing"
)

// Build stages, reported in BuildError.Stage and as span names.
const (
	StageList     = "list"
	StageFilter   = "filter"
	StageEncode   = "encode"
	StageFit      = "fit"
	StageAssemble = "assemble"
	StagePersist  = "persist"
	StageSwap     = "swap"
)

// ErrModelMismatch is returned by Load when the persisted snapshot was built
// by a different encoder than the one serving queries.
var ErrModelMismatch = errors.New("snapshot was built with a different encoder")

// RecordSource is the part of records.Store the builder reads.
type RecordSource interface {
	ListAll(ctx context.Context) ([]records.Record, error)
}

// State is the lifecycle state of the engine.
type State string

const (
	StateNotBuilt State = "not_built"
	StateBuilt    State = "built"
)

// BuildStats describes a committed rebuild.
type BuildStats struct {
	BuildID        string        `json:"build_id"`
	RecordsIndexed int           `json:"records_indexed"`
	RecordsSkipped int           `json:"records_skipped"`
	Dimension      int           `json:"dimension"`
	VocabularySize int           `json:"vocabulary_size"`
	Model          string        `json:"model"`
	Duration       time.Duration `json:"duration_ns"`
	BuiltAt        time.Time     `json:"built_at"`
	// Loaded is set when the snapshot came from disk rather than a build.
	Loaded bool `json:"loaded,omitempty"`
}

// Status is a point-in-time view of the engine.
type Status struct {
	State          State     `json:"state"`
	Building       bool      `json:"building"`
	BuildID        string    `json:"build_id,omitempty"`
	Records        int       `json:"records"`
	Skipped        int       `json:"skipped"`
	Dimension      int       `json:"dimension"`
	VocabularySize int       `json:"vocabulary_size"`
	Model          string    `json:"model,omitempty"`
	BuiltAt        time.Time `json:"built_at,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
}

// Hook runs after a new snapshot has been swapped in, by a rebuild or a load.
type Hook func(ctx context.Context, snap *snapshot.Snapshot, stats BuildStats)

// Options configures an Engine.
type Options struct {
	Indexer config.IndexerConfig
	Lexical lexical.Options
	Metrics *metrics.Metrics
	Tracing bool
}

// Engine builds and serves index snapshots.
type Engine struct {
	cfg     config.IndexerConfig
	lexOpts lexical.Options
	source  RecordSource
	enc     encoder.Encoder
	writer  *segment.Writer
	lock    *buildLock
	metrics *metrics.Metrics
	tracing bool
	logger  *slog.Logger

	current atomic.Pointer[snapshot.Snapshot]

	mu        sync.Mutex
	hooks     []Hook
	lastError string

	newID func() string
	now   func() time.Time
}

// NewEngine creates an engine with nothing indexed. Call Load to serve the
// last persisted snapshot or Rebuild to build one.
func NewEngine(source RecordSource, enc encoder.Encoder, opts Options) *Engine {
	cfg := opts.Indexer
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 2 * time.Minute
	}
	if cfg.MaxTextChars <= 0 {
		cfg.MaxTextChars = DefaultMaxTextChars
	}
	return &Engine{
		cfg:     cfg,
		lexOpts: opts.Lexical,
		source:  source,
		enc:     enc,
		writer:  segment.NewWriter(cfg.DataDir, cfg.RetainSnapshots),
		lock:    newBuildLock(cfg.DataDir),
		metrics: opts.Metrics,
		tracing: opts.Tracing,
		logger:  slog.Default().With("component", "indexer"),
		newID:   uuid.NewString,
		now:     time.Now,
	}
}

// OnSwap registers h to run after every snapshot swap.
func (e *Engine) OnSwap(h Hook) {
	e.mu.Lock()
	e.hooks = append(e.hooks, h)
	e.mu.Unlock()
}

// Encoder returns the encoder used for both indexing and queries.
func (e *Engine) Encoder() encoder.Encoder { return e.enc }

// Current returns the snapshot being served, or nil before the first build.
func (e *Engine) Current() *snapshot.Snapshot {
	return e.current.Load()
}

// Snapshot returns the snapshot being served, or ErrNotIndexed when there is
// none or it is empty.
func (e *Engine) Snapshot() (*snapshot.Snapshot, error) {
	snap := e.current.Load()
	if snap.Len() == 0 {
		return nil, apperrors.ErrNotIndexed
	}
	return snap, nil
}

// Status reports the current state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	lastErr := e.lastError
	e.mu.Unlock()

	st := Status{State: StateNotBuilt, Building: e.lock.held(), LastError: lastErr}
	snap := e.current.Load()
	if snap == nil {
		return st
	}
	meta := snap.Meta()
	st.State = StateBuilt
	st.BuildID = meta.BuildID
	st.Records = snap.Len()
	st.Skipped = meta.Skipped
	st.Dimension = snap.Dimension()
	st.VocabularySize = snap.Vectorizer().VocabularySize()
	st.Model = meta.Model
	st.BuiltAt = meta.CreatedAt
	return st
}

// Rebuild builds a new snapshot from every record in the source, persists it
// and swaps it in. Records without a description are skipped and counted.
// Any failure returns a *BuildError and leaves the served and persisted
// snapshots untouched. Cancelling ctx stops the build only until the
// persistence step starts; from then on the build runs to completion or
// fails under its own deadline.
func (e *Engine) Rebuild(ctx context.Context) (BuildStats, error) {
	if err := e.lock.acquire(); err != nil {
		e.observeBuild("busy", 0)
		return BuildStats{}, err
	}
	defer e.lock.release()

	start := e.now()
	buildID := e.newID()
	ctx = logger.WithBuildID(ctx, buildID)
	log := logger.FromContext(ctx).With("component", "indexer")
	ctx, root := tracing.StartSpan(ctx, "index.rebuild", buildID)
	defer func() {
		root.End()
		if e.tracing {
			root.Log(log)
		}
	}()

	log.Info("index rebuild started")
	stats, err := e.build(ctx, buildID, start)
	if err != nil {
		root.SetError(err)
		e.setLastError(err)
		e.observeBuild("failed", 0)
		log.Error("index rebuild failed", "error", err)
		return BuildStats{}, err
	}
	e.setLastError(nil)
	e.observeBuild("success", stats.Duration)
	log.Info("index rebuild committed",
		"indexed", stats.RecordsIndexed,
		"skipped", stats.RecordsSkipped,
		"vocabulary", stats.VocabularySize,
		"duration_ms", stats.Duration.Milliseconds(),
	)
	return stats, nil
}

func (e *Engine) build(ctx context.Context, buildID string, start time.Time) (BuildStats, error) {
	fail := func(stage string, indexed, skipped int, err error) error {
		return &apperrors.BuildError{Stage: stage, BuildID: buildID, Indexed: indexed, Skipped: skipped, Err: err}
	}

	var all []records.Record
	err := stage(ctx, StageList, func(ctx context.Context) error {
		var err error
		all, err = e.source.ListAll(ctx)
		return err
	})
	if err != nil {
		return BuildStats{}, fail(StageList, 0, 0, err)
	}

	var (
		kept    []records.Record
		texts   []string
		skipped int
	)
	_ = stage(ctx, StageFilter, func(ctx context.Context) error {
		kept = make([]records.Record, 0, len(all))
		texts = make([]string, 0, len(all))
		for _, r := range all {
			if !r.HasDescription() {
				skipped++
				continue
			}
			kept = append(kept, r)
			texts = append(texts, IndexText(r, e.cfg.MaxTextChars))
		}
		tracing.SpanFromContext(ctx).SetAttr("skipped", skipped)
		return nil
	})
	if len(kept) == 0 {
		return BuildStats{}, fail(StageFilter, 0, skipped, apperrors.ErrNoIndexableInput)
	}

	var dense [][]float32
	err = stage(ctx, StageEncode, func(ctx context.Context) error {
		if e.enc.State() != encoder.StateReady {
			if err := e.enc.Init(ctx); err != nil {
				return err
			}
		}
		var err error
		dense, err = e.enc.EncodeBatch(ctx, texts)
		return err
	})
	if err != nil {
		return BuildStats{}, fail(StageEncode, 0, skipped, err)
	}

	vec := lexical.New(e.lexOpts)
	var sparse []lexical.Vector
	err = stage(ctx, StageFit, func(ctx context.Context) error {
		var err error
		sparse, err = vec.FitTransform(ctx, texts)
		return err
	})
	if err != nil {
		return BuildStats{}, fail(StageFit, len(dense), skipped, err)
	}

	var snap *snapshot.Snapshot
	err = stage(ctx, StageAssemble, func(ctx context.Context) error {
		entries := make([]snapshot.Entry, len(kept))
		for i, r := range kept {
			entries[i] = entryOf(r)
		}
		var err error
		snap, err = snapshot.New(snapshot.Meta{
			BuildID:   buildID,
			CreatedAt: e.now().UTC(),
			Model:     e.enc.Model(),
			Skipped:   skipped,
		}, entries, dense, sparse, vec)
		return err
	})
	if err != nil {
		return BuildStats{}, fail(StageAssemble, len(kept), skipped, err)
	}

	// Last point at which the caller may cancel.
	if err := ctx.Err(); err != nil {
		return BuildStats{}, fail(StagePersist, len(kept), skipped, err)
	}
	err = stage(ctx, StagePersist, func(ctx context.Context) error {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.PersistTimeout)
		defer cancel()
		_, err := e.writer.Write(pctx, snap)
		return err
	})
	if err != nil {
		return BuildStats{}, fail(StagePersist, len(kept), skipped, err)
	}

	stats := BuildStats{
		BuildID:        buildID,
		RecordsIndexed: snap.Len(),
		RecordsSkipped: skipped,
		Dimension:      snap.Dimension(),
		VocabularySize: vec.VocabularySize(),
		Model:          snap.Meta().Model,
		BuiltAt:        snap.Meta().CreatedAt,
		Duration:       e.now().Sub(start),
	}
	_ = stage(ctx, StageSwap, func(ctx context.Context) error {
		e.swap(context.WithoutCancel(ctx), snap, stats)
		return nil
	})
	return stats, nil
}

// Load serves the snapshot persisted in the data directory. A directory with
// no snapshot is not an error: the engine stays unbuilt. Load refuses a
// snapshot whose model or dimension differs from the encoder's, since its
// vectors would not be comparable with query vectors.
func (e *Engine) Load(ctx context.Context) error {
	if err := e.lock.acquire(); err != nil {
		return err
	}
	defer e.lock.release()

	snap, manifest, err := segment.Load(e.cfg.DataDir)
	if errors.Is(err, segment.ErrNoSnapshot) {
		e.logger.Info("no persisted snapshot", "data_dir", e.cfg.DataDir)
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading snapshot: %w", err)
	}
	if err := e.checkCompatible(ctx, manifest); err != nil {
		return err
	}

	meta := snap.Meta()
	e.swap(ctx, snap, BuildStats{
		BuildID:        meta.BuildID,
		RecordsIndexed: snap.Len(),
		RecordsSkipped: meta.Skipped,
		Dimension:      snap.Dimension(),
		VocabularySize: snap.Vectorizer().VocabularySize(),
		Model:          meta.Model,
		BuiltAt:        meta.CreatedAt,
		Loaded:         true,
	})
	e.logger.Info("snapshot loaded",
		"build_id", meta.BuildID,
		"records", snap.Len(),
		"model", meta.Model,
	)
	return nil
}

// Reload loads the persisted snapshot if it is not the one being served.
// It is used when another process announces a rebuild of buildID.
func (e *Engine) Reload(ctx context.Context, buildID string) error {
	if cur := e.current.Load(); cur != nil && cur.Meta().BuildID == buildID {
		return nil
	}
	return e.Load(ctx)
}

func (e *Engine) checkCompatible(ctx context.Context, m *segment.Manifest) error {
	if e.enc.State() != encoder.StateReady {
		if err := e.enc.Init(ctx); err != nil {
			return fmt.Errorf("initialising encoder: %w", err)
		}
	}
	if m.Model != e.enc.Model() || m.Dimension != e.enc.Dimension() {
		return fmt.Errorf("%w: snapshot %s has model %s/%d, encoder has %s/%d",
			ErrModelMismatch, m.BuildID, m.Model, m.Dimension, e.enc.Model(), e.enc.Dimension())
	}
	return nil
}

func (e *Engine) swap(ctx context.Context, snap *snapshot.Snapshot, stats BuildStats) {
	e.current.Store(snap)
	if e.metrics != nil {
		e.metrics.IndexedRecords.Set(float64(stats.RecordsIndexed))
		e.metrics.SkippedRecords.Set(float64(stats.RecordsSkipped))
		e.metrics.VocabularySize.Set(float64(stats.VocabularySize))
	}
	e.mu.Lock()
	hooks := append([]Hook(nil), e.hooks...)
	e.mu.Unlock()
	for _, h := range hooks {
		h(ctx, snap, stats)
	}
}

func (e *Engine) setLastError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		e.lastError = ""
		return
	}
	e.lastError = err.Error()
}

func (e *Engine) observeBuild(status string, d time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.IndexRebuildsTotal.WithLabelValues(status).Inc()
	if status == "success" {
		e.metrics.IndexRebuildDuration.Observe(d.Seconds())
	}
}

// stage runs fn inside a child span named after the stage.
func stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := tracing.StartChildSpan(ctx, name)
	defer span.End()
	err := fn(ctx)
	span.SetError(err)
	return err
}
