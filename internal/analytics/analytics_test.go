package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/kafka"
)

type recordingPublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, e kafka.Event) error {
	return p.PublishBatch(ctx, []kafka.Event{e})
}

func (p *recordingPublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, append([]kafka.Event(nil), events...))
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func TestAggregatorSearchStats(t *testing.T) {
	agg := NewAggregator()
	agg.Record(SearchEvent{Type: EventSearch, Query: "dragons", Outcome: OutcomeOK, LatencyMs: 10})
	agg.Record(SearchEvent{Type: EventSearch, Query: "dragons", Outcome: OutcomeOK, LatencyMs: 20, CacheHit: true})
	agg.Record(&SearchEvent{Type: EventSearch, Query: "unicorns", Outcome: OutcomeZeroResult, LatencyMs: 30})
	agg.Record(SearchEvent{Type: EventSimilar, ISBN: "111", Outcome: OutcomeOK, LatencyMs: 40})
	agg.Record("ignored")

	st := agg.Stats()
	assert.Equal(t, int64(3), st.TotalSearches)
	assert.Equal(t, int64(1), st.TotalSimilar)
	assert.Equal(t, int64(1), st.CacheHits)
	assert.Equal(t, int64(3), st.CacheMisses)
	assert.InDelta(t, 0.25, st.CacheHitRate, 1e-9)
	assert.Equal(t, int64(1), st.ZeroResultCount)
	assert.InDelta(t, 25.0, st.AvgLatencyMs, 1e-9)
	assert.Equal(t, int64(30), st.P50LatencyMs)
	assert.Equal(t, int64(40), st.P99LatencyMs)

	require.Len(t, st.TopQueries, 2)
	assert.Equal(t, QueryCount{Query: "dragons", Count: 2}, st.TopQueries[0])
	require.Len(t, st.ZeroResultQueries, 1)
	assert.Equal(t, "unicorns", st.ZeroResultQueries[0].Query)
}

func TestAggregatorRebuildStats(t *testing.T) {
	agg := NewAggregator()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	agg.Record(RebuildEvent{Type: EventRebuild, BuildID: "b1", Status: "success", Indexed: 42, Timestamp: at})
	agg.Record(RebuildEvent{Type: EventRebuild, Status: "failed", Stage: "encode", Error: "boom"})

	st := agg.Stats()
	assert.Equal(t, int64(1), st.RebuildsSucceeded)
	assert.Equal(t, int64(1), st.RebuildsFailed)
	assert.Equal(t, "b1", st.LastBuildID)
	assert.Equal(t, 42, st.LastIndexed)
	require.NotNil(t, st.LastRebuildAt)
	assert.True(t, at.Equal(*st.LastRebuildAt))
}

func TestAggregatorLatencyWindowIsBounded(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < maxLatencySamples+50; i++ {
		agg.Record(SearchEvent{Type: EventSearch, Query: "q", LatencyMs: int64(i)})
	}
	agg.mu.RLock()
	n := len(agg.latencies)
	agg.mu.RUnlock()
	assert.Equal(t, maxLatencySamples, n)
}

func TestHandleEventDispatchesByType(t *testing.T) {
	agg := NewAggregator()
	handle := HandleEvent(agg)

	search, err := json.Marshal(SearchEvent{Type: EventSearch, Query: "space opera", Outcome: OutcomeOK})
	require.NoError(t, err)
	rebuild, err := json.Marshal(RebuildEvent{Type: EventRebuild, BuildID: "b2", Status: "success"})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, handle(ctx, nil, search))
	require.NoError(t, handle(ctx, nil, rebuild))
	require.NoError(t, handle(ctx, nil, []byte("not json")))
	require.NoError(t, handle(ctx, nil, []byte(`{"type":"mystery"}`)))

	st := agg.Stats()
	assert.Equal(t, int64(1), st.TotalSearches)
	assert.Equal(t, "b2", st.LastBuildID)
}

func TestCollectorFlushesOnClose(t *testing.T) {
	pub := &recordingPublisher{}
	agg := NewAggregator()
	c := NewCollector(pub, CollectorOptions{BatchSize: 2, FlushInterval: time.Hour, Local: agg})
	c.Start(context.Background())

	for i := 0; i < 5; i++ {
		c.Track(SearchEvent{Type: EventSearch, Query: "q"})
	}
	c.Close()

	assert.Equal(t, 5, pub.count())
	assert.Equal(t, int64(5), agg.Stats().TotalSearches)
}

func TestCollectorFlushesOnCancel(t *testing.T) {
	pub := &recordingPublisher{}
	ctx, cancel := context.WithCancel(context.Background())
	c := NewCollector(pub, CollectorOptions{BatchSize: 100, FlushInterval: time.Hour})
	c.Start(ctx)

	c.Track(RebuildEvent{Type: EventRebuild, Status: "success"})
	require.Eventually(t, func() bool { return len(c.eventCh) == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-c.done

	assert.Equal(t, 1, pub.count())
}

func TestCollectorDropsWhenFull(t *testing.T) {
	c := NewCollector(kafka.NopPublisher{}, CollectorOptions{BufferSize: 1})
	c.Track(SearchEvent{})
	c.Track(SearchEvent{})
	c.Track(SearchEvent{})
	assert.Equal(t, int64(2), c.Dropped())
}

func TestCollectorDropsAfterClose(t *testing.T) {
	c := NewCollector(kafka.NopPublisher{}, CollectorOptions{})
	c.Start(context.Background())
	c.Close()

	assert.NotPanics(t, func() { c.Track(SearchEvent{}) })
	assert.Equal(t, int64(1), c.Dropped())
	assert.NotPanics(t, c.Close)
}

func TestRebuildHookTracksBuildsOnly(t *testing.T) {
	agg := NewAggregator()
	c := NewCollector(kafka.NopPublisher{}, CollectorOptions{Local: agg})
	c.Start(context.Background())
	hook := RebuildHook(c)

	hook(context.Background(), nil, indexer.BuildStats{BuildID: "disk", Loaded: true})
	hook(context.Background(), nil, indexer.BuildStats{BuildID: "b7", RecordsIndexed: 12, Duration: 40 * time.Millisecond})
	c.Close()

	st := agg.Stats()
	assert.Equal(t, int64(1), st.RebuildsSucceeded)
	assert.Equal(t, "b7", st.LastBuildID)
	assert.Equal(t, 12, st.LastIndexed)
}

func TestHandlerTopParameter(t *testing.T) {
	agg := NewAggregator()
	for _, q := range []string{"a", "b", "b", "c", "c", "c"} {
		agg.Record(SearchEvent{Type: EventSearch, Query: q, Outcome: OutcomeOK})
	}
	h := NewHandler(agg)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics?top=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var st AggregatedStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, []QueryCount{{Query: "c", Count: 3}, {Query: "b", Count: 2}}, st.TopQueries)
	assert.EqualValues(t, 6, st.TotalSearches)

	for _, bad := range []string{"0", "x", "101"} {
		rec := httptest.NewRecorder()
		h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics?top="+bad, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
		assert.Contains(t, rec.Body.String(), `"field":"top"`)
	}
}
