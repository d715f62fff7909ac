package aggregator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/analytics"
)

type stubLister struct {
	snapshots []analytics.AggregatedStats
	err       error
	limit     int
}

func (s *stubLister) ListSnapshots(_ context.Context, limit int) ([]analytics.AggregatedStats, error) {
	s.limit = limit
	return s.snapshots, s.err
}

func get(t *testing.T, h http.HandlerFunc, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHistoryDefaultsLimit(t *testing.T) {
	l := &stubLister{snapshots: []analytics.AggregatedStats{{TotalSearches: 3}, {TotalSearches: 1}}}
	rec, body := get(t, History(l), "/api/v1/analytics/history")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultHistoryLimit, l.limit)
	assert.EqualValues(t, 2, body["count"])
}

func TestHistoryEmptyIsAList(t *testing.T) {
	rec, body := get(t, History(&stubLister{}), "/api/v1/analytics/history?limit=5")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, body["snapshots"])
}

func TestHistoryRejectsBadLimit(t *testing.T) {
	for _, q := range []string{"0", "-1", "abc", "501"} {
		l := &stubLister{}
		rec, body := get(t, History(l), "/api/v1/analytics/history?limit="+q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		assert.Equal(t, "limit", body["field"], q)
		assert.Zero(t, l.limit, "store must not be queried for %q", q)
	}
}

func TestHistoryStoreFailure(t *testing.T) {
	rec, body := get(t, History(&stubLister{err: assert.AnError}), "/api/v1/analytics/history")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal", body["code"])
}
