package executor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/encoder"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer/lexical"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/records"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/errors"
)

func newTestExecutor(t *testing.T, recs []records.Record) *Executor {
	t.Helper()
	ctx := context.Background()
	store, err := records.OpenSQLite(ctx, filepath.Join(t.TempDir(), "books.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	if len(recs) > 0 {
		_, err = store.UpsertBatch(ctx, recs)
		require.NoError(t, err)
	}

	enc := encoder.New(encoder.NewHashingProvider("", 128), encoder.Options{})
	require.NoError(t, enc.Init(ctx))
	engine := indexer.NewEngine(store, enc, indexer.Options{
		Indexer: config.IndexerConfig{DataDir: filepath.Join(t.TempDir(), "index")},
		Lexical: lexical.DefaultOptions(),
	})
	return New(engine, ranker.New(enc, ranker.Limits{}), store, ranker.DefaultWeights())
}

func scenarioRecords() []records.Record {
	return []records.Record{
		{ISBN: "1", Title: "Robots", Description: "A book about robots in space", Genres: []string{"Science Fiction"}},
		{ISBN: "2", Title: "Cooking", Description: "A cookbook for beginners", Authors: []string{"A. Chef"}},
		{ISBN: "3", Title: "Blank", Description: ""},
	}
}

func TestRebuildThenSearch(t *testing.T) {
	e := newTestExecutor(t, scenarioRecords())
	ctx := context.Background()

	stats, err := e.RebuildIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.RecordsIndexed)
	assert.Equal(t, 1, stats.RecordsSkipped)

	res, err := e.Search(ctx, Request{Query: "robot in space", Limit: 2})
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "1", res.Results[0].ISBN)
	assert.Equal(t, "2", res.Results[1].ISBN)
	assert.Equal(t, "Robots", res.Results[0].Title)
	assert.Equal(t, []string{"Science Fiction"}, res.Results[0].Genres)
	assert.Equal(t, []string{"A. Chef"}, res.Results[1].Authors)
	assert.Equal(t, stats.BuildID, res.BuildID)
	assert.Equal(t, ranker.DefaultWeights(), res.Weights)
	assert.Equal(t, 2, res.Total)
}

func TestEmptyQueryIsInvalid(t *testing.T) {
	e := newTestExecutor(t, scenarioRecords())
	_, err := e.RebuildIndex(context.Background())
	require.NoError(t, err)

	_, err = e.Search(context.Background(), Request{Query: "", Limit: 5})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestSearchBeforeRebuildIsNotIndexed(t *testing.T) {
	e := newTestExecutor(t, scenarioRecords())
	_, err := e.Search(context.Background(), Request{Query: "robots", Limit: 5})
	assert.ErrorIs(t, err, apperrors.ErrNotIndexed)
	assert.Equal(t, "", e.BuildID())
}

func TestSimilarToMissingBook(t *testing.T) {
	e := newTestExecutor(t, scenarioRecords())
	_, err := e.RebuildIndex(context.Background())
	require.NoError(t, err)

	_, err = e.SimilarTo(context.Background(), "nonexistent-id", 5, nil)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	// Stored but filtered out of the index.
	_, err = e.SimilarTo(context.Background(), "3", 5, nil)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSimilarToExcludesSeed(t *testing.T) {
	e := newTestExecutor(t, scenarioRecords())
	_, err := e.RebuildIndex(context.Background())
	require.NoError(t, err)

	res, err := e.SimilarTo(context.Background(), "1", 5, &ranker.Weights{Semantic: 1, Keyword: 0})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "2", res.Results[0].ISBN)
	assert.Equal(t, KindSimilar, res.Kind)
	assert.Equal(t, ranker.Weights{Semantic: 1}, res.Weights)
}

func TestStats(t *testing.T) {
	e := newTestExecutor(t, scenarioRecords())
	ctx := context.Background()

	st := e.Stats(ctx)
	assert.False(t, st.Indexed)
	assert.Equal(t, encoder.DefaultHashingModel, st.Model)
	require.NotNil(t, st.Records)
	assert.Equal(t, 3, st.Records.Total)

	_, err := e.RebuildIndex(ctx)
	require.NoError(t, err)
	st = e.Stats(ctx)
	assert.True(t, st.Indexed)
	assert.Equal(t, 2, st.TotalIndexed)
	assert.Equal(t, 128, st.Dimension)
	assert.Positive(t, st.VocabularySize)
	assert.NotNil(t, st.BuiltAt)
	assert.Equal(t, e.BuildID(), st.BuildID)
}
