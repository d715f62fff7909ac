package records

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/errors"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "books.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRecords() []Record {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return []Record{
		{
			ISBN:        "9780000000002",
			Title:       "Dune",
			Description: "A desert planet and a struggle over spice.",
			Authors:     []string{"Frank Herbert"},
			Genres:      []string{"Science Fiction", "Classics"},
			PublishDate: "1965",
			CreatedAt:   base,
		},
		{
			ISBN:      "9780000000001",
			Title:     "Untitled Notes",
			Authors:   []string{"Anon"},
			CreatedAt: base.Add(time.Hour),
		},
		{
			ISBN:        "9780000000003",
			Title:       "Emma",
			Description: "A young woman meddles in the love lives of her friends.",
			Authors:     []string{"Jane Austen"},
			Genres:      []string{"Romance"},
			CreatedAt:   base.Add(2 * time.Hour),
		},
	}
}

func TestUpsertAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	res, err := s.UpsertBatch(ctx, sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, UpsertResult{Inserted: 3}, res)

	got, err := s.Get(ctx, "9780000000002")
	require.NoError(t, err)
	assert.Equal(t, "Dune", got.Title)
	assert.Equal(t, []string{"Frank Herbert"}, got.Authors)
	assert.Equal(t, []string{"Science Fiction", "Classics"}, got.Genres)
	assert.Equal(t, "1965", got.PublishDate)
	assert.True(t, got.CreatedAt.Equal(sampleRecords()[0].CreatedAt))
}

func TestUpsertUpdatesExisting(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertBatch(ctx, sampleRecords())
	require.NoError(t, err)

	changed := sampleRecords()[1]
	changed.Description = "Now with a description."
	changed.CreatedAt = time.Time{}
	res, err := s.UpsertBatch(ctx, []Record{changed, {ISBN: "9780000000009", Title: "New"}})
	require.NoError(t, err)
	assert.Equal(t, UpsertResult{Inserted: 1, Updated: 1}, res)

	got, err := s.Get(ctx, changed.ISBN)
	require.NoError(t, err)
	assert.Equal(t, "Now with a description.", got.Description)
	assert.True(t, got.CreatedAt.Equal(sampleRecords()[1].CreatedAt), "created_at is kept on update")
}

func TestUpsertRejectsMissingISBN(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertBatch(ctx, []Record{sampleRecords()[0], {Title: "No ISBN"}})
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "batch is rolled back")
}

func TestUpsertRejectsCommaInListItem(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	withAuthor := sampleRecords()[1]
	withAuthor.Authors = []string{"Smith, Jr.", "Doe"}
	_, err := s.UpsertBatch(ctx, []Record{sampleRecords()[0], withAuthor})
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)
	var valErr *apperrors.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "authors", valErr.Field)

	withGenre := sampleRecords()[0]
	withGenre.Genres = []string{"Science Fiction, Fantasy"}
	_, err = s.UpsertBatch(ctx, []Record{withGenre})
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "genres", valErr.Field)

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "rejected batches are rolled back")
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestListAllOrderedByISBN(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_, err := s.UpsertBatch(ctx, sampleRecords())
	require.NoError(t, err)

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "9780000000001", all[0].ISBN)
	assert.Equal(t, "9780000000002", all[1].ISBN)
	assert.Equal(t, "9780000000003", all[2].ISBN)
	assert.False(t, all[0].HasDescription())
}

func TestListNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_, err := s.UpsertBatch(ctx, sampleRecords())
	require.NoError(t, err)

	recent, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "Emma", recent[0].Title)
	assert.Equal(t, "Untitled Notes", recent[1].Title)

	_, err = s.List(ctx, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_, err := s.UpsertBatch(ctx, sampleRecords())
	require.NoError(t, err)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 2, st.WithDescription)
	assert.Positive(t, st.SizeBytes)
}

func TestReopenKeepsDataAndSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "books.db")
	ctx := context.Background()

	s, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	_, err = s.UpsertBatch(ctx, sampleRecords())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Total)
}

func TestSplitJoinList(t *testing.T) {
	assert.Nil(t, SplitList(""))
	assert.Nil(t, SplitList("  "))
	assert.Equal(t, []string{"a", "b c"}, SplitList(" a , ,b c"))
	assert.Equal(t, "a, b", JoinList([]string{"a", "b"}))
}
