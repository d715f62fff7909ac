package segment

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer/lexical"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer/snapshot"
	apperrors "github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/errors"
)

func testSnapshot(t *testing.T, buildID string) *snapshot.Snapshot {
	t.Helper()
	docs := []string{"robots in space", "a cookbook for beginners", "the and of"}
	vec := lexical.New(lexical.DefaultOptions())
	lex, err := vec.FitTransform(context.Background(), docs)
	require.NoError(t, err)
	require.True(t, lex[2].IsZero())

	entries := []snapshot.Entry{
		{ISBN: "1", Title: "Robots", Authors: []string{"Ann Author"}, Genres: []string{"Science Fiction"}, PublishDate: "1999-01-01"},
		{ISBN: "2", Title: "Cooking"},
		{ISBN: "3", Title: "Stop"},
	}
	dense := [][]float32{{0.1, 0.2, 0.3, 0.4}, {1, 0, 0, 0}, {0, 0, 0, 0}}
	s, err := snapshot.New(snapshot.Meta{
		BuildID:   buildID,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Model:     "feature-hashing-v1",
		Skipped:   4,
	}, entries, dense, lex, vec)
	require.NoError(t, err)
	return s
}

func TestWriteLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	orig := testSnapshot(t, "b1")

	path, err := NewWriter(dir, 2).Write(context.Background(), orig)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "snap-b1"), path)

	got, m, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, VersionTag, m.VersionTag)
	assert.Equal(t, 3, m.Count)
	assert.Equal(t, 4, m.Skipped)
	assert.Equal(t, orig.Meta().BuildID, got.Meta().BuildID)
	assert.True(t, orig.Meta().CreatedAt.Equal(got.Meta().CreatedAt))
	assert.Equal(t, orig.Vectorizer().Terms(), got.Vectorizer().Terms())
	assert.Equal(t, orig.Vectorizer().IDF(), got.Vectorizer().IDF())

	require.Equal(t, orig.Len(), got.Len())
	for i := 0; i < orig.Len(); i++ {
		want, _ := orig.RecordAt(i)
		have, _ := got.RecordAt(i)
		assert.Equal(t, want, have)
		assert.Equal(t, orig.DenseAt(i), got.DenseAt(i))
		assert.Equal(t, orig.LexicalAt(i), got.LexicalAt(i))
	}
}

func TestLoadWithoutSnapshot(t *testing.T) {
	_, _, err := Load(t.TempDir())
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestCorruptArtifactIsRejected(t *testing.T) {
	for _, file := range []string{DenseFile, LexicalFile, RecordsFile} {
		t.Run(file, func(t *testing.T) {
			dir := t.TempDir()
			path, err := NewWriter(dir, 1).Write(context.Background(), testSnapshot(t, "b1"))
			require.NoError(t, err)

			target := filepath.Join(path, file)
			b, err := os.ReadFile(target)
			require.NoError(t, err)
			b[len(b)/2] ^= 0xFF
			require.NoError(t, os.WriteFile(target, b, 0o644))

			_, _, err = Load(dir)
			assert.ErrorIs(t, err, apperrors.ErrCorruptSnapshot)
		})
	}
}

func TestMismatchedArtifactsAreRejected(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, 2)
	first, err := w.Write(context.Background(), testSnapshot(t, "b1"))
	require.NoError(t, err)

	// records from a different build do not match this manifest
	other := testSnapshot(t, "b2")
	second, err := w.Write(context.Background(), other)
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(second, RecordsFile))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(first, RecordsFile), append(b, '\n'), 0o644))

	_, _, err = LoadDir(first)
	assert.ErrorIs(t, err, apperrors.ErrCorruptSnapshot)
}

func TestVersionTagMismatch(t *testing.T) {
	dir := t.TempDir()
	path, err := NewWriter(dir, 1).Write(context.Background(), testSnapshot(t, "b1"))
	require.NoError(t, err)

	m, err := ReadManifest(path)
	require.NoError(t, err)
	raw, err := os.ReadFile(filepath.Join(path, ManifestFile))
	require.NoError(t, err)
	patched := []byte(strings.Replace(string(raw), m.VersionTag, "book-search-snapshot/v0", 1))
	require.NoError(t, os.WriteFile(filepath.Join(path, ManifestFile), patched, 0o644))

	_, _, err = Load(dir)
	assert.ErrorIs(t, err, apperrors.ErrCorruptSnapshot)
}

func TestCancelledWriteKeepsPreviousSnapshot(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, 2)
	_, err := w.Write(context.Background(), testSnapshot(t, "good"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = w.Write(ctx, testSnapshot(t, "bad"))
	require.ErrorIs(t, err, context.Canceled)

	name, err := Current(dir)
	require.NoError(t, err)
	assert.Equal(t, "snap-good", name)
	assert.NoDirExists(t, filepath.Join(dir, "snap-bad.tmp"))
	assert.NoDirExists(t, filepath.Join(dir, "snap-bad"))

	s, _, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "good", s.Meta().BuildID)
}

func TestPruneKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, 2)
	for _, id := range []string{"b1", "b2", "b3"} {
		_, err := w.Write(context.Background(), testSnapshot(t, id))
		require.NoError(t, err)
		// distinct modification times
		past := time.Now().Add(-time.Hour)
		if id != "b3" {
			require.NoError(t, os.Chtimes(filepath.Join(dir, DirName(id)), past, past))
		}
	}
	assert.NoDirExists(t, filepath.Join(dir, "snap-b1"))
	assert.DirExists(t, filepath.Join(dir, "snap-b2"))
	assert.DirExists(t, filepath.Join(dir, "snap-b3"))

	name, err := Current(dir)
	require.NoError(t, err)
	assert.Equal(t, "snap-b3", name)
}
