package reader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/ingestion"
)

func TestReadPrefersAliasesInOrder(t *testing.T) {
	in := "isbn,ISBN,title,ol_description,final_description,subjects,Year\n" +
		"111,222,Dune,old text,new text,SF,1965\n" +
		"333,nan,Emma,only ol,NaN,Romance,None\n"
	books, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, books, 2)

	assert.Equal(t, ingestion.RawBook{
		ISBN:        "222",
		Title:       "Dune",
		Description: "new text",
		Genres:      "SF",
		PublishDate: "1965",
	}, books[0])
	assert.Equal(t, "333", books[1].ISBN)
	assert.Equal(t, "only ol", books[1].Description)
	assert.Empty(t, books[1].PublishDate)
}

func TestReadToleratesRaggedRowsAndBOM(t *testing.T) {
	in := "\ufefftitle,isbn,author\nShort,123\n\"Quoted, title\",456,\"A, B\"\n"
	books, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "Short", books[0].Title)
	assert.Empty(t, books[0].Authors)
	assert.Equal(t, "Quoted, title", books[1].Title)
	assert.Equal(t, "A, B", books[1].Authors)
}

func TestReadEmpty(t *testing.T) {
	books, err := Read(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestFilesSorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.csv", "a.csv", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("isbn\n"), 0o644))
	}
	files, err := Files(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.csv"), filepath.Join(dir, "b.csv")}, files)
}
