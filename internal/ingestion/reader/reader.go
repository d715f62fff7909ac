// Package reader reads raw books from CSV exports. Column names vary between
// sources, so each field is taken from the first non-missing column in a
// priority list of aliases.
package reader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/ingestion"
)

var (
	isbnColumns        = []string{"ISBN", "isbn", "isbn13", "isbn10"}
	titleColumns       = []string{"Title", "title", "book_title", "book_name"}
	authorColumns      = []string{"Author/Editor", "ol_authors", "authors", "author", "Author"}
	descriptionColumns = []string{"final_description", "ol_description", "oa_abstract", "description", "Description"}
	genreColumns       = []string{"final_subjects", "ol_subjects", "subjects", "genres", "genre", "categories"}
	dateColumns        = []string{"Year", "ol_publish_date", "oa_year", "publish_date", "published", "year"}
)

// missing values as written by spreadsheet and dataframe exports.
var missing = map[string]bool{"": true, "nan": true, "NaN": true, "None": true}

// Files returns the *.csv files directly inside dir, sorted by name.
func Files(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("listing csv files in %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// ReadFile reads every row of the CSV file at path.
func ReadFile(path string) ([]ingestion.RawBook, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	books, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return books, nil
}

// Read parses CSV with a header row.
func Read(r io.Reader) ([]ingestion.RawBook, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}

	var books []ingestion.RawBook
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return books, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", len(books)+2, err)
		}
		books = append(books, ingestion.RawBook{
			ISBN:        pick(row, cols, isbnColumns),
			Title:       pick(row, cols, titleColumns),
			Authors:     pick(row, cols, authorColumns),
			Description: pick(row, cols, descriptionColumns),
			Genres:      pick(row, cols, genreColumns),
			PublishDate: pick(row, cols, dateColumns),
		})
	}
}

func pick(row []string, cols map[string]int, aliases []string) string {
	for _, name := range aliases {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			continue
		}
		if v := strings.TrimSpace(row[i]); !missing[v] {
			return v
		}
	}
	return ""
}
