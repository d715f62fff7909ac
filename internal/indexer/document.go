package indexer

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/records"
)

// DefaultMaxTextChars bounds the description share of an indexed text.
const DefaultMaxTextChars = 500

// IndexText composes the text both sub-indexes see for r: the title, the
// first maxChars characters of the description and the genres, space
// separated. Empty parts are omitted.
func IndexText(r records.Record, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxTextChars
	}
	parts := make([]string, 0, 3)
	if t := strings.TrimSpace(r.Title); t != "" {
		parts = append(parts, "Title: "+t)
	}
	if d := strings.TrimSpace(r.Description); d != "" {
		parts = append(parts, truncateRunes(d, maxChars))
	}
	if len(r.Genres) > 0 {
		parts = append(parts, "Genres: "+records.JoinList(r.Genres))
	}
	return strings.Join(parts, " ")
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func entryOf(r records.Record) snapshot.Entry {
	return snapshot.Entry{
		ISBN:        r.ISBN,
		Title:       r.Title,
		Authors:     r.Authors,
		Genres:      r.Genres,
		PublishDate: r.PublishDate,
	}
}
