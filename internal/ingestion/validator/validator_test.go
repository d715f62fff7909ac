package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/errors"
)

func defaultRules() Rules {
	return RulesFromConfig(config.IngestionConfig{})
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"<p>This is a &amp; test description</p>", "This is a & test description"},
		{"one<br/>two", "one two"},
		{"  lots \n\t of   space  ", "lots of space"},
		{"ﬁne ﬂowers", "fine flowers"},
		{"&amp;amp; doubled", "& doubled"},
		{"", ""},
		{"<b></b>", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanText(tt.in), tt.in)
	}
}

func TestNormalizeISBN(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"978-0-123-45678-9", "9780123456789", true},
		{"0 306 40615 2", "0306406152", true},
		{"080442957x", "080442957X", true},
		{"97801234567X9", "", false},
		{"12345", "", false},
		{"", "", false},
		{"ABCDEFGHIJ", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeISBN(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNormalizeDate(t *testing.T) {
	assert.Equal(t, "2024-05-06", NormalizeDate("2024-05-06"))
	assert.Equal(t, "1999-01-01", NormalizeDate("1999"))
	assert.Equal(t, "1987-01-01", NormalizeDate("March 3, 1987"))
	assert.Equal(t, "", NormalizeDate("sometime in the 1800s"))
	assert.Equal(t, "", NormalizeDate(""))
}

func TestCleanDescription(t *testing.T) {
	r := defaultRules()
	assert.Empty(t, r.CleanDescription("Description not available for this title."))
	assert.Empty(t, r.CleanDescription("N/A"))
	assert.Empty(t, r.CleanDescription("Too short."))
	assert.Equal(t, "A long enough description of a book.", r.CleanDescription("<i>A long enough description of a book.</i>"))

	long := strings.Repeat("é", 6000)
	assert.Equal(t, 5000, len([]rune(r.CleanDescription(long))))
}

func TestClean(t *testing.T) {
	r := defaultRules()
	rec, err := r.Clean(ingestion.RawBook{
		ISBN:        "978-0-123-45678-9",
		Title:       "  Test <em>Book</em> ",
		Description: "<p>This is a &amp; test description</p>",
		Authors:     "John Doe; Jane Smith",
		Genres:      "Fiction, Fantasy | Adventure; Magic, Dragons, Quests, Extra",
		PublishDate: "2024",
	})
	require.NoError(t, err)
	assert.Equal(t, "9780123456789", rec.ISBN)
	assert.Equal(t, "Test Book", rec.Title)
	assert.Equal(t, "This is a & test description", rec.Description)
	assert.Equal(t, []string{"John Doe", "Jane Smith"}, rec.Authors)
	assert.Equal(t, []string{"Fiction", "Fantasy", "Adventure", "Magic", "Dragons"}, rec.Genres)
	assert.Equal(t, "2024-01-01", rec.PublishDate)
}

func TestCleanRejectsMissingIdentity(t *testing.T) {
	r := defaultRules()

	_, err := r.Clean(ingestion.RawBook{ISBN: "bad", Title: "T"})
	var valErr *apperrors.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "isbn", valErr.Field)

	_, err = r.Clean(ingestion.RawBook{ISBN: "0306406152", Title: "<br>"})
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "title", valErr.Field)
}

func TestCleanKeepsRecordWithoutDescription(t *testing.T) {
	rec, err := defaultRules().Clean(ingestion.RawBook{ISBN: "0306406152", Title: "Notes", Description: "coming soon"})
	require.NoError(t, err)
	assert.Empty(t, rec.Description)
	assert.False(t, rec.HasDescription())
}
