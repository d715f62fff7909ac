// Package validator cleans raw books into records. It strips markup,
// normalises text, enforces length limits and rejects records without a
// usable ISBN or title. A description that fails its checks is dropped
// rather than failing the whole record.
package validator

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/records"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/errors"
)

const (
	defaultMinDescriptionLength = 20
	defaultMaxDescriptionLength = 5000
	defaultMaxTitleLength       = 500
	defaultMaxGenres            = 5
)

var invalidDescriptions = []string{
	"description not available",
	"no description",
	"coming soon",
	"n/a",
	"tbd",
	"[no description]",
}

var (
	fullDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	bareYear = regexp.MustCompile(`^\d{4}$`)
	anyYear  = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	listSep  = regexp.MustCompile(`[,;|]`)
)

// Rules are the limits applied while cleaning.
type Rules struct {
	MinDescriptionLength int
	MaxDescriptionLength int
	MaxTitleLength       int
	MaxGenres            int
}

// RulesFromConfig fills unset limits with defaults.
func RulesFromConfig(cfg config.IngestionConfig) Rules {
	r := Rules{
		MinDescriptionLength: cfg.MinDescriptionLength,
		MaxDescriptionLength: cfg.MaxDescriptionLength,
		MaxTitleLength:       cfg.MaxTitleLength,
		MaxGenres:            cfg.MaxGenres,
	}
	if r.MinDescriptionLength <= 0 {
		r.MinDescriptionLength = defaultMinDescriptionLength
	}
	if r.MaxDescriptionLength <= 0 {
		r.MaxDescriptionLength = defaultMaxDescriptionLength
	}
	if r.MaxTitleLength <= 0 {
		r.MaxTitleLength = defaultMaxTitleLength
	}
	if r.MaxGenres <= 0 {
		r.MaxGenres = defaultMaxGenres
	}
	return r
}

// Clean turns raw into a record. It fails with a ValidationError naming the
// field when the ISBN or title is unusable.
func (r Rules) Clean(raw ingestion.RawBook) (records.Record, error) {
	isbn, ok := NormalizeISBN(raw.ISBN)
	if !ok {
		return records.Record{}, apperrors.Invalid("isbn", "must be 10 or 13 digits (ISBN-10 may end in X), got %q", raw.ISBN)
	}
	title := CleanText(raw.Title)
	if title == "" {
		return records.Record{}, apperrors.Invalid("title", "is required")
	}
	return records.Record{
		ISBN:        isbn,
		Title:       truncate(title, r.MaxTitleLength),
		Description: r.CleanDescription(raw.Description),
		Authors:     cleanList(raw.Authors, 0),
		Genres:      cleanList(raw.Genres, r.MaxGenres),
		PublishDate: NormalizeDate(raw.PublishDate),
	}, nil
}

// CleanDescription returns the cleaned description, or "" when it is a
// placeholder or too short.
func (r Rules) CleanDescription(s string) string {
	cleaned := CleanText(s)
	if cleaned == "" {
		return ""
	}
	lower := strings.ToLower(cleaned)
	for _, phrase := range invalidDescriptions {
		if strings.Contains(lower, phrase) {
			return ""
		}
	}
	if utf8.RuneCountInString(cleaned) < r.MinDescriptionLength {
		return ""
	}
	return truncate(cleaned, r.MaxDescriptionLength)
}

// CleanText strips HTML tags, decodes entities, applies NFKC and collapses
// whitespace.
func CleanText(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	text := html.UnescapeString(stripTags(s))
	text = norm.NFKC.String(text)
	return strings.Join(strings.FieldsFunc(text, unicode.IsSpace), " ")
}

func stripTags(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			// Keep words on either side of a tag apart.
			b.WriteByte(' ')
		}
	}
}

// NormalizeISBN removes hyphens and spaces and checks the ISBN-10/13 shape.
func NormalizeISBN(s string) (string, bool) {
	s = strings.TrimSpace(strings.NewReplacer("-", "", " ", "").Replace(s))
	if len(s) != 10 && len(s) != 13 {
		return "", false
	}
	s = strings.ToUpper(s)
	body := s
	if len(s) == 10 && s[9] == 'X' {
		body = s[:9]
	}
	for i := 0; i < len(body); i++ {
		if body[i] < '0' || body[i] > '9' {
			return "", false
		}
	}
	return s, true
}

// NormalizeDate returns YYYY-MM-DD for a full date, a bare year or any text
// containing a 19xx/20xx year, and "" otherwise.
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return ""
	case fullDate.MatchString(s):
		return s
	case bareYear.MatchString(s):
		return s + "-01-01"
	}
	if m := anyYear.FindStringSubmatch(s); m != nil {
		return m[1] + "-01-01"
	}
	return ""
}

func cleanList(s string, max int) []string {
	var out []string
	for _, part := range listSep.Split(s, -1) {
		if part = CleanText(part); part == "" {
			continue
		}
		out = append(out, part)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}
