package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/errors"
)

// dialect captures what differs between the SQL backends.
type dialect struct {
	name        string
	placeholder func(n int) string
	migrations  []Migration
	sizeQuery   string
	// timeArg converts a timestamp into the column's native argument type.
	timeArg func(t time.Time) any
}

const selectColumns = "isbn, title, COALESCE(description, ''), COALESCE(authors, ''), COALESCE(genres, ''), COALESCE(publish_date, ''), created_at"

// sqlStore is the database/sql implementation shared by both backends.
type sqlStore struct {
	db      *sql.DB
	d       dialect
	closeFn func() error
	inTx    func(ctx context.Context, fn func(tx *sql.Tx) error) error
	now     func() time.Time
}

func (s *sqlStore) ListAll(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+selectColumns+" FROM books ORDER BY isbn")
	if err != nil {
		return nil, fmt.Errorf("listing books: %w", err)
	}
	return scanRecords(rows)
}

func (s *sqlStore) Get(ctx context.Context, isbn string) (Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM books WHERE isbn = "+s.d.placeholder(1), isbn)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, apperrors.NotFound("book", isbn)
	}
	if err != nil {
		return Record{}, fmt.Errorf("getting book %s: %w", isbn, err)
	}
	return rec, nil
}

func (s *sqlStore) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, apperrors.Invalid("limit", "must be positive, got %d", limit)
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM books ORDER BY created_at DESC, isbn LIMIT "+s.d.placeholder(1), limit)
	if err != nil {
		return nil, fmt.Errorf("listing recent books: %w", err)
	}
	return scanRecords(rows)
}

// UpsertBatch inserts new records and overwrites existing ones by ISBN in a
// single transaction. created_at is kept from the first insert.
func (s *sqlStore) UpsertBatch(ctx context.Context, recs []Record) (UpsertResult, error) {
	var res UpsertResult
	if len(recs) == 0 {
		return res, nil
	}
	p := s.d.placeholder
	exists := "SELECT COUNT(*) FROM books WHERE isbn = " + p(1)
	insert := "INSERT INTO books (isbn, title, description, authors, genres, publish_date, created_at) VALUES (" +
		strings.Join([]string{p(1), p(2), p(3), p(4), p(5), p(6), p(7)}, ", ") + ")"
	update := "UPDATE books SET title = " + p(1) + ", description = " + p(2) + ", authors = " + p(3) +
		", genres = " + p(4) + ", publish_date = " + p(5) + ", updated_at = " + p(6) + " WHERE isbn = " + p(7)

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res = UpsertResult{}
		now := s.now().UTC()
		for _, r := range recs {
			if strings.TrimSpace(r.ISBN) == "" {
				return apperrors.Invalid("isbn", "record with title %q has no isbn", r.Title)
			}
			if err := checkList("authors", r.Authors); err != nil {
				return err
			}
			if err := checkList("genres", r.Genres); err != nil {
				return err
			}
			var n int
			if err := tx.QueryRowContext(ctx, exists, r.ISBN).Scan(&n); err != nil {
				return fmt.Errorf("checking book %s: %w", r.ISBN, err)
			}
			authors, genres := JoinList(r.Authors), JoinList(r.Genres)
			if n > 0 {
				if _, err := tx.ExecContext(ctx, update, r.Title, r.Description, authors, genres, r.PublishDate, s.d.timeArg(now), r.ISBN); err != nil {
					return fmt.Errorf("updating book %s: %w", r.ISBN, err)
				}
				res.Updated++
				continue
			}
			created := r.CreatedAt
			if created.IsZero() {
				created = now
			}
			if _, err := tx.ExecContext(ctx, insert, r.ISBN, r.Title, r.Description, authors, genres, r.PublishDate, s.d.timeArg(created.UTC())); err != nil {
				return fmt.Errorf("inserting book %s: %w", r.ISBN, err)
			}
			res.Inserted++
		}
		return nil
	})
	if err != nil {
		return UpsertResult{}, err
	}
	return res, nil
}

func (s *sqlStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(CASE WHEN TRIM(COALESCE(description, '')) <> '' THEN 1 END) FROM books",
	).Scan(&st.Total, &st.WithDescription)
	if err != nil {
		return Stats{}, fmt.Errorf("counting books: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, s.d.sizeQuery).Scan(&st.SizeBytes); err != nil {
		return Stats{}, fmt.Errorf("measuring %s database size: %w", s.d.name, err)
	}
	return st, nil
}

func (s *sqlStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlStore) Close() error {
	return s.closeFn()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		r               Record
		authors, genres string
		created         any
	)
	if err := row.Scan(&r.ISBN, &r.Title, &r.Description, &authors, &genres, &r.PublishDate, &created); err != nil {
		return Record{}, err
	}
	r.Authors = SplitList(authors)
	r.Genres = SplitList(genres)
	t, err := parseTime(created)
	if err != nil {
		return Record{}, fmt.Errorf("book %s: %w", r.ISBN, err)
	}
	r.CreatedAt = t
	return r, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning book: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating books: %w", err)
	}
	return out, nil
}

// parseTime accepts the timestamp representations the drivers return.
func parseTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return parseTimeString(t)
	case []byte:
		return parseTimeString(string(t))
	case int64:
		return time.Unix(t, 0).UTC(), nil
	case nil:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("unsupported created_at type %T", v)
	}
}

func parseTimeString(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(n, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unparseable created_at %q", s)
}
