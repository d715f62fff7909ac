package records

import (
	"context"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/postgres"
)

var postgresDialect = dialect{
	name:        "postgres",
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	migrations:  postgresMigrations,
	sizeQuery:   "SELECT pg_total_relation_size('books')",
	timeArg:     func(t time.Time) any { return t },
}

// NewPostgres migrates the database behind client and returns a Store using
// it. Close closes the client.
func NewPostgres(ctx context.Context, client *postgres.Client) (Store, error) {
	if err := applyMigrations(ctx, client.DB, postgresDialect); err != nil {
		return nil, err
	}
	return &sqlStore{
		db:      client.DB,
		d:       postgresDialect,
		closeFn: client.Close,
		inTx:    client.InTx,
		now:     time.Now,
	}, nil
}
