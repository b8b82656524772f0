package factory

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/lattice-db/lattice/internal/storage/sqlrepo"
)

func init() {
	RegisterBackend("postgres", openPostgres)
}

func openPostgres(ctx context.Context, opts Options) (Repository, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("postgres backend requires a DSN")
	}
	db, err := sql.Open("pgx", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return sqlrepo.New(db, sqlrepo.PostgresDialect{}, opts.Logger), nil
}
