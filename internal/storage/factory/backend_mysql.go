package factory

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"

	"github.com/lattice-db/lattice/internal/storage/sqlrepo"
)

func init() {
	RegisterBackend("mysql", openMySQL)
}

func openMySQL(ctx context.Context, opts Options) (Repository, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("mysql backend requires a DSN")
	}
	db, err := sql.Open("mysql", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return sqlrepo.New(db, sqlrepo.MySQLDialect{}, opts.Logger), nil
}
