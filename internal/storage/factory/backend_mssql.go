package factory

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/denisenkom/go-mssqldb"

	"github.com/lattice-db/lattice/internal/storage/sqlrepo"
)

func init() {
	RegisterBackend("mssql", openMSSQL)
}

func openMSSQL(ctx context.Context, opts Options) (Repository, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("mssql backend requires a DSN")
	}
	db, err := sql.Open("sqlserver", opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return sqlrepo.New(db, sqlrepo.MSSQLDialect{}, opts.Logger), nil
}
