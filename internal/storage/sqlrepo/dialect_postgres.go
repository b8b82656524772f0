package sqlrepo

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// pgUniqueViolation is the PostgreSQL error code for unique_violation.
const pgUniqueViolation = "23505"

// PostgresDialect targets PostgreSQL via the pgx stdlib driver.
type PostgresDialect struct{}

func (PostgresDialect) Name() string { return "postgres" }

func (PostgresDialect) Rebind(query string) string { return rebindNumbered("$", query) }

func (PostgresDialect) KeyType() string   { return "VARCHAR(255)" }
func (PostgresDialect) TextType() string  { return "TEXT" }
func (PostgresDialect) IntType() string   { return "BIGINT" }
func (PostgresDialect) FloatType() string { return "DOUBLE PRECISION" }
func (PostgresDialect) TimeType() string  { return "VARCHAR(40)" }

func (PostgresDialect) CreateTableIfNotExists(name, body string) string {
	return "CREATE TABLE IF NOT EXISTS " + name + " (" + body + ")"
}

func (PostgresDialect) DropTableIfExists(name string) string {
	return "DROP TABLE IF EXISTS " + name
}

func (PostgresDialect) SupportsCreateIndexIfNotExists() bool { return true }

func (PostgresDialect) IndexExistsQuery() string {
	return "SELECT COUNT(*) FROM pg_indexes WHERE schemaname = current_schema() AND tablename = ? AND indexname = ?"
}

func (PostgresDialect) ColumnExistsQuery() string {
	return "SELECT COUNT(*) FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = ? AND column_name = ?"
}

func (PostgresDialect) AddColumn(table, column, typ string) string {
	return "ALTER TABLE " + table + " ADD COLUMN IF NOT EXISTS " + column + " " + typ
}

func (PostgresDialect) LimitOffset(limit, offset int) string {
	return limitOffsetStandard(limit, offset)
}

func (PostgresDialect) IsUniqueViolation(err error) bool {
	var perr *pgconn.PgError
	return errors.As(err, &perr) && perr.Code == pgUniqueViolation
}
