package sqlrepo

import (
	"errors"
	"fmt"

	mssql "github.com/denisenkom/go-mssqldb"
)

// SQL Server unique violation error numbers: 2627 is a unique constraint,
// 2601 a unique index.
const (
	mssqlUniqueConstraint = 2627
	mssqlUniqueIndex      = 2601
)

// MSSQLDialect targets SQL Server.
type MSSQLDialect struct{}

func (MSSQLDialect) Name() string { return "mssql" }

func (MSSQLDialect) Rebind(query string) string { return rebindNumbered("@p", query) }

func (MSSQLDialect) KeyType() string   { return "NVARCHAR(255)" }
func (MSSQLDialect) TextType() string  { return "NVARCHAR(MAX)" }
func (MSSQLDialect) IntType() string   { return "BIGINT" }
func (MSSQLDialect) FloatType() string { return "FLOAT" }
func (MSSQLDialect) TimeType() string  { return "NVARCHAR(40)" }

// SQL Server has no CREATE TABLE IF NOT EXISTS; guard on OBJECT_ID instead.
// DDL bodies in this package contain no string literals, so embedding the
// statement in EXEC quoting is safe.
func (MSSQLDialect) CreateTableIfNotExists(name, body string) string {
	return fmt.Sprintf("IF OBJECT_ID('%s', 'U') IS NULL EXEC('CREATE TABLE %s (%s)')", name, name, body)
}

func (MSSQLDialect) DropTableIfExists(name string) string {
	return fmt.Sprintf("IF OBJECT_ID('%s', 'U') IS NOT NULL EXEC('DROP TABLE %s')", name, name)
}

func (MSSQLDialect) SupportsCreateIndexIfNotExists() bool { return false }

func (MSSQLDialect) IndexExistsQuery() string {
	return "SELECT COUNT(*) FROM sys.indexes WHERE object_id = OBJECT_ID(?) AND name = ?"
}

func (MSSQLDialect) ColumnExistsQuery() string {
	return "SELECT COUNT(*) FROM information_schema.columns WHERE table_name = ? AND column_name = ?"
}

func (MSSQLDialect) AddColumn(table, column, typ string) string {
	return "ALTER TABLE " + table + " ADD " + column + " " + typ
}

func (MSSQLDialect) LimitOffset(limit, offset int) string {
	if limit <= 0 && offset <= 0 {
		return ""
	}
	clause := fmt.Sprintf(" OFFSET %d ROWS", offset)
	if limit > 0 {
		clause += fmt.Sprintf(" FETCH NEXT %d ROWS ONLY", limit)
	}
	return clause
}

func (MSSQLDialect) IsUniqueViolation(err error) bool {
	var serr mssql.Error
	if errors.As(err, &serr) {
		return serr.Number == mssqlUniqueConstraint || serr.Number == mssqlUniqueIndex
	}
	return false
}
