package sqlrepo

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// MySQLDialect targets MySQL.
type MySQLDialect struct{}

func (MySQLDialect) Name() string { return "mysql" }

func (MySQLDialect) Rebind(query string) string { return query }

func (MySQLDialect) KeyType() string   { return "VARCHAR(255)" }
func (MySQLDialect) TextType() string  { return "LONGTEXT" }
func (MySQLDialect) IntType() string   { return "BIGINT" }
func (MySQLDialect) FloatType() string { return "DOUBLE PRECISION" }
func (MySQLDialect) TimeType() string  { return "VARCHAR(40)" }

func (MySQLDialect) CreateTableIfNotExists(name, body string) string {
	return "CREATE TABLE IF NOT EXISTS " + name + " (" + body + ")"
}

func (MySQLDialect) DropTableIfExists(name string) string {
	return "DROP TABLE IF EXISTS " + name
}

// MySQL 8 has no CREATE INDEX IF NOT EXISTS; existence is probed first.
func (MySQLDialect) SupportsCreateIndexIfNotExists() bool { return false }

func (MySQLDialect) IndexExistsQuery() string {
	return "SELECT COUNT(*) FROM information_schema.statistics WHERE table_schema = DATABASE() AND table_name = ? AND index_name = ?"
}

func (MySQLDialect) ColumnExistsQuery() string {
	return "SELECT COUNT(*) FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ? AND column_name = ?"
}

func (MySQLDialect) AddColumn(table, column, typ string) string {
	return "ALTER TABLE " + table + " ADD COLUMN " + column + " " + typ
}

func (MySQLDialect) LimitOffset(limit, offset int) string {
	return limitOffsetStandard(limit, offset)
}

func (MySQLDialect) IsUniqueViolation(err error) bool {
	var merr *mysql.MySQLError
	return errors.As(err, &merr) && merr.Number == mysqlDuplicateEntry
}
