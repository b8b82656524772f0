package sqlrepo

import "strings"

// SQLiteDialect targets the embedded file database.
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string { return "sqlite" }

func (SQLiteDialect) Rebind(query string) string { return query }

func (SQLiteDialect) KeyType() string   { return "TEXT" }
func (SQLiteDialect) TextType() string  { return "TEXT" }
func (SQLiteDialect) IntType() string   { return "INTEGER" }
func (SQLiteDialect) FloatType() string { return "REAL" }
func (SQLiteDialect) TimeType() string  { return "TEXT" }

func (SQLiteDialect) CreateTableIfNotExists(name, body string) string {
	return "CREATE TABLE IF NOT EXISTS " + name + " (" + body + ")"
}

func (SQLiteDialect) DropTableIfExists(name string) string {
	return "DROP TABLE IF EXISTS " + name
}

func (SQLiteDialect) SupportsCreateIndexIfNotExists() bool { return true }

func (SQLiteDialect) IndexExistsQuery() string {
	return "SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND tbl_name = ? AND name = ?"
}

func (SQLiteDialect) ColumnExistsQuery() string {
	return "SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?"
}

func (SQLiteDialect) AddColumn(table, column, typ string) string {
	return "ALTER TABLE " + table + " ADD COLUMN " + column + " " + typ
}

func (SQLiteDialect) LimitOffset(limit, offset int) string {
	return limitOffsetStandard(limit, offset)
}

// SQLite reports primary-key collisions with the same message, so this
// covers both cases.
func (SQLiteDialect) IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
