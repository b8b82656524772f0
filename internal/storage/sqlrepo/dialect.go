package sqlrepo

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect abstracts the SQL syntax differences between supported backends.
// All repository queries are written with ?-style placeholders and rebound
// through the dialect; DDL is assembled from the dialect's type names.
type Dialect interface {
	// Name is the backend identifier ("sqlite", "postgres", "mysql", "mssql").
	Name() string

	// Rebind converts ?-style placeholders to the backend's syntax.
	Rebind(query string) string

	// KeyType is a short indexable text type used for ids, keys, and names.
	KeyType() string
	// TextType is an unbounded text type for bodies and patterns.
	TextType() string
	// IntType is a 64-bit integer type.
	IntType() string
	// FloatType is a double-precision type.
	FloatType() string
	// TimeType is the column type for fixed-width UTC timestamp strings.
	TimeType() string

	// CreateTableIfNotExists wraps a column body in idempotent DDL.
	CreateTableIfNotExists(name, body string) string
	// DropTableIfExists returns idempotent drop DDL.
	DropTableIfExists(name string) string

	// SupportsCreateIndexIfNotExists reports native IF NOT EXISTS support on
	// CREATE INDEX. Backends without it are probed via IndexExistsQuery.
	SupportsCreateIndexIfNotExists() bool
	// IndexExistsQuery returns a ?-style count query over (table, index).
	IndexExistsQuery() string
	// ColumnExistsQuery returns a ?-style count query over (table, column).
	ColumnExistsQuery() string

	// AddColumn renders the ALTER statement adding one column. Callers check
	// ColumnExistsQuery first, so no IF NOT EXISTS is required here.
	AddColumn(table, column, typ string) string

	// LimitOffset renders the paging clause. The statement it is appended to
	// always carries an ORDER BY.
	LimitOffset(limit, offset int) string

	// IsUniqueViolation reports whether err is a unique-constraint violation.
	IsUniqueViolation(err error) bool
}

// rebindNumbered rewrites ? placeholders as prefix1, prefix2, ... for
// backends with numbered parameters. Placeholders never occur inside string
// literals in this package's queries.
func rebindNumbered(prefix, query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteString(prefix)
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// limitOffsetStandard renders LIMIT/OFFSET for backends that support it.
func limitOffsetStandard(limit, offset int) string {
	clause := ""
	if limit > 0 {
		clause = fmt.Sprintf(" LIMIT %d", limit)
	}
	if offset > 0 {
		clause += fmt.Sprintf(" OFFSET %d", offset)
	}
	return clause
}
