package sqlrepo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lattice-db/lattice/internal/types"
)

// validIndexTableName guards DDL assembly: dynamic table names are always
// "index_" plus 32 hex characters, so anything else is rejected before it
// reaches a statement.
func validIndexTableName(name string) bool {
	if !strings.HasPrefix(name, "index_") {
		return false
	}
	suffix := strings.TrimPrefix(name, "index_")
	if len(suffix) != 32 {
		return false
	}
	for _, r := range suffix {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// CreateIndexTableMapping inserts the key <-> table row. Concurrent creators
// race on the unique key column; losers see ErrConflict and re-read.
func (s *Store) CreateIndexTableMapping(ctx context.Context, m *types.IndexTableMapping) error {
	_, err := s.exec.ExecContext(ctx, s.q(`INSERT INTO indextablemappings (id, indexkey, tablename, createdutc) VALUES (?, ?, ?, ?)`),
		m.ID, m.Key, m.TableName, fmtTime(m.CreatedUTC))
	return s.wrapErr("create index table mapping", err)
}

func (s *Store) GetIndexTableMapping(ctx context.Context, key string) (*types.IndexTableMapping, error) {
	row := s.exec.QueryRowContext(ctx, s.q(`SELECT id, indexkey, tablename, createdutc FROM indextablemappings WHERE indexkey = ?`), key)
	return s.scanMapping(row)
}

func (s *Store) ListIndexTableMappings(ctx context.Context) ([]*types.IndexTableMapping, error) {
	rows, err := s.exec.QueryContext(ctx, `SELECT id, indexkey, tablename, createdutc FROM indextablemappings ORDER BY indexkey`)
	if err != nil {
		return nil, s.wrapErr("list index table mappings", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.IndexTableMapping
	for rows.Next() {
		m, err := s.scanMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) DeleteIndexTableMapping(ctx context.Context, key string) error {
	res, err := s.exec.ExecContext(ctx, s.q(`DELETE FROM indextablemappings WHERE indexkey = ?`), key)
	if err != nil {
		return s.wrapErr("delete index table mapping", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return s.wrapErr("delete index table mapping", sql.ErrNoRows)
	}
	return nil
}

// CreateIndexTable issues the idempotent DDL for one dynamic per-key table.
func (s *Store) CreateIndexTable(ctx context.Context, tableName string) error {
	if !validIndexTableName(tableName) {
		return fmt.Errorf("invalid index table name %q", tableName)
	}
	d := s.dialect
	body := fmt.Sprintf(`id %s PRIMARY KEY,
documentid %s NOT NULL,
position %s,
value %s,
createdutc %s NOT NULL`, d.KeyType(), d.KeyType(), d.IntType(), d.TextType(), d.TimeType())

	if _, err := s.exec.ExecContext(ctx, d.CreateTableIfNotExists(tableName, body)); err != nil {
		return s.wrapErr(fmt.Sprintf("create index table %s", tableName), err)
	}

	for _, idx := range []indexDef{
		{name: "idx_" + tableName + "_documentid", columns: "documentid"},
		{name: "idx_" + tableName + "_position", columns: "position"},
		{name: "idx_" + tableName + "_createdutc", columns: "createdutc"},
		{name: "idx_" + tableName + "_doc_pos", columns: "documentid, position"},
	} {
		if err := s.ensureIndex(ctx, tableName, idx.name, idx.columns); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) DropIndexTable(ctx context.Context, tableName string) error {
	if !validIndexTableName(tableName) {
		return fmt.Errorf("invalid index table name %q", tableName)
	}
	if _, err := s.exec.ExecContext(ctx, s.dialect.DropTableIfExists(tableName)); err != nil {
		return s.wrapErr(fmt.Sprintf("drop index table %s", tableName), err)
	}
	return nil
}

// InsertIndexEntries bulk-inserts flattened rows into one dynamic table.
func (s *Store) InsertIndexEntries(ctx context.Context, tableName string, entries []*types.IndexEntry) error {
	if !validIndexTableName(tableName) {
		return fmt.Errorf("invalid index table name %q", tableName)
	}
	stmt := s.q(`INSERT INTO ` + tableName + ` (id, documentid, position, value, createdutc) VALUES (?, ?, ?, ?, ?)`)
	for _, e := range entries {
		var position any
		if e.Position != nil {
			position = *e.Position
		}
		var value any
		if e.Value != nil {
			value = *e.Value
		}
		if _, err := s.exec.ExecContext(ctx, stmt, e.ID, e.DocumentID, position, value, fmtTime(e.CreatedUTC)); err != nil {
			return s.wrapErr(fmt.Sprintf("insert index entry into %s", tableName), err)
		}
	}
	return nil
}

func (s *Store) DeleteIndexEntriesByDocument(ctx context.Context, tableName, documentID string) error {
	if !validIndexTableName(tableName) {
		return fmt.Errorf("invalid index table name %q", tableName)
	}
	_, err := s.exec.ExecContext(ctx, s.q(`DELETE FROM `+tableName+` WHERE documentid = ?`), documentID)
	return s.wrapErr(fmt.Sprintf("delete index entries from %s", tableName), err)
}

// DeleteIndexEntriesByCollection removes every row belonging to the
// collection's documents and reports how many went away.
func (s *Store) DeleteIndexEntriesByCollection(ctx context.Context, tableName, collectionID string) (int64, error) {
	if !validIndexTableName(tableName) {
		return 0, fmt.Errorf("invalid index table name %q", tableName)
	}
	res, err := s.exec.ExecContext(ctx, s.q(`DELETE FROM `+tableName+` WHERE documentid IN (SELECT id FROM documents WHERE collectionid = ?)`), collectionID)
	if err != nil {
		return 0, s.wrapErr(fmt.Sprintf("delete collection entries from %s", tableName), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (s *Store) CountIndexEntries(ctx context.Context, tableName string) (int64, error) {
	if !validIndexTableName(tableName) {
		return 0, fmt.Errorf("invalid index table name %q", tableName)
	}
	var count int64
	row := s.exec.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+tableName)
	if err := row.Scan(&count); err != nil {
		return 0, s.wrapErr(fmt.Sprintf("count index entries in %s", tableName), err)
	}
	return count, nil
}

func (s *Store) IndexTableHasCollectionRows(ctx context.Context, tableName, collectionID string) (bool, error) {
	if !validIndexTableName(tableName) {
		return false, fmt.Errorf("invalid index table name %q", tableName)
	}
	var count int64
	row := s.exec.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM `+tableName+` e WHERE e.documentid IN (SELECT id FROM documents WHERE collectionid = ?)`), collectionID)
	if err := row.Scan(&count); err != nil {
		return false, s.wrapErr(fmt.Sprintf("probe collection rows in %s", tableName), err)
	}
	return count > 0, nil
}

func (s *Store) scanMapping(row rowScanner) (*types.IndexTableMapping, error) {
	var m types.IndexTableMapping
	var created string
	if err := row.Scan(&m.ID, &m.Key, &m.TableName, &created); err != nil {
		return nil, s.wrapErr("scan index table mapping", err)
	}
	var err error
	if m.CreatedUTC, err = parseTime(created); err != nil {
		return nil, err
	}
	return &m, nil
}
