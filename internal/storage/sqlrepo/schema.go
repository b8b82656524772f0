package sqlrepo

import (
	"context"
	"fmt"
)

// tableDef is one static table: name, column body (assembled with dialect
// types), and secondary indexes.
type tableDef struct {
	name    string
	body    string
	indexes []indexDef
}

type indexDef struct {
	name    string
	columns string
}

// staticTables returns the fixed relational schema. Dynamic per-key index
// tables are created separately through CreateIndexTable.
func (s *Store) staticTables() []tableDef {
	d := s.dialect
	key, text, integer, float, ts := d.KeyType(), d.TextType(), d.IntType(), d.FloatType(), d.TimeType()

	return []tableDef{
		{
			name: "collections",
			body: fmt.Sprintf(`id %s PRIMARY KEY,
name %s NOT NULL UNIQUE,
description %s,
documentsdirectory %s,
schemaenforcementmode %s NOT NULL,
indexingmode %s NOT NULL,
createdutc %s NOT NULL,
lastupdateutc %s NOT NULL`, key, key, text, text, key, key, ts, ts),
		},
		{
			name: "schemas",
			body: fmt.Sprintf(`id %s PRIMARY KEY,
name %s,
hash %s NOT NULL UNIQUE,
createdutc %s NOT NULL,
lastupdateutc %s NOT NULL`, key, key, key, ts, ts),
		},
		{
			name: "schemaelements",
			body: fmt.Sprintf(`id %s PRIMARY KEY,
schemaid %s NOT NULL,
position %s NOT NULL,
elementkey %s NOT NULL,
datatype %s NOT NULL,
nullable %s NOT NULL,
createdutc %s NOT NULL`, key, key, integer, key, key, integer, ts),
			indexes: []indexDef{{name: "idx_schemaelements_schemaid", columns: "schemaid"}},
		},
		{
			name: "documents",
			body: fmt.Sprintf(`id %s PRIMARY KEY,
collectionid %s NOT NULL,
schemaid %s,
name %s,
contentlength %s NOT NULL,
sha256hash %s NOT NULL,
createdutc %s NOT NULL,
lastupdateutc %s NOT NULL`, key, key, key, key, integer, key, ts, ts),
			indexes: []indexDef{
				{name: "idx_documents_collectionid", columns: "collectionid"},
				{name: "idx_documents_name", columns: "name"},
				{name: "idx_documents_createdutc", columns: "createdutc"},
			},
		},
		{
			name: "labels",
			body: fmt.Sprintf(`id %s PRIMARY KEY,
collectionid %s,
documentid %s,
label %s NOT NULL,
createdutc %s NOT NULL`, key, key, key, key, ts),
			indexes: []indexDef{
				{name: "idx_labels_documentid", columns: "documentid"},
				{name: "idx_labels_label", columns: "label"},
			},
		},
		{
			name: "tags",
			body: fmt.Sprintf(`id %s PRIMARY KEY,
collectionid %s,
documentid %s,
tagkey %s NOT NULL,
tagvalue %s NOT NULL,
createdutc %s NOT NULL`, key, key, key, key, key, ts),
			indexes: []indexDef{
				{name: "idx_tags_documentid", columns: "documentid"},
				{name: "idx_tags_key", columns: "tagkey"},
			},
		},
		{
			name: "indextablemappings",
			body: fmt.Sprintf(`id %s PRIMARY KEY,
indexkey %s NOT NULL UNIQUE,
tablename %s NOT NULL UNIQUE,
createdutc %s NOT NULL`, key, key, key, ts),
		},
		{
			name: "fieldconstraints",
			body: fmt.Sprintf(`id %s PRIMARY KEY,
collectionid %s NOT NULL,
fieldpath %s NOT NULL,
datatype %s,
required %s NOT NULL,
nullable %s NOT NULL,
regexpattern %s,
minvalue %s,
maxvalue %s,
minlength %s,
maxlength %s,
allowedvalues %s,
arrayelementtype %s,
createdutc %s NOT NULL,
lastupdateutc %s NOT NULL,
UNIQUE (collectionid, fieldpath)`, key, key, key, key, integer, integer, text, float, float, integer, integer, text, key, ts, ts),
		},
		{
			name: "indexedfields",
			body: fmt.Sprintf(`id %s PRIMARY KEY,
collectionid %s NOT NULL,
fieldpath %s NOT NULL,
createdutc %s NOT NULL,
UNIQUE (collectionid, fieldpath)`, key, key, key, ts),
		},
		{
			name: "objectlocks",
			body: fmt.Sprintf(`id %s PRIMARY KEY,
collectionid %s NOT NULL,
documentname %s NOT NULL,
hostname %s NOT NULL,
createdutc %s NOT NULL,
UNIQUE (collectionid, documentname)`, key, key, key, key, ts),
		},
	}
}

// forwardColumns are columns added after the original schema shipped; they
// are applied with ADD COLUMN IF NOT EXISTS semantics on startup.
type forwardColumn struct {
	table, column, typ string
}

func (s *Store) forwardColumns() []forwardColumn {
	d := s.dialect
	return []forwardColumn{
		{"documents", "contentlength", d.IntType()},
		{"documents", "sha256hash", d.KeyType()},
		{"collections", "schemaenforcementmode", d.KeyType()},
		{"collections", "indexingmode", d.KeyType()},
	}
}

// Migrate creates missing tables and indexes and applies forward column
// migrations. It is idempotent and safe to run on every startup.
func (s *Store) Migrate(ctx context.Context) error {
	for _, t := range s.staticTables() {
		ddl := s.dialect.CreateTableIfNotExists(t.name, t.body)
		if _, err := s.exec.ExecContext(ctx, ddl); err != nil {
			return s.wrapErr(fmt.Sprintf("create table %s", t.name), err)
		}
		for _, idx := range t.indexes {
			if err := s.ensureIndex(ctx, t.name, idx.name, idx.columns); err != nil {
				return err
			}
		}
	}
	for _, fc := range s.forwardColumns() {
		if err := s.addColumnIfMissing(ctx, fc.table, fc.column, fc.typ); err != nil {
			return err
		}
	}
	return nil
}

// ensureIndex creates a secondary index if it does not already exist,
// probing first on backends without native IF NOT EXISTS support.
func (s *Store) ensureIndex(ctx context.Context, table, index, columns string) error {
	if s.dialect.SupportsCreateIndexIfNotExists() {
		ddl := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", index, table, columns)
		if _, err := s.exec.ExecContext(ctx, ddl); err != nil {
			return s.wrapErr(fmt.Sprintf("create index %s", index), err)
		}
		return nil
	}

	var count int
	row := s.exec.QueryRowContext(ctx, s.q(s.dialect.IndexExistsQuery()), table, index)
	if err := row.Scan(&count); err != nil {
		return s.wrapErr(fmt.Sprintf("probe index %s", index), err)
	}
	if count > 0 {
		return nil
	}
	ddl := fmt.Sprintf("CREATE INDEX %s ON %s (%s)", index, table, columns)
	if _, err := s.exec.ExecContext(ctx, ddl); err != nil {
		return s.wrapErr(fmt.Sprintf("create index %s", index), err)
	}
	return nil
}

// addColumnIfMissing probes the catalog and adds the column when absent.
func (s *Store) addColumnIfMissing(ctx context.Context, table, column, typ string) error {
	var count int
	row := s.exec.QueryRowContext(ctx, s.q(s.dialect.ColumnExistsQuery()), table, column)
	if err := row.Scan(&count); err != nil {
		return s.wrapErr(fmt.Sprintf("probe column %s.%s", table, column), err)
	}
	if count > 0 {
		return nil
	}
	if _, err := s.exec.ExecContext(ctx, s.dialect.AddColumn(table, column, typ)); err != nil {
		return s.wrapErr(fmt.Sprintf("add column %s.%s", table, column), err)
	}
	return nil
}
