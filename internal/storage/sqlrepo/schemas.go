package sqlrepo

import (
	"context"
	"database/sql"

	"github.com/lattice-db/lattice/internal/storage"
	"github.com/lattice-db/lattice/internal/types"
)

const schemaColumns = "id, name, hash, createdutc, lastupdateutc"

// CreateSchema inserts the schema row and its ordered elements atomically.
// A duplicate fingerprint hash surfaces as ErrConflict; callers re-read the
// winning row and continue (schema dedup is racy by design).
func (s *Store) CreateSchema(ctx context.Context, sc *types.Schema, elements []*types.SchemaElement) error {
	return s.WithTx(ctx, func(tx storage.Repository) error {
		st := tx.(*Store)
		_, err := st.exec.ExecContext(ctx, st.q(`INSERT INTO schemas (`+schemaColumns+`) VALUES (?, ?, ?, ?, ?)`),
			sc.ID, nullStr(sc.Name), sc.Hash, fmtTime(sc.CreatedUTC), fmtTime(sc.LastUpdateUTC))
		if err != nil {
			return st.wrapErr("create schema", err)
		}
		for _, el := range elements {
			_, err := st.exec.ExecContext(ctx, st.q(`INSERT INTO schemaelements (id, schemaid, position, elementkey, datatype, nullable, createdutc) VALUES (?, ?, ?, ?, ?, ?, ?)`),
				el.ID, sc.ID, el.Position, el.Key, el.DataType, boolToInt(el.Nullable), fmtTime(el.CreatedUTC))
			if err != nil {
				return st.wrapErr("create schema element", err)
			}
		}
		return nil
	})
}

func (s *Store) GetSchema(ctx context.Context, id string) (*types.Schema, error) {
	row := s.exec.QueryRowContext(ctx, s.q(`SELECT `+schemaColumns+` FROM schemas WHERE id = ?`), id)
	return s.scanSchema(row)
}

func (s *Store) GetSchemaByHash(ctx context.Context, hash string) (*types.Schema, error) {
	row := s.exec.QueryRowContext(ctx, s.q(`SELECT `+schemaColumns+` FROM schemas WHERE hash = ?`), hash)
	return s.scanSchema(row)
}

func (s *Store) ListSchemas(ctx context.Context) ([]*types.Schema, error) {
	rows, err := s.exec.QueryContext(ctx, `SELECT `+schemaColumns+` FROM schemas ORDER BY id`)
	if err != nil {
		return nil, s.wrapErr("list schemas", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Schema
	for rows.Next() {
		sc, err := s.scanSchemaRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *Store) ListSchemaElements(ctx context.Context, schemaID string) ([]*types.SchemaElement, error) {
	rows, err := s.exec.QueryContext(ctx, s.q(`SELECT id, schemaid, position, elementkey, datatype, nullable, createdutc FROM schemaelements WHERE schemaid = ? ORDER BY position`), schemaID)
	if err != nil {
		return nil, s.wrapErr("list schema elements", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.SchemaElement
	for rows.Next() {
		var el types.SchemaElement
		var nullable int
		var created string
		if err := rows.Scan(&el.ID, &el.SchemaID, &el.Position, &el.Key, &el.DataType, &nullable, &created); err != nil {
			return nil, s.wrapErr("scan schema element", err)
		}
		el.Nullable = nullable != 0
		var err error
		if el.CreatedUTC, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, &el)
	}
	return out, rows.Err()
}

func (s *Store) scanSchema(row *sql.Row) (*types.Schema, error) {
	return s.scanSchemaRow(row)
}

func (s *Store) scanSchemaRow(row rowScanner) (*types.Schema, error) {
	var sc types.Schema
	var name sql.NullString
	var created, updated string
	if err := row.Scan(&sc.ID, &name, &sc.Hash, &created, &updated); err != nil {
		return nil, s.wrapErr("scan schema", err)
	}
	sc.Name = strOrEmpty(name)

	var err error
	if sc.CreatedUTC, err = parseTime(created); err != nil {
		return nil, err
	}
	if sc.LastUpdateUTC, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &sc, nil
}
