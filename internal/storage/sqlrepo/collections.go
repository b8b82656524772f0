package sqlrepo

import (
	"context"
	"database/sql"

	"github.com/lattice-db/lattice/internal/types"
)

const collectionColumns = "id, name, description, documentsdirectory, schemaenforcementmode, indexingmode, createdutc, lastupdateutc"

// CreateCollection inserts a new collection row. A duplicate name surfaces
// as ErrConflict via the unique constraint.
func (s *Store) CreateCollection(ctx context.Context, c *types.Collection) error {
	_, err := s.exec.ExecContext(ctx, s.q(`INSERT INTO collections (`+collectionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		c.ID, c.Name, nullStr(c.Description), c.DocumentsDirectory,
		string(c.SchemaEnforcementMode), string(c.IndexingMode),
		fmtTime(c.CreatedUTC), fmtTime(c.LastUpdateUTC))
	return s.wrapErr("create collection", err)
}

func (s *Store) GetCollection(ctx context.Context, id string) (*types.Collection, error) {
	row := s.exec.QueryRowContext(ctx, s.q(`SELECT `+collectionColumns+` FROM collections WHERE id = ?`), id)
	return s.scanCollection(row)
}

func (s *Store) GetCollectionByName(ctx context.Context, name string) (*types.Collection, error) {
	row := s.exec.QueryRowContext(ctx, s.q(`SELECT `+collectionColumns+` FROM collections WHERE name = ?`), name)
	return s.scanCollection(row)
}

func (s *Store) ListCollections(ctx context.Context) ([]*types.Collection, error) {
	rows, err := s.exec.QueryContext(ctx, `SELECT `+collectionColumns+` FROM collections ORDER BY id`)
	if err != nil {
		return nil, s.wrapErr("list collections", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Collection
	for rows.Next() {
		c, err := s.scanCollectionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateCollection rewrites the mutable fields (description, modes, update
// timestamp). Name and documents directory are fixed at creation.
func (s *Store) UpdateCollection(ctx context.Context, c *types.Collection) error {
	res, err := s.exec.ExecContext(ctx, s.q(`UPDATE collections SET description = ?, schemaenforcementmode = ?, indexingmode = ?, lastupdateutc = ? WHERE id = ?`),
		nullStr(c.Description), string(c.SchemaEnforcementMode), string(c.IndexingMode),
		fmtTime(c.LastUpdateUTC), c.ID)
	if err != nil {
		return s.wrapErr("update collection", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return s.wrapErr("update collection", sql.ErrNoRows)
	}
	return nil
}

func (s *Store) DeleteCollection(ctx context.Context, id string) error {
	res, err := s.exec.ExecContext(ctx, s.q(`DELETE FROM collections WHERE id = ?`), id)
	if err != nil {
		return s.wrapErr("delete collection", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return s.wrapErr("delete collection", sql.ErrNoRows)
	}
	return nil
}

func (s *Store) GetCollectionStats(ctx context.Context, collectionID string) (*types.CollectionStats, error) {
	row := s.exec.QueryRowContext(ctx, s.q(`SELECT COUNT(*), COALESCE(SUM(contentlength), 0), COUNT(DISTINCT schemaid) FROM documents WHERE collectionid = ?`), collectionID)
	stats := &types.CollectionStats{CollectionID: collectionID}
	if err := row.Scan(&stats.DocumentCount, &stats.TotalBytes, &stats.DistinctSchemas); err != nil {
		return nil, s.wrapErr("collection stats", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanCollection(row *sql.Row) (*types.Collection, error) {
	c, err := s.scanCollectionRow(row)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) scanCollectionRow(row rowScanner) (*types.Collection, error) {
	var c types.Collection
	var description sql.NullString
	var enforcement, indexing, created, updated string
	if err := row.Scan(&c.ID, &c.Name, &description, &c.DocumentsDirectory, &enforcement, &indexing, &created, &updated); err != nil {
		return nil, s.wrapErr("scan collection", err)
	}
	c.Description = strOrEmpty(description)
	c.SchemaEnforcementMode = types.SchemaEnforcementMode(enforcement)
	c.IndexingMode = types.IndexingMode(indexing)

	var err error
	if c.CreatedUTC, err = parseTime(created); err != nil {
		return nil, err
	}
	if c.LastUpdateUTC, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &c, nil
}
