package sqlrepo

import (
	"context"
	"database/sql"

	"github.com/lattice-db/lattice/internal/types"
)

const documentColumns = "id, collectionid, schemaid, name, contentlength, sha256hash, createdutc, lastupdateutc"

// CreateDocument inserts the metadata row for one stored body. Duplicate ids
// surface as ErrConflict.
func (s *Store) CreateDocument(ctx context.Context, d *types.Document) error {
	_, err := s.exec.ExecContext(ctx, s.q(`INSERT INTO documents (`+documentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		d.ID, d.CollectionID, nullStr(d.SchemaID), nullStr(d.Name),
		d.ContentLength, d.SHA256Hash, fmtTime(d.CreatedUTC), fmtTime(d.LastUpdateUTC))
	return s.wrapErr("create document", err)
}

func (s *Store) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	row := s.exec.QueryRowContext(ctx, s.q(`SELECT `+documentColumns+` FROM documents WHERE id = ?`), id)
	return s.scanDocument(row)
}

// GetDocumentsByIDs fetches the given documents, preserving the order of ids.
func (s *Store) GetDocumentsByIDs(ctx context.Context, ids []string) ([]*types.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.exec.QueryContext(ctx, s.q(`SELECT `+documentColumns+` FROM documents WHERE id IN (`+placeholders(len(ids))+`)`), args...)
	if err != nil {
		return nil, s.wrapErr("get documents by ids", err)
	}
	defer func() { _ = rows.Close() }()

	byID := make(map[string]*types.Document, len(ids))
	for rows.Next() {
		d, err := s.scanDocumentRow(rows)
		if err != nil {
			return nil, err
		}
		byID[d.ID] = d
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrapErr("get documents by ids", err)
	}

	out := make([]*types.Document, 0, len(ids))
	for _, id := range ids {
		if d, ok := byID[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Store) ListDocuments(ctx context.Context, collectionID string) ([]*types.Document, error) {
	rows, err := s.exec.QueryContext(ctx, s.q(`SELECT `+documentColumns+` FROM documents WHERE collectionid = ? ORDER BY id`), collectionID)
	if err != nil {
		return nil, s.wrapErr("list documents", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Document
	for rows.Next() {
		d, err := s.scanDocumentRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) ListDocumentIDs(ctx context.Context, collectionID string) ([]string, error) {
	rows, err := s.exec.QueryContext(ctx, s.q(`SELECT id FROM documents WHERE collectionid = ? ORDER BY id`), collectionID)
	if err != nil {
		return nil, s.wrapErr("list document ids", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, s.wrapErr("scan document id", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.exec.ExecContext(ctx, s.q(`DELETE FROM documents WHERE id = ?`), id)
	if err != nil {
		return s.wrapErr("delete document", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return s.wrapErr("delete document", sql.ErrNoRows)
	}
	return nil
}

func (s *Store) scanDocument(row *sql.Row) (*types.Document, error) {
	return s.scanDocumentRow(row)
}

func (s *Store) scanDocumentRow(row rowScanner) (*types.Document, error) {
	var d types.Document
	var schemaID, name sql.NullString
	var created, updated string
	if err := row.Scan(&d.ID, &d.CollectionID, &schemaID, &name, &d.ContentLength, &d.SHA256Hash, &created, &updated); err != nil {
		return nil, s.wrapErr("scan document", err)
	}
	d.SchemaID = strOrEmpty(schemaID)
	d.Name = strOrEmpty(name)

	var err error
	if d.CreatedUTC, err = parseTime(created); err != nil {
		return nil, err
	}
	if d.LastUpdateUTC, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &d, nil
}
