package sqlrepo

import (
	"context"
	"database/sql"

	"github.com/lattice-db/lattice/internal/types"
)

// AddLabel inserts one label row. Exactly one of CollectionID / DocumentID
// must be set; the service layer enforces that before persisting.
func (s *Store) AddLabel(ctx context.Context, l *types.Label) error {
	_, err := s.exec.ExecContext(ctx, s.q(`INSERT INTO labels (id, collectionid, documentid, label, createdutc) VALUES (?, ?, ?, ?, ?)`),
		l.ID, nullStr(l.CollectionID), nullStr(l.DocumentID), l.Label, fmtTime(l.CreatedUTC))
	return s.wrapErr("add label", err)
}

func (s *Store) ListDocumentLabels(ctx context.Context, documentID string) ([]*types.Label, error) {
	return s.listLabels(ctx, `documentid`, documentID)
}

func (s *Store) ListCollectionLabels(ctx context.Context, collectionID string) ([]*types.Label, error) {
	return s.listLabels(ctx, `collectionid`, collectionID)
}

func (s *Store) listLabels(ctx context.Context, ownerColumn, ownerID string) ([]*types.Label, error) {
	rows, err := s.exec.QueryContext(ctx, s.q(`SELECT id, collectionid, documentid, label, createdutc FROM labels WHERE `+ownerColumn+` = ? ORDER BY id`), ownerID)
	if err != nil {
		return nil, s.wrapErr("list labels", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Label
	for rows.Next() {
		var l types.Label
		var collectionID, documentID sql.NullString
		var created string
		if err := rows.Scan(&l.ID, &collectionID, &documentID, &l.Label, &created); err != nil {
			return nil, s.wrapErr("scan label", err)
		}
		l.CollectionID = strOrEmpty(collectionID)
		l.DocumentID = strOrEmpty(documentID)
		if l.CreatedUTC, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

func (s *Store) DeleteLabelsForDocument(ctx context.Context, documentID string) error {
	_, err := s.exec.ExecContext(ctx, s.q(`DELETE FROM labels WHERE documentid = ?`), documentID)
	return s.wrapErr("delete document labels", err)
}

// AddTag inserts one tag row; ownership rules match AddLabel.
func (s *Store) AddTag(ctx context.Context, t *types.Tag) error {
	_, err := s.exec.ExecContext(ctx, s.q(`INSERT INTO tags (id, collectionid, documentid, tagkey, tagvalue, createdutc) VALUES (?, ?, ?, ?, ?, ?)`),
		t.ID, nullStr(t.CollectionID), nullStr(t.DocumentID), t.Key, t.Value, fmtTime(t.CreatedUTC))
	return s.wrapErr("add tag", err)
}

func (s *Store) ListDocumentTags(ctx context.Context, documentID string) ([]*types.Tag, error) {
	return s.listTags(ctx, `documentid`, documentID)
}

func (s *Store) ListCollectionTags(ctx context.Context, collectionID string) ([]*types.Tag, error) {
	return s.listTags(ctx, `collectionid`, collectionID)
}

func (s *Store) listTags(ctx context.Context, ownerColumn, ownerID string) ([]*types.Tag, error) {
	rows, err := s.exec.QueryContext(ctx, s.q(`SELECT id, collectionid, documentid, tagkey, tagvalue, createdutc FROM tags WHERE `+ownerColumn+` = ? ORDER BY id`), ownerID)
	if err != nil {
		return nil, s.wrapErr("list tags", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Tag
	for rows.Next() {
		var t types.Tag
		var collectionID, documentID sql.NullString
		var created string
		if err := rows.Scan(&t.ID, &collectionID, &documentID, &t.Key, &t.Value, &created); err != nil {
			return nil, s.wrapErr("scan tag", err)
		}
		t.CollectionID = strOrEmpty(collectionID)
		t.DocumentID = strOrEmpty(documentID)
		if t.CreatedUTC, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *Store) DeleteTagsForDocument(ctx context.Context, documentID string) error {
	_, err := s.exec.ExecContext(ctx, s.q(`DELETE FROM tags WHERE documentid = ?`), documentID)
	return s.wrapErr("delete document tags", err)
}
