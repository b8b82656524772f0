package sqlrepo

import (
	"context"
	"database/sql"

	"github.com/lattice-db/lattice/internal/types"
)

// CreateObjectLock attempts to claim the (collection, document name) pair.
// A holder already present surfaces as ErrConflict via the unique constraint.
func (s *Store) CreateObjectLock(ctx context.Context, l *types.ObjectLock) error {
	_, err := s.exec.ExecContext(ctx, s.q(`INSERT INTO objectlocks (id, collectionid, documentname, hostname, createdutc) VALUES (?, ?, ?, ?, ?)`),
		l.ID, l.CollectionID, l.DocumentName, l.Hostname, fmtTime(l.CreatedUTC))
	return s.wrapErr("create object lock", err)
}

func (s *Store) GetObjectLock(ctx context.Context, collectionID, documentName string) (*types.ObjectLock, error) {
	row := s.exec.QueryRowContext(ctx, s.q(`SELECT id, collectionid, documentname, hostname, createdutc FROM objectlocks WHERE collectionid = ? AND documentname = ?`), collectionID, documentName)

	var l types.ObjectLock
	var created string
	if err := row.Scan(&l.ID, &l.CollectionID, &l.DocumentName, &l.Hostname, &created); err != nil {
		return nil, s.wrapErr("get object lock", err)
	}
	var err error
	if l.CreatedUTC, err = parseTime(created); err != nil {
		return nil, err
	}
	return &l, nil
}

// DeleteObjectLock releases by id. Deleting an already-released lock is not
// an error for the caller to act on, but the sentinel is surfaced so the
// lock manager can log it.
func (s *Store) DeleteObjectLock(ctx context.Context, id string) error {
	res, err := s.exec.ExecContext(ctx, s.q(`DELETE FROM objectlocks WHERE id = ?`), id)
	if err != nil {
		return s.wrapErr("delete object lock", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return s.wrapErr("delete object lock", sql.ErrNoRows)
	}
	return nil
}
