package sqlrepo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lattice-db/lattice/internal/storage"
	"github.com/lattice-db/lattice/internal/types"
)

// ReplaceFieldConstraints swaps the collection's constraint set atomically.
func (s *Store) ReplaceFieldConstraints(ctx context.Context, collectionID string, constraints []*types.FieldConstraint) error {
	return s.WithTx(ctx, func(tx storage.Repository) error {
		st := tx.(*Store)
		if _, err := st.exec.ExecContext(ctx, st.q(`DELETE FROM fieldconstraints WHERE collectionid = ?`), collectionID); err != nil {
			return st.wrapErr("clear field constraints", err)
		}
		for _, c := range constraints {
			allowed, err := encodeAllowedValues(c.AllowedValues)
			if err != nil {
				return fmt.Errorf("encode allowed values for %s: %w", c.FieldPath, err)
			}
			_, err = st.exec.ExecContext(ctx, st.q(`INSERT INTO fieldconstraints (id, collectionid, fieldpath, datatype, required, nullable, regexpattern, minvalue, maxvalue, minlength, maxlength, allowedvalues, arrayelementtype, createdutc, lastupdateutc) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
				c.ID, collectionID, c.FieldPath, nullStr(c.DataType),
				boolToInt(c.Required), boolToInt(c.IsNullable()),
				nullStr(c.RegexPattern),
				nullFloat(c.MinValue), nullFloat(c.MaxValue),
				nullInt(c.MinLength), nullInt(c.MaxLength),
				allowed, nullStr(c.ArrayElementType),
				fmtTime(c.CreatedUTC), fmtTime(c.LastUpdateUTC))
			if err != nil {
				return st.wrapErr("insert field constraint", err)
			}
		}
		return nil
	})
}

func (s *Store) ListFieldConstraints(ctx context.Context, collectionID string) ([]*types.FieldConstraint, error) {
	rows, err := s.exec.QueryContext(ctx, s.q(`SELECT id, collectionid, fieldpath, datatype, required, nullable, regexpattern, minvalue, maxvalue, minlength, maxlength, allowedvalues, arrayelementtype, createdutc, lastupdateutc FROM fieldconstraints WHERE collectionid = ? ORDER BY fieldpath`), collectionID)
	if err != nil {
		return nil, s.wrapErr("list field constraints", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.FieldConstraint
	for rows.Next() {
		var c types.FieldConstraint
		var dataType, regex, allowed, arrayType sql.NullString
		var required, nullable int
		var minValue, maxValue sql.NullFloat64
		var minLength, maxLength sql.NullInt64
		var created, updated string
		if err := rows.Scan(&c.ID, &c.CollectionID, &c.FieldPath, &dataType, &required, &nullable,
			&regex, &minValue, &maxValue, &minLength, &maxLength, &allowed, &arrayType,
			&created, &updated); err != nil {
			return nil, s.wrapErr("scan field constraint", err)
		}
		c.DataType = strOrEmpty(dataType)
		c.Required = required != 0
		n := nullable != 0
		c.Nullable = &n
		c.RegexPattern = strOrEmpty(regex)
		c.ArrayElementType = strOrEmpty(arrayType)
		if minValue.Valid {
			v := minValue.Float64
			c.MinValue = &v
		}
		if maxValue.Valid {
			v := maxValue.Float64
			c.MaxValue = &v
		}
		if minLength.Valid {
			v := int(minLength.Int64)
			c.MinLength = &v
		}
		if maxLength.Valid {
			v := int(maxLength.Int64)
			c.MaxLength = &v
		}
		if allowed.Valid && allowed.String != "" {
			if err := json.Unmarshal([]byte(allowed.String), &c.AllowedValues); err != nil {
				return nil, fmt.Errorf("decode allowed values for %s: %w", c.FieldPath, err)
			}
		}
		if c.CreatedUTC, err = parseTime(created); err != nil {
			return nil, err
		}
		if c.LastUpdateUTC, err = parseTime(updated); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// ReplaceIndexedFields swaps the collection's indexed-field declarations.
func (s *Store) ReplaceIndexedFields(ctx context.Context, collectionID string, fields []*types.IndexedField) error {
	return s.WithTx(ctx, func(tx storage.Repository) error {
		st := tx.(*Store)
		if _, err := st.exec.ExecContext(ctx, st.q(`DELETE FROM indexedfields WHERE collectionid = ?`), collectionID); err != nil {
			return st.wrapErr("clear indexed fields", err)
		}
		for _, f := range fields {
			_, err := st.exec.ExecContext(ctx, st.q(`INSERT INTO indexedfields (id, collectionid, fieldpath, createdutc) VALUES (?, ?, ?, ?)`),
				f.ID, collectionID, f.FieldPath, fmtTime(f.CreatedUTC))
			if err != nil {
				return st.wrapErr("insert indexed field", err)
			}
		}
		return nil
	})
}

func (s *Store) ListIndexedFields(ctx context.Context, collectionID string) ([]*types.IndexedField, error) {
	rows, err := s.exec.QueryContext(ctx, s.q(`SELECT id, collectionid, fieldpath, createdutc FROM indexedfields WHERE collectionid = ? ORDER BY fieldpath`), collectionID)
	if err != nil {
		return nil, s.wrapErr("list indexed fields", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.IndexedField
	for rows.Next() {
		var f types.IndexedField
		var created string
		if err := rows.Scan(&f.ID, &f.CollectionID, &f.FieldPath, &created); err != nil {
			return nil, s.wrapErr("scan indexed field", err)
		}
		if f.CreatedUTC, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

func encodeAllowedValues(values []string) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullInt(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}
