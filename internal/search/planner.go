package search

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/lattice-db/lattice/internal/storage"
	"github.com/lattice-db/lattice/internal/types"
)

// Plan is the candidate-narrowing strategy for one search. When SQL is
// non-empty it selects candidate document IDs by joining the per-key index
// tables; the evaluator still confirms every candidate, so the plan only
// has to be a superset of the true matches.
type Plan struct {
	SQL      string
	Args     []any
	FullScan bool
}

// planner builds index-table prefilters for expressions it can narrow.
type planner struct {
	repo storage.Repository
}

// plan returns the narrowing strategy for node over one collection. Only a
// pure conjunction of comparisons can be pushed into SQL: OR and NOT anywhere
// force a full scan, as does a conjunction with no sargable atom.
func (pl *planner) plan(ctx context.Context, collectionID string, node Node) (Plan, error) {
	atoms, pureAnd := conjunctiveAtoms(node)
	if !pureAnd {
		return Plan{FullScan: true}, nil
	}

	var (
		joins []string
		args  []any
		n     int
	)
	for _, atom := range atoms {
		pred, predArgs, sargable := atomPredicate(atom, n)
		if !sargable {
			continue
		}
		mapping, err := pl.repo.GetIndexTableMapping(ctx, atom.Field)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				// Key never indexed; the evaluator handles it.
				continue
			}
			return Plan{}, err
		}
		alias := alias(n)
		joins = append(joins, "JOIN "+mapping.TableName+" "+alias+" ON "+alias+".documentid = d.id AND "+pred)
		args = append(args, predArgs...)
		n++
	}
	if len(joins) == 0 {
		return Plan{FullScan: true}, nil
	}

	sql := "SELECT DISTINCT d.id FROM documents d " + strings.Join(joins, " ") +
		" WHERE d.collectionid = ? ORDER BY d.id"
	args = append(args, collectionID)
	return Plan{SQL: sql, Args: args}, nil
}

// conjunctiveAtoms flattens an AND-only tree into its comparisons. The
// second return is false when the tree contains OR or NOT.
func conjunctiveAtoms(node Node) ([]*ComparisonNode, bool) {
	switch n := node.(type) {
	case *ComparisonNode:
		return []*ComparisonNode{n}, true
	case *AndNode:
		left, ok := conjunctiveAtoms(n.Left)
		if !ok {
			return nil, false
		}
		right, ok := conjunctiveAtoms(n.Right)
		if !ok {
			return nil, false
		}
		return append(left, right...), true
	default:
		return nil, false
	}
}

// atomPredicate renders the index-table predicate for one comparison, or
// sargable=false for conditions that cannot safely narrow candidates.
// Ordering comparisons stay out: index values are TEXT, and lexicographic
// order disagrees with numeric order.
func atomPredicate(atom *ComparisonNode, n int) (string, []any, bool) {
	col := alias(n) + ".value"
	switch atom.Condition {
	case types.CondEquals:
		return col + " = ?", []any{atom.Value}, true
	case types.CondIn:
		if len(atom.Values) == 0 {
			return "", nil, false
		}
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(atom.Values)), ", ")
		args := make([]any, len(atom.Values))
		for i, v := range atom.Values {
			args[i] = v
		}
		return col + " IN (" + marks + ")", args, true
	case types.CondContains:
		return col + " LIKE ?", []any{"%" + atom.Value + "%"}, true
	case types.CondStartsWith:
		return col + " LIKE ?", []any{atom.Value + "%"}, true
	case types.CondEndsWith:
		return col + " LIKE ?", []any{"%" + atom.Value}, true
	case types.CondIsNotNull:
		return col + " IS NOT NULL", nil, true
	default:
		return "", nil, false
	}
}

func alias(n int) string {
	return "e" + strconv.Itoa(n)
}
