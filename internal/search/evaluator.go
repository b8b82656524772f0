package search

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lattice-db/lattice/internal/flatten"
	"github.com/lattice-db/lattice/internal/types"
)

// Projection indexes a document's flattened leaves by field path for
// evaluation.
type Projection map[string][]flatten.FlattenedValue

// NewProjection builds the evaluation view of one flattened document.
func NewProjection(values []flatten.FlattenedValue) Projection {
	p := make(Projection, len(values))
	for _, v := range values {
		p[v.Key] = append(p[v.Key], v)
	}
	return p
}

// Evaluate reports whether the document projection satisfies the expression.
// A comparison matches when ANY leaf at the field path satisfies it, so a
// predicate on an array field matches documents where some element matches.
func Evaluate(node Node, p Projection) (bool, error) {
	switch n := node.(type) {
	case *AndNode:
		left, err := Evaluate(n.Left, p)
		if err != nil || !left {
			return false, err
		}
		return Evaluate(n.Right, p)
	case *OrNode:
		left, err := Evaluate(n.Left, p)
		if err != nil || left {
			return left, err
		}
		return Evaluate(n.Right, p)
	case *NotNode:
		matched, err := Evaluate(n.Operand, p)
		if err != nil {
			return false, err
		}
		return !matched, nil
	case *ComparisonNode:
		return evaluateComparison(n, p)
	default:
		return false, fmt.Errorf("unknown AST node type %T", node)
	}
}

func evaluateComparison(n *ComparisonNode, p Projection) (bool, error) {
	entries := p[n.Field]

	switch n.Condition {
	case types.CondIsNull:
		// An absent field and an explicit null both read as null.
		if len(entries) == 0 {
			return true, nil
		}
		for _, e := range entries {
			if e.Value == nil {
				return true, nil
			}
		}
		return false, nil
	case types.CondIsNotNull:
		for _, e := range entries {
			if e.Value != nil {
				return true, nil
			}
		}
		return false, nil
	}

	for _, e := range entries {
		if e.Value == nil {
			continue
		}
		matched, err := compareLeaf(n, e)
		if err != nil {
			return false, err
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}

func compareLeaf(n *ComparisonNode, e flatten.FlattenedValue) (bool, error) {
	value := *e.Value

	switch n.Condition {
	case types.CondEquals:
		return value == n.Value, nil
	case types.CondNotEquals:
		return value != n.Value, nil
	case types.CondGreaterThan, types.CondGreaterThanOrEqual, types.CondLessThan, types.CondLessThanOrEqual:
		cmp, ok := orderLeaf(n, e, value)
		if !ok {
			return false, nil
		}
		switch n.Condition {
		case types.CondGreaterThan:
			return cmp > 0, nil
		case types.CondGreaterThanOrEqual:
			return cmp >= 0, nil
		case types.CondLessThan:
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	case types.CondContains:
		return strings.Contains(value, n.Value), nil
	case types.CondStartsWith:
		return strings.HasPrefix(value, n.Value), nil
	case types.CondEndsWith:
		return strings.HasSuffix(value, n.Value), nil
	case types.CondIn:
		return containsValue(n.Values, value), nil
	case types.CondNotIn:
		return !containsValue(n.Values, value), nil
	default:
		return false, fmt.Errorf("unsupported condition %q", n.Condition)
	}
}

// orderLeaf returns the sign of value compared to the operand, or ok=false
// when the leaf cannot be ordered against it. Ordering is numeric when both
// sides are numbers; equality, by contrast, compares the raw stored text so
// the in-memory path agrees with the index-table prefilter, which compares
// the same TEXT column.
func orderLeaf(n *ComparisonNode, e flatten.FlattenedValue, value string) (int, bool) {
	if n.Numeric {
		if !isNumericLeaf(e) {
			return 0, false
		}
		a, errA := strconv.ParseFloat(value, 64)
		b, errB := strconv.ParseFloat(n.Value, 64)
		if errA != nil || errB != nil {
			return 0, false
		}
		switch {
		case a < b:
			return -1, true
		case a > b:
			return 1, true
		default:
			return 0, true
		}
	}
	return strings.Compare(value, n.Value), true
}

func isNumericLeaf(e flatten.FlattenedValue) bool {
	return e.DataType == flatten.TypeInteger || e.DataType == flatten.TypeNumber
}

func containsValue(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
