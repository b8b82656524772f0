// Package validation evaluates a collection's field constraints against the
// flattened projection of a candidate document.
package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/lattice-db/lattice/internal/flatten"
	"github.com/lattice-db/lattice/internal/types"
)

// Issue is one validation failure, tied to the constraint's field path.
type Issue struct {
	FieldPath string `json:"fieldPath"`
	Message   string `json:"message"`
}

// Result is the outcome of validating one document. Errors are ordered by
// field path so results are deterministic.
type Result struct {
	OK     bool    `json:"ok"`
	Errors []Issue `json:"errors,omitempty"`
}

// Validate checks every constraint against the projection. A nil or empty
// constraint set always validates.
func Validate(constraints []*types.FieldConstraint, projection []flatten.FlattenedValue) Result {
	v := &validator{byKey: make(map[string][]flatten.FlattenedValue, len(projection))}
	for _, fv := range projection {
		v.byKey[fv.Key] = append(v.byKey[fv.Key], fv)
	}

	for _, c := range constraints {
		v.check(c)
	}

	sort.SliceStable(v.issues, func(i, j int) bool {
		if v.issues[i].FieldPath != v.issues[j].FieldPath {
			return v.issues[i].FieldPath < v.issues[j].FieldPath
		}
		return v.issues[i].Message < v.issues[j].Message
	})
	return Result{OK: len(v.issues) == 0, Errors: v.issues}
}

type validator struct {
	byKey  map[string][]flatten.FlattenedValue
	issues []Issue
}

func (v *validator) fail(fieldPath, format string, args ...any) {
	v.issues = append(v.issues, Issue{FieldPath: fieldPath, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) check(c *types.FieldConstraint) {
	entries := v.byKey[c.FieldPath]

	if c.Required && len(entries) == 0 {
		v.fail(c.FieldPath, "required field is missing")
		return
	}

	for _, entry := range entries {
		v.checkEntry(c, entry)
	}

	if c.ArrayElementType != "" {
		for _, entry := range entries {
			if entry.Position == nil {
				continue
			}
			if entry.DataType != c.ArrayElementType {
				v.fail(c.FieldPath, "array element at position %d has type %s, expected %s",
					*entry.Position, entry.DataType, c.ArrayElementType)
			}
		}
	}
}

func (v *validator) checkEntry(c *types.FieldConstraint, entry flatten.FlattenedValue) {
	isNull := entry.DataType == flatten.TypeNull

	if isNull && !c.IsNullable() {
		v.fail(c.FieldPath, "null value not allowed")
		return
	}

	if c.DataType != "" && entry.DataType != c.DataType {
		// A null entry passes the type check when the constraint is nullable.
		if !(isNull && c.IsNullable()) {
			v.fail(c.FieldPath, "has type %s, expected %s", entry.DataType, c.DataType)
			return
		}
	}

	if isNull || entry.Value == nil {
		// Remaining checks operate on the value.
		return
	}
	value := *entry.Value

	if c.RegexPattern != "" {
		re, err := regexp.Compile(c.RegexPattern)
		if err != nil {
			v.fail(c.FieldPath, "invalid regex pattern: %v", err)
		} else if !re.MatchString(value) {
			v.fail(c.FieldPath, "value does not match pattern %s", c.RegexPattern)
		}
	}

	if c.MinLength != nil && len(value) < *c.MinLength {
		v.fail(c.FieldPath, "length %d is below minimum %d", len(value), *c.MinLength)
	}
	if c.MaxLength != nil && len(value) > *c.MaxLength {
		v.fail(c.FieldPath, "length %d exceeds maximum %d", len(value), *c.MaxLength)
	}

	if (c.MinValue != nil || c.MaxValue != nil) && isNumericType(entry.DataType) {
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			v.fail(c.FieldPath, "value %q is not numeric", value)
		} else {
			if c.MinValue != nil && n < *c.MinValue {
				v.fail(c.FieldPath, "value %v is below minimum %v", n, *c.MinValue)
			}
			if c.MaxValue != nil && n > *c.MaxValue {
				v.fail(c.FieldPath, "value %v exceeds maximum %v", n, *c.MaxValue)
			}
		}
	}

	if len(c.AllowedValues) > 0 && !containsString(c.AllowedValues, value) {
		v.fail(c.FieldPath, "value %q is not in the allowed set", value)
	}
}

func isNumericType(t string) bool {
	return t == flatten.TypeInteger || t == flatten.TypeNumber
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
