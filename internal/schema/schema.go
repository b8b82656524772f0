// Package schema extracts structural fingerprints from JSON documents.
//
// A schema is the ordered list of (key, dataType, nullable) elements found
// by a depth-first walk of the document, plus a stable content hash used to
// deduplicate schemas across documents. The hash is invariant under object
// key reordering and independent of nullability.
package schema

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/lattice-db/lattice/internal/flatten"
	"github.com/lattice-db/lattice/internal/hashing"
)

// Element is one extracted schema element. Position reflects extraction
// order; Key is the dot-joined path.
type Element struct {
	Position int
	Key      string
	DataType string
	Nullable bool
}

// Extract walks the JSON document depth-first and returns its ordered
// element list. Scalar leaves yield one element each; an array yields a
// single "array<T>" element (T from the first array element, bare "array"
// when empty) and, when the first element is an object, its leaves too.
func Extract(data []byte) ([]Element, error) {
	root, err := flatten.ParseOrdered(data)
	if err != nil {
		return nil, err
	}
	e := &extractor{}
	e.walk("", root)
	return e.elements, nil
}

type extractor struct {
	elements []Element
}

func (e *extractor) emit(key, dataType string, nullable bool) {
	e.elements = append(e.elements, Element{
		Position: len(e.elements),
		Key:      key,
		DataType: dataType,
		Nullable: nullable,
	})
}

func (e *extractor) walk(key string, v any) {
	switch t := v.(type) {
	case []flatten.Member:
		for _, m := range t {
			childKey := m.Key
			if key != "" {
				childKey = key + "." + m.Key
			}
			e.walkValue(childKey, m.Value)
		}
	default:
		// Non-object roots degenerate to a single element at the empty path.
		e.walkValue(key, v)
	}
}

func (e *extractor) walkValue(key string, v any) {
	switch t := v.(type) {
	case []flatten.Member:
		e.walk(key, t)
	case []any:
		e.emit(key, arrayType(t), true)
		if len(t) > 0 {
			if obj, ok := t[0].([]flatten.Member); ok {
				e.walk(key, obj)
			}
		}
	case string:
		e.emit(key, flatten.TypeString, false)
	case json.Number:
		e.emit(key, flatten.NumberType(t), false)
	case bool:
		e.emit(key, flatten.TypeBoolean, false)
	case nil:
		e.emit(key, flatten.TypeNull, true)
	}
}

// arrayType names an array's element type from its first element.
func arrayType(elems []any) string {
	if len(elems) == 0 {
		return flatten.TypeArray
	}
	switch elems[0].(type) {
	case []flatten.Member:
		return flatten.TypeArray + "<" + flatten.TypeObject + ">"
	case []any:
		return flatten.TypeArray + "<" + flatten.TypeArray + ">"
	default:
		return flatten.TypeArray + "<" + flatten.ScalarType(elems[0]) + ">"
	}
}

// Hash computes the stable fingerprint of an element list:
// SHA-256 over "key:dataType" pairs sorted by key then dataType, joined
// with ";". Nullability does not participate.
func Hash(elements []Element) string {
	pairs := make([]string, len(elements))
	for i, el := range elements {
		pairs[i] = el.Key + ":" + el.DataType
	}
	sort.Strings(pairs)
	return hashing.SHA256Hex([]byte(strings.Join(pairs, ";")))
}

// Match reports whether two element lists describe the same shape.
//
// Strict mode requires identical multisets of (key, dataType). Flexible mode
// tolerates a key missing from one side when the side that has it marks it
// nullable, and treats integer/number as interchangeable and null as
// compatible with anything.
func Match(a, b []Element, flexible bool) bool {
	if !flexible {
		return multiset(a) == multiset(b)
	}

	byKeyA := byKey(a)
	byKeyB := byKey(b)

	for key, ea := range byKeyA {
		eb, ok := byKeyB[key]
		if !ok {
			if !ea.Nullable {
				return false
			}
			continue
		}
		if !typesCompatible(ea.DataType, eb.DataType) {
			return false
		}
	}
	for key, eb := range byKeyB {
		if _, ok := byKeyA[key]; !ok && !eb.Nullable {
			return false
		}
	}
	return true
}

func multiset(elements []Element) string {
	pairs := make([]string, len(elements))
	for i, el := range elements {
		pairs[i] = el.Key + ":" + el.DataType
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ";")
}

func byKey(elements []Element) map[string]Element {
	m := make(map[string]Element, len(elements))
	for _, el := range elements {
		if _, ok := m[el.Key]; !ok {
			m[el.Key] = el
		}
	}
	return m
}

func typesCompatible(a, b string) bool {
	if a == b {
		return true
	}
	if a == flatten.TypeNull || b == flatten.TypeNull {
		return true
	}
	numeric := func(t string) bool {
		return t == flatten.TypeInteger || t == flatten.TypeNumber
	}
	return numeric(a) && numeric(b)
}
