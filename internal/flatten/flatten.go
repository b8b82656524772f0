// Package flatten converts a JSON document into an ordered list of
// (key, position, value, datatype) tuples.
//
// Keys are dot-joined paths. Array elements keep the parent key and carry
// their array position, so an array of objects yields one tuple per
// primitive leaf of every element. Empty objects and arrays produce no
// output. Member order in the input is preserved.
package flatten

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrInvalidInput is returned for empty, whitespace-only, or malformed JSON.
var ErrInvalidInput = errors.New("invalid JSON input")

// Data type names produced by the flattener and schema extractor.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeNull    = "null"
	TypeObject  = "object"
	TypeArray   = "array"
)

// FlattenedValue is one primitive leaf of a flattened document. Position is
// the index within the nearest enclosing array, nil outside arrays. Value is
// nil for JSON null, otherwise the string representation of the leaf.
type FlattenedValue struct {
	Key      string
	Position *int
	Value    *string
	DataType string
}

// Member is one key/value pair of a JSON object, order-preserving.
type Member struct {
	Key   string
	Value any
}

// ParseOrdered decodes JSON into an order-preserving tree: objects become
// []Member, arrays []any, and scalars string, json.Number, bool, or nil.
// Numbers are kept as json.Number so the raw text survives.
func ParseOrdered(data []byte) (any, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidInput)
	}
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()

	v, err := parseValue(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	// Reject trailing content after the first value.
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing content after JSON value", ErrInvalidInput)
	}
	return v, nil
}

func parseValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		// string, json.Number, bool, or nil
		return tok, nil
	}
	switch delim {
	case '{':
		var members []Member
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("object key is not a string: %v", keyTok)
			}
			val, err := parseValue(dec)
			if err != nil {
				return nil, err
			}
			members = append(members, Member{Key: key, Value: val})
		}
		if _, err := dec.Token(); err != nil { // consume '}'
			return nil, err
		}
		return members, nil
	case '[':
		var elems []any
		for dec.More() {
			val, err := parseValue(dec)
			if err != nil {
				return nil, err
			}
			elems = append(elems, val)
		}
		if _, err := dec.Token(); err != nil { // consume ']'
			return nil, err
		}
		return elems, nil
	default:
		return nil, fmt.Errorf("unexpected delimiter %v", delim)
	}
}

// NumberType classifies a JSON number as integer (fits int64) or number.
func NumberType(n json.Number) string {
	if _, err := n.Int64(); err == nil {
		return TypeInteger
	}
	return TypeNumber
}

// ScalarType returns the flattened data type name for a parsed scalar, or
// "" when v is not a scalar.
func ScalarType(v any) string {
	switch t := v.(type) {
	case string:
		return TypeString
	case json.Number:
		return NumberType(t)
	case bool:
		return TypeBoolean
	case nil:
		return TypeNull
	}
	return ""
}

// Flatten parses data and returns its ordered flattened projection.
func Flatten(data []byte) ([]FlattenedValue, error) {
	root, err := ParseOrdered(data)
	if err != nil {
		return nil, err
	}
	var out []FlattenedValue
	walk(&out, "", nil, root)
	return out, nil
}

func walk(out *[]FlattenedValue, key string, pos *int, v any) {
	switch t := v.(type) {
	case []Member:
		for _, m := range t {
			childKey := m.Key
			if key != "" {
				childKey = key + "." + m.Key
			}
			walk(out, childKey, pos, m.Value)
		}
	case []any:
		for i, elem := range t {
			p := i
			walk(out, key, &p, elem)
		}
	case string:
		s := t
		emit(out, key, pos, &s, TypeString)
	case json.Number:
		s := t.String()
		emit(out, key, pos, &s, NumberType(t))
	case bool:
		s := "false"
		if t {
			s = "true"
		}
		emit(out, key, pos, &s, TypeBoolean)
	case nil:
		emit(out, key, pos, nil, TypeNull)
	}
}

func emit(out *[]FlattenedValue, key string, pos *int, value *string, dataType string) {
	var p *int
	if pos != nil {
		v := *pos
		p = &v
	}
	*out = append(*out, FlattenedValue{Key: key, Position: p, Value: value, DataType: dataType})
}

// Keys returns the distinct keys of a projection in first-seen order.
func Keys(values []FlattenedValue) []string {
	seen := make(map[string]bool, len(values))
	var keys []string
	for _, v := range values {
		if !seen[v.Key] {
			seen[v.Key] = true
			keys = append(keys, v.Key)
		}
	}
	return keys
}
