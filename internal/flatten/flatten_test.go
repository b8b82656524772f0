package flatten

import (
	"errors"
	"reflect"
	"testing"
)

type tuple struct {
	Key      string
	Pos      int // -1 means nil
	Value    string
	Null     bool
	DataType string
}

func project(t *testing.T, input string) []tuple {
	t.Helper()
	values, err := Flatten([]byte(input))
	if err != nil {
		t.Fatalf("Flatten(%s) failed: %v", input, err)
	}
	var out []tuple
	for _, v := range values {
		tp := tuple{Key: v.Key, Pos: -1, DataType: v.DataType}
		if v.Position != nil {
			tp.Pos = *v.Position
		}
		if v.Value != nil {
			tp.Value = *v.Value
		} else {
			tp.Null = true
		}
		out = append(out, tp)
	}
	return out
}

func TestFlattenScalars(t *testing.T) {
	got := project(t, `{"title":"X","year":1999,"rating":4.5,"active":true,"notes":null}`)
	want := []tuple{
		{Key: "title", Pos: -1, Value: "X", DataType: "string"},
		{Key: "year", Pos: -1, Value: "1999", DataType: "integer"},
		{Key: "rating", Pos: -1, Value: "4.5", DataType: "number"},
		{Key: "active", Pos: -1, Value: "true", DataType: "boolean"},
		{Key: "notes", Pos: -1, Null: true, DataType: "null"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v\nwant %+v", got, want)
	}
}

func TestFlattenNestedObject(t *testing.T) {
	got := project(t, `{"a":{"b":{"c":"deep"}}}`)
	want := []tuple{{Key: "a.b.c", Pos: -1, Value: "deep", DataType: "string"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v\nwant %+v", got, want)
	}
}

func TestFlattenArrayOfScalars(t *testing.T) {
	got := project(t, `{"tags":["a","b","c"]}`)
	want := []tuple{
		{Key: "tags", Pos: 0, Value: "a", DataType: "string"},
		{Key: "tags", Pos: 1, Value: "b", DataType: "string"},
		{Key: "tags", Pos: 2, Value: "c", DataType: "string"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v\nwant %+v", got, want)
	}
}

func TestFlattenArrayOfObjects(t *testing.T) {
	// Every primitive leaf of every element carries the element's position.
	got := project(t, `{"items":[{"sku":"a","qty":1},{"sku":"b","qty":2}]}`)
	want := []tuple{
		{Key: "items.sku", Pos: 0, Value: "a", DataType: "string"},
		{Key: "items.qty", Pos: 0, Value: "1", DataType: "integer"},
		{Key: "items.sku", Pos: 1, Value: "b", DataType: "string"},
		{Key: "items.qty", Pos: 1, Value: "2", DataType: "integer"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v\nwant %+v", got, want)
	}
}

func TestFlattenEmptyContainers(t *testing.T) {
	got := project(t, `{"a":{},"b":[],"c":1}`)
	want := []tuple{{Key: "c", Pos: -1, Value: "1", DataType: "integer"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v\nwant %+v", got, want)
	}
}

func TestFlattenBigIntegerStaysRaw(t *testing.T) {
	// Larger than int64: classified as number, raw text preserved.
	got := project(t, `{"n":92233720368547758080}`)
	want := []tuple{{Key: "n", Pos: -1, Value: "92233720368547758080", DataType: "number"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v\nwant %+v", got, want)
	}
}

func TestFlattenInvalidInput(t *testing.T) {
	for _, input := range []string{"", "   ", "{", `{"a":}`, `{"a":1} trailing`} {
		if _, err := Flatten([]byte(input)); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Flatten(%q): expected ErrInvalidInput, got %v", input, err)
		}
	}
}

func TestFlattenDeterminism(t *testing.T) {
	input := `{"z":1,"a":{"m":[1,2]},"k":"v"}`
	first := project(t, input)
	for i := 0; i < 10; i++ {
		if got := project(t, input); !reflect.DeepEqual(got, first) {
			t.Fatalf("non-deterministic flatten on run %d", i)
		}
	}
}

func TestKeys(t *testing.T) {
	values, err := Flatten([]byte(`{"tags":["a","b"],"title":"X","tags2":[{"k":1}]}`))
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}
	got := Keys(values)
	want := []string{"tags", "title", "tags2.k"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Keys = %v, want %v", got, want)
	}
}
