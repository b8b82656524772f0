package types

// FilterCondition is a comparison applied to one flattened field.
type FilterCondition string

const (
	CondEquals             FilterCondition = "Equals"
	CondNotEquals          FilterCondition = "NotEquals"
	CondGreaterThan        FilterCondition = "GreaterThan"
	CondGreaterThanOrEqual FilterCondition = "GreaterThanOrEqual"
	CondLessThan           FilterCondition = "LessThan"
	CondLessThanOrEqual    FilterCondition = "LessThanOrEqual"
	CondContains           FilterCondition = "Contains"
	CondStartsWith         FilterCondition = "StartsWith"
	CondEndsWith           FilterCondition = "EndsWith"
	CondIn                 FilterCondition = "In"
	CondNotIn              FilterCondition = "NotIn"
	CondIsNull             FilterCondition = "IsNull"
	CondIsNotNull          FilterCondition = "IsNotNull"
)

// IsValid reports whether c is a recognized filter condition.
func (c FilterCondition) IsValid() bool {
	switch c {
	case CondEquals, CondNotEquals, CondGreaterThan, CondGreaterThanOrEqual,
		CondLessThan, CondLessThanOrEqual, CondContains, CondStartsWith,
		CondEndsWith, CondIn, CondNotIn, CondIsNull, CondIsNotNull:
		return true
	}
	return false
}

// SearchOrdering selects how search results are sorted.
type SearchOrdering string

const (
	OrderCreatedAscending  SearchOrdering = "CreatedAscending"
	OrderCreatedDescending SearchOrdering = "CreatedDescending"
	OrderName              SearchOrdering = "Name"
	OrderSize              SearchOrdering = "Size"
)

// SearchFilter is one structured predicate against a flattened field path.
// Value holds the comparison operand; for In/NotIn, Values holds the list.
type SearchFilter struct {
	Field     string          `json:"field"`
	Condition FilterCondition `json:"condition"`
	Value     string          `json:"value,omitempty"`
	Values    []string        `json:"values,omitempty"`
}

// SearchRequest is a structured or SQL-like search over one collection.
// Expression and Filters are mutually exclusive; when both are set the
// expression wins.
type SearchRequest struct {
	Expression     string            `json:"sqlExpression,omitempty"`
	Filters        []SearchFilter    `json:"filters,omitempty"`
	Labels         []string          `json:"labels,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
	MaxResults     int               `json:"maxResults,omitempty"`
	Skip           int               `json:"skip,omitempty"`
	Ordering       SearchOrdering    `json:"ordering,omitempty"`
	IncludeContent bool              `json:"includeContent,omitempty"`
}

// SearchResult carries the matched documents plus paging bookkeeping.
type SearchResult struct {
	Documents    []*Document `json:"documents"`
	MatchCount   int         `json:"matchCount"`
	Skip         int         `json:"skip"`
	MaxResults   int         `json:"maxResults"`
	EndOfResults bool        `json:"endOfResults"`
}

// IndexRebuildResult summarizes one index rebuild pass.
type IndexRebuildResult struct {
	IndexesAdded       int `json:"indexesAdded"`
	IndexesDropped     int `json:"indexesDropped"`
	DocumentsProcessed int `json:"documentsProcessed"`
}
