package docdex

import (
	"fmt"

	"github.com/kailas-cloud/docdex/internal/domain/search/filter"
)

// FieldType is the search indexing type of a property.
type FieldType string

// Supported field types.
const (
	FieldTag     FieldType = "tag"
	FieldNumeric FieldType = "numeric"
	FieldText    FieldType = "text"
)

// IndexedField describes a searchable property by storage name.
type IndexedField struct {
	Name string
	Type FieldType
}

// Query is a boolean filter over indexed fields.
type Query struct {
	Must    []Condition
	Should  []Condition
	MustNot []Condition
}

// IsEmpty reports whether q has no conditions.
func (q Query) IsEmpty() bool {
	return len(q.Must) == 0 && len(q.Should) == 0 && len(q.MustNot) == 0
}

// Condition is either an exact tag match or a numeric range.
type Condition struct {
	Field string
	Match string
	Range *Range
}

// Range bounds a numeric field. gt/gte and lt/lte are mutually exclusive.
type Range struct {
	GT  *float64
	GTE *float64
	LT  *float64
	LTE *float64
}

// Match builds an exact match condition.
func Match(field, value string) Condition {
	return Condition{Field: field, Match: value}
}

// Between builds an inclusive numeric range condition.
func Between(field string, lo, hi float64) Condition {
	return Condition{Field: field, Range: &Range{GTE: &lo, LTE: &hi}}
}

// SearchRequest is a query against one index/type.
type SearchRequest struct {
	Query Query
	// Text is an optional full-text query over text fields.
	Text       string
	Offset     int
	Limit      int
	SortBy     string
	Descending bool
	// Resolve converts hits into documents.
	Resolve bool
}

// SearchResponse is what the engine returns for a search.
type SearchResponse struct {
	Total int
	Hits  []Record
	// Meta carries engine specific data untouched.
	Meta map[string]any
}

// Hit is a search hit, resolved into a document when requested.
type Hit struct {
	Record   Record
	Document *Document
}

// SearchResult is the outcome of Kind.Search.
type SearchResult struct {
	Total int
	Hits  []Hit
	Meta  map[string]any
}

// Expression converts q into the engine filter representation.
func (q Query) Expression() (filter.Expression, error) {
	must, err := toConditions(q.Must)
	if err != nil {
		return filter.Expression{}, fmt.Errorf("filter must: %w", err)
	}
	should, err := toConditions(q.Should)
	if err != nil {
		return filter.Expression{}, fmt.Errorf("filter should: %w", err)
	}
	mustNot, err := toConditions(q.MustNot)
	if err != nil {
		return filter.Expression{}, fmt.Errorf("filter must_not: %w", err)
	}
	expr, err := filter.NewExpression(must, should, mustNot)
	if err != nil {
		return filter.Expression{}, fmt.Errorf("filter expression: %w: %w", ErrInvalidQuery, err)
	}
	return expr, nil
}

func toConditions(conds []Condition) ([]filter.Condition, error) {
	if len(conds) == 0 {
		return nil, nil
	}
	out := make([]filter.Condition, len(conds))
	for i, c := range conds {
		var err error
		if c.Range != nil {
			r, rerr := filter.NewRangeFilter(c.Range.GT, c.Range.GTE, c.Range.LT, c.Range.LTE)
			if rerr != nil {
				return nil, fmt.Errorf("filter %q: %w: %w", c.Field, ErrInvalidQuery, rerr)
			}
			out[i], err = filter.NewRange(c.Field, r)
		} else {
			out[i], err = filter.NewMatch(c.Field, c.Match)
		}
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w: %w", c.Field, ErrInvalidQuery, err)
		}
	}
	return out, nil
}
