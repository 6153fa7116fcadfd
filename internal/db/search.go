package db

import "github.com/kailas-cloud/docdex/internal/domain/search/filter"

// ListQuery is the input for a paged FT.SEARCH.
type ListQuery struct {
	IndexName string
	Filters   filter.Expression
	// Text is an optional full-text query over the TEXT fields of the index.
	Text       string
	Offset     int
	Limit      int
	SortBy     string
	Descending bool
	WithScores bool
	// ReturnFields limits the returned fields; empty returns the whole document.
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
