package chi

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/kailas-cloud/docdex"
)

// ErrorCode identifies an error class in API responses.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest       ErrorCode = "bad_request"
	CodeUnauthorized     ErrorCode = "unauthorized"
	CodeValidationFailed ErrorCode = "validation_failed"
	CodeDocumentNotFound ErrorCode = "document_not_found"
	CodeUnknownKind      ErrorCode = "unknown_kind"
	CodeIndexNotReady    ErrorCode = "index_not_ready"
	CodeUnavailable      ErrorCode = "unavailable"
	CodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// DocumentResponse is a materialized document.
type DocumentResponse struct {
	Index   string         `json:"_index"`
	Type    string         `json:"_type"`
	ID      string         `json:"_id"`
	Version int64          `json:"_version"`
	Kind    string         `json:"_kind"`
	Score   *float64       `json:"_score,omitempty"`
	Source  map[string]any `json:"_source"`
}

// SearchResponse is the body of a search.
type SearchResponse struct {
	Total int                `json:"total"`
	Hits  []DocumentResponse `json:"hits"`
}

// CountResponse is the body of a count.
type CountResponse struct {
	Count int `json:"count"`
}

// HealthResponse is the body of a health check.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// SearchRequest is the body of POST /{index}/{type}/_search.
type SearchRequest struct {
	Filters *FilterExpression `json:"filters,omitempty"`
	Text    string            `json:"text,omitempty"`
	Offset  int               `json:"offset,omitempty"`
	Limit   *int              `json:"limit,omitempty"`
	SortBy  string            `json:"sort_by,omitempty"`
	Order   string            `json:"order,omitempty"` // asc (default), desc
}

// FilterExpression is a boolean filter.
type FilterExpression struct {
	Must    []FilterCondition `json:"must,omitempty"`
	Should  []FilterCondition `json:"should,omitempty"`
	MustNot []FilterCondition `json:"must_not,omitempty"`
}

// FilterCondition is an exact match or a numeric range on one field.
type FilterCondition struct {
	Key   string       `json:"key"`
	Match *string      `json:"match,omitempty"`
	Range *RangeFilter `json:"range,omitempty"`
}

// RangeFilter bounds a numeric field.
type RangeFilter struct {
	GT  *float64 `json:"gt,omitempty"`
	GTE *float64 `json:"gte,omitempty"`
	LT  *float64 `json:"lt,omitempty"`
	LTE *float64 `json:"lte,omitempty"`
}

var errBadCondition = errors.New("condition needs exactly one of match or range")

func documentToResponse(doc *docdex.Document) DocumentResponse {
	return DocumentResponse{
		Index:   doc.Index(),
		Type:    doc.Type(),
		ID:      doc.ID(),
		Version: doc.Version(),
		Kind:    doc.Kind().Name(),
		Source:  doc.Source(),
	}
}

func (s *Server) searchRequestFromDTO(req SearchRequest) (*docdex.SearchRequest, error) {
	limit := s.defaultLimit
	if req.Limit != nil {
		limit = *req.Limit
	}
	if limit <= 0 || limit > s.maxLimit {
		return nil, fmt.Errorf("limit must be between 1 and %d, got %d", s.maxLimit, limit)
	}
	if req.Offset < 0 {
		return nil, fmt.Errorf("offset must not be negative, got %d", req.Offset)
	}

	var desc bool
	switch req.Order {
	case "", "asc":
	case "desc":
		desc = true
	default:
		return nil, fmt.Errorf("order must be \"asc\" or \"desc\", got %q", req.Order)
	}

	var q docdex.Query
	if req.Filters != nil {
		var err error
		if q.Must, err = conditionsFromDTO(req.Filters.Must); err != nil {
			return nil, fmt.Errorf("must: %w", err)
		}
		if q.Should, err = conditionsFromDTO(req.Filters.Should); err != nil {
			return nil, fmt.Errorf("should: %w", err)
		}
		if q.MustNot, err = conditionsFromDTO(req.Filters.MustNot); err != nil {
			return nil, fmt.Errorf("must_not: %w", err)
		}
	}

	return &docdex.SearchRequest{
		Query:      q,
		Text:       req.Text,
		Offset:     req.Offset,
		Limit:      limit,
		SortBy:     req.SortBy,
		Descending: desc,
		Resolve:    true,
	}, nil
}

func conditionsFromDTO(conds []FilterCondition) ([]docdex.Condition, error) {
	if len(conds) == 0 {
		return nil, nil
	}
	out := make([]docdex.Condition, len(conds))
	for i, c := range conds {
		if (c.Match == nil) == (c.Range == nil) {
			return nil, fmt.Errorf("filter %q: %w", c.Key, errBadCondition)
		}
		out[i] = docdex.Condition{Field: c.Key}
		if c.Match != nil {
			out[i].Match = *c.Match
			continue
		}
		out[i].Range = &docdex.Range{GT: c.Range.GT, GTE: c.Range.GTE, LT: c.Range.LT, LTE: c.Range.LTE}
	}
	return out, nil
}

// queryFromParams turns every query parameter except "kind" into a must
// match, in key order.
func queryFromParams(r *http.Request) docdex.Query {
	params := r.URL.Query()
	keys := make([]string, 0, len(params))
	for k := range params {
		if k != "kind" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var q docdex.Query
	for _, k := range keys {
		for _, v := range params[k] {
			q.Must = append(q.Must, docdex.Match(k, v))
		}
	}
	return q
}
