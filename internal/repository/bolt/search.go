package bolt

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"go.etcd.io/bbolt"

	"github.com/kailas-cloud/docdex"
	"github.com/kailas-cloud/docdex/internal/domain/search/filter"
)

type hit struct {
	rec   docdex.Record
	score float64
}

// Search scans the type bucket, keeps the documents matching the filter
// and the text terms, sorts and pages them.
func (r *Repo) Search(
	ctx context.Context, index, docType string, req *docdex.SearchRequest,
) (*docdex.SearchResponse, error) {
	expr, err := req.Query.Expression()
	if err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	hits, err := r.scan(ctx, index, docType, expr, req.Text)
	if err != nil {
		return nil, err
	}
	if req.SortBy != "" {
		sortHits(hits, req.SortBy, req.Descending)
	} else if req.Text != "" {
		slices.SortStableFunc(hits, func(a, b hit) int { return cmp.Compare(b.score, a.score) })
	}

	resp := &docdex.SearchResponse{Total: len(hits), Hits: []docdex.Record{}}
	start := min(max(req.Offset, 0), len(hits))
	end := min(start+limit, len(hits))
	for _, h := range hits[start:end] {
		h.rec.Score = h.score
		resp.Hits = append(resp.Hits, h.rec)
	}
	return resp, nil
}

// Count returns the number of documents matching q.
func (r *Repo) Count(ctx context.Context, index, docType string, q docdex.Query) (int, error) {
	expr, err := q.Expression()
	if err != nil {
		return 0, err
	}
	hits, err := r.scan(ctx, index, docType, expr, "")
	if err != nil {
		return 0, err
	}
	return len(hits), nil
}

func (r *Repo) scan(ctx context.Context, index, docType string, expr filter.Expression, text string) ([]hit, error) {
	terms := strings.Fields(strings.ToLower(text))
	var hits []hit
	err := r.db.View(func(tx *bbolt.Tx) error {
		textFields, err := loadTextFields(tx, index, docType)
		if err != nil {
			return err
		}
		b := typeBucket(tx, index, docType)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			env, err := decode(string(k), v)
			if err != nil {
				return err
			}
			if !expr.Matches(env.Source) {
				return nil
			}
			score := 0.0
			if len(terms) > 0 {
				var ok bool
				if score, ok = textScore(env.Source, textFields, terms); !ok {
					return nil
				}
			}
			hits = append(hits, hit{rec: env.record(string(k)), score: score})
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("bolt: scan %s/%s: %w", index, docType, err)
	}
	return hits, nil
}

// loadTextFields returns the TEXT fields recorded by EnsureIndex, or nil
// when the index/type has no schema.
func loadTextFields(tx *bbolt.Tx, index, docType string) ([]string, error) {
	raw := tx.Bucket(schemasBucket).Get(schemaKey(index, docType))
	if raw == nil {
		return nil, nil
	}
	var fields []docdex.IndexedField
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	out := []string{}
	for _, f := range fields {
		if f.Type == docdex.FieldText {
			out = append(out, f.Name)
		}
	}
	return out, nil
}

// textScore requires every term to occur in one of the fields and counts
// the occurrences. A nil field list searches every string value.
func textScore(src map[string]any, fields []string, terms []string) (float64, bool) {
	var values []string
	if fields == nil {
		for _, v := range src {
			if s, ok := v.(string); ok {
				values = append(values, strings.ToLower(s))
			}
		}
	} else {
		for _, f := range fields {
			if s, ok := src[f].(string); ok {
				values = append(values, strings.ToLower(s))
			}
		}
	}

	score := 0
	for _, t := range terms {
		n := 0
		for _, v := range values {
			n += strings.Count(v, t)
		}
		if n == 0 {
			return 0, false
		}
		score += n
	}
	return float64(score), true
}

// sortHits orders by field. Documents without a comparable value go last
// in both directions; ties keep id order.
func sortHits(hits []hit, field string, desc bool) {
	slices.SortStableFunc(hits, func(a, b hit) int {
		av, aok := sortKey(a.rec.Source[field])
		bv, bok := sortKey(b.rec.Source[field])
		switch {
		case !aok && !bok:
			return 0
		case !aok:
			return 1
		case !bok:
			return -1
		}
		c := compareKeys(av, bv)
		if desc {
			return -c
		}
		return c
	})
}

func sortKey(v any) (any, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		return x, true
	case bool:
		if x {
			return 1.0, true
		}
		return 0.0, true
	default:
		return nil, false
	}
}

// compareKeys orders numbers before strings.
func compareKeys(a, b any) int {
	af, aNum := a.(float64)
	bf, bNum := b.(float64)
	switch {
	case aNum && bNum:
		return cmp.Compare(af, bf)
	case aNum:
		return -1
	case bNum:
		return 1
	}
	return strings.Compare(a.(string), b.(string))
}
