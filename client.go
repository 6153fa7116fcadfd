package docdex

import "context"

// Record is a raw document as held by the engine.
type Record struct {
	ID      string
	Version int64
	// Found is false for MGet entries whose id does not exist.
	Found  bool
	Score  float64
	Source map[string]any
}

// UpdateBody is a partial update with an optional upsert fallback.
type UpdateBody struct {
	Doc    map[string]any `json:"doc"`
	Upsert map[string]any `json:"upsert,omitempty"`
}

// Ack acknowledges a write.
type Ack struct {
	ID      string
	Version int64
	Created bool
}

// Client is the search engine collaborator. Every operation is addressed
// by index and type, plus an id where one applies.
//
// Implementations return ErrNotFound (wrapped or not) for absent documents
// and pass transport failures through unchanged.
type Client interface {
	Get(ctx context.Context, index, docType, id string) (Record, error)
	// MGet returns one record per id, in input order. Missing ids have Found == false.
	MGet(ctx context.Context, index, docType string, ids []string) ([]Record, error)
	Search(ctx context.Context, index, docType string, req *SearchRequest) (*SearchResponse, error)
	Count(ctx context.Context, index, docType string, q Query) (int, error)
	Index(ctx context.Context, index, docType, id string, body map[string]any) (Ack, error)
	Update(ctx context.Context, index, docType, id string, body UpdateBody) (Ack, error)
	Delete(ctx context.Context, index, docType, id string) (Ack, error)
	Refresh(ctx context.Context, index string) error
}

// IndexEnsurer is implemented by clients that need an explicit search
// schema before documents can be queried.
type IndexEnsurer interface {
	EnsureIndex(ctx context.Context, index, docType string, fields []IndexedField) error
}
