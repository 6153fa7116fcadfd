package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex"
	"github.com/kailas-cloud/docdex/internal/db"
)

// store is the consumer interface for documents (ISP).
type store interface {
	JSONSet(ctx context.Context, key, path string, data []byte) error
	JSONSetMulti(ctx context.Context, items []db.JSONSetItem) error
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
	JSONMGet(ctx context.Context, keys []string, path string) ([][]byte, error)
	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	IncrBy(ctx context.Context, key string, val int64) (int64, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexInfo(ctx context.Context, name string) (*db.IndexInfo, error)
	ListIndexes(ctx context.Context) ([]string, error)
	Search(ctx context.Context, q *db.ListQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, q *db.ListQuery) (int, error)
}

// Compile-time checks.
var (
	_ docdex.Client       = (*Repo)(nil)
	_ docdex.IndexEnsurer = (*Repo)(nil)
)

// Default settings.
const (
	DefaultLimit          = 10
	DefaultRefreshTimeout = 5 * time.Second
	refreshPollInterval   = 50 * time.Millisecond
)

// Repo implements docdex.Client on Redis JSON documents. A document lives
// at {prefix}{index}:{type}:{id}; its version counter at
// {prefix}__version:{index}:{type}:{id}.
type Repo struct {
	store          store
	prefix         string
	refreshTimeout time.Duration
	logger         *zap.Logger
}

// Option configures a Repo.
type Option func(*Repo)

// WithKeyPrefix namespaces every key and index name.
func WithKeyPrefix(p string) Option {
	return func(r *Repo) { r.prefix = p }
}

// WithRefreshTimeout bounds how long Refresh waits for background indexing.
func WithRefreshTimeout(d time.Duration) Option {
	return func(r *Repo) {
		if d > 0 {
			r.refreshTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Repo) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a document repository.
func New(s store, opts ...Option) *Repo {
	r := &Repo{store: s, refreshTimeout: DefaultRefreshTimeout, logger: zap.NewNop()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Get returns a document by id.
func (r *Repo) Get(ctx context.Context, index, docType, id string) (docdex.Record, error) {
	key := r.docKey(index, docType, id)
	raw, err := r.store.JSONGet(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return docdex.Record{}, fmt.Errorf("%s: %w", key, docdex.ErrNotFound)
		}
		return docdex.Record{}, fmt.Errorf("json.get %s: %w", key, err)
	}
	rec, err := parseRecord(id, raw)
	if err != nil {
		return docdex.Record{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return rec, nil
}

// MGet fetches ids with one JSON.MGET.
func (r *Repo) MGet(ctx context.Context, index, docType string, ids []string) ([]docdex.Record, error) {
	if len(ids) == 0 {
		return []docdex.Record{}, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.docKey(index, docType, id)
	}

	raws, err := r.store.JSONMGet(ctx, keys, "$")
	if err != nil {
		return nil, fmt.Errorf("json.mget %s:%s: %w", index, docType, err)
	}

	out := make([]docdex.Record, len(ids))
	for i, raw := range raws {
		out[i].ID = ids[i]
		if raw == nil {
			continue
		}
		rec, err := parsePathRecord(ids[i], raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		out[i] = rec
	}
	return out, nil
}

// Search runs a filtered, sorted page over the index/type.
func (r *Repo) Search(
	ctx context.Context, index, docType string, req *docdex.SearchRequest,
) (*docdex.SearchResponse, error) {
	q, err := r.listQuery(index, docType, req.Query, req.Text)
	if err != nil {
		return nil, err
	}
	q.Offset = req.Offset
	q.Limit = req.Limit
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	q.SortBy = req.SortBy
	q.Descending = req.Descending
	q.WithScores = req.Text != ""

	res, err := r.store.Search(ctx, q)
	if err != nil {
		return nil, r.searchErr(index, docType, err)
	}

	prefix := r.typePrefix(index, docType)
	resp := &docdex.SearchResponse{
		Total: res.Total,
		Hits:  make([]docdex.Record, 0, len(res.Entries)),
		Meta:  map[string]any{"index": q.IndexName},
	}
	for _, e := range res.Entries {
		id := strings.TrimPrefix(e.Key, prefix)
		rec, err := parseRecord(id, []byte(e.Fields["$"]))
		if err != nil {
			r.logger.Warn("Skipping undecodable hit", zap.String("key", e.Key), zap.Error(err))
			continue
		}
		rec.Score = e.Score
		resp.Hits = append(resp.Hits, rec)
	}
	return resp, nil
}

// Count returns the number of documents matching q.
func (r *Repo) Count(ctx context.Context, index, docType string, q docdex.Query) (int, error) {
	lq, err := r.listQuery(index, docType, q, "")
	if err != nil {
		return 0, err
	}
	n, err := r.store.SearchCount(ctx, lq)
	if err != nil {
		return 0, r.searchErr(index, docType, err)
	}
	return n, nil
}

// Index replaces the document and bumps its version.
func (r *Repo) Index(ctx context.Context, index, docType, id string, body map[string]any) (docdex.Ack, error) {
	key := r.docKey(index, docType, id)
	v, err := r.store.IncrBy(ctx, r.versionKey(index, docType, id), 1)
	if err != nil {
		return docdex.Ack{}, fmt.Errorf("version %s: %w", key, err)
	}

	data, err := encodeBody(body, v)
	if err != nil {
		return docdex.Ack{}, fmt.Errorf("encode %s: %w", key, err)
	}
	if err := r.store.JSONSet(ctx, key, "$", data); err != nil {
		return docdex.Ack{}, fmt.Errorf("json.set %s: %w", key, err)
	}
	return docdex.Ack{ID: id, Version: v, Created: v == 1}, nil
}

// Update sets the fields of body.Doc on an existing document. A missing
// document is created from body.Upsert, or reported as not found.
func (r *Repo) Update(ctx context.Context, index, docType, id string, body docdex.UpdateBody) (docdex.Ack, error) {
	key := r.docKey(index, docType, id)
	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return docdex.Ack{}, fmt.Errorf("check exists %s: %w", key, err)
	}
	if !exists {
		if body.Upsert == nil {
			return docdex.Ack{}, fmt.Errorf("%s: %w", key, docdex.ErrNotFound)
		}
		return r.Index(ctx, index, docType, id, body.Upsert)
	}

	v, err := r.store.IncrBy(ctx, r.versionKey(index, docType, id), 1)
	if err != nil {
		return docdex.Ack{}, fmt.Errorf("version %s: %w", key, err)
	}
	items, err := fieldItems(key, body.Doc, v)
	if err != nil {
		return docdex.Ack{}, fmt.Errorf("encode %s: %w", key, err)
	}
	if err := r.store.JSONSetMulti(ctx, items); err != nil {
		return docdex.Ack{}, fmt.Errorf("json.set %s: %w", key, err)
	}
	return docdex.Ack{ID: id, Version: v}, nil
}

// Delete removes the document and its version counter.
func (r *Repo) Delete(ctx context.Context, index, docType, id string) (docdex.Ack, error) {
	key := r.docKey(index, docType, id)
	n, err := r.store.Del(ctx, key)
	if err != nil {
		return docdex.Ack{}, fmt.Errorf("del %s: %w", key, err)
	}
	if n == 0 {
		return docdex.Ack{}, fmt.Errorf("%s: %w", key, docdex.ErrNotFound)
	}
	if _, err := r.store.Del(ctx, r.versionKey(index, docType, id)); err != nil {
		r.logger.Warn("Version counter left behind", zap.String("key", key), zap.Error(err))
	}
	return docdex.Ack{ID: id}, nil
}

// Refresh waits until every FT index of index has finished background
// indexing, up to the refresh timeout.
func (r *Repo) Refresh(ctx context.Context, index string) error {
	names, err := r.store.ListIndexes(ctx)
	if err != nil {
		return fmt.Errorf("list indexes: %w", err)
	}
	prefix := r.prefix + index + ":"

	ctx, cancel := context.WithTimeout(ctx, r.refreshTimeout)
	defer cancel()

	for _, name := range names {
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ":idx") {
			continue
		}
		if err := r.waitIndexed(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) waitIndexed(ctx context.Context, name string) error {
	ticker := time.NewTicker(refreshPollInterval)
	defer ticker.Stop()

	for {
		info, err := r.store.IndexInfo(ctx, name)
		if err != nil {
			return fmt.Errorf("index info %s: %w", name, err)
		}
		if !info.Indexing && info.PercentIndexed >= 1 {
			return nil
		}
		r.logger.Debug("Waiting for index",
			zap.String("index", name),
			zap.Float64("percent_indexed", info.PercentIndexed),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("index %s: %w: %w", name, docdex.ErrIndexNotReady, ctx.Err())
		case <-ticker.C:
		}
	}
}

// EnsureIndex creates the FT index of index/type. An existing index is
// left untouched.
func (r *Repo) EnsureIndex(ctx context.Context, index, docType string, fields []docdex.IndexedField) error {
	def, err := buildIndex(r.indexName(index, docType), r.typePrefix(index, docType), fields)
	if err != nil {
		return err
	}
	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return nil
		}
		return fmt.Errorf("create index %s: %w", def.Name, err)
	}
	r.logger.Info("Index created", zap.String("index", def.Name), zap.Int("fields", len(def.Fields)))
	return nil
}

func (r *Repo) listQuery(index, docType string, q docdex.Query, text string) (*db.ListQuery, error) {
	expr, err := q.Expression()
	if err != nil {
		return nil, err
	}
	return &db.ListQuery{IndexName: r.indexName(index, docType), Filters: expr, Text: text}, nil
}

// searchErr reports a missing FT index as not ready; EnsureIndex has not run.
func (r *Repo) searchErr(index, docType string, err error) error {
	name := r.indexName(index, docType)
	if errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("index %s: %w", name, docdex.ErrIndexNotReady)
	}
	return fmt.Errorf("search %s: %w", name, err)
}

func (r *Repo) typePrefix(index, docType string) string {
	return r.prefix + index + ":" + docType + ":"
}

func (r *Repo) docKey(index, docType, id string) string {
	return r.typePrefix(index, docType) + id
}

func (r *Repo) versionKey(index, docType, id string) string {
	return r.prefix + versionNamespace + index + ":" + docType + ":" + id
}

func (r *Repo) indexName(index, docType string) string {
	return r.typePrefix(index, docType) + "idx"
}

// fieldItems builds one JSON.SET per top-level field plus the version.
// Setting paths keeps explicit nulls, which a merge patch would delete.
func fieldItems(key string, doc map[string]any, version int64) ([]db.JSONSetItem, error) {
	items := make([]db.JSONSetItem, 0, len(doc)+1)
	for _, k := range slices.Sorted(maps.Keys(doc)) {
		if k == VersionField {
			continue
		}
		data, err := json.Marshal(doc[k])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		items = append(items, db.JSONSetItem{Key: key, Path: db.JSONPath(k), Data: data})
	}
	items = append(items, db.JSONSetItem{
		Key:  key,
		Path: db.JSONPath(VersionField),
		Data: []byte(fmt.Sprint(version)),
	})
	return items, nil
}
