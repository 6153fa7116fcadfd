// Package bolt implements docdex.Client on an embedded bbolt file.
//
// Documents live in nested buckets docs/{index}/{type}, keyed by id, as a
// JSON envelope carrying the version. Search scans the type bucket and
// evaluates filters in process, so it suits small data sets, tests and
// local tooling.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex"
)

var (
	docsBucket    = []byte("docs")
	schemasBucket = []byte("schemas")
)

// Compile-time checks.
var (
	_ docdex.Client       = (*Repo)(nil)
	_ docdex.IndexEnsurer = (*Repo)(nil)
	_ docdex.BulkExecutor = (*Repo)(nil)
)

// DefaultLimit is the page size when a search does not set one.
const DefaultLimit = 10

// envelope is the stored form of a document.
type envelope struct {
	Version int64          `json:"version"`
	Source  map[string]any `json:"source"`
}

// Options configures Open.
type Options struct {
	Timeout time.Duration // file lock wait
	NoSync  bool
	Logger  *zap.Logger
}

// Repo is a docdex.Client over a bbolt database.
type Repo struct {
	db     *bbolt.DB
	logger *zap.Logger
}

// Open opens or creates the database file at path.
func Open(path string, opt Options) (*Repo, error) {
	bopt := *bbolt.DefaultOptions
	bopt.Timeout = opt.Timeout
	if bopt.Timeout == 0 {
		bopt.Timeout = 10 * time.Second
	}
	bopt.NoSync = opt.NoSync

	bdb, err := bbolt.Open(path, 0o600, &bopt)
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", path, err)
	}
	err = bdb.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(docsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(schemasBucket)
		return err
	})
	if err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("bolt: init buckets: %w", err)
	}

	logger := opt.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("Bolt store opened", zap.String("path", path))
	return &Repo{db: bdb, logger: logger}, nil
}

// Close releases the database file.
func (r *Repo) Close() error {
	return r.db.Close()
}

// Ping reports whether the database can start a read transaction.
func (r *Repo) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.db.View(func(*bbolt.Tx) error { return nil })
}

// Get returns a document by id.
func (r *Repo) Get(ctx context.Context, index, docType, id string) (docdex.Record, error) {
	if err := ctx.Err(); err != nil {
		return docdex.Record{}, err
	}
	var rec docdex.Record
	err := r.db.View(func(tx *bbolt.Tx) error {
		env, err := load(typeBucket(tx, index, docType), id)
		if err != nil {
			return err
		}
		if env == nil {
			return fmt.Errorf("%s/%s/%s: %w", index, docType, id, docdex.ErrNotFound)
		}
		rec = env.record(id)
		return nil
	})
	return rec, err
}

// MGet reads ids in one transaction.
func (r *Repo) MGet(ctx context.Context, index, docType string, ids []string) ([]docdex.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]docdex.Record, len(ids))
	err := r.db.View(func(tx *bbolt.Tx) error {
		b := typeBucket(tx, index, docType)
		for i, id := range ids {
			env, err := load(b, id)
			if err != nil {
				return err
			}
			if env == nil {
				out[i] = docdex.Record{ID: id}
				continue
			}
			out[i] = env.record(id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Index replaces the document and bumps its version.
func (r *Repo) Index(ctx context.Context, index, docType, id string, body map[string]any) (docdex.Ack, error) {
	if err := ctx.Err(); err != nil {
		return docdex.Ack{}, err
	}
	var ack docdex.Ack
	err := r.db.Update(func(tx *bbolt.Tx) error {
		var err error
		ack, err = indexTx(tx, index, docType, id, body)
		return err
	})
	return ack, err
}

// Update sets the top-level fields of body.Doc on an existing document. A
// missing document is created from body.Upsert, or reported as not found.
func (r *Repo) Update(ctx context.Context, index, docType, id string, body docdex.UpdateBody) (docdex.Ack, error) {
	if err := ctx.Err(); err != nil {
		return docdex.Ack{}, err
	}
	var ack docdex.Ack
	err := r.db.Update(func(tx *bbolt.Tx) error {
		var err error
		ack, err = updateTx(tx, index, docType, id, body)
		return err
	})
	return ack, err
}

// Delete removes a document.
func (r *Repo) Delete(ctx context.Context, index, docType, id string) (docdex.Ack, error) {
	if err := ctx.Err(); err != nil {
		return docdex.Ack{}, err
	}
	var ack docdex.Ack
	err := r.db.Update(func(tx *bbolt.Tx) error {
		var err error
		ack, err = deleteTx(tx, index, docType, id)
		return err
	})
	return ack, err
}

// Refresh is a no-op: writes are visible once their transaction commits.
func (r *Repo) Refresh(ctx context.Context, _ string) error {
	return ctx.Err()
}

// EnsureIndex records the searchable fields of index/type. Text search
// uses the TEXT fields; without a schema it looks at every string field.
func (r *Repo) EnsureIndex(ctx context.Context, index, docType string, fields []docdex.IndexedField) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("bolt: encode schema: %w", err)
	}
	return r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(schemasBucket).Put(schemaKey(index, docType), data)
	})
}

// Bulk runs every action in a single write transaction. A failing action
// is reported in its result and does not roll back the others.
func (r *Repo) Bulk(ctx context.Context, actions []docdex.BulkAction) ([]docdex.BulkResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]docdex.BulkResult, len(actions))
	err := r.db.Update(func(tx *bbolt.Tx) error {
		for i, a := range actions {
			out[i] = docdex.BulkResult{ID: a.ID, Op: a.Op}
			switch a.Op {
			case docdex.BulkIndex:
				out[i].Ack, out[i].Err = indexTx(tx, a.Index, a.Type, a.ID, a.Body)
			case docdex.BulkUpdate:
				out[i].Ack, out[i].Err = updateTx(tx, a.Index, a.Type, a.ID, a.Update)
			case docdex.BulkDelete:
				out[i].Ack, out[i].Err = deleteTx(tx, a.Index, a.Type, a.ID)
			default:
				out[i].Err = fmt.Errorf("bolt: unknown bulk op %q", a.Op)
			}
			if isTxFatal(out[i].Err) {
				return out[i].Err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bolt: bulk: %w", err)
	}
	return out, nil
}

func indexTx(tx *bbolt.Tx, index, docType, id string, body map[string]any) (docdex.Ack, error) {
	b, err := createTypeBucket(tx, index, docType)
	if err != nil {
		return docdex.Ack{}, err
	}
	prev, err := load(b, id)
	if err != nil {
		return docdex.Ack{}, err
	}
	env := &envelope{Version: 1, Source: maps.Clone(body)}
	if prev != nil {
		env.Version = prev.Version + 1
	}
	if err := store(b, id, env); err != nil {
		return docdex.Ack{}, err
	}
	return docdex.Ack{ID: id, Version: env.Version, Created: prev == nil}, nil
}

func updateTx(tx *bbolt.Tx, index, docType, id string, body docdex.UpdateBody) (docdex.Ack, error) {
	b, err := createTypeBucket(tx, index, docType)
	if err != nil {
		return docdex.Ack{}, err
	}
	env, err := load(b, id)
	if err != nil {
		return docdex.Ack{}, err
	}
	if env == nil {
		if body.Upsert == nil {
			return docdex.Ack{}, fmt.Errorf("%s/%s/%s: %w", index, docType, id, docdex.ErrNotFound)
		}
		return indexTx(tx, index, docType, id, body.Upsert)
	}
	if env.Source == nil {
		env.Source = map[string]any{}
	}
	maps.Copy(env.Source, body.Doc)
	env.Version++
	if err := store(b, id, env); err != nil {
		return docdex.Ack{}, err
	}
	return docdex.Ack{ID: id, Version: env.Version}, nil
}

func deleteTx(tx *bbolt.Tx, index, docType, id string) (docdex.Ack, error) {
	b := typeBucket(tx, index, docType)
	if b == nil || b.Get([]byte(id)) == nil {
		return docdex.Ack{}, fmt.Errorf("%s/%s/%s: %w", index, docType, id, docdex.ErrNotFound)
	}
	if err := b.Delete([]byte(id)); err != nil {
		return docdex.Ack{}, &txError{err: err}
	}
	return docdex.Ack{ID: id}, nil
}

// txError marks a storage failure that invalidates the transaction.
type txError struct{ err error }

func (e *txError) Error() string { return "bolt: " + e.err.Error() }
func (e *txError) Unwrap() error { return e.err }

func isTxFatal(err error) bool {
	var te *txError
	return errors.As(err, &te)
}

func (e *envelope) record(id string) docdex.Record {
	return docdex.Record{ID: id, Version: e.Version, Found: true, Source: e.Source}
}

func typeBucket(tx *bbolt.Tx, index, docType string) *bbolt.Bucket {
	ib := tx.Bucket(docsBucket).Bucket([]byte(index))
	if ib == nil {
		return nil
	}
	return ib.Bucket([]byte(docType))
}

func createTypeBucket(tx *bbolt.Tx, index, docType string) (*bbolt.Bucket, error) {
	ib, err := tx.Bucket(docsBucket).CreateBucketIfNotExists([]byte(index))
	if err != nil {
		return nil, &txError{err: fmt.Errorf("create bucket %s: %w", index, err)}
	}
	b, err := ib.CreateBucketIfNotExists([]byte(docType))
	if err != nil {
		return nil, &txError{err: fmt.Errorf("create bucket %s/%s: %w", index, docType, err)}
	}
	return b, nil
}

// load returns nil for a missing bucket or key.
func load(b *bbolt.Bucket, id string) (*envelope, error) {
	if b == nil {
		return nil, nil
	}
	raw := b.Get([]byte(id))
	if raw == nil {
		return nil, nil
	}
	return decode(id, raw)
}

func decode(id string, raw []byte) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("bolt: decode %s: %w", id, err)
	}
	return &env, nil
}

func store(b *bbolt.Bucket, id string, env *envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("bolt: encode %s: %w", id, err)
	}
	if err := b.Put([]byte(id), data); err != nil {
		return &txError{err: fmt.Errorf("put %s: %w", id, err)}
	}
	return nil
}

func schemaKey(index, docType string) []byte {
	return []byte(index + "\x00" + docType)
}
