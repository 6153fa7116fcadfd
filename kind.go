package docdex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/domain"
)

// Declaration is a member of a kind: a Property, a relation or an object property.
type Declaration interface {
	declare(k *Kind) error
}

// Kind describes one registered document type. It is immutable once defined.
type Kind struct {
	name    string
	index   string
	docType string
	reg     *Registry

	props     []*Property
	byName    map[string]*Property
	byField   map[string]*Property
	primary   *Property
	relations map[string]*Relation
	lists     map[string]*ListRelation
	claimed   map[string]bool
}

// Name returns the kind name, also written as the discriminator.
func (k *Kind) Name() string { return k.name }

// Index returns the engine index.
func (k *Kind) Index() string { return k.index }

// Type returns the engine document type.
func (k *Kind) Type() string { return k.docType }

// Registry returns the registry the kind belongs to.
func (k *Kind) Registry() *Registry { return k.reg }

// Properties returns the declared properties in declaration order.
func (k *Kind) Properties() []*Property {
	out := make([]*Property, len(k.props))
	copy(out, k.props)
	return out
}

// Property returns the property declared as name.
func (k *Kind) Property(name string) (*Property, bool) {
	p, ok := k.byName[name]
	return p, ok
}

// PrimaryKey returns the primary key property, or nil.
func (k *Kind) PrimaryKey() *Property { return k.primary }

// IndexedFields returns the searchable fields, always including the discriminator.
func (k *Kind) IndexedFields() []IndexedField {
	out := []IndexedField{{Name: DiscriminatorField, Type: FieldTag}}
	for _, p := range k.props {
		if p.indexed != "" {
			out = append(out, IndexedField{Name: p.field, Type: p.indexed})
		}
	}
	return out
}

func (k *Kind) claim(name string) error {
	if k.claimed[name] {
		return fmt.Errorf("%w: %q", ErrDuplicateProperty, name)
	}
	k.claimed[name] = true
	return nil
}

func (k *Kind) validateRelations() error {
	for _, rel := range k.relations {
		if _, ok := k.byName[rel.local.Head()]; !ok {
			return fmt.Errorf("relation %s: local path %s: %w",
				rel.name, rel.local, domain.NewUnknownProperty(k.name, rel.local.Head()))
		}
	}
	for _, rel := range k.lists {
		if _, ok := k.byName[rel.local.Head()]; !ok {
			return fmt.Errorf("relation %s: local path %s: %w",
				rel.name, rel.local, domain.NewUnknownProperty(k.name, rel.local.Head()))
		}
	}
	return nil
}

func (k *Kind) newDocument() *Document {
	return &Document{
		kind:   k,
		values: newValues(),
		meta:   meta{index: k.index, docType: k.docType},
	}
}

// New creates an unsaved document. values are keyed by declared name and
// may include relations; unknown names are an error.
func (k *Kind) New(values map[string]any) (*Document, error) {
	d := k.newDocument()
	for _, p := range k.props {
		if v, ok := values[p.name]; ok {
			if err := d.setProperty(p, v); err != nil {
				return nil, err
			}
		}
	}
	for name, v := range values {
		if _, ok := k.byName[name]; ok {
			continue
		}
		if err := d.Set(name, v); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// NewWithUpdateProperties is New followed by Document.SetUpdateProperties.
func (k *Kind) NewWithUpdateProperties(values map[string]any, props ...string) (*Document, error) {
	d, err := k.New(values)
	if err != nil {
		return nil, err
	}
	if err := d.SetUpdateProperties(props...); err != nil {
		return nil, err
	}
	return d, nil
}

// MustNew is like New but panics on error.
func (k *Kind) MustNew(values map[string]any) *Document {
	d, err := k.New(values)
	if err != nil {
		panic(err)
	}
	return d
}

// FromRaw builds a persisted document from an engine record. The concrete
// kind is chosen by the record's discriminator among the kinds registered
// under the same index/type, falling back to k.
func (k *Kind) FromRaw(rec Record) *Document {
	target := k
	if name, ok := rec.Source[DiscriminatorField].(string); ok && name != k.name {
		if v := k.reg.variant(k.index, k.docType, name); v != nil {
			target = v
		}
	}
	d := target.newDocument()
	d.values.seed(rec.Source)
	d.meta.id = rec.ID
	d.meta.version = rec.Version
	d.meta.committed = true
	return d
}

func (k *Kind) client() (Client, error) {
	c := k.reg.Client()
	if c == nil {
		return nil, fmt.Errorf("docdex: kind %s: %w", k.name, ErrNoClient)
	}
	return c, nil
}

// Get fetches a document by id. A missing document and any engine failure
// both yield (nil, nil); the cause is logged at debug level and available
// through Lookup. Only a missing client is reported as an error.
func (k *Kind) Get(ctx context.Context, id string) (*Document, error) {
	d, err := k.Lookup(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNoClient) {
			return nil, err
		}
		k.reg.logger().Debug("Document miss",
			zap.String("kind", k.name),
			zap.String("id", id),
			zap.Bool("not_found", errors.Is(err, ErrNotFound)),
			zap.Error(err),
		)
		return nil, nil
	}
	return d, nil
}

// Lookup fetches a document by id and reports ErrNotFound or the engine error.
func (k *Kind) Lookup(ctx context.Context, id string) (doc *Document, err error) {
	start := time.Now()
	defer func() { k.reg.observer().observe("get", k.name, start, err) }()

	c, err := k.client()
	if err != nil {
		return nil, err
	}
	rec, err := c.Get(ctx, k.index, k.docType, id)
	if err != nil {
		return nil, fmt.Errorf("get %s/%s/%s: %w", k.index, k.docType, id, err)
	}
	return k.FromRaw(rec), nil
}

// MGet fetches documents by id. The result has one entry per id in input
// order; nil marks a miss. Empty input does not reach the engine.
func (k *Kind) MGet(ctx context.Context, ids []string) (docs []*Document, err error) {
	if len(ids) == 0 {
		return []*Document{}, nil
	}
	start := time.Now()
	defer func() { k.reg.observer().observe("mget", k.name, start, err) }()

	c, err := k.client()
	if err != nil {
		return nil, err
	}
	recs, err := c.MGet(ctx, k.index, k.docType, ids)
	if err != nil {
		return nil, fmt.Errorf("mget %s/%s: %w", k.index, k.docType, err)
	}
	if len(recs) != len(ids) {
		return nil, fmt.Errorf("mget %s/%s: got %d records for %d ids", k.index, k.docType, len(recs), len(ids))
	}
	docs = make([]*Document, len(recs))
	for i, rec := range recs {
		if rec.Found {
			docs[i] = k.FromRaw(rec)
		}
	}
	return docs, nil
}

// Search runs req against the kind's index/type. With req.Resolve every hit
// is converted through FromRaw; totals and engine metadata pass through.
func (k *Kind) Search(ctx context.Context, req *SearchRequest) (res *SearchResult, err error) {
	start := time.Now()
	defer func() { k.reg.observer().observe("search", k.name, start, err) }()

	if req == nil {
		req = &SearchRequest{}
	}
	c, err := k.client()
	if err != nil {
		return nil, err
	}
	resp, err := c.Search(ctx, k.index, k.docType, req)
	if err != nil {
		return nil, fmt.Errorf("search %s/%s: %w", k.index, k.docType, err)
	}

	res = &SearchResult{Total: resp.Total, Meta: resp.Meta, Hits: make([]Hit, len(resp.Hits))}
	for i, rec := range resp.Hits {
		res.Hits[i].Record = rec
		if req.Resolve {
			res.Hits[i].Document = k.FromRaw(rec)
		}
	}
	return res, nil
}

// Count returns the number of documents matching q.
func (k *Kind) Count(ctx context.Context, q Query) (n int, err error) {
	start := time.Now()
	defer func() { k.reg.observer().observe("count", k.name, start, err) }()

	c, err := k.client()
	if err != nil {
		return 0, err
	}
	n, err = c.Count(ctx, k.index, k.docType, q)
	if err != nil {
		return 0, fmt.Errorf("count %s/%s: %w", k.index, k.docType, err)
	}
	return n, nil
}

// Refresh makes recent writes to the kind's index visible to search.
func (k *Kind) Refresh(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { k.reg.observer().observe("refresh", k.name, start, err) }()

	c, err := k.client()
	if err != nil {
		return err
	}
	if err := c.Refresh(ctx, k.index); err != nil {
		return fmt.Errorf("refresh %s: %w", k.index, err)
	}
	return nil
}

// EnsureIndex creates the search schema for the kind's index/type when the
// client needs one. The schema covers every kind sharing the address.
func (k *Kind) EnsureIndex(ctx context.Context) error {
	c, err := k.client()
	if err != nil {
		return err
	}
	ens, ok := c.(IndexEnsurer)
	if !ok {
		return nil
	}
	if err := ens.EnsureIndex(ctx, k.index, k.docType, k.reg.IndexedFields(k.index, k.docType)); err != nil {
		return fmt.Errorf("ensure index %s/%s: %w", k.index, k.docType, err)
	}
	return nil
}

func (k *Kind) String() string {
	return fmt.Sprintf("%s(%s/%s)", k.name, k.index, k.docType)
}
