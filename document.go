package docdex

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/domain"
)

// Action describes what Store did.
type Action string

const (
	ActionIndexed Action = "indexed"
	ActionUpdated Action = "updated"
	ActionNoop    Action = "noop"
)

// StoreResult is the outcome of Document.Store.
type StoreResult struct {
	Action Action
	Ack    Ack
}

type meta struct {
	id      string
	version int64
	index   string
	docType string

	// committed is set once the id is known to address a persisted record.
	committed bool
}

// Document is one record of a Kind. It is not safe for concurrent use.
type Document struct {
	kind   *Kind
	values *Values
	meta   meta

	updateProps []string
}

// Kind returns the document's kind.
func (d *Document) Kind() *Kind { return d.kind }

// Values exposes the layered field state.
func (d *Document) Values() *Values { return d.values }

// ID returns the meta id, which may be provisional while the document is new.
func (d *Document) ID() string { return d.meta.id }

// Version returns the engine version from the last load or write.
func (d *Document) Version() int64 { return d.meta.version }

// Index returns the index the document is addressed in.
func (d *Document) Index() string { return d.meta.index }

// Type returns the document type the document is addressed in.
func (d *Document) Type() string { return d.meta.docType }

// IsNew reports whether the document has never been persisted.
func (d *Document) IsNew() bool { return !d.meta.committed }

// Get returns the value of a property or the resolver of a relation.
// Relation names yield *Resolver or *ListResolver.
func (d *Document) Get(name string) (any, error) {
	if p, ok := d.kind.byName[name]; ok {
		if p.object != nil {
			return p.object.get(d, p)
		}
		return p.get(d), nil
	}
	if rel, ok := d.kind.relations[name]; ok {
		return rel.resolver(d), nil
	}
	if rel, ok := d.kind.lists[name]; ok {
		return rel.resolver(d), nil
	}
	return nil, domain.NewUnknownProperty(d.kind.name, name)
}

// MustGet is like Get but panics on an unknown name.
func (d *Document) MustGet(name string) any {
	v, err := d.Get(name)
	if err != nil {
		panic(err)
	}
	return v
}

// Set assigns a property or a relation.
func (d *Document) Set(name string, v any) error {
	if p, ok := d.kind.byName[name]; ok {
		return d.setProperty(p, v)
	}
	if rel, ok := d.kind.relations[name]; ok {
		return rel.assign(d, v)
	}
	if rel, ok := d.kind.lists[name]; ok {
		return rel.assign(d, v)
	}
	return domain.NewUnknownProperty(d.kind.name, name)
}

func (d *Document) setProperty(p *Property, v any) error {
	if p.object != nil {
		return p.object.set(d, p, v)
	}
	p.set(d, v)
	return nil
}

// Unset removes a property from every tier, or clears a relation.
func (d *Document) Unset(name string) error {
	if p, ok := d.kind.byName[name]; ok {
		p.unset(d)
		return nil
	}
	if _, ok := d.kind.relations[name]; ok {
		return d.Set(name, nil)
	}
	if _, ok := d.kind.lists[name]; ok {
		return d.Set(name, nil)
	}
	return domain.NewUnknownProperty(d.kind.name, name)
}

// Relation returns the resolver of a 1:1 relation.
func (d *Document) Relation(name string) (*Resolver, error) {
	rel, ok := d.kind.relations[name]
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", d.kind.name, name, ErrNotRelation)
	}
	return rel.resolver(d), nil
}

// List returns the resolver of a 1:N relation.
func (d *Document) List(name string) (*ListResolver, error) {
	rel, ok := d.kind.lists[name]
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", d.kind.name, name, ErrNotRelation)
	}
	return rel.resolver(d), nil
}

// PrimaryKey returns the meta id if set, otherwise the primary key value.
// With commit a found value is written to meta and the document stops
// being new.
func (d *Document) PrimaryKey(commit bool) (string, error) {
	if d.meta.id != "" {
		if commit {
			d.meta.committed = true
		}
		return d.meta.id, nil
	}
	if d.kind.primary == nil {
		return "", fmt.Errorf("docdex: kind %s: %w", d.kind.name, ErrNoPrimaryKey)
	}
	id := idString(d.kind.primary.get(d))
	if id != "" && commit {
		d.meta.id = id
		d.meta.committed = true
	}
	return id, nil
}

// SetUpdateProperties limits UpdateOrCreate and Bulk.Update to the named
// properties when no names are passed explicitly.
func (d *Document) SetUpdateProperties(names ...string) error {
	for _, n := range names {
		if _, ok := d.kind.byName[n]; !ok {
			return domain.NewUnknownProperty(d.kind.name, n)
		}
	}
	d.updateProps = append([]string(nil), names...)
	return nil
}

// Source returns the properties present in any tier, keyed by declared name.
func (d *Document) Source() map[string]any {
	out := make(map[string]any, len(d.kind.props))
	for _, p := range d.kind.props {
		if v, err := d.values.Get(p.field); err == nil {
			out[p.name] = v
		}
	}
	return out
}

func (d *Document) applyDefaults() error {
	for _, p := range d.kind.props {
		if p.object == nil {
			p.get(d)
			continue
		}
		if _, err := p.object.get(d, p); err != nil {
			return fmt.Errorf("property %s: %w", p.name, err)
		}
	}
	return nil
}

// flushObjects re-encodes decoded objects so in-place mutations reach the
// changed tier.
func (d *Document) flushObjects() error {
	for _, p := range d.kind.props {
		if p.object == nil {
			continue
		}
		if err := p.object.flush(d, p); err != nil {
			return fmt.Errorf("property %s: %w", p.name, err)
		}
	}
	return nil
}

// IndexBody returns the full body with every default applied.
func (d *Document) IndexBody() (map[string]any, error) {
	if err := d.flushObjects(); err != nil {
		return nil, err
	}
	if err := d.applyDefaults(); err != nil {
		return nil, err
	}
	return d.values.MaterializeFull(d.kind.name, false), nil
}

// UpdateBody builds {doc, upsert}. doc holds the named properties, the
// update properties filter, or the pending changes, in that order of
// preference. upsert is the full body.
func (d *Document) UpdateBody(props ...string) (UpdateBody, error) {
	fields, err := d.updateFields(props)
	if err != nil {
		return UpdateBody{}, err
	}
	if err := d.flushObjects(); err != nil {
		return UpdateBody{}, err
	}

	var doc map[string]any
	if fields == nil {
		doc = d.values.MaterializeDelta(false)
	} else {
		doc = make(map[string]any, len(fields))
		for _, f := range fields {
			if v, err := d.values.Get(f); err == nil {
				doc[f] = v
			}
		}
	}

	if err := d.applyDefaults(); err != nil {
		return UpdateBody{}, err
	}
	return UpdateBody{Doc: doc, Upsert: d.values.MaterializeFull(d.kind.name, false)}, nil
}

// updateFields maps property names to storage names; nil means "the delta".
func (d *Document) updateFields(props []string) ([]string, error) {
	names := props
	if len(names) == 0 {
		names = d.updateProps
	}
	if len(names) == 0 {
		return nil, nil
	}
	fields := make([]string, 0, len(names))
	for _, n := range names {
		p, ok := d.kind.byName[n]
		if !ok {
			return nil, domain.NewUnknownProperty(d.kind.name, n)
		}
		fields = append(fields, p.field)
	}
	return fields, nil
}

// Store persists the document. A new document is indexed in full, a
// persisted one receives its delta. Values are committed only after the
// engine acknowledged the write.
func (d *Document) Store(ctx context.Context) (res StoreResult, err error) {
	start := time.Now()
	defer func() { d.kind.reg.observer().observe("store", d.kind.name, start, err) }()

	c, err := d.kind.client()
	if err != nil {
		return StoreResult{}, err
	}

	if d.IsNew() {
		id, err := d.PrimaryKey(false)
		if err != nil {
			return StoreResult{}, err
		}
		if id == "" {
			return StoreResult{}, fmt.Errorf("docdex: kind %s: %w", d.kind.name, ErrMissingPrimaryKey)
		}
		body, err := d.IndexBody()
		if err != nil {
			return StoreResult{}, err
		}
		ack, err := c.Index(ctx, d.meta.index, d.meta.docType, id, body)
		if err != nil {
			return StoreResult{}, fmt.Errorf("index %s/%s/%s: %w", d.meta.index, d.meta.docType, id, err)
		}
		d.values.MaterializeFull(d.kind.name, true)
		d.meta.id = id
		d.meta.committed = true
		d.meta.version = ack.Version
		return StoreResult{Action: ActionIndexed, Ack: ack}, nil
	}

	if err := d.flushObjects(); err != nil {
		return StoreResult{}, err
	}
	delta := d.values.MaterializeDelta(false)
	if len(delta) == 0 {
		d.kind.reg.logger().Debug("Nothing to store",
			zap.String("kind", d.kind.name),
			zap.String("id", d.meta.id),
		)
		return StoreResult{Action: ActionNoop}, nil
	}
	ack, err := c.Update(ctx, d.meta.index, d.meta.docType, d.meta.id, UpdateBody{Doc: delta})
	if err != nil {
		return StoreResult{}, fmt.Errorf("update %s/%s/%s: %w", d.meta.index, d.meta.docType, d.meta.id, err)
	}
	d.values.MaterializeDelta(true)
	d.meta.version = ack.Version
	return StoreResult{Action: ActionUpdated, Ack: ack}, nil
}

// Delete removes a persisted document. It reports false without a round
// trip when the document is new.
func (d *Document) Delete(ctx context.Context) (deleted bool, err error) {
	if d.IsNew() {
		return false, nil
	}
	start := time.Now()
	defer func() { d.kind.reg.observer().observe("delete", d.kind.name, start, err) }()

	c, err := d.kind.client()
	if err != nil {
		return false, err
	}
	if _, err := c.Delete(ctx, d.meta.index, d.meta.docType, d.meta.id); err != nil {
		return false, fmt.Errorf("delete %s/%s/%s: %w", d.meta.index, d.meta.docType, d.meta.id, err)
	}
	return true, nil
}

// UpdateOrCreate sends an update whose upsert creates the document when it
// does not exist yet. props narrows the doc section, see UpdateBody.
func (d *Document) UpdateOrCreate(ctx context.Context, props ...string) (ack Ack, err error) {
	start := time.Now()
	defer func() { d.kind.reg.observer().observe("update_or_create", d.kind.name, start, err) }()

	c, err := d.kind.client()
	if err != nil {
		return Ack{}, err
	}
	id, err := d.PrimaryKey(false)
	if err != nil {
		return Ack{}, err
	}
	if id == "" {
		return Ack{}, fmt.Errorf("docdex: kind %s: %w", d.kind.name, ErrMissingPrimaryKey)
	}
	fields, err := d.updateFields(props)
	if err != nil {
		return Ack{}, err
	}
	body, err := d.UpdateBody(props...)
	if err != nil {
		return Ack{}, err
	}
	ack, err = c.Update(ctx, d.meta.index, d.meta.docType, id, body)
	if err != nil {
		return Ack{}, fmt.Errorf("update %s/%s/%s: %w", d.meta.index, d.meta.docType, id, err)
	}
	d.commitUpdate(id, fields, ack)
	return ack, nil
}

// commitUpdate folds what an update sent into source. With a field list
// only those fields are folded; the remaining changes stay pending.
func (d *Document) commitUpdate(id string, fields []string, ack Ack) {
	if fields == nil {
		if d.IsNew() {
			d.values.MaterializeFull(d.kind.name, true)
		} else {
			d.values.MaterializeDelta(true)
		}
	} else {
		d.values.commitFields(fields)
	}
	d.meta.id = id
	d.meta.committed = true
	d.meta.version = ack.Version
}

func (d *Document) String() string {
	return fmt.Sprintf("<%s %s>", d.kind.name, d.meta.id)
}
