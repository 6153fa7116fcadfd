package docdex

import (
	"context"
	"fmt"
	"strings"
)

// Transformer normalizes an assigned remote reference into the fragment
// stored at a relation's local path. prev is the fragment currently stored
// there, or nil.
type Transformer func(id string, props map[string]any, prev any) any

// RelationOption configures a relation declaration.
type RelationOption func(*relationSpec)

type relationSpec struct {
	props     []string
	transform Transformer
}

// IDOnly stores the bare remote id. It is the default.
func IDOnly() RelationOption {
	return func(s *relationSpec) {
		s.props = nil
		s.transform = func(id string, _ map[string]any, _ any) any { return id }
	}
}

// WithProperties stores {"id": ..., <props>...}, denormalizing the named
// remote properties next to the id. Metadata already stored at the path is
// kept unless overwritten.
func WithProperties(props ...string) RelationOption {
	return func(s *relationSpec) {
		s.props = props
		s.transform = mergeFragment
	}
}

func mergeFragment(id string, props map[string]any, prev any) any {
	out := map[string]any{}
	if m, ok := prev.(map[string]any); ok {
		for k, v := range m {
			out[k] = v
		}
	}
	for k, v := range props {
		out[k] = v
	}
	out["id"] = id
	return out
}

func buildSpec(opts []RelationOption) relationSpec {
	var s relationSpec
	IDOnly()(&s)
	for _, o := range opts {
		o(&s)
	}
	return s
}

// link is the part shared by 1:1 and 1:N relations: where the fragment
// lives and which kind it points to.
type link struct {
	name          string
	local         Path
	remoteKind    string
	remotePrimary string
	spec          relationSpec
}

func newLink(name, local, remote string, opts []RelationOption) (link, error) {
	l := link{name: name, spec: buildSpec(opts)}
	if name == "" {
		return l, fmt.Errorf("relation name is required")
	}
	p, err := ParsePath(local)
	if err != nil {
		return l, fmt.Errorf("relation %s: %w", name, err)
	}
	l.local = p

	i := strings.LastIndex(remote, ".")
	if i <= 0 || i == len(remote)-1 {
		return l, fmt.Errorf("relation %s: remote %q must be Kind.primaryKey", name, remote)
	}
	l.remoteKind, l.remotePrimary = remote[:i], remote[i+1:]
	return l, nil
}

// slot returns the raw value stored at the local path.
func (l *link) slot(d *Document) any {
	p := d.kind.byName[l.local.Head()]
	root, err := d.values.Get(p.field)
	if err != nil {
		return nil
	}
	if len(l.local) == 1 {
		return root
	}
	v, _ := l.local.Tail().Lookup(root)
	return v
}

// write stores v at the local path. A nil v deletes the slot; deleting
// below a missing intermediate is a no-op.
func (l *link) write(d *Document, v any) {
	p := d.kind.byName[l.local.Head()]
	if len(l.local) == 1 {
		if v == nil && !d.values.Exists(p.field) {
			return
		}
		p.set(d, v)
		return
	}

	cur, _ := d.values.Get(p.field)
	container, _ := cur.(map[string]any)
	if v == nil {
		if container == nil {
			return
		}
		if next, ok := l.local.Tail().Delete(container); ok {
			p.set(d, next)
		}
		return
	}
	p.set(d, l.local.Tail().Set(container, v))
}

// reference extracts the id and the denormalized properties from an
// assigned value: a *Document, a map or a raw id.
func (l *link) reference(v any) (string, map[string]any, *Document, error) {
	switch t := v.(type) {
	case *Document:
		if t == nil {
			return "", nil, nil, nil
		}
		id, err := t.PrimaryKey(false)
		if err != nil {
			return "", nil, nil, fmt.Errorf("relation %s: %w", l.name, err)
		}
		props := map[string]any{}
		for _, name := range l.spec.props {
			if pv, err := t.Get(name); err == nil {
				props[name] = pv
			}
		}
		return id, props, t, nil
	case map[string]any:
		raw, ok := t[l.remotePrimary]
		if !ok {
			raw = t["id"]
		}
		props := map[string]any{}
		for _, name := range l.spec.props {
			if pv, ok := t[name]; ok {
				props[name] = pv
			}
		}
		return idString(raw), props, nil, nil
	default:
		return idString(t), nil, nil, nil
	}
}

// fragment converts an assigned value into its stored shape.
func (l *link) fragment(v any, prev any) (any, *Document, error) {
	id, props, doc, err := l.reference(v)
	if err != nil {
		return nil, nil, err
	}
	if id == "" {
		return nil, nil, nil
	}
	return l.spec.transform(id, props, prev), doc, nil
}

// clearsLink reports whether v removes a link rather than referencing a target.
func clearsLink(v any) bool {
	if v == nil {
		return true
	}
	doc, ok := v.(*Document)
	return ok && doc == nil
}

// fragmentID reads the id out of a stored fragment.
func fragmentID(frag any) string {
	if m, ok := frag.(map[string]any); ok {
		return idString(m["id"])
	}
	return idString(frag)
}

// Relation is a 1:1 link stored as a fragment at a dotted path of the
// owning document.
type Relation struct {
	link
	declErr error
}

// One declares a 1:1 relation. local is "property[.key...]" and remote is
// "Kind.primaryKey"; the remote kind is resolved lazily through the registry.
func One(name, local, remote string, opts ...RelationOption) *Relation {
	l, err := newLink(name, local, remote, opts)
	return &Relation{link: l, declErr: err}
}

func (r *Relation) declare(k *Kind) error {
	if r.declErr != nil {
		return r.declErr
	}
	if err := k.claim(r.name); err != nil {
		return err
	}
	k.relations[r.name] = r
	return nil
}

func (r *Relation) cacheKey() string { return "rel:" + r.name }

func (r *Relation) assign(d *Document, v any) error {
	frag, doc, err := r.fragment(v, r.slot(d))
	if err != nil {
		return err
	}
	if frag == nil && !clearsLink(v) {
		return fmt.Errorf("relation %s: %w", r.name, ErrMissingPrimaryKey)
	}
	r.write(d, frag)
	d.values.Uncache(r.cacheKey())
	if doc != nil {
		d.values.Cache(r.cacheKey(), resolved{forID: fragmentID(frag), doc: doc})
	}
	return nil
}

func (r *Relation) resolver(d *Document) *Resolver {
	return &Resolver{
		doc:      d,
		link:     &r.link,
		key:      r.cacheKey(),
		fragment: func() any { return r.slot(d) },
	}
}

// resolved is a cache entry tagged with the id it was fetched for.
type resolved struct {
	forID string
	doc   *Document
}

// Resolver is the deferred handle returned when reading a relation.
type Resolver struct {
	doc      *Document
	link     *link
	key      string
	fragment func() any
}

// ID returns the remote id currently stored, or "".
func (r *Resolver) ID() string { return fragmentID(r.fragment()) }

// Fragment returns the stored fragment: a bare id or an id+metadata map.
func (r *Resolver) Fragment() any { return r.fragment() }

// Remote returns the remote kind.
func (r *Resolver) Remote() (*Kind, error) {
	return r.doc.kind.reg.Lookup(r.link.remoteKind)
}

// Resolve fetches the related document. The result is cached until the
// stored id changes; a miss resolves to nil.
func (r *Resolver) Resolve(ctx context.Context) (*Document, error) {
	id := r.ID()
	if e, ok := r.doc.values.Cached(r.key); ok {
		if e, ok := e.(resolved); ok && e.forID == id {
			return e.doc, nil
		}
	}

	var doc *Document
	if id != "" {
		kind, err := r.Remote()
		if err != nil {
			return nil, fmt.Errorf("relation %s: %w", r.link.name, err)
		}
		doc, err = kind.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("relation %s: %w", r.link.name, err)
		}
	}
	r.doc.values.Cache(r.key, resolved{forID: id, doc: doc})
	return doc, nil
}

func (r *Resolver) String() string {
	return fmt.Sprintf("<Resolver %s[%s]>", r.link.remoteKind, r.ID())
}
