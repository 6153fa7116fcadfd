package docdex

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
)

// ListRelation is a 1:N link stored as an ordered list of fragments.
type ListRelation struct {
	link
	declErr error
}

// Many declares a 1:N relation. Arguments are as for One.
func Many(name, local, remote string, opts ...RelationOption) *ListRelation {
	l, err := newLink(name, local, remote, opts)
	return &ListRelation{link: l, declErr: err}
}

func (r *ListRelation) declare(k *Kind) error {
	if r.declErr != nil {
		return r.declErr
	}
	if err := k.claim(r.name); err != nil {
		return err
	}
	k.lists[r.name] = r
	return nil
}

func (r *ListRelation) cachePrefix() string { return "rels:" + r.name + ":" }

func (r *ListRelation) cacheKey(i int) string { return r.cachePrefix() + strconv.Itoa(i) }

func (r *ListRelation) fragments(d *Document) []any {
	list, _ := r.slot(d).([]any)
	return list
}

// assign replaces the whole list. Elements are transformed one by one
// without merging with the fragments stored before.
func (r *ListRelation) assign(d *Document, v any) error {
	d.values.UncachePrefix(r.cachePrefix())
	if v == nil {
		r.write(d, nil)
		return nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return fmt.Errorf("relation %s: want a list, got %T", r.name, v)
	}
	frags := make([]any, 0, rv.Len())
	docs := make(map[int]*Document)
	for i := 0; i < rv.Len(); i++ {
		frag, doc, err := r.fragment(rv.Index(i).Interface(), nil)
		if err != nil {
			return err
		}
		if frag == nil {
			return fmt.Errorf("relation %s: element %d has no id", r.name, i)
		}
		if doc != nil {
			docs[len(frags)] = doc
		}
		frags = append(frags, frag)
	}
	r.write(d, frags)
	for i, doc := range docs {
		d.values.Cache(r.cacheKey(i), resolved{forID: fragmentID(frags[i]), doc: doc})
	}
	return nil
}

func (r *ListRelation) resolver(d *Document) *ListResolver {
	return &ListResolver{doc: d, rel: r}
}

// ListResolver gives positional access to the resolvers of a 1:N relation.
type ListResolver struct {
	doc *Document
	rel *ListRelation
}

// Len returns the number of stored fragments.
func (l *ListResolver) Len() int { return len(l.rel.fragments(l.doc)) }

// IDs returns the stored remote ids in order.
func (l *ListResolver) IDs() []string {
	frags := l.rel.fragments(l.doc)
	ids := make([]string, len(frags))
	for i, f := range frags {
		ids[i] = fragmentID(f)
	}
	return ids
}

// At returns the resolver of element i. Each position caches independently.
func (l *ListResolver) At(i int) *Resolver {
	return &Resolver{
		doc:  l.doc,
		link: &l.rel.link,
		key:  l.rel.cacheKey(i),
		fragment: func() any {
			frags := l.rel.fragments(l.doc)
			if i < 0 || i >= len(frags) {
				return nil
			}
			return frags[i]
		},
	}
}

// ResolveAll resolves every element, fetching the uncached ones with a
// single MGet. Misses are nil.
func (l *ListResolver) ResolveAll(ctx context.Context) ([]*Document, error) {
	ids := l.IDs()
	out := make([]*Document, len(ids))

	var (
		pending []string
		at      []int
	)
	for i, id := range ids {
		if e, ok := l.doc.values.Cached(l.rel.cacheKey(i)); ok {
			if e, ok := e.(resolved); ok && e.forID == id {
				out[i] = e.doc
				continue
			}
		}
		pending = append(pending, id)
		at = append(at, i)
	}
	if len(pending) == 0 {
		return out, nil
	}

	kind, err := l.doc.kind.reg.Lookup(l.rel.remoteKind)
	if err != nil {
		return nil, fmt.Errorf("relation %s: %w", l.rel.name, err)
	}
	docs, err := kind.MGet(ctx, pending)
	if err != nil {
		return nil, fmt.Errorf("relation %s: %w", l.rel.name, err)
	}
	for j, doc := range docs {
		i := at[j]
		out[i] = doc
		l.doc.values.Cache(l.rel.cacheKey(i), resolved{forID: ids[i], doc: doc})
	}
	return out, nil
}

func (l *ListResolver) String() string {
	return fmt.Sprintf("<ListResolver %s%v>", l.rel.remoteKind, l.IDs())
}
