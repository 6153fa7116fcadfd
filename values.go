package docdex

import (
	"errors"
	"strings"
)

// DiscriminatorField holds the registered kind name in full index bodies.
const DiscriminatorField = "__kind"

// ErrSlotNotFound is returned by Values.Get when no tier holds the slot.
var ErrSlotNotFound = errors.New("docdex: slot not set")

// Values is the layered field state of one document, keyed by storage name.
//
// Reads see changed over source over defaults. Resolved objects (decoded
// payloads, relation targets) live in a separate cache that callers consult
// before the raw tiers. Values is not safe for concurrent use.
type Values struct {
	defaults map[string]any
	source   map[string]any
	changed  map[string]any
	cache    map[string]any
}

func newValues() *Values {
	return &Values{
		defaults: map[string]any{},
		source:   map[string]any{},
		changed:  map[string]any{},
		cache:    map[string]any{},
	}
}

// Get returns the highest-tier value for field.
func (v *Values) Get(field string) (any, error) {
	if val, ok := v.changed[field]; ok {
		return val, nil
	}
	if val, ok := v.source[field]; ok {
		return val, nil
	}
	if val, ok := v.defaults[field]; ok {
		return val, nil
	}
	return nil, ErrSlotNotFound
}

// Exists reports whether any tier holds field.
func (v *Values) Exists(field string) bool {
	_, err := v.Get(field)
	return err == nil
}

// SetChanged records a mutation.
func (v *Values) SetChanged(field string, val any) { v.changed[field] = val }

// SetSource writes already persisted data, bypassing change tracking.
func (v *Values) SetSource(field string, val any) { v.source[field] = val }

// SetDefault records a lazily computed default.
func (v *Values) SetDefault(field string, val any) { v.defaults[field] = val }

// Delete removes field from every tier and drops its cached object.
func (v *Values) Delete(field string) {
	delete(v.defaults, field)
	delete(v.source, field)
	delete(v.changed, field)
	delete(v.cache, field)
}

// seed replaces the source tier with already persisted data.
func (v *Values) seed(src map[string]any) {
	v.source = make(map[string]any, len(src))
	for k, val := range src {
		if k == DiscriminatorField {
			continue
		}
		v.source[k] = val
	}
	clear(v.defaults)
	clear(v.changed)
	clear(v.cache)
}

// MaterializeFull flattens defaults, source and changed and adds the
// discriminator. With commit the flattened map becomes the new source.
func (v *Values) MaterializeFull(kind string, commit bool) map[string]any {
	out := make(map[string]any, len(v.defaults)+len(v.source)+len(v.changed)+1)
	for k, val := range v.defaults {
		out[k] = val
	}
	for k, val := range v.source {
		out[k] = val
	}
	for k, val := range v.changed {
		out[k] = val
	}
	if commit {
		v.source = cloneMap(out)
		v.reset()
	}
	out[DiscriminatorField] = kind
	return out
}

// MaterializeDelta returns defaults overlaid by changed: the fields touched
// since the last commit. With commit they are folded into source.
func (v *Values) MaterializeDelta(commit bool) map[string]any {
	out := make(map[string]any, len(v.defaults)+len(v.changed))
	for k, val := range v.defaults {
		out[k] = val
	}
	for k, val := range v.changed {
		out[k] = val
	}
	if commit {
		for k, val := range out {
			v.source[k] = val
		}
		v.reset()
	}
	return out
}

// commitFields folds the named fields into source and drops them from the
// changed and default tiers. Other pending changes are kept.
func (v *Values) commitFields(fields []string) {
	for _, f := range fields {
		if val, err := v.Get(f); err == nil {
			v.source[f] = val
		}
		delete(v.changed, f)
		delete(v.defaults, f)
	}
}

// Dirty reports whether a delta would be non-empty.
func (v *Values) Dirty() bool { return len(v.defaults)+len(v.changed) > 0 }

func (v *Values) reset() {
	clear(v.defaults)
	clear(v.changed)
	clear(v.cache)
}

// Cached returns a resolved object.
func (v *Values) Cached(key string) (any, bool) {
	val, ok := v.cache[key]
	return val, ok
}

// Cache stores a resolved object.
func (v *Values) Cache(key string, val any) { v.cache[key] = val }

// Uncache drops a resolved object.
func (v *Values) Uncache(key string) { delete(v.cache, key) }

// UncachePrefix drops every resolved object whose key starts with prefix.
func (v *Values) UncachePrefix(prefix string) {
	for k := range v.cache {
		if strings.HasPrefix(k, prefix) {
			delete(v.cache, k)
		}
	}
}
