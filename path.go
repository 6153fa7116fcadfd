package docdex

import (
	"fmt"
	"strings"
)

// Path addresses a value inside a document's property tree.
// The first segment names a property; the rest are map keys below it.
type Path []string

// ParsePath splits a dotted path such as "refs.company".
func ParsePath(s string) (Path, error) {
	if s == "" {
		return nil, fmt.Errorf("empty path")
	}
	parts := strings.Split(s, ".")
	for i, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("path %q: empty segment at %d", s, i)
		}
	}
	return Path(parts), nil
}

func (p Path) String() string { return strings.Join(p, ".") }

// Head returns the first segment.
func (p Path) Head() string { return p[0] }

// Tail returns the path below the first segment.
func (p Path) Tail() Path { return p[1:] }

// Lookup walks root along p.
func (p Path) Lookup(root any) (any, bool) {
	cur := root
	for _, seg := range p {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set returns a copy of root with v stored at p. Missing or non-map
// intermediates are replaced by fresh maps. Only the maps along p are
// copied, so root itself is never mutated.
func (p Path) Set(root map[string]any, v any) map[string]any {
	out := cloneMap(root)
	if len(p) == 0 {
		return out
	}
	if len(p) == 1 {
		out[p[0]] = v
		return out
	}
	child, _ := out[p[0]].(map[string]any)
	out[p[0]] = p[1:].Set(child, v)
	return out
}

// Delete returns a copy of root without the value at p. It reports
// false, and returns root unchanged, when any segment is absent.
func (p Path) Delete(root map[string]any) (map[string]any, bool) {
	if len(p) == 0 || root == nil {
		return root, false
	}
	if len(p) == 1 {
		if _, ok := root[p[0]]; !ok {
			return root, false
		}
		out := cloneMap(root)
		delete(out, p[0])
		return out, true
	}
	child, ok := root[p[0]].(map[string]any)
	if !ok {
		return root, false
	}
	next, ok := p[1:].Delete(child)
	if !ok {
		return root, false
	}
	out := cloneMap(root)
	out[p[0]] = next
	return out, true
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// deepCopy copies JSON-shaped values so defaults are never shared between documents.
func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}
