package docdex

import (
	"fmt"
	"reflect"

	"github.com/google/uuid"
)

// Property is a named slot on a kind, backed by the document's Values.
//
// A property never rejects a value; type checking is left to the engine.
type Property struct {
	name    string
	field   string
	produce func() any
	primary bool
	indexed FieldType

	// object is set for opaque payload properties, see Object.
	object *objectCodec
}

// PropertyOption configures a Property.
type PropertyOption func(*Property)

// Prop declares a property. The storage name defaults to name.
func Prop(name string, opts ...PropertyOption) *Property {
	p := &Property{name: name}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Field sets the storage name used in engine bodies.
func Field(storage string) PropertyOption {
	return func(p *Property) { p.field = storage }
}

// Default sets the default value. A function taking no arguments and
// returning one value, such as func() string, is used as a producer; any
// other value is copied for every document.
func Default(v any) PropertyOption {
	if f, ok := v.(func() any); ok {
		return DefaultFunc(f)
	}
	if fv := reflect.ValueOf(v); fv.Kind() == reflect.Func && !fv.IsNil() {
		if ft := fv.Type(); ft.NumIn() == 0 && ft.NumOut() == 1 {
			return DefaultFunc(func() any { return fv.Call(nil)[0].Interface() })
		}
	}
	return DefaultFunc(func() any { return deepCopy(v) })
}

// DefaultFunc sets a producer called the first time an unset slot is read.
func DefaultFunc(f func() any) PropertyOption {
	return func(p *Property) { p.produce = f }
}

// PrimaryKey marks the property as the document id.
func PrimaryKey() PropertyOption {
	return func(p *Property) { p.primary = true }
}

// Indexed makes the property searchable with the given field type.
func Indexed(t FieldType) PropertyOption {
	return func(p *Property) { p.indexed = t }
}

// NewID produces a random UUID string, suitable as a primary key default.
func NewID() any { return uuid.NewString() }

// Name returns the declared name.
func (p *Property) Name() string { return p.name }

// StorageName returns the name used in engine bodies.
func (p *Property) StorageName() string { return p.field }

// IsPrimaryKey reports whether p is the document id.
func (p *Property) IsPrimaryKey() bool { return p.primary }

func (p *Property) declare(k *Kind) error {
	cp := *p
	if cp.name == "" {
		return fmt.Errorf("property name is required")
	}
	if cp.field == "" {
		cp.field = cp.name
	}
	if cp.produce == nil {
		cp.produce = func() any { return nil }
	}
	if cp.primary {
		if k.primary != nil {
			return fmt.Errorf("%w: %s and %s", ErrDuplicatePrimaryKey, k.primary.name, cp.name)
		}
		k.primary = &cp
	}
	if _, dup := k.byField[cp.field]; dup {
		return fmt.Errorf("%w: storage name %q", ErrDuplicateProperty, cp.field)
	}
	if err := k.claim(cp.name); err != nil {
		return err
	}
	k.props = append(k.props, &cp)
	k.byName[cp.name] = &cp
	k.byField[cp.field] = &cp
	return nil
}

// get returns the current raw value, materializing the default on first read.
func (p *Property) get(d *Document) any {
	if v, err := d.values.Get(p.field); err == nil {
		return v
	}
	v := p.produce()
	d.values.SetDefault(p.field, v)
	return v
}

func (p *Property) set(d *Document, v any) {
	d.values.SetChanged(p.field, v)
	if p.primary {
		d.meta.id = idString(v)
	}
}

func (p *Property) unset(d *Document) {
	d.values.Delete(p.field)
	if p.object != nil {
		d.values.Uncache(p.object.key(p))
	}
}

// idString renders a primary key value as an engine id.
func idString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; keep integral ids free of exponents.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprint(t)
	default:
		return fmt.Sprint(t)
	}
}
