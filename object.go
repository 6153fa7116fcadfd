package docdex

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

// PickleField carries the exact encoding of an object property next to its
// plain JSON form.
const PickleField = "_pickle"

// objectCodec stores arbitrary Go values as {<plain JSON fields>, "_pickle": <msgpack>}.
// The plain fields are searchable; the blob restores the original type.
type objectCodec struct {
	newValue func() any
}

// Object declares a property holding an arbitrary Go value. newValue
// returns a pointer to decode into; nil decodes into generic maps.
// The decoded value is cached, so in-place mutations are persisted on the
// next Store.
func Object(name string, newValue func() any, opts ...PropertyOption) *Property {
	p := Prop(name, opts...)
	p.object = &objectCodec{newValue: newValue}
	return p
}

func (c *objectCodec) key(p *Property) string { return "obj:" + p.field }

func (c *objectCodec) get(d *Document, p *Property) (any, error) {
	key := c.key(p)
	if v, ok := d.values.Cached(key); ok {
		return v, nil
	}

	raw, err := d.values.Get(p.field)
	if err != nil {
		v := p.produce()
		if v == nil {
			d.values.SetDefault(p.field, nil)
			return nil, nil
		}
		enc, err := c.encode(v)
		if err != nil {
			return nil, err
		}
		d.values.SetDefault(p.field, enc)
		d.values.Cache(key, v)
		return v, nil
	}

	v, err := c.decode(raw)
	if err != nil {
		return nil, err
	}
	d.values.Cache(key, v)
	return v, nil
}

func (c *objectCodec) set(d *Document, p *Property, v any) error {
	if v == nil {
		d.values.Uncache(c.key(p))
		p.set(d, nil)
		return nil
	}
	enc, err := c.encode(v)
	if err != nil {
		return fmt.Errorf("property %s: %w", p.name, err)
	}
	d.values.Cache(c.key(p), v)
	p.set(d, enc)
	return nil
}

// flush re-encodes the cached value and records it when it differs from
// the stored encoding.
func (c *objectCodec) flush(d *Document, p *Property) error {
	v, ok := d.values.Cached(c.key(p))
	if !ok || v == nil {
		return nil
	}
	enc, err := c.encode(v)
	if err != nil {
		return err
	}
	if cur, err := d.values.Get(p.field); err == nil && reflect.DeepEqual(cur, enc) {
		return nil
	}
	d.values.SetChanged(p.field, enc)
	return nil
}

func (c *objectCodec) encode(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T to JSON: %w", v, err)
	}
	var plain any
	if err := json.Unmarshal(raw, &plain); err != nil {
		return nil, fmt.Errorf("decode plain form of %T: %w", v, err)
	}
	out, ok := plain.(map[string]any)
	if !ok {
		out = map[string]any{"value": plain}
	}

	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	enc.SetCustomStructTag("json")
	err = enc.Encode(v)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, fmt.Errorf("encode %T using MsgPack: %w", v, err)
	}
	out[PickleField] = base64.StdEncoding.EncodeToString(buf.Bytes())
	return out, nil
}

func (c *objectCodec) decode(raw any) (any, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return raw, nil
	}
	s, ok := m[PickleField].(string)
	if !ok {
		return raw, nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", PickleField, err)
	}

	dec := msgpack.GetDecoder()
	defer msgpack.PutDecoder(dec)
	dec.Reset(bytes.NewReader(b))
	dec.SetCustomStructTag("json")

	if c.newValue == nil {
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", PickleField, err)
		}
		return v, nil
	}
	v := c.newValue()
	if err := dec.Decode(v); err != nil {
		return nil, fmt.Errorf("decode %s into %T: %w", PickleField, v, err)
	}
	return v, nil
}
