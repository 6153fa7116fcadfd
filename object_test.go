package docdex

import (
	"context"
	"reflect"
	"testing"
)

type address struct {
	Street string   `json:"street"`
	Zip    int      `json:"zip"`
	Tags   []string `json:"tags,omitempty"`
}

func defineProfile(t *testing.T, r *Registry) *Kind {
	t.Helper()
	return r.MustDefine("Profile", "crm", "profile",
		Prop("id", PrimaryKey()),
		Object("home", func() any { return &address{} }),
		Object("extra", nil),
	)
}

func TestObject_SetEncodesPlainAndPacked(t *testing.T) {
	r := newTestRegistry(t, nil)
	k := defineProfile(t, r)
	home := &address{Street: "Main St", Zip: 1010}
	d := k.MustNew(map[string]any{"id": "u1", "home": home})

	raw, ok := d.values.changed["home"].(map[string]any)
	if !ok {
		t.Fatalf("changed tier = %T", d.values.changed["home"])
	}
	if raw["street"] != "Main St" || raw["zip"] != float64(1010) {
		t.Errorf("plain form = %v", raw)
	}
	if _, ok := raw[PickleField].(string); !ok {
		t.Errorf("missing %s in %v", PickleField, raw)
	}
	if got := d.MustGet("home"); got != home {
		t.Error("Get() does not return the cached object")
	}
}

func TestObject_DecodeFromSource(t *testing.T) {
	r := newTestRegistry(t, nil)
	k := defineProfile(t, r)
	enc, err := (&objectCodec{}).encode(&address{Street: "Elm", Zip: 7, Tags: []string{"a"}})
	if err != nil {
		t.Fatal(err)
	}

	d := k.FromRaw(Record{ID: "u1", Source: map[string]any{"home": enc}})
	got, ok := d.MustGet("home").(*address)
	if !ok {
		t.Fatalf("Get(home) = %T", d.MustGet("home"))
	}
	want := &address{Street: "Elm", Zip: 7, Tags: []string{"a"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("decoded = %+v, want %+v", got, want)
	}
	if d.MustGet("home") != any(got) {
		t.Error("second Get() decoded again")
	}
}

func TestObject_PlainValueWithoutPickle(t *testing.T) {
	r := newTestRegistry(t, nil)
	k := defineProfile(t, r)
	plain := map[string]any{"street": "Legacy"}
	d := k.FromRaw(Record{ID: "u1", Source: map[string]any{"home": plain}})
	if !reflect.DeepEqual(d.MustGet("home"), plain) {
		t.Errorf("Get(home) = %v", d.MustGet("home"))
	}
}

func TestObject_GenericDecode(t *testing.T) {
	r := newTestRegistry(t, nil)
	k := defineProfile(t, r)
	d := k.MustNew(map[string]any{"id": "u1", "extra": map[string]any{"k": "v"}})
	enc := d.values.changed["extra"]

	loaded := k.FromRaw(Record{ID: "u1", Source: map[string]any{"extra": enc}})
	got, ok := loaded.MustGet("extra").(map[string]any)
	if !ok || got["k"] != "v" {
		t.Errorf("Get(extra) = %#v", loaded.MustGet("extra"))
	}
}

func TestObject_InPlaceMutationIsStored(t *testing.T) {
	mem := newMemClient()
	r := newTestRegistry(t, mem)
	k := defineProfile(t, r)
	ctx := context.Background()

	enc, _ := (&objectCodec{}).encode(&address{Street: "Elm", Zip: 7})
	src := map[string]any{"id": "u1", "home": enc}
	mem.docs[memKey("crm", "profile", "u1")] = deepCopy(src).(map[string]any)
	d := k.FromRaw(Record{ID: "u1", Source: src})

	d.MustGet("home")
	res, err := d.Store(ctx)
	if err != nil || res.Action != ActionNoop {
		t.Fatalf("unchanged object: Store() = %+v, %v", res, err)
	}

	home := d.MustGet("home").(*address)
	home.Street = "Oak"
	res, err = d.Store(ctx)
	if err != nil || res.Action != ActionUpdated {
		t.Fatalf("mutated object: Store() = %+v, %v", res, err)
	}
	sent, ok := mem.lastUpd.Doc["home"].(map[string]any)
	if !ok || sent["street"] != "Oak" {
		t.Errorf("update doc = %v", mem.lastUpd.Doc)
	}
}

func TestObject_UnsetClearsCache(t *testing.T) {
	r := newTestRegistry(t, nil)
	k := defineProfile(t, r)
	d := k.MustNew(map[string]any{"home": &address{Street: "x"}})
	if err := d.Set("home", nil); err != nil {
		t.Fatal(err)
	}
	if got := d.MustGet("home"); got != nil {
		t.Errorf("Get(home) = %v, want nil", got)
	}
}

func TestObject_UnsetIsNotStored(t *testing.T) {
	mem := newMemClient()
	r := newTestRegistry(t, mem)
	k := defineProfile(t, r)

	d := k.MustNew(map[string]any{"id": "u1", "home": &address{Street: "x"}})
	if err := d.Unset("home"); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Store(context.Background()); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if got := mem.lastIdx["home"]; got != nil {
		t.Errorf("index body home = %#v, want absent", got)
	}
	if got := d.MustGet("home"); got != nil {
		t.Errorf("Get(home) = %#v, want nil", got)
	}
}
