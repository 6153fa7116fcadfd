package docdex

import (
	"context"
	"fmt"
	"sort"
	"testing"
)

// --- Client mock ---

type mockClient struct {
	getFn     func(ctx context.Context, index, docType, id string) (Record, error)
	mgetFn    func(ctx context.Context, index, docType string, ids []string) ([]Record, error)
	searchFn  func(ctx context.Context, index, docType string, req *SearchRequest) (*SearchResponse, error)
	countFn   func(ctx context.Context, index, docType string, q Query) (int, error)
	indexFn   func(ctx context.Context, index, docType, id string, body map[string]any) (Ack, error)
	updateFn  func(ctx context.Context, index, docType, id string, body UpdateBody) (Ack, error)
	deleteFn  func(ctx context.Context, index, docType, id string) (Ack, error)
	refreshFn func(ctx context.Context, index string) error
}

func (m *mockClient) Get(ctx context.Context, index, docType, id string) (Record, error) {
	return m.getFn(ctx, index, docType, id)
}

func (m *mockClient) MGet(ctx context.Context, index, docType string, ids []string) ([]Record, error) {
	return m.mgetFn(ctx, index, docType, ids)
}

func (m *mockClient) Search(ctx context.Context, index, docType string, req *SearchRequest) (*SearchResponse, error) {
	return m.searchFn(ctx, index, docType, req)
}

func (m *mockClient) Count(ctx context.Context, index, docType string, q Query) (int, error) {
	return m.countFn(ctx, index, docType, q)
}

func (m *mockClient) Index(ctx context.Context, index, docType, id string, body map[string]any) (Ack, error) {
	return m.indexFn(ctx, index, docType, id, body)
}

func (m *mockClient) Update(ctx context.Context, index, docType, id string, body UpdateBody) (Ack, error) {
	return m.updateFn(ctx, index, docType, id, body)
}

func (m *mockClient) Delete(ctx context.Context, index, docType, id string) (Ack, error) {
	return m.deleteFn(ctx, index, docType, id)
}

func (m *mockClient) Refresh(ctx context.Context, index string) error {
	return m.refreshFn(ctx, index)
}

// --- in-memory engine ---

// memClient keeps bodies per index/type/id and counts calls.
type memClient struct {
	docs    map[string]map[string]any
	version map[string]int64
	calls   map[string]int
	gets    []string
	lastIdx map[string]any
	lastUpd UpdateBody
}

func newMemClient() *memClient {
	return &memClient{
		docs:    map[string]map[string]any{},
		version: map[string]int64{},
		calls:   map[string]int{},
	}
}

func memKey(index, docType, id string) string { return index + "/" + docType + "/" + id }

func (m *memClient) Get(_ context.Context, index, docType, id string) (Record, error) {
	m.calls["get"]++
	m.gets = append(m.gets, id)
	k := memKey(index, docType, id)
	src, ok := m.docs[k]
	if !ok {
		return Record{}, ErrNotFound
	}
	return Record{ID: id, Version: m.version[k], Found: true, Source: deepCopy(src).(map[string]any)}, nil
}

func (m *memClient) MGet(ctx context.Context, index, docType string, ids []string) ([]Record, error) {
	m.calls["mget"]++
	out := make([]Record, len(ids))
	for i, id := range ids {
		k := memKey(index, docType, id)
		if src, ok := m.docs[k]; ok {
			out[i] = Record{ID: id, Version: m.version[k], Found: true, Source: deepCopy(src).(map[string]any)}
		} else {
			out[i] = Record{ID: id}
		}
	}
	return out, nil
}

func (m *memClient) Search(_ context.Context, index, docType string, req *SearchRequest) (*SearchResponse, error) {
	m.calls["search"]++
	prefix := index + "/" + docType + "/"
	keys := make([]string, 0, len(m.docs))
	for k := range m.docs {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	resp := &SearchResponse{Total: len(keys), Meta: map[string]any{"engine": "mem"}}
	for _, k := range keys {
		resp.Hits = append(resp.Hits, Record{
			ID: k[len(prefix):], Version: m.version[k], Found: true, Source: deepCopy(m.docs[k]).(map[string]any),
		})
	}
	return resp, nil
}

func (m *memClient) Count(_ context.Context, index, docType string, _ Query) (int, error) {
	m.calls["count"]++
	resp, _ := m.Search(context.Background(), index, docType, nil)
	return resp.Total, nil
}

func (m *memClient) Index(_ context.Context, index, docType, id string, body map[string]any) (Ack, error) {
	m.calls["index"]++
	m.lastIdx = deepCopy(body).(map[string]any)
	k := memKey(index, docType, id)
	_, existed := m.docs[k]
	m.docs[k] = deepCopy(body).(map[string]any)
	m.version[k]++
	return Ack{ID: id, Version: m.version[k], Created: !existed}, nil
}

func (m *memClient) Update(_ context.Context, index, docType, id string, body UpdateBody) (Ack, error) {
	m.calls["update"]++
	m.lastUpd = body
	k := memKey(index, docType, id)
	cur, ok := m.docs[k]
	if !ok {
		if body.Upsert == nil {
			return Ack{}, ErrNotFound
		}
		m.docs[k] = deepCopy(body.Upsert).(map[string]any)
		m.version[k]++
		return Ack{ID: id, Version: m.version[k], Created: true}, nil
	}
	for f, v := range body.Doc {
		cur[f] = deepCopy(v)
	}
	m.version[k]++
	return Ack{ID: id, Version: m.version[k]}, nil
}

func (m *memClient) Delete(_ context.Context, index, docType, id string) (Ack, error) {
	m.calls["delete"]++
	k := memKey(index, docType, id)
	if _, ok := m.docs[k]; !ok {
		return Ack{}, fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	delete(m.docs, k)
	return Ack{ID: id, Version: m.version[k]}, nil
}

func (m *memClient) Refresh(_ context.Context, _ string) error {
	m.calls["refresh"]++
	return nil
}

// --- helpers ---

func newTestRegistry(t *testing.T, c Client) *Registry {
	t.Helper()
	r, err := NewRegistry(WithClient(c))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return r
}

// defineCRM registers Company and Person kinds linked by relations.
func defineCRM(t *testing.T, r *Registry) (company, person *Kind) {
	t.Helper()
	company = r.MustDefine("Company", "crm", "default",
		Prop("id", PrimaryKey()),
		Prop("name", Indexed(FieldTag)),
		Prop("size", Default(float64(1)), Indexed(FieldNumeric)),
	)
	person = r.MustDefine("Person", "crm", "default",
		Prop("id", PrimaryKey()),
		Prop("name"),
		Prop("email", Field("mail")),
		Prop("refs", Default(map[string]any{})),
		Prop("friendIDs", Default([]any{})),
		One("company", "refs.company", "Company.id", WithProperties("name")),
		Many("friends", "friendIDs", "Person.id"),
	)
	return company, person
}
