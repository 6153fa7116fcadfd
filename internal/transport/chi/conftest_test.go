package chi

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex"
	healthuc "github.com/kailas-cloud/docdex/internal/usecase/health"
)

// --- Client mock ---

type mockClient struct {
	getFn    func(ctx context.Context, index, docType, id string) (docdex.Record, error)
	searchFn func(ctx context.Context, index, docType string, req *docdex.SearchRequest) (*docdex.SearchResponse, error)
	countFn  func(ctx context.Context, index, docType string, q docdex.Query) (int, error)
}

var errUnexpected = errors.New("unexpected call")

func (m *mockClient) Get(ctx context.Context, index, docType, id string) (docdex.Record, error) {
	if m.getFn == nil {
		return docdex.Record{}, errUnexpected
	}
	return m.getFn(ctx, index, docType, id)
}

func (m *mockClient) MGet(context.Context, string, string, []string) ([]docdex.Record, error) {
	return nil, errUnexpected
}

func (m *mockClient) Search(
	ctx context.Context, index, docType string, req *docdex.SearchRequest,
) (*docdex.SearchResponse, error) {
	if m.searchFn == nil {
		return nil, errUnexpected
	}
	return m.searchFn(ctx, index, docType, req)
}

func (m *mockClient) Count(ctx context.Context, index, docType string, q docdex.Query) (int, error) {
	if m.countFn == nil {
		return 0, errUnexpected
	}
	return m.countFn(ctx, index, docType, q)
}

func (m *mockClient) Index(context.Context, string, string, string, map[string]any) (docdex.Ack, error) {
	return docdex.Ack{}, errUnexpected
}

func (m *mockClient) Update(context.Context, string, string, string, docdex.UpdateBody) (docdex.Ack, error) {
	return docdex.Ack{}, errUnexpected
}

func (m *mockClient) Delete(context.Context, string, string, string) (docdex.Ack, error) {
	return docdex.Ack{}, errUnexpected
}

func (m *mockClient) Refresh(context.Context, string) error { return errUnexpected }

// --- Pinger mock ---

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(context.Context) error { return m.err }

// newTestRouter builds the gateway over a registry with Person and Employee
// sharing crm/people.
func newTestRouter(t *testing.T, mc *mockClient, apiKeys ...string) http.Handler {
	t.Helper()
	return newTestRouterWithPinger(t, mc, &mockPinger{}, apiKeys...)
}

func newTestRouterWithPinger(t *testing.T, mc *mockClient, p *mockPinger, apiKeys ...string) http.Handler {
	t.Helper()
	reg, err := docdex.NewRegistry(docdex.WithClient(mc))
	if err != nil {
		t.Fatal(err)
	}
	reg.MustDefine("Person", "crm", "people",
		docdex.Prop("id", docdex.PrimaryKey()),
		docdex.Prop("name", docdex.Indexed(docdex.FieldText)),
		docdex.Prop("age", docdex.Indexed(docdex.FieldNumeric)),
	)
	reg.MustDefine("Employee", "crm", "people",
		docdex.Prop("id", docdex.PrimaryKey()),
		docdex.Prop("name", docdex.Indexed(docdex.FieldText)),
		docdex.Prop("badge", docdex.Indexed(docdex.FieldTag)),
	)

	srv := NewServer(reg, healthuc.New(p), zap.NewNop()).WithPagination(10, 50)
	return NewRouter(srv, apiKeys)
}
