package bolt_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kailas-cloud/docdex"
	"github.com/kailas-cloud/docdex/internal/repository/bolt"
)

func TestRegistryOverBolt(t *testing.T) {
	repo, err := bolt.Open(filepath.Join(t.TempDir(), "crm.db"), bolt.Options{NoSync: true})
	if err != nil {
		t.Fatal(err)
	}
	defer repo.Close()

	reg, err := docdex.NewRegistry(docdex.WithClient(repo))
	if err != nil {
		t.Fatal(err)
	}
	company := reg.MustDefine("Company", "crm", "org",
		docdex.Prop("id", docdex.PrimaryKey()),
		docdex.Prop("name", docdex.Indexed(docdex.FieldText)),
	)
	person := reg.MustDefine("Person", "crm", "people",
		docdex.Prop("id", docdex.PrimaryKey()),
		docdex.Prop("age", docdex.Indexed(docdex.FieldNumeric)),
		docdex.Prop("employer"),
		docdex.One("company", "employer", "Company.id", docdex.WithProperties("name")),
	)
	employee := reg.MustDefine("Employee", "crm", "people",
		docdex.Prop("id", docdex.PrimaryKey()),
		docdex.Prop("age", docdex.Indexed(docdex.FieldNumeric)),
		docdex.Prop("badge", docdex.Default("none")),
	)
	ctx := context.Background()
	if err := reg.EnsureIndexes(ctx); err != nil {
		t.Fatal(err)
	}

	acme := company.MustNew(map[string]any{"id": "c1", "name": "Acme"})
	if _, err := acme.Store(ctx); err != nil {
		t.Fatal(err)
	}
	bulk := reg.NewBulk()
	if err := bulk.Index(person.MustNew(map[string]any{"id": "p1", "age": 40, "company": acme})); err != nil {
		t.Fatal(err)
	}
	if err := bulk.Index(employee.MustNew(map[string]any{"id": "e1", "age": 30})); err != nil {
		t.Fatal(err)
	}
	results, err := bulk.Flush(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, res := range results {
		if res.Err != nil {
			t.Fatalf("bulk item %s: %v", res.ID, res.Err)
		}
	}

	p, err := person.Get(ctx, "p1")
	if err != nil || p == nil {
		t.Fatalf("Get(p1) = %v, %v", p, err)
	}
	rel, err := p.Relation("company")
	if err != nil {
		t.Fatal(err)
	}
	got, err := rel.Resolve(ctx)
	if err != nil || got == nil || got.MustGet("name") != "Acme" {
		t.Fatalf("Resolve() = %v, %v", got, err)
	}

	// Searching through Person yields every kind stored under crm/people.
	res, err := person.Search(ctx, &docdex.SearchRequest{SortBy: "age", Resolve: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 2 {
		t.Fatalf("total = %d", res.Total)
	}
	if k := res.Hits[0].Document.Kind(); k != employee {
		t.Errorf("first hit kind = %v, want Employee", k)
	}
	if badge := res.Hits[0].Document.MustGet("badge"); badge != "none" {
		t.Errorf("badge = %v", badge)
	}
	if k := res.Hits[1].Document.Kind(); k != person {
		t.Errorf("second hit kind = %v, want Person", k)
	}

	n, err := person.Count(ctx, docdex.Query{Must: []docdex.Condition{docdex.Between("age", 35, 50)}})
	if err != nil || n != 1 {
		t.Errorf("Count() = %d, %v", n, err)
	}
}
