// Package docdex maps documents stored in a search engine to Go values and
// tracks per-property changes, so a document can be indexed in full or
// updated with only the fields that changed.
//
// Kinds are registered explicitly, usually from init:
//
//	var Company = docdex.MustDefine("Company", "crm", "default",
//	    docdex.Prop("id", docdex.PrimaryKey(), docdex.Default(docdex.NewID)),
//	    docdex.Prop("name", docdex.Indexed(docdex.FieldTag)),
//	)
//
//	var Person = docdex.MustDefine("Person", "crm", "default",
//	    docdex.Prop("id", docdex.PrimaryKey()),
//	    docdex.Prop("refs", docdex.Default(map[string]any{})),
//	    docdex.One("company", "refs.company", "Company.id", docdex.WithProperties("name")),
//	)
//
// The engine is reached through a Client set on the registry:
//
//	_ = docdex.DefaultRegistry().Configure(docdex.WithClient(client), docdex.WithLogger(log))
//
//	p := Person.MustNew(map[string]any{"id": "p1", "company": acme})
//	_, _ = p.Store(ctx)
//	rel, _ := p.Relation("company")
//	c, _ := rel.Resolve(ctx)
//
// Documents and their resolvers are single-owner values and are not safe
// for concurrent use. The registry is.
package docdex
