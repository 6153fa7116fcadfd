package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"

	"github.com/kailas-cloud/docdex"
	"github.com/kailas-cloud/docdex/internal/db"
)

// VersionField holds the document version inside the stored JSON.
const VersionField = "__version"

const versionNamespace = "__version:"

// encodeBody marshals body with the version field set. body is not modified.
func encodeBody(body map[string]any, version int64) ([]byte, error) {
	doc := make(map[string]any, len(body)+1)
	maps.Copy(doc, body)
	doc[VersionField] = version
	return json.Marshal(doc)
}

// parseRecord decodes a stored JSON object into a record.
func parseRecord(id string, raw []byte) (docdex.Record, error) {
	if len(raw) == 0 {
		return docdex.Record{}, errors.New("empty document")
	}
	var src map[string]any
	if err := json.Unmarshal(raw, &src); err != nil {
		return docdex.Record{}, err
	}
	if src == nil {
		return docdex.Record{}, errors.New("document is not an object")
	}
	return docdex.Record{ID: id, Version: popVersion(src), Found: true, Source: src}, nil
}

// parsePathRecord decodes the "$" path reply, a one-element JSON array.
func parsePathRecord(id string, raw []byte) (docdex.Record, error) {
	var docs []json.RawMessage
	if err := json.Unmarshal(raw, &docs); err != nil {
		return docdex.Record{}, err
	}
	if len(docs) == 0 {
		return docdex.Record{ID: id}, nil
	}
	return parseRecord(id, docs[0])
}

func popVersion(src map[string]any) int64 {
	v, _ := src[VersionField].(float64)
	delete(src, VersionField)
	return int64(v)
}

// buildIndex creates a JSON IndexDefinition from the kind's indexed fields.
func buildIndex(name, prefix string, fields []docdex.IndexedField) (*db.IndexDefinition, error) {
	b := db.NewIndex(name).OnJSON().Prefix(prefix)
	for _, f := range fields {
		switch f.Type {
		case docdex.FieldTag:
			b.Tag(f.Name)
		case docdex.FieldNumeric:
			b.Numeric(f.Name)
		case docdex.FieldText:
			b.Text(f.Name)
		default:
			return nil, fmt.Errorf("field %q: unknown field type %q", f.Name, f.Type)
		}
	}
	def, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", name, err)
	}
	return def, nil
}
