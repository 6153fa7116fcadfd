package bolt

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "docdex.db"), Options{NoSync: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

// seed indexes docs under crm/person, keyed by their "id".
func seed(t *testing.T, r *Repo, docs ...map[string]any) {
	t.Helper()
	for _, d := range docs {
		id, _ := d["id"].(string)
		if _, err := r.Index(context.Background(), "crm", "person", id, d); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
}
