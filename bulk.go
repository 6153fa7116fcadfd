package docdex

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// BulkOp is the kind of a bulk action.
type BulkOp string

const (
	BulkIndex  BulkOp = "index"
	BulkUpdate BulkOp = "update"
	BulkDelete BulkOp = "delete"
)

// BulkAction is one queued write, with the same bodies Store and
// UpdateOrCreate would send.
type BulkAction struct {
	Op     BulkOp
	Index  string
	Type   string
	ID     string
	Body   map[string]any
	Update UpdateBody
}

// BulkResult is the outcome of one action.
type BulkResult struct {
	ID  string
	Op  BulkOp
	Ack Ack
	Err error
}

// BulkExecutor is implemented by clients that can run many actions in one
// round trip. Results are in action order.
type BulkExecutor interface {
	Bulk(ctx context.Context, actions []BulkAction) ([]BulkResult, error)
}

type bulkEntry struct {
	doc    *Document
	fields []string
}

// Bulk queues index, update and delete actions for documents of any kind
// in the registry. Bodies are captured when an action is queued; a
// successful action commits its document on Flush.
type Bulk struct {
	reg     *Registry
	actions []BulkAction
	entries []bulkEntry
}

// NewBulk returns an empty batch bound to r.
func (r *Registry) NewBulk() *Bulk { return &Bulk{reg: r} }

// Len returns the number of queued actions.
func (b *Bulk) Len() int { return len(b.actions) }

// Index queues a full index of d.
func (b *Bulk) Index(d *Document) error {
	id, err := d.PrimaryKey(false)
	if err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("docdex: kind %s: %w", d.kind.name, ErrMissingPrimaryKey)
	}
	body, err := d.IndexBody()
	if err != nil {
		return err
	}
	b.push(BulkAction{Op: BulkIndex, Index: d.meta.index, Type: d.meta.docType, ID: id, Body: body}, d, nil)
	return nil
}

// Update queues an update with upsert of d, see Document.UpdateBody.
func (b *Bulk) Update(d *Document, props ...string) error {
	id, err := d.PrimaryKey(false)
	if err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("docdex: kind %s: %w", d.kind.name, ErrMissingPrimaryKey)
	}
	fields, err := d.updateFields(props)
	if err != nil {
		return err
	}
	body, err := d.UpdateBody(props...)
	if err != nil {
		return err
	}
	b.push(BulkAction{Op: BulkUpdate, Index: d.meta.index, Type: d.meta.docType, ID: id, Update: body}, d, fields)
	return nil
}

// Delete queues a delete of d. New documents are skipped.
func (b *Bulk) Delete(d *Document) {
	if d.IsNew() {
		return
	}
	b.push(BulkAction{Op: BulkDelete, Index: d.meta.index, Type: d.meta.docType, ID: d.meta.id}, d, nil)
}

func (b *Bulk) push(a BulkAction, d *Document, fields []string) {
	b.actions = append(b.actions, a)
	b.entries = append(b.entries, bulkEntry{doc: d, fields: fields})
}

// Flush sends the queued actions and empties the batch. Per-item failures
// are reported in the results; the error is reserved for the batch itself.
func (b *Bulk) Flush(ctx context.Context) (results []BulkResult, err error) {
	if len(b.actions) == 0 {
		return []BulkResult{}, nil
	}
	start := time.Now()
	defer func() { b.reg.observer().observe("bulk", "", start, err) }()

	c := b.reg.Client()
	if c == nil {
		return nil, fmt.Errorf("docdex: bulk: %w", ErrNoClient)
	}

	actions, entries := b.actions, b.entries
	b.actions, b.entries = nil, nil

	if ex, ok := c.(BulkExecutor); ok {
		results, err = ex.Bulk(ctx, actions)
		if err != nil {
			return nil, fmt.Errorf("bulk: %w", err)
		}
		if len(results) != len(actions) {
			return nil, fmt.Errorf("bulk: got %d results for %d actions", len(results), len(actions))
		}
	} else {
		results = make([]BulkResult, len(actions))
		for i, a := range actions {
			results[i] = runAction(ctx, c, a)
		}
	}

	for i, res := range results {
		if res.Err != nil {
			b.reg.logger().Warn("Bulk item failed",
				zap.String("op", string(res.Op)),
				zap.String("id", res.ID),
				zap.Error(res.Err),
			)
			continue
		}
		commitAction(actions[i], entries[i], res.Ack)
	}
	return results, nil
}

func runAction(ctx context.Context, c Client, a BulkAction) BulkResult {
	res := BulkResult{ID: a.ID, Op: a.Op}
	switch a.Op {
	case BulkIndex:
		res.Ack, res.Err = c.Index(ctx, a.Index, a.Type, a.ID, a.Body)
	case BulkUpdate:
		res.Ack, res.Err = c.Update(ctx, a.Index, a.Type, a.ID, a.Update)
	case BulkDelete:
		res.Ack, res.Err = c.Delete(ctx, a.Index, a.Type, a.ID)
	default:
		res.Err = fmt.Errorf("unknown bulk op %q", a.Op)
	}
	return res
}

func commitAction(a BulkAction, e bulkEntry, ack Ack) {
	d := e.doc
	switch a.Op {
	case BulkIndex:
		d.values.MaterializeFull(d.kind.name, true)
		d.meta.id = a.ID
		d.meta.committed = true
		d.meta.version = ack.Version
	case BulkUpdate:
		d.commitUpdate(a.ID, e.fields, ack)
	}
}
