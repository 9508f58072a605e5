package mongodbc

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/cppdbc/go-cppdbc"
)

// Cursor wraps a *mongo.Cursor as a forward-only, non-rewindable iterator
// over Documents. Skip/Limit/Sort only take effect before the first Next
// call; calling one afterwards is rejected, the document-store analogue of
// cppdbc's relational ResultSet being forward-only once iteration starts.
//
// A Cursor returned by Collection.Find doesn't run the query until the
// first Next call, so Skip/Limit/Sort set beforehand still shape it; a
// Cursor returned by Aggregate is already running (the pipeline's own
// $skip/$limit/$sort stages cover that case) and rejects all three.
type Cursor struct {
	coll     *mongo.Collection
	filter   bson.M
	findOpts *options.FindOptionsBuilder

	cursor  *mongo.Cursor
	started bool
	current *Document
	closed  bool
}

// newCursor wraps an already-executing cursor, e.g. from Aggregate.
func newCursor(cursor *mongo.Cursor) *Cursor {
	return &Cursor{cursor: cursor, started: true}
}

// newFindCursor defers the actual Find call until the first Next, so
// Skip/Limit/Sort set between construction and then still apply.
func newFindCursor(coll *mongo.Collection, filter bson.M) *Cursor {
	return &Cursor{coll: coll, filter: filter, findOpts: options.Find()}
}

func (c *Cursor) checkOpen() error {
	if c.closed {
		return cppdbc.NewError(cppdbc.CodeResultSetClosed, "cursor closed")
	}
	return nil
}

// checkNotStarted gates the pre-iteration modifier methods: once Next has
// run once, skip/limit/sort can no longer change what's already underway.
func (c *Cursor) checkNotStarted() error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if c.started {
		return cppdbc.NewError(cppdbc.CodeModifyAfterIterate, "cannot modify cursor after iteration has started")
	}
	if c.findOpts == nil {
		return cppdbc.NewError(cppdbc.CodeModifyAfterIterate, "cursor has no pending query to modify")
	}
	return nil
}

// Skip sets the number of documents to skip before the first returned
// document. Fails once iteration has started.
func (c *Cursor) Skip(n int64) error {
	if err := c.checkNotStarted(); err != nil {
		return err
	}
	c.findOpts.SetSkip(n)
	return nil
}

// Limit caps the number of documents the cursor returns. Fails once
// iteration has started.
func (c *Cursor) Limit(n int64) error {
	if err := c.checkNotStarted(); err != nil {
		return err
	}
	c.findOpts.SetLimit(n)
	return nil
}

// Sort sets the sort order from a Document of field -> 1/-1. Fails once
// iteration has started.
func (c *Cursor) Sort(sort *Document) error {
	if err := c.checkNotStarted(); err != nil {
		return err
	}
	c.findOpts.SetSort(sort.Raw())
	return nil
}

// ensureStarted fires the deferred Find on the first Next call.
func (c *Cursor) ensureStarted(ctx context.Context) error {
	if c.started {
		return nil
	}
	c.started = true
	cur, err := c.coll.Find(ctx, c.filter, c.findOpts)
	if err != nil {
		return cppdbc.WrapError(cppdbc.CodeExecuteFailed, "find failed", err)
	}
	c.cursor = cur
	return nil
}

// Next advances the cursor, returning false at exhaustion (not an error).
func (c *Cursor) Next(ctx context.Context) (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	if err := c.ensureStarted(ctx); err != nil {
		return false, err
	}
	if !c.cursor.Next(ctx) {
		if err := c.cursor.Err(); err != nil {
			return false, cppdbc.WrapError(cppdbc.CodeExecuteFailed, "iterating cursor", err)
		}
		c.current = nil
		return false, nil
	}
	var raw bson.M
	if err := c.cursor.Decode(&raw); err != nil {
		return false, cppdbc.WrapError(cppdbc.CodeExecuteFailed, "decoding document", err)
	}
	c.current = NewDocument(raw)
	return true, nil
}

// Current returns the document the most recent Next call produced.
func (c *Cursor) Current() (*Document, error) {
	if c.current == nil {
		return nil, cppdbc.NewError(cppdbc.CodeIterateBeforeFirst, "no current document: call Next first")
	}
	return c.current, nil
}

// ToSlice drains the remainder of the cursor into a slice, closing it
// afterward.
func (c *Cursor) ToSlice(ctx context.Context) ([]*Document, error) {
	defer c.Close(ctx)
	var out []*Document
	for {
		ok, err := c.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		doc, _ := c.Current()
		out = append(out, doc)
	}
}

// GetBatch reads up to n documents without draining the whole cursor.
func (c *Cursor) GetBatch(ctx context.Context, n int) ([]*Document, error) {
	out := make([]*Document, 0, n)
	for i := 0; i < n; i++ {
		ok, err := c.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		doc, _ := c.Current()
		out = append(out, doc)
	}
	return out, nil
}

// Close releases the underlying mongo cursor. Idempotent. A cursor that
// never started (Next was never called) has nothing to release.
func (c *Cursor) Close(ctx context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.cursor == nil {
		return nil
	}
	return c.cursor.Close(ctx)
}
