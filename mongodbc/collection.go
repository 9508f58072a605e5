package mongodbc

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/cppdbc/go-cppdbc"
)

// parseFilter parses a caller-supplied filter/update JSON string into a
// bson.M via the same extended-JSON path as NewDocumentFromJSON. An empty
// string means "match everything" (countDocuments(""), an unfiltered
// delete/update guard, and so on all rely on this).
func parseFilter(filterJSON string) (bson.M, error) {
	if strings.TrimSpace(filterJSON) == "" {
		return bson.M{}, nil
	}
	d, err := NewDocumentFromJSON(filterJSON)
	if err != nil {
		return nil, err
	}
	return d.Raw(), nil
}

// Collection is the document-store analogue of a prepared statement plus
// execute: every call runs immediately rather than building up bound
// parameters first.
type Collection struct {
	conn *Connection
	coll *mongo.Collection
}

// InsertResult reports the outcome of an insert.
type InsertResult struct {
	InsertedID string
}

// UpdateResult reports the outcome of an update.
type UpdateResult struct {
	MatchedCount  int64
	ModifiedCount int64
	UpsertedID    string
}

// DeleteResult reports the outcome of a delete.
type DeleteResult struct {
	DeletedCount int64
}

// InsertMany inserts docs in one ordered batch by default; bypassValidation
// passes through to the server-side schema validation bypass option.
func (c *Collection) InsertMany(ctx context.Context, docs []*Document, bypassValidation bool) ([]string, error) {
	raw := make([]interface{}, len(docs))
	for i, d := range docs {
		raw[i] = d.Raw()
	}
	opts := options.InsertMany().SetOrdered(true).SetBypassDocumentValidation(bypassValidation)
	res, err := c.coll.InsertMany(ctx, raw, opts)
	if err != nil {
		return nil, cppdbc.WrapError(cppdbc.CodeExecuteFailed, "insert many failed", err)
	}
	ids := make([]string, 0, len(res.InsertedIDs))
	for _, raw := range res.InsertedIDs {
		if oid, ok := raw.(bson.ObjectID); ok {
			ids = append(ids, oid.Hex())
		}
	}
	return ids, nil
}

// FindOne returns the first document matching filterJSON (a query-operator
// JSON string, e.g. `{"name":"bob"}`), or nil if none match.
func (c *Collection) FindOne(ctx context.Context, filterJSON string) (*Document, error) {
	filter, err := parseFilter(filterJSON)
	if err != nil {
		return nil, err
	}
	var raw bson.M
	err = c.coll.FindOne(ctx, filter).Decode(&raw)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, cppdbc.WrapError(cppdbc.CodeExecuteFailed, "find one failed", err)
	}
	return NewDocument(raw), nil
}

// CountDocuments counts documents matching filterJSON. An empty string
// counts the whole collection.
func (c *Collection) CountDocuments(ctx context.Context, filterJSON string) (int64, error) {
	filter, err := parseFilter(filterJSON)
	if err != nil {
		return 0, err
	}
	n, err := c.coll.CountDocuments(ctx, filter)
	if err != nil {
		return 0, cppdbc.WrapError(cppdbc.CodeExecuteFailed, "count documents failed", err)
	}
	return n, nil
}

// DropAllIndexes drops every index on the collection except the default
// _id index, mirroring a dropIndexes:name,index:"*" administrative call.
func (c *Collection) DropAllIndexes(ctx context.Context) error {
	if err := c.coll.Indexes().DropAll(ctx); err != nil {
		return cppdbc.WrapError(cppdbc.CodeExecuteFailed, "drop all indexes failed", err)
	}
	return nil
}

func (c *Collection) Insert(ctx context.Context, doc *Document) (*InsertResult, error) {
	res, err := c.coll.InsertOne(ctx, doc.Raw())
	if err != nil {
		return nil, cppdbc.WrapError(cppdbc.CodeExecuteFailed, "insert failed", err)
	}
	var hex string
	if oid, ok := res.InsertedID.(bson.ObjectID); ok {
		hex = oid.Hex()
	}
	return &InsertResult{InsertedID: hex}, nil
}

// FindByID constructs its filter from an ObjectID value, never by
// concatenating the hex string into a query, so a malformed or
// attacker-controlled id can never be interpreted as query structure.
func (c *Collection) FindByID(ctx context.Context, hex string) (*Document, error) {
	oid, err := bson.ObjectIDFromHex(hex)
	if err != nil {
		return nil, cppdbc.WrapError(cppdbc.CodeInvalidJSON, "invalid object id hex", err)
	}
	var raw bson.M
	err = c.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&raw)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, cppdbc.WrapError(cppdbc.CodeExecuteFailed, "find by id failed", err)
	}
	return NewDocument(raw), nil
}

// Find parses filterJSON and returns a Cursor. The query itself doesn't run
// until the cursor's first Next call, so Skip/Limit/Sort called on the
// returned Cursor beforehand still shape it.
func (c *Collection) Find(ctx context.Context, filterJSON string) (*Cursor, error) {
	filter, err := parseFilter(filterJSON)
	if err != nil {
		return nil, err
	}
	return newFindCursor(c.coll, filter), nil
}

// UpdateOne parses filterJSON and updateJSON (a `{"$set": ...}`-shaped
// update document) and applies the update to the first matching document.
func (c *Collection) UpdateOne(ctx context.Context, filterJSON, updateJSON string, upsert bool) (*UpdateResult, error) {
	filter, err := parseFilter(filterJSON)
	if err != nil {
		return nil, err
	}
	update, err := parseFilter(updateJSON)
	if err != nil {
		return nil, err
	}
	opts := options.Update().SetUpsert(upsert)
	res, err := c.coll.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return nil, cppdbc.WrapError(cppdbc.CodeExecuteFailed, "update failed", err)
	}
	var upsertedHex string
	if oid, ok := res.UpsertedID.(bson.ObjectID); ok {
		upsertedHex = oid.Hex()
	}
	return &UpdateResult{MatchedCount: res.MatchedCount, ModifiedCount: res.ModifiedCount, UpsertedID: upsertedHex}, nil
}

func (c *Collection) DeleteOne(ctx context.Context, filterJSON string) (*DeleteResult, error) {
	filter, err := parseFilter(filterJSON)
	if err != nil {
		return nil, err
	}
	res, err := c.coll.DeleteOne(ctx, filter)
	if err != nil {
		return nil, cppdbc.WrapError(cppdbc.CodeExecuteFailed, "delete failed", err)
	}
	return &DeleteResult{DeletedCount: res.DeletedCount}, nil
}

func (c *Collection) DeleteMany(ctx context.Context, filterJSON string) (*DeleteResult, error) {
	filter, err := parseFilter(filterJSON)
	if err != nil {
		return nil, err
	}
	res, err := c.coll.DeleteMany(ctx, filter)
	if err != nil {
		return nil, cppdbc.WrapError(cppdbc.CodeExecuteFailed, "delete failed", err)
	}
	return &DeleteResult{DeletedCount: res.DeletedCount}, nil
}

// Distinct returns the distinct values of field among documents matching
// filterJSON.
func (c *Collection) Distinct(ctx context.Context, field string, filterJSON string) ([]interface{}, error) {
	filter, err := parseFilter(filterJSON)
	if err != nil {
		return nil, err
	}
	res := c.coll.Distinct(ctx, field, filter)
	values, err := res.Raw()
	if err != nil {
		return nil, cppdbc.WrapError(cppdbc.CodeExecuteFailed, "distinct failed", err)
	}
	vals, err := values.Values()
	if err != nil {
		return nil, cppdbc.WrapError(cppdbc.CodeExecuteFailed, "decoding distinct values", err)
	}
	out := make([]interface{}, 0, len(vals))
	for _, v := range vals {
		out = append(out, v)
	}
	return out, nil
}

// Aggregate runs a pipeline of stage documents and returns a Cursor over
// the results.
func (c *Collection) Aggregate(ctx context.Context, pipeline []*Document) (*Cursor, error) {
	stages := make([]bson.M, len(pipeline))
	for i, d := range pipeline {
		stages[i] = d.Raw()
	}
	cur, err := c.coll.Aggregate(ctx, stages)
	if err != nil {
		return nil, cppdbc.WrapError(cppdbc.CodeExecuteFailed, "aggregate failed", err)
	}
	return newCursor(cur), nil
}

// CreateIndex builds an index from keys (field -> 1/-1/"text"/...).
func (c *Collection) CreateIndex(ctx context.Context, keys *Document, unique bool) (string, error) {
	model := mongo.IndexModel{
		Keys:    keys.Raw(),
		Options: options.Index().SetUnique(unique),
	}
	name, err := c.coll.Indexes().CreateOne(ctx, model)
	if err != nil {
		return "", cppdbc.WrapError(cppdbc.CodeExecuteFailed, "create index failed", err)
	}
	return name, nil
}

func (c *Collection) DropIndex(ctx context.Context, name string) error {
	_, err := c.coll.Indexes().DropOne(ctx, name)
	if err != nil {
		return cppdbc.WrapError(cppdbc.CodeExecuteFailed, "drop index failed", err)
	}
	return nil
}

func (c *Collection) Drop(ctx context.Context) error {
	if err := c.coll.Drop(ctx); err != nil {
		return cppdbc.WrapError(cppdbc.CodeExecuteFailed, "drop collection failed", err)
	}
	return nil
}

// Rename renames the collection in place, via the admin database's
// collMod-adjacent renameCollection command.
func (c *Collection) Rename(ctx context.Context, newName string) error {
	admin := c.conn.client.Database("admin")
	cmd := bson.D{
		{Key: "renameCollection", Value: c.coll.Database().Name() + "." + c.coll.Name()},
		{Key: "to", Value: c.coll.Database().Name() + "." + newName},
	}
	if err := admin.RunCommand(ctx, cmd).Err(); err != nil {
		return cppdbc.WrapError(cppdbc.CodeExecuteFailed, "rename collection failed", err)
	}
	return nil
}
