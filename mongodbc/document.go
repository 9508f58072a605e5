// Package mongodbc adapts cppdbc's Connection/Driver contracts to MongoDB,
// a document store rather than a relational engine: Document replaces
// Record/Value, Cursor replaces ResultSet, and Collection replaces prepared
// statements + execute.
package mongodbc

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/cppdbc/go-cppdbc"
)

// Document wraps a bson.M with dotted-path reads and whole-document writes.
// Mongo's own driver supports dotted update paths natively; cppdbc keeps
// Document's own Set restricted to non-dotted top-level keys and rebuilds
// nested structure explicitly, so a caller's intent is always visible in
// the document tree rather than hidden inside a dot-path string.
type Document struct {
	data bson.M
}

// NewDocument wraps an existing bson.M (not copied).
func NewDocument(data bson.M) *Document {
	if data == nil {
		data = bson.M{}
	}
	return &Document{data: data}
}

// NewEmptyDocument returns a Document with no fields.
func NewEmptyDocument() *Document {
	return &Document{data: bson.M{}}
}

// NewDocumentFromJSON parses a MongoDB extended-JSON string (the format
// mongoexport/mongosh print, e.g. {"name":"bob"} or {"_id":{"$oid":"..."}})
// into a Document. Malformed JSON surfaces as CodeInvalidJSON, the filter/
// update parsing entry point driven by caller-supplied query strings.
func NewDocumentFromJSON(text string) (*Document, error) {
	var raw bson.M
	if err := bson.UnmarshalExtJSON([]byte(text), true, &raw); err != nil {
		return nil, cppdbc.WrapError(cppdbc.CodeInvalidJSON, "parsing document json", err)
	}
	return NewDocument(raw), nil
}

// Raw returns the underlying bson.M, for handing to the mongo driver.
func (d *Document) Raw() bson.M { return d.data }

// Get reads a (possibly dotted) path, e.g. "address.city".
func (d *Document) Get(path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var cur interface{} = d.data
	for _, p := range parts {
		m, ok := cur.(bson.M)
		if !ok {
			return nil, false
		}
		v, ok := m[p]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// Set writes a top-level, non-dotted key. Nested documents must be built
// explicitly with NewEmptyDocument and assigned as a value, to keep tree
// construction visible rather than implied by a dotted string. A *Document
// value is unwrapped to its underlying bson.M so it marshals the same way a
// directly-built nested map would.
func (d *Document) Set(key string, value interface{}) error {
	if strings.Contains(key, ".") {
		return cppdbc.NewError(cppdbc.CodeNestedSetUnimpl, "nested set via dotted path is not supported: use a nested Document value")
	}
	if nested, ok := value.(*Document); ok {
		value = nested.Raw()
	}
	d.data[key] = value
	return nil
}

// Delete removes a top-level key.
func (d *Document) Delete(key string) {
	delete(d.data, key)
}

// ID returns the document's _id as a 24-character hex string, the
// canonical external representation of a bson.ObjectID.
func (d *Document) ID() (string, bool) {
	raw, ok := d.data["_id"]
	if !ok {
		return "", false
	}
	switch v := raw.(type) {
	case bson.ObjectID:
		return v.Hex(), true
	case string:
		return v, true
	default:
		return "", false
	}
}

// SetID sets _id from a 24-character hex string, coercing it to a
// bson.ObjectID the way the wire format requires.
func (d *Document) SetID(hex string) error {
	oid, err := bson.ObjectIDFromHex(hex)
	if err != nil {
		return cppdbc.WrapError(cppdbc.CodeInvalidJSON, "invalid object id hex", err)
	}
	d.data["_id"] = oid
	return nil
}

// Clone deep-copies the document by round-tripping through BSON, giving a
// caller a safe detached copy without hand-walking nested maps/slices.
func (d *Document) Clone() (*Document, error) {
	raw, err := bson.Marshal(d.data)
	if err != nil {
		return nil, cppdbc.WrapError(cppdbc.CodeInvalidJSON, "marshaling document for clone", err)
	}
	var out bson.M
	if err := bson.Unmarshal(raw, &out); err != nil {
		return nil, cppdbc.WrapError(cppdbc.CodeInvalidJSON, "unmarshaling cloned document", err)
	}
	return &Document{data: out}, nil
}

// ToJson renders the document as compact MongoDB extended JSON (canonical
// form, so a round-tripped $oid/$numberLong etc. is unambiguous). Top-level
// keys are emitted in sorted order, so documents with equal top-level
// content render identically; keys inside nested documents follow the
// bson encoder's map iteration order, which is not fixed.
func (d *Document) ToJson() (string, error) {
	keys := make([]string, 0, len(d.data))
	for k := range d.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make(bson.D, 0, len(keys))
	for _, k := range keys {
		ordered = append(ordered, bson.E{Key: k, Value: d.data[k]})
	}
	out, err := bson.MarshalExtJSON(ordered, true, false)
	if err != nil {
		return "", cppdbc.WrapError(cppdbc.CodeInvalidJSON, "marshaling document to json", err)
	}
	return string(out), nil
}

// ToJsonPretty renders the document as indented MongoDB extended JSON, with
// the same key order as ToJson.
func (d *Document) ToJsonPretty() (string, error) {
	var buf bytes.Buffer
	compact, err := d.ToJson()
	if err != nil {
		return "", err
	}
	if err := json.Indent(&buf, []byte(compact), "", "  "); err != nil {
		return "", cppdbc.WrapError(cppdbc.CodeInvalidJSON, "indenting document json", err)
	}
	return buf.String(), nil
}
