package mongodbc

import (
	"context"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/cppdbc/go-cppdbc"
)

const driverVersion = "1.0.0"
const mongoURLPrefix = "cpp_dbc:mongodb://"

// Driver is the MongoDB implementation of root cppdbc.Driver. Unlike the
// relational drivers, Connect needs a database name pulled out of the URL
// path rather than passed alongside it, so parseURI separates connection
// string and target database up front.
type Driver struct{}

// NewDriver returns the MongoDB driver. Callers register it with
// cppdbc.RegisterDriver to make cpp_dbc:mongodb://... URLs dispatchable
// through cppdbc.Connect alongside the relational engines.
func NewDriver() *Driver { return &Driver{} }

func (d *Driver) Name() string { return "mongodb" }

func (d *Driver) AcceptsURL(url string) bool {
	return strings.HasPrefix(url, mongoURLPrefix)
}

// parseURI splits a cpp_dbc:mongodb://HOST[:PORT]/DATABASE URL into the
// mongo driver's own connection string and the target database name.
func parseURI(u string) (connString, database string, err error) {
	if !strings.HasPrefix(u, mongoURLPrefix) {
		return "", "", cppdbc.NewErrorWithStack(cppdbc.CodeMalformedURL, "not a mongodb url: "+u)
	}
	rest := strings.TrimPrefix(u, mongoURLPrefix)
	idx := strings.Index(rest, "/")
	if idx < 0 || idx == len(rest)-1 {
		return "", "", cppdbc.NewErrorWithStack(cppdbc.CodeMalformedURL, "mongodb url missing database: "+u)
	}
	hostPart := rest[:idx]
	database = rest[idx+1:]
	if q := strings.Index(database, "?"); q >= 0 {
		database = database[:q]
	}
	if database == "" {
		return "", "", cppdbc.NewErrorWithStack(cppdbc.CodeMalformedURL, "mongodb url missing database: "+u)
	}
	return "mongodb://" + hostPart, database, nil
}

// buildURI reassembles a cpp_dbc:mongodb:// URL from its parts, the
// inverse of parseURI.
func buildURI(hostPart, database string) string {
	return mongoURLPrefix + hostPart + "/" + database
}

// validateURI reports whether u parses as a well-formed mongodb URL
// without actually dialing it.
func validateURI(u string) error {
	_, _, err := parseURI(u)
	return err
}

func getDriverVersion() string { return driverVersion }

var libInitOnce sync.Once

// ensureLibInit performs any process-wide mongo driver setup exactly
// once. The v2 driver needs no explicit global registration, but the hook
// mirrors the call-once shape the relational drivers use for their
// database/sql registration, and gives a single place to wire one in the
// future.
func ensureLibInit() {
	libInitOnce.Do(func() {})
}

func (d *Driver) Connect(ctx context.Context, url, username, password string) (cppdbc.Connection, error) {
	ensureLibInit()
	connString, database, err := parseURI(url)
	if err != nil {
		return nil, err
	}
	opts := options.Client().ApplyURI(connString)
	if username != "" {
		opts.SetAuth(options.Credential{Username: username, Password: password})
	}
	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, cppdbc.WrapError(cppdbc.CodeConnectFailed, "connecting to mongodb", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, cppdbc.WrapError(cppdbc.CodeHandshakeFailed, "mongodb handshake failed", err)
	}
	wireVersion, replicaSet, mongos := probeTopology(ctx, client)
	return newConnection(url, client, database, wireVersion, replicaSet, mongos), nil
}

// probeTopology reads hello/isMaster to learn the max wire version, whether
// the deployment is a replica set, and whether it's being reached through a
// mongos router (a sharded cluster always identifies itself with
// msg:"isdbgrid" in the hello reply). Together these gate transaction
// support (see Connection.BeginTransaction).
func probeTopology(ctx context.Context, client *mongo.Client) (wireVersion int, replicaSet bool, mongos bool) {
	var result struct {
		MaxWireVersion int    `bson:"maxWireVersion"`
		SetName        string `bson:"setName"`
		Msg            string `bson:"msg"`
	}
	if err := client.Database("admin").RunCommand(ctx, map[string]interface{}{"hello": 1}).Decode(&result); err != nil {
		return 0, false, false
	}
	return result.MaxWireVersion, result.SetName != "", result.Msg == "isdbgrid"
}

// supportsReplicaSets reports whether the connected deployment is part of
// a replica set (needed for multi-document transactions).
func supportsReplicaSets(wireVersion int, replicaSet bool) bool {
	return replicaSet && wireVersion >= 7
}

// supportsSharding reports whether maxWireVersion indicates a mongos new
// enough (wire version 8 or later) to run multi-document transactions on a
// sharded cluster.
func supportsSharding(wireVersion int) bool {
	return wireVersion >= 8
}

// cleanup releases any process-wide mongo driver state. Paired with
// ensureLibInit; currently a no-op placeholder since the v2 driver has no
// global teardown of its own, kept for symmetry with the registry
// lifecycle the relational drivers expose through ClearDrivers.
func cleanup() {}
