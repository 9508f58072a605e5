package mongodbc

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/cppdbc/go-cppdbc"
)

// Connection is the MongoDB implementation of cppdbc.Connection. It adds
// session-scoped multi-document transactions on top of the minimal
// lifecycle contract: BeginTransaction fails outright against a standalone
// deployment (no replica set), since MongoDB only supports multi-document
// transactions on a replica set or sharded cluster.
type Connection struct {
	mu sync.Mutex

	url      string
	client   *mongo.Client
	database *mongo.Database

	closed      bool
	wireVersion int
	replicaSet  bool
	mongos      bool
	activeSess  map[*mongo.Session]struct{}
	currentSess *mongo.Session
}

func newConnection(url string, client *mongo.Client, databaseName string, wireVersion int, replicaSet, mongos bool) *Connection {
	return &Connection{
		url:         url,
		client:      client,
		database:    client.Database(databaseName),
		wireVersion: wireVersion,
		replicaSet:  replicaSet,
		mongos:      mongos,
		activeSess:  make(map[*mongo.Session]struct{}),
	}
}

func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sessions := make([]*mongo.Session, 0, len(c.activeSess))
	for s := range c.activeSess {
		sessions = append(sessions, s)
	}
	c.activeSess = make(map[*mongo.Session]struct{})
	c.mu.Unlock()

	for _, s := range sessions {
		s.EndSession(context.Background())
	}
	return c.client.Disconnect(context.Background())
}

func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Connection) URL() string { return c.url }

func (c *Connection) Validate(ctx context.Context) error {
	if c.IsClosed() {
		return cppdbc.NewErrorWithStack(cppdbc.CodeConnectionClosed, "connection closed")
	}
	if err := c.client.Ping(ctx, nil); err != nil {
		return cppdbc.WrapError(cppdbc.CodeValidationFailed, "mongo ping failed", err)
	}
	return nil
}

// Collection returns a handle for the named collection, with CRUD and
// index administration.
func (c *Connection) Collection(name string) *Collection {
	return &Collection{conn: c, coll: c.database.Collection(name)}
}

// BeginTransaction starts a client session and a multi-document
// transaction against it. It fails on a standalone server, and on a
// replica set or sharded cluster that's below the minimum wire version
// transactions require, since MongoDB gates this feature on both topology
// and protocol version.
func (c *Connection) BeginTransaction(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return cppdbc.NewErrorWithStack(cppdbc.CodeConnectionClosed, "connection closed")
	}
	eligible := supportsReplicaSets(c.wireVersion, c.replicaSet) || (c.mongos && supportsSharding(c.wireVersion))
	if !eligible {
		return cppdbc.NewError(cppdbc.CodeFeatureNotCompiled, "multi-document transactions require a replica set or sharded cluster at a sufficient wire version")
	}
	if c.currentSess != nil {
		return cppdbc.NewError(cppdbc.CodeNestedTxUnsupported, "a transaction is already active")
	}
	sess, err := c.client.StartSession()
	if err != nil {
		return cppdbc.WrapError(cppdbc.CodeExecuteFailed, "starting mongo session", err)
	}
	if err := sess.StartTransaction(); err != nil {
		sess.EndSession(ctx)
		return cppdbc.WrapError(cppdbc.CodeExecuteFailed, "starting mongo transaction", err)
	}
	c.currentSess = sess
	c.activeSess[sess] = struct{}{}
	return nil
}

func (c *Connection) Commit(ctx context.Context) error {
	c.mu.Lock()
	sess := c.currentSess
	c.currentSess = nil
	c.mu.Unlock()
	if sess == nil {
		return cppdbc.NewError(cppdbc.CodeNoActiveTx, "no active transaction")
	}
	defer func() {
		sess.EndSession(ctx)
		c.mu.Lock()
		delete(c.activeSess, sess)
		c.mu.Unlock()
	}()
	if err := sess.CommitTransaction(ctx); err != nil {
		return cppdbc.WrapError(cppdbc.CodeCommitFailed, "commit failed", err)
	}
	return nil
}

func (c *Connection) Rollback(ctx context.Context) error {
	c.mu.Lock()
	sess := c.currentSess
	c.currentSess = nil
	c.mu.Unlock()
	if sess == nil {
		return cppdbc.NewError(cppdbc.CodeNoActiveTx, "no active transaction")
	}
	defer func() {
		sess.EndSession(ctx)
		c.mu.Lock()
		delete(c.activeSess, sess)
		c.mu.Unlock()
	}()
	if err := sess.AbortTransaction(ctx); err != nil {
		return cppdbc.WrapError(cppdbc.CodeRollbackFailed, "rollback failed", err)
	}
	return nil
}

func (c *Connection) TransactionActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSess != nil
}

// prepareForPoolReturn aborts any transaction left open by a caller that
// returned the connection without committing or rolling back, so the next
// borrower never inherits someone else's in-flight transaction.
func (c *Connection) prepareForPoolReturn(ctx context.Context) error {
	if c.TransactionActive() {
		return c.Rollback(ctx)
	}
	return nil
}
