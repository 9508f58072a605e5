package cppdbc

import (
	"context"
	"database/sql"
	"sync"

	"github.com/gogf/gf/os/glog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Connection is the minimal contract shared by every engine connection,
// relational or document. Pooling wraps it (see PooledConnection in
// pool.go); this interface only covers lifecycle and identity.
type Connection interface {
	// Close tears the connection down, cascading to every live child
	// resource first. Idempotent: once closed, IsClosed stays true.
	Close() error

	// IsClosed reports whether Close has run.
	IsClosed() bool

	// URL returns the connection URL used to construct it.
	URL() string

	// Validate probes liveness, the same check the pool runs on borrow
	// when TestOnBorrow is set.
	Validate(ctx context.Context) error
}

// RelationalConnection is a Connection that additionally exposes SQL
// execution, prepared statements, and transaction control.
type RelationalConnection interface {
	Connection

	PrepareStatement(sqlText string) (PreparedStatement, error)
	ExecuteQuery(sqlText string, args ...interface{}) (ResultSet, error)
	ExecuteUpdate(sqlText string, args ...interface{}) (int64, error)

	SetAutoCommit(auto bool) error
	AutoCommit() bool
	BeginTransaction() error
	Commit() error
	Rollback() error
	TransactionActive() bool

	SetTransactionIsolation(level IsolationLevel) error
	TransactionIsolation() IsolationLevel
}

// closeNotifier is implemented by every child resource a connection tracks
// (prepared statements, result sets). notifyConnClosing lets the child drop
// its engine handle before the owning session is torn down, the Go
// equivalent of upgrading a weak reference and finding it already gone.
type closeNotifier interface {
	notifyConnClosing()
}

// childRegistry tracks live child resources so Close can cascade to them.
// A child removes its own entry when it is closed; there is no size-based
// pruning, so a child that is never closed stays registered until the
// connection closes.
type childRegistry struct {
	mu    sync.Mutex
	items map[int64]closeNotifier
	next  int64
}

func newChildRegistry() *childRegistry {
	return &childRegistry{items: make(map[int64]closeNotifier)}
}

func (r *childRegistry) add(n closeNotifier) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	id := r.next
	r.items[id] = n
	return id
}

func (r *childRegistry) remove(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
}

// closeAll snapshots and notifies every live child, then clears the set.
func (r *childRegistry) closeAll() {
	r.mu.Lock()
	snapshot := make([]closeNotifier, 0, len(r.items))
	for _, n := range r.items {
		snapshot = append(snapshot, n)
	}
	r.items = make(map[int64]closeNotifier)
	r.mu.Unlock()

	for _, n := range snapshot {
		n.notifyConnClosing()
	}
}

// sqlConnection is the database/sql-backed implementation of
// RelationalConnection shared by the MySQL, PostgreSQL, and SQLite
// drivers. Each logical cppdbc Connection reserves a *sql.DB configured
// with MaxOpenConns=1 so it behaves as one dedicated physical connection —
// the custom pooling and lifecycle management this library provides (C10)
// sits a layer above database/sql's own pool, not nested inside it.
type sqlConnection struct {
	mu sync.Mutex

	url        string
	engineName string
	db         *sql.DB
	tx         *sql.Tx

	closed     bool
	autoCommit bool
	txActive   bool
	isolation  IsolationLevel

	children *childRegistry

	logger *glog.Logger
	tracer trace.Tracer
}

func newSQLConnection(engineName, url string, db *sql.DB) *sqlConnection {
	return &sqlConnection{
		url:        url,
		engineName: engineName,
		db:         db,
		autoCommit: true,
		isolation:  ReadCommitted,
		children:   newChildRegistry(),
		logger:     glog.New(),
		tracer:     otel.Tracer("cppdbc/" + engineName),
	}
}

// upgrade mirrors the weak-reference-upgrade step the spec describes:
// Validate calls it first, and child statements and result sets run the
// same closed-connection check first in their checkOpen, so once the
// connection is closed they all fail uniformly with "connection closed".
func (c *sqlConnection) upgrade() (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, NewErrorWithStack(CodeConnectionClosed, "connection closed")
	}
	return c.db, nil
}

func (c *sqlConnection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	tx := c.tx
	c.tx = nil
	c.txActive = false
	db := c.db
	c.mu.Unlock()

	// Cascade to every live statement/result set before the session
	// handle itself is freed (invariant I2).
	c.children.closeAll()

	if tx != nil {
		_ = tx.Rollback()
	}
	return db.Close()
}

func (c *sqlConnection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *sqlConnection) URL() string { return c.url }

func (c *sqlConnection) Validate(ctx context.Context) error {
	db, err := c.upgrade()
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		return WrapError(CodeValidationFailed, "connection validation failed", err)
	}
	return nil
}

// currentExecutor returns whichever of {tx, db} statements should run
// against right now, plus a context-aware wrapper interface.
func (c *sqlConnection) currentExecutor() (sqlExecutor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, NewErrorWithStack(CodeConnectionClosed, "connection closed")
	}
	if c.tx != nil {
		return c.tx, nil
	}
	return c.db, nil
}

// sqlExecutor is the subset of *sql.DB / *sql.Tx / *sql.Conn this package
// needs, letting prepared statements and direct execution share code
// regardless of whether a transaction is active.
type sqlExecutor interface {
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (c *sqlConnection) PrepareStatement(sqlText string) (PreparedStatement, error) {
	ctx, span := c.tracer.Start(context.Background(), "PrepareStatement")
	defer span.End()

	exec, err := c.currentExecutor()
	if err != nil {
		return nil, err
	}
	stmt, err := exec.PrepareContext(ctx, sqlText)
	if err != nil {
		return nil, WrapError(CodeBindFailed, "preparing statement", err)
	}
	ps := newSQLPreparedStatement(c, sqlText, stmt)
	ps.registryID = c.children.add(ps)
	return ps, nil
}

func (c *sqlConnection) ExecuteQuery(sqlText string, args ...interface{}) (ResultSet, error) {
	ctx, span := c.tracer.Start(context.Background(), "ExecuteQuery")
	defer span.End()

	exec, err := c.currentExecutor()
	if err != nil {
		return nil, err
	}
	rows, err := exec.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, WrapError(CodeExecuteFailed, "executing query", err)
	}
	rs := newSQLResultSet(c, rows, true)
	rs.registryID = c.children.add(rs)
	return rs, nil
}

func (c *sqlConnection) ExecuteUpdate(sqlText string, args ...interface{}) (int64, error) {
	ctx, span := c.tracer.Start(context.Background(), "ExecuteUpdate")
	defer span.End()

	exec, err := c.currentExecutor()
	if err != nil {
		return 0, err
	}
	res, err := exec.ExecContext(ctx, sqlText, args...)
	if err != nil {
		return 0, WrapError(CodeExecuteFailed, "executing update", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, WrapError(CodeExecuteFailed, "reading affected rows", err)
	}
	return affected, nil
}

func (c *sqlConnection) SetAutoCommit(auto bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return NewErrorWithStack(CodeConnectionClosed, "connection closed")
	}
	if auto == c.autoCommit {
		return nil
	}
	if !auto {
		tx, err := c.db.BeginTx(context.Background(), &sql.TxOptions{Isolation: toSQLIsolation(c.isolation)})
		if err != nil {
			return WrapError(CodeExecuteFailed, "beginning transaction", err)
		}
		c.tx = tx
		c.txActive = true
	} else if c.tx != nil {
		if err := c.tx.Commit(); err != nil {
			return WrapError(CodeCommitFailed, "committing on autocommit restore", err)
		}
		c.tx = nil
		c.txActive = false
	}
	c.autoCommit = auto
	return nil
}

func (c *sqlConnection) AutoCommit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoCommit
}

func (c *sqlConnection) BeginTransaction() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return NewErrorWithStack(CodeConnectionClosed, "connection closed")
	}
	if c.txActive {
		return NewError(CodeNestedTxUnsupported, "a transaction is already active")
	}
	tx, err := c.db.BeginTx(context.Background(), &sql.TxOptions{Isolation: toSQLIsolation(c.isolation)})
	if err != nil {
		return WrapError(CodeExecuteFailed, "beginning transaction", err)
	}
	c.tx = tx
	c.txActive = true
	c.autoCommit = false
	return nil
}

func (c *sqlConnection) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return NewErrorWithStack(CodeConnectionClosed, "connection closed")
	}
	if c.tx == nil {
		return NewError(CodeNoActiveTx, "no active transaction")
	}
	err := c.tx.Commit()
	c.tx = nil
	c.txActive = false
	c.autoCommit = true
	if err != nil {
		return WrapError(CodeCommitFailed, "commit failed", err)
	}
	return nil
}

func (c *sqlConnection) Rollback() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return NewErrorWithStack(CodeConnectionClosed, "connection closed")
	}
	if c.tx == nil {
		return NewError(CodeNoActiveTx, "no active transaction")
	}
	err := c.tx.Rollback()
	c.tx = nil
	c.txActive = false
	c.autoCommit = true
	if err != nil {
		return WrapError(CodeRollbackFailed, "rollback failed", err)
	}
	return nil
}

func (c *sqlConnection) TransactionActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txActive
}

func (c *sqlConnection) SetTransactionIsolation(level IsolationLevel) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return NewErrorWithStack(CodeConnectionClosed, "connection closed")
	}
	c.isolation = level
	return nil
}

func (c *sqlConnection) TransactionIsolation() IsolationLevel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isolation
}

func toSQLIsolation(level IsolationLevel) sql.IsolationLevel {
	switch level {
	case ReadUncommitted:
		return sql.LevelReadUncommitted
	case RepeatableRead:
		return sql.LevelRepeatableRead
	case Serializable:
		return sql.LevelSerializable
	default:
		return sql.LevelReadCommitted
	}
}
