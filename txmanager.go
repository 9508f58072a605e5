package cppdbc

import (
	"context"
	"time"

	"github.com/gogf/gf/container/gmap"
)

// activeTransaction is the bookkeeping record a TransactionManager keeps
// per in-flight transaction: the borrowed pooled connection plus a
// last-touched timestamp the idle sweep reads.
type activeTransaction struct {
	pooled     *PooledConnection
	relational RelationalConnection
	startedAt  time.Time
	lastTouch  time.Time
}

// TransactionManager hands out transaction IDs (UUID v4) backed by a
// connection borrowed from a Pool, so a caller can thread a transaction
// across multiple calls by id instead of holding the connection itself —
// the same shape a stateless request handler needs when the connection
// that began a transaction isn't the goroutine that commits it.
type TransactionManager struct {
	pool *Pool

	transactions *gmap.StrAnyMap

	// idleTimeout and cleanupInterval are independent: a transaction is
	// evicted once it has sat idle longer than idleTimeout, and the sweep
	// that checks for that runs every cleanupInterval. A long timeout with
	// a short sweep period is normal and intentional.
	idleTimeout     time.Duration
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
}

const (
	defaultTransactionIdleTimeout  = 5 * time.Minute
	defaultTransactionCleanupSweep = time.Minute
)

// NewTransactionManager wraps pool, starting a background sweep that rolls
// back and evicts transactions idle past idleTimeout. cleanupInterval sets
// how often that sweep runs; passing 0 for either uses its own default.
func NewTransactionManager(pool *Pool, idleTimeout, cleanupInterval time.Duration) *TransactionManager {
	if idleTimeout <= 0 {
		idleTimeout = defaultTransactionIdleTimeout
	}
	if cleanupInterval <= 0 {
		cleanupInterval = defaultTransactionCleanupSweep
	}
	m := &TransactionManager{
		pool:            pool,
		transactions:    gmap.NewStrAnyMap(true),
		idleTimeout:     idleTimeout,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

// BeginTransaction borrows a connection from the pool, starts a
// transaction on it, and returns a fresh UUID v4 identifying it.
func (m *TransactionManager) BeginTransaction(ctx context.Context) (string, error) {
	pooled, err := m.pool.Acquire(ctx)
	if err != nil {
		return "", err
	}
	rel, ok := pooled.Connection.(RelationalConnection)
	if !ok {
		_ = pooled.Close()
		return "", NewError(CodeFeatureNotCompiled, "pooled connection does not support transactions")
	}
	if err := rel.BeginTransaction(); err != nil {
		_ = pooled.Close()
		return "", err
	}
	id := newTransactionID()
	now := time.Now()
	m.transactions.Set(id, &activeTransaction{pooled: pooled, relational: rel, startedAt: now, lastTouch: now})
	return id, nil
}

// GetTransactionConnection returns the RelationalConnection bound to id,
// touching its last-activity timestamp so the idle sweep leaves it alone.
func (m *TransactionManager) GetTransactionConnection(id string) (RelationalConnection, error) {
	raw, ok := m.transactions.Search(id)
	if !ok {
		return nil, NewError(CodeTxNotFound, "no active transaction with id "+id)
	}
	tx := raw.(*activeTransaction)
	tx.lastTouch = time.Now()
	return tx.relational, nil
}

// CommitTransaction commits and releases the connection bound to id back
// to the pool, then forgets id.
func (m *TransactionManager) CommitTransaction(id string) error {
	return m.finish(id, func(rel RelationalConnection) error { return rel.Commit() })
}

// RollbackTransaction rolls back and releases the connection bound to id,
// then forgets id.
func (m *TransactionManager) RollbackTransaction(id string) error {
	return m.finish(id, func(rel RelationalConnection) error { return rel.Rollback() })
}

func (m *TransactionManager) finish(id string, op func(RelationalConnection) error) error {
	raw, ok := m.transactions.Search(id)
	if !ok {
		return NewError(CodeTxNotFound, "no active transaction with id "+id)
	}
	tx := raw.(*activeTransaction)
	m.transactions.Remove(id)
	err := op(tx.relational)
	_ = tx.pooled.Close()
	return err
}

// IsTransactionActive reports whether id still names a live transaction.
func (m *TransactionManager) IsTransactionActive(id string) bool {
	return m.transactions.Contains(id)
}

// ActiveTransactionCount reports how many transactions are currently open.
func (m *TransactionManager) ActiveTransactionCount() int {
	return m.transactions.Size()
}

// SetTransactionTimeout changes the idle timeout the background sweep uses
// going forward.
func (m *TransactionManager) SetTransactionTimeout(d time.Duration) {
	if d > 0 {
		m.idleTimeout = d
	}
}

func (m *TransactionManager) cleanupLoop() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCleanup:
			return
		case <-ticker.C:
			m.sweepIdle()
		}
	}
}

// sweepIdle rolls back and evicts every transaction idle past the
// configured timeout. It snapshots ids under the map's own concurrency
// control, then rolls each back without holding any lock across the
// blocking database call, the same "don't hold the registry lock across a
// blocking commit/rollback" shape the pool and connection registries use
// elsewhere in this package.
func (m *TransactionManager) sweepIdle() {
	now := time.Now()
	var expired []string
	m.transactions.Iterator(func(k string, v interface{}) bool {
		tx := v.(*activeTransaction)
		if now.Sub(tx.lastTouch) > m.idleTimeout {
			expired = append(expired, k)
		}
		return true
	})
	for _, id := range expired {
		_ = m.RollbackTransaction(id)
	}
}

// Close stops the background sweep and rolls back every still-open
// transaction.
func (m *TransactionManager) Close() error {
	close(m.stopCleanup)
	var ids []string
	m.transactions.Iterator(func(k string, v interface{}) bool {
		ids = append(ids, k)
		return true
	})
	for _, id := range ids {
		_ = m.RollbackTransaction(id)
	}
	return nil
}
