package cppdbc

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeConnection is a lightweight RelationalConnection stand-in used to
// drive Pool and TransactionManager tests without a live engine.
type fakeConnection struct {
	mu       sync.Mutex
	closed   bool
	txActive bool
	failPing bool
}

func (c *fakeConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
func (c *fakeConnection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
func (c *fakeConnection) URL() string { return "fake://" }
func (c *fakeConnection) Validate(ctx context.Context) error {
	if c.failPing {
		return NewError(CodeValidationFailed, "ping failed")
	}
	return nil
}
func (c *fakeConnection) PrepareStatement(sqlText string) (PreparedStatement, error) { return nil, nil }
func (c *fakeConnection) ExecuteQuery(sqlText string, args ...interface{}) (ResultSet, error) {
	return nil, nil
}
func (c *fakeConnection) ExecuteUpdate(sqlText string, args ...interface{}) (int64, error) {
	return 0, nil
}
func (c *fakeConnection) SetAutoCommit(auto bool) error { return nil }
func (c *fakeConnection) AutoCommit() bool              { return !c.txActive }
func (c *fakeConnection) BeginTransaction() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txActive = true
	return nil
}
func (c *fakeConnection) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txActive = false
	return nil
}
func (c *fakeConnection) Rollback() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txActive = false
	return nil
}
func (c *fakeConnection) TransactionActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txActive
}
func (c *fakeConnection) SetTransactionIsolation(level IsolationLevel) error { return nil }
func (c *fakeConnection) TransactionIsolation() IsolationLevel              { return ReadCommitted }

type fakeDriver struct {
	created int32
}

func (d *fakeDriver) Name() string               { return "fake" }
func (d *fakeDriver) AcceptsURL(url string) bool  { return url == "fake://" }
func (d *fakeDriver) Connect(ctx context.Context, url, username, password string) (Connection, error) {
	atomic.AddInt32(&d.created, 1)
	return &fakeConnection{}, nil
}

func testPoolConfig() PoolConfig {
	cfg := DefaultPoolConfig("fake://", "u", "p")
	cfg.InitialSize = 2
	cfg.MaxSize = 2
	cfg.MinIdle = 1
	cfg.MaxWaitMillis = 200
	cfg.MaintenanceInterval = 50 * time.Millisecond
	cfg.TestOnBorrow = false
	return cfg
}

func TestPoolAcquireAndReturn(t *testing.T) {
	driver := &fakeDriver{}
	pool, err := NewPool(context.Background(), driver, testPoolConfig())
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	defer pool.Close()

	pc, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !pc.IsPooled() {
		t.Fatalf("expected IsPooled() to be true")
	}
	stats := pool.Stats()
	if stats.Borrowed != 1 {
		t.Fatalf("expected 1 borrowed connection, got %d", stats.Borrowed)
	}
	if err := pc.Close(); err != nil {
		t.Fatalf("returning connection failed: %v", err)
	}
	stats = pool.Stats()
	if stats.Borrowed != 0 {
		t.Fatalf("expected 0 borrowed connections after return, got %d", stats.Borrowed)
	}
}

func TestPoolAcquireBlocksUntilMaxSizeThenTimesOut(t *testing.T) {
	driver := &fakeDriver{}
	cfg := testPoolConfig()
	cfg.InitialSize = 1
	cfg.MaxSize = 1
	cfg.MaxWaitMillis = 50
	pool, err := NewPool(context.Background(), driver, cfg)
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	defer pool.Close()

	first, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	defer first.Close()

	_, err = pool.Acquire(context.Background())
	if err == nil {
		t.Fatalf("expected second Acquire to time out while the pool is exhausted")
	}
	cppErr, ok := err.(*Error)
	if !ok || cppErr.Code() != CodeBorrowTimeout {
		t.Fatalf("expected CodeBorrowTimeout, got %v", err)
	}
}

func TestPoolCloseRejectsFurtherAcquire(t *testing.T) {
	driver := &fakeDriver{}
	pool, err := NewPool(context.Background(), driver, testPoolConfig())
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	if err := pool.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	_, err = pool.Acquire(context.Background())
	if err == nil {
		t.Fatalf("expected Acquire on a closed pool to fail")
	}
}
