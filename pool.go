package cppdbc

import (
	"context"
	"sync"
	"time"

	"github.com/gogf/gf/os/glog"

	"github.com/gogf/gf/container/gtype"
)

// pooledEntry tracks one physical Connection's place in a Pool: when it was
// created, when it last went idle, and whether it is currently lent out.
type pooledEntry struct {
	conn      Connection
	createdAt time.Time
	idleSince time.Time
	borrowed  bool
}

// Pool is a thread-safe connection pool layered above a Driver. Acquire and
// release (reached through PooledConnection.Close) follow the same
// condition-variable borrow/wait/wake protocol as
// the teacher corpus's db-bouncer reference pool: a full pool blocks the
// caller on a sync.Cond until a slot frees up or MaxWaitMillis elapses,
// rather than spinning or failing fast.
type Pool struct {
	mu   sync.Mutex
	cond *sync.Cond

	driver Driver
	cfg    PoolConfig
	logger *glog.Logger

	entries []*pooledEntry
	closed  bool

	// running is read by the maintenance goroutine without taking mu, the
	// same atomic-flag-outside-the-lock shape the teacher uses for its
	// runtime-togglable debug flag.
	running *gtype.Bool

	stopMaintenance chan struct{}
}

// NewPool creates a pool against driver, eagerly opening InitialSize
// connections (step 1 of the borrow/return protocol: the pool never hands
// out a connection it hasn't first warmed into existence), then starts the
// background maintenance goroutine.
func NewPool(ctx context.Context, driver Driver, cfg PoolConfig) (*Pool, error) {
	cfg = cfg.withDefaults()
	p := &Pool{
		driver:          driver,
		cfg:             cfg,
		logger:          glog.New(),
		running:         gtype.NewBool(),
		stopMaintenance: make(chan struct{}),
	}
	p.running.Set(true)
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < cfg.InitialSize; i++ {
		conn, err := driver.Connect(ctx, cfg.URL, cfg.Username, cfg.Password)
		if err != nil {
			p.closeAllLocked()
			return nil, WrapError(CodeCreationFailed, "warming up pool", err)
		}
		p.entries = append(p.entries, &pooledEntry{conn: conn, createdAt: time.Now(), idleSince: time.Now()})
	}

	go p.maintainLoop()
	return p, nil
}

// Acquire borrows an idle connection, creating a fresh one if under MaxSize,
// or blocks until one is returned or MaxWaitMillis elapses.
func (p *Pool) Acquire(ctx context.Context) (*PooledConnection, error) {
	deadline := time.Now().Add(time.Duration(p.cfg.MaxWaitMillis) * time.Millisecond)

	p.mu.Lock()
	for {
		if p.closed {
			p.mu.Unlock()
			return nil, NewErrorWithStack(CodePoolClosed, "pool is closed")
		}
		if e := p.pickIdleLocked(); e != nil {
			e.borrowed = true
			p.mu.Unlock()
			if p.cfg.TestOnBorrow {
				if err := e.conn.Validate(ctx); err != nil {
					p.discard(e)
					p.mu.Lock()
					continue
				}
			}
			return &PooledConnection{Connection: e.conn, pool: p, entry: e}, nil
		}
		if len(p.entries) < p.cfg.MaxSize {
			p.mu.Unlock()
			conn, err := p.driver.Connect(ctx, p.cfg.URL, p.cfg.Username, p.cfg.Password)
			if err != nil {
				return nil, WrapError(CodeCreationFailed, "creating pooled connection", err)
			}
			e := &pooledEntry{conn: conn, createdAt: time.Now(), borrowed: true}
			p.mu.Lock()
			p.entries = append(p.entries, e)
			p.mu.Unlock()
			return &PooledConnection{Connection: conn, pool: p, entry: e}, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			p.mu.Unlock()
			return nil, NewErrorWithStack(CodeBorrowTimeout, "timed out waiting for a pooled connection")
		}
		waitDone := make(chan struct{})
		timer := time.AfterFunc(remaining, func() {
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
			close(waitDone)
		})
		p.cond.Wait()
		timer.Stop()
		select {
		case <-waitDone:
		default:
		}
	}
}

func (p *Pool) pickIdleLocked() *pooledEntry {
	for _, e := range p.entries {
		if !e.borrowed && !e.conn.IsClosed() {
			return e
		}
	}
	return nil
}

// release returns an entry to the idle set and wakes one waiter. Invoked
// from PooledConnection.Close / ReturnToPool, never called directly.
func (p *Pool) release(e *pooledEntry, valid bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !valid {
		p.removeLocked(e)
		_ = e.conn.Close()
		p.cond.Signal()
		return
	}
	e.borrowed = false
	e.idleSince = time.Now()
	p.cond.Signal()
}

func (p *Pool) discard(e *pooledEntry) {
	p.mu.Lock()
	p.removeLocked(e)
	p.mu.Unlock()
	_ = e.conn.Close()
}

func (p *Pool) removeLocked(e *pooledEntry) {
	for i, other := range p.entries {
		if other == e {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			return
		}
	}
}

// maintainLoop periodically evicts idle-expired and lifetime-expired
// connections and tops the pool back up to MinIdle, the same reap-then-
// warm-up cycle the reference pool runs.
func (p *Pool) maintainLoop() {
	ticker := time.NewTicker(p.cfg.MaintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopMaintenance:
			return
		case <-ticker.C:
			if p.running.Val() {
				p.reap()
			}
		}
	}
}

func (p *Pool) reap() {
	now := time.Now()
	idleTimeout := time.Duration(p.cfg.IdleTimeoutMillis) * time.Millisecond
	maxLifetime := time.Duration(p.cfg.MaxLifetimeMillis) * time.Millisecond

	p.mu.Lock()
	var toClose []*pooledEntry
	var kept []*pooledEntry
	idleCount := 0
	for _, e := range p.entries {
		if e.borrowed {
			kept = append(kept, e)
			continue
		}
		idleCount++
		expired := (idleTimeout > 0 && now.Sub(e.idleSince) > idleTimeout) ||
			(maxLifetime > 0 && now.Sub(e.createdAt) > maxLifetime)
		if expired && idleCount > p.cfg.MinIdle {
			toClose = append(toClose, e)
			continue
		}
		kept = append(kept, e)
	}
	p.entries = kept
	deficit := p.cfg.MinIdle - (len(p.entries))
	p.mu.Unlock()

	for _, e := range toClose {
		_ = e.conn.Close()
	}
	if deficit <= 0 {
		return
	}
	for i := 0; i < deficit; i++ {
		conn, err := p.driver.Connect(context.Background(), p.cfg.URL, p.cfg.Username, p.cfg.Password)
		if err != nil {
			p.logger.Printf("pool maintenance: failed to warm up connection: %v", err)
			return
		}
		p.mu.Lock()
		p.entries = append(p.entries, &pooledEntry{conn: conn, createdAt: time.Now(), idleSince: time.Now()})
		p.cond.Signal()
		p.mu.Unlock()
	}
}

func (p *Pool) closeAllLocked() {
	for _, e := range p.entries {
		_ = e.conn.Close()
	}
	p.entries = nil
}

// Close stops maintenance and closes every pooled connection, borrowed or
// not. Subsequent Acquire calls fail with CodePoolClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.running.Set(false)
	p.closeAllLocked()
	p.cond.Broadcast()
	p.mu.Unlock()
	close(p.stopMaintenance)
	return nil
}

// Stats reports the pool's current size split between borrowed and idle.
type Stats struct {
	Total    int
	Borrowed int
	Idle     int
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Stats{Total: len(p.entries)}
	for _, e := range p.entries {
		if e.borrowed {
			s.Borrowed++
		} else {
			s.Idle++
		}
	}
	return s
}

// PooledConnection wraps a Connection borrowed from a Pool. Closing it
// returns the connection to the pool instead of tearing down the
// underlying engine session, unless validation fails on return, in which
// case the pool discards it.
type PooledConnection struct {
	Connection
	pool  *Pool
	entry *pooledEntry
}

// IsPooled always reports true for a PooledConnection; it exists so
// generic code can distinguish a borrowed connection from a directly
// dialed one via a type assertion.
func (pc *PooledConnection) IsPooled() bool { return true }

// ReturnToPool gives the connection back without closing it logically;
// Close does the same thing and is the usual call site.
func (pc *PooledConnection) ReturnToPool() error {
	return pc.Close()
}

// Close validates (if TestOnReturn is set) and returns the connection to
// its pool rather than closing the underlying session.
func (pc *PooledConnection) Close() error {
	valid := true
	if pc.pool.cfg.TestOnReturn {
		if err := pc.Connection.Validate(context.Background()); err != nil {
			valid = false
		}
	}
	if pc.Connection.IsClosed() {
		valid = false
	}
	pc.pool.release(pc.entry, valid)
	return nil
}
