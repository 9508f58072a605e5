package cppdbc

import (
	"context"
	"testing"
	"time"
)

func TestTransactionManagerBeginCommit(t *testing.T) {
	driver := &fakeDriver{}
	pool, err := NewPool(context.Background(), driver, testPoolConfig())
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	defer pool.Close()

	mgr := NewTransactionManager(pool, time.Minute, time.Minute)
	defer mgr.Close()

	id, err := mgr.BeginTransaction(context.Background())
	if err != nil {
		t.Fatalf("BeginTransaction failed: %v", err)
	}
	if !mgr.IsTransactionActive(id) {
		t.Fatalf("expected transaction %s to be active", id)
	}
	if mgr.ActiveTransactionCount() != 1 {
		t.Fatalf("expected 1 active transaction")
	}

	conn, err := mgr.GetTransactionConnection(id)
	if err != nil {
		t.Fatalf("GetTransactionConnection failed: %v", err)
	}
	if !conn.TransactionActive() {
		t.Fatalf("expected the bound connection to report an active transaction")
	}

	if err := mgr.CommitTransaction(id); err != nil {
		t.Fatalf("CommitTransaction failed: %v", err)
	}
	if mgr.IsTransactionActive(id) {
		t.Fatalf("expected transaction to be forgotten after commit")
	}
}

func TestTransactionManagerUUIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := newTransactionID()
		if seen[id] {
			t.Fatalf("generated duplicate transaction id %s", id)
		}
		seen[id] = true
		if len(id) != 36 {
			t.Fatalf("expected a 36-character UUID string, got %q (%d)", id, len(id))
		}
		if id[14] != '4' {
			t.Fatalf("expected version nibble 4 at position 14, got %q", id)
		}
	}
}

func TestTransactionManagerRollbackOnUnknownID(t *testing.T) {
	driver := &fakeDriver{}
	pool, err := NewPool(context.Background(), driver, testPoolConfig())
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	defer pool.Close()

	mgr := NewTransactionManager(pool, time.Minute, time.Minute)
	defer mgr.Close()

	if err := mgr.RollbackTransaction("does-not-exist"); err == nil {
		t.Fatalf("expected rollback of an unknown transaction id to fail")
	}
}
