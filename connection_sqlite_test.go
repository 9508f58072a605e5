package cppdbc

import (
	"context"
	"testing"
)

func openTestSQLite(t *testing.T) RelationalConnection {
	t.Helper()
	conn, err := Connect(context.Background(), "cpp_dbc:sqlite::memory:", "", "")
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	rel, ok := conn.(RelationalConnection)
	if !ok {
		t.Fatalf("expected a RelationalConnection")
	}
	return rel
}

func TestConnectionExecuteAndQuery(t *testing.T) {
	conn := openTestSQLite(t)
	defer conn.Close()

	if _, err := conn.ExecuteUpdate("CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT)"); err != nil {
		t.Fatalf("create table failed: %v", err)
	}
	if _, err := conn.ExecuteUpdate("INSERT INTO users (id, name) VALUES (?, ?)", 1, "ada"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	rs, err := conn.ExecuteQuery("SELECT id, name FROM users WHERE id = ?", 1)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	defer rs.Close()

	if rs.IsBeforeFirst() == false {
		t.Fatalf("expected IsBeforeFirst before the first Next call")
	}
	ok, err := rs.Next()
	if err != nil || !ok {
		t.Fatalf("expected one row, got ok=%v err=%v", ok, err)
	}
	name, err := rs.GetStringByName("name")
	if err != nil {
		t.Fatalf("GetStringByName failed: %v", err)
	}
	if name != "ada" {
		t.Fatalf("expected name 'ada', got %q", name)
	}
	ok, err = rs.Next()
	if err != nil || ok {
		t.Fatalf("expected result set to be exhausted after one row")
	}
	if !rs.IsAfterLast() {
		t.Fatalf("expected IsAfterLast after exhausting the result set")
	}
}

func TestConnectionCascadeCloses(t *testing.T) {
	conn := openTestSQLite(t)

	stmt, err := conn.PrepareStatement("SELECT 1")
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	rs, err := stmt.ExecuteQuery()
	if err != nil {
		t.Fatalf("execute query failed: %v", err)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("connection close failed: %v", err)
	}

	if _, err := rs.Next(); err == nil {
		t.Fatalf("expected the borrowed result set to fail after its connection closed")
	}
	if _, err := stmt.ExecuteQuery(); err == nil {
		t.Fatalf("expected the statement to fail after its connection closed")
	}
}

func TestStatementExecuteDoesNotLeakResultSet(t *testing.T) {
	conn := openTestSQLite(t)
	defer conn.Close()

	stmt, err := conn.PrepareStatement("SELECT 1")
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	defer stmt.Close()

	isQuery, err := stmt.Execute()
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if !isQuery {
		t.Fatalf("expected Execute to report a result set for a SELECT")
	}

	rs, err := stmt.GetResultSet()
	if err != nil {
		t.Fatalf("GetResultSet failed: %v", err)
	}
	if rs == nil {
		t.Fatalf("expected a non-nil result set after Execute")
	}

	if ok, _ := rs.Next(); !ok {
		t.Fatalf("expected one row from SELECT 1")
	}
	rs.Close()

	// Once the claimed result set is closed, the single-connection slot
	// (MaxOpenConns=1) must be usable again: if Execute's result set had
	// leaked its rows, this would hang or fail.
	if _, err := conn.ExecuteUpdate("CREATE TABLE t (n INTEGER)"); err != nil {
		t.Fatalf("expected the connection's one slot to still be usable: %v", err)
	}
}

func TestStatementExecuteClosesUnclaimedResultSetOnReExecute(t *testing.T) {
	conn := openTestSQLite(t)
	defer conn.Close()

	stmt, err := conn.PrepareStatement("SELECT 1")
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	defer stmt.Close()

	if _, err := stmt.Execute(); err != nil {
		t.Fatalf("first execute failed: %v", err)
	}
	// Never call GetResultSet: the next Execute must close the first
	// result set itself rather than leaking it.
	if _, err := stmt.Execute(); err != nil {
		t.Fatalf("second execute failed: %v", err)
	}
	rs, err := stmt.GetResultSet()
	if err != nil {
		t.Fatalf("GetResultSet failed: %v", err)
	}
	defer rs.Close()
	if ok, _ := rs.Next(); !ok {
		t.Fatalf("expected one row from the second execute's result set")
	}
}

func TestConnectionTransactionRollback(t *testing.T) {
	conn := openTestSQLite(t)
	defer conn.Close()

	if _, err := conn.ExecuteUpdate("CREATE TABLE counters (n INTEGER)"); err != nil {
		t.Fatalf("create table failed: %v", err)
	}

	if err := conn.BeginTransaction(); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if !conn.TransactionActive() {
		t.Fatalf("expected TransactionActive to report true")
	}
	if _, err := conn.ExecuteUpdate("INSERT INTO counters (n) VALUES (1)"); err != nil {
		t.Fatalf("insert inside transaction failed: %v", err)
	}
	if err := conn.Rollback(); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}

	rs, err := conn.ExecuteQuery("SELECT COUNT(*) AS c FROM counters")
	if err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	defer rs.Close()
	if ok, _ := rs.Next(); !ok {
		t.Fatalf("expected a count row")
	}
	count, err := rs.GetLongByName("c")
	if err != nil {
		t.Fatalf("GetLongByName failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback to discard the insert, got count=%d", count)
	}
}
