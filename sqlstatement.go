package cppdbc

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

type stmtState int

const (
	stmtStatePrepared stmtState = iota
	stmtStateExecuted
	stmtStateClosed
)

// paramSlot is the owned, tagged payload for one bound parameter position.
// Engine driver code ultimately hands database/sql a raw interface{}, but
// cppdbc keeps its own copy in the slot so the same statement can be
// re-executed with its bound values without caller-held buffers having
// to stay alive independently — the ownership equivalent of the teacher
// corpus's parallel per-slot owner arrays.
type paramSlot struct {
	set   bool
	isNil bool
	value interface{}
}

// sqlPreparedStatement is the database/sql-backed PreparedStatement shared
// by the relational engine drivers.
type sqlPreparedStatement struct {
	conn       *sqlConnection
	sqlText    string
	stmt       *sql.Stmt
	state      stmtState
	params     map[int]*paramSlot
	maxIndex   int
	registryID int64

	// currentResultSet holds the result set produced by the most recent
	// Execute/ExecuteQuery call, until GetResultSet claims it or a later
	// Execute/ExecuteQuery call closes and replaces it. Execute's own
	// result set has nowhere else to go once GetResultSet exists, so
	// this is the only thing standing between it and a leaked *sql.Rows
	// pinning the connection's single database/sql slot.
	currentResultSet ResultSet
}

func newSQLPreparedStatement(conn *sqlConnection, sqlText string, stmt *sql.Stmt) *sqlPreparedStatement {
	return &sqlPreparedStatement{
		conn:    conn,
		sqlText: sqlText,
		stmt:    stmt,
		state:   stmtStatePrepared,
		params:  make(map[int]*paramSlot),
	}
}

// notifyConnClosing implements closeNotifier: the statement drops its
// engine handle before the owning session is torn down.
func (s *sqlPreparedStatement) notifyConnClosing() {
	if s.state == stmtStateClosed {
		return
	}
	s.state = stmtStateClosed
	if s.stmt != nil {
		_ = s.stmt.Close()
		s.stmt = nil
	}
}

func (s *sqlPreparedStatement) checkOpen() error {
	if s.conn.IsClosed() {
		return NewErrorWithStack(CodeConnectionClosed, "connection closed")
	}
	if s.state == stmtStateClosed {
		return NewErrorWithStack(CodeStatementClosed, "statement closed")
	}
	return nil
}

func (s *sqlPreparedStatement) bind(index int, slot *paramSlot) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if index < 1 {
		return NewError(CodeInvalidParamIndex, "parameter index must be >= 1")
	}
	s.params[index] = slot
	if index > s.maxIndex {
		s.maxIndex = index
	}
	return nil
}

func (s *sqlPreparedStatement) SetInt(index int, v int32) error {
	return s.bind(index, &paramSlot{set: true, value: int64(v)})
}

func (s *sqlPreparedStatement) SetLong(index int, v int64) error {
	return s.bind(index, &paramSlot{set: true, value: v})
}

func (s *sqlPreparedStatement) SetDouble(index int, v float64) error {
	return s.bind(index, &paramSlot{set: true, value: v})
}

func (s *sqlPreparedStatement) SetString(index int, v string) error {
	return s.bind(index, &paramSlot{set: true, value: v})
}

func (s *sqlPreparedStatement) SetBoolean(index int, v bool) error {
	return s.bind(index, &paramSlot{set: true, value: v})
}

func (s *sqlPreparedStatement) SetDate(index int, v time.Time) error {
	return s.bind(index, &paramSlot{set: true, value: v})
}

func (s *sqlPreparedStatement) SetTimestamp(index int, v time.Time) error {
	return s.bind(index, &paramSlot{set: true, value: v})
}

func (s *sqlPreparedStatement) SetNull(index int, _ ColumnType) error {
	return s.bind(index, &paramSlot{set: true, isNil: true, value: nil})
}

func (s *sqlPreparedStatement) SetBlob(index int, b Blob) error {
	length, err := b.Length()
	if err != nil {
		return err
	}
	data, err := b.GetBytes(0, int(length))
	if err != nil {
		return err
	}
	return s.bind(index, &paramSlot{set: true, value: data})
}

func (s *sqlPreparedStatement) SetBinaryStream(index int, r InputStream) error {
	var buf []byte
	chunk := make([]byte, 32*1024)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	return s.bind(index, &paramSlot{set: true, value: buf})
}

func (s *sqlPreparedStatement) SetBytes(index int, b []byte) error {
	cp := make([]byte, len(b))
	copy(cp, b)
	return s.bind(index, &paramSlot{set: true, value: cp})
}

// orderedArgs materializes the bound parameter slots 1..maxIndex in order.
// A never-bound slot within range is treated as SQL NULL.
func (s *sqlPreparedStatement) orderedArgs() []interface{} {
	args := make([]interface{}, s.maxIndex)
	for i := 1; i <= s.maxIndex; i++ {
		if slot, ok := s.params[i]; ok && slot.set {
			args[i-1] = slot.value
		} else {
			args[i-1] = nil
		}
	}
	return args
}

// replaceResultSet closes any previously-tracked, unclaimed result set
// before swapping in rs (or nil), so an Execute/ExecuteQuery caller that
// never retrieves the previous result set can't leak it.
func (s *sqlPreparedStatement) replaceResultSet(rs ResultSet) {
	if s.currentResultSet != nil {
		_ = s.currentResultSet.Close()
	}
	s.currentResultSet = rs
}

func (s *sqlPreparedStatement) ExecuteQuery() (ResultSet, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	// Close any unclaimed result set first: its open rows would otherwise
	// hold the connection's single slot and block the query below.
	s.replaceResultSet(nil)
	rows, err := s.stmt.QueryContext(context.Background(), s.orderedArgs()...)
	if err != nil {
		return nil, WrapError(CodeExecuteFailed, "executing prepared query", err)
	}
	s.state = stmtStateExecuted
	// The result set closes only its own rows, never s.stmt
	// (invariant I8).
	rs := newSQLResultSet(s.conn, rows, false)
	rs.registryID = s.conn.children.add(rs)
	s.currentResultSet = rs
	return rs, nil
}

func (s *sqlPreparedStatement) ExecuteUpdate() (int64, error) {
	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	s.replaceResultSet(nil)
	res, err := s.stmt.ExecContext(context.Background(), s.orderedArgs()...)
	if err != nil {
		return 0, WrapError(CodeExecuteFailed, "executing prepared update", err)
	}
	s.state = stmtStateExecuted
	return res.RowsAffected()
}

func (s *sqlPreparedStatement) Execute() (bool, error) {
	if isQueryStatement(s.sqlText) {
		_, err := s.ExecuteQuery()
		if err != nil {
			return false, err
		}
		return true, nil
	}
	_, err := s.ExecuteUpdate()
	return false, err
}

// GetResultSet returns (and releases tracking of) the result set produced
// by the most recent Execute/ExecuteQuery call. The caller owns closing it
// once retrieved; a later Execute/ExecuteQuery closes it automatically if
// it was never claimed.
func (s *sqlPreparedStatement) GetResultSet() (ResultSet, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rs := s.currentResultSet
	s.currentResultSet = nil
	return rs, nil
}

func (s *sqlPreparedStatement) Close() error {
	if s.state == stmtStateClosed {
		return nil
	}
	s.replaceResultSet(nil)
	s.notifyConnClosing()
	s.conn.children.remove(s.registryID)
	return nil
}

// isQueryStatement heuristically classifies SQL text as row-producing.
// Prepared statements don't carry a query plan cppdbc can inspect, so the
// leading keyword is the same signal the teacher's own Sql.Type field
// effectively encodes.
func isQueryStatement(sqlText string) bool {
	trimmed := strings.TrimSpace(sqlText)
	upper := strings.ToUpper(trimmed)
	for _, kw := range []string{"SELECT", "SHOW", "PRAGMA", "EXPLAIN", "WITH"} {
		if strings.HasPrefix(upper, kw) {
			return true
		}
	}
	return false
}
