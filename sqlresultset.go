package cppdbc

import (
	"database/sql"
)

// sqlResultSet is the database/sql-backed ResultSet shared by the
// relational engine drivers.
type sqlResultSet struct {
	conn       *sqlConnection
	rows       *sql.Rows
	owns       bool // false when produced by a prepared statement; Close closes rows either way, never the *sql.Stmt (I8)
	columns    []string
	columnIdx  map[string]int
	current    []Value
	row        int
	closed     bool
	registryID int64
}

func newSQLResultSet(conn *sqlConnection, rows *sql.Rows, owns bool) *sqlResultSet {
	rs := &sqlResultSet{conn: conn, rows: rows, owns: owns}
	if cols, err := rows.Columns(); err == nil {
		rs.columns = cols
		rs.columnIdx = make(map[string]int, len(cols))
		for i, name := range cols {
			rs.columnIdx[name] = i
		}
	}
	return rs
}

// notifyConnClosing implements closeNotifier.
func (rs *sqlResultSet) notifyConnClosing() {
	if rs.closed {
		return
	}
	rs.closed = true
	if rs.rows != nil {
		_ = rs.rows.Close()
	}
}

func (rs *sqlResultSet) checkOpen() error {
	if rs.conn.IsClosed() {
		return NewErrorWithStack(CodeConnectionClosed, "connection closed")
	}
	if rs.closed {
		return NewErrorWithStack(CodeResultSetClosed, "result set closed")
	}
	return nil
}

func (rs *sqlResultSet) Next() (bool, error) {
	if err := rs.checkOpen(); err != nil {
		return false, err
	}
	if !rs.rows.Next() {
		if err := rs.rows.Err(); err != nil {
			return false, WrapError(CodeExecuteFailed, "iterating result set", err)
		}
		rs.current = nil
		return false, nil
	}
	raw := make([]interface{}, len(rs.columns))
	ptrs := make([]interface{}, len(rs.columns))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rs.rows.Scan(ptrs...); err != nil {
		return false, WrapError(CodeExecuteFailed, "scanning row", err)
	}
	values := make([]Value, len(raw))
	for i, v := range raw {
		values[i] = NewValue(v)
	}
	rs.current = values
	rs.row++
	return true, nil
}

func (rs *sqlResultSet) IsBeforeFirst() bool { return rs.row == 0 }
func (rs *sqlResultSet) IsAfterLast() bool   { return rs.row > 0 && rs.current == nil }
func (rs *sqlResultSet) Row() int            { return rs.row }

func (rs *sqlResultSet) columnValue(index int) (Value, error) {
	if err := rs.checkOpen(); err != nil {
		return nil, err
	}
	if rs.current == nil {
		return nil, NewError(CodeIterateBeforeFirst, "no current row: call Next first")
	}
	if index < 1 || index > len(rs.current) {
		return nil, NewError(CodeColumnNotFound, "column index out of range")
	}
	return rs.current[index-1], nil
}

func (rs *sqlResultSet) columnValueByName(name string) (Value, error) {
	idx, ok := rs.columnIdx[name]
	if !ok {
		return nil, NewError(CodeColumnNotFound, "column not found: "+name)
	}
	return rs.columnValue(idx + 1)
}

func (rs *sqlResultSet) GetInt(index int) (int64, error) {
	v, err := rs.columnValue(index)
	if err != nil {
		return 0, err
	}
	return valueInt(v), nil
}

func (rs *sqlResultSet) GetIntByName(name string) (int64, error) {
	v, err := rs.columnValueByName(name)
	if err != nil {
		return 0, err
	}
	return valueInt(v), nil
}

func (rs *sqlResultSet) GetLong(index int) (int64, error)        { return rs.GetInt(index) }
func (rs *sqlResultSet) GetLongByName(name string) (int64, error) { return rs.GetIntByName(name) }

func (rs *sqlResultSet) GetDouble(index int) (float64, error) {
	v, err := rs.columnValue(index)
	if err != nil {
		return 0, err
	}
	return valueDouble(v), nil
}

func (rs *sqlResultSet) GetDoubleByName(name string) (float64, error) {
	v, err := rs.columnValueByName(name)
	if err != nil {
		return 0, err
	}
	return valueDouble(v), nil
}

func (rs *sqlResultSet) GetString(index int) (string, error) {
	v, err := rs.columnValue(index)
	if err != nil {
		return "", err
	}
	return valueString(v), nil
}

func (rs *sqlResultSet) GetStringByName(name string) (string, error) {
	v, err := rs.columnValueByName(name)
	if err != nil {
		return "", err
	}
	return valueString(v), nil
}

func (rs *sqlResultSet) GetBoolean(index int) (bool, error) {
	v, err := rs.columnValue(index)
	if err != nil {
		return false, err
	}
	return valueBoolean(v), nil
}

func (rs *sqlResultSet) GetBooleanByName(name string) (bool, error) {
	v, err := rs.columnValueByName(name)
	if err != nil {
		return false, err
	}
	return valueBoolean(v), nil
}

func (rs *sqlResultSet) IsNull(index int) (bool, error) {
	v, err := rs.columnValue(index)
	if err != nil {
		return false, err
	}
	return valueIsNull(v), nil
}

func (rs *sqlResultSet) IsNullByName(name string) (bool, error) {
	v, err := rs.columnValueByName(name)
	if err != nil {
		return false, err
	}
	return valueIsNull(v), nil
}

// GetBlob returns an in-memory Blob over the current row's raw column
// bytes. driver_postgres.go defines largeObjectSource, a lazyBlobBackend
// over PostgreSQL large objects; no ResultSet method returns a blob backed
// by it.
func (rs *sqlResultSet) GetBlob(index int) (Blob, error) {
	v, err := rs.columnValue(index)
	if err != nil {
		return nil, err
	}
	if valueIsNull(v) {
		return NewMemoryBlob(nil), nil
	}
	switch raw := v.Val().(type) {
	case []byte:
		return NewMemoryBlob(raw), nil
	default:
		return NewMemoryBlob([]byte(valueString(v))), nil
	}
}

func (rs *sqlResultSet) ColumnNames() []string { return rs.columns }
func (rs *sqlResultSet) ColumnCount() int      { return len(rs.columns) }

func (rs *sqlResultSet) Close() error {
	if rs.closed {
		return nil
	}
	rs.notifyConnClosing()
	rs.conn.children.remove(rs.registryID)
	return nil
}
