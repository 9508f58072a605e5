package cppdbc

import "time"

// PreparedStatement is a precompiled, parameterized SQL statement bound to
// the connection that created it. Parameter indices are 1-based.
type PreparedStatement interface {
	SetInt(index int, v int32) error
	SetLong(index int, v int64) error
	SetDouble(index int, v float64) error
	SetString(index int, v string) error
	SetBoolean(index int, v bool) error
	SetDate(index int, v time.Time) error
	SetTimestamp(index int, v time.Time) error
	SetNull(index int, t ColumnType) error
	SetBlob(index int, b Blob) error
	SetBinaryStream(index int, r InputStream) error
	SetBytes(index int, b []byte) error

	ExecuteQuery() (ResultSet, error)
	ExecuteUpdate() (int64, error)
	// Execute runs the statement and reports whether it produced a
	// result set (true) as opposed to an update count (false). When it
	// returns true, the result set is retrievable exactly once via
	// GetResultSet.
	Execute() (bool, error)
	// GetResultSet returns the result set produced by the most recent
	// Execute call, or nil if Execute hasn't run or didn't produce one.
	// A later Execute/ExecuteQuery call closes and replaces it.
	GetResultSet() (ResultSet, error)

	Close() error
}
