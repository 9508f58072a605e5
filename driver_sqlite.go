package cppdbc

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteURLPrefix = "cpp_dbc:sqlite:"

type sqliteDriver struct{}

func newSQLiteDriver() Driver { return sqliteDriver{} }

func (sqliteDriver) Name() string { return "sqlite" }

func (sqliteDriver) AcceptsURL(u string) bool {
	return strings.HasPrefix(u, sqliteURLPrefix)
}

// parseSQLiteURL accepts cpp_dbc:sqlite:PATH or cpp_dbc:sqlite::memory:,
// returning the raw path/DSN go-sqlite3 expects.
func parseSQLiteURL(u string) (path string, err error) {
	rest := strings.TrimPrefix(u, sqliteURLPrefix)
	if rest == "" {
		return "", NewErrorWithStack(CodeMalformedURL, "sqlite url missing path: "+u)
	}
	return rest, nil
}

func (d sqliteDriver) Connect(ctx context.Context, rawURL, _, _ string) (Connection, error) {
	path, err := parseSQLiteURL(rawURL)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, WrapError(CodeConnectFailed, "opening sqlite connection", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, WrapError(CodeHandshakeFailed, "sqlite handshake failed", err)
	}
	return newSQLConnection("sqlite", rawURL, db), nil
}
