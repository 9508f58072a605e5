package cppdbc

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
)

const postgresURLPrefix = "cpp_dbc:postgresql://"

type postgresDriver struct{}

func newPostgresDriver() Driver { return postgresDriver{} }

func (postgresDriver) Name() string { return "postgresql" }

func (postgresDriver) AcceptsURL(u string) bool {
	return strings.HasPrefix(u, postgresURLPrefix)
}

// parsePostgresURL accepts cpp_dbc:postgresql://HOST[:PORT]/DATABASE,
// defaulting the port to 5432 when omitted.
func parsePostgresURL(u string) (host string, port int, database string, err error) {
	rest := strings.TrimPrefix(u, postgresURLPrefix)
	parsed, perr := url.Parse("postgresql://" + rest)
	if perr != nil {
		return "", 0, "", NewErrorWithStack(CodeMalformedURL, "malformed postgresql url: "+u)
	}
	host = parsed.Hostname()
	if host == "" {
		return "", 0, "", NewErrorWithStack(CodeMalformedURL, "postgresql url missing host: "+u)
	}
	port = 5432
	if p := parsed.Port(); p != "" {
		n, perr := strconv.Atoi(p)
		if perr != nil {
			return "", 0, "", NewErrorWithStack(CodeMalformedURL, "invalid postgresql port: "+u)
		}
		port = n
	}
	database = strings.TrimPrefix(parsed.Path, "/")
	if database == "" {
		return "", 0, "", NewErrorWithStack(CodeMalformedURL, "postgresql url missing database: "+u)
	}
	return host, port, database, nil
}

func (d postgresDriver) Connect(ctx context.Context, rawURL, username, password string) (Connection, error) {
	host, port, database, err := parsePostgresURL(rawURL)
	if err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, username, password, database)
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, WrapError(CodeConnectFailed, "opening postgresql connection", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, WrapError(CodeHandshakeFailed, "postgresql handshake failed", err)
	}
	conn := newSQLConnection("postgresql", rawURL, db)
	return conn, nil
}

// largeObjectSource implements lazyBlobBackend over a PostgreSQL
// connection's large objects, the out-of-line store PostgreSQL uses
// instead of inline BYTEA for very large payloads.
type largeObjectSource struct {
	conn *sqlConnection
}

func (s *largeObjectSource) ConnectionValid() bool { return !s.conn.IsClosed() }

func (s *largeObjectSource) Exists(ctx context.Context, id string) (bool, error) {
	row := s.conn.db.QueryRowContext(ctx, "SELECT 1 FROM pg_largeobject_metadata WHERE oid = $1", id)
	var one int
	if err := row.Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, WrapError(CodeExecuteFailed, "checking large object existence", err)
	}
	return true, nil
}

func (s *largeObjectSource) Read(ctx context.Context, id string, chunkSize int, appendFn func([]byte)) error {
	row := s.conn.db.QueryRowContext(ctx, "SELECT lo_get($1)", id)
	var data []byte
	if err := row.Scan(&data); err != nil {
		return WrapError(CodeExecuteFailed, "reading large object", err)
	}
	for len(data) > 0 {
		n := chunkSize
		if n > len(data) {
			n = len(data)
		}
		appendFn(data[:n])
		data = data[n:]
	}
	return nil
}

// Write stores data as a new large object in one lo_from_bytea query and
// returns its OID. It does not rewrite or unlink the object named by id,
// and it does not use chunkSize: every Save through it yields a new
// identifier and leaves the previous object in place.
func (s *largeObjectSource) Write(ctx context.Context, id string, data []byte, chunkSize int) (string, error) {
	row := s.conn.db.QueryRowContext(ctx, "SELECT lo_from_bytea(0, $1)", data)
	var newOID string
	if err := row.Scan(&newOID); err != nil {
		return "", WrapError(CodeExecuteFailed, "writing large object", err)
	}
	return newOID, nil
}

func (s *largeObjectSource) Unlink(ctx context.Context, id string) error {
	_, err := s.conn.db.ExecContext(ctx, "SELECT lo_unlink($1::oid)", id)
	if err != nil {
		return WrapError(CodeExecuteFailed, "unlinking large object", err)
	}
	return nil
}
