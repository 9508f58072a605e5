package cppdbc

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
)

const mysqlURLPrefix = "cpp_dbc:mysql://"

type mysqlDriver struct{}

func newMySQLDriver() Driver { return mysqlDriver{} }

func (mysqlDriver) Name() string { return "mysql" }

func (mysqlDriver) AcceptsURL(u string) bool {
	return strings.HasPrefix(u, mysqlURLPrefix)
}

// parseMySQLURL accepts cpp_dbc:mysql://HOST[:PORT]/DATABASE, defaulting the
// port to 3306 when omitted.
func parseMySQLURL(u string) (host string, port int, database string, err error) {
	rest := strings.TrimPrefix(u, mysqlURLPrefix)
	parsed, perr := url.Parse("mysql://" + rest)
	if perr != nil {
		return "", 0, "", NewErrorWithStack(CodeMalformedURL, "malformed mysql url: "+u)
	}
	host = parsed.Hostname()
	if host == "" {
		return "", 0, "", NewErrorWithStack(CodeMalformedURL, "mysql url missing host: "+u)
	}
	port = 3306
	if p := parsed.Port(); p != "" {
		n, perr := strconv.Atoi(p)
		if perr != nil {
			return "", 0, "", NewErrorWithStack(CodeMalformedURL, "invalid mysql port: "+u)
		}
		port = n
	}
	database = strings.TrimPrefix(parsed.Path, "/")
	if database == "" {
		return "", 0, "", NewErrorWithStack(CodeMalformedURL, "mysql url missing database: "+u)
	}
	return host, port, database, nil
}

func (d mysqlDriver) Connect(ctx context.Context, rawURL, username, password string) (Connection, error) {
	host, port, database, err := parseMySQLURL(rawURL)
	if err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true", username, password, host, port, database)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, WrapError(CodeConnectFailed, "opening mysql connection", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, WrapError(CodeHandshakeFailed, "mysql handshake failed", err)
	}
	return newSQLConnection("mysql", rawURL, db), nil
}
