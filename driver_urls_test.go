package cppdbc

import "testing"

func TestParseMySQLURLDefaultsPort(t *testing.T) {
	host, port, db, err := parseMySQLURL("cpp_dbc:mysql://localhost/mydb")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if host != "localhost" || port != 3306 || db != "mydb" {
		t.Fatalf("got host=%q port=%d db=%q", host, port, db)
	}
}

func TestParseMySQLURLExplicitPort(t *testing.T) {
	host, port, db, err := parseMySQLURL("cpp_dbc:mysql://db.internal:3307/mydb")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if host != "db.internal" || port != 3307 || db != "mydb" {
		t.Fatalf("got host=%q port=%d db=%q", host, port, db)
	}
}

func TestParseMySQLURLMissingDatabase(t *testing.T) {
	if _, _, _, err := parseMySQLURL("cpp_dbc:mysql://localhost"); err == nil {
		t.Fatalf("expected an error for a url with no database")
	}
}

func TestParsePostgresURLDefaultsPort(t *testing.T) {
	host, port, db, err := parsePostgresURL("cpp_dbc:postgresql://localhost/mydb")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if host != "localhost" || port != 5432 || db != "mydb" {
		t.Fatalf("got host=%q port=%d db=%q", host, port, db)
	}
}

func TestParseSQLiteURLPath(t *testing.T) {
	path, err := parseSQLiteURL("cpp_dbc:sqlite:/var/data/app.db")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "/var/data/app.db" {
		t.Fatalf("got path=%q", path)
	}
}

func TestParseSQLiteURLMemory(t *testing.T) {
	path, err := parseSQLiteURL("cpp_dbc:sqlite::memory:")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != ":memory:" {
		t.Fatalf("got path=%q", path)
	}
}

func TestDriverAcceptsURL(t *testing.T) {
	m := newMySQLDriver()
	if !m.AcceptsURL("cpp_dbc:mysql://localhost/db") {
		t.Fatalf("expected mysql driver to accept its own url scheme")
	}
	if m.AcceptsURL("cpp_dbc:postgresql://localhost/db") {
		t.Fatalf("expected mysql driver to reject a postgresql url")
	}
}
