package cppdbc

import (
	"context"
	"fmt"
	"sync"

	"github.com/gogf/gf/container/gmap"
)

// Driver is implemented by each engine adapter (MySQL, PostgreSQL, SQLite,
// MongoDB). AcceptsURL lets the registry dispatch a cpp_dbc:<scheme>://...
// URL to the right driver without the caller naming the engine explicitly.
type Driver interface {
	Name() string
	AcceptsURL(url string) bool
	Connect(ctx context.Context, url, username, password string) (Connection, error)
}

// driverRegistry is the process-wide table of registered Driver
// implementations, keyed by name. A gmap.StrAnyMap gives it the same
// concurrent-safe-map-without-a-separate-mutex shape the teacher corpus
// reaches for when a package-level registry needs to be goroutine-safe.
var driverRegistry = gmap.NewStrAnyMap(true)

// RegisterDriver adds (or replaces) a driver under its own Name().
func RegisterDriver(d Driver) {
	driverRegistry.Set(d.Name(), d)
}

// UnregisterDriver removes a previously registered driver by name.
func UnregisterDriver(name string) {
	driverRegistry.Remove(name)
}

// ClearDrivers removes every registered driver. Mostly useful in tests.
func ClearDrivers() {
	driverRegistry.Clear()
}

// RegisteredDrivers returns the names of every currently registered driver.
func RegisteredDrivers() []string {
	return driverRegistry.Keys()
}

var registryOnce sync.Once

// ensureBuiltinDrivers registers the MySQL, PostgreSQL, and SQLite drivers
// exactly once. Connect calls this (and ConnectWithConfig and
// ConnectWithConfigManager go through Connect), so a caller never has to
// remember an explicit init step.
func ensureBuiltinDrivers() {
	registryOnce.Do(func() {
		RegisterDriver(newMySQLDriver())
		RegisterDriver(newPostgresDriver())
		RegisterDriver(newSQLiteDriver())
	})
}

// Connect dispatches url to whichever registered driver accepts it and
// returns the resulting Connection. Callers that need the relational
// surface type-assert the result to RelationalConnection.
func Connect(ctx context.Context, url, username, password string) (Connection, error) {
	ensureBuiltinDrivers()
	for _, name := range driverRegistry.Keys() {
		raw, ok := driverRegistry.Search(name)
		if !ok {
			continue
		}
		d, ok := raw.(Driver)
		if !ok {
			continue
		}
		if d.AcceptsURL(url) {
			return d.Connect(ctx, url, username, password)
		}
	}
	return nil, NewErrorWithStack(CodeUnknownURL, fmt.Sprintf("no registered driver accepts url %q", url))
}

// DatabaseConfig is the config-object form of a connection request, the
// Go shape of the registry's getConnection(config) overload.
type DatabaseConfig struct {
	URL      string
	Username string
	Password string
}

// ConnectWithConfig dispatches a DatabaseConfig through the same registry
// Connect uses.
func ConnectWithConfig(ctx context.Context, cfg DatabaseConfig) (Connection, error) {
	return Connect(ctx, cfg.URL, cfg.Username, cfg.Password)
}

// ConfigManager is a named source of DatabaseConfig values, the Go shape
// of the registry's getConnection(configManager, name) overload — a
// caller-supplied lookup (e.g. backed by a config file or secret store)
// rather than a format this package parses itself.
type ConfigManager interface {
	DatabaseConfig(name string) (DatabaseConfig, error)
}

// ConnectWithConfigManager resolves name through mgr and dispatches the
// resulting config.
func ConnectWithConfigManager(ctx context.Context, mgr ConfigManager, name string) (Connection, error) {
	cfg, err := mgr.DatabaseConfig(name)
	if err != nil {
		return nil, err
	}
	return ConnectWithConfig(ctx, cfg)
}
