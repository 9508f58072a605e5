package cppdbc

import "time"

// PoolConfig parameterizes a Pool's sizing, borrow/return validation, and
// background maintenance. Zero-value numeric, string and duration fields
// are replaced by DefaultPoolConfig's defaults in NewPool; TestOnBorrow and
// TestOnReturn are taken as given, so a zero-value config runs with both off.
type PoolConfig struct {
	URL      string
	Username string
	Password string

	InitialSize int
	MaxSize     int
	MinIdle     int

	MaxWaitMillis           int64
	ValidationTimeoutMillis int64
	IdleTimeoutMillis       int64
	MaxLifetimeMillis       int64

	TestOnBorrow bool
	TestOnReturn bool

	ValidationQuery string

	// MaintenanceInterval is how often the background reaper wakes to
	// evict idle/expired connections and top back up to MinIdle.
	MaintenanceInterval time.Duration
}

// DefaultPoolConfig returns the original C++ ConnectionPool constructor's
// defaults, under this package's field names, plus a 30-second
// MaintenanceInterval.
func DefaultPoolConfig(url, username, password string) PoolConfig {
	return PoolConfig{
		URL:                     url,
		Username:                username,
		Password:                password,
		InitialSize:             5,
		MaxSize:                 20,
		MinIdle:                 3,
		MaxWaitMillis:           5_000,
		ValidationTimeoutMillis: 5_000,
		IdleTimeoutMillis:       300_000,
		MaxLifetimeMillis:       1_800_000,
		TestOnBorrow:            true,
		TestOnReturn:            false,
		ValidationQuery:         "SELECT 1",
		MaintenanceInterval:     30 * time.Second,
	}
}

func (c PoolConfig) withDefaults() PoolConfig {
	d := DefaultPoolConfig(c.URL, c.Username, c.Password)
	if c.InitialSize > 0 {
		d.InitialSize = c.InitialSize
	}
	if c.MaxSize > 0 {
		d.MaxSize = c.MaxSize
	}
	if c.MinIdle > 0 {
		d.MinIdle = c.MinIdle
	}
	if c.MaxWaitMillis > 0 {
		d.MaxWaitMillis = c.MaxWaitMillis
	}
	if c.ValidationTimeoutMillis > 0 {
		d.ValidationTimeoutMillis = c.ValidationTimeoutMillis
	}
	if c.IdleTimeoutMillis > 0 {
		d.IdleTimeoutMillis = c.IdleTimeoutMillis
	}
	if c.MaxLifetimeMillis > 0 {
		d.MaxLifetimeMillis = c.MaxLifetimeMillis
	}
	if c.ValidationQuery != "" {
		d.ValidationQuery = c.ValidationQuery
	}
	if c.MaintenanceInterval > 0 {
		d.MaintenanceInterval = c.MaintenanceInterval
	}
	d.TestOnBorrow = c.TestOnBorrow
	d.TestOnReturn = c.TestOnReturn
	return d
}
