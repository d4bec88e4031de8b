// Package pool provides connection pool management for the report backends.
//
// Manager owns one *sql.DB per (database/sql driver, DSN) pair and pings it on
// every acquire, reopening pools whose connections have died. Provider layers
// named connections from the configuration on top of it.
package pool

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Config holds connection pool configuration options.
type Config struct {
	// MaxIdleConns is the maximum number of idle connections in the pool.
	MaxIdleConns int `json:"max_idle_conns" yaml:"max_idle_conns"`

	// MaxOpenConns is the maximum number of open connections to the database.
	MaxOpenConns int `json:"max_open_conns" yaml:"max_open_conns"`

	// ConnMaxLifetime is the maximum amount of time a connection may be reused.
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`

	// ConnMaxIdleTime is the maximum amount of time a connection may be idle.
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time"`
}

// DefaultConfig returns a sensible default pool configuration.
func DefaultConfig() Config {
	return Config{
		MaxIdleConns:    5,
		MaxOpenConns:    10,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
	}
}

// apply copies the settings onto db.
func (c Config) apply(db *sql.DB) {
	db.SetMaxIdleConns(c.MaxIdleConns)
	db.SetMaxOpenConns(c.MaxOpenConns)
	db.SetConnMaxLifetime(c.ConnMaxLifetime)
	db.SetConnMaxIdleTime(c.ConnMaxIdleTime)
}

// DBOpener opens a database handle. Tests substitute it to inject failures
// or sqlmock handles.
type DBOpener interface {
	Open(driver, connStr string) (*sql.DB, error)
}

// sqlOpener uses sql.Open.
type sqlOpener struct{}

func (sqlOpener) Open(driver, connStr string) (*sql.DB, error) {
	return sql.Open(driver, connStr)
}

type poolEntry struct {
	db        *sql.DB
	driver    string
	createdAt time.Time
	reopened  int
}

// Manager manages a collection of database connection pools.
type Manager struct {
	mu     sync.RWMutex
	pools  map[string]*poolEntry // keyed by driver + DSN hash, never the DSN itself
	config Config
	opener DBOpener
	logger *slog.Logger
}

// NewManager creates a pool manager that opens handles with sql.Open.
// A nil logger discards log output.
func NewManager(config Config, logger *slog.Logger) *Manager {
	return NewManagerWithOpener(config, sqlOpener{}, logger)
}

// NewManagerWithOpener creates a pool manager with a custom DB opener.
func NewManagerWithOpener(config Config, opener DBOpener, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		pools:  make(map[string]*poolEntry),
		config: config,
		opener: opener,
		logger: logger,
	}
}

// hashConnString returns a short, stable digest of a DSN.
func hashConnString(connStr string) string {
	h := sha256.Sum256([]byte(connStr))
	return hex.EncodeToString(h[:8])
}

// makeKey creates the pool key for a (driver, DSN) pair.
func makeKey(driver, connStr string) string {
	return driver + ":" + hashConnString(connStr)
}

// GetConnection returns the pool for (driver, connStr), opening it on first
// use. The pool is pinged first; a pool that fails the ping is closed and
// reopened. The caller must not close the returned handle.
func (m *Manager) GetConnection(ctx context.Context, driver, connStr string) (*sql.DB, error) {
	key := makeKey(driver, connStr)

	m.mu.RLock()
	entry, ok := m.pools[key]
	m.mu.RUnlock()
	if ok && entry.db.PingContext(ctx) == nil {
		return entry.db, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another goroutine may have opened or replaced the pool meanwhile.
	reopened := 0
	if entry, ok := m.pools[key]; ok {
		if err := entry.db.PingContext(ctx); err == nil {
			return entry.db, nil
		} else if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		m.logger.Warn("closing dead connection pool", "pool", key)
		_ = entry.db.Close()
		delete(m.pools, key)
		reopened = entry.reopened + 1
	}

	db, err := m.opener.Open(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	m.config.apply(db)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	m.pools[key] = &poolEntry{
		db:        db,
		driver:    driver,
		createdAt: time.Now(),
		reopened:  reopened,
	}
	m.logger.Info("opened connection pool", "pool", key, "driver", driver, "reopened", reopened)
	return db, nil
}

// Close closes all connection pools managed by this manager.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var lastErr error
	for key, entry := range m.pools {
		if err := entry.db.Close(); err != nil {
			lastErr = fmt.Errorf("failed to close pool %s: %w", key, err)
		}
		delete(m.pools, key)
	}
	return lastErr
}

// CloseConnection closes the pool for (driver, connStr), if open.
func (m *Manager) CloseConnection(driver, connStr string) error {
	key := makeKey(driver, connStr)

	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.pools[key]; ok {
		delete(m.pools, key)
		return entry.db.Close()
	}
	return nil
}

// PoolStats contains statistics about a connection pool.
type PoolStats struct {
	Key       string      `json:"key"`
	Driver    string      `json:"driver"`
	CreatedAt time.Time   `json:"created_at"`
	Reopened  int         `json:"reopened"`
	Stats     sql.DBStats `json:"stats"`
}

func (e *poolEntry) stats(key string) PoolStats {
	return PoolStats{
		Key:       key,
		Driver:    e.driver,
		CreatedAt: e.createdAt,
		Reopened:  e.reopened,
		Stats:     e.db.Stats(),
	}
}

// Stats returns statistics about all open pools, ordered by key.
func (m *Manager) Stats() []PoolStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make([]PoolStats, 0, len(m.pools))
	for key, entry := range m.pools {
		stats = append(stats, entry.stats(key))
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Key < stats[j].Key })
	return stats
}

// StatsFor returns the statistics of the pool for (driver, connStr).
func (m *Manager) StatsFor(driver, connStr string) (PoolStats, bool) {
	key := makeKey(driver, connStr)

	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.pools[key]
	if !ok {
		return PoolStats{}, false
	}
	return entry.stats(key), true
}

// PoolCount returns the number of open pools.
func (m *Manager) PoolCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pools)
}

// HasPool returns true if a pool exists for the given driver and connection string.
func (m *Manager) HasPool(driver, connStr string) bool {
	key := makeKey(driver, connStr)

	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.pools[key]
	return ok
}
