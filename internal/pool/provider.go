package pool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"

	"github.com/mantis/reportd/internal/driver"
)

var (
	// ErrUnknownConnection is returned when a report names a connection that
	// is not configured.
	ErrUnknownConnection = errors.New("unknown connection")

	// ErrConnectionFailed wraps open and ping failures. The message is
	// sanitized and never carries credentials.
	ErrConnectionFailed = errors.New("connection failed")
)

// Connection is a named database connection, e.g. "pool1".
type Connection struct {
	Name   string
	Driver string // driver registry name: mssql, mysql, postgres, duckdb
	DSN    string
}

// Provider hands out pooled handles for named connections.
type Provider struct {
	manager  *Manager
	registry *driver.Registry
	conns    map[string]Connection
	logger   *slog.Logger
}

// NewProvider binds connections to their drivers. Every connection must name
// a driver present in registry.
func NewProvider(manager *Manager, registry *driver.Registry, conns []Connection, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = manager.logger
	}
	p := &Provider{
		manager:  manager,
		registry: registry,
		conns:    make(map[string]Connection, len(conns)),
		logger:   logger,
	}
	for _, c := range conns {
		if _, dup := p.conns[c.Name]; dup {
			return nil, fmt.Errorf("duplicate connection %q", c.Name)
		}
		if !registry.Has(c.Driver) {
			return nil, fmt.Errorf("connection %q: %w: %s", c.Name, driver.ErrDriverNotFound, c.Driver)
		}
		p.conns[c.Name] = c
	}
	return p, nil
}

// Acquire returns the pooled handle and dialect driver for a named
// connection, connecting (or reconnecting) as needed. The handle is shared and
// must not be closed by the caller.
func (p *Provider) Acquire(ctx context.Context, name string) (*sql.DB, driver.Driver, error) {
	c, ok := p.conns[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownConnection, name)
	}
	d, err := p.registry.Get(c.Driver)
	if err != nil {
		return nil, nil, err
	}

	db, err := p.manager.GetConnection(ctx, d.SQLDriverName(), c.DSN)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		msg := SanitizeError(err.Error())
		p.logger.Error("connection failed", "connection", name, "driver", c.Driver, "error", msg)
		return nil, nil, fmt.Errorf("%w: %s: %s", ErrConnectionFailed, name, msg)
	}
	return db, d, nil
}

// Names returns the configured connection names, sorted.
func (p *Provider) Names() []string {
	names := make([]string, 0, len(p.conns))
	for name := range p.conns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ConnectionStats describes one named connection.
type ConnectionStats struct {
	Name   string     `json:"name"`
	Driver string     `json:"driver"`
	Open   bool       `json:"open"`
	Pool   *PoolStats `json:"pool,omitempty"`
}

// Stats returns the state of every configured connection, sorted by name.
// Connections that were never acquired report Open=false.
func (p *Provider) Stats() []ConnectionStats {
	out := make([]ConnectionStats, 0, len(p.conns))
	for _, name := range p.Names() {
		c := p.conns[name]
		cs := ConnectionStats{Name: name, Driver: c.Driver}
		if d, err := p.registry.Get(c.Driver); err == nil {
			if ps, ok := p.manager.StatsFor(d.SQLDriverName(), c.DSN); ok {
				cs.Open = true
				cs.Pool = &ps
			}
		}
		out = append(out, cs)
	}
	return out
}

// Close closes all pools.
func (p *Provider) Close() error {
	return p.manager.Close()
}

var secretPatterns = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`(?i)(password|pwd|passwd)=[^;& ]*`), "${1}=***"},
	{regexp.MustCompile(`(?i)(secret|token|key)=[^;& ]*`), "${1}=***"},
	{regexp.MustCompile(`(://[^:/@\s]+:)[^@\s]+@`), "${1}***@"},
}

// SanitizeError masks credentials in connection error messages, both
// key=value style and URL userinfo.
func SanitizeError(msg string) string {
	for _, p := range secretPatterns {
		msg = p.re.ReplaceAllString(msg, p.repl)
	}
	return msg
}
