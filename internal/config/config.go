// Package config loads the reportd YAML configuration: server settings, pool
// settings, named connections and report definitions.
package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mantis/reportd/internal/pool"
	"github.com/mantis/reportd/internal/report"
)

// Config is the root configuration.
type Config struct {
	Server      ServerConfig                `yaml:"server"`
	Pool        pool.Config                 `yaml:"pool"`
	Connections map[string]ConnectionConfig `yaml:"connections"`
	Reports     map[string]ReportConfig     `yaml:"reports"`
}

// ServerConfig tunes the serve loop and the engine.
type ServerConfig struct {
	// MaxConcurrency is the number of requests handled in parallel.
	MaxConcurrency int `yaml:"max_concurrency"`

	// RequestTimeout bounds each request. Zero disables the timeout.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	DefaultPageSize int `yaml:"default_page_size"`

	// MaxConcurrentFragments limits parallel fragment queries per report
	// run. Zero means no limit.
	MaxConcurrentFragments int `yaml:"max_concurrent_fragments"`
}

// ConnectionConfig is one named database connection.
type ConnectionConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// ReportConfig is the YAML form of a report definition.
type ReportConfig struct {
	Connection    string            `yaml:"connection"`
	Table         string            `yaml:"table"`
	Schema        string            `yaml:"schema"`
	ParamColumns  map[string]string `yaml:"param_columns"`
	BarcodeParams []string          `yaml:"barcode_params"`
	Fragments     []FragmentConfig  `yaml:"fragments"`
}

// FragmentConfig is the YAML form of a report fragment.
type FragmentConfig struct {
	SQL             string   `yaml:"sql"`
	Params          []string `yaml:"params"`
	OrderBy         string   `yaml:"order_by"`
	SuggestionParam string   `yaml:"suggestion_param"`
	SuggestionSQL   string   `yaml:"suggestion_sql"`
}

// Defaults.
const (
	DefaultMaxConcurrency = 8
	DefaultRequestTimeout = 30 * time.Second
)

// LoadConfig reads, expands and parses the configuration file at path and
// applies defaults. It does not validate.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by admin
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data. ${VAR} references are replaced with
// the environment value before parsing.
func Parse(data []byte) (*Config, error) {
	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in the string. Unset variables
// expand to the empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

func applyDefaults(cfg *Config) {
	if cfg.Server.MaxConcurrency <= 0 {
		cfg.Server.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Server.DefaultPageSize <= 0 {
		cfg.Server.DefaultPageSize = report.DefaultPageSize
	}

	def := pool.DefaultConfig()
	if cfg.Pool.MaxIdleConns == 0 {
		cfg.Pool.MaxIdleConns = def.MaxIdleConns
	}
	if cfg.Pool.MaxOpenConns == 0 {
		cfg.Pool.MaxOpenConns = def.MaxOpenConns
	}
	if cfg.Pool.ConnMaxLifetime == 0 {
		cfg.Pool.ConnMaxLifetime = def.ConnMaxLifetime
	}
	if cfg.Pool.ConnMaxIdleTime == 0 {
		cfg.Pool.ConnMaxIdleTime = def.ConnMaxIdleTime
	}
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.RequestTimeout < 0 {
		errs = append(errs, "server.request_timeout must not be negative")
	}
	if c.Server.MaxConcurrentFragments < 0 {
		errs = append(errs, "server.max_concurrent_fragments must not be negative")
	}

	for _, name := range sortedKeys(c.Connections) {
		conn := c.Connections[name]
		if conn.Driver == "" {
			errs = append(errs, fmt.Sprintf("connections.%s.driver is required", name))
		}
		if conn.DSN == "" {
			errs = append(errs, fmt.Sprintf("connections.%s.dsn is required", name))
		}
	}

	if len(c.Reports) == 0 {
		errs = append(errs, "at least one report is required")
	}
	for _, name := range sortedKeys(c.Reports) {
		rc := c.Reports[name]
		if _, ok := c.Connections[rc.Connection]; rc.Connection != "" && !ok {
			errs = append(errs, fmt.Sprintf("reports.%s: unknown connection %q", name, rc.Connection))
		}
		if err := rc.definition(name).Validate(); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// PoolConnections returns the named connections sorted by name.
func (c *Config) PoolConnections() []pool.Connection {
	conns := make([]pool.Connection, 0, len(c.Connections))
	for _, name := range sortedKeys(c.Connections) {
		cc := c.Connections[name]
		conns = append(conns, pool.Connection{Name: name, Driver: cc.Driver, DSN: cc.DSN})
	}
	return conns
}

// ReportRegistry builds a registry holding every configured report.
func (c *Config) ReportRegistry() (*report.Registry, error) {
	reg := report.NewRegistry()
	for _, name := range sortedKeys(c.Reports) {
		if err := reg.Register(c.Reports[name].definition(name)); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// EngineOptions returns the engine settings.
func (c *Config) EngineOptions() report.Options {
	return report.Options{
		MaxConcurrentFragments: c.Server.MaxConcurrentFragments,
		DefaultPageSize:        c.Server.DefaultPageSize,
	}
}

func (rc ReportConfig) definition(name string) *report.Definition {
	table := rc.Table
	if rc.Schema != "" {
		table = rc.Schema + "." + rc.Table
	}

	fragments := make([]report.Fragment, len(rc.Fragments))
	for i, f := range rc.Fragments {
		fragments[i] = report.Fragment{
			SQL:             f.SQL,
			Params:          f.Params,
			OrderBy:         f.OrderBy,
			SuggestionParam: f.SuggestionParam,
			SuggestionSQL:   f.SuggestionSQL,
		}
	}

	return &report.Definition{
		Name:          name,
		Connection:    rc.Connection,
		Table:         table,
		ParamColumns:  rc.ParamColumns,
		BarcodeParams: rc.BarcodeParams,
		Fragments:     fragments,
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
