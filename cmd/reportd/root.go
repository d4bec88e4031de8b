package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mantis/reportd/internal/config"
	"github.com/mantis/reportd/internal/driver"
	"github.com/mantis/reportd/internal/handler"
	"github.com/mantis/reportd/internal/pool"
	"github.com/mantis/reportd/internal/report"
	"github.com/mantis/reportd/internal/transport"
)

// rootOptions holds the persistent command-line flags.
type rootOptions struct {
	configPath string
	logLevel   string

	// Pool overrides, applied only when the flag is set.
	maxIdleConns    int
	maxOpenConns    int
	connMaxLifetime time.Duration
	connMaxIdleTime time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "reportd",
		Short:         "SQL report service",
		Long:          "reportd runs configured, parameterized SQL reports against SQL Server, MySQL, PostgreSQL and DuckDB.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "reportd.yaml", "Path to the configuration file")
	pf.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.IntVar(&opts.maxIdleConns, "pool-max-idle", 0, "Maximum idle connections per pool (overrides config)")
	pf.IntVar(&opts.maxOpenConns, "pool-max-open", 0, "Maximum open connections per pool (overrides config)")
	pf.DurationVar(&opts.connMaxLifetime, "pool-conn-lifetime", 0, "Maximum connection lifetime (overrides config)")
	pf.DurationVar(&opts.connMaxIdleTime, "pool-conn-idle", 0, "Maximum connection idle time (overrides config)")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newReportsCmd(opts),
		newParamsCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

// loadConfig reads the configuration file, applies flag overrides and
// validates the result.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("pool-max-idle") {
		cfg.Pool.MaxIdleConns = opts.maxIdleConns
	}
	if flags.Changed("pool-max-open") {
		cfg.Pool.MaxOpenConns = opts.maxOpenConns
	}
	if flags.Changed("pool-conn-lifetime") {
		cfg.Pool.ConnMaxLifetime = opts.connMaxLifetime
	}
	if flags.Changed("pool-conn-idle") {
		cfg.Pool.ConnMaxIdleTime = opts.connMaxIdleTime
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the JSON logger. stdout carries responses, so logs go to w.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// app is the wired service: pools, engine and handler.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	provider *pool.Provider
	engine   *report.Engine
}

func newApp(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	logger, err := newLogger(cmd.ErrOrStderr(), opts.logLevel)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, err
	}

	reports, err := cfg.ReportRegistry()
	if err != nil {
		return nil, err
	}

	manager := pool.NewManager(cfg.Pool, logger)
	provider, err := pool.NewProvider(manager, driver.DefaultRegistry, cfg.PoolConnections(), logger)
	if err != nil {
		_ = manager.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		provider: provider,
		engine:   report.NewEngine(provider, reports, logger, cfg.EngineOptions()),
	}, nil
}

func (a *app) Close() error {
	return a.provider.Close()
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve NDJSON requests from stdin",
		Long: `Reads one JSON request per line from stdin and writes one JSON response per
line to stdout. Logs go to stderr.

Methods:
    report.list         List configured reports
    report.parameters   Resolve the parameters of a report
    report.run          Run a report, one page per fragment
    report.suggest      Suggest values for a parameter
    pool.stats          Show connection pool statistics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			// Cancel on SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			trans := transport.NewStdioTransport(cmd.InOrStdin(), cmd.OutOrStdout())
			h := handler.New(a.engine, a.provider, a.logger)

			a.logger.Info("serving",
				"version", Version,
				"reports", len(a.cfg.Reports),
				"connections", len(a.cfg.Connections),
				"max_concurrency", a.cfg.Server.MaxConcurrency)

			err = transport.Serve(ctx, trans, h, transport.Options{
				MaxConcurrency: a.cfg.Server.MaxConcurrency,
				RequestTimeout: a.cfg.Server.RequestTimeout,
				Logger:         a.logger,
			})
			if errors.Is(err, context.Canceled) {
				a.logger.Info("shutting down")
				return nil
			}
			return err
		},
	}
}

func newReportsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reports",
		Short: "List the configured reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			reports, err := cfg.ReportRegistry()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCONNECTION\tTABLE\tPARAMETERS")
			for _, name := range reports.Names() {
				def, err := reports.Get(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", def.Name, def.Connection, def.Table, strings.Join(def.Parameters(), ","))
			}
			return tw.Flush()
		},
	}
}

func newParamsCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "params <report>",
		Short: "Resolve and print the parameters of a report",
		Long:  "Connects to the report's database, reads the column types of its table and prints the resulting parameter descriptors.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if a.cfg.Server.RequestTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, a.cfg.Server.RequestTimeout)
				defer cancel()
			}

			params, err := a.engine.ListParameters(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(params)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCOLUMN\tNATIVE TYPE\tDOMAIN\tREQUIRED")
			for _, p := range params {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", p.Name, p.Column, p.NativeType, p.Domain, p.Required)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print descriptors as JSON")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "reportd version %s\n", Version)
			return err
		},
	}
}
