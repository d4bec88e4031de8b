package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mantis/reportd/internal/driver"
	"github.com/mantis/reportd/internal/sqltype"
)

// formatKey is the output format selector of the HTTP front end. It is not a
// report parameter.
const formatKey = "format"

// ConnectionProvider hands out pooled handles for named connections.
// *pool.Provider implements it.
type ConnectionProvider interface {
	Acquire(ctx context.Context, name string) (*sql.DB, driver.Driver, error)
}

// Row is one result row, column name to value. Rows of different fragments
// need not share columns.
type Row = map[string]interface{}

// Result is the outcome of a report run.
type Result struct {
	Data []Row `json:"data"`
}

// Options tune an Engine.
type Options struct {
	// MaxConcurrentFragments limits parallel fragment queries per run.
	// Zero means no limit.
	MaxConcurrentFragments int

	// DefaultPageSize is used when a run request has no page size.
	DefaultPageSize int
}

// Engine runs registered reports against their connections.
type Engine struct {
	provider ConnectionProvider
	reports  *Registry
	logger   *slog.Logger
	opts     Options
}

// NewEngine creates an engine. A nil logger discards log output.
func NewEngine(provider ConnectionProvider, reports *Registry, logger *slog.Logger, opts Options) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = DefaultPageSize
	}
	return &Engine{
		provider: provider,
		reports:  reports,
		logger:   logger,
		opts:     opts,
	}
}

// Reports returns the registered report names, sorted.
func (e *Engine) Reports() []string {
	return e.reports.Names()
}

// DefaultPageSize returns the page size applied when a request has none.
func (e *Engine) DefaultPageSize() int {
	return e.opts.DefaultPageSize
}

// ListParameters resolves the named report's parameters against the live
// catalog.
func (e *Engine) ListParameters(ctx context.Context, name string) (ParameterSet, error) {
	def, err := e.reports.Get(name)
	if err != nil {
		return nil, err
	}
	db, d, err := e.provider.Acquire(ctx, def.Connection)
	if err != nil {
		return nil, err
	}
	return e.resolve(ctx, db, d, def)
}

func (e *Engine) resolve(ctx context.Context, db *sql.DB, d driver.Driver, def *Definition) (ParameterSet, error) {
	params, err := ResolveParameters(ctx, db, d, def)
	if err != nil {
		return nil, err
	}
	for _, p := range params {
		switch {
		case p.NativeType == sqltype.Undefined:
			e.logger.Warn("column not found in catalog",
				"report", def.Name, "table", def.Table, "column", p.Column, "parameter", p.Name, "domain", p.Domain)
		case !sqltype.IsKnown(p.NativeType):
			e.logger.Warn("unknown native type, binding as string",
				"report", def.Name, "column", p.Column, "native_type", p.NativeType)
		}
	}
	return params, nil
}

// RunReport validates raw against the report's parameters, runs every
// fragment concurrently with the requested page and concatenates the rows in
// fragment order.
//
// All missing parameters are reported together in one
// *MissingParametersError, joined with an *InvalidParameterError for every
// value that does not convert to its domain. A database rejection of a
// fragment is returned as *ExecutionError.
func (e *Engine) RunReport(ctx context.Context, name string, raw map[string]string, page Page) (*Result, error) {
	def, err := e.reports.Get(name)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	log := e.logger.With("report", name, "run_id", uuid.NewString())

	db, d, err := e.provider.Acquire(ctx, def.Connection)
	if err != nil {
		return nil, err
	}

	params, err := e.resolve(ctx, db, d, def)
	if err != nil {
		return nil, err
	}

	values, err := bindValues(params, def.Fragments, withoutFormat(raw), d)
	if err != nil {
		return nil, err
	}

	results := make([][]Row, len(def.Fragments))
	g, gctx := errgroup.WithContext(ctx)
	if e.opts.MaxConcurrentFragments > 0 {
		g.SetLimit(e.opts.MaxConcurrentFragments)
	}
	for i, f := range def.Fragments {
		if strings.TrimSpace(f.SQL) == "" {
			continue
		}
		g.Go(func() error {
			rows, err := e.runFragment(gctx, log, db, d, i, f, values, page)
			if err != nil {
				return err
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var execErr *ExecutionError
		if errors.As(err, &execErr) {
			log.Error("fragment failed", "fragment", execErr.Fragment, "error", execErr.Info.Message)
		}
		return nil, err
	}

	total := 0
	for _, rows := range results {
		total += len(rows)
	}
	data := make([]Row, 0, total)
	for _, rows := range results {
		data = append(data, rows...)
	}

	log.Info("report completed", "rows", len(data), "page", page.Number, "page_size", page.Size,
		"duration", time.Since(start))
	return &Result{Data: data}, nil
}

// bindValues converts the raw values of all descriptors to driver values.
// Empty and whitespace-only values count as missing. Tokens in fragment SQL
// that no descriptor covers are bound as strings and are missing when the
// request does not supply them.
func bindValues(params ParameterSet, fragments []Fragment, raw map[string]string, d driver.Driver) (map[string]interface{}, error) {
	values := make(map[string]interface{}, len(raw))
	var missing []string
	var errs []error

	for _, p := range params {
		v, ok := raw[p.Name]
		if !ok || strings.TrimSpace(v) == "" {
			if p.Required {
				missing = append(missing, p.Name)
			}
			continue
		}
		converted, err := sqltype.Convert(v, p.Domain)
		if err != nil {
			errs = append(errs, &InvalidParameterError{Name: p.Name, Domain: p.Domain, Value: v, Err: err})
			continue
		}
		values[p.Name] = d.NativeValue(p.Domain, converted)
	}

	undeclared := make(map[string]bool)
	for _, f := range fragments {
		if strings.TrimSpace(f.SQL) == "" {
			continue
		}
		for _, name := range driver.TokenNames(f.SQL) {
			if _, ok := params.Lookup(name); ok || undeclared[name] {
				continue
			}
			undeclared[name] = true
			v, ok := raw[name]
			if !ok || strings.TrimSpace(v) == "" {
				missing = append(missing, name)
				continue
			}
			values[name] = d.NativeValue(sqltype.DomainString, v)
		}
	}

	if len(missing) > 0 {
		errs = append([]error{&MissingParametersError{Names: missing}}, errs...)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	for name, v := range raw {
		if _, ok := values[name]; ok {
			continue
		}
		if _, ok := params.Lookup(name); ok {
			continue
		}
		values[name] = d.NativeValue(sqltype.DomainString, v)
	}
	return values, nil
}

// runFragment binds, paginates and executes one fragment. The placeholders
// bound are the ones present in the SQL text, not the declared Params, except
// for legacy "?" fragments which bind Params in order.
func (e *Engine) runFragment(ctx context.Context, log *slog.Logger, db *sql.DB, d driver.Driver, idx int, f Fragment, values map[string]interface{}, page Page) ([]Row, error) {
	var query string
	var args []interface{}

	if tokens := driver.TokenNames(f.SQL); len(tokens) > 0 {
		named := make(map[string]interface{}, len(tokens))
		for _, name := range tokens {
			named[name] = values[name]
		}
		query, args = d.Bind(f.SQL, named)
	} else {
		positional := make([]interface{}, 0, len(f.Params))
		for _, name := range f.Params {
			positional = append(positional, values[name])
		}
		query, args = d.BindPositional(f.SQL, positional)
	}
	query = d.Paginate(query, f.OrderBy, page.Offset(), page.Size)

	log.Debug("executing fragment", "fragment", idx, "sql", query, "args", len(args))

	rs, err := d.ExecuteQuery(ctx, db, query, args)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &ExecutionError{Fragment: idx, Info: d.ErrorInfo(err), Err: err}
	}
	return rs.Rows, nil
}

// Suggest runs the suggestion query serving param with input as the prefix
// and returns the param column of each row in result order. An empty input
// yields no suggestions.
func (e *Engine) Suggest(ctx context.Context, name, param, input string) ([]string, error) {
	def, err := e.reports.Get(name)
	if err != nil {
		return nil, err
	}
	f, ok := def.SuggestionFragment(param)
	if !ok {
		return nil, fmt.Errorf("%w for parameter %s", ErrNoSuggestionQuery, param)
	}
	if input == "" {
		return []string{}, nil
	}

	db, d, err := e.provider.Acquire(ctx, def.Connection)
	if err != nil {
		return nil, err
	}

	var query string
	var args []interface{}
	if tokens := driver.TokenNames(f.SuggestionSQL); len(tokens) > 0 {
		named := make(map[string]interface{}, len(tokens))
		for _, tok := range tokens {
			named[tok] = input
		}
		query, args = d.Bind(f.SuggestionSQL, named)
	} else {
		positional := make([]interface{}, len(driver.ScanPositional(f.SuggestionSQL)))
		for i := range positional {
			positional[i] = input
		}
		query, args = d.BindPositional(f.SuggestionSQL, positional)
	}

	e.logger.Debug("executing suggestion query", "report", name, "parameter", param, "sql", query)

	rs, err := d.ExecuteQuery(ctx, db, query, args)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		info := d.ErrorInfo(err)
		e.logger.Error("suggestion query failed", "report", name, "parameter", param, "error", info.Message)
		return nil, &ExecutionError{Fragment: -1, Info: info, Err: err}
	}

	col := suggestionColumn(rs.Columns, param)
	suggestions := make([]string, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		v := row[col]
		if v == nil {
			continue
		}
		suggestions = append(suggestions, formatSuggestion(v))
	}
	return suggestions, nil
}

// suggestionColumn picks the result column aliased to param, falling back
// to a case-insensitive match and then to the only column.
func suggestionColumn(columns []string, param string) string {
	for _, c := range columns {
		if c == param {
			return c
		}
	}
	for _, c := range columns {
		if strings.EqualFold(c, param) {
			return c
		}
	}
	if len(columns) == 1 {
		return columns[0]
	}
	return param
}

func formatSuggestion(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			return val.Format("2006-01-02")
		}
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}

// withoutFormat returns raw without the format selector. raw is not
// modified.
func withoutFormat(raw map[string]string) map[string]string {
	if _, ok := raw[formatKey]; !ok {
		return raw
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if k != formatKey {
			out[k] = v
		}
	}
	return out
}
