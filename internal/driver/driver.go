// Package driver defines the database driver interface and implementations.
//
// Each database type (MSSQL, MySQL, PostgreSQL, DuckDB) implements the Driver
// interface, providing the dialect-specific pieces the report engine needs:
// the schema catalog query, placeholder binding, pagination, native parameter
// types and error code extraction.
package driver

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/mantis/reportd/internal/sqltype"
)

// Driver is the interface that database drivers must implement.
type Driver interface {
	// Name returns the driver identifier (e.g., "mssql", "duckdb")
	Name() string

	// SQLDriverName returns the database/sql driver name passed to sql.Open.
	SQLDriverName() string

	// Connect establishes a database connection.
	// The returned *sql.DB should be used for subsequent operations.
	Connect(ctx context.Context, connectionString string) (*sql.DB, error)

	// ColumnTypesQuery builds the catalog query returning (COLUMN_NAME, DATA_TYPE)
	// rows for the given columns of one table. An empty schema uses the
	// backend's default.
	ColumnTypesQuery(schema, table string, columns []string) (string, []interface{}, error)

	// Bind rewrites the @Name tokens of query into the backend's native
	// placeholder syntax and returns the matching argument list.
	Bind(query string, values map[string]interface{}) (string, []interface{})

	// BindPositional adapts a query written with bare "?" placeholders to the
	// backend. args are already in placeholder order.
	BindPositional(query string, args []interface{}) (string, []interface{})

	// Paginate appends the backend's paging clause to query. An empty orderBy
	// keeps whatever order the backend produces.
	Paginate(query, orderBy string, offset, limit int) string

	// NativeValue converts a domain value produced by sqltype.Convert into the
	// value handed to the database driver.
	NativeValue(d sqltype.Domain, v interface{}) interface{}

	// ErrorInfo extracts the native error code and message from a query error.
	ErrorInfo(err error) ErrorInfo

	// ExecuteQuery executes a SQL query and returns the results.
	ExecuteQuery(ctx context.Context, q Queryer, sql string, args []interface{}) (*ResultSet, error)
}

// Queryer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// ResultSet holds the rows of one executed query.
type ResultSet struct {
	// Columns is the list of column names in select order
	Columns []string

	// Rows maps column name to value for every returned row
	Rows []map[string]interface{}
}

// ErrorInfo is the structured form of a database error.
type ErrorInfo struct {
	// Message is the full error text
	Message string `json:"message"`

	// Code is the backend's symbolic or numeric error code (optional)
	Code string `json:"code,omitempty"`

	// SQLState is the ANSI SQLSTATE, where the backend reports one (optional)
	SQLState string `json:"sql_state,omitempty"`

	// Number is the backend's numeric error number (optional)
	Number int `json:"errno,omitempty"`

	// SQLMessage is the server-side message without client decoration (optional)
	SQLMessage string `json:"sql_message,omitempty"`
}

// BaseDriver provides common functionality that can be embedded by driver implementations.
// Its defaults fit backends that use INFORMATION_SCHEMA, positional placeholders
// and LIMIT/OFFSET paging.
type BaseDriver struct {
	name        string
	sqlName     string
	placeholder sq.PlaceholderFormat
	numbered    bool
}

// NewBaseDriver creates a BaseDriver whose catalog query and bound fragments
// use "?" placeholders.
func NewBaseDriver(name, sqlName string) BaseDriver {
	return BaseDriver{name: name, sqlName: sqlName, placeholder: sq.Question}
}

// NewNumberedBaseDriver creates a BaseDriver whose placeholders are $1, $2, ...
func NewNumberedBaseDriver(name, sqlName string) BaseDriver {
	return BaseDriver{name: name, sqlName: sqlName, placeholder: sq.Dollar, numbered: true}
}

// NewBaseDriverWithFormat creates a BaseDriver with an explicit catalog
// placeholder format. Fragment binding stays positional "?".
func NewBaseDriverWithFormat(name, sqlName string, format sq.PlaceholderFormat) BaseDriver {
	return BaseDriver{name: name, sqlName: sqlName, placeholder: format}
}

// Name returns the driver name.
func (d *BaseDriver) Name() string {
	return d.name
}

// SQLDriverName returns the database/sql driver name.
func (d *BaseDriver) SQLDriverName() string {
	return d.sqlName
}

// Connect opens and pings a connection pool.
func (d *BaseDriver) Connect(ctx context.Context, connectionString string) (*sql.DB, error) {
	db, err := sql.Open(d.sqlName, connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	// Verify connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Builder returns a squirrel statement builder using the driver's placeholder format.
func (d *BaseDriver) Builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(d.placeholder)
}

// ColumnTypesQuery builds an INFORMATION_SCHEMA.COLUMNS lookup.
func (d *BaseDriver) ColumnTypesQuery(schema, table string, columns []string) (string, []interface{}, error) {
	qb := d.Builder().
		Select("COLUMN_NAME", "DATA_TYPE").
		From("INFORMATION_SCHEMA.COLUMNS").
		Where(sq.Eq{"TABLE_NAME": table})
	if schema != "" {
		qb = qb.Where(sq.Eq{"TABLE_SCHEMA": schema})
	}
	qb = qb.Where(sq.Eq{"COLUMN_NAME": columns})
	return qb.ToSql()
}

// FoldedColumnTypesQuery is ColumnTypesQuery for catalogs that compare names
// case-sensitively. Names are matched lower-cased. An empty schema is
// restricted with defaultSchema, a SQL expression such as "current_schema()".
func (d *BaseDriver) FoldedColumnTypesQuery(schema, table string, columns []string, defaultSchema string) (string, []interface{}, error) {
	lowered := make([]string, len(columns))
	for i, c := range columns {
		lowered[i] = strings.ToLower(c)
	}

	qb := d.Builder().
		Select("column_name", "data_type").
		From("information_schema.columns").
		Where("LOWER(table_name) = ?", strings.ToLower(table))
	switch {
	case schema != "":
		qb = qb.Where("LOWER(table_schema) = ?", strings.ToLower(schema))
	case defaultSchema != "":
		qb = qb.Where("table_schema = " + defaultSchema)
	}
	qb = qb.Where(sq.Eq{"LOWER(column_name)": lowered})
	return qb.ToSql()
}

// Bind replaces every @Name token with a positional placeholder. A name used
// twice is bound twice.
func (d *BaseDriver) Bind(query string, values map[string]interface{}) (string, []interface{}) {
	tokens := ScanTokens(query)
	if len(tokens) == 0 {
		return query, nil
	}

	var b strings.Builder
	args := make([]interface{}, 0, len(tokens))
	last := 0
	for i, tok := range tokens {
		b.WriteString(query[last:tok.Start])
		if d.numbered {
			fmt.Fprintf(&b, "$%d", i+1)
		} else {
			b.WriteByte('?')
		}
		args = append(args, values[tok.Name])
		last = tok.End
	}
	b.WriteString(query[last:])
	return b.String(), args
}

// BindPositional rewrites "?" to $n for numbered drivers and leaves the query
// alone otherwise.
func (d *BaseDriver) BindPositional(query string, args []interface{}) (string, []interface{}) {
	if !d.numbered {
		return query, args
	}
	return RewritePositional(query, func(i int) string { return fmt.Sprintf("$%d", i+1) }), args
}

// RewritePositional replaces the i-th bare "?" of query with mark(i).
func RewritePositional(query string, mark func(i int) string) string {
	offsets := ScanPositional(query)
	if len(offsets) == 0 {
		return query
	}
	var b strings.Builder
	last := 0
	for i, off := range offsets {
		b.WriteString(query[last:off])
		b.WriteString(mark(i))
		last = off + 1
	}
	b.WriteString(query[last:])
	return b.String()
}

// Paginate appends ORDER BY (when given) and LIMIT/OFFSET.
func (d *BaseDriver) Paginate(query, orderBy string, offset, limit int) string {
	q := TrimStatement(query)
	if orderBy != "" {
		q += " ORDER BY " + orderBy
	}
	return fmt.Sprintf("%s LIMIT %d OFFSET %d", q, limit, offset)
}

// NativeValue returns v unchanged.
func (d *BaseDriver) NativeValue(_ sqltype.Domain, v interface{}) interface{} {
	return v
}

// ErrorInfo returns the error text only.
func (d *BaseDriver) ErrorInfo(err error) ErrorInfo {
	return ErrorInfo{Message: err.Error()}
}

// MaxQueryRows is the maximum number of rows returned by ExecuteQuery.
// This prevents memory exhaustion from unbounded result sets.
const MaxQueryRows = 10000

// ExecuteQuery provides a generic query execution implementation.
// This works for most databases using database/sql interface.
// Results are limited to MaxQueryRows to prevent memory exhaustion.
func (d *BaseDriver) ExecuteQuery(ctx context.Context, q Queryer, sqlQuery string, args []interface{}) (*ResultSet, error) {
	rows, err := q.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	resultRows := make([]map[string]interface{}, 0)
	for rows.Next() {
		// Stop if we've hit the row limit
		if len(resultRows) >= MaxQueryRows {
			break
		}

		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = ConvertValue(values[i])
		}
		resultRows = append(resultRows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &ResultSet{Columns: columns, Rows: resultRows}, nil
}

// ConvertValue converts database-specific types to JSON-serializable types.
// Exported for use by driver implementations.
func ConvertValue(v interface{}) interface{} {
	if v == nil {
		return nil
	}

	switch val := v.(type) {
	case []byte:
		// Convert byte slices to strings (common for VARCHAR, TEXT, etc.)
		return string(val)
	default:
		return val
	}
}

// TrimStatement removes trailing whitespace and statement terminators so a
// clause can be appended.
func TrimStatement(query string) string {
	return strings.TrimRight(query, " \t\r\n;")
}
