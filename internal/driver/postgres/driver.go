// Package postgres provides a PostgreSQL driver implementation.
package postgres

import (
	"errors"

	"github.com/lib/pq" // registers "postgres"

	"github.com/mantis/reportd/internal/driver"
)

// Driver implements the driver.Driver interface for PostgreSQL.
type Driver struct {
	driver.BaseDriver
}

// New creates a new PostgreSQL driver. Placeholders are $1, $2, ...
func New() *Driver {
	return &Driver{
		BaseDriver: driver.NewNumberedBaseDriver("postgres", "postgres"),
	}
}

// ColumnTypesQuery matches unquoted (folded) and quoted identifiers alike
// within current_schema() unless a schema is given.
func (d *Driver) ColumnTypesQuery(schema, table string, columns []string) (string, []interface{}, error) {
	return d.FoldedColumnTypesQuery(schema, table, columns, "current_schema()")
}

// ErrorInfo extracts the SQLSTATE and its condition name.
func (d *Driver) ErrorInfo(err error) driver.ErrorInfo {
	info := driver.ErrorInfo{Message: err.Error()}

	var pe *pq.Error
	if errors.As(err, &pe) {
		info.Code = pe.Code.Name()
		info.SQLState = string(pe.Code)
		info.SQLMessage = pe.Message
	}
	return info
}

// init registers the PostgreSQL driver with the default registry.
func init() {
	driver.Register(New())
}
