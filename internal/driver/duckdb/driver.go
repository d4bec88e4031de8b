// Package duckdb provides a DuckDB driver implementation.
package duckdb

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	duckdbdrv "github.com/marcboeker/go-duckdb" // registers "duckdb"
	"github.com/shopspring/decimal"

	"github.com/mantis/reportd/internal/driver"
	"github.com/mantis/reportd/internal/sqltype"
)

// Driver implements the driver.Driver interface for DuckDB.
type Driver struct {
	driver.BaseDriver
}

// New creates a new DuckDB driver.
func New() *Driver {
	return &Driver{
		BaseDriver: driver.NewBaseDriver("duckdb", "duckdb"),
	}
}

// ColumnTypesQuery looks columns up in information_schema, matching names
// case-insensitively within the current schema unless one is given.
func (d *Driver) ColumnTypesQuery(schema, table string, columns []string) (string, []interface{}, error) {
	return d.FoldedColumnTypesQuery(schema, table, columns, "current_schema()")
}

// NativeValue passes decimals and UUIDs as their text form; DuckDB casts
// them to the column type.
func (d *Driver) NativeValue(_ sqltype.Domain, v interface{}) interface{} {
	switch val := v.(type) {
	case decimal.Decimal:
		return val.String()
	case uuid.UUID:
		return val.String()
	}
	return v
}

// ErrorInfo extracts the DuckDB error type.
func (d *Driver) ErrorInfo(err error) driver.ErrorInfo {
	info := driver.ErrorInfo{Message: err.Error()}

	var de *duckdbdrv.Error
	if errors.As(err, &de) {
		info.Number = int(de.Type)
		info.Code = strconv.Itoa(int(de.Type))
		info.SQLMessage = de.Msg
	}
	return info
}

// ExecuteQuery executes a SQL query and converts DuckDB decimals to
// decimal.Decimal so they serialize as exact strings.
func (d *Driver) ExecuteQuery(ctx context.Context, q driver.Queryer, sqlQuery string, args []interface{}) (*driver.ResultSet, error) {
	rs, err := d.BaseDriver.ExecuteQuery(ctx, q, sqlQuery, args)
	if err != nil {
		return nil, err
	}

	for _, row := range rs.Rows {
		for col, v := range row {
			if dec, ok := v.(duckdbdrv.Decimal); ok && dec.Value != nil {
				row[col] = decimal.NewFromBigInt(dec.Value, -int32(dec.Scale))
			}
		}
	}
	return rs, nil
}

// init registers the DuckDB driver with the default registry.
func init() {
	driver.Register(New())
}
