// Package mssql provides a Microsoft SQL Server driver implementation.
package mssql

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-sql/civil"
	"github.com/google/uuid"
	mssqldb "github.com/microsoft/go-mssqldb" // registers "sqlserver"

	"github.com/mantis/reportd/internal/driver"
	"github.com/mantis/reportd/internal/sqltype"
)

// noOrder is the ORDER BY expression used when a fragment declares none.
// OFFSET/FETCH requires an ORDER BY clause.
const noOrder = "(SELECT NULL)"

// Driver implements the driver.Driver interface for MSSQL.
type Driver struct {
	driver.BaseDriver
}

// New creates a new MSSQL driver.
func New() *Driver {
	return &Driver{
		BaseDriver: driver.NewBaseDriverWithFormat("mssql", "sqlserver", sq.AtP),
	}
}

// Bind keeps the @Name tokens in place and passes one sql.Named argument per
// distinct name.
func (d *Driver) Bind(query string, values map[string]interface{}) (string, []interface{}) {
	names := driver.TokenNames(query)
	if len(names) == 0 {
		return query, nil
	}
	args := make([]interface{}, 0, len(names))
	for _, name := range names {
		args = append(args, sql.Named(name, values[name]))
	}
	return query, args
}

// BindPositional rewrites bare "?" placeholders to @p1, @p2, ...
func (d *Driver) BindPositional(query string, args []interface{}) (string, []interface{}) {
	return driver.RewritePositional(query, func(i int) string { return fmt.Sprintf("@p%d", i+1) }), args
}

// Paginate appends ORDER BY ... OFFSET n ROWS FETCH NEXT m ROWS ONLY.
func (d *Driver) Paginate(query, orderBy string, offset, limit int) string {
	if orderBy == "" {
		orderBy = noOrder
	}
	return fmt.Sprintf("%s ORDER BY %s OFFSET %d ROWS FETCH NEXT %d ROWS ONLY",
		driver.TrimStatement(query), orderBy, offset, limit)
}

// NativeValue maps domain values onto go-mssqldb parameter types. Barcodes are
// sent as VARCHAR so comparisons against VARCHAR columns stay sargable.
func (d *Driver) NativeValue(dom sqltype.Domain, v interface{}) interface{} {
	switch dom {
	case sqltype.DomainBarcode:
		if s, ok := v.(string); ok {
			return mssqldb.VarChar(s)
		}
	case sqltype.DomainDate:
		if t, ok := v.(time.Time); ok {
			return civil.DateOf(t)
		}
	case sqltype.DomainDateTime:
		if t, ok := v.(time.Time); ok {
			return civil.DateTimeOf(t)
		}
	case sqltype.DomainIdentifier:
		if id, ok := v.(uuid.UUID); ok {
			return mssqldb.UniqueIdentifier(id)
		}
	}
	return v
}

// ErrorInfo extracts the SQL Server error number and state.
func (d *Driver) ErrorInfo(err error) driver.ErrorInfo {
	info := driver.ErrorInfo{Message: err.Error()}

	var me mssqldb.Error
	var pme *mssqldb.Error
	switch {
	case errors.As(err, &me):
	case errors.As(err, &pme) && pme != nil:
		me = *pme
	default:
		return info
	}

	info.Number = int(me.Number)
	info.Code = strconv.Itoa(int(me.Number))
	info.SQLState = strconv.Itoa(int(me.State))
	info.SQLMessage = me.Message
	return info
}

// init registers the MSSQL driver with the default registry.
func init() {
	driver.Register(New())
}
