// Package mysql provides a MySQL / MariaDB driver implementation.
package mysql

import (
	"errors"
	"strconv"

	mysqldrv "github.com/go-sql-driver/mysql" // registers "mysql"

	"github.com/mantis/reportd/internal/driver"
)

// Driver implements the driver.Driver interface for MySQL.
type Driver struct {
	driver.BaseDriver
}

// New creates a new MySQL driver.
func New() *Driver {
	return &Driver{
		BaseDriver: driver.NewBaseDriver("mysql", "mysql"),
	}
}

// ColumnTypesQuery restricts the lookup to the connection's database unless
// a schema is given.
func (d *Driver) ColumnTypesQuery(schema, table string, columns []string) (string, []interface{}, error) {
	return d.FoldedColumnTypesQuery(schema, table, columns, "DATABASE()")
}

// ErrorInfo extracts the MySQL error number and SQLSTATE.
func (d *Driver) ErrorInfo(err error) driver.ErrorInfo {
	info := driver.ErrorInfo{Message: err.Error()}

	var me *mysqldrv.MySQLError
	if errors.As(err, &me) {
		info.Number = int(me.Number)
		info.Code = strconv.Itoa(int(me.Number))
		if me.SQLState != [5]byte{} {
			info.SQLState = string(me.SQLState[:])
		}
		info.SQLMessage = me.Message
	}
	return info
}

// init registers the MySQL driver with the default registry.
func init() {
	driver.Register(New())
}
