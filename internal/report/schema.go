package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/mantis/reportd/internal/driver"
	"github.com/mantis/reportd/internal/sqltype"
)

// ColumnTypes maps requested column names to lower-cased native type names.
// Columns absent from the catalog map to sqltype.Undefined.
type ColumnTypes map[string]string

// ResolveColumnTypes looks the columns of one table up in the backend's
// information schema. Nothing is cached; every call is a fresh round trip.
// An empty column list returns an empty map without querying. Catalog
// failures are returned as *SchemaUnavailableError.
func ResolveColumnTypes(ctx context.Context, q driver.Queryer, d driver.Driver, table string, columns []string) (ColumnTypes, error) {
	types := make(ColumnTypes, len(columns))
	if len(columns) == 0 {
		return types, nil
	}

	schema, name, err := driver.SplitTableName(table)
	if err != nil {
		return nil, &SchemaUnavailableError{Table: table, Err: err}
	}

	query, args, err := d.ColumnTypesQuery(schema, name, columns)
	if err != nil {
		return nil, &SchemaUnavailableError{Table: table, Err: fmt.Errorf("build catalog query: %w", err)}
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &SchemaUnavailableError{Table: table, Err: err}
	}
	defer rows.Close()

	found := make(map[string]string)
	for rows.Next() {
		var col, typ string
		if err := rows.Scan(&col, &typ); err != nil {
			return nil, &SchemaUnavailableError{Table: table, Err: err}
		}
		found[strings.ToLower(col)] = strings.ToLower(typ)
	}
	if err := rows.Err(); err != nil {
		return nil, &SchemaUnavailableError{Table: table, Err: err}
	}

	for _, col := range columns {
		if typ, ok := found[strings.ToLower(col)]; ok {
			types[col] = typ
		} else {
			types[col] = sqltype.Undefined
		}
	}
	return types, nil
}
