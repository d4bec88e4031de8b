// Package sqltype maps native database column types onto a small set of
// canonical value domains and converts raw request strings into Go values
// for those domains.
package sqltype

import (
	"strings"
)

// Domain is the canonical value type a report parameter is bound as.
type Domain string

// Canonical domains.
const (
	DomainString     Domain = "string"
	DomainInteger    Domain = "integer"
	DomainDecimal    Domain = "decimal"
	DomainBoolean    Domain = "boolean"
	DomainDate       Domain = "date"
	DomainDateTime   Domain = "datetime"
	DomainBinary     Domain = "binary"
	DomainIdentifier Domain = "identifier"

	// DomainBarcode is string-backed. It is never derived from a native
	// type, only assigned to designated barcode-lookup parameters.
	DomainBarcode Domain = "barcode"
)

// Undefined is the native type recorded for a column the schema catalog
// does not know about.
const Undefined = "undefined"

// nativeDomains covers the SQL Server, MySQL, PostgreSQL and DuckDB type
// families. Keys are lower-case.
var nativeDomains = map[string]Domain{
	// integer
	"int":       DomainInteger,
	"integer":   DomainInteger,
	"int2":      DomainInteger,
	"int4":      DomainInteger,
	"int8":      DomainInteger,
	"bigint":    DomainInteger,
	"smallint":  DomainInteger,
	"tinyint":   DomainInteger,
	"mediumint": DomainInteger,
	"hugeint":   DomainInteger,
	"ubigint":   DomainInteger,
	"uinteger":  DomainInteger,
	"usmallint": DomainInteger,
	"utinyint":  DomainInteger,
	"year":      DomainInteger,

	// decimal
	"decimal":          DomainDecimal,
	"numeric":          DomainDecimal,
	"money":            DomainDecimal,
	"smallmoney":       DomainDecimal,
	"float":            DomainDecimal,
	"float4":           DomainDecimal,
	"float8":           DomainDecimal,
	"real":             DomainDecimal,
	"double":           DomainDecimal,
	"double precision": DomainDecimal,

	// boolean
	"bit":     DomainBoolean,
	"bool":    DomainBoolean,
	"boolean": DomainBoolean,

	// date / time
	"date":                        DomainDate,
	"datetime":                    DomainDateTime,
	"datetime2":                   DomainDateTime,
	"smalldatetime":               DomainDateTime,
	"datetimeoffset":              DomainDateTime,
	"timestamp":                   DomainDateTime,
	"timestamptz":                 DomainDateTime,
	"timestamp with time zone":    DomainDateTime,
	"timestamp without time zone": DomainDateTime,

	// binary
	"binary":     DomainBinary,
	"varbinary":  DomainBinary,
	"image":      DomainBinary,
	"blob":       DomainBinary,
	"tinyblob":   DomainBinary,
	"mediumblob": DomainBinary,
	"longblob":   DomainBinary,
	"bytea":      DomainBinary,

	// identifier
	"uniqueidentifier": DomainIdentifier,
	"uuid":             DomainIdentifier,

	// string
	"char":              DomainString,
	"nchar":             DomainString,
	"varchar":           DomainString,
	"nvarchar":          DomainString,
	"text":              DomainString,
	"ntext":             DomainString,
	"tinytext":          DomainString,
	"mediumtext":        DomainString,
	"longtext":          DomainString,
	"character":         DomainString,
	"character varying": DomainString,
	"bpchar":            DomainString,
	"enum":              DomainString,
	"set":               DomainString,
	"xml":               DomainString,
	"sysname":           DomainString,
}

// MapToDomain returns the canonical domain for a native type name.
// Lookup is case-insensitive; unknown types map to DomainString.
func MapToDomain(nativeType string) Domain {
	if d, ok := nativeDomains[normalize(nativeType)]; ok {
		return d
	}
	return DomainString
}

// IsKnown reports whether the native type has an explicit entry in the
// mapping table.
func IsKnown(nativeType string) bool {
	_, ok := nativeDomains[normalize(nativeType)]
	return ok
}

// normalize lower-cases the type and strips a length/precision suffix,
// so "NVARCHAR(50)" and "decimal(10,2)" resolve like their base types.
func normalize(nativeType string) string {
	t := strings.ToLower(strings.TrimSpace(nativeType))
	if i := strings.IndexByte(t, '('); i > 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}
