package protocol

import "time"

// ListReportsResponse is returned by report.list.
type ListReportsResponse struct {
	Reports []string `json:"reports"`
}

// ParameterInfo describes one logical report parameter.
type ParameterInfo struct {
	// Name is the logical parameter name
	Name string `json:"name"`

	// Column is the backing column the type was resolved from
	Column string `json:"column"`

	// NativeType is the catalog type name, "undefined" when unresolved
	NativeType string `json:"native_type"`

	// Domain is the canonical value type (string, integer, date, barcode, ...)
	Domain string `json:"domain"`

	Required bool `json:"required"`
}

// ListParametersResponse is returned by report.parameters.
type ListParametersResponse struct {
	Report     string          `json:"report"`
	Parameters []ParameterInfo `json:"parameters"`
}

// QueryError is the structured database error carried by a report.run
// result whose fragment was rejected.
type QueryError struct {
	// Fragment is the index of the failing fragment
	Fragment int `json:"fragment"`

	// Message is the full error text
	Message string `json:"message"`

	// Code is the native error code (SQL Server error number, Postgres
	// condition name, ...)
	Code string `json:"code,omitempty"`

	SQLState   string `json:"sql_state,omitempty"`
	Errno      int    `json:"errno,omitempty"`
	SQLMessage string `json:"sql_message,omitempty"`
}

// RunReportResponse is returned by report.run. On a database rejection Data
// is null and Error is set; the envelope is still successful.
type RunReportResponse struct {
	// Data holds the rows of every fragment, concatenated in fragment order.
	// Rows of different fragments may have different columns.
	Data []map[string]interface{} `json:"data"`

	Error *QueryError `json:"error,omitempty"`

	Page     int `json:"page,omitempty"`
	PageSize int `json:"page_size,omitempty"`
}

// SuggestResponse is returned by report.suggest.
type SuggestResponse struct {
	Suggestions []string `json:"suggestions"`
}

// PoolInfo describes one named connection and its pool.
type PoolInfo struct {
	Name   string `json:"name"`
	Driver string `json:"driver"`
	Open   bool   `json:"open"`

	// The fields below are only set for open pools.
	CreatedAt       *time.Time `json:"created_at,omitempty"`
	Reopened        int        `json:"reopened,omitempty"`
	OpenConnections int        `json:"open_connections"`
	InUse           int        `json:"in_use"`
	Idle            int        `json:"idle"`
	WaitCount       int64      `json:"wait_count"`
}

// PoolStatsResponse is returned by pool.stats.
type PoolStatsResponse struct {
	Pools []PoolInfo `json:"pools"`
}
