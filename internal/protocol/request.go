package protocol

// Method names.
const (
	MethodListReports = "report.list"
	MethodListParams  = "report.parameters"
	MethodRunReport   = "report.run"
	MethodSuggest     = "report.suggest"
	MethodPoolStats   = "pool.stats"
)

// ReportParams names a report. Used by report.parameters.
type ReportParams struct {
	// Report is the registered report name
	Report string `json:"report"`
}

// RunReportParams contains parameters for report.run.
type RunReportParams struct {
	ReportParams

	// Params maps logical parameter names to raw string values. A "format"
	// entry is ignored.
	Params map[string]string `json:"params"`

	// Page is the 1-based page number (optional, default 1)
	Page int `json:"page,omitempty"`

	// PageSize is the number of rows per fragment (optional, server default)
	PageSize int `json:"page_size,omitempty"`
}

// SuggestParams contains parameters for report.suggest.
type SuggestParams struct {
	ReportParams

	// Param is the logical parameter to complete
	Param string `json:"param"`

	// Input is the prefix typed so far (required, non-empty)
	Input string `json:"input"`
}
