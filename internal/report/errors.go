package report

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mantis/reportd/internal/driver"
	"github.com/mantis/reportd/internal/sqltype"
)

var (
	// ErrReportNotFound is returned for unknown report names.
	ErrReportNotFound = errors.New("report not found")

	// ErrMissingParameters matches any *MissingParametersError.
	ErrMissingParameters = errors.New("missing required parameters")

	// ErrNoSuggestionQuery is returned when no fragment serves suggestions
	// for a parameter.
	ErrNoSuggestionQuery = errors.New("no suggestion query")

	// ErrInvalidPage is returned for a negative page number or size.
	ErrInvalidPage = errors.New("invalid page")
)

// MissingParametersError lists every required parameter absent from a run
// request.
type MissingParametersError struct {
	Names []string
}

func (e *MissingParametersError) Error() string {
	return fmt.Sprintf("missing required parameters: %s", strings.Join(e.Names, ", "))
}

// Is matches ErrMissingParameters.
func (e *MissingParametersError) Is(target error) bool {
	return target == ErrMissingParameters
}

// InvalidParameterError reports a raw value that does not convert to its
// parameter's domain.
type InvalidParameterError struct {
	Name   string
	Domain sqltype.Domain
	Value  string
	Err    error
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("parameter %s: invalid %s value: %v", e.Name, e.Domain, e.Err)
}

func (e *InvalidParameterError) Unwrap() error { return e.Err }

// SchemaUnavailableError wraps a failed catalog lookup.
type SchemaUnavailableError struct {
	Table string
	Err   error
}

func (e *SchemaUnavailableError) Error() string {
	return fmt.Sprintf("column types for %s unavailable: %v", e.Table, e.Err)
}

func (e *SchemaUnavailableError) Unwrap() error { return e.Err }

// ExecutionError is a database rejection of one fragment or suggestion query.
// Fragment is -1 for suggestion queries.
type ExecutionError struct {
	Fragment int
	Info     driver.ErrorInfo
	Err      error
}

func (e *ExecutionError) Error() string {
	if e.Fragment < 0 {
		return fmt.Sprintf("suggestion query failed: %s", e.Info.Message)
	}
	return fmt.Sprintf("fragment %d failed: %s", e.Fragment, e.Info.Message)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// InvalidParameters returns every *InvalidParameterError joined into err.
func InvalidParameters(err error) []*InvalidParameterError {
	var out []*InvalidParameterError
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if ip, ok := e.(*InvalidParameterError); ok {
			out = append(out, ip)
			return
		}
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	return out
}
