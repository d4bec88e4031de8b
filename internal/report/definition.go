// Package report implements the report engine: report definitions, catalog
// based parameter type resolution, concurrent paginated fragment execution and
// prefix suggestions.
package report

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mantis/reportd/internal/driver"
)

// Fragment is one SQL statement of a report.
type Fragment struct {
	// SQL is the statement, with @Name placeholders or, for legacy
	// fragments, bare "?" placeholders bound in Params order. Empty for
	// suggestion-only fragments.
	SQL string

	// Params are the logical parameters the fragment consumes.
	Params []string

	// OrderBy is an optional paging key. Without it paging order is
	// whatever the backend returns.
	OrderBy string

	// SuggestionParam names the logical parameter SuggestionSQL serves.
	SuggestionParam string

	// SuggestionSQL is a prefix query with a single input placeholder that
	// returns one column aliased to SuggestionParam.
	SuggestionSQL string
}

// Definition is a static report description. It is immutable once
// registered.
type Definition struct {
	Name string

	// Connection is the name of the connection the report runs on.
	Connection string

	// Table holds every parameter's backing column. "schema.table" is
	// accepted.
	Table string

	// ParamColumns maps logical parameter names to backing columns. Unmapped
	// parameters use their own name.
	ParamColumns map[string]string

	// BarcodeParams are parameters designated as barcode lookups.
	BarcodeParams []string

	Fragments []Fragment
}

// Parameters returns the union of all fragments' Params in first-seen order.
func (d *Definition) Parameters() []string {
	seen := make(map[string]bool)
	var names []string
	for _, f := range d.Fragments {
		for _, p := range f.Params {
			if !seen[p] {
				seen[p] = true
				names = append(names, p)
			}
		}
	}
	return names
}

// ColumnFor returns the backing column of a logical parameter.
func (d *Definition) ColumnFor(param string) string {
	if col, ok := d.ParamColumns[param]; ok && col != "" {
		return col
	}
	return param
}

// Columns returns the distinct backing columns of all parameters, in
// parameter order.
func (d *Definition) Columns() []string {
	seen := make(map[string]bool)
	var cols []string
	for _, p := range d.Parameters() {
		col := d.ColumnFor(p)
		if !seen[col] {
			seen[col] = true
			cols = append(cols, col)
		}
	}
	return cols
}

// IsBarcodeParam reports whether param is designated as a barcode lookup.
func (d *Definition) IsBarcodeParam(param string) bool {
	for _, p := range d.BarcodeParams {
		if p == param {
			return true
		}
	}
	return false
}

// SuggestionFragment returns the first fragment serving suggestions for param.
func (d *Definition) SuggestionFragment(param string) (Fragment, bool) {
	for _, f := range d.Fragments {
		if f.SuggestionParam == param && f.SuggestionSQL != "" {
			return f, true
		}
	}
	return Fragment{}, false
}

// Validate checks the definition's structure.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return errors.New("report name is required")
	}
	if d.Connection == "" {
		return fmt.Errorf("report %s: connection is required", d.Name)
	}
	if _, _, err := driver.SplitTableName(d.Table); err != nil {
		return fmt.Errorf("report %s: %w", d.Name, err)
	}
	if len(d.Fragments) == 0 {
		return fmt.Errorf("report %s: at least one fragment is required", d.Name)
	}
	for i, f := range d.Fragments {
		if strings.TrimSpace(f.SQL) == "" && strings.TrimSpace(f.SuggestionSQL) == "" {
			return fmt.Errorf("report %s: fragment %d has neither sql nor suggestion_sql", d.Name, i)
		}
		if f.SuggestionSQL != "" && f.SuggestionParam == "" {
			return fmt.Errorf("report %s: fragment %d has suggestion_sql without suggestion_param", d.Name, i)
		}
		for _, p := range f.Params {
			if err := driver.ValidateIdentifier(p); err != nil {
				return fmt.Errorf("report %s: fragment %d: invalid parameter: %w", d.Name, i, err)
			}
		}
	}
	for param, col := range d.ParamColumns {
		if err := driver.ValidateIdentifier(param); err != nil {
			return fmt.Errorf("report %s: invalid parameter: %w", d.Name, err)
		}
		if err := driver.ValidateIdentifier(col); err != nil {
			return fmt.Errorf("report %s: parameter %s: invalid column: %w", d.Name, param, err)
		}
	}
	return nil
}

// Registry maps report names to definitions.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewRegistry creates an empty report registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register validates and adds a definition. Names must be unique.
func (r *Registry) Register(def *Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[def.Name]; ok {
		return fmt.Errorf("report %s already registered", def.Name)
	}
	r.defs[def.Name] = def
	return nil
}

// Get returns the named definition.
func (r *Registry) Get(name string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, name)
	}
	return def, nil
}

// Names returns all report names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
