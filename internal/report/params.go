package report

import (
	"context"
	"strings"

	"github.com/mantis/reportd/internal/driver"
	"github.com/mantis/reportd/internal/sqltype"
)

// barcodeColumn is the backing column name that marks a barcode lookup.
const barcodeColumn = "barcode"

// ParameterDescriptor is the resolved shape of one logical parameter.
type ParameterDescriptor struct {
	Name       string         `json:"name"`
	Column     string         `json:"column"`
	NativeType string         `json:"native_type"`
	Domain     sqltype.Domain `json:"domain"`
	Required   bool           `json:"required"`
}

// ParameterSet is the ordered descriptor list of one report.
type ParameterSet []ParameterDescriptor

// Lookup returns the descriptor for name.
func (s ParameterSet) Lookup(name string) (ParameterDescriptor, bool) {
	for _, p := range s {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterDescriptor{}, false
}

// Names returns the parameter names in order.
func (s ParameterSet) Names() []string {
	names := make([]string, len(s))
	for i, p := range s {
		names[i] = p.Name
	}
	return names
}

// ResolveParameters resolves the column types behind def's parameters with a
// single catalog query and builds their descriptors.
func ResolveParameters(ctx context.Context, q driver.Queryer, d driver.Driver, def *Definition) (ParameterSet, error) {
	types, err := ResolveColumnTypes(ctx, q, d, def.Table, def.Columns())
	if err != nil {
		return nil, err
	}
	return describeParameters(def, types), nil
}

// describeParameters applies the domain mapping and barcode override. Every
// parameter is required.
func describeParameters(def *Definition, types ColumnTypes) ParameterSet {
	names := def.Parameters()
	set := make(ParameterSet, 0, len(names))
	for _, name := range names {
		col := def.ColumnFor(name)
		native, ok := types[col]
		if !ok {
			native = sqltype.Undefined
		}

		domain := sqltype.MapToDomain(native)
		if native == sqltype.Undefined && (strings.EqualFold(col, barcodeColumn) || def.IsBarcodeParam(name)) {
			domain = sqltype.DomainBarcode
		}

		set = append(set, ParameterDescriptor{
			Name:       name,
			Column:     col,
			NativeType: native,
			Domain:     domain,
			Required:   true,
		})
	}
	return set
}
