package transform

import (
	"github.com/pilosa/hdk"
	"github.com/pilosa/hdk/spec"
)

// Mapper applies one class derivation to one source row. A failure which
// is caused by the row data rather than the derivation itself should be
// (or wrap) a *hdk.DataValidationError so that it can be skipped; any
// other error aborts the run. Map may return a nil Record to produce
// nothing for a row.
type Mapper interface {
	Map(row hdk.Row, tableID string, d *spec.ClassDerivation) (hdk.Record, error)
}

// MapperFunc adapts an ordinary function to the Mapper interface.
type MapperFunc func(row hdk.Row, tableID string, d *spec.ClassDerivation) (hdk.Record, error)

// Map implements Mapper.
func (f MapperFunc) Map(row hdk.Row, tableID string, d *spec.ClassDerivation) (hdk.Record, error) {
	return f(row, tableID, d)
}
