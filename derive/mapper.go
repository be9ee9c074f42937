// Package derive is the default transform.Mapper. It understands the
// common subset of LinkML-Map slot derivations:
//
//	populated_from      copy a source column; empty cells are omitted
//	value               assign a constant
//	value_mappings      translate copied values, unmapped values pass through
//	object_derivations  build embedded records from the same row
//
// Copied values are converted to the target schema's declared range for
// integer, float, double, decimal and boolean slots. Any other key is
// ignored.
package derive

import (
	"strconv"
	"strings"
	"sync"

	"github.com/pilosa/hdk"
	"github.com/pilosa/hdk/spec"
	"github.com/pkg/errors"
)

// Mapper applies class derivations to rows. It is safe for concurrent use.
type Mapper struct {
	source *Schema
	target *Schema
	log    hdk.Logger

	warned sync.Map // *spec.SlotDerivation -> struct{}
}

// Option is a functional option for New.
type Option func(m *Mapper)

// OptLogger sets the logger which receives debug lines about ignored
// slot derivation keys.
func OptLogger(l hdk.Logger) Option {
	return func(m *Mapper) {
		m.log = l
	}
}

// New returns a Mapper. Either schema may be nil.
func New(source, target *Schema, opts ...Option) *Mapper {
	m := &Mapper{
		source: source,
		target: target,
		log:    hdk.NopLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Map implements transform.Mapper.
func (m *Mapper) Map(row hdk.Row, tableID string, d *spec.ClassDerivation) (hdk.Record, error) {
	rec := hdk.NewRecord()
	for _, s := range d.Slots {
		v, ok, err := m.slot(row, tableID, d.Name, s)
		if err != nil {
			return nil, err
		}
		if ok {
			rec.Set(s.Name, v)
		}
	}
	return rec, nil
}

func (m *Mapper) slot(row hdk.Row, tableID, class string, s *spec.SlotDerivation) (any, bool, error) {
	if len(s.Unknown) > 0 {
		if _, dup := m.warned.LoadOrStore(s, struct{}{}); !dup {
			m.log.Debugf("ignoring %s on slot %s of %s", strings.Join(s.Unknown, ", "), s.Name, class)
		}
	}
	switch {
	case s.HasValue:
		return s.Value, true, nil
	case len(s.Objects) > 0:
		return m.objects(row, tableID, s)
	case s.PopulatedFrom != "":
		return m.copy(row, tableID, class, s)
	}
	return nil, false, nil
}

func (m *Mapper) objects(row hdk.Row, tableID string, s *spec.SlotDerivation) (any, bool, error) {
	var objs []any
	for _, d := range s.Objects {
		rec, err := m.Map(row, tableID, d)
		if err != nil {
			return nil, false, err
		}
		if rec.Len() > 0 {
			objs = append(objs, rec)
		}
	}
	switch len(objs) {
	case 0:
		return nil, false, nil
	case 1:
		return objs[0], true, nil
	}
	return objs, true, nil
}

func (m *Mapper) copy(row hdk.Row, tableID, class string, s *spec.SlotDerivation) (any, bool, error) {
	col := s.PopulatedFrom
	invalid := func(err error) error {
		return &hdk.DataValidationError{TableID: tableID, Field: class + "." + s.Name, Column: col, Err: err}
	}
	if declared, known := m.source.Declares(tableID, col); known && !declared {
		return nil, false, invalid(errors.New("column not declared in source schema"))
	}
	cell, ok := row[col]
	if !ok {
		return nil, false, invalid(errors.New("no such column"))
	}
	if cell == "" {
		return nil, false, nil
	}
	if mapped, ok := s.ValueMappings[cell]; ok {
		str, isString := mapped.(string)
		if !isString {
			return mapped, true, nil
		}
		cell = str
	}
	v, err := convert(cell, m.target.Range(class, s.Name))
	if err != nil {
		return nil, false, invalid(err)
	}
	return v, true, nil
}

// convert parses cell as rng. Ranges other than the numeric and boolean
// types leave the cell as a string.
func convert(cell, rng string) (any, error) {
	switch rng {
	case "integer":
		i, err := strconv.ParseInt(strings.TrimSpace(cell), 10, 64)
		if err == nil {
			return i, nil
		}
		// integral floats such as "42.0" are accepted
		f, ferr := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		if ferr != nil || f != float64(int64(f)) {
			return nil, errors.Errorf("%q is not an integer", cell)
		}
		return int64(f), nil
	case "float", "double", "decimal":
		f, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		if err != nil {
			return nil, errors.Errorf("%q is not a number", cell)
		}
		return f, nil
	case "boolean":
		switch strings.ToLower(strings.TrimSpace(cell)) {
		case "true", "t", "yes", "y", "1":
			return true, nil
		case "false", "f", "no", "n", "0":
			return false, nil
		}
		return nil, errors.Errorf("%q is not a boolean", cell)
	}
	return cell, nil
}
