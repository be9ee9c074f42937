package hdk

import (
	"errors"
	"fmt"
)

// Class describes how a failure is treated by the orchestrator and the run
// driver.
type Class int

const (
	// ClassFatal errors abort the run. Output I/O failures and any error
	// which is not recognized by ClassOf fall into this class.
	ClassFatal Class = iota
	// ClassMissingTable is a derivation whose source table does not exist.
	// Skipped unless running in strict mode.
	ClassMissingTable
	// ClassDataValidation is a derivation which can't be satisfied against
	// the actual row data. The remainder of the derivation is skipped unless
	// running in strict mode.
	ClassDataValidation
	// ClassStructural is a broken specification. Always fatal.
	ClassStructural
	// ClassDocument is a specification document which could not be read or
	// parsed. The document is skipped unless running in strict mode.
	ClassDocument
)

// String returns the name of the class.
func (c Class) String() string {
	switch c {
	case ClassFatal:
		return "fatal"
	case ClassMissingTable:
		return "missing-table"
	case ClassDataValidation:
		return "data-validation"
	case ClassStructural:
		return "structural"
	case ClassDocument:
		return "document"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

// TableNotFoundError is returned when a derivation references a source table
// which has no backing file or object.
type TableNotFoundError struct {
	TableID  string
	Location string
}

func (e *TableNotFoundError) Error() string {
	if e.Location == "" {
		return fmt.Sprintf("no data file for %s", e.TableID)
	}
	return fmt.Sprintf("no data file for %s at %s", e.TableID, e.Location)
}

// DataValidationError is returned when a field rule can't be satisfied
// against the row data, e.g. it references a column which the table does not
// have, or a value can't be converted to the declared range.
type DataValidationError struct {
	TableID string
	Field   string
	Column  string
	Line    int
	Err     error
}

func (e *DataValidationError) Error() string {
	msg := "data validation"
	if e.TableID != "" {
		msg += " in " + e.TableID
	}
	if e.Line > 0 {
		msg += fmt.Sprintf(" line %d", e.Line)
	}
	if e.Field != "" {
		msg += " field " + e.Field
	}
	if e.Column != "" {
		msg += " column " + e.Column
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataValidationError) Unwrap() error { return e.Err }

// StructuralSpecError is a malformed specification document or block. It
// is never skipped.
type StructuralSpecError struct {
	Document string
	// Block is the zero based position of the block in its document, or -1
	// when the problem concerns the whole document.
	Block  int
	Entity string
	Reason string
}

func (e *StructuralSpecError) Error() string {
	msg := "malformed specification " + e.Document
	if e.Block >= 0 {
		msg += fmt.Sprintf(" block %d", e.Block)
	}
	if e.Entity != "" {
		msg += " (" + e.Entity + ")"
	}
	return msg + ": " + e.Reason
}

// DocumentParseError is a specification document which could not be read or
// parsed as YAML.
type DocumentParseError struct {
	Document string
	Err      error
}

func (e *DocumentParseError) Error() string {
	return fmt.Sprintf("parsing specification %s: %v", e.Document, e.Err)
}

func (e *DocumentParseError) Unwrap() error { return e.Err }

// OutputIOError is a failure to write a destination file.
type OutputIOError struct {
	Path string
	Op   string
	Err  error
}

func (e *OutputIOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *OutputIOError) Unwrap() error { return e.Err }

// ClassOf classifies err by the first error of a known type in its chain.
// nil is reported as ClassFatal; callers are expected to check for nil
// first.
func ClassOf(err error) Class {
	var (
		tnf *TableNotFoundError
		dve *DataValidationError
		sse *StructuralSpecError
		dpe *DocumentParseError
	)
	switch {
	case errors.As(err, &sse):
		return ClassStructural
	case errors.As(err, &tnf):
		return ClassMissingTable
	case errors.As(err, &dve):
		return ClassDataValidation
	case errors.As(err, &dpe):
		return ClassDocument
	default:
		return ClassFatal
	}
}

// IsRecoverable reports whether err may be skipped at derivation
// granularity when not running in strict mode.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	switch ClassOf(err) {
	case ClassMissingTable, ClassDataValidation:
		return true
	}
	return false
}
