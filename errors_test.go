package hdk_test

import (
	"testing"

	"github.com/pilosa/hdk"
	"github.com/pkg/errors"
)

func TestClassOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		exp  hdk.Class
	}{
		{"missing table", &hdk.TableNotFoundError{TableID: "pht001"}, hdk.ClassMissingTable},
		{"wrapped missing table", errors.Wrap(&hdk.TableNotFoundError{TableID: "pht001"}, "loading"), hdk.ClassMissingTable},
		{"data validation", &hdk.DataValidationError{Column: "age"}, hdk.ClassDataValidation},
		{"doubly wrapped data validation", errors.Wrapf(errors.Wrap(&hdk.DataValidationError{}, "mapping"), "block %d", 2), hdk.ClassDataValidation},
		{"structural", &hdk.StructuralSpecError{Document: "a.yaml", Block: 0, Reason: "missing class_derivations"}, hdk.ClassStructural},
		{"document", &hdk.DocumentParseError{Document: "a.yaml", Err: errors.New("bad yaml")}, hdk.ClassDocument},
		{"output", &hdk.OutputIOError{Path: "out.tsv", Op: "writing", Err: errors.New("disk full")}, hdk.ClassFatal},
		{"unknown", errors.New("boom"), hdk.ClassFatal},
	}
	for _, tst := range tests {
		t.Run(tst.name, func(t *testing.T) {
			if got := hdk.ClassOf(tst.err); got != tst.exp {
				t.Fatalf("ClassOf(%v) = %v, want %v", tst.err, got, tst.exp)
			}
		})
	}
}

func TestIsRecoverable(t *testing.T) {
	if hdk.IsRecoverable(nil) {
		t.Fatal("nil is not recoverable")
	}
	if !hdk.IsRecoverable(errors.Wrap(&hdk.DataValidationError{Column: "x"}, "mapping row")) {
		t.Fatal("data validation should be recoverable")
	}
	if !hdk.IsRecoverable(&hdk.TableNotFoundError{TableID: "x"}) {
		t.Fatal("missing table should be recoverable")
	}
	if hdk.IsRecoverable(&hdk.StructuralSpecError{Block: -1}) {
		t.Fatal("structural error must not be recoverable")
	}
	if hdk.IsRecoverable(errors.New("key error")) {
		t.Fatal("unclassified error must not be recoverable")
	}
}

func TestErrorMessages(t *testing.T) {
	err := &hdk.StructuralSpecError{Document: "specs/person.yaml", Block: 1, Entity: "Person", Reason: "missing populated_from"}
	if got, exp := err.Error(), "malformed specification specs/person.yaml block 1 (Person): missing populated_from"; got != exp {
		t.Fatalf("got %q, want %q", got, exp)
	}
	dve := &hdk.DataValidationError{TableID: "demographics", Field: "id", Column: "subject_id", Err: errors.New("no such column")}
	if got, exp := dve.Error(), "data validation in demographics field id column subject_id: no such column"; got != exp {
		t.Fatalf("got %q, want %q", got, exp)
	}
	tnf := &hdk.TableNotFoundError{TableID: "pht9", Location: "/data/pht9.tsv"}
	if got, exp := tnf.Error(), "no data file for pht9 at /data/pht9.tsv"; got != exp {
		t.Fatalf("got %q, want %q", got, exp)
	}
}
