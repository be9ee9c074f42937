package stream

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pilosa/hdk"
	"github.com/pilosa/hdk/test"
	"github.com/pkg/errors"
)

func lines(frags []string) []string {
	return strings.Split(strings.TrimSuffix(strings.Join(frags, ""), "\n"), "\n")
}

func TestTSVBasic(t *testing.T) {
	frags, res := run(t, NewTSVStream("", "", ""),
		hdk.Chunk{hdk.RecordOf("id", "1", "name", "Alice"), hdk.RecordOf("id", "2", "name", "Bob")})
	test.MustBe(t, []string{"id\tname", "1\tAlice", "2\tBob"}, lines(frags))
	test.MustBe(t, Result{Headers: []string{"id", "name"}}, res)
}

func TestTSVNestedFlattened(t *testing.T) {
	frags, _ := run(t, NewTSVStream("", "", ""),
		hdk.Chunk{hdk.RecordOf("id", "1", "person", hdk.RecordOf("name", "Alice", "age", int64(30)))})
	test.MustBe(t, []string{"id\tperson__name\tperson__age", "1\tAlice\t30"}, lines(frags))
}

func TestTSVCustomSeparatorAndReducer(t *testing.T) {
	frags, _ := run(t, NewTSVStream(",", ".", ""),
		hdk.Chunk{hdk.RecordOf("id", "1", "q", hdk.RecordOf("unit", "kg"), "name", "Smith, Al")})
	test.MustBe(t, []string{"id,q.unit,name", `1,kg,Smith\, Al`}, lines(frags))
}

func TestTSVCells(t *testing.T) {
	frags, _ := run(t, NewTSVStream("", "", ""),
		hdk.Chunk{hdk.RecordOf(
			"list", []any{"a", int64(2), hdk.RecordOf("k", "v")},
			"f", 1.5,
			"b", false,
			"n", nil,
			"text", "two\tcells\nand lines",
		)})
	test.MustBe(t, []string{
		"list\tf\tb\tn\ttext",
		`a,2,{"k":"v"}` + "\t1.5\tfalse\t\t" + `two\tcells\nand lines`,
	}, lines(frags))
}

func TestTSVHeaderNamesEscaped(t *testing.T) {
	frags, res := run(t, NewTSVStream("", "", ""),
		hdk.Chunk{hdk.RecordOf("id", "1", "odd\tname", "x", "line\nbreak", "y")})
	test.MustBe(t, []string{"id\t" + `odd\tname` + "\t" + `line\nbreak`, "1\tx\ty"}, lines(frags))
	test.MustBe(t, []string{"id", "odd\tname", "line\nbreak"}, res.Headers)

	p := test.MustWriteFile(t, t.TempDir(), "out.tsv", strings.Join(frags, ""))
	test.ErrNil(t, Reconcile(p, append(res.Headers, "extra"), ReconcileOptions{}), "reconciling")
	test.MustBe(t, []string{"id\t" + `odd\tname` + "\t" + `line\nbreak` + "\textra", "1\tx\ty\t"}, test.MustReadLines(t, p))
}

func TestTSVFlattenedNameCollision(t *testing.T) {
	frags, res := run(t, NewTSVStream("", "", ""),
		hdk.Chunk{hdk.RecordOf("a__b", "flat", "a", hdk.RecordOf("b", "nested", "c", "kept"))})
	test.MustBe(t, []string{"a__b\ta__c", "flat\tkept"}, lines(frags))
	test.MustBe(t, []string{"a__b", "a__c"}, res.Headers)
}

func TestTSVMissingValuesEmpty(t *testing.T) {
	frags, _ := run(t, NewTSVStream("", "", ""),
		hdk.Chunk{hdk.RecordOf("id", "1", "name", "Alice"), hdk.RecordOf("id", "2")})
	test.MustBe(t, []string{"id\tname", "1\tAlice", "2\t"}, lines(frags))
}

func TestTSVNoRows(t *testing.T) {
	frags, res := run(t, NewTSVStream("", "", ""), hdk.Chunk{})
	if len(frags) != 0 {
		t.Fatalf("expected nothing written, got %q", frags)
	}
	if res.MustReconcile {
		t.Fatal("no rows cannot drift")
	}
}

func TestTSVConsistentHeaders(t *testing.T) {
	_, res := run(t, NewTSVStream("", "", ""),
		hdk.Chunk{hdk.RecordOf("id", "1", "name", "a")}, hdk.Chunk{hdk.RecordOf("name", "b", "id", "2")})
	if res.MustReconcile {
		t.Fatal("same columns in another order is not drift")
	}
}

func TestHeaderState(t *testing.T) {
	h := &HeaderState{}
	if h.Drifted() {
		t.Fatal("unlocked state cannot drift")
	}
	h.Observe([]string{"a", "b"})
	if !h.Lock() {
		t.Fatal("first lock should transition")
	}
	h.Observe([]string{"b", "c", "a"})
	if h.Lock() {
		t.Fatal("second lock must not transition")
	}
	test.MustBe(t, []string{"a", "b"}, h.Current)
	test.MustBe(t, []string{"a", "b", "c"}, h.Observed)
	if !h.Drifted() {
		t.Fatal("expected drift")
	}
}

// headerView cuts every line down to the fields covered by its header.
func headerView(lines []string, sep string) []string {
	n := strings.Count(lines[0], sep) + 1
	ret := make([]string, len(lines))
	for i, l := range lines {
		fields := strings.Split(l, sep)
		if len(fields) > n {
			fields = fields[:n]
		}
		ret[i] = strings.Join(fields, sep)
	}
	return ret
}

// The extra column of the second row is not in the header written by the
// first pass; reconciliation rewrites the header and pads the first row.
func TestTSVDriftAndReconcile(t *testing.T) {
	frags, res := run(t, NewTSVStream("", "", ""),
		hdk.Chunk{hdk.RecordOf("id", "1")}, hdk.Chunk{hdk.RecordOf("id", "2", "extra", "x")})
	test.MustBe(t, []string{"id", "1", "2"}, headerView(lines(frags), "\t"))
	test.MustBe(t, Result{Headers: []string{"id", "extra"}, MustReconcile: true}, res)

	p := test.MustWriteFile(t, t.TempDir(), "person.tsv", strings.Join(frags, ""))
	test.ErrNil(t, Reconcile(p, res.Headers, ReconcileOptions{}), "reconciling")
	test.MustBe(t, "id\textra\n1\t\n2\tx\n", test.MustReadFile(t, p))
}

func TestTSVLateColumnsPositioned(t *testing.T) {
	frags, res := run(t, NewTSVStream("", "", ""), hdk.Chunk{
		hdk.RecordOf("id", "1"),
		hdk.RecordOf("id", "2", "b", "x"),
		hdk.RecordOf("c", "y", "id", "3"),
		hdk.RecordOf("id", "4"),
	})
	test.MustBe(t, []string{"id", "1", "2\tx", "3\t\ty", "4"}, lines(frags))
	test.MustBe(t, []string{"id", "b", "c"}, res.Headers)

	p := test.MustWriteFile(t, t.TempDir(), "out.tsv", strings.Join(frags, ""))
	test.ErrNil(t, Reconcile(p, res.Headers, ReconcileOptions{}), "reconciling")
	test.MustBe(t, []string{"id\tb\tc", "1\t\t", "2\tx\t", "3\t\ty", "4\t\t"}, test.MustReadLines(t, p))
}

func TestReconcilePadding(t *testing.T) {
	d := t.TempDir()
	p := test.MustWriteFile(t, d, "out.tsv", "a\tb\n1\t2\n3\n\n4\t5\t6\n7")
	headers := []string{"a", "b", "c"}
	test.ErrNil(t, Reconcile(p, headers, ReconcileOptions{ChunkSize: 2}), "reconciling")
	got := test.MustReadLines(t, p)
	test.MustBe(t, []string{"a\tb\tc", "1\t2\t", "3\t\t", "\t\t", "4\t5\t6", "7\t\t"}, got)
	for _, line := range got {
		if n := strings.Count(line, "\t") + 1; n != len(headers) {
			t.Fatalf("line %q has %d fields", line, n)
		}
	}
}

func TestReconcileNeverTrims(t *testing.T) {
	p := test.MustWriteFile(t, t.TempDir(), "out.tsv", "a\n1\t2\t3\n")
	test.ErrNil(t, Reconcile(p, []string{"a", "b"}, ReconcileOptions{}), "reconciling")
	test.MustBe(t, "a\tb\n1\t2\t3\n", test.MustReadFile(t, p))
}

func TestReconcileIdempotent(t *testing.T) {
	d := t.TempDir()
	p := test.MustWriteFile(t, d, "out.tsv", "id\n1\n2\n")
	headers := []string{"id", "extra"}
	test.ErrNil(t, Reconcile(p, headers, ReconcileOptions{}), "first reconcile")
	once := test.MustReadFile(t, p)
	test.ErrNil(t, Reconcile(p, headers, ReconcileOptions{}), "second reconcile")
	test.MustBe(t, once, test.MustReadFile(t, p))

	entries, err := os.ReadDir(d)
	test.ErrNil(t, err, "listing")
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %v", entries)
	}
}

func TestReconcileCustomSeparator(t *testing.T) {
	p := test.MustWriteFile(t, t.TempDir(), "out.csv", "id\n1\n")
	test.ErrNil(t, Reconcile(p, []string{"id", "x", "y"}, ReconcileOptions{Sep: ","}), "reconciling")
	test.MustBe(t, "id,x,y\n1,,\n", test.MustReadFile(t, p))
}

func TestReconcileEmptyFile(t *testing.T) {
	p := test.MustWriteFile(t, t.TempDir(), "out.tsv", "")
	test.ErrNil(t, Reconcile(p, []string{"a"}, ReconcileOptions{}), "reconciling")
	test.MustBe(t, "a\n", test.MustReadFile(t, p))
}

func TestReconcileMissingFile(t *testing.T) {
	err := Reconcile(filepath.Join(t.TempDir(), "nope.tsv"), []string{"a"}, ReconcileOptions{})
	var oe *hdk.OutputIOError
	if !errors.As(err, &oe) {
		t.Fatalf("expected OutputIOError, got %v", err)
	}
}
