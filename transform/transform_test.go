package transform

import (
	"context"
	"iter"
	"testing"

	"github.com/pilosa/hdk"
	"github.com/pilosa/hdk/mock"
	"github.com/pilosa/hdk/spec"
	"github.com/pilosa/hdk/test"
	"github.com/pkg/errors"
)

// memLoader serves tables from memory, failing the row sequence at
// failAt[id] with a DataValidationError when set.
type memLoader struct {
	tables map[string][]hdk.Row
	failAt map[string]int
}

func (m *memLoader) Exists(id string) bool {
	_, ok := m.tables[id]
	return ok
}

func (m *memLoader) Rows(id string) (iter.Seq2[hdk.Row, error], error) {
	rows, ok := m.tables[id]
	if !ok {
		return nil, &hdk.TableNotFoundError{TableID: id, Location: "mem:" + id}
	}
	return func(yield func(hdk.Row, error) bool) {
		for i, row := range rows {
			if at, ok := m.failAt[id]; ok && at == i {
				yield(nil, &hdk.DataValidationError{TableID: id, Line: i + 2, Err: errors.New("bad line")})
				return
			}
			if !yield(row, nil) {
				return
			}
		}
	}, nil
}

// copyMapper records the source table and id of each row.
var copyMapper = MapperFunc(func(row hdk.Row, tableID string, d *spec.ClassDerivation) (hdk.Record, error) {
	col, ok := row["id"]
	if !ok {
		return nil, &hdk.DataValidationError{TableID: tableID, Field: "id", Column: "id", Err: errors.New("no such column")}
	}
	return hdk.RecordOf("table", tableID, "id", col), nil
})

func doc(t *testing.T, path, data string) *spec.Document {
	t.Helper()
	d, err := spec.ParseDocument(path, []byte(data))
	test.ErrNil(t, err, "parsing "+path)
	return d
}

type result struct {
	table, id string
}

func collect(t *testing.T, seq iter.Seq2[hdk.Record, error]) ([]result, error) {
	t.Helper()
	var ret []result
	for rec, err := range seq {
		if err != nil {
			return ret, err
		}
		table, _ := rec.Get("table")
		id, _ := rec.Get("id")
		ret = append(ret, result{table.(string), id.(string)})
	}
	return ret, nil
}

func rows(ids ...string) []hdk.Row {
	ret := make([]hdk.Row, len(ids))
	for i, id := range ids {
		ret[i] = hdk.Row{"id": id}
	}
	return ret
}

func TestTransformOrder(t *testing.T) {
	loader := &memLoader{tables: map[string][]hdk.Row{
		"t1": rows("1", "2"),
		"t2": rows("3"),
		"t3": rows("4", "5"),
	}}
	docs := []*spec.Document{
		doc(t, "a.yaml", "- class_derivations:\n    Person:\n      populated_from: t2\n- class_derivations:\n    Visit:\n      populated_from: t1\n    Person:\n      populated_from: t1\n"),
		doc(t, "b.yaml", "- class_derivations:\n    Person:\n      populated_from: t3\n"),
	}
	tr := New(loader, copyMapper)
	seq, sum := tr.Transform(context.Background(), "Person", docs)
	got, err := collect(t, seq)
	test.ErrNil(t, err, "transforming")
	test.MustBe(t, []result{{"t2", "3"}, {"t1", "1"}, {"t1", "2"}, {"t3", "4"}, {"t3", "5"}}, got)
	test.MustBe(t, &Summary{Entity: "Person", Documents: 2, Processed: 3, Records: 5}, sum)

	// reversing the documents reverses the contribution order
	seq, _ = tr.Transform(context.Background(), "Person", []*spec.Document{docs[1], docs[0]})
	got, err = collect(t, seq)
	test.ErrNil(t, err, "transforming")
	test.MustBe(t, []result{{"t3", "4"}, {"t3", "5"}, {"t2", "3"}, {"t1", "1"}, {"t1", "2"}}, got)
}

func TestTransformMissingTable(t *testing.T) {
	loader := &memLoader{tables: map[string][]hdk.Row{"t1": rows("1")}}
	docs := []*spec.Document{
		doc(t, "a.yaml", "- class_derivations:\n    Person:\n      populated_from: nope\n- class_derivations:\n    Person:\n      populated_from: t1\n"),
	}

	log := &mock.Logger{}
	stats := &mock.RecordingStatter{}
	seq, sum := New(loader, copyMapper, OptLogger(log), OptStatter(stats)).Transform(context.Background(), "Person", docs)
	got, err := collect(t, seq)
	test.ErrNil(t, err, "non strict transform")
	test.MustBe(t, []result{{"t1", "1"}}, got)
	test.MustBe(t, 1, sum.Skipped)
	test.MustBe(t, 1, sum.Processed)
	if !log.Contains("warning", "a.yaml", "block 0", "nope") {
		t.Fatalf("expected warning naming document, block and table: %v", log.Lines())
	}
	test.MustBe(t, int64(1), stats.Get("blocks.skipped,entity:Person"))
	test.MustBe(t, int64(1), stats.Get("records"))

	seq, _ = New(loader, copyMapper, OptStrict(true)).Transform(context.Background(), "Person", docs)
	got, err = collect(t, seq)
	var tnf *hdk.TableNotFoundError
	if !errors.As(err, &tnf) {
		t.Fatalf("expected TableNotFoundError in strict mode, got %v", err)
	}
	test.MustBe(t, "nope", tnf.TableID)
	if len(got) != 0 {
		t.Fatalf("expected no records before the failure, got %v", got)
	}
}

func TestTransformDataValidation(t *testing.T) {
	loader := &memLoader{tables: map[string][]hdk.Row{
		"t1": {{"id": "1"}, {"other": "x"}, {"id": "3"}},
		"t2": rows("4"),
	}}
	docs := []*spec.Document{
		doc(t, "a.yaml", "- class_derivations:\n    Person:\n      populated_from: t1\n- class_derivations:\n    Person:\n      populated_from: t2\n"),
	}

	seq, sum := New(loader, copyMapper).Transform(context.Background(), "Person", docs)
	got, err := collect(t, seq)
	test.ErrNil(t, err, "non strict transform")
	// the rest of t1 is skipped, t2 still contributes
	test.MustBe(t, []result{{"t1", "1"}, {"t2", "4"}}, got)
	test.MustBe(t, 1, sum.Skipped)

	seq, _ = New(loader, copyMapper, OptStrict(true)).Transform(context.Background(), "Person", docs)
	_, err = collect(t, seq)
	var dve *hdk.DataValidationError
	if !errors.As(err, &dve) {
		t.Fatalf("expected DataValidationError in strict mode, got %v", err)
	}
}

func TestTransformMalformedTableRows(t *testing.T) {
	loader := &memLoader{
		tables: map[string][]hdk.Row{"t1": rows("1", "2", "3"), "t2": rows("4")},
		failAt: map[string]int{"t1": 1},
	}
	docs := []*spec.Document{
		doc(t, "a.yaml", "- class_derivations:\n    Person:\n      populated_from: t1\n    Visit:\n      populated_from: t1\n- class_derivations:\n    Person:\n      populated_from: t2\n"),
	}
	seq, sum := New(loader, copyMapper).Transform(context.Background(), "Person", docs)
	got, err := collect(t, seq)
	test.ErrNil(t, err, "transforming")
	test.MustBe(t, []result{{"t1", "1"}, {"t2", "4"}}, got)
	test.MustBe(t, 1, sum.Skipped)
}

func TestTransformStructuralAlwaysRaised(t *testing.T) {
	loader := &memLoader{tables: map[string][]hdk.Row{"t1": rows("1")}}
	docs := []*spec.Document{
		doc(t, "a.yaml", "- class_derivations:\n    Person:\n      populated_from: t1\n- slot_derivations:\n    id: {}\n"),
	}
	for _, strict := range []bool{false, true} {
		seq, _ := New(loader, copyMapper, OptStrict(strict)).Transform(context.Background(), "Person", docs)
		got, err := collect(t, seq)
		var sse *hdk.StructuralSpecError
		if !errors.As(err, &sse) {
			t.Fatalf("strict=%v: expected StructuralSpecError, got %v", strict, err)
		}
		test.MustBe(t, 1, sse.Block)
		test.MustBe(t, []result{{"t1", "1"}}, got)
	}
}

func TestTransformUnrecognizedMapperErrorIsFatal(t *testing.T) {
	loader := &memLoader{tables: map[string][]hdk.Row{"t1": rows("1")}}
	docs := []*spec.Document{doc(t, "a.yaml", "- class_derivations:\n    Person:\n      populated_from: t1\n")}
	boom := MapperFunc(func(hdk.Row, string, *spec.ClassDerivation) (hdk.Record, error) {
		return nil, errors.New("key error")
	})
	seq, _ := New(loader, boom).Transform(context.Background(), "Person", docs)
	_, err := collect(t, seq)
	if err == nil || hdk.IsRecoverable(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
}

func TestTransformCancelled(t *testing.T) {
	loader := &memLoader{tables: map[string][]hdk.Row{"t1": rows("1", "2")}}
	docs := []*spec.Document{doc(t, "a.yaml", "- class_derivations:\n    Person:\n      populated_from: t1\n")}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	seq, _ := New(loader, copyMapper).Transform(ctx, "Person", docs)
	n := 0
	var gotErr error
	for _, err := range seq {
		if err != nil {
			gotErr = err
			break
		}
		n++
		cancel()
	}
	if !errors.Is(gotErr, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", gotErr)
	}
	test.MustBe(t, 1, n)
}

func TestPreflight(t *testing.T) {
	loader := &memLoader{tables: map[string][]hdk.Row{"t1": rows("1")}}
	ok := []*spec.Document{doc(t, "a.yaml", "- class_derivations:\n    Person:\n      populated_from: t1\n    Visit:\n      populated_from: missing\n")}
	tr := New(loader, copyMapper)
	test.ErrNil(t, tr.Preflight("Person", ok), "preflight")

	err := tr.Preflight("Visit", ok)
	var tnf *hdk.TableNotFoundError
	if !errors.As(err, &tnf) {
		t.Fatalf("expected TableNotFoundError, got %v", err)
	}
}
