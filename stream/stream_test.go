package stream

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pilosa/hdk"
	"github.com/pilosa/hdk/test"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// run processes chunks and returns the emitted fragments.
func run(t *testing.T, s Stream, chunks ...hdk.Chunk) ([]string, Result) {
	t.Helper()
	var frags []string
	res, err := s.Process(hdk.Chunks(chunks...), func(f string) error {
		frags = append(frags, f)
		return nil
	})
	test.ErrNil(t, err, "processing")
	return frags, res
}

func mustStream(t *testing.T, f Format, opts Options) Stream {
	t.Helper()
	s, err := New(f, opts)
	test.ErrNil(t, err, "making stream")
	return s
}

func TestParseFormat(t *testing.T) {
	for _, f := range Formats {
		got, err := ParseFormat(f.String())
		test.ErrNil(t, err, "parsing "+f.String())
		test.MustBe(t, f, got)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
	test.MustBe(t, ".jsonl", JSONL.Ext())
	test.MustBe(t, "persons", KeyName("Person"))
}

func TestNewRequiresKeyName(t *testing.T) {
	for _, f := range []Format{JSON, YAML} {
		if _, err := New(f, Options{}); err == nil {
			t.Fatalf("%v: expected error without key name", f)
		}
	}
	if _, err := New(Format(42), Options{}); err == nil {
		t.Fatal("expected error for invalid format")
	}
}

func TestJSONSingleChunk(t *testing.T) {
	frags, _ := run(t, mustStream(t, JSON, Options{KeyName: "persons"}),
		hdk.Chunk{hdk.RecordOf("id", int64(1), "name", "Alice"), hdk.RecordOf("id", int64(2), "name", "Bob")})
	out := strings.Join(frags, "")
	test.MustBe(t, `{"persons": [{"id": 1, "name": "Alice"}, {"id": 2, "name": "Bob"}]}`, out)

	var parsed map[string][]map[string]any
	test.ErrNil(t, json.Unmarshal([]byte(out), &parsed), "parsing output")
	test.MustBe(t, 2, len(parsed["persons"]))
}

func TestJSONMultipleChunks(t *testing.T) {
	frags, _ := run(t, mustStream(t, JSON, Options{KeyName: "items"}),
		hdk.Chunk{hdk.RecordOf("id", int64(1))}, hdk.Chunk{hdk.RecordOf("id", int64(2))})
	test.MustBe(t, []string{`{"items": [{"id": 1}`, `, {"id": 2}`, `]}`}, frags)
	if !json.Valid([]byte(strings.Join(frags, ""))) {
		t.Fatalf("invalid json: %s", strings.Join(frags, ""))
	}
}

func TestJSONEmpty(t *testing.T) {
	frags, _ := run(t, mustStream(t, JSON, Options{KeyName: "items"}))
	test.MustBe(t, `{"items": []}`, strings.Join(frags, ""))
}

func TestJSONLChunkIndependent(t *testing.T) {
	s := mustStream(t, JSONL, Options{})
	frags, _ := run(t, s, hdk.Chunk{hdk.RecordOf("a", int64(1))}, hdk.Chunk{hdk.RecordOf("b", int64(2))})
	test.MustBe(t, "{\"a\": 1}\n{\"b\": 2}\n", strings.Join(frags, ""))
	test.MustBe(t, 2, len(frags))

	frags, _ = run(t, s, hdk.Chunk{hdk.RecordOf("a", int64(1)), hdk.RecordOf("b", int64(2))})
	test.MustBe(t, []string{"{\"a\": 1}\n{\"b\": 2}\n"}, frags)
}

func TestJSONLEachObjectOnOwnLine(t *testing.T) {
	frags, _ := run(t, mustStream(t, JSONL, Options{}),
		hdk.Chunk{hdk.RecordOf("a", int64(1)), hdk.RecordOf("b", int64(2)), hdk.RecordOf("c", int64(3))})
	lines := strings.Split(strings.TrimSpace(frags[0]), "\n")
	test.MustBe(t, 3, len(lines))
}

func TestYAMLSingleChunk(t *testing.T) {
	frags, _ := run(t, mustStream(t, YAML, Options{KeyName: "persons"}),
		hdk.Chunk{hdk.RecordOf("id", int64(1), "name", "Alice")})
	test.MustBe(t, 1, len(frags))
	var parsed map[string][]map[string]any
	test.ErrNil(t, yaml.Unmarshal([]byte(frags[0]), &parsed), "parsing output")
	test.MustBe(t, []map[string]any{{"id": 1, "name": "Alice"}}, parsed["persons"])
}

func TestYAMLMultipleChunks(t *testing.T) {
	frags, _ := run(t, mustStream(t, YAML, Options{KeyName: "items"}),
		hdk.Chunk{hdk.RecordOf("id", int64(1), "tags", []any{"x", "y"})},
		hdk.Chunk{hdk.RecordOf("id", int64(2))},
		hdk.Chunk{hdk.RecordOf("id", int64(3), "q", hdk.RecordOf("unit", "kg"))})
	test.MustBe(t, 3, len(frags))
	if !strings.HasPrefix(frags[0], "items:") {
		t.Fatalf("first fragment should carry the key: %q", frags[0])
	}
	for _, f := range frags[1:] {
		if strings.Contains(f, "items:") {
			t.Fatalf("later fragment repeats the key: %q", f)
		}
	}
	var parsed struct {
		Items []map[string]any `yaml:"items"`
	}
	test.ErrNil(t, yaml.Unmarshal([]byte(strings.Join(frags, "")), &parsed), "parsing output")
	exp := []map[string]any{
		{"id": 1, "tags": []any{"x", "y"}},
		{"id": 2},
		{"id": 3, "q": map[string]any{"unit": "kg"}},
	}
	if diff := cmp.Diff(exp, parsed.Items); diff != "" {
		t.Fatalf("unexpected items (-want +got):\n%s", diff)
	}
}

func TestYAMLPreservesFieldOrder(t *testing.T) {
	frags, _ := run(t, mustStream(t, YAML, Options{KeyName: "items"}),
		hdk.Chunk{hdk.RecordOf("z", "1", "a", "2")})
	if strings.Index(frags[0], "z:") > strings.Index(frags[0], "a:") {
		t.Fatalf("fields reordered: %q", frags[0])
	}
}

func TestYAMLEmpty(t *testing.T) {
	frags, _ := run(t, mustStream(t, YAML, Options{KeyName: "items"}))
	test.MustBe(t, "items: []\n", strings.Join(frags, ""))
}

func TestStreamPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	chunks := func(yield func(hdk.Chunk, error) bool) {
		if !yield(hdk.Chunk{hdk.RecordOf("id", "1")}, nil) {
			return
		}
		yield(nil, boom)
	}
	for _, f := range Formats {
		s := mustStream(t, f, Options{KeyName: "items"})
		_, err := s.Process(chunks, func(string) error { return nil })
		if errors.Cause(err) != boom {
			t.Fatalf("%v: expected upstream error, got %v", f, err)
		}
		emitErr := errors.New("disk full")
		_, err = s.Process(hdk.Chunks(hdk.Chunk{hdk.RecordOf("id", "1")}), func(string) error { return emitErr })
		if err != emitErr {
			t.Fatalf("%v: expected emit error, got %v", f, err)
		}
	}
}

func TestEncodeValues(t *testing.T) {
	tests := []struct {
		v   any
		exp string
	}{
		{nil, `null`},
		{true, `true`},
		{int64(-3), `-3`},
		{1.0, `1.0`},
		{0.25, `0.25`},
		{1e16, `1e+16`},
		{1.5e-5, `1.5e-05`},
		{"café <b>&", `"café <b>&"`},
		{"a\"b\\c\nd\x01", `"a\"b\\c\nd\u0001"`},
		{[]any{int64(1), "x", []any{}}, `[1, "x", []]`},
		{map[string]any{"b": int64(1), "a": int64(2)}, `{"a": 2, "b": 1}`},
		{hdk.RecordOf("b", int64(1), "a", hdk.RecordOf("c", nil)), `{"b": 1, "a": {"c": null}}`},
	}
	for _, tst := range tests {
		buf, err := spacedJSON.append(nil, tst.v)
		test.ErrNil(t, err, "encoding")
		test.MustBe(t, tst.exp, string(buf))
	}
	buf, err := compactJSON.append(nil, hdk.RecordOf("a", int64(1), "b", []any{int64(1), int64(2)}))
	test.ErrNil(t, err, "encoding")
	test.MustBe(t, `{"a":1,"b":[1,2]}`, string(buf))

	if _, err := spacedJSON.append(nil, struct{}{}); err == nil {
		t.Fatal("expected error for unsupported type")
	}
}
