package stream

import (
	"iter"
	"strings"

	"github.com/pilosa/hdk"
	"github.com/pkg/errors"
)

// HeaderState tracks TSV columns during the first pass. Observed grows in
// first seen order and never shrinks. Current is nil until the first row
// is written, then holds the columns of the header line and never
// changes.
type HeaderState struct {
	Current  []string
	Observed []string

	seen map[string]struct{}
}

// Observe adds any unseen name to Observed.
func (h *HeaderState) Observe(names []string) {
	if h.seen == nil {
		h.seen = make(map[string]struct{})
	}
	for _, n := range names {
		if _, ok := h.seen[n]; !ok {
			h.seen[n] = struct{}{}
			h.Observed = append(h.Observed, n)
		}
	}
}

// Lock sets Current to a copy of Observed unless it is already set, and
// reports whether it did.
func (h *HeaderState) Lock() bool {
	if h.Current != nil {
		return false
	}
	h.Current = append(make([]string, 0, len(h.Observed)), h.Observed...)
	return true
}

// Drifted reports whether columns were observed after the header was
// locked.
func (h *HeaderState) Drifted() bool {
	return h.Current != nil && len(h.Current) != len(h.Observed)
}

// TSVStream writes flattened records as delimited lines. Nested records
// become columns named by joining their keys with Reducer; lists become a
// single cell joined with ListSep, with records rendered as compact JSON.
type TSVStream struct {
	Sep     string
	Reducer string
	ListSep string

	escaper *strings.Replacer
}

// NewTSVStream returns a TSVStream with defaults applied for empty
// arguments.
func NewTSVStream(sep, reducer, listSep string) *TSVStream {
	if sep == "" {
		sep = "\t"
	}
	if reducer == "" {
		reducer = "__"
	}
	if listSep == "" {
		listSep = ","
	}
	pairs := []string{"\t", `\t`, "\n", `\n`, "\r", `\r`}
	if sep != "\t" {
		pairs = append(pairs, sep, `\`+sep)
	}
	return &TSVStream{Sep: sep, Reducer: reducer, ListSep: listSep, escaper: strings.NewReplacer(pairs...)}
}

// Process implements Stream. One fragment is emitted per chunk; the first
// one starts with the header line. A pass without rows emits nothing.
//
// Each line holds the cells of the locked header columns. A row which has
// values for columns first seen after the header was locked carries them
// as extra trailing fields, positioned as in Result.Headers, so the line
// is already correct once Reconcile has rewritten the header.
func (s *TSVStream) Process(chunks iter.Seq2[hdk.Chunk, error], emit func(string) error) (Result, error) {
	h := &HeaderState{}
	var b strings.Builder
	for chunk, err := range chunks {
		if err != nil {
			return Result{}, err
		}
		b.Reset()
		for _, rec := range chunk {
			cells, names, err := s.flatten(rec)
			if err != nil {
				return Result{}, err
			}
			h.Observe(names)
			if h.Lock() {
				b.WriteString(s.Header(h.Current))
			}
			for i, name := range h.Current {
				if i > 0 {
					b.WriteString(s.Sep)
				}
				b.WriteString(cells[name])
			}
			// late columns follow as trailing fields in observed order, up
			// to the last one this row has, so Reconcile only has to pad
			last := -1
			for i := len(h.Current); i < len(h.Observed); i++ {
				if _, ok := cells[h.Observed[i]]; ok {
					last = i
				}
			}
			for i := len(h.Current); i <= last; i++ {
				b.WriteString(s.Sep)
				b.WriteString(cells[h.Observed[i]])
			}
			b.WriteByte('\n')
		}
		if b.Len() == 0 {
			continue
		}
		if err := emit(b.String()); err != nil {
			return Result{}, err
		}
	}
	return Result{Headers: h.Observed, MustReconcile: h.Drifted()}, nil
}

// Header returns the header line for headers. Names are escaped like
// cells so that a name holding the separator can't shift columns.
func (s *TSVStream) Header(headers []string) string {
	names := make([]string, len(headers))
	for i, h := range headers {
		names[i] = s.escaper.Replace(h)
	}
	return strings.Join(names, s.Sep) + "\n"
}

// flatten returns the escaped cells of rec keyed by column name, and the
// column names in record order. A literal key and a flattened nested key
// can name the same column, e.g. "a__b" and {"a": {"b": ...}}; the first
// one seen in the record wins.
func (s *TSVStream) flatten(rec hdk.Record) (map[string]string, []string, error) {
	cells := make(map[string]string, rec.Len())
	var names []string
	var walk func(prefix string, r hdk.Record) error
	walk = func(prefix string, r hdk.Record) error {
		for p := r.Oldest(); p != nil; p = p.Next() {
			name := p.Key
			if prefix != "" {
				name = prefix + s.Reducer + p.Key
			}
			if nested, ok := p.Value.(hdk.Record); ok && nested != nil {
				if err := walk(name, nested); err != nil {
					return err
				}
				continue
			}
			cell, err := s.cell(p.Value)
			if err != nil {
				return errors.Wrapf(err, "flattening %s", name)
			}
			if _, dup := cells[name]; dup {
				continue
			}
			names = append(names, name)
			cells[name] = s.escaper.Replace(cell)
		}
		return nil
	}
	if err := walk("", rec); err != nil {
		return nil, nil, err
	}
	return cells, names, nil
}

func (s *TSVStream) cell(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case []any:
		items := make([]string, len(val))
		for i, item := range val {
			str, err := s.item(item)
			if err != nil {
				return "", err
			}
			items[i] = str
		}
		return strings.Join(items, s.ListSep), nil
	case []string:
		return strings.Join(val, s.ListSep), nil
	}
	return s.item(v)
}

// item renders a scalar, or a record or list as compact JSON.
func (s *TSVStream) item(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	}
	buf, err := compactJSON.append(nil, v)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}
