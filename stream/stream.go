// Package stream serializes chunked record sequences to the supported
// output formats incrementally, and repairs TSV files whose header grew
// after rows were written.
//
// Streams never buffer more than one chunk. The TSV stream must lock its
// header on the first row; columns first seen after that are missing from
// the header line and reported in the Result so that the caller can run
// Reconcile over the written file.
package stream

import (
	"iter"
	"strings"

	"github.com/pilosa/hdk"
	"github.com/pkg/errors"
)

// Format is one of the closed set of output formats.
type Format int

// Output formats.
const (
	JSON Format = iota
	JSONL
	YAML
	TSV
)

// Formats lists every Format.
var Formats = []Format{JSON, JSONL, YAML, TSV}

// String returns the name of the format, which is also its file extension.
func (f Format) String() string {
	switch f {
	case JSON:
		return "json"
	case JSONL:
		return "jsonl"
	case YAML:
		return "yaml"
	case TSV:
		return "tsv"
	}
	return "unknown"
}

// Ext returns the file extension of the format including the dot.
func (f Format) Ext() string {
	return "." + f.String()
}

// ParseFormat returns the Format named s.
func ParseFormat(s string) (Format, error) {
	for _, f := range Formats {
		if strings.EqualFold(s, f.String()) {
			return f, nil
		}
	}
	return 0, errors.Errorf("unknown output format %q, must be one of json, jsonl, yaml, tsv", s)
}

// Result is what a stream reports once its pass is complete.
type Result struct {
	// Headers is the full set of TSV columns observed, in first seen order.
	Headers []string
	// MustReconcile is set when Headers differs from the header line
	// which was written.
	MustReconcile bool
}

// Stream serializes records in a single forward pass. Process hands each
// fragment to emit as soon as it is produced and stops at the first error
// from chunks or emit, returning it unchanged.
type Stream interface {
	Process(chunks iter.Seq2[hdk.Chunk, error], emit func(string) error) (Result, error)
}

// Options configure New. KeyName is required for JSON and YAML, which wrap
// all records in a single list under that key. The TSV options default to
// a tab separator, "__" between the keys of nested records, and "," between
// list items.
type Options struct {
	KeyName string
	Sep     string
	Reducer string
	ListSep string
}

// New returns the stream for format.
func New(format Format, opts Options) (Stream, error) {
	switch format {
	case JSON:
		if opts.KeyName == "" {
			return nil, errors.New("key name required for JSON stream")
		}
		return &JSONStream{KeyName: opts.KeyName}, nil
	case JSONL:
		return &JSONLStream{}, nil
	case YAML:
		if opts.KeyName == "" {
			return nil, errors.New("key name required for YAML stream")
		}
		return &YAMLStream{KeyName: opts.KeyName}, nil
	case TSV:
		return NewTSVStream(opts.Sep, opts.Reducer, opts.ListSep), nil
	}
	return nil, errors.Errorf("invalid stream format %d", int(format))
}

// KeyName returns the key under which the records of entity are listed,
// e.g. "persons" for "Person".
func KeyName(entity string) string {
	return strings.ToLower(entity) + "s"
}
