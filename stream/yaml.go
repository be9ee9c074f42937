package stream

import (
	"bytes"
	"iter"

	"github.com/pilosa/hdk"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// YAMLStream writes all records as a list under a single key. The first
// fragment carries the key line; later chunks are encoded the same way and
// the key line is stripped, leaving only their list items.
type YAMLStream struct {
	KeyName string
}

// Process implements Stream.
func (s *YAMLStream) Process(chunks iter.Seq2[hdk.Chunk, error], emit func(string) error) (Result, error) {
	started := false
	for chunk, err := range chunks {
		if err != nil {
			return Result{}, err
		}
		if len(chunk) == 0 {
			continue
		}
		doc, err := s.encode(chunk)
		if err != nil {
			return Result{}, err
		}
		if started {
			if i := bytes.IndexByte(doc, '\n'); i >= 0 {
				doc = doc[i+1:]
			}
		}
		started = true
		if err := emit(string(doc)); err != nil {
			return Result{}, err
		}
	}
	if !started {
		doc, err := s.encode(hdk.Chunk{})
		if err != nil {
			return Result{}, err
		}
		return Result{}, emit(string(doc))
	}
	return Result{}, nil
}

func (s *YAMLStream) encode(chunk hdk.Chunk) ([]byte, error) {
	top := hdk.NewRecord()
	top.Set(s.KeyName, []hdk.Record(chunk))

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(top); err != nil {
		return nil, errors.Wrap(err, "encoding yaml")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "closing yaml encoder")
	}
	return buf.Bytes(), nil
}
