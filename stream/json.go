package stream

import (
	"iter"

	"github.com/pilosa/hdk"
)

// JSONStream writes all records as one object holding a single list:
// {"persons": [r1, r2, ...]}. Each chunk is serialized once; the first
// fragment opens the object and later fragments continue the list.
type JSONStream struct {
	KeyName string
}

// Process implements Stream.
func (s *JSONStream) Process(chunks iter.Seq2[hdk.Chunk, error], emit func(string) error) (Result, error) {
	open := appendString([]byte{'{'}, s.KeyName)
	open = append(open, ": ["...)
	started := false
	for chunk, err := range chunks {
		if err != nil {
			return Result{}, err
		}
		if len(chunk) == 0 {
			continue
		}
		var buf []byte
		if !started {
			buf = append(buf, open...)
		} else {
			buf = append(buf, ", "...)
		}
		buf, err = appendRecords(buf, chunk, ", ")
		if err != nil {
			return Result{}, err
		}
		started = true
		if err := emit(string(buf)); err != nil {
			return Result{}, err
		}
	}
	if !started {
		return Result{}, emit(string(open) + "]}")
	}
	return Result{}, emit("]}")
}

// JSONLStream writes one record per line.
type JSONLStream struct{}

// Process implements Stream. Each chunk becomes one fragment.
func (s *JSONLStream) Process(chunks iter.Seq2[hdk.Chunk, error], emit func(string) error) (Result, error) {
	for chunk, err := range chunks {
		if err != nil {
			return Result{}, err
		}
		if len(chunk) == 0 {
			continue
		}
		buf, err := appendRecords(nil, chunk, "\n")
		if err != nil {
			return Result{}, err
		}
		buf = append(buf, '\n')
		if err := emit(string(buf)); err != nil {
			return Result{}, err
		}
	}
	return Result{}, nil
}

func appendRecords(buf []byte, chunk hdk.Chunk, sep string) ([]byte, error) {
	var err error
	for i, rec := range chunk {
		if i > 0 {
			buf = append(buf, sep...)
		}
		if buf, err = spacedJSON.append(buf, rec); err != nil {
			return nil, err
		}
	}
	return buf, nil
}
