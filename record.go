package hdk

import (
	"iter"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Row is a single data line of a source table keyed by column name. Every
// header column is present; empty cells are "".
type Row map[string]string

// Record is a mapped output record. Field order is the order in which the
// fields were derived and is preserved by every output format. Values are
// string, int64, float64, bool, nil, []any or a nested Record.
type Record = *orderedmap.OrderedMap[string, any]

// NewRecord returns an empty Record.
func NewRecord() Record {
	return orderedmap.New[string, any]()
}

// RecordOf builds a Record from alternating keys and values. It panics if
// kv has an odd length or a key is not a string, so it should only be used
// with literal arguments.
func RecordOf(kv ...any) Record {
	if len(kv)%2 != 0 {
		panic("RecordOf: odd number of arguments")
	}
	r := NewRecord()
	for i := 0; i < len(kv); i += 2 {
		r.Set(kv[i].(string), kv[i+1])
	}
	return r
}

// Chunk is a bounded batch of records. Each chunk handed out by Chunked is a
// fresh slice owned by the receiver.
type Chunk []Record

// Chunked groups records into chunks of at most size records. A size below
// 1 is treated as 1. An error from records is yielded immediately and ends
// the sequence; records accumulated for the current chunk are dropped.
func Chunked(records iter.Seq2[Record, error], size int) iter.Seq2[Chunk, error] {
	if size < 1 {
		size = 1
	}
	return func(yield func(Chunk, error) bool) {
		chunk := make(Chunk, 0, size)
		for rec, err := range records {
			if err != nil {
				yield(nil, err)
				return
			}
			chunk = append(chunk, rec)
			if len(chunk) == size {
				if !yield(chunk, nil) {
					return
				}
				chunk = make(Chunk, 0, size)
			}
		}
		if len(chunk) > 0 {
			yield(chunk, nil)
		}
	}
}

// Chunks returns a sequence over literal chunks. It is mostly useful for
// feeding streams in tests and tools.
func Chunks(chunks ...Chunk) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
	}
}
