package table

import (
	"encoding/csv"
	"io"
	"iter"
	"strings"

	"github.com/pilosa/hdk"
	"github.com/pkg/errors"
)

// ReadRows returns the data lines of a delimited file as Rows keyed by the
// header line. The header must not contain empty or duplicate names. Lines
// shorter than the header are padded with empty cells; lines longer than the
// header are an error unless the extra cells are blank. Blank lines are
// skipped. Malformed input is reported as a *hdk.DataValidationError tagged
// with tableID, after which the sequence ends.
func ReadRows(r io.Reader, tableID string, sep rune) iter.Seq2[hdk.Row, error] {
	return func(yield func(hdk.Row, error) bool) {
		reader := csv.NewReader(r)
		reader.Comma = sep
		reader.LazyQuotes = true
		reader.FieldsPerRecord = -1
		reader.ReuseRecord = true

		header, err := reader.Read()
		if err == io.EOF {
			return
		} else if err != nil {
			yield(nil, readErr(tableID, err))
			return
		}
		header = append([]string(nil), header...)
		if len(header) > 0 {
			header[0] = strings.TrimPrefix(header[0], "\ufeff")
		}
		if err := validateHeader(header); err != nil {
			yield(nil, &hdk.DataValidationError{TableID: tableID, Line: 1, Err: err})
			return
		}

		for {
			rec, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, readErr(tableID, err))
				return
			}
			line, _ := reader.FieldPos(0)
			if isBlank(rec) {
				continue
			}
			row, err := parseRecord(header, rec)
			if err != nil {
				yield(nil, &hdk.DataValidationError{TableID: tableID, Line: line, Err: err})
				return
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// readErr distinguishes malformed delimited data, which is a data problem,
// from I/O failures of the underlying reader.
func readErr(tableID string, err error) error {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return &hdk.DataValidationError{TableID: tableID, Line: perr.Line, Err: err}
	}
	return errors.Wrapf(err, "reading %s", tableID)
}

func isBlank(rec []string) bool {
	for _, cell := range rec {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func parseRecord(header []string, rec []string) (hdk.Row, error) {
	if len(rec) > len(header) {
		for i := len(header); i < len(rec); i++ {
			if strings.TrimSpace(rec[i]) != "" {
				return nil, errors.Errorf("data in non headered field %d: header has %d columns", i+1, len(header))
			}
		}
	}
	row := make(hdk.Row, len(header))
	for i, h := range header {
		if i < len(rec) {
			row[h] = rec[i]
		} else {
			row[h] = ""
		}
	}
	return row, nil
}

func validateHeader(header []string) error {
	fields := make(map[string]int)
	for i, h := range header {
		if h == "" {
			return errors.Errorf("header contains empty string at %d: %v", i, header)
		}
		if pos, exists := fields[h]; exists {
			return errors.Errorf("%s appeared at both %d and %d in header", h, pos, i)
		}
		fields[h] = i
	}
	return nil
}
