// Package table loads source tables from delimited files in a local
// directory. Each table is a file named by its accession id plus a fixed
// extension, e.g. "pht000123.tsv", produced by the upstream cleaning stage.
package table

import (
	"iter"
	"os"
	"path/filepath"
	"sync"

	"github.com/pilosa/hdk"
	"github.com/pkg/errors"
)

// DefaultExtension is appended to an accession id to find its file.
const DefaultExtension = ".tsv"

// Loader is a hdk.TableLoader over a directory of delimited files. Loader
// is safe for concurrent use. Existence checks are cached; rows are not.
type Loader struct {
	dir string
	ext string
	sep rune

	exists sync.Map // id -> bool
}

// Option is a functional option to pass to NewLoader.
type Option func(*Loader)

// WithExtension returns an Option which sets the file extension (including
// the leading dot) appended to table ids.
func WithExtension(ext string) Option {
	return func(l *Loader) {
		l.ext = ext
	}
}

// WithSeparator returns an Option which sets the cell separator.
func WithSeparator(sep rune) Option {
	return func(l *Loader) {
		l.sep = sep
	}
}

// NewLoader creates a Loader reading tables from dir.
func NewLoader(dir string, options ...Option) *Loader {
	l := &Loader{
		dir: dir,
		ext: DefaultExtension,
		sep: '\t',
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// Path returns the path of the file backing table id.
func (l *Loader) Path(id string) string {
	return filepath.Join(l.dir, id+l.ext)
}

// Exists implements hdk.TableLoader.
func (l *Loader) Exists(id string) bool {
	if v, ok := l.exists.Load(id); ok {
		return v.(bool)
	}
	info, err := os.Stat(l.Path(id))
	ok := err == nil && !info.IsDir()
	l.exists.Store(id, ok)
	return ok
}

// Rows implements hdk.TableLoader. The file is opened when iteration starts
// and closed when it finishes or the consumer stops.
func (l *Loader) Rows(id string) (iter.Seq2[hdk.Row, error], error) {
	path := l.Path(id)
	if !l.Exists(id) {
		return nil, &hdk.TableNotFoundError{TableID: id, Location: path}
	}
	return func(yield func(hdk.Row, error) bool) {
		f, err := os.Open(path)
		if os.IsNotExist(err) {
			l.exists.Store(id, false)
			yield(nil, &hdk.TableNotFoundError{TableID: id, Location: path})
			return
		} else if err != nil {
			yield(nil, errors.Wrapf(err, "opening %s", path))
			return
		}
		defer f.Close()
		for row, err := range ReadRows(f, id, l.sep) {
			if !yield(row, err) {
				return
			}
		}
	}, nil
}
