package spec

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/pilosa/hdk"
	"github.com/pkg/errors"
)

// Locator finds the documents contributing to an entity. Documents are
// returned ordered by file name without extension, then by path. An empty
// result is not an error.
type Locator interface {
	Documents(entity string) ([]*Document, error)
}

// EntityMarker returns a line anchored pattern matching entity as a key
// directly under a block's class_derivations when the document uses the
// conventional two space indentation. Nested derivations are indented
// further and don't match.
func EntityMarker(entity string) string {
	return "^    " + regexp.QuoteMeta(entity) + ":"
}

// Locate returns the .yaml and .yml files under dir, recursively, whose
// text contains a line matching pattern. Files which can't be read are
// ignored. Paths are ordered like Locator results.
func Locate(dir, pattern string) ([]string, error) {
	re, err := regexp.Compile("(?m)" + pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "compiling pattern %q", pattern)
	}
	var paths []string
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		if d.IsDir() || !IsDocumentName(d.Name()) {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil
		}
		if re.Match(data) {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "searching %s", dir)
	}
	docs := make([]*Document, len(paths))
	for i, p := range paths {
		docs[i] = &Document{Path: p}
	}
	for i, d := range sortDocuments(docs) {
		paths[i] = d.Path
	}
	return paths, nil
}

// GrepLocator is a Locator which searches document text for EntityMarker
// on every call and parses the matches. Prefer a Catalog, which parses
// each document once.
type GrepLocator struct {
	Dir string
	// Strict makes unparseable matches an error rather than a warning.
	Strict bool
	Log    hdk.Logger
}

// Documents implements Locator.
func (g *GrepLocator) Documents(entity string) ([]*Document, error) {
	paths, err := Locate(g.Dir, EntityMarker(entity))
	if err != nil {
		return nil, err
	}
	var log hdk.Logger = hdk.NopLogger{}
	if g.Log != nil {
		log = g.Log
	}
	docs := make([]*Document, 0, len(paths))
	for _, p := range paths {
		doc, err := ReadDocument(p)
		if errors.Is(err, ErrNotBlockList) {
			log.Printf("warning: skipping %s: %v", p, err)
			continue
		} else if err != nil {
			if g.Strict {
				return nil, err
			}
			log.Printf("warning: skipping specification file %s due to read/parse error: %v", p, err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
