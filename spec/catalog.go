package spec

import (
	"cmp"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pilosa/hdk"
	"github.com/pkg/errors"
)

// Catalog is the result of reading every derivation document under a
// directory once. It indexes documents by the top level entities they
// define and implements Locator.
type Catalog struct {
	dir  string
	log  hdk.Logger
	docs []*Document

	entities map[string][]*Document
	embedded map[string]struct{}

	// Failures holds a *hdk.DocumentParseError for each document which
	// could not be read or parsed, in walk order.
	Failures []error
	// Structural holds a *hdk.StructuralSpecError for each block of a
	// parsed document whose derivations are malformed, in walk order. Such
	// a block may define no entity at all, so it is only seen here.
	Structural []error
}

// Option is a functional option for Load.
type Option func(c *Catalog)

// OptLogger sets the logger which receives warnings about skipped
// documents.
func OptLogger(l hdk.Logger) Option {
	return func(c *Catalog) {
		c.log = l
	}
}

// Load walks dir recursively and parses every .yaml and .yml file. Within a
// directory files are visited by name before subdirectories. Documents
// which can't be read or parsed are logged, recorded in Failures and
// skipped, as are documents which are not a list of blocks. Malformed blocks
// of parsed documents are logged and recorded in Structural. Only failing to
// list dir itself is an error.
func Load(dir string, opts ...Option) (*Catalog, error) {
	c := &Catalog{
		dir:      dir,
		log:      hdk.NopLogger{},
		entities: make(map[string][]*Document),
		embedded: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	fsys := os.DirFS(dir)
	if _, err := fs.ReadDir(fsys, "."); err != nil {
		return nil, errors.Wrapf(err, "listing specification directory %s", dir)
	}
	c.walk(fsys, ".")

	for name, docs := range c.entities {
		c.entities[name] = sortDocuments(docs)
	}
	return c, nil
}

func (c *Catalog) walk(fsys fs.FS, current string) {
	entries, err := readDirSorted(fsys, current)
	if err != nil {
		c.log.Printf("warning: skipping directory %s: %v", filepath.Join(c.dir, current), err)
		return
	}
	var dirs []string
	for _, entry := range entries {
		name := path.Join(current, entry.Name())
		if entry.IsDir() {
			dirs = append(dirs, name)
			continue
		}
		if !IsDocumentName(entry.Name()) {
			continue
		}
		c.add(filepath.Join(c.dir, filepath.FromSlash(name)))
	}
	for _, d := range dirs {
		c.walk(fsys, d)
	}
}

func (c *Catalog) add(p string) {
	doc, err := ReadDocument(p)
	if errors.Is(err, ErrNotBlockList) {
		c.log.Printf("warning: skipping %s: %v", p, err)
		return
	} else if err != nil {
		c.log.Printf("warning: skipping specification file %s due to read/parse error: %v", p, err)
		c.Failures = append(c.Failures, err)
		return
	}
	c.docs = append(c.docs, doc)
	seen := make(map[string]bool)
	for _, b := range doc.Blocks {
		if _, err := b.Derivations(); err != nil {
			c.log.Printf("warning: malformed block in %s: %v", p, err)
			c.Structural = append(c.Structural, err)
		}
		for _, name := range b.Entities() {
			if !seen[name] {
				seen[name] = true
				c.entities[name] = append(c.entities[name], doc)
			}
		}
		for _, name := range b.embedded() {
			c.embedded[name] = struct{}{}
		}
	}
}

// Dir returns the directory the catalog was loaded from.
func (c *Catalog) Dir() string { return c.dir }

// All returns every parsed document in walk order.
func (c *Catalog) All() []*Document { return c.docs }

// Entities returns the sorted names of all top level entities.
func (c *Catalog) Entities() []string {
	names := make([]string, 0, len(c.entities))
	for name := range c.entities {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Embedded returns the sorted names of class derivations which only appear
// nested under object_derivations. Names which are also top level entities
// are included; Embedded is informational.
func (c *Catalog) Embedded() []string {
	names := make([]string, 0, len(c.embedded))
	for name := range c.embedded {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Documents implements Locator. It never fails.
func (c *Catalog) Documents(entity string) ([]*Document, error) {
	return c.entities[entity], nil
}

// IsDocumentName reports whether name has a derivation document extension.
func IsDocumentName(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func readDirSorted(fsys fs.FS, current string) ([]fs.DirEntry, error) {
	entries, err := fs.ReadDir(fsys, current)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(entries, func(a, b fs.DirEntry) int {
		return cmp.Compare(a.Name(), b.Name())
	})
	return entries, nil
}

// sortDocuments orders documents by file name without extension, then by
// full path so that equal names in different directories stay
// deterministic.
func sortDocuments(docs []*Document) []*Document {
	slices.SortStableFunc(docs, func(a, b *Document) int {
		return cmp.Or(cmp.Compare(a.Name(), b.Name()), cmp.Compare(a.Path, b.Path))
	})
	return docs
}
