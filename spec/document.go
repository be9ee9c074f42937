// Package spec reads derivation documents: YAML files holding a list of
// blocks, each of which maps target entity names to the source table and
// slot rules they are populated from.
//
//	- class_derivations:
//	    Person:
//	      populated_from: pht000123
//	      slot_derivations:
//	        id:
//	          populated_from: SUBJECT_ID
//
// Entities are discovered from the top level class_derivations keys only.
// Class derivations nested under a slot's object_derivations describe
// embedded values (a quantity with its unit, say) and are never entities
// of their own.
package spec

import (
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/pilosa/hdk"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrNotBlockList is returned by ParseDocument for well formed YAML which is
// not a list of blocks, e.g. a configuration mapping living next to the
// derivation documents.
var ErrNotBlockList = errors.New("document is not a list of blocks")

// Document is a parsed derivation document.
type Document struct {
	Path   string
	Blocks []*Block
}

// Name returns the file name of the document without its extension.
func (d *Document) Name() string {
	base := filepath.Base(d.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ReadDocument reads and parses the document at path.
func ReadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &hdk.DocumentParseError{Document: path, Err: err}
	}
	return ParseDocument(path, data)
}

// ParseDocument parses data as the document at path. Invalid YAML is
// reported as a *hdk.DocumentParseError. Only the first YAML document in
// data is considered.
func ParseDocument(path string, data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &hdk.DocumentParseError{Document: path, Err: err}
	}
	seq := resolve(&root)
	if seq == nil || seq.Kind != yaml.SequenceNode {
		return nil, ErrNotBlockList
	}
	d := &Document{Path: path, Blocks: make([]*Block, 0, len(seq.Content))}
	for i, n := range seq.Content {
		d.Blocks = append(d.Blocks, &Block{Document: path, Index: i, node: resolve(n)})
	}
	return d, nil
}

// Entities returns the top level entity names defined anywhere in the
// document, in document order and possibly repeated.
func (d *Document) Entities() []string {
	var names []string
	for _, b := range d.Blocks {
		names = append(names, b.Entities()...)
	}
	return names
}

// Defines reports whether entity is a top level class derivation of any
// block in the document.
func (d *Document) Defines(entity string) bool {
	for _, name := range d.Entities() {
		if name == entity {
			return true
		}
	}
	return false
}

// Block is one element of a document's block list. Parsing of its
// derivations is deferred to Derivations so that a broken block surfaces
// when it is applied rather than when the document is read.
type Block struct {
	Document string
	Index    int

	node *yaml.Node
}

// Entities returns the class_derivations keys of the block. It never fails;
// a block which is not a mapping or has no class_derivations mapping
// defines nothing.
func (b *Block) Entities() []string {
	if b.node == nil || b.node.Kind != yaml.MappingNode {
		return nil
	}
	cd := lookup(b.node, "class_derivations")
	if cd == nil || cd.Kind != yaml.MappingNode {
		return nil
	}
	var names []string
	for k := range pairs(cd) {
		names = append(names, k.Value)
	}
	return names
}

// Derivations parses and returns every class derivation of the block in
// key order. Any problem with the shape of the block is returned as a
// *hdk.StructuralSpecError.
func (b *Block) Derivations() ([]*ClassDerivation, error) {
	if b.node == nil || b.node.Kind != yaml.MappingNode {
		return nil, b.structural("", "block is not a mapping")
	}
	cd := lookup(b.node, "class_derivations")
	if cd == nil {
		return nil, b.structural("", "missing class_derivations")
	}
	return parseClassDerivations(b, cd, true)
}

// embedded returns the names of class derivations nested anywhere under
// object_derivations in the block.
func (b *Block) embedded() []string {
	if b.node == nil || b.node.Kind != yaml.MappingNode {
		return nil
	}
	var names []string
	var walk func(cd *yaml.Node, nested bool)
	walk = func(cd *yaml.Node, nested bool) {
		if cd == nil || cd.Kind != yaml.MappingNode {
			return
		}
		for k, v := range pairs(cd) {
			if nested {
				names = append(names, k.Value)
			}
			slots := lookup(v, "slot_derivations")
			if slots == nil || slots.Kind != yaml.MappingNode {
				continue
			}
			for _, slot := range pairs(slots) {
				objs := lookup(slot, "object_derivations")
				if objs == nil || objs.Kind != yaml.SequenceNode {
					continue
				}
				for _, obj := range objs.Content {
					walk(lookup(resolve(obj), "class_derivations"), true)
				}
			}
		}
	}
	walk(lookup(b.node, "class_derivations"), false)
	return names
}

func (b *Block) structural(entity, reason string) error {
	return &hdk.StructuralSpecError{Document: b.Document, Block: b.Index, Entity: entity, Reason: reason}
}

// resolve follows document and alias nodes down to the node holding
// content. It returns nil for an empty document.
func resolve(n *yaml.Node) *yaml.Node {
	for n != nil {
		switch n.Kind {
		case yaml.DocumentNode:
			if len(n.Content) == 0 {
				return nil
			}
			n = n.Content[0]
		case yaml.AliasNode:
			n = n.Alias
		default:
			return n
		}
	}
	return nil
}

// pairs iterates over the keys and resolved values of a mapping node.
func pairs(n *yaml.Node) iter.Seq2[*yaml.Node, *yaml.Node] {
	return func(yield func(k, v *yaml.Node) bool) {
		if n == nil || n.Kind != yaml.MappingNode {
			return
		}
		for i := 0; i+1 < len(n.Content); i += 2 {
			if !yield(n.Content[i], resolve(n.Content[i+1])) {
				return
			}
		}
	}
}

// lookup returns the resolved value of key in mapping n, or nil.
func lookup(n *yaml.Node, key string) *yaml.Node {
	n = resolve(n)
	for k, v := range pairs(n) {
		if k.Value == key {
			return v
		}
	}
	return nil
}

func isNull(n *yaml.Node) bool {
	return n == nil || (n.Kind == yaml.ScalarNode && n.Tag == "!!null")
}
