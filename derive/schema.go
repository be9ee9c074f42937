package derive

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Schema is the subset of a LinkML schema the Mapper consults: classes,
// their attributes and slot usage, and global slot definitions.
type Schema struct {
	ID      string            `yaml:"id"`
	Name    string            `yaml:"name"`
	Classes map[string]*Class `yaml:"classes"`
	Slots   map[string]*Slot  `yaml:"slots"`
}

// Class is a LinkML class definition.
type Class struct {
	IsA        string           `yaml:"is_a"`
	Slots      []string         `yaml:"slots"`
	Attributes map[string]*Slot `yaml:"attributes"`
	SlotUsage  map[string]*Slot `yaml:"slot_usage"`
}

// Slot is a LinkML slot definition.
type Slot struct {
	Range       string `yaml:"range"`
	Multivalued bool   `yaml:"multivalued"`
	Required    bool   `yaml:"required"`
}

// LoadSchema reads a LinkML schema from a YAML file.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading schema")
	}
	s, err := ParseSchema(data)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing schema %s", path)
	}
	return s, nil
}

// ParseSchema decodes a LinkML schema.
func ParseSchema(data []byte) (*Schema, error) {
	s := &Schema{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Range returns the declared range of slot on class, looking at slot
// usage, then attributes, then the is_a ancestors, then the global slot
// definition. It returns "" when nothing is declared.
func (s *Schema) Range(class, slot string) string {
	if s == nil {
		return ""
	}
	seen := make(map[string]bool)
	for name := class; name != "" && !seen[name]; {
		seen[name] = true
		c := s.Classes[name]
		if c == nil {
			break
		}
		if def := c.SlotUsage[slot]; def != nil && def.Range != "" {
			return def.Range
		}
		if def := c.Attributes[slot]; def != nil && def.Range != "" {
			return def.Range
		}
		name = c.IsA
	}
	if def := s.Slots[slot]; def != nil {
		return def.Range
	}
	return ""
}

// Declares reports whether class declares attr as an attribute or slot.
// known is false when the schema has no attribute or slot list for class,
// in which case nothing can be said.
func (s *Schema) Declares(class, attr string) (declared, known bool) {
	if s == nil {
		return false, false
	}
	c := s.Classes[class]
	if c == nil || (len(c.Attributes) == 0 && len(c.Slots) == 0) {
		return false, false
	}
	if _, ok := c.Attributes[attr]; ok {
		return true, true
	}
	for _, name := range c.Slots {
		if name == attr {
			return true, true
		}
	}
	return false, true
}
