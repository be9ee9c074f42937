package spec

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ClassDerivation describes how one target entity is populated from one
// source table.
type ClassDerivation struct {
	Name string
	// PopulatedFrom is the accession id of the source table. It is always
	// set for top level derivations and may be empty for derivations nested
	// under object_derivations, which are applied to the enclosing row.
	PopulatedFrom string
	Slots         []*SlotDerivation

	Document string
	Block    int
}

// SlotDerivation describes how one field of a target record is derived.
type SlotDerivation struct {
	Name string

	// PopulatedFrom names the source column copied into the slot.
	PopulatedFrom string

	// Value is a constant assigned to the slot when HasValue is set.
	Value    any
	HasValue bool

	// ValueMappings translates copied source values.
	ValueMappings map[string]any

	// Objects are nested derivations producing embedded records.
	Objects []*ClassDerivation

	// Unknown lists keys which were present but are not understood.
	Unknown []string
}

func parseClassDerivations(b *Block, cd *yaml.Node, top bool) ([]*ClassDerivation, error) {
	if cd.Kind != yaml.MappingNode {
		return nil, b.structural("", "class_derivations is not a mapping")
	}
	var ret []*ClassDerivation
	for k, v := range pairs(cd) {
		d, err := parseClassDerivation(b, k.Value, v, top)
		if err != nil {
			return nil, err
		}
		ret = append(ret, d)
	}
	return ret, nil
}

func parseClassDerivation(b *Block, name string, body *yaml.Node, top bool) (*ClassDerivation, error) {
	d := &ClassDerivation{Name: name, Document: b.Document, Block: b.Index}
	if isNull(body) && !top {
		return d, nil
	}
	if body == nil || body.Kind != yaml.MappingNode {
		return nil, b.structural(name, "derivation is not a mapping")
	}
	if pf := lookup(body, "populated_from"); pf != nil {
		if pf.Kind != yaml.ScalarNode {
			return nil, b.structural(name, "populated_from is not a scalar")
		}
		if !isNull(pf) {
			d.PopulatedFrom = pf.Value
		}
	}
	if top && d.PopulatedFrom == "" {
		return nil, b.structural(name, "missing populated_from")
	}
	slots := lookup(body, "slot_derivations")
	if isNull(slots) {
		return d, nil
	}
	if slots.Kind != yaml.MappingNode {
		return nil, b.structural(name, "slot_derivations is not a mapping")
	}
	for k, v := range pairs(slots) {
		s, err := parseSlotDerivation(b, name, k.Value, v)
		if err != nil {
			return nil, err
		}
		d.Slots = append(d.Slots, s)
	}
	return d, nil
}

func parseSlotDerivation(b *Block, entity, name string, body *yaml.Node) (*SlotDerivation, error) {
	s := &SlotDerivation{Name: name}
	if isNull(body) {
		s.PopulatedFrom = name
		return s, nil
	}
	if body.Kind != yaml.MappingNode {
		return nil, b.structural(entity, fmt.Sprintf("slot %s is not a mapping", name))
	}
	for k, v := range pairs(body) {
		switch k.Value {
		case "populated_from":
			if v == nil || v.Kind != yaml.ScalarNode {
				return nil, b.structural(entity, fmt.Sprintf("slot %s: populated_from is not a scalar", name))
			}
			if !isNull(v) {
				s.PopulatedFrom = v.Value
			}
		case "value":
			val, err := scalarValue(v)
			if err != nil {
				return nil, b.structural(entity, fmt.Sprintf("slot %s: value: %v", name, err))
			}
			s.Value, s.HasValue = val, true
		case "value_mappings":
			vm, err := valueMappings(v)
			if err != nil {
				return nil, b.structural(entity, fmt.Sprintf("slot %s: value_mappings: %v", name, err))
			}
			s.ValueMappings = vm
		case "object_derivations":
			if isNull(v) {
				continue
			}
			if v.Kind != yaml.SequenceNode {
				return nil, b.structural(entity, fmt.Sprintf("slot %s: object_derivations is not a list", name))
			}
			for _, item := range v.Content {
				cd := lookup(resolve(item), "class_derivations")
				if cd == nil {
					return nil, b.structural(entity, fmt.Sprintf("slot %s: object derivation missing class_derivations", name))
				}
				objs, err := parseClassDerivations(b, cd, false)
				if err != nil {
					return nil, err
				}
				s.Objects = append(s.Objects, objs...)
			}
		default:
			s.Unknown = append(s.Unknown, k.Value)
		}
	}
	return s, nil
}

// scalarValue decodes a scalar node to string, int64, float64, bool or nil.
func scalarValue(n *yaml.Node) (any, error) {
	if isNull(n) {
		return nil, nil
	}
	if n.Kind != yaml.ScalarNode {
		return nil, fmt.Errorf("expected a scalar, got %v", kindName(n.Kind))
	}
	var v any
	if err := n.Decode(&v); err != nil {
		return nil, err
	}
	switch val := v.(type) {
	case int:
		return int64(val), nil
	case uint64:
		return float64(val), nil
	case string, int64, float64, bool:
		return val, nil
	default:
		// timestamps and other tagged scalars keep their literal text
		return n.Value, nil
	}
}

// valueMappings accepts both {source: target} and the LinkML-Map form
// {source: {value: target}}.
func valueMappings(n *yaml.Node) (map[string]any, error) {
	if isNull(n) {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected a mapping, got %v", kindName(n.Kind))
	}
	ret := make(map[string]any, len(n.Content)/2)
	for k, v := range pairs(n) {
		if v != nil && v.Kind == yaml.MappingNode {
			v = lookup(v, "value")
		}
		val, err := scalarValue(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %v", k.Value, err)
		}
		ret[k.Value] = val
	}
	return ret, nil
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "list"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	}
	return fmt.Sprintf("kind %d", k)
}
