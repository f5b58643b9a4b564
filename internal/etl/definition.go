package etl

import "strings"

// ── Field Definitions ──────────────────────────────────────
// A source definition is an ordered list of entries, each either a bare
// name or a record with a "name" attribute:
//
//	definition:
//	  - NAME
//	  - { name: POP2020, type: number }
//
// YAML and JSON both decode that into []any, which ResolveFields turns into
// the adapter's field list.

// DefinitionEntry is one parsed definition item. The only implementations
// are NameAtom and NamedRecord.
type DefinitionEntry interface {
	field() Field
}

// NameAtom is a bare field name.
type NameAtom string

func (a NameAtom) field() Field { return Field{Name: string(a), Type: "text"} }

// NamedRecord is a record-shaped entry. Name is required; Attrs keeps the
// remaining attributes, of which only "type" is interpreted.
type NamedRecord struct {
	Name  string
	Attrs map[string]any
}

func (r NamedRecord) field() Field {
	typ := "text"
	if t, ok := r.Attrs["type"].(string); ok && strings.TrimSpace(t) != "" {
		typ = strings.TrimSpace(t)
	}
	return Field{Name: r.Name, Type: typ}
}

// ParseDefinitionEntry classifies a decoded definition value.
func ParseDefinitionEntry(index int, v any) (DefinitionEntry, error) {
	switch e := v.(type) {
	case NameAtom:
		return parseAtom(index, v, string(e))
	case string:
		return parseAtom(index, v, e)
	case NamedRecord:
		if e.Name == "" {
			return nil, &DefinitionError{Index: index, Value: v, Reason: "record has an empty name"}
		}
		return e, nil
	case map[string]any:
		raw, ok := e["name"]
		if !ok {
			return nil, &DefinitionError{Index: index, Value: v, Reason: "record has no name"}
		}
		name, ok := raw.(string)
		if !ok || name == "" {
			return nil, &DefinitionError{Index: index, Value: v, Reason: "record name is not a non-empty string"}
		}
		attrs := make(map[string]any, len(e))
		for k, val := range e {
			if k != "name" {
				attrs[k] = val
			}
		}
		return NamedRecord{Name: name, Attrs: attrs}, nil
	default:
		return nil, &DefinitionError{Index: index, Value: v, Reason: "unsupported shape"}
	}
}

func parseAtom(index int, v any, name string) (DefinitionEntry, error) {
	if name == "" {
		return nil, &DefinitionError{Index: index, Value: v, Reason: "empty name"}
	}
	return NameAtom(name), nil
}

// ParseDefinition classifies every entry, stopping at the first bad one.
func ParseDefinition(defs []any) ([]DefinitionEntry, error) {
	entries := make([]DefinitionEntry, 0, len(defs))
	for i, d := range defs {
		e, err := ParseDefinitionEntry(i, d)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ResolveFields builds one Field per definition entry, in order.
// A single malformed entry fails the whole resolution and no fields are returned.
func ResolveFields(defs []any) ([]Field, error) {
	entries, err := ParseDefinition(defs)
	if err != nil {
		return nil, err
	}
	fields := make([]Field, len(entries))
	for i, e := range entries {
		fields[i] = e.field()
	}
	return fields, nil
}
