package etl

// ── Record ─────────────────────────────────────────────────
// Common intermediate data format.
// Sources emit Records, destinations consume them. A shapefile feature
// travels as one Record whose Data is the GeoJSON feature object, untouched.

// Field describes a single named output column.
// Fields are built once (from a definition or a header row) and never mutated.
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"` // "text" | "number" | "boolean" | "json"
}

// Schema is the ordered field list a source produces.
type Schema struct {
	Fields []Field `json:"fields"`
}

// FieldNames returns an ordered list of field names.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Record is a single row of data flowing through the pipeline.
type Record struct {
	Data   map[string]any `json:"data"`
	Origin string         `json:"origin,omitempty"` // input file the record was read from
}

// Value looks a field up by name. Top-level keys win; otherwise the
// GeoJSON "properties" object is consulted, so a schema declared in terms
// of shapefile attributes resolves against a verbatim feature.
func (r Record) Value(name string) (any, bool) {
	if v, ok := r.Data[name]; ok {
		return v, true
	}
	props, ok := r.Data["properties"].(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := props[name]
	return v, ok
}
