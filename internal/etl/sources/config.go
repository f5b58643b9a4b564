package sources

import (
	"fmt"
	"strings"

	"geoetl/internal/etl"
)

// configString reads a string key, trimming whitespace.
func configString(cfg etl.SourceConfig, key string) string {
	s, _ := cfg[key].(string)
	return strings.TrimSpace(s)
}

// configBool accepts a bool or the strings "true"/"false" (the select
// config type stores strings).
func configBool(cfg etl.SourceConfig, key string, def bool) bool {
	switch v := cfg[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "1":
			return true
		case "false", "no", "0":
			return false
		}
	}
	return def
}

// configDelimiter returns the "delimiter" key as a rune, or 0 for the default.
func configDelimiter(cfg etl.SourceConfig) (rune, error) {
	d, _ := cfg["delimiter"].(string)
	return etl.ParseDelimiter(d)
}

// definitionList normalizes the "definition" key to the []any shape
// etl.ResolveFields expects.
func definitionList(v any) ([]any, error) {
	switch d := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return d, nil
	case []string:
		out := make([]any, len(d))
		for i, s := range d {
			out[i] = s
		}
		return out, nil
	case []map[string]any:
		out := make([]any, len(d))
		for i, m := range d {
			out[i] = m
		}
		return out, nil
	default:
		return nil, fmt.Errorf("definition must be a list, got %T", v)
	}
}

// featureSchema is the schema of a verbatim GeoJSON feature record. With
// declared fields, those come first (resolved against the feature's
// properties) and the geometry follows unless already declared.
func featureSchema(declared []etl.Field) *etl.Schema {
	if len(declared) == 0 {
		return &etl.Schema{Fields: []etl.Field{
			{Name: "type", Type: "text"},
			{Name: "geometry", Type: "json"},
			{Name: "properties", Type: "json"},
		}}
	}
	fields := append([]etl.Field(nil), declared...)
	for _, f := range declared {
		if f.Name == "geometry" {
			return &etl.Schema{Fields: fields}
		}
	}
	fields = append(fields, etl.Field{Name: "geometry", Type: "json"})
	return &etl.Schema{Fields: fields}
}
