package geo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// Feature is one GeoJSON feature, passed through without reshaping.
type Feature map[string]any

// Properties returns the feature's "properties" object, or nil.
func (f Feature) Properties() map[string]any {
	p, _ := f["properties"].(map[string]any)
	return p
}

// FeatureCollection is the top-level exchange document.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// ReadFeatureCollection parses a whole GeoJSON document from path.
func ReadFeatureCollection(path string) (*FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return ParseFeatureCollection(path, data)
}

// ParseFeatureCollection decodes data, requiring a "features" array.
// Numbers are kept as json.Number so integer attributes wider than a
// float64 mantissa survive re-encoding. path is only used in error messages.
func ParseFeatureCollection(path string, data []byte) (*FeatureCollection, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ParseError{Path: path, Reason: "invalid JSON", Err: err}
	}
	fraw, ok := raw["features"]
	if !ok {
		return nil, &ParseError{Path: path, Reason: `missing "features"`}
	}
	dec := json.NewDecoder(bytes.NewReader(fraw))
	dec.UseNumber()
	var features []Feature
	if err := dec.Decode(&features); err != nil {
		return nil, &ParseError{Path: path, Reason: `"features" is not an array of objects`, Err: err}
	}
	if features == nil {
		// "features": null
		return nil, &ParseError{Path: path, Reason: `"features" is not an array of objects`}
	}

	fc := &FeatureCollection{Features: features}
	if t, ok := raw["type"]; ok {
		if err := json.Unmarshal(t, &fc.Type); err != nil {
			return nil, &ParseError{Path: path, Reason: `"type" is not a string`, Err: err}
		}
	}
	return fc, nil
}
