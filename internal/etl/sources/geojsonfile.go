package sources

import (
	"context"
	"fmt"
	"iter"
	"path/filepath"
	"sort"

	"geoetl/internal/etl"
	"geoetl/internal/geo"
)

// ── GeoJSON File Source ─────────────────────────────────────
// Reads features from already-converted GeoJSON documents. No ogr2ogr.

type geojsonFileSource struct{}

func init() { etl.RegisterSource(&geojsonFileSource{}) }

func (s *geojsonFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "geojson_file",
		Label: "GeoJSON File",
		ConfigFields: []etl.ConfigField{
			{Key: "glob", Label: "File Glob", Type: "string", Required: true, Help: "Glob matching .geojson files"},
			{Key: "definition", Label: "Fields", Type: "list", Required: false, Help: "Field names, or records with a name, to extract from feature properties"},
		},
	}
}

func (s *geojsonFileSource) Validate(cfg etl.SourceConfig) error {
	_, _, err := geojsonConfig(cfg)
	return err
}

func (s *geojsonFileSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Schema, error) {
	_, fields, err := geojsonConfig(cfg)
	if err != nil {
		return nil, err
	}
	return featureSchema(fields), nil
}

func (s *geojsonFileSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	return readSeq(ctx, func() (iter.Seq2[etl.Record, error], error) {
		pattern, _, err := geojsonConfig(cfg)
		if err != nil {
			return nil, err
		}
		return geojsonRecords(pattern), nil
	})
}

func geojsonConfig(cfg etl.SourceConfig) (string, []etl.Field, error) {
	pattern := configString(cfg, "glob")
	if pattern == "" {
		return "", nil, fmt.Errorf("glob is required")
	}
	def, err := definitionList(cfg["definition"])
	if err != nil {
		return "", nil, err
	}
	fields, err := etl.ResolveFields(def)
	if err != nil {
		return "", nil, err
	}
	return pattern, fields, nil
}

func geojsonRecords(pattern string) iter.Seq2[etl.Record, error] {
	return func(yield func(etl.Record, error) bool) {
		paths, err := filepath.Glob(pattern)
		if err != nil {
			yield(etl.Record{}, fmt.Errorf("glob %q: %w", pattern, err))
			return
		}
		sort.Strings(paths)
		for _, path := range paths {
			fc, err := geo.ReadFeatureCollection(path)
			if err != nil {
				yield(etl.Record{}, fmt.Errorf("%s: %w", path, err))
				return
			}
			for _, f := range fc.Features {
				if !yield(etl.Record{Data: f, Origin: path}, nil) {
					return
				}
			}
		}
	}
}
