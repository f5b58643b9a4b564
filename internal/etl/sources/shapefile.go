package sources

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"geoetl/internal/etl"
	"geoetl/internal/geo"
)

// ── Shapefile Source ────────────────────────────────────────
// Reads GeoJSON features out of zipped shapefile archives matched by a glob.
// Each archive is extracted into its own workspace and converted with
// ogr2ogr; features are passed through unchanged.

const DefaultProjection = "EPSG:4326"

var (
	shapeMu         sync.RWMutex
	shapeConverter  = &geo.Converter{}
	shapeWorkspaces = &geo.Workspaces{}
)

// SetConverter is called by the app at startup. All shapefile reads in the
// process share it, so its concurrency bound is process-wide.
func SetConverter(c *geo.Converter) {
	shapeMu.Lock()
	defer shapeMu.Unlock()
	shapeConverter = c
}

// SetWorkspaces is called by the app at startup.
func SetWorkspaces(w *geo.Workspaces) {
	shapeMu.Lock()
	defer shapeMu.Unlock()
	shapeWorkspaces = w
}

// ShapefileConfig is the parsed configuration of a shapefile source.
type ShapefileConfig struct {
	Glob            string
	Projection      string
	Definition      []any
	ContinueOnError bool
}

// ParseShapefileConfig reads the generic source config map.
func ParseShapefileConfig(cfg etl.SourceConfig) (ShapefileConfig, error) {
	c := ShapefileConfig{
		Glob:            configString(cfg, "glob"),
		Projection:      configString(cfg, "projection"),
		ContinueOnError: configBool(cfg, "continueOnError", false),
	}
	if c.Glob == "" {
		return c, fmt.Errorf("glob is required")
	}
	if c.Projection == "" {
		c.Projection = DefaultProjection
	}
	def, err := definitionList(cfg["definition"])
	if err != nil {
		return c, err
	}
	c.Definition = def
	return c, nil
}

// ShapefileAdapter streams the features of one configured source.
type ShapefileAdapter struct {
	cfg    ShapefileConfig
	fields []etl.Field
}

// NewShapefileAdapter parses cfg and resolves the field definition once.
// A malformed definition fails here, before any archive is touched.
func NewShapefileAdapter(cfg etl.SourceConfig) (*ShapefileAdapter, error) {
	c, err := ParseShapefileConfig(cfg)
	if err != nil {
		return nil, err
	}
	fields, err := etl.ResolveFields(c.Definition)
	if err != nil {
		return nil, err
	}
	return &ShapefileAdapter{cfg: c, fields: fields}, nil
}

// Fields returns a copy of the resolved field list.
func (a *ShapefileAdapter) Fields() []etl.Field {
	return append([]etl.Field(nil), a.fields...)
}

// Config returns the parsed configuration.
func (a *ShapefileAdapter) Config() ShapefileConfig { return a.cfg }

// Schema is the declared fields plus geometry, or the raw feature shape
// when nothing is declared.
func (a *ShapefileAdapter) Schema() *etl.Schema {
	return featureSchema(a.fields)
}

// Records runs the whole pipeline again on every call; see geo.Stream.Features.
func (a *ShapefileAdapter) Records(ctx context.Context) iter.Seq2[etl.Record, error] {
	return func(yield func(etl.Record, error) bool) {
		shapeMu.RLock()
		conv, ws := shapeConverter, shapeWorkspaces
		shapeMu.RUnlock()

		var origin string
		stream := &geo.Stream{
			Projection:      a.cfg.Projection,
			Converter:       conv,
			Workspaces:      ws,
			ContinueOnError: a.cfg.ContinueOnError,
			OnFileError:     func(path string, err error) { etl.ReportSkip(ctx, path, err) },
			OnArchive:       func(path string) { origin = path },
		}
		for f, err := range stream.Features(ctx, a.cfg.Glob) {
			if err != nil {
				yield(etl.Record{}, err)
				return
			}
			if !yield(etl.Record{Data: f, Origin: origin}, nil) {
				return
			}
		}
	}
}

type shapefileSource struct{}

func init() { etl.RegisterSource(&shapefileSource{}) }

func (s *shapefileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:        "shapefile",
		Label:       "Shapefile Archive",
		Description: "Zipped ESRI shapefiles converted to GeoJSON features with GDAL ogr2ogr",
		ConfigFields: []etl.ConfigField{
			{Key: "glob", Label: "Archive Glob", Type: "string", Required: true, Help: "Glob matching .zip archives, e.g. /data/parcels/*.zip"},
			{Key: "projection", Label: "Projection", Type: "string", Required: false, Default: DefaultProjection, Help: "Spatial reference passed to ogr2ogr"},
			{Key: "definition", Label: "Fields", Type: "list", Required: false, Help: "Field names, or records with a name, to extract from feature properties"},
			{Key: "continueOnError", Label: "Continue On Error", Type: "select", Required: false, Options: []string{"true", "false"}, Default: "false", Help: "Skip archives that fail instead of aborting the run"},
		},
	}
}

func (s *shapefileSource) Validate(cfg etl.SourceConfig) error {
	_, err := NewShapefileAdapter(cfg)
	return err
}

func (s *shapefileSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Schema, error) {
	a, err := NewShapefileAdapter(cfg)
	if err != nil {
		return nil, err
	}
	return a.Schema(), nil
}

func (s *shapefileSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	return readSeq(ctx, func() (iter.Seq2[etl.Record, error], error) {
		a, err := NewShapefileAdapter(cfg)
		if err != nil {
			return nil, err
		}
		return a.Records(ctx), nil
	})
}

// readSeq adapts a lazy record sequence to the channel pair Source.Read
// returns. open runs inside the goroutine so its error travels on errCh.
func readSeq(ctx context.Context, open func() (iter.Seq2[etl.Record, error], error)) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		seq, err := open()
		if err != nil {
			errCh <- err
			return
		}
		for rec, err := range seq {
			if err != nil {
				errCh <- err
				return
			}
			select {
			case out <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errCh
}
