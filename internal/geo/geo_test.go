package geo

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeRunner records invocations and writes a canned document to Output.
type fakeRunner struct {
	mu    sync.Mutex
	calls []Invocation
	doc   map[string]string // geometry base name -> document body
	skip  bool              // succeed without writing output
	err   error
}

func (r *fakeRunner) Run(_ context.Context, inv Invocation) error {
	r.mu.Lock()
	r.calls = append(r.calls, inv)
	r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.skip {
		return nil
	}
	body, ok := r.doc[filepath.Base(inv.Input)]
	if !ok {
		body = `{"type":"FeatureCollection","features":[]}`
	}
	return os.WriteFile(inv.Output, []byte(body), 0o644)
}

func (r *fakeRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func foundTool(string) (string, error) { return "/usr/bin/ogr2ogr", nil }

func missingTool(string) (string, error) { return "", errors.New("not found") }

// writeZip creates an archive containing the named empty-ish members.
func writeZip(t *testing.T, path string, members ...string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, m := range members {
		w, err := zw.Create(m)
		require.NoError(t, err)
		_, err = io.WriteString(w, "x")
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func newTestStream(t *testing.T, runner *fakeRunner) (*Stream, string) {
	t.Helper()
	root := t.TempDir()
	return &Stream{
		Projection: "EPSG:4326",
		Converter:  &Converter{Runner: runner, LookPath: foundTool},
		Workspaces: &Workspaces{Root: root},
		Logger:     log.New(io.Discard, "", 0),
	}, root
}

func collect(t *testing.T, s *Stream, pattern string) ([]Feature, error) {
	t.Helper()
	var out []Feature
	for f, err := range s.Features(context.Background(), pattern) {
		if err != nil {
			return out, err
		}
		out = append(out, f)
	}
	return out, nil
}

func workspaceCount(t *testing.T, root string) int {
	t.Helper()
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	return len(entries)
}

func TestFeaturesZeroMatches(t *testing.T) {
	runner := &fakeRunner{}
	s, root := newTestStream(t, runner)

	got, err := collect(t, s, filepath.Join(t.TempDir(), "*.zip"))
	require.NoError(t, err)
	require.Empty(t, got)
	require.Zero(t, runner.count())
	require.Zero(t, workspaceCount(t, root))
}

func TestFeaturesYieldsInDocumentOrder(t *testing.T) {
	in := t.TempDir()
	writeZip(t, filepath.Join(in, "parcels.zip"), "parcels.shp", "parcels.dbf", "parcels.shx")

	runner := &fakeRunner{doc: map[string]string{
		"parcels.shp": `{"type":"FeatureCollection","features":[
			{"type":"Feature","properties":{"id":"f1"},"geometry":{"type":"Point","coordinates":[1,2]}},
			{"type":"Feature","properties":{"id":"f2"},"geometry":null}
		]}`,
	}}
	s, root := newTestStream(t, runner)

	got, err := collect(t, s, filepath.Join(in, "*.zip"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "f1", got[0].Properties()["id"])
	require.Equal(t, "f2", got[1].Properties()["id"])
	require.Equal(t, map[string]any{"type": "Point", "coordinates": []any{json.Number("1"), json.Number("2")}}, got[0]["geometry"])
	require.Nil(t, got[1]["geometry"])

	require.Equal(t, 1, runner.count())
	inv := runner.calls[0]
	require.Equal(t, "GeoJSON", inv.Format)
	require.Equal(t, "EPSG:4326", inv.SourceSRS)
	require.Equal(t, "EPSG:4326", inv.TargetSRS)
	require.Equal(t, ".geojson", filepath.Ext(inv.Output))
	require.Zero(t, workspaceCount(t, root), "workspace must be removed after the archive is exhausted")
}

func TestFeaturesProcessesArchivesInSortedOrder(t *testing.T) {
	in := t.TempDir()
	writeZip(t, filepath.Join(in, "b.zip"), "b.shp")
	writeZip(t, filepath.Join(in, "a.zip"), "a.shp")

	runner := &fakeRunner{doc: map[string]string{
		"a.shp": `{"features":[{"id":"a1"}]}`,
		"b.shp": `{"features":[{"id":"b1"},{"id":"b2"}]}`,
	}}
	s, _ := newTestStream(t, runner)

	got, err := collect(t, s, filepath.Join(in, "*.zip"))
	require.NoError(t, err)
	var ids []any
	for _, f := range got {
		ids = append(ids, f["id"])
	}
	require.Equal(t, []any{"a1", "b1", "b2"}, ids)
}

func TestFeaturesNoGeometryFileBeforeConversion(t *testing.T) {
	in := t.TempDir()
	writeZip(t, filepath.Join(in, "empty.zip"), "readme.txt")

	runner := &fakeRunner{}
	s, root := newTestStream(t, runner)

	_, err := collect(t, s, filepath.Join(in, "*.zip"))
	var noGeom *NoGeometryFileError
	require.ErrorAs(t, err, &noGeom)
	require.Equal(t, GeometryPattern, noGeom.Pattern)
	require.Zero(t, runner.count())
	require.Zero(t, workspaceCount(t, root))
}

func TestFeaturesToolNotFound(t *testing.T) {
	in := t.TempDir()
	writeZip(t, filepath.Join(in, "parcels.zip"), "parcels.shp")

	runner := &fakeRunner{}
	s, root := newTestStream(t, runner)
	s.Converter.LookPath = missingTool

	_, err := collect(t, s, filepath.Join(in, "*.zip"))
	var notFound *ToolNotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, DefaultTool, notFound.Tool)
	require.Contains(t, err.Error(), "ogr2ogr")
	require.Zero(t, runner.count())
	require.Zero(t, workspaceCount(t, root), "no extraction without the tool")
}

func TestFeaturesOutputMissing(t *testing.T) {
	in := t.TempDir()
	writeZip(t, filepath.Join(in, "parcels.zip"), "parcels.shp")

	runner := &fakeRunner{skip: true}
	s, root := newTestStream(t, runner)

	_, err := collect(t, s, filepath.Join(in, "*.zip"))
	var missing *ConversionOutputMissingError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, "parcels.geojson", filepath.Base(missing.Output))
	require.Zero(t, workspaceCount(t, root))
}

func TestFeaturesParseError(t *testing.T) {
	in := t.TempDir()
	writeZip(t, filepath.Join(in, "parcels.zip"), "parcels.shp")

	runner := &fakeRunner{doc: map[string]string{"parcels.shp": `{"type":"FeatureCollection"}`}}
	s, root := newTestStream(t, runner)

	_, err := collect(t, s, filepath.Join(in, "*.zip"))
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	require.Contains(t, perr.Error(), "parcels.geojson")
	require.Zero(t, workspaceCount(t, root))
}

func TestFeaturesAbortsOnFirstFailure(t *testing.T) {
	in := t.TempDir()
	writeZip(t, filepath.Join(in, "a.zip"), "readme.txt")
	writeZip(t, filepath.Join(in, "b.zip"), "b.shp")

	runner := &fakeRunner{doc: map[string]string{"b.shp": `{"features":[{"id":"b1"}]}`}}
	s, _ := newTestStream(t, runner)

	var errs int
	var got []Feature
	for f, err := range s.Features(context.Background(), filepath.Join(in, "*.zip")) {
		if err != nil {
			errs++
			continue
		}
		got = append(got, f)
	}
	require.Equal(t, 1, errs)
	require.Empty(t, got)
	require.Zero(t, runner.count())
}

func TestFeaturesContinueOnError(t *testing.T) {
	in := t.TempDir()
	writeZip(t, filepath.Join(in, "a.zip"), "readme.txt")
	writeZip(t, filepath.Join(in, "b.zip"), "b.shp")

	runner := &fakeRunner{doc: map[string]string{"b.shp": `{"features":[{"id":"b1"}]}`}}
	s, root := newTestStream(t, runner)
	s.ContinueOnError = true
	var failed []string
	s.OnFileError = func(path string, err error) {
		var noGeom *NoGeometryFileError
		require.ErrorAs(t, err, &noGeom)
		failed = append(failed, filepath.Base(path))
	}

	got, err := collect(t, s, filepath.Join(in, "*.zip"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "b1", got[0]["id"])
	require.Equal(t, []string{"a.zip"}, failed)
	require.Zero(t, workspaceCount(t, root))
}

func TestFeaturesEarlyBreakReleasesWorkspace(t *testing.T) {
	in := t.TempDir()
	writeZip(t, filepath.Join(in, "a.zip"), "a.shp")
	writeZip(t, filepath.Join(in, "b.zip"), "b.shp")

	runner := &fakeRunner{doc: map[string]string{
		"a.shp": `{"features":[{"id":"a1"},{"id":"a2"}]}`,
		"b.shp": `{"features":[{"id":"b1"}]}`,
	}}
	s, root := newTestStream(t, runner)

	for f, err := range s.Features(context.Background(), filepath.Join(in, "*.zip")) {
		require.NoError(t, err)
		require.Equal(t, "a1", f["id"])
		break
	}
	require.Equal(t, 1, runner.count(), "second archive must not be touched")
	require.Zero(t, workspaceCount(t, root))
}

func TestFeaturesRerunsPipelineEachCall(t *testing.T) {
	in := t.TempDir()
	writeZip(t, filepath.Join(in, "a.zip"), "a.shp")

	runner := &fakeRunner{doc: map[string]string{"a.shp": `{"features":[{"id":"a1"}]}`}}
	s, _ := newTestStream(t, runner)
	pattern := filepath.Join(in, "*.zip")

	first, err := collect(t, s, pattern)
	require.NoError(t, err)
	second, err := collect(t, s, pattern)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 2, runner.count())
}

func TestFeaturesContextCancelled(t *testing.T) {
	in := t.TempDir()
	writeZip(t, filepath.Join(in, "a.zip"), "a.shp")

	runner := &fakeRunner{}
	s, _ := newTestStream(t, runner)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var gotErr error
	for _, err := range s.Features(ctx, filepath.Join(in, "*.zip")) {
		gotErr = err
	}
	require.ErrorIs(t, gotErr, context.Canceled)
	require.Zero(t, runner.count())
}

func TestFeaturesDefaultsDoNotMutateStream(t *testing.T) {
	in := t.TempDir()
	writeZip(t, filepath.Join(in, "a.zip"), "a.shp")
	s := &Stream{Logger: log.New(io.Discard, "", 0)}

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range s.Features(context.Background(), filepath.Join(in, "*.zip")) {
			}
		}()
	}
	wg.Wait()
	require.Nil(t, s.Converter)
	require.Nil(t, s.Workspaces)
}
