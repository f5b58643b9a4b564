package geo

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquireExtractsIntoUniqueDirs(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "parcels.zip")
	writeZip(t, archive, "parcels.shp", "parcels.dbf")
	ws := &Workspaces{Root: t.TempDir()}

	const n = 16
	dirs := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w, err := ws.Acquire(context.Background(), archive)
			require.NoError(t, err)
			dirs[i] = w.Dir
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, d := range dirs {
		require.False(t, seen[d], "duplicate workspace %s", d)
		seen[d] = true
		require.True(t, strings.HasPrefix(filepath.Base(d), DefaultWorkspacePrefix))
		require.FileExists(t, filepath.Join(d, "parcels.shp"))
	}
}

func TestAcquireCollisionFails(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "parcels.zip")
	writeZip(t, archive, "parcels.shp")
	root := t.TempDir()
	ws := &Workspaces{Root: root, NewID: func() string { return "fixed" }}

	w, err := ws.Acquire(context.Background(), archive)
	require.NoError(t, err)
	defer w.Release()

	_, err = ws.Acquire(context.Background(), archive)
	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	require.Contains(t, err.Error(), "already exists")
	// the existing workspace is left alone
	require.FileExists(t, filepath.Join(w.Dir, "parcels.shp"))
}

func TestAcquireBadArchiveCleansUp(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "broken.zip")
	require.NoError(t, os.WriteFile(archive, []byte("not a zip"), 0o644))
	root := t.TempDir()
	ws := &Workspaces{Root: root}

	_, err := ws.Acquire(context.Background(), archive)
	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	require.Equal(t, archive, extErr.Archive)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestZipExtractorRejectsEscapingEntries(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "evil.zip")
	writeZip(t, archive, "../evil.shp")

	err := ZipExtractor{}.Extract(context.Background(), archive, t.TempDir())
	require.ErrorContains(t, err, "escapes workspace")
}

func TestReleaseIsIdempotent(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "parcels.zip")
	writeZip(t, archive, "parcels.shp")
	w, err := (&Workspaces{Root: t.TempDir()}).Acquire(context.Background(), archive)
	require.NoError(t, err)

	require.NoError(t, w.Release())
	require.NoError(t, w.Release())
	require.NoDirExists(t, w.Dir)
}

// writeScript installs an executable shell script standing in for a host tool.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "tool.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestCommandExtractorRunsTool(t *testing.T) {
	// $1=-o $2=-q $3=archive $4=-d $5=dir
	tool := writeScript(t, `[ "$1" = "-o" ] && [ "$2" = "-q" ] && [ "$4" = "-d" ] || exit 2
touch "$5/roads.shp" "$5/roads.dbf"
`)
	archive := filepath.Join(t.TempDir(), "roads.zip")
	require.NoError(t, os.WriteFile(archive, []byte("zip"), 0o644))
	ws := &Workspaces{Root: t.TempDir(), Extractor: CommandExtractor{Tool: tool}}

	w, err := ws.Acquire(context.Background(), archive)
	require.NoError(t, err)
	defer w.Release()
	require.FileExists(t, filepath.Join(w.Dir, "roads.shp"))

	got, err := GeometryFile(w.Dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(w.Dir, "roads.shp"), got)
}

func TestCommandExtractorFailureCleansUp(t *testing.T) {
	tool := writeScript(t, `touch "$5/partial.shp"
echo "End-of-central-directory signature not found" >&2
exit 9
`)
	archive := filepath.Join(t.TempDir(), "broken.zip")
	require.NoError(t, os.WriteFile(archive, []byte("nope"), 0o644))
	root := t.TempDir()
	ws := &Workspaces{Root: root, Extractor: CommandExtractor{Tool: tool}}

	_, err := ws.Acquire(context.Background(), archive)
	var extErr *ExtractionError
	require.ErrorAs(t, err, &extErr)
	require.Equal(t, archive, extErr.Archive)
	require.Contains(t, err.Error(), "End-of-central-directory")

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Empty(t, entries, "failed extraction must not leave a workspace behind")
}
