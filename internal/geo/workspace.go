package geo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// DefaultWorkspacePrefix names extraction directories under the temp root.
const DefaultWorkspacePrefix = "geoetl-shp-"

// Workspace is the extraction directory for one archive.
type Workspace struct {
	Dir     string
	Archive string
}

// Release removes the directory and everything in it. Safe to call twice.
func (w *Workspace) Release() error {
	if w == nil || w.Dir == "" {
		return nil
	}
	return os.RemoveAll(w.Dir)
}

// Workspaces creates per-archive extraction directories.
type Workspaces struct {
	Root      string    // defaults to os.TempDir()
	Prefix    string    // defaults to DefaultWorkspacePrefix
	Extractor Extractor // defaults to ZipExtractor

	// NewID is overridable in tests.
	NewID func() string
}

// Acquire creates a fresh directory and extracts archive into it. The
// directory is never reused: if the generated name already exists Acquire
// fails. On any failure the partial directory is removed.
func (ws *Workspaces) Acquire(ctx context.Context, archive string) (*Workspace, error) {
	dir := filepath.Join(ws.root(), ws.prefix()+ws.newID())
	if err := os.Mkdir(dir, 0o700); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, &ExtractionError{Archive: archive, Err: fmt.Errorf("workspace %s already exists", dir)}
		}
		return nil, &ExtractionError{Archive: archive, Err: fmt.Errorf("create workspace: %w", err)}
	}

	w := &Workspace{Dir: dir, Archive: archive}
	if err := ws.extractor().Extract(ctx, archive, dir); err != nil {
		w.Release()
		return nil, &ExtractionError{Archive: archive, Err: err}
	}
	return w, nil
}

func (ws *Workspaces) root() string {
	if ws.Root != "" {
		return ws.Root
	}
	return os.TempDir()
}

func (ws *Workspaces) prefix() string {
	if ws.Prefix != "" {
		return ws.Prefix
	}
	return DefaultWorkspacePrefix
}

func (ws *Workspaces) newID() string {
	if ws.NewID != nil {
		return ws.NewID()
	}
	return uuid.NewString()
}

func (ws *Workspaces) extractor() Extractor {
	if ws.Extractor != nil {
		return ws.Extractor
	}
	return ZipExtractor{}
}
