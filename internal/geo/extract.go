package geo

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Extractor unpacks an archive into an existing, empty directory.
type Extractor interface {
	Extract(ctx context.Context, archive, dir string) error
}

// ZipExtractor unpacks zip archives in-process.
type ZipExtractor struct{}

func (ZipExtractor) Extract(ctx context.Context, archive, dir string) error {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		target := filepath.Join(root, f.Name)
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return fmt.Errorf("entry %q escapes workspace", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := writeZipEntry(f, target); err != nil {
			return fmt.Errorf("entry %q: %w", f.Name, err)
		}
	}
	return nil
}

func writeZipEntry(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// CommandExtractor shells out to the host unzip, overwriting quietly:
//
//	unzip -o -q <archive> -d <dir>
type CommandExtractor struct {
	Tool string // defaults to "unzip"
}

func (c CommandExtractor) Extract(ctx context.Context, archive, dir string) error {
	tool := c.Tool
	if tool == "" {
		tool = "unzip"
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, tool, "-o", "-q", archive, "-d", dir)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if s := strings.TrimSpace(stderr.String()); s != "" {
			return fmt.Errorf("%s: %w: %s", tool, err, s)
		}
		return fmt.Errorf("%s: %w", tool, err)
	}
	return nil
}
