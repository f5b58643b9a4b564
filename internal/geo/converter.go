package geo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	DefaultTool           = "ogr2ogr"
	DefaultFormat         = "GeoJSON"
	DefaultConvertTimeout = 5 * time.Minute
	DefaultMaxConversions = 2
	GeometryPattern       = "*.shp"
	geometryExt           = ".shp"
	exchangeExt           = ".geojson"
)

// Converter turns the shapefile inside a workspace into a GeoJSON document.
// One Converter should be shared by every stream in a process so that
// MaxConcurrent bounds the number of tool subprocesses.
type Converter struct {
	Tool          string        // executable name or path, defaults to ogr2ogr
	Runner        Runner        // defaults to CommandRunner
	Timeout       time.Duration // per invocation, defaults to DefaultConvertTimeout; <0 disables
	MaxConcurrent int64         // defaults to DefaultMaxConversions

	// LookPath resolves Tool. Defaults to exec.LookPath.
	LookPath func(string) (string, error)

	once sync.Once
	sem  *semaphore.Weighted
}

// NewConverter returns a Converter for tool with the default runner.
func NewConverter(tool string) *Converter {
	return &Converter{Tool: tool}
}

// CheckTool resolves the conversion executable.
func (c *Converter) CheckTool() (string, error) {
	tool := c.Tool
	if tool == "" {
		tool = DefaultTool
	}
	lookPath := c.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	path, err := lookPath(tool)
	if err != nil || path == "" {
		return "", &ToolNotFoundError{Tool: tool}
	}
	return path, nil
}

// Convert runs the tool over the single geometry file directly under dir
// and returns the path of the document it wrote.
//
// projection is passed as both -a_srs and -t_srs. That overrides any .prj
// shipped in the archive and is likely a defect; it is kept until source
// SRS detection exists.
func (c *Converter) Convert(ctx context.Context, dir, projection string) (string, error) {
	tool, err := c.CheckTool()
	if err != nil {
		return "", err
	}
	input, err := GeometryFile(dir)
	if err != nil {
		return "", err
	}
	output := strings.TrimSuffix(input, filepath.Ext(input)) + exchangeExt

	inv := Invocation{
		Tool:      tool,
		Input:     input,
		Output:    output,
		Format:    DefaultFormat,
		SourceSRS: projection,
		TargetSRS: projection,
	}
	if err := c.run(ctx, inv); err != nil {
		return "", err
	}

	if _, err := os.Stat(output); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &ConversionOutputMissingError{Output: output}
		}
		return "", fmt.Errorf("stat output: %w", err)
	}
	return output, nil
}

func (c *Converter) run(ctx context.Context, inv Invocation) error {
	c.once.Do(func() {
		n := c.MaxConcurrent
		if n <= 0 {
			n = DefaultMaxConversions
		}
		c.sem = semaphore.NewWeighted(n)
	})
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for conversion slot: %w", err)
	}
	defer c.sem.Release(1)

	timeout := c.Timeout
	if timeout == 0 {
		timeout = DefaultConvertTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	runner := c.Runner
	if runner == nil {
		runner = CommandRunner{}
	}
	if err := runner.Run(ctx, inv); err != nil {
		var convErr *ConversionError
		if errors.As(err, &convErr) {
			return err
		}
		return &ConversionError{Tool: inv.Tool, Input: inv.Input, Err: err}
	}
	return nil
}

// GeometryFile returns the one .shp file (any case) directly under dir.
func GeometryFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read workspace: %w", err)
	}
	var matches []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), geometryExt) {
			matches = append(matches, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(matches)

	switch len(matches) {
	case 0:
		return "", &NoGeometryFileError{Dir: dir, Pattern: GeometryPattern}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousGeometryError{Dir: dir, Files: matches}
	}
}
