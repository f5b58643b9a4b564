package geo

import (
	"fmt"
	"strings"
)

// ToolNotFoundError means the conversion executable is not on PATH.
type ToolNotFoundError struct {
	Tool string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("%s not found on PATH: shapefile conversion requires GDAL ogr2ogr", e.Tool)
}

// NoGeometryFileError means an extracted archive holds no primary geometry file.
type NoGeometryFileError struct {
	Dir     string
	Pattern string
}

func (e *NoGeometryFileError) Error() string {
	return fmt.Sprintf("no %s file in %s", e.Pattern, e.Dir)
}

// AmbiguousGeometryError means an extracted archive holds more than one
// primary geometry file.
type AmbiguousGeometryError struct {
	Dir   string
	Files []string
}

func (e *AmbiguousGeometryError) Error() string {
	return fmt.Sprintf("expected exactly one geometry file in %s, found %d: %s", e.Dir, len(e.Files), strings.Join(e.Files, ", "))
}

// ConversionOutputMissingError means the tool exited cleanly but wrote nothing.
type ConversionOutputMissingError struct {
	Output string
}

func (e *ConversionOutputMissingError) Error() string {
	return fmt.Sprintf("conversion produced no output at %s", e.Output)
}

// ConversionError wraps a failed tool invocation.
type ConversionError struct {
	Tool   string
	Input  string
	Stderr string
	Err    error
}

func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Tool, e.Input, e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ConversionError) Unwrap() error { return e.Err }

// ExtractionError wraps a failure to unpack an archive.
type ExtractionError struct {
	Archive string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Archive, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ParseError means the exchange document is not a feature collection.
type ParseError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse %s: %s", e.Path, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }
