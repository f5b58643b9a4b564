package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"geoetl/internal/geo"
)

// Env holds process settings read from GEOETL_* environment variables.
type Env struct {
	DBPath         string        // GEOETL_DB
	Tool           string        // GEOETL_OGR2OGR
	ConvertTimeout time.Duration // GEOETL_CONVERT_TIMEOUT, negative disables
	MaxConversions int           // GEOETL_MAX_CONVERSIONS
	WorkDir        string        // GEOETL_WORKDIR, empty means os.TempDir()
	Extractor      string        // GEOETL_EXTRACTOR: "zip", or an unzip-compatible executable
}

// ExtractorZip selects the in-process zip reader.
const ExtractorZip = "zip"

// DefaultDBPath is ~/.local/share/geoetl/geoetl.db.
func DefaultDBPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".local", "share", "geoetl", "geoetl.db")
}

// LoadEnv reads the environment, falling back to defaults for unset values.
func LoadEnv() (Env, error) {
	env := Env{
		DBPath:    envString("GEOETL_DB", DefaultDBPath()),
		Tool:      envString("GEOETL_OGR2OGR", geo.DefaultTool),
		WorkDir:   envString("GEOETL_WORKDIR", ""),
		Extractor: envString("GEOETL_EXTRACTOR", ExtractorZip),
	}

	var err error
	env.ConvertTimeout, err = envDuration("GEOETL_CONVERT_TIMEOUT", geo.DefaultConvertTimeout)
	if err != nil {
		return Env{}, err
	}
	env.MaxConversions, err = envInt("GEOETL_MAX_CONVERSIONS", geo.DefaultMaxConversions)
	if err != nil {
		return Env{}, err
	}
	if env.MaxConversions < 1 {
		return Env{}, fmt.Errorf("invalid GEOETL_MAX_CONVERSIONS=%d: must be at least 1", env.MaxConversions)
	}
	return env, nil
}

// Converter builds the shared converter described by env.
func (e Env) Converter() *geo.Converter {
	c := geo.NewConverter(e.Tool)
	c.Timeout = e.ConvertTimeout
	c.MaxConcurrent = int64(e.MaxConversions)
	return c
}

// Workspaces builds the workspace factory described by env. Any extractor
// other than "zip" names a tool invoked as `<tool> -o -q <archive> -d <dir>`.
func (e Env) Workspaces() *geo.Workspaces {
	ws := &geo.Workspaces{Root: e.WorkDir}
	if e.Extractor != "" && e.Extractor != ExtractorZip {
		ws.Extractor = geo.CommandExtractor{Tool: e.Extractor}
	}
	return ws
}

func envString(varName, fallback string) string {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback
	}
	return v
}

func envInt(varName string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envDuration(varName string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}
