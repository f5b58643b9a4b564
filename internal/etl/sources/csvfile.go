package sources

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"geoetl/internal/etl"
)

// ── CSV File Source ─────────────────────────────────────────
// Reads records from a local delimited text file. Header names go through
// etl.DisambiguateHeader, so repeated columns become name_1, name_2, ...

type csvFileSource struct{}

func init() { etl.RegisterSource(&csvFileSource{}) }

func (s *csvFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:  "csv_file",
		Label: "CSV File",
		ConfigFields: []etl.ConfigField{
			{Key: "filePath", Label: "File Path", Type: "file", Required: true, Help: "Absolute path to the CSV file"},
			{Key: "delimiter", Label: "Delimiter", Type: "string", Required: false, Default: ",", Help: "Column delimiter (default: comma)"},
			{Key: "hasHeader", Label: "Has Header", Type: "select", Required: false, Options: []string{"true", "false"}, Default: "true", Help: "Whether the first row contains column names"},
		},
	}
}

func (s *csvFileSource) Validate(cfg etl.SourceConfig) error {
	if configString(cfg, "filePath") == "" {
		return fmt.Errorf("filePath is required")
	}
	_, err := configDelimiter(cfg)
	return err
}

// Discover reads only the header line.
func (s *csvFileSource) Discover(ctx context.Context, cfg etl.SourceConfig) (*etl.Schema, error) {
	filePath := configString(cfg, "filePath")
	if filePath == "" {
		return nil, fmt.Errorf("filePath is required")
	}
	delim, err := configDelimiter(cfg)
	if err != nil {
		return nil, err
	}

	fields, err := etl.HeaderFields(filePath, etl.HeaderOptions{Delimiter: delim})
	if err != nil {
		return nil, err
	}
	if !configBool(cfg, "hasHeader", true) {
		for i := range fields {
			fields[i] = etl.Field{Name: fmt.Sprintf("col_%d", i+1), Type: "text"}
		}
	}
	return &etl.Schema{Fields: fields}, nil
}

func (s *csvFileSource) Read(ctx context.Context, cfg etl.SourceConfig) (<-chan etl.Record, <-chan error) {
	out := make(chan etl.Record, 100)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		if err := readCSV(ctx, cfg, out); err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

// readCSV streams rows one at a time rather than loading the whole file.
func readCSV(ctx context.Context, cfg etl.SourceConfig, out chan<- etl.Record) error {
	filePath := configString(cfg, "filePath")
	if filePath == "" {
		return fmt.Errorf("filePath is required")
	}

	delim, err := configDelimiter(cfg)
	if err != nil {
		return err
	}
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	if delim != 0 {
		reader.Comma = delim
	}
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	first, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("empty csv file")
	}
	if err != nil {
		return fmt.Errorf("parse csv: %w", err)
	}
	if len(first) > 0 {
		first[0] = etl.TrimBOM(first[0])
	}

	var headers []string
	pending := [][]string{}
	if configBool(cfg, "hasHeader", true) {
		headers = etl.DisambiguateHeader(first)
	} else {
		headers = make([]string, len(first))
		for i := range headers {
			headers[i] = fmt.Sprintf("col_%d", i+1)
		}
		pending = append(pending, first)
	}

	emit := func(row []string) bool {
		data := make(map[string]any, len(headers))
		for j, h := range headers {
			if j < len(row) {
				data[h] = inferCSVValue(row[j])
			}
		}
		select {
		case out <- etl.Record{Data: data, Origin: filePath}:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for _, row := range pending {
		if !emit(row) {
			return nil
		}
	}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("parse csv: %w", err)
		}
		if !emit(row) {
			return nil
		}
	}
}

// inferCSVValue tries to parse a string as a number or bool.
func inferCSVValue(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}

	switch strings.ToLower(s) {
	case "true", "yes":
		return true
	case "false", "no":
		return false
	}

	return s
}
