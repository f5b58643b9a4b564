package etl

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ── Header Field Naming ────────────────────────────────────
// Derives field names from the first row of a delimited text file.
// Duplicate column names are suffixed with their 1-based occurrence:
//
//	id,name,id,id  →  id_1, name, id_2, id_3

// HeaderOptions configures how the header row is split.
type HeaderOptions struct {
	Delimiter rune // defaults to ','
}

// HeaderFields reads only the first line of path and returns one Field per
// header cell, duplicates disambiguated, in column order.
func HeaderFields(path string, opts HeaderOptions) ([]Field, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	line, err := readFirstLine(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cells, err := SplitHeader(line, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	names := DisambiguateHeader(cells)
	fields := make([]Field, len(names))
	for i, n := range names {
		fields[i] = Field{Name: n, Type: "text"}
	}
	return fields, nil
}

// readFirstLine stops at the first newline; nothing past it is parsed.
func readFirstLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read header: %w", err)
		}
		if line == "" {
			return "", fmt.Errorf("empty file")
		}
	}
	return TrimBOM(strings.TrimRight(line, "\r\n")), nil
}

// TrimBOM drops a leading UTF-8 byte order mark, as written by spreadsheet
// exports, so the first cell compares equal to its duplicates.
func TrimBOM(s string) string {
	return strings.TrimPrefix(s, "\ufeff")
}

// SplitHeader splits a single header line into raw cells using CSV quoting rules.
func SplitHeader(line string, opts HeaderOptions) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	if opts.Delimiter != 0 {
		r.Comma = opts.Delimiter
	}
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	cells, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	return cells, nil
}

// DisambiguateHeader keeps cells whose text is unique within the row and
// renames every occurrence of a repeated text to text_<n>, where n counts
// that text's occurrences from the start of the row up to this cell.
func DisambiguateHeader(cells []string) []string {
	total := make(map[string]int, len(cells))
	for _, c := range cells {
		total[c]++
	}

	seen := make(map[string]int)
	out := make([]string, len(cells))
	for i, c := range cells {
		if total[c] == 1 {
			out[i] = c
			continue
		}
		seen[c]++
		out[i] = c + "_" + strconv.Itoa(seen[c])
	}
	return out
}

// ParseDelimiter turns a configured delimiter into a rune. "" means the
// default comma; "tab" and `\t` mean a tab.
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return 0, nil
	case "tab", `\t`:
		return '\t', nil
	}
	r := []rune(s)
	if len(r) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", s)
	}
	if r[0] == '"' || r[0] == '\r' || r[0] == '\n' {
		return 0, fmt.Errorf("invalid delimiter %q", s)
	}
	return r[0], nil
}
