// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package source reads raw records from CSV, JSON Lines and JSON array files.
//
// Records come back in file order, which is the stable order checkpoints
// count against. Exports from dataframe tools often carry bare NaN and
// Infinity tokens; JSON input is read leniently and those become null.
package source

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/vectorload/core"
)

// Format identifies a source file layout.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
	FormatJSON  Format = "json"
)

var (
	ErrNoSource      = errors.New("no source configured")
	ErrUnknownFormat = errors.New("unknown source format")
	ErrEmptyHeader   = errors.New("csv header row is missing")
)

// ParseFormat parses a format name. "ndjson" is accepted for JSON Lines.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "jsonl", "ndjson":
		return FormatJSONL, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnknownFormat, s)
	}
}

// DetectFormat infers the format from the file extension.
func DetectFormat(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("%w: %s has no extension", ErrUnknownFormat, path)
	}
	return ParseFormat(ext)
}

// ReadFile reads every record of path. An empty format is detected from the
// extension.
func ReadFile(path string, format Format) ([]core.RawRecord, error) {
	if format == "" {
		var err error
		if format, err = DetectFormat(path); err != nil {
			return nil, err
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := Read(f, format)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return records, nil
}

// Read reads every record from r.
func Read(r io.Reader, format Format) ([]core.RawRecord, error) {
	switch format {
	case FormatCSV:
		return readCSV(r)
	case FormatJSONL:
		return readJSONL(r)
	case FormatJSON:
		return readJSONArray(r)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownFormat, format)
	}
}

// readCSV maps each row onto the header. Short rows leave trailing columns
// absent and extra cells are dropped.
func readCSV(r io.Reader) ([]core.RawRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyHeader
	}
	if err != nil {
		return nil, err
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records []core.RawRecord
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		rec := make(core.RawRecord, len(header))
		for i, name := range header {
			if name == "" || i >= len(row) {
				continue
			}
			rec[name] = row[i]
		}
		records = append(records, rec)
	}
}

// readJSONL reads one object per line. Blank lines are skipped.
func readJSONL(r io.Reader) ([]core.RawRecord, error) {
	reader := bufio.NewReaderSize(r, 1<<20)
	var records []core.RawRecord
	for lineNo := 1; ; lineNo++ {
		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			rec, decodeErr := decodeObject(line)
			if decodeErr != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, decodeErr)
			}
			records = append(records, rec)
		}
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func readJSONArray(r io.Reader) ([]core.RawRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(lenient(data)))
	dec.UseNumber()

	var items []map[string]any
	if err := dec.Decode(&items); err != nil {
		return nil, err
	}
	records := make([]core.RawRecord, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		records = append(records, core.RawRecord(item))
	}
	return records, nil
}

func decodeObject(data []byte) (core.RawRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(lenient(data)))
	dec.UseNumber()
	var rec map[string]any
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errors.New("record is null")
	}
	return core.RawRecord(rec), nil
}

// lenient rewrites bare NaN, Infinity and -Infinity tokens outside strings
// to null. Other input is returned unchanged.
func lenient(data []byte) []byte {
	if !bytes.Contains(data, []byte("NaN")) && !bytes.Contains(data, []byte("Infinity")) {
		return data
	}

	out := make([]byte, 0, len(data))
	inString, escaped := false, false
	for i := 0; i < len(data); i++ {
		c := data[i]
		if inString {
			out = append(out, c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			out = append(out, c)
			continue
		}
		if token := nonFiniteToken(data[i:]); token > 0 {
			out = append(out, "null"...)
			i += token - 1
			continue
		}
		out = append(out, c)
	}
	return out
}

// nonFiniteToken returns the length of a non-finite literal at the start of b.
func nonFiniteToken(b []byte) int {
	for _, token := range []string{"-Infinity", "+Infinity", "Infinity", "NaN"} {
		if bytes.HasPrefix(b, []byte(token)) {
			return len(token)
		}
	}
	return 0
}
