package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

// Document is the on-disk shape used by export and import.
type Document struct {
	Rules []Rule `json:"rules" yaml:"rules"`
}

// Format is a bulk file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks a format from the file extension, defaulting to JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	}
	return FormatJSON
}

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown format %q (want json or yaml)", s)
}

// Encode writes rs to w. JSON is written as a bare array so the output can
// be dropped straight into a file-backed store.
func Encode(w io.Writer, rs []Rule, f Format) error {
	if rs == nil {
		rs = []Rule{}
	}
	switch f {
	case FormatYAML:
		data, err := yaml.Marshal(Document{Rules: rs})
		if err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		_, err = w.Write(data)
		return err
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "    ")
		return enc.Encode(rs)
	}
}

// Decode parses a bulk file. JSON may be a bare array or a Document;
// YAML may be a Document or a bare sequence.
func Decode(data []byte, f Format) ([]Rule, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []Rule{}, nil
	}

	switch f {
	case FormatYAML:
		var doc Document
		if err := yaml.Unmarshal(trimmed, &doc); err == nil && doc.Rules != nil {
			return doc.Rules, nil
		}
		var list []Rule
		if err := yaml.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
		return list, nil
	default:
		if trimmed[0] == '[' {
			var list []Rule
			if err := json.Unmarshal(trimmed, &list); err != nil {
				return nil, fmt.Errorf("failed to parse JSON: %w", err)
			}
			return list, nil
		}
		var doc Document
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
		if doc.Rules == nil {
			return []Rule{}, nil
		}
		return doc.Rules, nil
	}
}

// Render produces one line per rule, prefixed with its position, for
// diffing and plain listings. Server-assigned fields are left out.
func Render(rs []Rule) []string {
	lines := make([]string, len(rs))
	for i, r := range rs {
		lines[i] = fmt.Sprintf("%d: %s\n", i, r)
	}
	return lines
}
