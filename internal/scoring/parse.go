package scoring

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Format discriminates the supported on-disk test file formats. Dispatch is
// by tag: each format contributes a parse function, nothing more.
type Format string

const (
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// FormatForPath maps a file extension to its format tag.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unsupported test file format: %s", path)
}

// fileSpec maps to both the TOML and JSON test file layout:
//
//	name = "q1"
//	total_points = 10
//	all_or_nothing = false
//	[[cases]]
//	name = "q1-1"
//	body = "..."
//	points = 4
type fileSpec struct {
	Name         string     `toml:"name" json:"name"`
	TotalPoints  float64    `toml:"total_points" json:"total_points"`
	AllOrNothing bool       `toml:"all_or_nothing" json:"all_or_nothing"`
	Cases        []TestCase `toml:"cases" json:"cases"`
}

// ParseFile reads a test file from disk, dispatching on the format tag
// derived from its extension. Point weights are left unresolved.
func ParseFile(path string) (*TestFile, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read test file %s: %w", path, err)
	}

	var spec fileSpec
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(data, &spec); err != nil {
			return nil, fmt.Errorf("failed to parse TOML test file %s: %w", path, err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, &spec); err != nil {
			return nil, fmt.Errorf("failed to parse JSON test file %s: %w", path, err)
		}
	}

	name := spec.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	total := spec.TotalPoints
	if total == 0 {
		total = 1
	}
	if len(spec.Cases) == 0 {
		return nil, fmt.Errorf("test file %s declares no cases", path)
	}

	return &TestFile{
		Name:         name,
		Path:         path,
		Format:       format,
		TotalPoints:  total,
		AllOrNothing: spec.AllOrNothing,
		Cases:        spec.Cases,
	}, nil
}

// ParseDir parses every supported test file directly under dir, in lexical
// order. Files with unrecognised extensions are skipped.
func ParseDir(dir string) ([]*TestFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list test dir %s: %w", dir, err)
	}

	files := make([]*TestFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := FormatForPath(e.Name()); err != nil {
			continue
		}
		tf, err := ParseFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		files = append(files, tf)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no test files found in %s", dir)
	}
	return files, nil
}
