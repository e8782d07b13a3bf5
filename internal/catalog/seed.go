package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// seedExtensions are the file suffixes read as item documents.
var seedExtensions = map[string]bool{
	".json":    true,
	".geojson": true,
	".ndjson":  true,
	".jsonl":   true,
}

// IsSeedFile reports whether path looks like an item document file.
func IsSeedFile(path string) bool {
	return seedExtensions[strings.ToLower(filepath.Ext(path))]
}

// DecodeDocuments reads a stream of JSON documents, each either a Feature or
// a FeatureCollection. Newline delimited streams and single documents are
// both accepted.
func DecodeDocuments(r io.Reader) ([]*Item, error) {
	dec := json.NewDecoder(r)
	var items []*Item
	for n := 0; ; n++ {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return items, nil
			}
			return nil, fmt.Errorf("document %d: %w", n, err)
		}

		var head struct {
			Type     string            `json:"type"`
			Features []json.RawMessage `json:"features"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return nil, fmt.Errorf("document %d: %w", n, err)
		}

		switch head.Type {
		case "FeatureCollection":
			for i, f := range head.Features {
				it, err := DecodeFeature(f)
				if err != nil {
					return nil, fmt.Errorf("document %d feature %d: %w", n, i, err)
				}
				items = append(items, it)
			}
		case "Feature", "":
			it, err := DecodeFeature(raw)
			if err != nil {
				return nil, fmt.Errorf("document %d: %w", n, err)
			}
			items = append(items, it)
		default:
			return nil, fmt.Errorf("document %d: unsupported type %q", n, head.Type)
		}
	}
}

// LoadFile reads every item in a seed file.
func LoadFile(path string) ([]*Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", path, err)
	}
	defer f.Close()

	items, err := DecodeDocuments(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", path, err)
	}
	return items, nil
}

// LoadDir reads every seed file directly inside dir, in name order.
func LoadDir(dir string) ([]*Item, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed directory %q: %w", dir, err)
	}

	var items []*Item
	for _, entry := range entries {
		if entry.IsDir() || !IsSeedFile(entry.Name()) {
			continue
		}
		fileItems, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		items = append(items, fileItems...)
	}
	return items, nil
}
