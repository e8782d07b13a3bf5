package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CollectionConfig is a STAC collection definition loaded from a JSON or
// YAML file in the collections directory. The configured extent is only
// reported while the collection holds no items.
type CollectionConfig struct {
	ID          string         `json:"id" yaml:"id"`
	Title       string         `json:"title" yaml:"title"`
	Description string         `json:"description" yaml:"description"`
	Keywords    []string       `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	License     string         `json:"license" yaml:"license"`
	Providers   []Provider     `json:"providers,omitempty" yaml:"providers,omitempty"`
	Extent      Extent         `json:"extent" yaml:"extent"`
	Summaries   map[string]any `json:"summaries,omitempty" yaml:"summaries,omitempty"`
	Extensions  []string       `json:"stac_extensions,omitempty" yaml:"stac_extensions,omitempty"`
}

// Provider represents a data provider in a STAC collection.
type Provider struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Roles       []string `json:"roles,omitempty" yaml:"roles,omitempty"`
	URL         string   `json:"url,omitempty" yaml:"url,omitempty"`
}

// Extent defines the spatial and temporal extent of a collection.
type Extent struct {
	Spatial  SpatialExtent  `json:"spatial" yaml:"spatial"`
	Temporal TemporalExtent `json:"temporal" yaml:"temporal"`
}

// SpatialExtent defines the bounding boxes for a collection.
type SpatialExtent struct {
	BBox [][]float64 `json:"bbox" yaml:"bbox"`
}

// TemporalExtent defines the time intervals for a collection. A nil bound
// is open.
type TemporalExtent struct {
	Interval [][]*string `json:"interval" yaml:"interval"`
}

// CollectionRegistry holds all loaded collection configurations indexed by
// ID. It is read-only once loaded.
type CollectionRegistry struct {
	collections map[string]*CollectionConfig
}

// NewCollectionRegistry creates a new empty collection registry.
func NewCollectionRegistry() *CollectionRegistry {
	return &CollectionRegistry{
		collections: make(map[string]*CollectionConfig),
	}
}

var collectionExtensions = map[string]bool{".json": true, ".yaml": true, ".yml": true}

// LoadCollections loads collection definitions from the JSON and YAML files
// in the specified directory.
func LoadCollections(collectionsDir string) (*CollectionRegistry, error) {
	registry := NewCollectionRegistry()

	info, err := os.Stat(collectionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to access collections directory %q: %w", collectionsDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("collections path %q is not a directory", collectionsDir)
	}

	entries, err := os.ReadDir(collectionsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read collections directory %q: %w", collectionsDir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !collectionExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}

		filePath := filepath.Join(collectionsDir, entry.Name())
		collection, err := loadCollectionFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load collection from %q: %w", filePath, err)
		}

		if err := registry.Add(collection); err != nil {
			return nil, fmt.Errorf("failed to add collection from %q: %w", filePath, err)
		}
	}

	if registry.Count() == 0 {
		return nil, fmt.Errorf("no collection files found in %q", collectionsDir)
	}

	return registry, nil
}

// loadCollectionFile loads a single collection configuration file.
func loadCollectionFile(filePath string) (*CollectionConfig, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var collection CollectionConfig
	if strings.EqualFold(filepath.Ext(filePath), ".json") {
		if err := json.Unmarshal(data, &collection); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &collection); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	if err := validateCollection(&collection); err != nil {
		return nil, fmt.Errorf("invalid collection configuration: %w", err)
	}

	return &collection, nil
}

// validateCollection checks that a collection configuration is valid. The
// extent is optional since it can be derived from the items.
func validateCollection(c *CollectionConfig) error {
	if c.ID == "" {
		return fmt.Errorf("collection ID is required")
	}
	if strings.ContainsAny(c.ID, "/?#") {
		return fmt.Errorf("collection ID %q must not contain '/', '?' or '#'", c.ID)
	}

	if c.Title == "" {
		return fmt.Errorf("collection title is required")
	}

	if c.Description == "" {
		return fmt.Errorf("collection description is required")
	}

	if c.License == "" {
		return fmt.Errorf("collection license is required")
	}

	for i, bbox := range c.Extent.Spatial.BBox {
		if len(bbox) != 4 && len(bbox) != 6 {
			return fmt.Errorf("bbox[%d] must have 4 or 6 values, got %d", i, len(bbox))
		}
	}

	for i, interval := range c.Extent.Temporal.Interval {
		if len(interval) != 2 {
			return fmt.Errorf("temporal interval[%d] must have exactly 2 values, got %d", i, len(interval))
		}
		for _, bound := range interval {
			if bound == nil {
				continue
			}
			if _, err := time.Parse(time.RFC3339, *bound); err != nil {
				return fmt.Errorf("temporal interval[%d]: %w", i, err)
			}
		}
	}

	return nil
}

// Add registers a collection in the registry.
// Returns an error if a collection with the same ID already exists.
func (r *CollectionRegistry) Add(collection *CollectionConfig) error {
	if collection == nil {
		return fmt.Errorf("cannot add nil collection")
	}

	if _, exists := r.collections[collection.ID]; exists {
		return fmt.Errorf("collection with ID %q already exists", collection.ID)
	}

	r.collections[collection.ID] = collection
	return nil
}

// Get retrieves a collection by ID.
// Returns nil if the collection does not exist.
func (r *CollectionRegistry) Get(id string) *CollectionConfig {
	return r.collections[id]
}

// Has checks if a collection with the given ID exists in the registry.
func (r *CollectionRegistry) Has(id string) bool {
	_, exists := r.collections[id]
	return exists
}

// All returns all collections ordered by ID.
func (r *CollectionRegistry) All() []*CollectionConfig {
	collections := make([]*CollectionConfig, 0, len(r.collections))
	for _, id := range r.IDs() {
		collections = append(collections, r.collections[id])
	}
	return collections
}

// IDs returns all collection IDs in ascending order.
func (r *CollectionRegistry) IDs() []string {
	ids := make([]string, 0, len(r.collections))
	for id := range r.collections {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Count returns the number of collections in the registry.
func (r *CollectionRegistry) Count() int {
	return len(r.collections)
}
