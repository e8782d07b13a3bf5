// Package store holds the canonical item records. The search path reads
// records from here only to hydrate the page being returned.
package store

import (
	"context"
	"fmt"

	"github.com/rkm/stac-catalog/internal/catalog"
)

// Drivers understood by New.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Store is the item record collaborator.
type Store interface {
	// GetItems returns the items found among keys. Missing keys are absent
	// from the map; that is not an error.
	GetItems(ctx context.Context, keys []catalog.Key) (map[catalog.Key]*catalog.Item, error)
	// GetItem returns catalog.ErrItemNotFound for unknown keys.
	GetItem(ctx context.Context, key catalog.Key) (*catalog.Item, error)
	// Scan calls fn for every stored item until fn returns an error.
	Scan(ctx context.Context, fn func(*catalog.Item) error) error
	Upsert(ctx context.Context, items ...*catalog.Item) error
	Delete(ctx context.Context, keys ...catalog.Key) error
	Close() error
}

// New opens the store selected by driver. path is only used by sqlite.
func New(ctx context.Context, driver, path string) (Store, error) {
	switch driver {
	case DriverMemory, "":
		return NewMemory(), nil
	case DriverSQLite:
		return OpenSQLite(ctx, path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
