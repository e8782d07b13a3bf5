// Package catalog defines the item records served by the catalog and the
// decoding of STAC item documents used by every ingest path.
package catalog

import (
	"fmt"
	"time"

	"github.com/rkm/stac-catalog/pkg/geojson"
)

// Key identifies an item. Item ids are unique within a collection only.
type Key struct {
	Collection string
	ID         string
}

func (k Key) String() string {
	return k.Collection + "/" + k.ID
}

// Interval is an acquisition time range. Point-in-time items have
// Start equal to End.
type Interval struct {
	Start time.Time
	End   time.Time
}

// IsInstant reports whether the interval is a single instant.
func (iv Interval) IsInstant() bool {
	return iv.Start.Equal(iv.End)
}

// AssetRef points at a stored asset.
type AssetRef struct {
	Href  string   `json:"href"`
	Type  string   `json:"type,omitempty"`
	Title string   `json:"title,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// Item is an immutable catalog record. Ingest replaces whole items; nothing
// mutates an Item after it has been handed to a store.
type Item struct {
	ID          string
	Collection  string
	BBox        geojson.BBox
	Geometry    *geojson.Geometry
	Acquisition Interval
	Assets      map[string]AssetRef
	Properties  Properties
}

// Key returns the item's identity.
func (it *Item) Key() Key {
	return Key{Collection: it.Collection, ID: it.ID}
}

// Validate enforces the record invariants: identity present, bbox valid and
// covering the geometry's envelope, interval ordered.
func (it *Item) Validate() error {
	if it.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidItem)
	}
	if it.Collection == "" {
		return fmt.Errorf("%w: item %q has no collection", ErrInvalidItem, it.ID)
	}
	if err := it.BBox.Validate(); err != nil {
		return fmt.Errorf("%w: item %q bbox: %v", ErrInvalidItem, it.ID, err)
	}
	if it.Geometry == nil {
		return fmt.Errorf("%w: item %q has no geometry", ErrInvalidItem, it.ID)
	}
	env, err := it.Geometry.Envelope()
	if err != nil {
		return fmt.Errorf("%w: item %q geometry: %v", ErrInvalidItem, it.ID, err)
	}
	if !it.BBox.Contains(env) {
		return fmt.Errorf("%w: item %q bbox %v does not contain geometry envelope %v", ErrInvalidItem, it.ID, it.BBox, env)
	}
	if it.Acquisition.Start.IsZero() {
		return fmt.Errorf("%w: item %q has no acquisition time", ErrInvalidItem, it.ID)
	}
	if it.Acquisition.End.Before(it.Acquisition.Start) {
		return fmt.Errorf("%w: item %q acquisition ends before it starts", ErrInvalidItem, it.ID)
	}
	return nil
}
