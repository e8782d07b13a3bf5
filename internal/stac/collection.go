package stac

import (
	gostac "github.com/planetlabs/go-stac"
	"github.com/rkm/stac-catalog/internal/catalog"
	"github.com/rkm/stac-catalog/internal/config"
	"github.com/rkm/stac-catalog/internal/index"
)

// RenderCollection converts a collection definition to a STAC Collection.
// When the collection holds items, the extent aggregated from them replaces
// the configured one.
func RenderCollection(cfg *config.CollectionConfig, extent *index.Extent, links Links, stacVersion string) *gostac.Collection {
	collection := &gostac.Collection{
		Version:     stacVersion,
		Id:          cfg.ID,
		Title:       cfg.Title,
		Description: cfg.Description,
		Keywords:    cfg.Keywords,
		License:     cfg.License,
		Links:       make([]*gostac.Link, 0, 4),
		Assets:      make(map[string]*gostac.Asset),
		Summaries:   make(map[string]any),
	}

	if len(cfg.Providers) > 0 {
		collection.Providers = make([]*gostac.Provider, len(cfg.Providers))
		for i, p := range cfg.Providers {
			collection.Providers[i] = &gostac.Provider{
				Name:        p.Name,
				Description: p.Description,
				Roles:       p.Roles,
				Url:         p.URL,
			}
		}
	}

	if extent != nil && extent.Count > 0 {
		collection.Extent = &gostac.Extent{
			Spatial: &gostac.SpatialExtent{Bbox: [][]float64{extent.BBox.Slice()}},
			Temporal: &gostac.TemporalExtent{Interval: [][]any{{
				catalog.FormatTimestamp(extent.Start),
				catalog.FormatTimestamp(extent.End),
			}}},
		}
	} else {
		collection.Extent = configuredExtent(cfg.Extent)
	}

	for k, v := range cfg.Summaries {
		collection.Summaries[k] = v
	}

	collection.Links = append(collection.Links,
		&gostac.Link{Rel: "self", Href: links.Collection(cfg.ID), Type: MediaTypeJSON},
		&gostac.Link{Rel: "root", Href: links.Root(), Type: MediaTypeJSON},
		&gostac.Link{Rel: "parent", Href: links.Root(), Type: MediaTypeJSON},
		&gostac.Link{Rel: "items", Href: links.Items(cfg.ID), Type: MediaTypeGeoJSON, Title: "Items"},
	)
	return collection
}

// configuredExtent falls back to a whole-world, open-ended extent for
// collections defined without one.
func configuredExtent(e config.Extent) *gostac.Extent {
	bbox := e.Spatial.BBox
	if len(bbox) == 0 {
		bbox = [][]float64{{-180, -90, 180, 90}}
	}
	intervals := make([][]any, 0, len(e.Temporal.Interval))
	for _, iv := range e.Temporal.Interval {
		bounds := make([]any, len(iv))
		for i, b := range iv {
			if b != nil {
				bounds[i] = *b
			}
		}
		intervals = append(intervals, bounds)
	}
	if len(intervals) == 0 {
		intervals = [][]any{{nil, nil}}
	}
	return &gostac.Extent{
		Spatial:  &gostac.SpatialExtent{Bbox: bbox},
		Temporal: &gostac.TemporalExtent{Interval: intervals},
	}
}

// RenderCollections renders every collection in registry order.
func RenderCollections(cfgs []*config.CollectionConfig, snap *index.Snapshot, links Links, stacVersion string) *CollectionsList {
	collections := make([]*gostac.Collection, 0, len(cfgs))
	for _, cfg := range cfgs {
		var extent *index.Extent
		if e, ok := snap.Extent(cfg.ID); ok {
			extent = &e
		}
		collections = append(collections, RenderCollection(cfg, extent, links, stacVersion))
	}
	list := NewCollectionsList(collections)
	list.Links = append(list.Links,
		&gostac.Link{Rel: "self", Href: links.Collections(), Type: MediaTypeJSON},
		&gostac.Link{Rel: "root", Href: links.Root(), Type: MediaTypeJSON},
	)
	return list
}
