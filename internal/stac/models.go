// Package stac renders catalog records as STAC documents, wrapping
// planetlabs/go-stac for the core types and adding the API envelopes.
package stac

import (
	gostac "github.com/planetlabs/go-stac"
)

// Re-export core types from planetlabs/go-stac for convenience
type (
	Item       = gostac.Item
	Collection = gostac.Collection
	Asset      = gostac.Asset
	Link       = gostac.Link
	Provider   = gostac.Provider
	Extent     = gostac.Extent
)

// Media types used in links.
const (
	MediaTypeJSON    = "application/json"
	MediaTypeGeoJSON = "application/geo+json"
	MediaTypeZip     = "application/zip"
)

// ItemCollection is the search and item listing envelope. Next is always
// emitted, as null on the last page.
type ItemCollection struct {
	Type       string         `json:"type"` // "FeatureCollection"
	TotalCount int            `json:"total_count"`
	Products   []*gostac.Item `json:"products"`
	Next       *string        `json:"next"`
	Links      []*gostac.Link `json:"links"`
}

// NewItemCollection creates an envelope around a rendered page.
func NewItemCollection(items []*gostac.Item, total int) *ItemCollection {
	if items == nil {
		items = []*gostac.Item{}
	}
	return &ItemCollection{
		Type:       "FeatureCollection",
		TotalCount: total,
		Products:   items,
		Links:      make([]*gostac.Link, 0),
	}
}

// AddLink adds a link to the ItemCollection.
func (ic *ItemCollection) AddLink(rel, href, mediaType string) {
	ic.Links = append(ic.Links, &gostac.Link{
		Rel:  rel,
		Href: href,
		Type: mediaType,
	})
}

// SetNext records the next page URL and adds the matching link.
func (ic *ItemCollection) SetNext(href string) {
	if href == "" {
		ic.Next = nil
		return
	}
	ic.Next = &href
	ic.AddLink("next", href, MediaTypeGeoJSON)
}

// CollectionsList represents a list of collections response.
type CollectionsList struct {
	Collections []*gostac.Collection `json:"collections"`
	Links       []*gostac.Link       `json:"links"`
}

// NewCollectionsList creates a new CollectionsList.
func NewCollectionsList(collections []*gostac.Collection) *CollectionsList {
	if collections == nil {
		collections = []*gostac.Collection{}
	}
	return &CollectionsList{
		Collections: collections,
		Links:       make([]*gostac.Link, 0),
	}
}

// Conformance represents the conformance classes response.
type Conformance struct {
	ConformsTo []string `json:"conformsTo"`
}

// LandingPage represents the STAC API landing page response.
type LandingPage struct {
	Type        string         `json:"type"` // "Catalog"
	Id          string         `json:"id"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description"`
	StacVersion string         `json:"stac_version"`
	ConformsTo  []string       `json:"conformsTo,omitempty"`
	Links       []*gostac.Link `json:"links"`
}

// NewLandingPage builds the root catalog document with its navigation links.
func NewLandingPage(id, title, description, version string, links Links) *LandingPage {
	lp := &LandingPage{
		Type:        "Catalog",
		Id:          id,
		Title:       title,
		Description: description,
		StacVersion: version,
		ConformsTo:  DefaultConformance(),
		Links:       make([]*gostac.Link, 0, 5),
	}
	lp.AddLink("self", links.Root(), MediaTypeJSON)
	lp.AddLink("root", links.Root(), MediaTypeJSON)
	lp.AddLink("conformance", links.Conformance(), MediaTypeJSON)
	lp.AddLink("data", links.Collections(), MediaTypeJSON)
	lp.Links = append(lp.Links, &gostac.Link{
		Rel:    "search",
		Href:   links.Search(),
		Type:   MediaTypeGeoJSON,
		Method: "GET",
	})
	return lp
}

// AddLink adds a link to the landing page.
func (lp *LandingPage) AddLink(rel, href, mediaType string) {
	lp.Links = append(lp.Links, &gostac.Link{
		Rel:  rel,
		Href: href,
		Type: mediaType,
	})
}

// Standard STAC conformance URIs
const (
	ConformanceCore           = "https://api.stacspec.org/v1.0.0/core"
	ConformanceCollections    = "https://api.stacspec.org/v1.0.0/collections"
	ConformanceOGCFeatures    = "https://api.stacspec.org/v1.0.0/ogcapi-features"
	ConformanceItemSearch     = "https://api.stacspec.org/v1.0.0/item-search"
	ConformanceOGCFeatCore    = "http://www.opengis.net/spec/ogcapi-features-1/1.0/conf/core"
	ConformanceOGCFeatGeoJSON = "http://www.opengis.net/spec/ogcapi-features-1/1.0/conf/geojson"
)

// DefaultConformance returns the conformance classes the API implements.
func DefaultConformance() []string {
	return []string{
		ConformanceCore,
		ConformanceCollections,
		ConformanceOGCFeatures,
		ConformanceItemSearch,
		ConformanceOGCFeatCore,
		ConformanceOGCFeatGeoJSON,
	}
}
