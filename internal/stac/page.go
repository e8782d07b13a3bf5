package stac

import (
	"net/url"

	"github.com/rkm/stac-catalog/internal/catalog"
)

// PageLinks locates a page: the URL it was requested at and its active
// query parameters.
type PageLinks struct {
	Links  Links
	Self   string
	Params url.Values
	// Collection is set for collection-scoped listings.
	Collection string
}

// RenderPage builds the envelope for one page. cursor is the encoded resume
// token, empty on the last page.
func RenderPage(items []*catalog.Item, total int, cursor string, pl PageLinks, stacVersion string) *ItemCollection {
	ic := NewItemCollection(RenderItems(items, pl.Links, stacVersion), total)

	self := pl.Self
	if q := pl.Params.Encode(); q != "" {
		self += "?" + q
	}
	ic.AddLink("self", self, MediaTypeGeoJSON)
	ic.AddLink("root", pl.Links.Root(), MediaTypeJSON)
	if pl.Collection != "" {
		ic.AddLink("parent", pl.Links.Collection(pl.Collection), MediaTypeJSON)
		ic.AddLink("collection", pl.Links.Collection(pl.Collection), MediaTypeJSON)
	}
	if cursor != "" {
		ic.SetNext(NextURL(pl.Self, pl.Params, cursor))
	}
	return ic
}
