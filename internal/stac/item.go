package stac

import (
	"strings"

	gostac "github.com/planetlabs/go-stac"
	"github.com/rkm/stac-catalog/internal/catalog"
)

// RenderItem converts a catalog item to a STAC Feature with absolute links.
func RenderItem(it *catalog.Item, links Links, stacVersion string) *gostac.Item {
	item := &gostac.Item{
		Version:    stacVersion,
		Id:         it.ID,
		Collection: it.Collection,
		Geometry:   it.Geometry,
		Bbox:       it.BBox.Slice(),
		Properties: it.AcquisitionProperties().Map(),
		Assets:     make(map[string]*gostac.Asset, len(it.Assets)),
		Links:      make([]*gostac.Link, 0, 4),
	}

	download := links.Download(it.Collection, it.ID)
	for key, ref := range it.Assets {
		href := ref.Href
		if !isHTTPURL(href) {
			href = download
		}
		mediaType := ref.Type
		if mediaType == "" {
			mediaType = mediaTypeFromPath(ref.Href)
		}
		item.Assets[key] = &gostac.Asset{
			Href:  href,
			Type:  mediaType,
			Title: ref.Title,
			Roles: ref.Roles,
		}
	}

	item.Links = append(item.Links,
		&gostac.Link{Rel: "self", Href: links.Item(it.Collection, it.ID), Type: MediaTypeGeoJSON},
		&gostac.Link{Rel: "parent", Href: links.Collection(it.Collection), Type: MediaTypeJSON},
		&gostac.Link{Rel: "collection", Href: links.Collection(it.Collection), Type: MediaTypeJSON},
		&gostac.Link{Rel: "root", Href: links.Root(), Type: MediaTypeJSON},
	)
	return item
}

// RenderItems renders a page in order.
func RenderItems(items []*catalog.Item, links Links, stacVersion string) []*gostac.Item {
	out := make([]*gostac.Item, len(items))
	for i, it := range items {
		out[i] = RenderItem(it, links, stacVersion)
	}
	return out
}

func isHTTPURL(href string) bool {
	lower := strings.ToLower(href)
	return strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "http://")
}

// mediaTypeFromPath guesses a MIME type from a locator's extension.
func mediaTypeFromPath(p string) string {
	p = strings.ToLower(p)
	switch {
	case strings.HasSuffix(p, ".zip"):
		return MediaTypeZip
	case strings.HasSuffix(p, ".tar.gz"), strings.HasSuffix(p, ".tgz"):
		return "application/gzip"
	case strings.HasSuffix(p, ".tif"), strings.HasSuffix(p, ".tiff"):
		return "image/tiff; application=geotiff"
	case strings.HasSuffix(p, ".jpg"), strings.HasSuffix(p, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(p, ".png"):
		return "image/png"
	case strings.HasSuffix(p, ".json"):
		return MediaTypeJSON
	case strings.HasSuffix(p, ".nc"), strings.HasSuffix(p, ".nc4"):
		return "application/netcdf"
	case strings.HasSuffix(p, ".h5"), strings.HasSuffix(p, ".hdf5"):
		return "application/x-hdf5"
	default:
		return "application/octet-stream"
	}
}
