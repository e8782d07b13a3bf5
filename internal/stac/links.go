package stac

import (
	"net/url"
	"strings"
)

// Links builds absolute URLs under the API root, such as
// "https://stac.example.com/v1".
type Links struct {
	Base string
}

// NewLinks trims trailing slashes from base.
func NewLinks(base string) Links {
	return Links{Base: strings.TrimRight(base, "/")}
}

func (l Links) Root() string        { return l.Base + "/" }
func (l Links) Conformance() string { return l.Base + "/conformance" }
func (l Links) Collections() string { return l.Base + "/collections" }
func (l Links) Search() string      { return l.Base + "/search" }

func (l Links) Collection(id string) string {
	return l.Base + "/collections/" + url.PathEscape(id)
}

func (l Links) Items(collection string) string {
	return l.Collection(collection) + "/items"
}

func (l Links) Item(collection, id string) string {
	return l.Items(collection) + "/" + url.PathEscape(id)
}

func (l Links) Download(collection, id string) string {
	return l.Item(collection, id) + "/download"
}

// NextURL returns self with the active filters of params and the given
// cursor. Any previous cursor or offset is replaced.
func NextURL(self string, params url.Values, cursor string) string {
	next := url.Values{}
	for key, values := range params {
		if key == "cursor" || key == "offset" {
			continue
		}
		for _, value := range values {
			next.Add(key, value)
		}
	}
	next.Set("cursor", cursor)
	return self + "?" + next.Encode()
}
