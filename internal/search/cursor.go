package search

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/rkm/stac-catalog/internal/index"
)

const cursorVersion = 1

// Cursor is the resume position of a paginated result. Clients treat the
// encoded form as opaque.
type Cursor struct {
	Version int `json:"v"`
	// Offset is the index of the first item of the next page.
	Offset int `json:"o"`
	// Sort key of the last item returned.
	Start      string `json:"t,omitempty"`
	Collection string `json:"c,omitempty"`
	ID         string `json:"i,omitempty"`
}

func cursorAfter(offset int, key index.SortKey) *Cursor {
	return &Cursor{
		Version:    cursorVersion,
		Offset:     offset,
		Start:      key.Start.UTC().Format(time.RFC3339Nano),
		Collection: key.Collection,
		ID:         key.ID,
	}
}

// After returns the sort key the next page starts after, or nil when the
// cursor only carries an offset.
func (c *Cursor) After() *index.SortKey {
	if c == nil || c.Start == "" {
		return nil
	}
	// validated in DecodeCursor
	t, _ := time.Parse(time.RFC3339Nano, c.Start)
	return &index.SortKey{Start: t, Collection: c.Collection, ID: c.ID}
}

// EncodeCursor encodes a cursor to a URL-safe string. It returns "" for nil.
func EncodeCursor(c *Cursor) string {
	if c == nil {
		return ""
	}
	data, err := json.Marshal(c)
	if err != nil {
		// a struct of strings and ints always marshals
		return ""
	}
	return base64.URLEncoding.EncodeToString(data)
}

// DecodeCursor decodes a cursor produced by EncodeCursor.
func DecodeCursor(encoded string) (*Cursor, error) {
	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, invalid("cursor", "cursor is not valid base64")
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, invalid("cursor", "cursor is corrupt")
	}
	if c.Version != cursorVersion {
		return nil, invalid("cursor", "unsupported cursor version %d", c.Version)
	}
	if c.Offset < 0 {
		return nil, invalid("cursor", "cursor offset is negative")
	}
	if c.Start != "" {
		if _, err := time.Parse(time.RFC3339Nano, c.Start); err != nil {
			return nil, invalid("cursor", "cursor position is corrupt")
		}
	}
	return &c, nil
}
