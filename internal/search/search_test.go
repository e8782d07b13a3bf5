package search

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/rkm/stac-catalog/internal/catalog"
	"github.com/rkm/stac-catalog/internal/index"
	"github.com/rkm/stac-catalog/pkg/geojson"
)

var june = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func newItem(collection, id string, box geojson.BBox, start, end time.Time) *catalog.Item {
	return &catalog.Item{
		ID:          id,
		Collection:  collection,
		BBox:        box,
		Geometry:    geojson.NewPolygonFromBBox(box),
		Acquisition: catalog.Interval{Start: start, End: end},
	}
}

// memItems is an ItemReader over a map.
type memItems struct {
	items map[catalog.Key]*catalog.Item
	err   error
}

func newMemItems(items ...*catalog.Item) *memItems {
	m := &memItems{items: make(map[catalog.Key]*catalog.Item)}
	for _, it := range items {
		m.items[it.Key()] = it
	}
	return m
}

func (m *memItems) GetItems(ctx context.Context, keys []catalog.Key) (map[catalog.Key]*catalog.Item, error) {
	if m.err != nil {
		return nil, m.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[catalog.Key]*catalog.Item, len(keys))
	for _, k := range keys {
		if it, ok := m.items[k]; ok {
			out[k] = it
		}
	}
	return out, nil
}

func (m *memItems) GetItem(_ context.Context, key catalog.Key) (*catalog.Item, error) {
	it, ok := m.items[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", catalog.ErrItemNotFound, key)
	}
	return it, nil
}

func holderFor(items ...*catalog.Item) *index.Holder {
	h := index.NewHolder()
	recs := make([]index.Record, len(items))
	for i, it := range items {
		recs[i] = index.RecordOf(it)
	}
	h.Replace(recs)
	return h
}

func newTestService(items ...*catalog.Item) (*Service, *memItems) {
	store := newMemItems(items...)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(holderFor(items...), store, logger), store
}

// hourly returns n point-in-time items one hour apart, newest last.
func hourly(collection string, n int) []*catalog.Item {
	items := make([]*catalog.Item, n)
	for i := range items {
		t := june.Add(time.Duration(i) * time.Hour)
		items[i] = newItem(collection, fmt.Sprintf("item-%03d", i), geojson.BBox{0, 0, 1, 1}, t, t)
	}
	return items
}

func ids(items []*catalog.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}
