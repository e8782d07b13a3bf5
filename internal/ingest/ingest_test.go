package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/rkm/stac-catalog/internal/catalog"
	"github.com/rkm/stac-catalog/internal/index"
	"github.com/rkm/stac-catalog/internal/store"
)

type collections map[string]bool

func (c collections) Has(id string) bool { return c[id] }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func feature(collection, id, start string, minX float64) string {
	return fmt.Sprintf(`{"type":"Feature","id":%q,"collection":%q,"bbox":[%g,0,%g,1],`+
		`"geometry":{"type":"Polygon","coordinates":[[[%g,0],[%g,0],[%g,1],[%g,1],[%g,0]]]},`+
		`"properties":{"datetime":%q}}`,
		id, collection, minX, minX+1, minX, minX+1, minX+1, minX, minX, start)
}

func mustItem(t *testing.T, collection, id string) *catalog.Item {
	t.Helper()
	it, err := catalog.DecodeFeature([]byte(feature(collection, id, "2024-06-01T00:00:00Z", 0)))
	if err != nil {
		t.Fatalf("DecodeFeature: %v", err)
	}
	return it
}

type fixture struct {
	store  *store.Memory
	holder *index.Holder
	writer *Writer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemory()
	h := index.NewHolder()
	return &fixture{
		store:  st,
		holder: h,
		writer: NewWriter(st, h, collections{"s1": true, "s2": true}, discard()),
	}
}

func (f *fixture) keys(t *testing.T) map[catalog.Key]bool {
	t.Helper()
	out := make(map[catalog.Key]bool)
	for _, r := range f.holder.Load().Records() {
		out[r.Key] = true
	}
	var stored int
	if err := f.store.Scan(context.Background(), func(*catalog.Item) error { stored++; return nil }); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if stored != len(out) {
		t.Errorf("store has %d items, snapshot has %d", stored, len(out))
	}
	return out
}
