package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rkm/stac-catalog/internal/assets"
	"github.com/rkm/stac-catalog/internal/cache"
	"github.com/rkm/stac-catalog/internal/catalog"
	"github.com/rkm/stac-catalog/internal/config"
	"github.com/rkm/stac-catalog/internal/index"
	"github.com/rkm/stac-catalog/internal/ingest"
	"github.com/rkm/stac-catalog/internal/search"
	"github.com/rkm/stac-catalog/internal/store"
	"github.com/rkm/stac-catalog/pkg/geojson"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			RequestTimeout:  5 * time.Second,
			DownloadTimeout: time.Minute,
		},
		STAC: config.STACConfig{
			Version:     "1.0.0",
			ID:          "test-catalog",
			Title:       "Test Catalog",
			Description: "Catalog under test",
			BaseURL:     "https://stac.example.com",
		},
		Search: config.SearchConfig{
			DefaultLimit:      10,
			MaxLimit:          50,
			ItemsDefaultLimit: 10,
			ItemsMaxLimit:     15,
		},
	}
}

func testRegistry(t *testing.T, ids ...string) *config.CollectionRegistry {
	t.Helper()
	reg := config.NewCollectionRegistry()
	for _, id := range ids {
		err := reg.Add(&config.CollectionConfig{
			ID:          id,
			Title:       id,
			Description: "collection " + id,
			License:     "proprietary",
		})
		if err != nil {
			t.Fatalf("Add(%s): %v", id, err)
		}
	}
	return reg
}

var epoch = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func testItem(collection, id string, box geojson.BBox, start time.Time) *catalog.Item {
	return &catalog.Item{
		ID:          id,
		Collection:  collection,
		BBox:        box,
		Geometry:    geojson.NewPolygonFromBBox(box),
		Acquisition: catalog.Interval{Start: start, End: start},
		Assets: map[string]catalog.AssetRef{
			"data": {Href: collection + "/" + id + ".tif", Type: "image/tiff", Roles: []string{"data"}},
		},
		Properties: catalog.Properties{
			{Key: "platform", Value: catalog.String("sentinel-1a")},
		},
	}
}

// harness is a fully wired router over an in-memory catalog.
type harness struct {
	cfg     *config.Config
	writer  *ingest.Writer
	holder  *index.Holder
	handler http.Handler
}

type harnessOption func(*config.Config, *Handlers, *RouterOptions)

func withCache(c cache.Cache) harnessOption {
	return func(_ *config.Config, h *Handlers, _ *RouterOptions) { h.WithCache(c) }
}

func withAssets(s assets.Store) harnessOption {
	return func(_ *config.Config, h *Handlers, _ *RouterOptions) { h.WithAssets(s) }
}

func withRouterOptions(fn func(*RouterOptions)) harnessOption {
	return func(_ *config.Config, _ *Handlers, o *RouterOptions) { fn(o) }
}

func newHarness(t *testing.T, items []*catalog.Item, opts ...harnessOption) *harness {
	t.Helper()
	cfg := testConfig()
	reg := testRegistry(t, "sentinel-1", "landsat")
	st := store.NewMemory()
	holder := index.NewHolder()
	logger := discardLogger()

	w := ingest.NewWriter(st, holder, reg, logger)
	if len(items) > 0 {
		res, err := w.Apply(context.Background(), ingest.SourceSeed, items, nil)
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
		if res.Rejected > 0 {
			t.Fatalf("%d test items rejected", res.Rejected)
		}
	}

	h := NewHandlers(cfg, reg, search.NewService(holder, st, logger), logger)
	ro := RouterOptions{
		RequestTimeout:  cfg.Server.RequestTimeout,
		DownloadTimeout: cfg.Server.DownloadTimeout,
	}
	for _, opt := range opts {
		opt(cfg, h, &ro)
	}
	return &harness{cfg: cfg, writer: w, holder: holder, handler: NewRouter(h, ro, logger)}
}

func (h *harness) get(t *testing.T, target string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

// page is the decoded search/listing envelope.
type page struct {
	Type       string          `json:"type"`
	TotalCount int             `json:"total_count"`
	Products   []pageItem      `json:"products"`
	Next       *string         `json:"next"`
	Links      []pageLink      `json:"links"`
	Raw        json.RawMessage `json:"-"`
}

type pageItem struct {
	ID         string         `json:"id"`
	Collection string         `json:"collection"`
	Bbox       []float64      `json:"bbox"`
	Properties map[string]any `json:"properties"`
	Assets     map[string]struct {
		Href string `json:"href"`
		Type string `json:"type"`
	} `json:"assets"`
	Links []pageLink `json:"links"`
}

type pageLink struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

func decodePage(t *testing.T, rec *httptest.ResponseRecorder) page {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var p page
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode page: %v; body = %s", err, rec.Body.String())
	}
	p.Raw = rec.Body.Bytes()
	return p
}

func ids(p page) []string {
	out := make([]string, len(p.Products))
	for i, it := range p.Products {
		out[i] = it.ID
	}
	return out
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) STACError {
	t.Helper()
	var e STACError
	if err := json.Unmarshal(rec.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode error body: %v; body = %s", err, rec.Body.String())
	}
	return e
}
