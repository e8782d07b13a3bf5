package stac

import (
	"encoding/json"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rkm/stac-catalog/internal/catalog"
	"github.com/rkm/stac-catalog/internal/config"
	"github.com/rkm/stac-catalog/internal/index"
	"github.com/rkm/stac-catalog/pkg/geojson"
)

var testLinks = NewLinks("https://stac.example.com/v1/")

func testItem() *catalog.Item {
	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	box := geojson.BBox{10, 20, 11, 21}
	props := catalog.Properties{}
	props.Set("platform", catalog.String("sentinel-1a"))
	props.Set("orbit", catalog.Int(51234))
	return &catalog.Item{
		ID:          "S1A_0001",
		Collection:  "sentinel-1",
		BBox:        box,
		Geometry:    geojson.NewPolygonFromBBox(box),
		Acquisition: catalog.Interval{Start: start, End: start.Add(25 * time.Second)},
		Assets: map[string]catalog.AssetRef{
			"data":      {Href: "s3://bucket/S1A_0001.zip", Roles: []string{"data"}},
			"thumbnail": {Href: "https://cdn.example.com/S1A_0001.png", Type: "image/png"},
		},
		Properties: props,
	}
}

func decode(t *testing.T, v any) map[string]any {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func linkHref(t *testing.T, doc map[string]any, rel string) string {
	t.Helper()
	links, _ := doc["links"].([]any)
	for _, l := range links {
		m := l.(map[string]any)
		if m["rel"] == rel {
			return m["href"].(string)
		}
	}
	return ""
}

func TestRenderItem(t *testing.T) {
	doc := decode(t, RenderItem(testItem(), testLinks, "1.0.0"))

	if doc["type"] != "Feature" {
		t.Errorf("type = %v, want Feature", doc["type"])
	}
	if doc["id"] != "S1A_0001" || doc["collection"] != "sentinel-1" {
		t.Errorf("id/collection = %v/%v", doc["id"], doc["collection"])
	}
	if doc["stac_version"] != "1.0.0" {
		t.Errorf("stac_version = %v", doc["stac_version"])
	}

	bbox, _ := doc["bbox"].([]any)
	if len(bbox) != 4 || bbox[0] != 10.0 || bbox[3] != 21.0 {
		t.Errorf("bbox = %v", doc["bbox"])
	}
	geom, _ := doc["geometry"].(map[string]any)
	if geom["type"] != "Polygon" {
		t.Errorf("geometry = %v, want a Polygon object", doc["geometry"])
	}

	props := doc["properties"].(map[string]any)
	if props["datetime"] != nil {
		t.Errorf("datetime = %v, want null for a range", props["datetime"])
	}
	if props["start_datetime"] != "2024-06-01T10:00:00Z" || props["end_datetime"] != "2024-06-01T10:00:25Z" {
		t.Errorf("start/end = %v/%v", props["start_datetime"], props["end_datetime"])
	}
	if props["platform"] != "sentinel-1a" || props["orbit"] != 51234.0 {
		t.Errorf("extension properties lost: %v", props)
	}

	if got, want := linkHref(t, doc, "self"), "https://stac.example.com/v1/collections/sentinel-1/items/S1A_0001"; got != want {
		t.Errorf("self = %q, want %q", got, want)
	}
	for _, rel := range []string{"parent", "collection", "root"} {
		if linkHref(t, doc, rel) == "" {
			t.Errorf("missing %s link", rel)
		}
	}
}

func TestRenderItemAssets(t *testing.T) {
	doc := decode(t, RenderItem(testItem(), testLinks, "1.0.0"))
	assets := doc["assets"].(map[string]any)

	data := assets["data"].(map[string]any)
	if data["href"] != "https://stac.example.com/v1/collections/sentinel-1/items/S1A_0001/download" {
		t.Errorf("data href = %v, want the download URL", data["href"])
	}
	if data["type"] != MediaTypeZip {
		t.Errorf("data type = %v, want %s", data["type"], MediaTypeZip)
	}

	thumb := assets["thumbnail"].(map[string]any)
	if thumb["href"] != "https://cdn.example.com/S1A_0001.png" {
		t.Errorf("http href rewritten to %v", thumb["href"])
	}
	if thumb["type"] != "image/png" {
		t.Errorf("thumbnail type = %v", thumb["type"])
	}
}

func TestRenderItemInstant(t *testing.T) {
	it := testItem()
	it.Acquisition.End = it.Acquisition.Start
	props := decode(t, RenderItem(it, testLinks, "1.0.0"))["properties"].(map[string]any)
	if props["datetime"] != "2024-06-01T10:00:00Z" {
		t.Errorf("datetime = %v", props["datetime"])
	}
}

func TestRenderItemEscapesIDs(t *testing.T) {
	it := testItem()
	it.ID = "a b"
	doc := decode(t, RenderItem(it, testLinks, "1.0.0"))
	if got := linkHref(t, doc, "self"); !strings.HasSuffix(got, "/items/a%20b") {
		t.Errorf("self = %q", got)
	}
}

func TestRenderPage(t *testing.T) {
	params := url.Values{"bbox": {"0,0,1,1"}, "offset": {"20"}, "limit": {"10"}}
	pl := PageLinks{Links: testLinks, Self: testLinks.Search(), Params: params}

	t.Run("with next", func(t *testing.T) {
		doc := decode(t, RenderPage([]*catalog.Item{testItem()}, 42, "abc", pl, "1.0.0"))
		if doc["type"] != "FeatureCollection" || doc["total_count"] != 42.0 {
			t.Errorf("envelope = %v", doc)
		}
		if products := doc["products"].([]any); len(products) != 1 {
			t.Errorf("products = %d, want 1", len(products))
		}
		next, _ := doc["next"].(string)
		u, err := url.Parse(next)
		if err != nil {
			t.Fatalf("next %q: %v", next, err)
		}
		q := u.Query()
		if q.Get("cursor") != "abc" || q.Get("bbox") != "0,0,1,1" || q.Get("limit") != "10" {
			t.Errorf("next query = %v", q)
		}
		if q.Has("offset") {
			t.Errorf("next kept offset: %v", q)
		}
		if linkHref(t, doc, "next") != next {
			t.Errorf("next link does not match next field")
		}
	})

	t.Run("last page", func(t *testing.T) {
		data, err := json.Marshal(RenderPage(nil, 0, "", pl, "1.0.0"))
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), `"next":null`) || !strings.Contains(string(data), `"products":[]`) {
			t.Errorf("envelope = %s", data)
		}
	})

	t.Run("collection scoped", func(t *testing.T) {
		scoped := PageLinks{Links: testLinks, Self: testLinks.Items("sentinel-1"), Params: url.Values{}, Collection: "sentinel-1"}
		doc := decode(t, RenderPage(nil, 0, "", scoped, "1.0.0"))
		if linkHref(t, doc, "collection") != "https://stac.example.com/v1/collections/sentinel-1" {
			t.Errorf("links = %v", doc["links"])
		}
		if linkHref(t, doc, "self") != "https://stac.example.com/v1/collections/sentinel-1/items" {
			t.Errorf("self = %q", linkHref(t, doc, "self"))
		}
	})
}

func TestRenderCollectionExtent(t *testing.T) {
	cfg := &config.CollectionConfig{
		ID:          "sentinel-1",
		Title:       "Sentinel-1",
		Description: "C-band SAR",
		License:     "proprietary",
		Providers:   []config.Provider{{Name: "ESA", Roles: []string{"producer"}, URL: "https://esa.int"}},
	}

	t.Run("configured", func(t *testing.T) {
		start := "2014-04-03T00:00:00Z"
		cfg := *cfg
		cfg.Extent = config.Extent{
			Spatial:  config.SpatialExtent{BBox: [][]float64{{-180, -90, 180, 90}}},
			Temporal: config.TemporalExtent{Interval: [][]*string{{&start, nil}}},
		}
		doc := decode(t, RenderCollection(&cfg, nil, testLinks, "1.0.0"))
		temporal := doc["extent"].(map[string]any)["temporal"].(map[string]any)
		iv := temporal["interval"].([]any)[0].([]any)
		if iv[0] != start || iv[1] != nil {
			t.Errorf("interval = %v", iv)
		}
	})

	t.Run("from items", func(t *testing.T) {
		ext := &index.Extent{
			BBox:  geojson.BBox{1, 2, 3, 4},
			Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			Count: 3,
		}
		doc := decode(t, RenderCollection(cfg, ext, testLinks, "1.0.0"))
		extent := doc["extent"].(map[string]any)
		bbox := extent["spatial"].(map[string]any)["bbox"].([]any)[0].([]any)
		if bbox[0] != 1.0 || bbox[3] != 4.0 {
			t.Errorf("bbox = %v", bbox)
		}
		iv := extent["temporal"].(map[string]any)["interval"].([]any)[0].([]any)
		if iv[0] != "2024-01-01T00:00:00Z" || iv[1] != "2024-02-01T00:00:00Z" {
			t.Errorf("interval = %v", iv)
		}
		if linkHref(t, doc, "items") != "https://stac.example.com/v1/collections/sentinel-1/items" {
			t.Errorf("items link = %q", linkHref(t, doc, "items"))
		}
		providers := doc["providers"].([]any)
		if len(providers) != 1 || providers[0].(map[string]any)["name"] != "ESA" {
			t.Errorf("providers = %v", providers)
		}
	})
}

func TestLandingPage(t *testing.T) {
	doc := decode(t, NewLandingPage("stac-catalog", "Catalog", "desc", "1.0.0", testLinks))
	want := map[string]string{
		"self":        "https://stac.example.com/v1/",
		"conformance": "https://stac.example.com/v1/conformance",
		"data":        "https://stac.example.com/v1/collections",
		"search":      "https://stac.example.com/v1/search",
	}
	for rel, href := range want {
		if got := linkHref(t, doc, rel); got != href {
			t.Errorf("%s = %q, want %q", rel, got, href)
		}
	}
	if doc["type"] != "Catalog" {
		t.Errorf("type = %v", doc["type"])
	}
}

func TestNextURLReplacesCursor(t *testing.T) {
	got := NextURL("https://h/v1/search", url.Values{"cursor": {"old"}, "start_time": {"2024-06-01T00:00:00Z"}}, "new")
	u, err := url.Parse(got)
	if err != nil {
		t.Fatal(err)
	}
	if u.Query()["cursor"][0] != "new" || len(u.Query()["cursor"]) != 1 {
		t.Errorf("cursor = %v", u.Query()["cursor"])
	}
	if u.Query().Get("start_time") != "2024-06-01T00:00:00Z" {
		t.Errorf("filter lost: %s", got)
	}
}
