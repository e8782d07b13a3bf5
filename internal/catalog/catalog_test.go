package catalog

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rkm/stac-catalog/pkg/geojson"
)

const sampleFeature = `{
  "type": "Feature",
  "id": "S1A_IW_0001",
  "collection": "sentinel-1",
  "bbox": [10, 40, 12, 42],
  "geometry": {"type": "Polygon", "coordinates": [[[10,40],[12,40],[12,42],[10,42],[10,40]]]},
  "properties": {
    "start_datetime": "2024-06-01T10:00:00Z",
    "end_datetime": "2024-06-01T10:00:25Z",
    "platform": "sentinel-1a",
    "sat:absolute_orbit": 54321,
    "sar:polarizations": ["VV", "VH"],
    "processing": {"level": "L1", "software": {"name": "ipf"}}
  },
  "assets": {
    "data": {"href": "s3://bucket/S1A_IW_0001.zip", "type": "application/zip", "roles": ["data"]}
  }
}`

func TestDecodeFeature(t *testing.T) {
	it, err := DecodeFeature([]byte(sampleFeature))
	if err != nil {
		t.Fatalf("DecodeFeature() error: %v", err)
	}

	if it.Key() != (Key{Collection: "sentinel-1", ID: "S1A_IW_0001"}) {
		t.Errorf("Key() = %v", it.Key())
	}
	if it.BBox != (geojson.BBox{10, 40, 12, 42}) {
		t.Errorf("BBox = %v", it.BBox)
	}
	wantStart := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	if !it.Acquisition.Start.Equal(wantStart) {
		t.Errorf("Start = %v, want %v", it.Acquisition.Start, wantStart)
	}
	if !it.Acquisition.End.Equal(wantStart.Add(25 * time.Second)) {
		t.Errorf("End = %v", it.Acquisition.End)
	}
	if it.Acquisition.IsInstant() {
		t.Error("interval should not be an instant")
	}

	// acquisition keys are lifted out of the open properties, the rest keep document order
	wantKeys := []string{"platform", "sat:absolute_orbit", "sar:polarizations", "processing"}
	if got := it.Properties.Keys(); strings.Join(got, ",") != strings.Join(wantKeys, ",") {
		t.Errorf("Properties.Keys() = %v, want %v", got, wantKeys)
	}

	orbit, _ := it.Properties.Get("sat:absolute_orbit")
	if n, ok := orbit.AsNumber(); !ok || n != 54321 {
		t.Errorf("orbit = %v, %v", n, ok)
	}
	proc, _ := it.Properties.Get("processing")
	if proc.Kind() != KindObject {
		t.Fatalf("processing kind = %s", proc.Kind())
	}
	sw, _ := proc.Fields().Get("software")
	name, _ := sw.Fields().Get("name")
	if s, _ := name.AsString(); s != "ipf" {
		t.Errorf("nested name = %q", s)
	}

	if a := it.Assets["data"]; a.Type != "application/zip" || a.Href != "s3://bucket/S1A_IW_0001.zip" {
		t.Errorf("asset = %+v", a)
	}
}

func TestDecodeFeature_Defaults(t *testing.T) {
	t.Run("bbox from geometry", func(t *testing.T) {
		doc := `{"type":"Feature","id":"a","collection":"c","geometry":{"type":"Point","coordinates":[3,4]},"properties":{"datetime":"2024-01-01T00:00:00Z"}}`
		it, err := DecodeFeature([]byte(doc))
		if err != nil {
			t.Fatalf("DecodeFeature() error: %v", err)
		}
		if it.BBox != (geojson.BBox{3, 4, 3, 4}) {
			t.Errorf("BBox = %v", it.BBox)
		}
		if !it.Acquisition.IsInstant() {
			t.Error("datetime-only item should be an instant")
		}
	})

	t.Run("geometry from bbox", func(t *testing.T) {
		doc := `{"id":"a","collection":"c","bbox":[0,0,1,1],"geometry":null,"properties":{"acquisition_start_utc":"2024-01-01T00:00:00","acquisition_end_utc":"2024-01-01T00:01:00"}}`
		it, err := DecodeFeature([]byte(doc))
		if err != nil {
			t.Fatalf("DecodeFeature() error: %v", err)
		}
		if it.Geometry == nil || it.Geometry.Type != geojson.TypePolygon {
			t.Errorf("Geometry = %+v", it.Geometry)
		}
		if it.Acquisition.End.Sub(it.Acquisition.Start) != time.Minute {
			t.Errorf("interval = %+v", it.Acquisition)
		}
	})
}

func TestDecodeFeature_Invalid(t *testing.T) {
	tests := map[string]string{
		"no id":            `{"collection":"c","bbox":[0,0,1,1],"properties":{"datetime":"2024-01-01T00:00:00Z"}}`,
		"no collection":    `{"id":"a","bbox":[0,0,1,1],"properties":{"datetime":"2024-01-01T00:00:00Z"}}`,
		"no time":          `{"id":"a","collection":"c","bbox":[0,0,1,1],"properties":{}}`,
		"bad time":         `{"id":"a","collection":"c","bbox":[0,0,1,1],"properties":{"datetime":"June 1st"}}`,
		"reversed":         `{"id":"a","collection":"c","bbox":[0,0,1,1],"properties":{"start_datetime":"2024-01-02T00:00:00Z","end_datetime":"2024-01-01T00:00:00Z"}}`,
		"antimeridian":     `{"id":"a","collection":"c","bbox":[170,0,-170,1],"properties":{"datetime":"2024-01-01T00:00:00Z"}}`,
		"geometry outside": `{"id":"a","collection":"c","bbox":[0,0,1,1],"geometry":{"type":"Point","coordinates":[5,5]},"properties":{"datetime":"2024-01-01T00:00:00Z"}}`,
		"wrong type":       `{"type":"FeatureCollection","id":"a"}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeFeature([]byte(doc))
			if !errors.Is(err, ErrInvalidItem) {
				t.Errorf("DecodeFeature() error = %v, want ErrInvalidItem", err)
			}
		})
	}
}

func TestItemJSONRoundTrip(t *testing.T) {
	it, err := DecodeFeature([]byte(sampleFeature))
	if err != nil {
		t.Fatalf("DecodeFeature() error: %v", err)
	}
	data, err := json.Marshal(it)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if !strings.Contains(string(data), `"properties":{"datetime":null,"start_datetime":"2024-06-01T10:00:00Z","end_datetime":"2024-06-01T10:00:25Z","platform":"sentinel-1a"`) {
		t.Errorf("properties not in expected order: %s", data)
	}

	var back Item
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	if back.Key() != it.Key() || back.BBox != it.BBox || !back.Acquisition.End.Equal(it.Acquisition.End) {
		t.Errorf("round trip mismatch: %+v", back)
	}
	if strings.Join(back.Properties.Keys(), ",") != strings.Join(it.Properties.Keys(), ",") {
		t.Errorf("property order changed: %v", back.Properties.Keys())
	}
}

func TestPropertiesOrderAndNumbers(t *testing.T) {
	var p Properties
	if err := json.Unmarshal([]byte(`{"z":1,"a":{"y":true,"b":null},"big":12345678901234567890,"m":[1,"x"]}`), &p); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	out, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	want := `{"z":1,"a":{"y":true,"b":null},"big":12345678901234567890,"m":[1,"x"]}`
	if string(out) != want {
		t.Errorf("Marshal() = %s, want %s", out, want)
	}

	p.Set("z", String("replaced"))
	p.Delete("big")
	if got := strings.Join(p.Keys(), ","); got != "z,a,m" {
		t.Errorf("Keys() = %s", got)
	}

	m := p.Map()
	if m["z"] != "replaced" {
		t.Errorf("Map()[z] = %v", m["z"])
	}
	if arr, ok := m["m"].([]any); !ok || len(arr) != 2 {
		t.Errorf("Map()[m] = %#v", m["m"])
	}
}

func TestPropertiesRejectsNonObject(t *testing.T) {
	var p Properties
	if err := json.Unmarshal([]byte(`[1,2]`), &p); err == nil {
		t.Error("expected error for array properties")
	}
}

func TestParseTimestamp(t *testing.T) {
	valid := []string{
		"2024-06-01T00:00:00Z",
		"2024-06-01T00:00:00.123Z",
		"2024-06-01T02:00:00+02:00",
		"2024-06-01T00:00:00",
		"2024-06-01 00:00:00",
	}
	want := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, s := range valid {
		got, err := ParseTimestamp(s)
		if err != nil {
			t.Errorf("ParseTimestamp(%q) error: %v", s, err)
			continue
		}
		if got.Truncate(time.Second) != want {
			t.Errorf("ParseTimestamp(%q) = %v", s, got)
		}
	}
	for _, s := range []string{"", "yesterday", "2024-13-01T00:00:00Z", "2024/06/01"} {
		if _, err := ParseTimestamp(s); err == nil {
			t.Errorf("ParseTimestamp(%q) should fail", s)
		}
	}
}

func TestDecodeDocuments(t *testing.T) {
	f1 := `{"type":"Feature","id":"a","collection":"c","bbox":[0,0,1,1],"properties":{"datetime":"2024-01-01T00:00:00Z"}}`
	f2 := `{"type":"Feature","id":"b","collection":"c","bbox":[1,1,2,2],"properties":{"datetime":"2024-01-02T00:00:00Z"}}`
	coll := `{"type":"FeatureCollection","features":[` + f1 + `,` + f2 + `]}`

	items, err := DecodeDocuments(strings.NewReader(coll + "\n" + f1 + "\n"))
	if err != nil {
		t.Fatalf("DecodeDocuments() error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}

	if _, err := DecodeDocuments(strings.NewReader(`{"type":"Catalog"}`)); err == nil {
		t.Error("expected error for unsupported document type")
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("a.ndjson", `{"type":"Feature","id":"a","collection":"c","bbox":[0,0,1,1],"properties":{"datetime":"2024-01-01T00:00:00Z"}}`+"\n")
	write("b.geojson", `{"type":"Feature","id":"b","collection":"c","bbox":[0,0,1,1],"properties":{"datetime":"2024-01-01T00:00:00Z"}}`)
	write("notes.txt", "ignored")

	items, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error: %v", err)
	}
	if len(items) != 2 || items[0].ID != "a" || items[1].ID != "b" {
		t.Errorf("LoadDir() = %d items", len(items))
	}
}
