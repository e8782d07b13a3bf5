package geojson

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestEnvelope(t *testing.T) {
	tests := []struct {
		name   string
		geom   string
		want   BBox
		hasErr bool
	}{
		{
			name: "point",
			geom: `{"type":"Point","coordinates":[-122.4,37.8]}`,
			want: BBox{-122.4, 37.8, -122.4, 37.8},
		},
		{
			name: "polygon",
			geom: `{"type":"Polygon","coordinates":[[[0,0],[2,0],[2,1],[0,1],[0,0]]]}`,
			want: BBox{0, 0, 2, 1},
		},
		{
			name: "multipolygon",
			geom: `{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,0]]],[[[5,-3],[6,-3],[6,4],[5,-3]]]]}`,
			want: BBox{0, -3, 6, 4},
		},
		{
			name: "linestring with z",
			geom: `{"type":"LineString","coordinates":[[1,2,100],[3,-4,200]]}`,
			want: BBox{1, -4, 3, 2},
		},
		{
			name: "geometry collection",
			geom: `{"type":"GeometryCollection","geometries":[{"type":"Point","coordinates":[10,10]},{"type":"Point","coordinates":[-10,-5]}]}`,
			want: BBox{-10, -5, 10, 10},
		},
		{
			name:   "unknown type",
			geom:   `{"type":"Circle","coordinates":[0,0]}`,
			hasErr: true,
		},
		{
			name:   "short position",
			geom:   `{"type":"Point","coordinates":[1]}`,
			hasErr: true,
		},
		{
			name:   "missing coordinates",
			geom:   `{"type":"Polygon"}`,
			hasErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var g Geometry
			if err := json.Unmarshal([]byte(tt.geom), &g); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			got, err := g.Envelope()
			if tt.hasErr {
				if err == nil {
					t.Errorf("Envelope() = %v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Envelope() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Envelope() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEnvelope_EmptyCollection(t *testing.T) {
	g := &Geometry{Type: TypeGeometryCollection}
	if _, err := g.Envelope(); !errors.Is(err, ErrNoCoordinates) {
		t.Errorf("Envelope() error = %v, want ErrNoCoordinates", err)
	}
}

func TestBBoxIntersects(t *testing.T) {
	a := BBox{0, 0, 1, 1}
	tests := []struct {
		name string
		b    BBox
		want bool
	}{
		{"overlap", BBox{0.5, 0.5, 2, 2}, true},
		{"touching edge", BBox{1, 0, 2, 1}, true},
		{"touching corner", BBox{1, 1, 2, 2}, true},
		{"disjoint", BBox{5, 5, 6, 6}, false},
		{"contained", BBox{0.2, 0.2, 0.3, 0.3}, true},
		{"disjoint in lat only", BBox{0, 1.01, 1, 2}, false},
	}
	for _, tt := range tests {
		if got := a.Intersects(tt.b); got != tt.want {
			t.Errorf("%s: Intersects(%v) = %v, want %v", tt.name, tt.b, got, tt.want)
		}
		if got := tt.b.Intersects(a); got != tt.want {
			t.Errorf("%s: Intersects is not symmetric", tt.name)
		}
	}
}

func TestBBoxValidate(t *testing.T) {
	tests := []struct {
		name    string
		b       BBox
		wantErr string
	}{
		{"valid", BBox{-10, -10, 10, 10}, ""},
		{"degenerate point", BBox{3, 3, 3, 3}, ""},
		{"antimeridian", BBox{170, -10, -170, 10}, "antimeridian"},
		{"lat order", BBox{0, 10, 1, 0}, "minLat"},
		{"lon range", BBox{-181, 0, 0, 1}, "longitude"},
		{"lat range", BBox{0, 0, 1, 91}, "latitude"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.b.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestBBoxFromSlice(t *testing.T) {
	b, err := BBoxFromSlice([]float64{1, 2, 0, 3, 4, 100})
	if err != nil {
		t.Fatalf("BBoxFromSlice() error: %v", err)
	}
	if b != (BBox{1, 2, 3, 4}) {
		t.Errorf("BBoxFromSlice() = %v", b)
	}
	if _, err := BBoxFromSlice([]float64{1, 2, 3}); err == nil {
		t.Error("expected error for 3 values")
	}
}

func TestNewPolygonFromBBox(t *testing.T) {
	b := BBox{-1, -2, 3, 4}
	g := NewPolygonFromBBox(b)
	if g.Type != TypePolygon {
		t.Fatalf("Type = %s", g.Type)
	}
	env, err := g.Envelope()
	if err != nil {
		t.Fatalf("Envelope() error: %v", err)
	}
	if env != b {
		t.Errorf("round trip envelope = %v, want %v", env, b)
	}
}

func TestUnion(t *testing.T) {
	got := BBox{0, 0, 1, 1}.Union(BBox{-1, 0.5, 0.5, 3})
	if got != (BBox{-1, 0, 1, 3}) {
		t.Errorf("Union() = %v", got)
	}
}
