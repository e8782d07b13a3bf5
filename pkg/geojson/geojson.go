// Package geojson provides GeoJSON geometry types and utilities.
package geojson

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Geometry types understood by this package.
const (
	TypePoint              = "Point"
	TypeMultiPoint         = "MultiPoint"
	TypeLineString         = "LineString"
	TypeMultiLineString    = "MultiLineString"
	TypePolygon            = "Polygon"
	TypeMultiPolygon       = "MultiPolygon"
	TypeGeometryCollection = "GeometryCollection"
)

// ErrNoCoordinates is returned when a geometry carries no usable position.
var ErrNoCoordinates = errors.New("geometry has no coordinates")

// Geometry represents a GeoJSON geometry object. Coordinates are kept raw so a
// geometry read from storage can be written back without loss.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates,omitempty"`
	Geometries  []*Geometry     `json:"geometries,omitempty"`
}

// BBox is a two dimensional envelope [minLon, minLat, maxLon, maxLat].
type BBox [4]float64

// MinLon returns the western edge.
func (b BBox) MinLon() float64 { return b[0] }

// MinLat returns the southern edge.
func (b BBox) MinLat() float64 { return b[1] }

// MaxLon returns the eastern edge.
func (b BBox) MaxLon() float64 { return b[2] }

// MaxLat returns the northern edge.
func (b BBox) MaxLat() float64 { return b[3] }

// Intersects reports whether b and o overlap, edges included.
func (b BBox) Intersects(o BBox) bool {
	return b[0] <= o[2] && b[2] >= o[0] && b[1] <= o[3] && b[3] >= o[1]
}

// Contains reports whether o lies entirely inside b.
func (b BBox) Contains(o BBox) bool {
	return b[0] <= o[0] && b[1] <= o[1] && b[2] >= o[2] && b[3] >= o[3]
}

// Union returns the smallest envelope covering both b and o.
func (b BBox) Union(o BBox) BBox {
	return BBox{
		math.Min(b[0], o[0]),
		math.Min(b[1], o[1]),
		math.Max(b[2], o[2]),
		math.Max(b[3], o[3]),
	}
}

// Slice returns the envelope as a slice, the shape STAC documents use.
func (b BBox) Slice() []float64 {
	return []float64{b[0], b[1], b[2], b[3]}
}

// Validate checks that the envelope is finite, inside WGS84 ranges, and not
// wrapped across the antimeridian.
func (b BBox) Validate() error {
	for i, v := range b {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("bbox value %d is not finite", i)
		}
	}
	if b[0] < -180 || b[0] > 180 || b[2] < -180 || b[2] > 180 {
		return fmt.Errorf("longitude must be between -180 and 180")
	}
	if b[1] < -90 || b[1] > 90 || b[3] < -90 || b[3] > 90 {
		return fmt.Errorf("latitude must be between -90 and 90")
	}
	if b[0] > b[2] {
		return fmt.Errorf("minLon (%g) is greater than maxLon (%g); antimeridian-crossing boxes are not supported", b[0], b[2])
	}
	if b[1] > b[3] {
		return fmt.Errorf("minLat (%g) is greater than maxLat (%g)", b[1], b[3])
	}
	return nil
}

// BBoxFromSlice converts a 4 or 6 element STAC bbox into a 2D envelope.
func BBoxFromSlice(v []float64) (BBox, error) {
	switch len(v) {
	case 4:
		return BBox{v[0], v[1], v[2], v[3]}, nil
	case 6:
		return BBox{v[0], v[1], v[3], v[4]}, nil
	default:
		return BBox{}, fmt.Errorf("bbox must have 4 or 6 values, got %d", len(v))
	}
}

// Envelope computes the bounding box of the geometry. Every geometry type,
// including nested collections, is supported.
func (g *Geometry) Envelope() (BBox, error) {
	if g == nil {
		return BBox{}, fmt.Errorf("geometry is nil")
	}

	env := BBox{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	if err := g.extend(&env); err != nil {
		return BBox{}, err
	}
	if math.IsInf(env[0], 0) {
		return BBox{}, ErrNoCoordinates
	}
	return env, nil
}

func (g *Geometry) extend(env *BBox) error {
	switch g.Type {
	case TypeGeometryCollection:
		for _, child := range g.Geometries {
			if child == nil {
				continue
			}
			if err := child.extend(env); err != nil {
				return err
			}
		}
		return nil
	case TypePoint, TypeMultiPoint, TypeLineString, TypeMultiLineString, TypePolygon, TypeMultiPolygon:
	default:
		return fmt.Errorf("unsupported geometry type: %q", g.Type)
	}

	if len(g.Coordinates) == 0 {
		return fmt.Errorf("%s has no coordinates", g.Type)
	}
	var raw any
	if err := json.Unmarshal(g.Coordinates, &raw); err != nil {
		return fmt.Errorf("failed to decode %s coordinates: %w", g.Type, err)
	}
	return walkPositions(raw, func(lon, lat float64) {
		env[0] = math.Min(env[0], lon)
		env[1] = math.Min(env[1], lat)
		env[2] = math.Max(env[2], lon)
		env[3] = math.Max(env[3], lat)
	})
}

// walkPositions visits every position in an arbitrarily nested coordinate
// array. A position is an array whose first element is a number.
func walkPositions(v any, visit func(lon, lat float64)) error {
	arr, ok := v.([]any)
	if !ok {
		return fmt.Errorf("coordinates must be arrays")
	}
	if len(arr) == 0 {
		return nil
	}
	if _, isNum := arr[0].(float64); isNum {
		if len(arr) < 2 {
			return fmt.Errorf("position needs at least 2 values, got %d", len(arr))
		}
		lon, ok1 := arr[0].(float64)
		lat, ok2 := arr[1].(float64)
		if !ok1 || !ok2 {
			return fmt.Errorf("position values must be numbers")
		}
		visit(lon, lat)
		return nil
	}
	for _, child := range arr {
		if err := walkPositions(child, visit); err != nil {
			return err
		}
	}
	return nil
}

// NewPolygonFromBBox creates a closed rectangular polygon covering bbox.
func NewPolygonFromBBox(b BBox) *Geometry {
	west, south, east, north := b[0], b[1], b[2], b[3]
	coords := [][][]float64{{
		{west, south},
		{east, south},
		{east, north},
		{west, north},
		{west, south},
	}}
	// a [][][]float64 always marshals
	data, _ := json.Marshal(coords)
	return &Geometry{Type: TypePolygon, Coordinates: data}
}

// NewGeometry builds a geometry from already decoded coordinates.
func NewGeometry(typ string, coords any) (*Geometry, error) {
	data, err := json.Marshal(coords)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s coordinates: %w", typ, err)
	}
	return &Geometry{Type: typ, Coordinates: data}, nil
}
