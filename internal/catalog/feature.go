package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rkm/stac-catalog/pkg/geojson"
)

// Property keys carrying the acquisition interval.
const (
	PropDatetime      = "datetime"
	PropStartDatetime = "start_datetime"
	PropEndDatetime   = "end_datetime"

	// column names used by older ingest feeds
	propLegacyStart = "acquisition_start_utc"
	propLegacyEnd   = "acquisition_end_utc"
)

var timeKeys = []string{PropDatetime, PropStartDatetime, PropEndDatetime, propLegacyStart, propLegacyEnd}

// timestampLayouts lists accepted ISO-8601 forms. Layouts without a zone are
// read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses an ISO-8601 date-time and returns it in UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q, expected ISO-8601 such as 2024-06-01T00:00:00Z", s)
}

// FormatTimestamp renders t the way item documents carry it.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

type featureDoc struct {
	Type       string              `json:"type"`
	ID         string              `json:"id"`
	Collection string              `json:"collection,omitempty"`
	BBox       []float64           `json:"bbox,omitempty"`
	Geometry   *geojson.Geometry   `json:"geometry"`
	Properties Properties          `json:"properties"`
	Assets     map[string]AssetRef `json:"assets,omitempty"`
}

// DecodeFeature reads a STAC item (GeoJSON Feature) document. A missing bbox
// is derived from the geometry and a missing geometry from the bbox. The
// result is validated.
func DecodeFeature(data []byte) (*Item, error) {
	var doc featureDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidItem, err)
	}
	if doc.Type != "" && doc.Type != "Feature" {
		return nil, fmt.Errorf("%w: expected type Feature, got %q", ErrInvalidItem, doc.Type)
	}

	it := &Item{
		ID:         doc.ID,
		Collection: doc.Collection,
		Geometry:   doc.Geometry,
		Assets:     doc.Assets,
	}

	switch {
	case len(doc.BBox) > 0:
		b, err := geojson.BBoxFromSlice(doc.BBox)
		if err != nil {
			return nil, fmt.Errorf("%w: item %q: %v", ErrInvalidItem, doc.ID, err)
		}
		it.BBox = b
	case doc.Geometry != nil:
		env, err := doc.Geometry.Envelope()
		if err != nil {
			return nil, fmt.Errorf("%w: item %q geometry: %v", ErrInvalidItem, doc.ID, err)
		}
		it.BBox = env
	default:
		return nil, fmt.Errorf("%w: item %q has neither bbox nor geometry", ErrInvalidItem, doc.ID)
	}
	if it.Geometry == nil {
		it.Geometry = geojson.NewPolygonFromBBox(it.BBox)
	}

	iv, err := acquisitionFrom(doc.Properties)
	if err != nil {
		return nil, fmt.Errorf("%w: item %q: %v", ErrInvalidItem, doc.ID, err)
	}
	it.Acquisition = iv

	props := doc.Properties.Clone()
	for _, k := range timeKeys {
		props.Delete(k)
	}
	it.Properties = props

	if err := it.Validate(); err != nil {
		return nil, err
	}
	return it, nil
}

func acquisitionFrom(p Properties) (Interval, error) {
	start, err := timeProp(p, PropStartDatetime, propLegacyStart)
	if err != nil {
		return Interval{}, err
	}
	end, err := timeProp(p, PropEndDatetime, propLegacyEnd)
	if err != nil {
		return Interval{}, err
	}
	dt, err := timeProp(p, PropDatetime)
	if err != nil {
		return Interval{}, err
	}

	if start == nil {
		start = dt
	}
	if start == nil {
		return Interval{}, fmt.Errorf("properties must carry datetime or start_datetime")
	}
	if end == nil {
		end = start
	}
	return Interval{Start: *start, End: *end}, nil
}

// timeProp returns the first of keys that is present and non-null.
func timeProp(p Properties, keys ...string) (*time.Time, error) {
	for _, k := range keys {
		v, ok := p.Get(k)
		if !ok || v.Kind() == KindNull {
			continue
		}
		s, ok := v.AsString()
		if !ok {
			return nil, fmt.Errorf("property %s must be a string", k)
		}
		t, err := ParseTimestamp(s)
		if err != nil {
			return nil, fmt.Errorf("property %s: %w", k, err)
		}
		return &t, nil
	}
	return nil, nil
}

// AcquisitionProperties returns the item's properties with the acquisition
// fields first: datetime (null for ranges), start_datetime and end_datetime.
func (it *Item) AcquisitionProperties() Properties {
	out := make(Properties, 0, len(it.Properties)+3)
	if it.Acquisition.IsInstant() {
		out = append(out, Property{Key: PropDatetime, Value: String(FormatTimestamp(it.Acquisition.Start))})
	} else {
		out = append(out, Property{Key: PropDatetime, Value: Null()})
	}
	out = append(out,
		Property{Key: PropStartDatetime, Value: String(FormatTimestamp(it.Acquisition.Start))},
		Property{Key: PropEndDatetime, Value: String(FormatTimestamp(it.Acquisition.End))},
	)
	return append(out, it.Properties...)
}

// MarshalJSON encodes the item as a GeoJSON Feature document that
// DecodeFeature reads back.
func (it *Item) MarshalJSON() ([]byte, error) {
	doc := featureDoc{
		Type:       "Feature",
		ID:         it.ID,
		Collection: it.Collection,
		BBox:       it.BBox.Slice(),
		Geometry:   it.Geometry,
		Properties: it.AcquisitionProperties(),
		Assets:     it.Assets,
	}
	return json.Marshal(doc)
}

// UnmarshalJSON decodes and validates a Feature document.
func (it *Item) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeFeature(data)
	if err != nil {
		return err
	}
	*it = *decoded
	return nil
}
