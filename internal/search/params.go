package search

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/rkm/stac-catalog/pkg/geojson"
)

// Query parameter names.
const (
	ParamCollectionID = "collectionId"
	ParamCollections  = "collections"
	ParamBBox         = "bbox"
	ParamCoordinates  = "coordinates"
	ParamStartTime    = "start_time"
	ParamStopTime     = "stop_time"
	ParamDatetime     = "datetime"
	ParamLimit        = "limit"
	ParamOffset       = "offset"
	ParamCursor       = "cursor"
)

// Limits bounds the page size of one endpoint.
type Limits struct {
	Default int
	Max     int
}

// Request is a validated search or item listing request.
type Request struct {
	Query  Query
	Limit  int
	Offset int
	Cursor *Cursor
}

// PageRequest returns the page selection. A cursor wins over offset.
func (r *Request) PageRequest() PageRequest {
	pr := PageRequest{Limit: r.Limit, Offset: r.Offset}
	if r.Cursor != nil {
		pr.Offset = r.Cursor.Offset
		pr.After = r.Cursor.After()
	}
	return pr
}

// ParseParams validates query parameters. Collection filters are read from
// collectionId and collections; item listing callers replace them with the
// path collection afterwards. Errors are always *ValidationError.
func ParseParams(values url.Values, limits Limits) (*Request, error) {
	req := &Request{Limit: limits.Default}

	req.Query.Collections = parseCollections(values)

	bbox, err := parseSpatial(values)
	if err != nil {
		return nil, err
	}
	req.Query.BBox = bbox

	window, err := parseTemporal(values)
	if err != nil {
		return nil, err
	}
	req.Query.Window = window

	if s := values.Get(ParamLimit); s != "" {
		limit, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil, invalid(ParamLimit, "limit must be an integer, got %q", s)
		}
		if limit < 1 {
			return nil, invalid(ParamLimit, "limit must be at least 1, got %d", limit)
		}
		req.Limit = min(limit, limits.Max)
	}

	if s := values.Get(ParamOffset); s != "" {
		offset, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil, invalid(ParamOffset, "offset must be an integer, got %q", s)
		}
		if offset < 0 {
			return nil, invalid(ParamOffset, "offset must not be negative, got %d", offset)
		}
		req.Offset = offset
	}

	if s := values.Get(ParamCursor); s != "" {
		c, err := DecodeCursor(s)
		if err != nil {
			return nil, err
		}
		req.Cursor = c
	}
	return req, nil
}

// parseCollections merges collectionId and collections. Empty entries,
// including an empty parameter, are ignored.
func parseCollections(values url.Values) []string {
	var out []string
	seen := map[string]bool{}
	for _, param := range []string{ParamCollectionID, ParamCollections} {
		for _, c := range strings.Split(values.Get(param), ",") {
			c = strings.TrimSpace(c)
			if c == "" || seen[c] {
				continue
			}
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func parseSpatial(values url.Values) (*geojson.BBox, error) {
	rawBBox := strings.TrimSpace(values.Get(ParamBBox))
	rawWKT := strings.TrimSpace(values.Get(ParamCoordinates))
	if rawBBox != "" && rawWKT != "" {
		return nil, invalid(ParamBBox, "bbox and coordinates cannot be combined")
	}

	var (
		box   geojson.BBox
		param string
	)
	switch {
	case rawBBox != "":
		param = ParamBBox
		parts := strings.Split(rawBBox, ",")
		if len(parts) != 4 && len(parts) != 6 {
			return nil, malformed(param, "bbox must have 4 or 6 coordinates, got %d", len(parts))
		}
		nums := make([]float64, len(parts))
		for i, part := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
			if err != nil {
				return nil, malformed(param, "coordinate %d (%q) is not a number", i, part)
			}
			nums[i] = v
		}
		// length checked above
		box, _ = geojson.BBoxFromSlice(nums)
	case rawWKT != "":
		param = ParamCoordinates
		g, err := geojson.FromWKT(rawWKT)
		if err != nil {
			return nil, malformed(param, "%v", err)
		}
		env, err := g.Envelope()
		if err != nil {
			return nil, malformed(param, "%v", err)
		}
		box = env
	default:
		return nil, nil
	}

	if err := box.Validate(); err != nil {
		return nil, invalid(param, "%v", err)
	}
	return &box, nil
}

func parseTemporal(values url.Values) (Window, error) {
	start := strings.TrimSpace(values.Get(ParamStartTime))
	stop := strings.TrimSpace(values.Get(ParamStopTime))
	dt := strings.TrimSpace(values.Get(ParamDatetime))

	if dt != "" {
		if start != "" || stop != "" {
			return Window{}, invalid(ParamDatetime, "datetime cannot be combined with start_time or stop_time")
		}
		return ParseDatetime(dt)
	}
	return ParseWindow(start, stop)
}
