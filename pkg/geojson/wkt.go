package geojson

import (
	"fmt"
	"strconv"
	"strings"
)

// FromWKT parses a WKT string into a GeoJSON geometry.
// Supports POINT, MULTIPOINT, LINESTRING, MULTILINESTRING, POLYGON and
// MULTIPOLYGON. Z/M dimension tags are accepted and extra ordinates dropped.
func FromWKT(wkt string) (*Geometry, error) {
	p := &wktParser{s: strings.TrimSpace(wkt)}
	if p.s == "" {
		return nil, fmt.Errorf("empty WKT string")
	}

	tag := strings.ToUpper(p.word())
	if dim := strings.ToUpper(p.peekWord()); dim == "Z" || dim == "M" || dim == "ZM" {
		p.word()
	}
	if strings.EqualFold(p.peekWord(), "EMPTY") {
		return nil, fmt.Errorf("empty %s geometries are not supported", tag)
	}

	var (
		typ    string
		coords any
		err    error
	)
	switch tag {
	case "POINT":
		typ = TypePoint
		coords, err = p.wrapped(p.position)
	case "MULTIPOINT":
		typ = TypeMultiPoint
		coords, err = p.multiPoint()
	case "LINESTRING":
		typ = TypeLineString
		coords, err = p.positions()
	case "MULTILINESTRING":
		typ = TypeMultiLineString
		coords, err = p.list(func() (any, error) { return p.positions() })
	case "POLYGON":
		typ = TypePolygon
		coords, err = p.rings()
	case "MULTIPOLYGON":
		typ = TypeMultiPolygon
		coords, err = p.list(func() (any, error) { return p.rings() })
	case "":
		return nil, fmt.Errorf("missing WKT geometry type")
	default:
		return nil, fmt.Errorf("unsupported WKT geometry type %q", tag)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", tag, err)
	}

	p.skipSpace()
	if p.pos != len(p.s) {
		return nil, fmt.Errorf("invalid %s: unexpected trailing input at offset %d", tag, p.pos)
	}
	return NewGeometry(typ, coords)
}

type wktParser struct {
	s   string
	pos int
}

func (p *wktParser) skipSpace() {
	for p.pos < len(p.s) {
		switch p.s[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *wktParser) word() string {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			p.pos++
			continue
		}
		break
	}
	return p.s[start:p.pos]
}

func (p *wktParser) peekWord() string {
	save := p.pos
	w := p.word()
	p.pos = save
	return w
}

func (p *wktParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.s) {
		return 0
	}
	return p.s[p.pos]
}

func (p *wktParser) expect(c byte) error {
	if p.peek() != c {
		if p.pos >= len(p.s) {
			return fmt.Errorf("expected %q at end of input", c)
		}
		return fmt.Errorf("expected %q at offset %d, found %q", c, p.pos, p.s[p.pos])
	}
	p.pos++
	return nil
}

func (p *wktParser) number() (float64, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.s) && strings.IndexByte("+-.0123456789eE", p.s[p.pos]) >= 0 {
		p.pos++
	}
	if start == p.pos {
		return 0, fmt.Errorf("expected number at offset %d", start)
	}
	v, err := strconv.ParseFloat(p.s[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", p.s[start:p.pos])
	}
	return v, nil
}

// position reads "x y [z [m]]" and keeps x and y.
func (p *wktParser) position() ([]float64, error) {
	x, err := p.number()
	if err != nil {
		return nil, err
	}
	y, err := p.number()
	if err != nil {
		return nil, err
	}
	for {
		c := p.peek()
		if c == ',' || c == ')' || c == 0 {
			break
		}
		if _, err := p.number(); err != nil {
			return nil, err
		}
	}
	return []float64{x, y}, nil
}

func (p *wktParser) wrapped(fn func() ([]float64, error)) (any, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	v, err := fn()
	if err != nil {
		return nil, err
	}
	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return v, nil
}

// positions reads "(pos, pos, ...)".
func (p *wktParser) positions() ([][]float64, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	var out [][]float64
	for {
		pos, err := p.position()
		if err != nil {
			return nil, err
		}
		out = append(out, pos)
		if p.peek() != ',' {
			break
		}
		p.pos++
	}
	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *wktParser) rings() ([][][]float64, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	var out [][][]float64
	for {
		ring, err := p.positions()
		if err != nil {
			return nil, err
		}
		if len(ring) < 4 {
			return nil, fmt.Errorf("polygon ring needs at least 4 positions, got %d", len(ring))
		}
		first, last := ring[0], ring[len(ring)-1]
		if first[0] != last[0] || first[1] != last[1] {
			return nil, fmt.Errorf("polygon ring is not closed")
		}
		out = append(out, ring)
		if p.peek() != ',' {
			break
		}
		p.pos++
	}
	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return out, nil
}

// multiPoint accepts both "(1 2, 3 4)" and "((1 2), (3 4))".
func (p *wktParser) multiPoint() ([][]float64, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	var out [][]float64
	for {
		var (
			pos []float64
			err error
		)
		if p.peek() == '(' {
			var v any
			v, err = p.wrapped(p.position)
			if err == nil {
				pos = v.([]float64)
			}
		} else {
			pos, err = p.position()
		}
		if err != nil {
			return nil, err
		}
		out = append(out, pos)
		if p.peek() != ',' {
			break
		}
		p.pos++
	}
	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *wktParser) list(elem func() (any, error)) ([]any, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	var out []any
	for {
		v, err := elem()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		if p.peek() != ',' {
			break
		}
		p.pos++
	}
	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return out, nil
}
