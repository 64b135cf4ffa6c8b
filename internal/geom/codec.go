package geom

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

const gmlPrefix = "gml"

// Decode parses a GML element (gml:Point, gml:LineString, or gml:Polygon)
// into a Geometry. When force2D is set, the third component of every position
// tuple is dropped. Both operations are pure; the input element is not
// modified.
func Decode(el *etree.Element, force2D bool) (Geometry, error) {
	if el == nil {
		return Geometry{}, fmt.Errorf("%w: no geometry element", ErrFormat)
	}

	g := Geometry{SRID: DefaultSRID}
	if srs := el.SelectAttrValue("srsName", ""); srs != "" {
		srid, err := parseSRID(srs)
		if err != nil {
			return Geometry{}, err
		}
		g.SRID = srid
	}

	switch el.Tag {
	case "Point":
		coords, err := decodePositions(el, "pos", force2D)
		if err != nil {
			return Geometry{}, err
		}
		if len(coords) != 1 {
			return Geometry{}, fmt.Errorf("%w: point must hold exactly one position, got %d", ErrFormat, len(coords))
		}
		g.Kind = Point
		g.Coords = coords
	case "LineString":
		coords, err := decodePositions(el, "posList", force2D)
		if err != nil {
			return Geometry{}, err
		}
		if len(coords) < 2 {
			return Geometry{}, fmt.Errorf("%w: line string needs at least two positions, got %d", ErrFormat, len(coords))
		}
		g.Kind = LineString
		g.Coords = coords
	case "Polygon":
		rings, err := decodeRings(el, force2D)
		if err != nil {
			return Geometry{}, err
		}
		g.Kind = Polygon
		g.Rings = rings
	default:
		return Geometry{}, fmt.Errorf("%w: unsupported geometry type %q", ErrFormat, el.Tag)
	}

	return g, nil
}

// Encode renders a Geometry back into a GML element. Output from Encode
// decodes to an identical Geometry; the reconciler depends on this so the
// persisted markup is always consistent with the canonical value.
func Encode(g Geometry) *etree.Element {
	el := etree.NewElement(g.Kind.String())
	el.Space = gmlPrefix
	el.CreateAttr("srsName", fmt.Sprintf("urn:ogc:def:crs:EPSG::%d", g.SRID))

	switch g.Kind {
	case Point:
		pos := el.CreateElement("pos")
		pos.Space = gmlPrefix
		pos.SetText(formatCoords(g.Coords))
	case LineString:
		posList := el.CreateElement("posList")
		posList.Space = gmlPrefix
		posList.SetText(formatCoords(g.Coords))
	case Polygon:
		for i, ring := range g.Rings {
			boundary := "interior"
			if i == 0 {
				boundary = "exterior"
			}
			b := el.CreateElement(boundary)
			b.Space = gmlPrefix
			lr := b.CreateElement("LinearRing")
			lr.Space = gmlPrefix
			posList := lr.CreateElement("posList")
			posList.Space = gmlPrefix
			posList.SetText(formatCoords(ring))
		}
	}

	return el
}

// decodePositions reads the position child (pos or posList) of el and splits
// its text into coordinate tuples.
func decodePositions(el *etree.Element, tag string, force2D bool) ([]Coord, error) {
	child := childElement(el, tag)
	if child == nil {
		return nil, fmt.Errorf("%w: %s has no %s child", ErrFormat, el.Tag, tag)
	}
	return parsePositionText(child, force2D)
}

// decodeRings returns the polygon's rings with the exterior ring first,
// whatever order the boundaries appeared in.
func decodeRings(polygon *etree.Element, force2D bool) ([][]Coord, error) {
	var exterior []Coord
	var interiors [][]Coord
	for _, boundary := range polygon.ChildElements() {
		if boundary.Tag != "exterior" && boundary.Tag != "interior" {
			continue
		}
		lr := childElement(boundary, "LinearRing")
		if lr == nil {
			return nil, fmt.Errorf("%w: polygon %s has no LinearRing", ErrFormat, boundary.Tag)
		}
		ring, err := decodePositions(lr, "posList", force2D)
		if err != nil {
			return nil, err
		}
		if len(ring) < 3 {
			return nil, fmt.Errorf("%w: ring needs at least three positions, got %d", ErrFormat, len(ring))
		}
		if boundary.Tag == "exterior" {
			if exterior != nil {
				return nil, fmt.Errorf("%w: polygon has multiple exterior rings", ErrFormat)
			}
			exterior = ring
		} else {
			interiors = append(interiors, ring)
		}
	}
	if exterior == nil {
		return nil, fmt.Errorf("%w: polygon has no exterior ring", ErrFormat)
	}
	return append([][]Coord{exterior}, interiors...), nil
}

// parsePositionText splits whitespace-separated coordinate values into
// tuples. GML declares tuple width via srsDimension; absent that, two is
// assumed unless the value count is divisible by three and not by two.
func parsePositionText(el *etree.Element, force2D bool) ([]Coord, error) {
	fields := strings.Fields(el.Text())
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty coordinate list", ErrFormat)
	}

	values := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad coordinate %q", ErrFormat, f)
		}
		values[i] = v
	}

	dim := 2
	if d := el.SelectAttrValue("srsDimension", ""); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil || n < 2 || n > 3 {
			return nil, fmt.Errorf("%w: bad srsDimension %q", ErrFormat, d)
		}
		dim = n
	} else if len(values)%2 != 0 && len(values)%3 == 0 {
		dim = 3
	}

	if len(values)%dim != 0 {
		return nil, fmt.Errorf("%w: %d values do not divide into %dD tuples", ErrFormat, len(values), dim)
	}
	if dim == 3 && !force2D {
		return nil, fmt.Errorf("%w: 3D coordinates require 2D forcing", ErrFormat)
	}

	coords := make([]Coord, 0, len(values)/dim)
	for i := 0; i < len(values); i += dim {
		coords = append(coords, Coord{X: values[i], Y: values[i+1]})
	}
	return coords, nil
}

// parseSRID extracts the numeric EPSG code from an srsName value, accepting
// both "EPSG:4326" and "urn:ogc:def:crs:EPSG::4326" forms.
func parseSRID(srsName string) (int, error) {
	idx := strings.LastIndex(srsName, ":")
	if idx < 0 || idx == len(srsName)-1 {
		return 0, fmt.Errorf("%w: bad srsName %q", ErrFormat, srsName)
	}
	srid, err := strconv.Atoi(srsName[idx+1:])
	if err != nil {
		return 0, fmt.Errorf("%w: bad srsName %q", ErrFormat, srsName)
	}
	return srid, nil
}

// childElement finds the first direct child with the given local tag name,
// ignoring any namespace prefix.
func childElement(el *etree.Element, tag string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag == tag {
			return child
		}
	}
	return nil
}
