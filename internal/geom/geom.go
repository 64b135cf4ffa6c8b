// Package geom converts between GML geometry markup and a canonical typed
// geometry value.
//
// # Supported GML subset
//
// Open511 road events carry their geometry as a GML fragment inside a
// <geometry> wrapper. Three geometry types appear in practice:
//
//	<gml:Point srsName="urn:ogc:def:crs:EPSG::4326">
//	  <gml:pos>-73.54 45.5</gml:pos>
//	</gml:Point>
//
//	<gml:LineString>
//	  <gml:posList>-73.54 45.50 -73.55 45.51</gml:posList>
//	</gml:LineString>
//
//	<gml:Polygon>
//	  <gml:exterior><gml:LinearRing><gml:posList>...</gml:posList></gml:LinearRing></gml:exterior>
//	  <gml:interior>...</gml:interior>
//	</gml:Polygon>
//
// Coordinates are stored in source order (first value, second value) without
// reinterpreting axis conventions. The spatial reference defaults to EPSG:4326
// when no srsName attribute is present. Some publishers emit 3D positions;
// decoding with 2D forcing drops the third component of every tuple, which is
// the behavior the reconciler relies on so that stored geometry is always
// two-dimensional.
package geom

import (
	"errors"
	"strconv"
	"strings"
)

// ErrFormat reports malformed or unsupported geometry markup.
var ErrFormat = errors.New("invalid geometry markup")

// DefaultSRID is assumed when markup carries no srsName attribute.
const DefaultSRID = 4326

// Kind identifies the geometry type.
type Kind int

const (
	Point Kind = iota
	LineString
	Polygon
)

func (k Kind) String() string {
	switch k {
	case Point:
		return "Point"
	case LineString:
		return "LineString"
	case Polygon:
		return "Polygon"
	default:
		return "Unknown"
	}
}

// Coord is a single 2D position, kept in the order it appeared in the markup.
type Coord struct {
	X float64
	Y float64
}

// Geometry is the canonical spatial value stored on a road event.
// Points and LineStrings use Coords; Polygons use Rings, exterior ring first.
type Geometry struct {
	Kind   Kind
	SRID   int
	Coords []Coord
	Rings  [][]Coord
}

// Equal reports coordinate equality within tolerance. Used by tests to check
// round-trip stability without tripping over float formatting.
func (g Geometry) Equal(other Geometry, tolerance float64) bool {
	if g.Kind != other.Kind || g.SRID != other.SRID {
		return false
	}
	if !coordsEqual(g.Coords, other.Coords, tolerance) {
		return false
	}
	if len(g.Rings) != len(other.Rings) {
		return false
	}
	for i := range g.Rings {
		if !coordsEqual(g.Rings[i], other.Rings[i], tolerance) {
			return false
		}
	}
	return true
}

func coordsEqual(a, b []Coord, tol float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !near(a[i].X, b[i].X, tol) || !near(a[i].Y, b[i].Y, tol) {
			return false
		}
	}
	return true
}

func near(a, b, tol float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tol
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (c Coord) String() string {
	return formatCoord(c.X) + " " + formatCoord(c.Y)
}

func formatCoords(coords []Coord) string {
	parts := make([]string, len(coords))
	for i, c := range coords {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}
