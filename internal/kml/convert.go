// Package kml converts KML placemarks into road-event elements, for bulk
// importing municipal roadwork feeds published as KML.
package kml

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/couchcryptid/open511-exchange/internal/geom"
	"github.com/couchcryptid/open511-exchange/internal/xmldoc"
)

// Converter turns KML placemarks into event elements. Identifiers are
// content-derived, so each conversion run carries its own collision table;
// two runs over the same input produce the same identifiers.
type Converter struct {
	lang string
	seen map[string]int
}

// NewConverter creates a converter that stamps lang on every produced event.
func NewConverter(lang string) *Converter {
	return &Converter{
		lang: lang,
		seen: make(map[string]int),
	}
}

// Convert walks the KML tree and converts every Placemark with a supported
// geometry into an event element.
func (c *Converter) Convert(root *etree.Element) ([]*etree.Element, error) {
	if root == nil {
		return nil, fmt.Errorf("%w: empty KML document", xmldoc.ErrMalformed)
	}
	var events []*etree.Element
	var walk func(el *etree.Element) error
	walk = func(el *etree.Element) error {
		if el.Tag == "Placemark" {
			ev, err := c.convertPlacemark(el)
			if err != nil {
				return err
			}
			events = append(events, ev)
			return nil
		}
		for _, child := range el.ChildElements() {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *Converter) convertPlacemark(pm *etree.Element) (*etree.Element, error) {
	g, err := placemarkGeometry(pm)
	if err != nil {
		return nil, err
	}

	ev := etree.NewElement("event")
	xmldoc.SetLang(ev, c.lang)
	ev.CreateAttr("id", c.assignID(g))

	if name := xmldoc.ChildElement(pm, "name"); name != nil {
		if text := strings.TrimSpace(name.Text()); text != "" {
			headline := ev.CreateElement("headline")
			headline.SetText(text)
		}
	}
	if desc := xmldoc.ChildElement(pm, "description"); desc != nil {
		if text := strings.TrimSpace(desc.Text()); text != "" {
			description := ev.CreateElement("description")
			description.SetText(text)
		}
	}

	wrapper := ev.CreateElement("geometry")
	wrapper.AddChild(geom.Encode(g))
	return ev, nil
}

// assignID derives a stable identifier from the geometry. Placemarks with
// identical geometry get a per-run ordinal suffix, second occurrence onward.
func (c *Converter) assignID(g geom.Geometry) string {
	sum := sha256.Sum256([]byte(geometryFingerprint(g)))
	id := hex.EncodeToString(sum[:8])

	c.seen[id]++
	if n := c.seen[id]; n > 1 {
		return id + "-" + strconv.Itoa(n)
	}
	return id
}

func geometryFingerprint(g geom.Geometry) string {
	var b strings.Builder
	b.WriteString(g.Kind.String())
	writeCoords := func(coords []geom.Coord) {
		for _, c := range coords {
			fmt.Fprintf(&b, " %s,%s",
				strconv.FormatFloat(c.X, 'f', -1, 64),
				strconv.FormatFloat(c.Y, 'f', -1, 64))
		}
	}
	writeCoords(g.Coords)
	for _, ring := range g.Rings {
		b.WriteString(";")
		writeCoords(ring)
	}
	return b.String()
}

// placemarkGeometry finds the placemark's geometry element and decodes it.
func placemarkGeometry(pm *etree.Element) (geom.Geometry, error) {
	if pt := xmldoc.ChildElement(pm, "Point"); pt != nil {
		coords, err := parseCoordinates(pt)
		if err != nil {
			return geom.Geometry{}, err
		}
		if len(coords) != 1 {
			return geom.Geometry{}, fmt.Errorf("%w: Point needs exactly one coordinate, got %d", geom.ErrFormat, len(coords))
		}
		return geom.Geometry{Kind: geom.Point, SRID: geom.DefaultSRID, Coords: coords}, nil
	}
	if ls := xmldoc.ChildElement(pm, "LineString"); ls != nil {
		coords, err := parseCoordinates(ls)
		if err != nil {
			return geom.Geometry{}, err
		}
		if len(coords) < 2 {
			return geom.Geometry{}, fmt.Errorf("%w: LineString needs at least two coordinates, got %d", geom.ErrFormat, len(coords))
		}
		return geom.Geometry{Kind: geom.LineString, SRID: geom.DefaultSRID, Coords: coords}, nil
	}
	if poly := xmldoc.ChildElement(pm, "Polygon"); poly != nil {
		return polygonGeometry(poly)
	}
	return geom.Geometry{}, fmt.Errorf("%w: placemark has no supported geometry", geom.ErrFormat)
}

func polygonGeometry(poly *etree.Element) (geom.Geometry, error) {
	outer := xmldoc.ChildElement(poly, "outerBoundaryIs")
	if outer == nil {
		return geom.Geometry{}, fmt.Errorf("%w: Polygon has no outer boundary", geom.ErrFormat)
	}
	rings := [][]geom.Coord{}

	ring, err := boundaryRing(outer)
	if err != nil {
		return geom.Geometry{}, err
	}
	rings = append(rings, ring)

	for _, inner := range xmldoc.ChildElements(poly, "innerBoundaryIs") {
		ring, err := boundaryRing(inner)
		if err != nil {
			return geom.Geometry{}, err
		}
		rings = append(rings, ring)
	}
	return geom.Geometry{Kind: geom.Polygon, SRID: geom.DefaultSRID, Rings: rings}, nil
}

func boundaryRing(boundary *etree.Element) ([]geom.Coord, error) {
	lr := xmldoc.ChildElement(boundary, "LinearRing")
	if lr == nil {
		return nil, fmt.Errorf("%w: polygon boundary has no LinearRing", geom.ErrFormat)
	}
	coords, err := parseCoordinates(lr)
	if err != nil {
		return nil, err
	}
	if len(coords) < 3 {
		return nil, fmt.Errorf("%w: ring needs at least three coordinates, got %d", geom.ErrFormat, len(coords))
	}
	return coords, nil
}

// parseCoordinates reads a KML coordinates child: whitespace-separated
// lon,lat or lon,lat,alt tuples. Altitude is dropped.
func parseCoordinates(parent *etree.Element) ([]geom.Coord, error) {
	el := xmldoc.ChildElement(parent, "coordinates")
	if el == nil {
		return nil, fmt.Errorf("%w: missing coordinates element", geom.ErrFormat)
	}

	var coords []geom.Coord
	for _, tuple := range strings.Fields(el.Text()) {
		parts := strings.Split(tuple, ",")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("%w: bad coordinate tuple %q", geom.ErrFormat, tuple)
		}
		lon, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad longitude %q", geom.ErrFormat, parts[0])
		}
		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad latitude %q", geom.ErrFormat, parts[1])
		}
		coords = append(coords, geom.Coord{X: lon, Y: lat})
	}
	if len(coords) == 0 {
		return nil, fmt.Errorf("%w: empty coordinates element", geom.ErrFormat)
	}
	return coords, nil
}
