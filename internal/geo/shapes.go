package geo

import (
	"fmt"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/reflex-cli/internal/flow"
)

// ColName is the TIGER county name attribute.
const ColName = "NAME"

// Shape is a county with its name and boundary, as published in the TIGER
// county shapefile. Geometry is EWKB with SRID 4269 (NAD83), nil when the
// source has no boundary.
type Shape struct {
	County
	Name     string
	Geometry []byte
}

// TIGERCountyURL returns the Census download URL of the national county
// shapefile for a TIGER vintage.
func TIGERCountyURL(year int) string {
	return fmt.Sprintf("https://www2.census.gov/geo/tiger/TIGER%d/COUNTY/tl_%d_us_county.zip", year, year)
}

// LoadShapes reads counties with their boundaries from a TIGER county
// shapefile. Rows without a shape keep a nil geometry.
func LoadShapes(path string) ([]Shape, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, flow.NewIOError(path, eris.Wrapf(err, "geo: open shapefile %s", path))
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	header := make([]string, len(fields))
	for i, f := range fields {
		header[i] = strings.TrimRight(f.String(), "\x00")
	}
	cols, err := referenceColumns(header)
	if err != nil {
		return nil, flow.NewSchemaError(path, err)
	}
	attr := func(name string) string {
		idx, ok := cols[strings.ToLower(name)]
		if !ok {
			return ""
		}
		return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
	}

	var shapes []Shape
	for reader.Next() {
		_, s := reader.Shape()
		c, err := parseCounty(attr(ColGEOID), attr(ColStateFP), attr(ColCountyFP))
		if err != nil {
			return nil, flow.NewParseError(path, err)
		}
		g, err := EncodeEWKB(s)
		if err != nil {
			return nil, flow.NewParseError(path, eris.Wrapf(err, "geo: county %05d", c.GEOID))
		}
		shapes = append(shapes, Shape{County: c, Name: attr(ColName), Geometry: g})
	}
	return shapes, nil
}

// EncodeEWKB converts a shapefile geometry to EWKB. Polygons become
// multipolygons; unsupported or empty shapes encode to nil.
func EncodeEWKB(shape shp.Shape) ([]byte, error) {
	var g geom.T
	switch s := shape.(type) {
	case *shp.Point:
		g = geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(nad83)
	case *shp.Polygon:
		if mp := multiPolygon(s); mp != nil {
			g = mp
		}
	}
	if g == nil {
		return nil, nil
	}

	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode EWKB")
	}
	return data, nil
}

// nad83 is the SRID of TIGER/Line geometries.
const nad83 = 4269

// multiPolygon turns each ring of a shapefile polygon into its own polygon.
func multiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(nad83)
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		flat := make([]float64, 0, 2*(end-start))
		for _, pt := range p.Points[start:end] {
			flat = append(flat, pt.X, pt.Y)
		}

		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(geom.NewLinearRingFlat(geom.XY, flat)); err != nil {
			zap.L().Debug("geo: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("geo: skipping malformed polygon", zap.Int32("part", i), zap.Error(err))
			continue
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
