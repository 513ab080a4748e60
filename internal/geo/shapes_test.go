package geo

import (
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/reflex-cli/internal/flow"
)

func TestTIGERCountyURL(t *testing.T) {
	assert.Equal(t,
		"https://www2.census.gov/geo/tiger/TIGER2021/COUNTY/tl_2021_us_county.zip",
		TIGERCountyURL(2021))
}

func TestEncodeEWKB_Polygon(t *testing.T) {
	pl := shp.Polygon(*shp.NewPolyLine([][]shp.Point{
		{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}, {X: 0, Y: 0}},
		{{X: 5, Y: 5}, {X: 5, Y: 6}, {X: 6, Y: 6}, {X: 5, Y: 5}},
	}))

	data, err := EncodeEWKB(&pl)
	require.NoError(t, err)

	g, err := ewkb.Unmarshal(data)
	require.NoError(t, err)
	mp, ok := g.(*geom.MultiPolygon)
	require.True(t, ok)
	assert.Equal(t, 2, mp.NumPolygons())
	assert.Equal(t, nad83, mp.SRID())
}

func TestEncodeEWKB_Point(t *testing.T) {
	data, err := EncodeEWKB(&shp.Point{X: -122.2, Y: 37.8})
	require.NoError(t, err)

	g, err := ewkb.Unmarshal(data)
	require.NoError(t, err)
	pt, ok := g.(*geom.Point)
	require.True(t, ok)
	assert.InDelta(t, -122.2, pt.X(), 1e-9)
}

func TestEncodeEWKB_Unsupported(t *testing.T) {
	data, err := EncodeEWKB(nil)
	require.NoError(t, err)
	assert.Nil(t, data)

	data, err = EncodeEWKB(&shp.Polygon{})
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestLoadShapes(t *testing.T) {
	parts := writeCountyShapefile(t, t.TempDir())

	shapes, err := LoadShapes(parts[0])
	require.NoError(t, err)
	require.Len(t, shapes, 2)
	assert.Equal(t, County{GEOID: 6001, State: 6}, shapes[0].County)
	assert.Equal(t, "Alameda", shapes[0].Name)

	g, err := ewkb.Unmarshal(shapes[0].Geometry)
	require.NoError(t, err)
	assert.IsType(t, &geom.MultiPolygon{}, g)
}

func TestLoadShapes_Missing(t *testing.T) {
	_, err := LoadShapes(filepath.Join(t.TempDir(), "none.shp"))
	require.Error(t, err)
	assert.True(t, flow.IsKind(err, flow.KindIO))
}
