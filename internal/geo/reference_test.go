package geo

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/reflex-cli/internal/flow"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadReference_CSV(t *testing.T) {
	path := writeFile(t, "fips2021.csv", "STATEFP,COUNTYFP,GEOID,NAME\n6,1,6001,Alameda\n02,013,02013,Aleutians East\n72,001,72001,Adjuntas\n")

	got, err := LoadReference(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []County{
		{GEOID: 6001, State: 6},
		{GEOID: 2013, State: 2},
		{GEOID: 72001, State: 72},
	}, got)
}

func TestLoadReference_CombinesWithoutGEOID(t *testing.T) {
	path := writeFile(t, "ref.csv", "STATEFP,COUNTYFP\n6,75\n")

	got, err := LoadReference(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []County{{GEOID: 6075, State: 6}}, got)
}

func TestLoadReference_MissingState(t *testing.T) {
	path := writeFile(t, "ref.csv", "GEOID,NAME\n06001,Alameda\n")

	_, err := LoadReference(context.Background(), path)
	require.Error(t, err)
	assert.True(t, flow.IsKind(err, flow.KindSchema))
}

func TestLoadReference_BadRow(t *testing.T) {
	path := writeFile(t, "ref.csv", "STATEFP,GEOID\nCA,06001\n")

	_, err := LoadReference(context.Background(), path)
	require.Error(t, err)
	assert.True(t, flow.IsKind(err, flow.KindParse))
}

func TestLoadReference_MissingFile(t *testing.T) {
	_, err := LoadReference(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	assert.True(t, flow.IsKind(err, flow.KindIO))
}

func TestLoadReference_MissingShapefile(t *testing.T) {
	_, err := LoadReference(context.Background(), filepath.Join(t.TempDir(), "tl_2021_us_county.shp"))
	require.Error(t, err)
	assert.True(t, flow.IsKind(err, flow.KindIO))
}

func TestLoadReference_XLSX(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("counties")
	require.NoError(t, err)
	for _, r := range [][]string{{"STATEFP", "COUNTYFP", "GEOID"}, {"06", "001", "06001"}, {"", "", ""}, {"15", "003", "15003"}} {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}
	path := filepath.Join(t.TempDir(), "fips.xlsx")
	require.NoError(t, f.Save(path))

	got, err := LoadReference(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []County{{GEOID: 6001, State: 6}, {GEOID: 15003, State: 15}}, got)
}
