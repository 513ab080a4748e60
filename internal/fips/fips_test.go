package fips

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeState(t *testing.T) {
	assert.Equal(t, "06", NormalizeState("6"))
	assert.Equal(t, "06", NormalizeState("06"))
	assert.Equal(t, "36", NormalizeState("36"))
	assert.Equal(t, "", NormalizeState(""))
}

func TestNormalizeCounty(t *testing.T) {
	assert.Equal(t, "001", NormalizeCounty("1"))
	assert.Equal(t, "037", NormalizeCounty("37"))
	assert.Equal(t, "037", NormalizeCounty("037"))
	assert.Equal(t, "", NormalizeCounty(""))
}

func TestCombine(t *testing.T) {
	assert.Equal(t, "06037", Combine("6", "37"))
	assert.Equal(t, "36061", Combine("36", "061"))
	assert.Equal(t, "", Combine("", "037"))
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "06", Format(6, 2))
	assert.Equal(t, "037", Format(37, 3))
	assert.Equal(t, "06037", Format(6037, 5))
	assert.Equal(t, "06001", PadCounty(6001))
}

func TestStateOf(t *testing.T) {
	assert.Equal(t, 6, StateOf(6001))
	assert.Equal(t, 72, StateOf(72001))
	assert.Equal(t, 2, StateOf(2013))
}

func TestParseCounty(t *testing.T) {
	v, err := ParseCounty("06001")
	require.NoError(t, err)
	assert.Equal(t, 6001, v)

	v, err = ParseCounty(" 6001 ")
	require.NoError(t, err)
	assert.Equal(t, 6001, v)

	for _, bad := range []string{"", "060010", "abc", "00000"} {
		_, err := ParseCounty(bad)
		assert.Error(t, err, "input: %q", bad)
	}
}

func TestParseState(t *testing.T) {
	v, err := ParseState("06")
	require.NoError(t, err)
	assert.Equal(t, 6, v)

	for _, bad := range []string{"", "x", "0", "100"} {
		_, err := ParseState(bad)
		assert.Error(t, err, "input: %q", bad)
	}
}

func TestTerritoryAndNoncontiguous(t *testing.T) {
	assert.True(t, IsTerritory(60))
	assert.True(t, IsTerritory(72))
	assert.False(t, IsTerritory(56))
	assert.True(t, IsNoncontiguous(2))
	assert.True(t, IsNoncontiguous(15))
	assert.False(t, IsNoncontiguous(6))
}
