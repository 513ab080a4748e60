package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func count(n int64) *int64 { return &n }

func TestParseVisitMap_JSON(t *testing.T) {
	m, err := ParseVisitMap(`{"010010201001": 12, "CA:59150004": 3}`)
	require.NoError(t, err)
	require.Len(t, m, 2)
	assert.Equal(t, int64(12), *m["010010201001"])
	assert.Equal(t, int64(3), *m["CA:59150004"])
}

func TestParseVisitMap_SingleQuotedLiteral(t *testing.T) {
	m, err := ParseVisitMap(`{'060750001001': 4, '060750002002': None}`)
	require.NoError(t, err)
	require.Len(t, m, 2)
	assert.Equal(t, int64(4), *m["060750001001"])
	assert.Nil(t, m["060750002002"])
}

func TestParseVisitMap_TrailingComma(t *testing.T) {
	m, err := ParseVisitMap(`{'060750001001': 10, '060750002002': 3,}`)
	require.NoError(t, err)
	require.Len(t, m, 2)
	assert.Equal(t, int64(10), *m["060750001001"])
	assert.Equal(t, int64(3), *m["060750002002"])
}

func TestParseVisitMap_LargestCount(t *testing.T) {
	m, err := ParseVisitMap(`{"060750001001": 4611686018427387904}`)
	require.NoError(t, err)
	assert.Equal(t, int64(1<<62), *m["060750001001"])
}

func TestParseVisitMap_IntegralFloat(t *testing.T) {
	m, err := ParseVisitMap(`{"060750001001": 7.0}`)
	require.NoError(t, err)
	assert.Equal(t, int64(7), *m["060750001001"])
}

func TestParseVisitMap_Empty(t *testing.T) {
	for _, s := range []string{"", "  ", "{}"} {
		m, err := ParseVisitMap(s)
		require.NoError(t, err, "input: %q", s)
		assert.Empty(t, m)
	}
}

func TestParseVisitMap_Malformed(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"truncated", `{"060750001001": 4`},
		{"array", `[1, 2, 3]`},
		{"string count", `{"060750001001": "four"}`},
		{"fractional count", `{"060750001001": 2.5}`},
		{"negative count", `{"060850001001": -4}`},
		{"count overflows int64", `{"060750001001": 1e19}`},
		{"count at 2^63", `{"060750001001": 9223372036854775808}`},
		{"infinite count", `{"060750001001": 1e400}`},
		{"garbage", `not a map`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseVisitMap(tt.in)
			assert.Error(t, err)
		})
	}
}

func TestIsForeignOrigin(t *testing.T) {
	tests := []struct {
		id      string
		foreign bool
	}{
		{"060750001001", false},
		{"CA:59150004", true},
		{"ca:59150004", true},
		{"MEX:0901", true},
		{"", true},
		{"   ", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.foreign, IsForeignOrigin(tt.id), "id: %q", tt.id)
	}
}

func TestParseCBG(t *testing.T) {
	tests := []struct {
		id   string
		want int64
		err  bool
	}{
		{"060010001001", 60010001001, false},
		{"60010001001", 60010001001, false},
		{"360610001001", 360610001001, false},
		{" 360610001001 ", 360610001001, false},
		{"06001", 0, true},
		{"0600100010011", 0, true},
		{"06001000100A", 0, true},
		{"+60010001001", 0, true},
		{"000000000001", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseCBG(tt.id)
		if tt.err {
			assert.Error(t, err, "id: %q", tt.id)
			continue
		}
		require.NoError(t, err, "id: %q", tt.id)
		assert.Equal(t, tt.want, got)
	}
}
