package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseYears(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{in: "2021", want: []int{2021}},
		{in: "2018-2020", want: []int{2018, 2019, 2020}},
		{in: "2022, 2018-2019,2022", want: []int{2018, 2019, 2022}},
		{in: "2020-2018", wantErr: true},
		{in: "21", wantErr: true},
		{in: "abc", wantErr: true},
		{in: " , ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseYears(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
