// Package fips formats and decomposes state and county FIPS codes.
package fips

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Non-contiguous states.
const (
	Alaska = 2
	Hawaii = 15
)

// FirstTerritory is the lowest state code assigned to a territory
// (American Samoa). Every code at or above it is a territory.
const FirstTerritory = 60

// NormalizeState normalizes a state FIPS code to 2 digits with zero-padding.
func NormalizeState(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	if len(code) == 1 {
		return "0" + code
	}
	return code
}

// NormalizeCounty normalizes a county FIPS code to 3 digits with zero-padding.
func NormalizeCounty(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	for len(code) < 3 {
		code = "0" + code
	}
	return code
}

// Combine combines state and county FIPS codes into a 5-digit code.
func Combine(state, county string) string {
	s := NormalizeState(state)
	c := NormalizeCounty(county)
	if s == "" || c == "" {
		return ""
	}
	return s + c
}

// Format formats a numeric FIPS code with proper zero-padding.
func Format(code int, digits int) string {
	return fmt.Sprintf("%0*d", digits, code)
}

// PadCounty formats a county identifier as 5-digit text.
func PadCounty(county int) string {
	return Format(county, 5)
}

// StateOf returns the state code of a 5-digit county code.
func StateOf(county int) int {
	return county / 1000
}

// ParseCounty parses a county GEOID such as "06001" or "6001".
func ParseCounty(geoid string) (int, error) {
	geoid = strings.TrimSpace(geoid)
	if geoid == "" || len(geoid) > 5 {
		return 0, eris.Errorf("fips: invalid county code %q", geoid)
	}
	v, err := strconv.Atoi(geoid)
	if err != nil || v <= 0 {
		return 0, eris.Errorf("fips: invalid county code %q", geoid)
	}
	return v, nil
}

// ParseState parses a state code such as "06" or "6".
func ParseState(code string) (int, error) {
	code = strings.TrimSpace(code)
	v, err := strconv.Atoi(code)
	if err != nil || v <= 0 || v > 99 {
		return 0, eris.Errorf("fips: invalid state code %q", code)
	}
	return v, nil
}

// IsTerritory reports whether a state code belongs to a US territory.
func IsTerritory(state int) bool {
	return state >= FirstTerritory
}

// IsNoncontiguous reports whether a state lies outside the contiguous US.
func IsNoncontiguous(state int) bool {
	return state == Alaska || state == Hawaii
}
