package flow

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
)

// foreignPrefix matches identifiers tagged with a country code, e.g. "CA:59150004".
var foreignPrefix = regexp.MustCompile(`^[A-Za-z]{2,3}:`)

// looseLiteral rewrites the tokens of a single-quoted dict literal that JSON
// spells differently.
var looseLiteral = strings.NewReplacer(`'`, `"`, "None", "null")

// trailingComma matches a comma closing a dict literal, e.g. "{'a': 1,}".
var trailingComma = regexp.MustCompile(`,\s*}$`)

// maxCount is 2^63, the first float64 that does not fit an int64.
const maxCount = float64(1 << 63)

// ParseVisitMap decodes a textual origin → visit count mapping. JSON objects
// are accepted as well as dict literals using single quotes and None. An empty
// cell decodes to an empty map. Counts must be non-negative integers that fit
// an int64; a null count is kept as a nil entry so Expand can drop it.
func ParseVisitMap(s string) (VisitMap, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return VisitMap{}, nil
	}

	if !gjson.Valid(s) {
		s = trailingComma.ReplaceAllString(looseLiteral.Replace(s), "}")
		if !gjson.Valid(s) {
			return nil, eris.Errorf("flow: malformed visit map %q", abbreviate(s, 40))
		}
	}

	doc := gjson.Parse(s)
	if !doc.IsObject() {
		return nil, eris.Errorf("flow: visit map is not an object: %q", abbreviate(s, 40))
	}

	m := make(VisitMap)
	var perr error
	doc.ForEach(func(key, value gjson.Result) bool {
		origin := key.String()
		switch value.Type {
		case gjson.Null:
			m[origin] = nil
		case gjson.Number:
			if math.IsInf(value.Num, 0) || value.Num < 0 || value.Num >= maxCount {
				perr = eris.Errorf("flow: count out of range %s for origin %q", value.Raw, origin)
				return false
			}
			if value.Num != math.Trunc(value.Num) {
				perr = eris.Errorf("flow: non-integral count %s for origin %q", value.Raw, origin)
				return false
			}
			n := int64(value.Num)
			m[origin] = &n
		default:
			perr = eris.Errorf("flow: unexpected count %s for origin %q", value.Raw, origin)
			return false
		}
		return true
	})
	if perr != nil {
		return nil, perr
	}
	return m, nil
}

// IsForeignOrigin reports whether an origin identifier lies outside the
// domestic block group space. Empty identifiers are treated as foreign.
func IsForeignOrigin(id string) bool {
	id = strings.TrimSpace(id)
	return id == "" || foreignPrefix.MatchString(id)
}

// ParseCBG parses a block group identifier. Identifiers must be numeric and
// 12 digits wide; an 11-digit value is accepted as the same code with its
// leading zero dropped.
func ParseCBG(id string) (int64, error) {
	id = strings.TrimSpace(id)
	if len(id) != cbgDigits && len(id) != cbgDigits-1 {
		return 0, eris.Errorf("flow: block group %q is not %d digits", id, cbgDigits)
	}
	if strings.IndexFunc(id, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return 0, eris.Errorf("flow: block group %q is not numeric", id)
	}
	v, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, eris.Errorf("flow: block group %q is not numeric", id)
	}
	if v < cbgPerCounty*1000 {
		return 0, eris.Errorf("flow: block group %q has no state prefix", id)
	}
	return v, nil
}

func abbreviate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
