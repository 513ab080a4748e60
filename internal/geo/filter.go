package geo

import (
	"github.com/sells-group/reflex-cli/internal/fips"
	"github.com/sells-group/reflex-cli/internal/flow"
)

// Scope selects the geography a flow table is restricted to.
type Scope struct {
	IncludeTerritories   bool
	IncludeNoncontiguous bool
}

// Allowed is the set of county identifiers admitted by a Scope.
type Allowed map[int]struct{}

// Contains reports whether county is admitted.
func (a Allowed) Contains(county int) bool {
	_, ok := a[county]
	return ok
}

// ComputeAllowed derives the admitted counties from the reference table.
// Territories are states 60 and above; the non-contiguous states are Alaska
// and Hawaii.
func ComputeAllowed(reference []County, scope Scope) Allowed {
	allowed := make(Allowed, len(reference))
	for _, c := range reference {
		if !scope.IncludeTerritories && fips.IsTerritory(c.State) {
			continue
		}
		if !scope.IncludeNoncontiguous && fips.IsNoncontiguous(c.State) {
			continue
		}
		allowed[c.GEOID] = struct{}{}
	}
	return allowed
}

// Filter keeps inter-county records whose origin and destination are both
// admitted. Self-loops are always dropped. The input is not modified.
func Filter(records []flow.Record, allowed Allowed) []flow.Record {
	out := make([]flow.Record, 0, len(records))
	for _, r := range records {
		if r.Dst == r.Org {
			continue
		}
		if !allowed.Contains(r.Dst) || !allowed.Contains(r.Org) {
			continue
		}
		out = append(out, r)
	}
	return out
}
