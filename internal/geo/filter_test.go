package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/reflex-cli/internal/fips"
	"github.com/sells-group/reflex-cli/internal/flow"
)

var reference = []County{
	{GEOID: 6001, State: 6},
	{GEOID: 6075, State: 6},
	{GEOID: 2013, State: 2},
	{GEOID: 15001, State: 15},
	{GEOID: 72001, State: 72},
	{GEOID: 60010, State: 60},
}

func TestComputeAllowed(t *testing.T) {
	tests := []struct {
		name string
		scope Scope
		want []int
	}{
		{"contiguous only", Scope{}, []int{6001, 6075}},
		{"with territories", Scope{IncludeTerritories: true}, []int{6001, 6075, 72001, 60010}},
		{"with noncontiguous", Scope{IncludeNoncontiguous: true}, []int{6001, 6075, 2013, 15001}},
		{"everything", Scope{IncludeTerritories: true, IncludeNoncontiguous: true}, []int{6001, 6075, 2013, 15001, 72001, 60010}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed := ComputeAllowed(reference, tt.scope)
			assert.Len(t, allowed, len(tt.want))
			for _, c := range tt.want {
				assert.True(t, allowed.Contains(c), "county %d", c)
			}
		})
	}
}

func TestFilter(t *testing.T) {
	records := []flow.Record{
		{Dst: 6001, Org: 6075, Flow: 6},
		{Dst: 6001, Org: 6001, Flow: 5},   // self-loop
		{Dst: 6001, Org: 72001, Flow: 3},  // territory origin
		{Dst: 2013, Org: 6075, Flow: 1},   // Alaska destination
		{Dst: 6075, Org: 99999, Flow: 1},  // unknown county
		{Dst: 6075, Org: 6001, Flow: -2},  // negative flow passes the filter
	}

	out := Filter(records, ComputeAllowed(reference, Scope{}))
	assert.Equal(t, []flow.Record{
		{Dst: 6001, Org: 6075, Flow: 6},
		{Dst: 6075, Org: 6001, Flow: -2},
	}, out)
	assert.Len(t, records, 6, "input must not be modified")
}

func TestFilter_SelfLoopsDroppedForEverySpec(t *testing.T) {
	records := []flow.Record{{Dst: 6001, Org: 6001}, {Dst: 72001, Org: 72001}, {Dst: 2013, Org: 2013}}
	for _, scope := range []Scope{{}, {IncludeTerritories: true}, {IncludeNoncontiguous: true}, {true, true}} {
		assert.Empty(t, Filter(records, ComputeAllowed(reference, scope)))
	}
}

func TestFilter_ExcludedStatesNeverAppear(t *testing.T) {
	var records []flow.Record
	for _, d := range reference {
		for _, o := range reference {
			records = append(records, flow.Record{Dst: d.GEOID, Org: o.GEOID, Flow: 1})
		}
	}

	out := Filter(records, ComputeAllowed(reference, Scope{}))
	for _, r := range out {
		for _, c := range []int{r.Dst, r.Org} {
			st := fips.StateOf(c)
			assert.False(t, fips.IsTerritory(st), "territory county %d", c)
			assert.False(t, fips.IsNoncontiguous(st), "noncontiguous county %d", c)
		}
	}
	assert.Len(t, out, 2)
}
