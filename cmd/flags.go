package main

import (
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

// parseYears accepts comma-separated years and inclusive ranges, e.g.
// "2018-2020,2022". The result is sorted and deduplicated.
func parseYears(s string) ([]int, error) {
	seen := make(map[int]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := parseYear(lo)
		if err != nil {
			return nil, err
		}
		last := first
		if isRange {
			if last, err = parseYear(hi); err != nil {
				return nil, err
			}
			if last < first {
				return nil, eris.Errorf("years: descending range %q", part)
			}
		}
		for y := first; y <= last; y++ {
			seen[y] = true
		}
	}
	if len(seen) == 0 {
		return nil, eris.Errorf("years: no years in %q", s)
	}

	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years, nil
}

func parseYear(s string) (int, error) {
	y, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || y < 2000 || y > 2099 {
		return 0, eris.Errorf("years: invalid year %q", s)
	}
	return y, nil
}

func addYearsFlag(cmd *cobra.Command) {
	cmd.Flags().String("years", "", "years to process, e.g. 2018-2023 or 2019,2021 (default from config)")
}

func addTransformFlags(cmd *cobra.Command) {
	cmd.Flags().String("skip", "", "years to leave untransformed, e.g. 2019")
	cmd.Flags().Bool("keep-intermediates", false, "keep the per-month artifacts after the yearly merge")
	cmd.Flags().Int("concurrency", 0, "months expanded in parallel (default from config)")
}

func addIndexFlags(cmd *cobra.Command) {
	cmd.Flags().String("output", "", "output path, .csv or .xlsx (default from config)")
	cmd.Flags().String("reference", "", "county reference table: CSV, XLSX or TIGER shapefile (default from config)")
	cmd.Flags().Bool("territories", false, "include territories (state FIPS >= 60)")
	cmd.Flags().Bool("noncontiguous", false, "include Alaska and Hawaii")
	cmd.Flags().Bool("load", false, "also load the index into the warehouse")
}

// applyFlags overrides config values with the flags set on cmd.
func applyFlags(cmd *cobra.Command) error {
	f := cmd.Flags()
	r := &cfg.Reflex

	if f.Changed("years") {
		s, _ := f.GetString("years")
		years, err := parseYears(s)
		if err != nil {
			return err
		}
		r.Years = years
	}
	if f.Changed("skip") {
		s, _ := f.GetString("skip")
		skip, err := parseYears(s)
		if err != nil {
			return err
		}
		r.SkipTransformYears = skip
	}
	if f.Changed("keep-intermediates") {
		keep, _ := f.GetBool("keep-intermediates")
		r.DeleteIntermediates = !keep
	}
	if f.Changed("concurrency") {
		cfg.Transform.Concurrency, _ = f.GetInt("concurrency")
	}
	if f.Changed("output") {
		r.OutputPath, _ = f.GetString("output")
	}
	if f.Changed("reference") {
		r.FIPSReferencePath, _ = f.GetString("reference")
	}
	if f.Changed("territories") {
		r.IncludeTerritories, _ = f.GetBool("territories")
	}
	if f.Changed("noncontiguous") {
		r.IncludeNoncontiguous, _ = f.GetBool("noncontiguous")
	}
	return nil
}
