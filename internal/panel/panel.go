// Package panel holds the city-year panel: loading the raw table and
// constructing the derived variables the regressions consume.
package panel

import (
	"math"
	"sort"
)

// Group is the renewal-intensity tercile a city belongs to.
type Group string

const (
	GroupNone   Group = ""
	GroupLow    Group = "low"
	GroupMiddle Group = "middle"
	GroupHigh   Group = "high"
)

// Derived column names, matching the output table headers.
const (
	ColLogPrice      = "lhp_deflate"
	ColLogRenewal    = "lnrenewal"
	ColLogRenewalLag = "lnrenewal_lag"
	ColDLogPrice     = "d_lhp_deflate"
	ColGroup         = "renewal_group"
)

// Row is one city-year observation plus its derived variables.
// Raw fields are immutable after load; derived fields are filled by Derive
// and use NaN for missing.
type Row struct {
	City     string
	Year     int
	Price    float64 // raw housing-price level
	Renewal  float64 // raw renewal-intensity level
	Deflator float64 // price deflator, 1.0 when absent
	Controls map[string]float64

	LogPrice       float64 // log of deflated price
	LogRenewal     float64
	LogRenewalLag  float64 // within-city 1-year lag, NaN at first year
	DLogPrice      float64 // within-city first difference, NaN at first year
	LongRunRenewal float64 // city mean of LogRenewalLag
	CityObsCount   int
	Group          Group
}

// Table is the in-memory panel, unique on (city, year).
type Table struct {
	Rows         []*Row
	ControlNames []string // sorted, same set on every row
}

// Len returns the number of observations.
func (t *Table) Len() int { return len(t.Rows) }

// SortByCityYear orders rows by (city, year) ascending. Sorting is stable so
// repeated runs over the same input produce the same row order.
func (t *Table) SortByCityYear() {
	sort.SliceStable(t.Rows, func(i, j int) bool {
		if t.Rows[i].City != t.Rows[j].City {
			return t.Rows[i].City < t.Rows[j].City
		}
		return t.Rows[i].Year < t.Rows[j].Year
	})
}

// Cities returns the sorted distinct city identifiers.
func (t *Table) Cities() []string {
	seen := make(map[string]bool, len(t.Rows))
	var cities []string
	for _, r := range t.Rows {
		if !seen[r.City] {
			seen[r.City] = true
			cities = append(cities, r.City)
		}
	}
	sort.Strings(cities)
	return cities
}

// Years returns the sorted distinct years.
func (t *Table) Years() []int {
	seen := make(map[int]bool)
	var years []int
	for _, r := range t.Rows {
		if !seen[r.Year] {
			seen[r.Year] = true
			years = append(years, r.Year)
		}
	}
	sort.Ints(years)
	return years
}

// Value returns the named column value for a row. Derived names use the
// output-table headers; any other name is looked up in the controls.
func (r *Row) Value(col string) (float64, bool) {
	switch col {
	case ColLogPrice:
		return r.LogPrice, true
	case ColLogRenewal:
		return r.LogRenewal, true
	case ColLogRenewalLag:
		return r.LogRenewalLag, true
	case ColDLogPrice:
		return r.DLogPrice, true
	}
	v, ok := r.Controls[col]
	return v, ok
}

// Values returns the named column across all rows, NaN for missing.
func (t *Table) Values(col string) []float64 {
	out := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		v, ok := r.Value(col)
		if !ok {
			v = math.NaN()
		}
		out[i] = v
	}
	return out
}

// IsMissing reports whether a derived value is absent.
func IsMissing(v float64) bool { return math.IsNaN(v) }
