package panel

import (
	"math"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// Derive fills the derived columns: deflated log price, log renewal and its
// within-city lag, the first difference of log price, per-city observation
// counts, long-run renewal intensity, and the tercile group labels.
//
// Rows with non-positive price or renewal keep NaN in the affected derived
// columns; the first such row is reported through *InvalidValueError so the
// caller can decide whether the loss is fatal. The rest of the table is
// derived normally.
func Derive(t *Table) error {
	t.SortByCityYear()

	var invalid *InvalidValueError
	record := func(r *Row, col string, v float64) {
		if invalid == nil {
			invalid = &InvalidValueError{City: r.City, Year: r.Year, Column: col, Value: v}
		}
		invalid.Count++
	}

	for _, r := range t.Rows {
		price := r.Price / r.Deflator
		switch {
		case IsMissing(r.Price):
			// missing stays missing, not an error
		case price <= 0:
			record(r, colPrice, price)
		default:
			r.LogPrice = math.Log(price)
		}

		switch {
		case IsMissing(r.Renewal):
		case r.Renewal <= 0:
			record(r, colRenewal, r.Renewal)
		default:
			r.LogRenewal = math.Log(r.Renewal)
		}
	}

	// Within-city lag and difference. Rows are (city, year) sorted, so a city
	// occupies a contiguous run; the lag never crosses a city boundary.
	byCity := groupByCity(t)
	for _, rows := range byCity {
		for i, r := range rows {
			r.CityObsCount = len(rows)
			if i == 0 {
				continue // first observed year: lag and diff stay NaN
			}
			prev := rows[i-1]
			r.LogRenewalLag = prev.LogRenewal
			if !IsMissing(r.LogPrice) && !IsMissing(prev.LogPrice) {
				r.DLogPrice = r.LogPrice - prev.LogPrice
			}
		}
	}

	assignGroups(t, byCity)

	if invalid != nil {
		zap.L().Warn("non-positive values in log transform",
			zap.String("first_city", invalid.City),
			zap.Int("first_year", invalid.Year),
			zap.Int("rows_affected", invalid.Count),
		)
		return invalid
	}
	return nil
}

// assignGroups labels each city low/middle/high by its long-run (within-city
// mean) lagged renewal intensity. Cities are ranked with a stable sort on
// (mean, city identifier) and split into nearest-equal thirds, the remainder
// going to the earlier groups, so boundary ties resolve the same way on every
// run.
func assignGroups(t *Table, byCity map[string][]*Row) {
	type cityMean struct {
		city string
		mean float64
	}

	var ranked []cityMean
	for city, rows := range byCity {
		var xs []float64
		for _, r := range rows {
			if !IsMissing(r.LogRenewalLag) {
				xs = append(xs, r.LogRenewalLag)
			}
		}
		if len(xs) == 0 {
			continue // no usable lag years: city stays ungrouped
		}
		m := stat.Mean(xs, nil)
		for _, r := range rows {
			r.LongRunRenewal = m
		}
		ranked = append(ranked, cityMean{city: city, mean: m})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].mean != ranked[j].mean {
			return ranked[i].mean < ranked[j].mean
		}
		return ranked[i].city < ranked[j].city
	})

	n := len(ranked)
	if n == 0 {
		return
	}
	base, rem := n/3, n%3
	sizes := [3]int{base, base, base}
	for i := 0; i < rem; i++ {
		sizes[i]++
	}

	labels := [3]Group{GroupLow, GroupMiddle, GroupHigh}
	idx := 0
	for g := 0; g < 3; g++ {
		for k := 0; k < sizes[g]; k++ {
			for _, r := range byCity[ranked[idx].city] {
				r.Group = labels[g]
			}
			idx++
		}
	}
}

func groupByCity(t *Table) map[string][]*Row {
	byCity := make(map[string][]*Row)
	for _, r := range t.Rows {
		byCity[r.City] = append(byCity[r.City], r)
	}
	return byCity
}

// Winsorize clips xs to its [lo, hi] sample quantiles, leaving values strictly
// inside the band untouched. NaN entries pass through unchanged and are
// excluded from the quantile computation. Returns a new slice.
func Winsorize(xs []float64, lo, hi float64) []float64 {
	var clean []float64
	for _, x := range xs {
		if !math.IsNaN(x) {
			clean = append(clean, x)
		}
	}
	out := make([]float64, len(xs))
	copy(out, xs)
	if len(clean) == 0 {
		return out
	}
	sort.Float64s(clean)

	qLow := stat.Quantile(lo, stat.LinInterp, clean, nil)
	qHigh := stat.Quantile(hi, stat.LinInterp, clean, nil)

	for i, x := range out {
		switch {
		case math.IsNaN(x):
		case x < qLow:
			out[i] = qLow
		case x > qHigh:
			out[i] = qHigh
		}
	}
	return out
}
