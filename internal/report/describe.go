// Package report aggregates the enriched panel and the regression outcomes
// into tables, a workbook, and charts.
package report

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/renewal-panel/internal/panel"
)

// descColumns is the fixed variable list for the descriptive table.
var descColumns = []string{panel.ColLogPrice, panel.ColLogRenewalLag, panel.ColDLogPrice}

// DescStat is one row of the descriptive-statistics table.
type DescStat struct {
	Variable string
	Count    int
	Mean     float64
	Std      float64
	Min      float64
	Max      float64
}

// Describe computes mean, sd, min, max and count for the core variables,
// skipping missing values. A constant column reports sd 0, an empty column
// reports NaN moments and count 0.
func Describe(t *panel.Table) []DescStat {
	stats := make([]DescStat, 0, len(descColumns))
	for _, col := range descColumns {
		xs := dropMissing(t.Values(col))

		d := DescStat{Variable: col, Count: len(xs)}
		if len(xs) == 0 {
			d.Mean, d.Std, d.Min, d.Max = math.NaN(), math.NaN(), math.NaN(), math.NaN()
			stats = append(stats, d)
			continue
		}

		d.Mean = stat.Mean(xs, nil)
		d.Std = 0
		if len(xs) > 1 {
			d.Std = stat.StdDev(xs, nil)
		}
		d.Min, d.Max = xs[0], xs[0]
		for _, x := range xs {
			d.Min = math.Min(d.Min, x)
			d.Max = math.Max(d.Max, x)
		}
		stats = append(stats, d)
	}
	return stats
}

// YearMean holds the annual means of the treatment and dependent variables.
type YearMean struct {
	Year    int
	Renewal float64 // mean lnrenewal_lag
	Price   float64 // mean lhp_deflate
}

// MeanByYear computes annual means, ordered by year.
func MeanByYear(t *panel.Table) []YearMean {
	var out []YearMean
	for _, year := range t.Years() {
		var renewal, price []float64
		for _, r := range t.Rows {
			if r.Year != year {
				continue
			}
			if !panel.IsMissing(r.LogRenewalLag) {
				renewal = append(renewal, r.LogRenewalLag)
			}
			if !panel.IsMissing(r.LogPrice) {
				price = append(price, r.LogPrice)
			}
		}
		out = append(out, YearMean{Year: year, Renewal: meanOrNaN(renewal), Price: meanOrNaN(price)})
	}
	return out
}

// GroupMean holds the per-tercile means of the treatment and dependent
// variables.
type GroupMean struct {
	Group   panel.Group
	Renewal float64
	Price   float64
}

// MeanByGroup computes tercile means in low, middle, high order. Ungrouped
// cities (no usable lag years) are excluded.
func MeanByGroup(t *panel.Table) []GroupMean {
	var out []GroupMean
	for _, g := range []panel.Group{panel.GroupLow, panel.GroupMiddle, panel.GroupHigh} {
		var renewal, price []float64
		for _, r := range t.Rows {
			if r.Group != g {
				continue
			}
			if !panel.IsMissing(r.LogRenewalLag) {
				renewal = append(renewal, r.LogRenewalLag)
			}
			if !panel.IsMissing(r.LogPrice) {
				price = append(price, r.LogPrice)
			}
		}
		out = append(out, GroupMean{Group: g, Renewal: meanOrNaN(renewal), Price: meanOrNaN(price)})
	}
	return out
}

func dropMissing(xs []float64) []float64 {
	var out []float64
	for _, x := range xs {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}

func meanOrNaN(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	return stat.Mean(xs, nil)
}
