package report

import (
	grob "github.com/MetalBlueberry/go-plotly/graph_objects"
	"github.com/MetalBlueberry/go-plotly/offline"
	"github.com/rotisserie/eris"

	"github.com/sells-group/renewal-panel/internal/panel"
	"github.com/sells-group/renewal-panel/internal/regress"
)

// chartTrend renders the annual mean trend of the treatment and dependent
// variables.
func chartTrend(means []YearMean, path string) error {
	if len(means) < 2 {
		return eris.Errorf("report: trend chart needs at least 2 years, got %d", len(means))
	}

	years := make([]float64, len(means))
	renewal := make([]float64, len(means))
	price := make([]float64, len(means))
	for i, m := range means {
		years[i] = float64(m.Year)
		renewal[i] = m.Renewal
		price[i] = m.Price
	}

	fig := &grob.Fig{}
	fig.Layout = &grob.Layout{
		Title:  &grob.LayoutTitle{Text: "Annual Mean Trend: Renewal Intensity vs. Housing Price (Deflated)"},
		Xaxis:  &grob.LayoutXaxis{Title: &grob.LayoutXaxisTitle{Text: "Year"}},
		Yaxis:  &grob.LayoutYaxis{Title: &grob.LayoutYaxisTitle{Text: "Mean Value"}},
		Width:  800,
		Height: 400,
	}
	fig.AddTraces(
		&grob.Scatter{
			Name: panel.ColLogRenewalLag,
			X:    years, Y: renewal,
			Mode: grob.ScatterModeLines,
			Line: &grob.ScatterLine{Color: "steelblue"},
		},
		&grob.Scatter{
			Name: panel.ColLogPrice,
			X:    years, Y: price,
			Mode: grob.ScatterModeLines,
			Line: &grob.ScatterLine{Color: "darkorange"},
		},
	)

	return renderHTML(fig, path)
}

// chartBaselineCI renders the baseline coefficient with its 95% confidence
// interval and a zero reference line.
func chartBaselineCI(res *regress.Result, path string) error {
	if res == nil {
		return eris.New("report: no baseline result to plot")
	}
	return coefChart(
		[]*regress.Result{res},
		[]string{panel.ColLogPrice},
		"Estimated Effect of Renewal Intensity on Housing Price",
		path,
	)
}

// chartGroupCI renders the per-tercile coefficients with confidence
// intervals. Results must be in low, middle, high order; nil entries (failed
// specs) are skipped.
func chartGroupCI(results []*regress.Result, path string) error {
	var (
		kept   []*regress.Result
		labels []string
	)
	names := []string{"Low Renewal Group", "Middle Renewal Group", "High Renewal Group"}
	for i, r := range results {
		if r == nil {
			continue
		}
		kept = append(kept, r)
		labels = append(labels, names[i])
	}
	if len(kept) == 0 {
		return eris.New("report: no group results to plot")
	}
	return coefChart(kept, labels, "Estimated Effect by Renewal Intensity Group", path)
}

// coefChart draws one marker per result with a horizontal CI segment, plus a
// dashed-style vertical line at zero.
func coefChart(results []*regress.Result, labels []string, title string, path string) error {
	fig := &grob.Fig{}
	fig.Layout = &grob.Layout{
		Title:      &grob.LayoutTitle{Text: title},
		Xaxis:      &grob.LayoutXaxis{Title: &grob.LayoutXaxisTitle{Text: "Coefficient and 95% Confidence Interval"}},
		Width:      700,
		Height:     300,
		Showlegend: grob.False,
	}

	for i, r := range results {
		fig.AddTraces(&grob.Scatter{
			Name: labels[i] + " CI",
			X:    []float64{r.CILow, r.CIHigh},
			Y:    []string{labels[i], labels[i]},
			Mode: grob.ScatterModeLines,
			Line: &grob.ScatterLine{Color: "steelblue"},
		})
	}

	coefs := make([]float64, len(results))
	for i, r := range results {
		coefs[i] = r.Coef
	}
	fig.AddTraces(&grob.Scatter{
		Name: "coefficient",
		X:    coefs,
		Y:    labels,
		Mode: grob.ScatterModeMarkers,
	})

	// zero reference line spanning the category axis
	fig.AddTraces(&grob.Scatter{
		Name: "zero",
		X:    []float64{0, 0},
		Y:    []string{labels[0], labels[len(labels)-1]},
		Mode: grob.ScatterModeLines,
		Line: &grob.ScatterLine{Color: "gray"},
	})

	return renderHTML(fig, path)
}

// renderHTML writes the figure to disk. offline.ToHtml panics on I/O
// failures, so the panic is converted to an error the caller can log.
func renderHTML(fig *grob.Fig, path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("report: render %s: %v", path, r)
		}
	}()
	offline.ToHtml(fig, path)
	return nil
}
