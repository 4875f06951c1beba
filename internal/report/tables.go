package report

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/renewal-panel/internal/panel"
	"github.com/sells-group/renewal-panel/internal/regress"
)

// summaryColumns defines the ordered regression-summary CSV columns.
var summaryColumns = []string{
	"spec", "status", "coef", "se", "p", "ci_low", "ci_high",
	"r2_within", "nobs", "n_city", "n_year", "error",
}

// WriteDescCSV writes the descriptive-statistics table.
func WriteDescCSV(stats []DescStat, path string) error {
	rows := [][]string{{"variable", "count", "mean", "sd", "min", "max"}}
	for _, d := range stats {
		rows = append(rows, []string{
			d.Variable,
			strconv.Itoa(d.Count),
			formatFloat(d.Mean),
			formatFloat(d.Std),
			formatFloat(d.Min),
			formatFloat(d.Max),
		})
	}
	return writeCSV(path, rows)
}

// WriteYearMeansCSV writes the annual-means table.
func WriteYearMeansCSV(means []YearMean, path string) error {
	rows := [][]string{{"year", panel.ColLogRenewalLag, panel.ColLogPrice}}
	for _, m := range means {
		rows = append(rows, []string{
			strconv.Itoa(m.Year),
			formatFloat(m.Renewal),
			formatFloat(m.Price),
		})
	}
	return writeCSV(path, rows)
}

// WriteGroupMeansCSV writes the tercile-means table.
func WriteGroupMeansCSV(means []GroupMean, path string) error {
	rows := [][]string{{panel.ColGroup, panel.ColLogRenewalLag, panel.ColLogPrice}}
	for _, m := range means {
		rows = append(rows, []string{
			string(m.Group),
			formatFloat(m.Renewal),
			formatFloat(m.Price),
		})
	}
	return writeCSV(path, rows)
}

// WriteSummaryCSV writes one row per spec, in spec order. Failed specs keep
// their row with blank numeric fields and the error message.
func WriteSummaryCSV(outcomes []regress.Outcome, path string) error {
	rows := [][]string{summaryColumns}
	for _, o := range outcomes {
		rows = append(rows, summaryRow(o))
	}
	return writeCSV(path, rows)
}

func summaryRow(o regress.Outcome) []string {
	if o.Err != nil {
		return []string{o.Spec.Name, "failed", "", "", "", "", "", "", "", "", "", o.Err.Error()}
	}
	r := o.Result
	return []string{
		r.SpecName,
		"ok",
		formatFloat(r.Coef),
		formatFloat(r.StdErr),
		formatFloat(r.PValue),
		formatFloat(r.CILow),
		formatFloat(r.CIHigh),
		formatFloat(r.R2Within),
		strconv.Itoa(r.NObs),
		strconv.Itoa(r.NCities),
		strconv.Itoa(r.NYears),
		"",
	}
}

// WritePanelCSV dumps the enriched panel for inspection.
func WritePanelCSV(t *panel.Table, path string) error {
	header := []string{
		"city", "year", "hp", "renewal",
		panel.ColLogPrice, panel.ColLogRenewal, panel.ColLogRenewalLag, panel.ColDLogPrice,
		"long_run_renewal", "city_obs_count", panel.ColGroup,
	}
	header = append(header, t.ControlNames...)

	rows := [][]string{header}
	for _, r := range t.Rows {
		row := []string{
			r.City,
			strconv.Itoa(r.Year),
			formatFloat(r.Price),
			formatFloat(r.Renewal),
			formatFloat(r.LogPrice),
			formatFloat(r.LogRenewal),
			formatFloat(r.LogRenewalLag),
			formatFloat(r.DLogPrice),
			formatFloat(r.LongRunRenewal),
			strconv.Itoa(r.CityObsCount),
			string(r.Group),
		}
		for _, c := range t.ControlNames {
			row = append(row, formatFloat(r.Controls[c]))
		}
		rows = append(rows, row)
	}
	return writeCSV(path, rows)
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	defer f.Close()

	if err := writeCSVTo(f, rows); err != nil {
		return eris.Wrapf(err, "report: write %s", path)
	}
	return nil
}

// writeCSVTo writes and flushes the rows, surfacing buffered write errors
// (a failed flush would otherwise pass silently).
func writeCSVTo(out io.Writer, rows [][]string) error {
	w := csv.NewWriter(out)
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// formatFloat renders a value at native precision; missing values become
// empty cells.
func formatFloat(v float64) string {
	if v != v { // NaN
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
