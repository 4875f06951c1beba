package report

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/renewal-panel/internal/panel"
	"github.com/sells-group/renewal-panel/internal/regress"
)

// Artifact file names in the output directory.
const (
	FileDesc       = "desc_core_vars.csv"
	FileYearMeans  = "mean_by_year.csv"
	FileGroupMeans = "mean_by_group.csv"
	FileSummary    = "fe_regression_summary.csv"
	FilePanel      = "panel_data_cleaned.csv"
	FileWorkbook   = "results.xlsx"
	FileManifest   = "run_manifest.yaml"
	FileTrendChart = "fig_trend_yearly_mean.html"
	FileCoefChart  = "fig_coef_ci_baseline.html"
	FileGroupChart = "fig_coef_hetero.html"
)

// Writer produces all report artifacts in one output directory.
type Writer struct {
	OutDir   string
	DataPath string // recorded in the manifest
}

// WriteAll writes the tables, the workbook, the manifest, and the charts.
// Table failures are fatal; a chart failure is logged and the remaining
// charts are still attempted.
func (w *Writer) WriteAll(t *panel.Table, outcomes []regress.Outcome) error {
	if err := os.MkdirAll(w.OutDir, 0o755); err != nil {
		return eris.Wrapf(err, "report: create output dir %s", w.OutDir)
	}

	stats := Describe(t)
	years := MeanByYear(t)
	groups := MeanByGroup(t)

	if err := WriteDescCSV(stats, w.path(FileDesc)); err != nil {
		return err
	}
	if err := WriteYearMeansCSV(years, w.path(FileYearMeans)); err != nil {
		return err
	}
	if err := WriteGroupMeansCSV(groups, w.path(FileGroupMeans)); err != nil {
		return err
	}
	if err := WriteSummaryCSV(outcomes, w.path(FileSummary)); err != nil {
		return err
	}
	if err := WritePanelCSV(t, w.path(FilePanel)); err != nil {
		return err
	}
	if err := WriteWorkbook(stats, years, groups, outcomes, w.path(FileWorkbook)); err != nil {
		return err
	}

	artifacts := []string{
		FileDesc, FileYearMeans, FileGroupMeans, FileSummary, FilePanel,
		FileWorkbook,
	}
	artifacts = append(artifacts, w.writeCharts(years, outcomes)...)
	if err := WriteManifest(w.DataPath, t, outcomes, artifacts, w.path(FileManifest)); err != nil {
		return err
	}

	zap.L().Info("report written", zap.String("dir", w.OutDir), zap.Int("specs", len(outcomes)))
	return nil
}

// writeCharts renders the three figures and returns the file names actually
// written, so skipped charts never reach the manifest. Rendering problems
// are reported, not fatal.
func (w *Writer) writeCharts(years []YearMean, outcomes []regress.Outcome) []string {
	log := zap.L().With(zap.String("dir", w.OutDir))
	var written []string

	if err := chartTrend(years, w.path(FileTrendChart)); err != nil {
		log.Warn("trend chart skipped", zap.Error(err))
	} else {
		written = append(written, FileTrendChart)
	}

	if err := chartBaselineCI(findResult(outcomes, "baseline_level"), w.path(FileCoefChart)); err != nil {
		log.Warn("baseline coefficient chart skipped", zap.Error(err))
	} else {
		written = append(written, FileCoefChart)
	}

	groupResults := []*regress.Result{
		findResult(outcomes, "hetero_renewal_"+string(panel.GroupLow)),
		findResult(outcomes, "hetero_renewal_"+string(panel.GroupMiddle)),
		findResult(outcomes, "hetero_renewal_"+string(panel.GroupHigh)),
	}
	if err := chartGroupCI(groupResults, w.path(FileGroupChart)); err != nil {
		log.Warn("group coefficient chart skipped", zap.Error(err))
	} else {
		written = append(written, FileGroupChart)
	}

	return written
}

func (w *Writer) path(name string) string { return filepath.Join(w.OutDir, name) }

func findResult(outcomes []regress.Outcome, name string) *regress.Result {
	for _, o := range outcomes {
		if o.Spec.Name == name {
			return o.Result
		}
	}
	return nil
}
