package report

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/renewal-panel/internal/panel"
	"github.com/sells-group/renewal-panel/internal/regress"
)

// WriteWorkbook mirrors the delimited tables into a single xlsx workbook,
// one sheet per table.
func WriteWorkbook(stats []DescStat, years []YearMean, groups []GroupMean, outcomes []regress.Outcome, path string) error {
	f := xlsx.NewFile()

	if err := addDescSheet(f, stats); err != nil {
		return err
	}
	if err := addYearSheet(f, years); err != nil {
		return err
	}
	if err := addGroupSheet(f, groups); err != nil {
		return err
	}
	if err := addSummarySheet(f, outcomes); err != nil {
		return err
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save workbook %s", path)
	}
	return nil
}

func addDescSheet(f *xlsx.File, stats []DescStat) error {
	sheet, err := f.AddSheet("desc_core_vars")
	if err != nil {
		return eris.Wrap(err, "report: add desc sheet")
	}
	addStringRow(sheet, "variable", "count", "mean", "sd", "min", "max")
	for _, d := range stats {
		row := sheet.AddRow()
		row.AddCell().Value = d.Variable
		row.AddCell().SetInt(d.Count)
		addFloatCells(row, d.Mean, d.Std, d.Min, d.Max)
	}
	return nil
}

func addYearSheet(f *xlsx.File, years []YearMean) error {
	sheet, err := f.AddSheet("mean_by_year")
	if err != nil {
		return eris.Wrap(err, "report: add year sheet")
	}
	addStringRow(sheet, "year", panel.ColLogRenewalLag, panel.ColLogPrice)
	for _, m := range years {
		row := sheet.AddRow()
		row.AddCell().SetInt(m.Year)
		addFloatCells(row, m.Renewal, m.Price)
	}
	return nil
}

func addGroupSheet(f *xlsx.File, groups []GroupMean) error {
	sheet, err := f.AddSheet("mean_by_group")
	if err != nil {
		return eris.Wrap(err, "report: add group sheet")
	}
	addStringRow(sheet, panel.ColGroup, panel.ColLogRenewalLag, panel.ColLogPrice)
	for _, m := range groups {
		row := sheet.AddRow()
		row.AddCell().Value = string(m.Group)
		addFloatCells(row, m.Renewal, m.Price)
	}
	return nil
}

func addSummarySheet(f *xlsx.File, outcomes []regress.Outcome) error {
	sheet, err := f.AddSheet("fe_regression_summary")
	if err != nil {
		return eris.Wrap(err, "report: add summary sheet")
	}
	addStringRow(sheet, summaryColumns...)
	for _, o := range outcomes {
		row := sheet.AddRow()
		for _, cell := range summaryRow(o) {
			row.AddCell().Value = cell
		}
	}
	return nil
}

func addStringRow(sheet *xlsx.Sheet, cells ...string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().Value = c
	}
}

func addFloatCells(row *xlsx.Row, vals ...float64) {
	for _, v := range vals {
		cell := row.AddCell()
		if math.IsNaN(v) {
			continue // blank cell for missing
		}
		cell.SetFloat(v)
	}
}
