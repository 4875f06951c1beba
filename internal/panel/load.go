package panel

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kshedden/datareader"
	"go.uber.org/zap"
)

// Raw column names the loader requires, and the optional deflator column.
const (
	colCity     = "city"
	colYear     = "year"
	colPrice    = "hp"
	colRenewal  = "renewal"
	colDeflator = "deflator"
)

// LoadOptions restricts the loaded sample.
type LoadOptions struct {
	MinYear int // 0 = no lower bound
	MaxYear int // 0 = no upper bound
}

// Load reads the panel from a Stata (.dta) or delimited (.csv) file into a
// Table sorted by (city, year). Any numeric column beyond the fixed schema is
// kept as a control covariate. Structural problems return *DataAccessError.
func Load(path string, opts LoadOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &DataAccessError{Path: path, Reason: "open", Err: err}
	}
	defer f.Close()

	var t *Table
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".dta":
		t, err = readStata(path, f)
	case ".csv":
		t, err = readCSV(path, f)
	default:
		return nil, &DataAccessError{Path: path, Reason: fmt.Sprintf("unsupported file type %q", ext)}
	}
	if err != nil {
		return nil, err
	}

	if opts.MinYear > 0 || opts.MaxYear > 0 {
		kept := t.Rows[:0]
		for _, r := range t.Rows {
			if opts.MinYear > 0 && r.Year < opts.MinYear {
				continue
			}
			if opts.MaxYear > 0 && r.Year > opts.MaxYear {
				continue
			}
			kept = append(kept, r)
		}
		t.Rows = kept
	}
	if t.Len() == 0 {
		return nil, &DataAccessError{Path: path, Reason: "no observations after load"}
	}

	if err := checkUnique(path, t); err != nil {
		return nil, err
	}
	t.SortByCityYear()

	zap.L().Info("panel loaded",
		zap.String("path", path),
		zap.Int("rows", t.Len()),
		zap.Int("cities", len(t.Cities())),
		zap.Int("years", len(t.Years())),
		zap.Strings("controls", t.ControlNames),
	)

	return t, nil
}

func readStata(path string, f *os.File) (*Table, error) {
	rdr, err := datareader.NewStataReader(f)
	if err != nil {
		return nil, &DataAccessError{Path: path, Reason: "parse stata header", Err: err}
	}
	rdr.InsertCategoryLabels = true

	series, err := rdr.Read(-1)
	if err != nil {
		return nil, &DataAccessError{Path: path, Reason: "read stata records", Err: err}
	}

	byName := make(map[string]*datareader.Series, len(series))
	var names []string
	for _, s := range series {
		name := strings.ToLower(strings.TrimSpace(s.Name))
		byName[name] = s
		names = append(names, name)
	}
	for _, req := range []string{colCity, colYear, colPrice, colRenewal} {
		if _, ok := byName[req]; !ok {
			return nil, &DataAccessError{Path: path, Reason: fmt.Sprintf("missing required column %q", req)}
		}
	}

	city, _, err := byName[colCity].AsStringSlice()
	if err != nil {
		return nil, &DataAccessError{Path: path, Reason: "city column", Err: err}
	}

	numeric := make(map[string][]float64)
	missing := make(map[string][]bool)
	for _, name := range names {
		if name == colCity {
			continue
		}
		vals, miss, err := byName[name].AsFloat64Slice()
		if err != nil {
			// non-numeric extras are ignored, required columns must convert
			if name == colYear || name == colPrice || name == colRenewal {
				return nil, &DataAccessError{Path: path, Reason: fmt.Sprintf("column %q is not numeric", name), Err: err}
			}
			continue
		}
		numeric[name] = vals
		missing[name] = miss
	}

	controls := controlNames(numeric)

	t := &Table{ControlNames: controls}
	for i := range city {
		get := func(col string) float64 {
			if missing[col] != nil && missing[col][i] {
				return math.NaN()
			}
			return numeric[col][i]
		}

		r := &Row{
			City:     strings.TrimSpace(city[i]),
			Year:     int(get(colYear)),
			Price:    get(colPrice),
			Renewal:  get(colRenewal),
			Deflator: 1.0,
			Controls: make(map[string]float64, len(controls)),
		}
		if _, ok := numeric[colDeflator]; ok {
			if d := get(colDeflator); !math.IsNaN(d) && d > 0 {
				r.Deflator = d
			}
		}
		for _, c := range controls {
			r.Controls[c] = get(c)
		}
		initDerived(r)
		t.Rows = append(t.Rows, r)
	}

	return t, nil
}

func readCSV(path string, f io.Reader) (*Table, error) {
	reader := csv.NewReader(f)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, &DataAccessError{Path: path, Reason: "read header", Err: err}
	}
	colIdx := mapColumns(header)
	for _, req := range []string{colCity, colYear, colPrice, colRenewal} {
		if _, ok := colIdx[req]; !ok {
			return nil, &DataAccessError{Path: path, Reason: fmt.Sprintf("missing required column %q", req)}
		}
	}

	var extras []string
	for name := range colIdx {
		switch name {
		case colCity, colYear, colPrice, colRenewal, colDeflator:
		default:
			extras = append(extras, name)
		}
	}
	sort.Strings(extras)

	t := &Table{ControlNames: extras}
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, &DataAccessError{Path: path, Reason: fmt.Sprintf("line %d", line), Err: err}
		}

		year, err := strconv.Atoi(strings.TrimSpace(getCol(record, colIdx, colYear)))
		if err != nil {
			return nil, &DataAccessError{Path: path, Reason: fmt.Sprintf("line %d: bad year", line), Err: err}
		}

		r := &Row{
			City:     strings.TrimSpace(getCol(record, colIdx, colCity)),
			Year:     year,
			Price:    parseFloatOr(getCol(record, colIdx, colPrice), math.NaN()),
			Renewal:  parseFloatOr(getCol(record, colIdx, colRenewal), math.NaN()),
			Deflator: 1.0,
			Controls: make(map[string]float64, len(extras)),
		}
		if d := parseFloatOr(getCol(record, colIdx, colDeflator), math.NaN()); !math.IsNaN(d) && d > 0 {
			r.Deflator = d
		}
		for _, c := range extras {
			r.Controls[c] = parseFloatOr(getCol(record, colIdx, c), math.NaN())
		}
		initDerived(r)
		t.Rows = append(t.Rows, r)
	}

	return t, nil
}

// initDerived marks all derived fields missing until Derive fills them.
func initDerived(r *Row) {
	nan := math.NaN()
	r.LogPrice = nan
	r.LogRenewal = nan
	r.LogRenewalLag = nan
	r.DLogPrice = nan
	r.LongRunRenewal = nan
}

func controlNames(numeric map[string][]float64) []string {
	var controls []string
	for name := range numeric {
		switch name {
		case colYear, colPrice, colRenewal, colDeflator:
		default:
			controls = append(controls, name)
		}
	}
	sort.Strings(controls)
	return controls
}

func checkUnique(path string, t *Table) error {
	type key struct {
		city string
		year int
	}
	seen := make(map[key]bool, t.Len())
	for _, r := range t.Rows {
		if r.City == "" {
			return &DataAccessError{Path: path, Reason: fmt.Sprintf("empty city identifier at year %d", r.Year)}
		}
		k := key{r.City, r.Year}
		if seen[k] {
			return &DataAccessError{Path: path, Reason: fmt.Sprintf("duplicate observation %s/%d", r.City, r.Year)}
		}
		seen[k] = true
	}
	return nil
}

// mapColumns builds a case-insensitive column name to index map.
func mapColumns(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, col := range header {
		m[strings.ToLower(strings.TrimSpace(col))] = i
	}
	return m
}

// getCol gets a column value by name from a CSV record, returning empty string if not found.
func getCol(record []string, colIdx map[string]int, name string) string {
	idx, ok := colIdx[strings.ToLower(name)]
	if !ok || idx >= len(record) {
		return ""
	}
	return record[idx]
}

func parseFloatOr(s string, fallback float64) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return v
}
