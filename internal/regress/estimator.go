package regress

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sells-group/renewal-panel/internal/panel"
)

const (
	demeanTol     = 1e-10
	demeanMaxIter = 100
	critValue95   = 1.96
	varianceFloor = 1e-12
)

// Estimate fits one spec on the enriched panel: absorb city and year fixed
// effects, OLS on the within-transformed data, standard errors clustered by
// city. The model is
//
//	y_it = beta * treat_it + gamma'X_it + mu_i + lambda_t + e_it
func Estimate(t *panel.Table, spec Spec) (*Result, error) {
	s := buildSample(t, spec)

	// Identification first: an empty or degenerate sample must surface as
	// underidentified, not as a downstream transform error.
	nCities, nYears := s.dimensions()
	if nCities < 2 || nYears < 2 {
		return nil, &UnderidentifiedModelError{SpecName: spec.Name, NCities: nCities, NYears: nYears}
	}

	if err := s.winsorize(spec); err != nil {
		return nil, err
	}

	n := len(s.y)
	k := len(s.x)
	absorbed := nCities + nYears - 1
	if n <= k+absorbed {
		return nil, &UnderidentifiedModelError{SpecName: spec.Name, NCities: nCities, NYears: nYears}
	}

	// Two-way within transform (alternating projections handles the
	// unbalanced panel).
	cols := append([][]float64{s.y}, s.x...)
	s.demean(cols)

	// The treatment must retain variation after absorbing the effects.
	for _, xc := range s.x {
		if sumSquares(xc) < varianceFloor {
			return nil, &UnderidentifiedModelError{SpecName: spec.Name, NCities: nCities, NYears: nYears}
		}
	}

	beta, resid, err := solveOLS(s.y, s.x)
	if err != nil {
		return nil, eris.Wrapf(err, "regress: spec %q", spec.Name)
	}

	se := s.clusterSE(resid, absorbed)
	coef := beta[0]
	tStat := coef / se
	pValue := 2 * distuv.UnitNormal.Survival(math.Abs(tStat))

	tss := sumSquares(s.y)
	ssr := sumSquares(resid)
	r2 := 0.0
	if tss > 0 {
		r2 = 1 - ssr/tss
	}

	res := &Result{
		SpecName: spec.Name,
		Coef:     coef,
		StdErr:   se,
		PValue:   pValue,
		CILow:    coef - critValue95*se,
		CIHigh:   coef + critValue95*se,
		R2Within: r2,
		NObs:     n,
		NCities:  nCities,
		NYears:   nYears,
	}

	zap.L().Info("spec estimated",
		zap.String("spec", spec.Name),
		zap.Float64("coef", res.Coef),
		zap.Float64("se", res.StdErr),
		zap.Int("nobs", res.NObs),
		zap.Int("n_city", res.NCities),
		zap.Int("n_year", res.NYears),
	)

	return res, nil
}

// EstimateAll fits every spec independently. Specs are embarrassingly
// parallel; with concurrency > 1 they run through an errgroup, each writing
// its own outcome slot so the returned order always matches the input order.
// Per-spec failures are recorded in the outcome, never propagated.
func EstimateAll(ctx context.Context, t *panel.Table, specs []Spec, concurrency int) []Outcome {
	outcomes := make([]Outcome, len(specs))

	if concurrency <= 1 {
		for i, spec := range specs {
			outcomes[i] = estimateOutcome(t, spec)
		}
		return outcomes
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, spec := range specs {
		g.Go(func() error {
			outcomes[i] = estimateOutcome(t, spec)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func estimateOutcome(t *panel.Table, spec Spec) Outcome {
	res, err := Estimate(t, spec)
	if err != nil {
		zap.L().Warn("spec failed", zap.String("spec", spec.Name), zap.Error(err))
	}
	return Outcome{Spec: spec, Result: res, Err: err}
}

// sample is one spec's estimation sample: complete cases only, columns stored
// treatment-first.
type sample struct {
	spec  Spec
	city  []string
	year  []int
	y     []float64
	x     [][]float64 // x[0] = treatment, then controls
	names []string    // column names matching y, x...
}

func buildSample(t *panel.Table, spec Spec) *sample {
	cols := append([]string{spec.Dep, spec.Treat}, spec.Controls...)

	s := &sample{
		spec:  spec,
		x:     make([][]float64, 1+len(spec.Controls)),
		names: cols,
	}

	for _, r := range t.Rows {
		if spec.Group != panel.GroupNone && r.Group != spec.Group {
			continue
		}
		if spec.MinCityObs > 0 && r.CityObsCount < spec.MinCityObs {
			continue
		}

		vals := make([]float64, len(cols))
		complete := true
		for j, c := range cols {
			v, ok := r.Value(c)
			if !ok || panel.IsMissing(v) {
				complete = false
				break
			}
			vals[j] = v
		}
		if !complete {
			continue
		}

		s.city = append(s.city, r.City)
		s.year = append(s.year, r.Year)
		s.y = append(s.y, vals[0])
		for j := 1; j < len(vals); j++ {
			s.x[j-1] = append(s.x[j-1], vals[j])
		}
	}

	return s
}

// winsorize clips the spec's listed columns to their estimation-sample
// quantiles.
func (s *sample) winsorize(spec Spec) error {
	for _, name := range spec.Winsorize {
		col := s.column(name)
		if col == nil {
			return eris.Errorf("regress: spec %q winsorizes unknown column %q", spec.Name, name)
		}
		copy(col, panel.Winsorize(col, spec.WinsorLower, spec.WinsorUpper))
	}
	return nil
}

func (s *sample) column(name string) []float64 {
	for j, n := range s.names {
		if n == name {
			if j == 0 {
				return s.y
			}
			return s.x[j-1]
		}
	}
	return nil
}

func (s *sample) dimensions() (nCities, nYears int) {
	cities := make(map[string]bool)
	years := make(map[int]bool)
	for i := range s.y {
		cities[s.city[i]] = true
		years[s.year[i]] = true
	}
	return len(cities), len(years)
}

// demean removes city and year means from each column by alternating
// projections until the largest remaining cell mean is below tolerance.
func (s *sample) demean(cols [][]float64) {
	cityIdx, nCity := indexLevels(s.city)
	yearIdx, nYear := indexYears(s.year)

	for iter := 0; iter < demeanMaxIter; iter++ {
		maxShift := 0.0
		for _, col := range cols {
			maxShift = math.Max(maxShift, removeMeans(col, cityIdx, nCity))
			maxShift = math.Max(maxShift, removeMeans(col, yearIdx, nYear))
		}
		if maxShift < demeanTol {
			break
		}
	}
}

// removeMeans subtracts group means in place and returns the largest absolute
// mean removed.
func removeMeans(col []float64, groupIdx []int, nGroups int) float64 {
	sums := make([]float64, nGroups)
	counts := make([]int, nGroups)
	for i, v := range col {
		sums[groupIdx[i]] += v
		counts[groupIdx[i]]++
	}

	maxMean := 0.0
	for g := range sums {
		if counts[g] > 0 {
			sums[g] /= float64(counts[g])
			maxMean = math.Max(maxMean, math.Abs(sums[g]))
		}
	}
	for i := range col {
		col[i] -= sums[groupIdx[i]]
	}
	return maxMean
}

// solveOLS regresses y on the columns of x (no intercept: the data are
// demeaned) via QR and returns the coefficients and residuals.
func solveOLS(y []float64, x [][]float64) (beta, resid []float64, err error) {
	n, k := len(y), len(x)

	X := mat.NewDense(n, k, nil)
	for j, col := range x {
		for i, v := range col {
			X.Set(i, j, v)
		}
	}
	Y := mat.NewDense(n, 1, nil)
	for i, v := range y {
		Y.Set(i, 0, v)
	}

	var qr mat.QR
	qr.Factorize(X)

	var b mat.Dense
	if err := qr.SolveTo(&b, false, Y); err != nil {
		return nil, nil, eris.Wrap(err, "solve least squares")
	}

	beta = make([]float64, k)
	for j := 0; j < k; j++ {
		beta[j] = b.At(j, 0)
	}

	resid = make([]float64, n)
	for i := 0; i < n; i++ {
		fit := 0.0
		for j := 0; j < k; j++ {
			fit += X.At(i, j) * beta[j]
		}
		resid[i] = y[i] - fit
	}

	return beta, resid, nil
}

// clusterSE computes the city-clustered sandwich standard error of the
// treatment coefficient, with the usual small-sample factor
// G/(G-1) * (N-1)/(N-K) where K counts the regressors and absorbed effects.
func (s *sample) clusterSE(resid []float64, absorbed int) float64 {
	n := len(s.y)
	k := len(s.x)
	cityIdx, nCity := indexLevels(s.city)

	// bread: (X'X)^-1
	xtx := mat.NewDense(k, k, nil)
	for a := 0; a < k; a++ {
		for b := a; b < k; b++ {
			dot := 0.0
			for i := 0; i < n; i++ {
				dot += s.x[a][i] * s.x[b][i]
			}
			xtx.Set(a, b, dot)
			xtx.Set(b, a, dot)
		}
	}
	var bread mat.Dense
	if err := bread.Inverse(xtx); err != nil {
		return math.NaN()
	}

	// meat: sum over clusters of (X_g'u_g)(X_g'u_g)'
	scores := make([][]float64, nCity)
	for g := range scores {
		scores[g] = make([]float64, k)
	}
	for i := 0; i < n; i++ {
		g := cityIdx[i]
		for j := 0; j < k; j++ {
			scores[g][j] += s.x[j][i] * resid[i]
		}
	}
	meat := mat.NewDense(k, k, nil)
	for _, h := range scores {
		for a := 0; a < k; a++ {
			for b := 0; b < k; b++ {
				meat.Set(a, b, meat.At(a, b)+h[a]*h[b])
			}
		}
	}

	dof := n - k - absorbed
	if dof < 1 {
		dof = 1
	}
	c := float64(nCity) / float64(nCity-1) * float64(n-1) / float64(dof)

	var v mat.Dense
	v.Mul(&bread, meat)
	v.Mul(&v, &bread)

	return math.Sqrt(c * v.At(0, 0))
}

func sumSquares(xs []float64) float64 {
	total := 0.0
	for _, x := range xs {
		total += x * x
	}
	return total
}

// indexLevels maps each string key to a dense group index.
func indexLevels(keys []string) ([]int, int) {
	lookup := make(map[string]int)
	idx := make([]int, len(keys))
	for i, key := range keys {
		g, ok := lookup[key]
		if !ok {
			g = len(lookup)
			lookup[key] = g
		}
		idx[i] = g
	}
	return idx, len(lookup)
}

func indexYears(years []int) ([]int, int) {
	lookup := make(map[int]int)
	idx := make([]int, len(years))
	for i, y := range years {
		g, ok := lookup[y]
		if !ok {
			g = len(lookup)
			lookup[y] = g
		}
		idx[i] = g
	}
	return idx, len(lookup)
}
