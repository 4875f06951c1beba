package regress

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/renewal-panel/internal/panel"
)

// obs is one synthetic city-year point with its outcome and treatment
// already on the log scale.
type obs struct {
	city  string
	year  int
	y     float64
	x     float64
	group panel.Group
}

func syntheticTable(points []obs) *panel.Table {
	nan := math.NaN()
	counts := map[string]int{}
	for _, p := range points {
		counts[p.city]++
	}

	t := &panel.Table{}
	for _, p := range points {
		r := &panel.Row{
			City:           p.city,
			Year:           p.year,
			Price:          nan,
			Renewal:        nan,
			Deflator:       1,
			LogPrice:       p.y,
			LogRenewal:     nan,
			LogRenewalLag:  p.x,
			DLogPrice:      nan,
			LongRunRenewal: nan,
			CityObsCount:   counts[p.city],
			Group:          p.group,
		}
		t.Rows = append(t.Rows, r)
	}
	t.SortByCityYear()
	return t
}

// feTable builds y = beta*x + mu_city + lambda_year with no noise.
func feTable(beta float64) *panel.Table {
	mu := map[string]float64{"A": 0, "B": 1.5, "C": -0.7}
	lambda := map[int]float64{2013: 0, 2014: 0.4, 2015: -0.2, 2016: 0.9}
	xs := map[string][]float64{
		"A": {0.3, 1.1, 0.7, 2.0},
		"B": {1.9, 0.2, 1.4, 0.8},
		"C": {0.5, 1.6, 2.2, 0.1},
	}

	var points []obs
	for city, series := range xs {
		for i, x := range series {
			year := 2013 + i
			points = append(points, obs{
				city: city,
				year: year,
				y:    beta*x + mu[city] + lambda[year],
				x:    x,
			})
		}
	}
	return syntheticTable(points)
}

func baseSpec(name string) Spec {
	return Spec{Name: name, Dep: panel.ColLogPrice, Treat: panel.ColLogRenewalLag}
}

func TestEstimate_RecoversCoefficient(t *testing.T) {
	tbl := feTable(2.0)

	res, err := Estimate(tbl, baseSpec("baseline_level"))
	require.NoError(t, err)

	assert.InDelta(t, 2.0, res.Coef, 1e-6)
	assert.InDelta(t, 0.0, res.StdErr, 1e-6)
	assert.InDelta(t, 1.0, res.R2Within, 1e-9)
	assert.Equal(t, 12, res.NObs)
	assert.Equal(t, 3, res.NCities)
	assert.Equal(t, 4, res.NYears)
}

func TestEstimate_WithNoise(t *testing.T) {
	tbl := feTable(2.0)
	// deterministic perturbation, small relative to the signal
	noise := []float64{0.03, -0.02, 0.01, -0.04, 0.02, 0.05, -0.01, -0.03, 0.04, -0.05, 0.01, 0.02}
	for i, r := range tbl.Rows {
		r.LogPrice += noise[i]
	}

	res, err := Estimate(tbl, baseSpec("baseline_level"))
	require.NoError(t, err)

	assert.InDelta(t, 2.0, res.Coef, 0.2)
	assert.Greater(t, res.StdErr, 0.0)
	assert.GreaterOrEqual(t, res.PValue, 0.0)
	assert.LessOrEqual(t, res.PValue, 1.0)
	assert.Less(t, res.CILow, res.Coef)
	assert.Greater(t, res.CIHigh, res.Coef)
	assert.InDelta(t, res.Coef-1.96*res.StdErr, res.CILow, 1e-12)
	assert.InDelta(t, res.Coef+1.96*res.StdErr, res.CIHigh, 1e-12)
	assert.Less(t, res.R2Within, 1.0)
}

func TestEstimate_SingleCityUnderidentified(t *testing.T) {
	tbl := syntheticTable([]obs{
		{city: "A", year: 2013, y: 1, x: 0.5},
		{city: "A", year: 2014, y: 2, x: 0.7},
		{city: "A", year: 2015, y: 3, x: 0.9},
	})

	_, err := Estimate(tbl, baseSpec("single_city"))
	require.Error(t, err)

	var uid *UnderidentifiedModelError
	require.ErrorAs(t, err, &uid)
	assert.Equal(t, 1, uid.NCities)
	assert.Equal(t, 3, uid.NYears)
}

func TestEstimate_SingleYearUnderidentified(t *testing.T) {
	tbl := syntheticTable([]obs{
		{city: "A", year: 2013, y: 1, x: 0.5},
		{city: "B", year: 2013, y: 2, x: 0.7},
		{city: "C", year: 2013, y: 3, x: 0.9},
	})

	_, err := Estimate(tbl, baseSpec("single_year"))

	var uid *UnderidentifiedModelError
	require.ErrorAs(t, err, &uid)
	assert.Equal(t, 1, uid.NYears)
}

func TestEstimate_MissingRowsDropped(t *testing.T) {
	tbl := feTable(2.0)
	// knock out one treatment value: that row leaves the sample
	tbl.Rows[0].LogRenewalLag = math.NaN()

	res, err := Estimate(tbl, baseSpec("baseline_level"))
	require.NoError(t, err)
	assert.Equal(t, 11, res.NObs)
	assert.InDelta(t, 2.0, res.Coef, 1e-6)
}

func TestEstimate_MinCityObsFilter(t *testing.T) {
	tbl := feTable(2.0)
	// add a short-panel city that would only add noise
	extra := syntheticTable([]obs{
		{city: "D", year: 2013, y: 99, x: 1.0},
		{city: "D", year: 2014, y: -99, x: 1.2},
	})
	tbl.Rows = append(tbl.Rows, extra.Rows...)
	tbl.SortByCityYear()

	spec := baseSpec("city_obs>=3")
	spec.MinCityObs = 3

	res, err := Estimate(tbl, spec)
	require.NoError(t, err)
	assert.Equal(t, 12, res.NObs)
	assert.Equal(t, 3, res.NCities)
	assert.InDelta(t, 2.0, res.Coef, 1e-6)
}

func TestEstimate_GroupFilter(t *testing.T) {
	tbl := feTable(2.0)
	for _, r := range tbl.Rows {
		if r.City == "A" || r.City == "B" {
			r.Group = panel.GroupHigh
		} else {
			r.Group = panel.GroupLow
		}
	}

	spec := baseSpec("hetero_renewal_high")
	spec.Group = panel.GroupHigh

	res, err := Estimate(tbl, spec)
	require.NoError(t, err)
	assert.Equal(t, 8, res.NObs)
	assert.Equal(t, 2, res.NCities)

	// the low group has a single city: underidentified
	spec = baseSpec("hetero_renewal_low")
	spec.Group = panel.GroupLow

	_, err = Estimate(tbl, spec)
	var uid *UnderidentifiedModelError
	require.ErrorAs(t, err, &uid)
}

func TestEstimate_WinsorNoOutliersMatchesBaseline(t *testing.T) {
	tbl := feTable(2.0)

	base, err := Estimate(tbl, baseSpec("baseline_level"))
	require.NoError(t, err)

	spec := baseSpec("winsor_1_99")
	spec.Winsorize = []string{panel.ColLogPrice, panel.ColLogRenewalLag}
	spec.WinsorLower = 0
	spec.WinsorUpper = 1

	winsor, err := Estimate(tbl, spec)
	require.NoError(t, err)
	assert.InDelta(t, base.Coef, winsor.Coef, 1e-12)
	assert.InDelta(t, base.StdErr, winsor.StdErr, 1e-12)
}

func TestEstimate_WinsorTamesOutlier(t *testing.T) {
	tbl := feTable(2.0)
	tbl.Rows[5].LogPrice += 50 // gross outlier

	base, err := Estimate(tbl, baseSpec("baseline_level"))
	require.NoError(t, err)

	spec := baseSpec("winsor")
	spec.Winsorize = []string{panel.ColLogPrice}
	spec.WinsorLower = 0.1
	spec.WinsorUpper = 0.9

	winsor, err := Estimate(tbl, spec)
	require.NoError(t, err)
	assert.Less(t, math.Abs(winsor.Coef-2.0), math.Abs(base.Coef-2.0))
}

func TestEstimate_EmptySampleWinsorSpec(t *testing.T) {
	// single-year cities: the lagged treatment is missing everywhere, so the
	// winsorizing spec has an empty sample and must report underidentification
	tbl := syntheticTable([]obs{
		{city: "A", year: 2013, y: 1, x: math.NaN()},
		{city: "B", year: 2014, y: 2, x: math.NaN()},
	})

	spec := baseSpec("winsor_1_99")
	spec.Winsorize = []string{panel.ColLogPrice, panel.ColLogRenewalLag}
	spec.WinsorLower = 0.01
	spec.WinsorUpper = 0.99

	_, err := Estimate(tbl, spec)
	require.Error(t, err)

	var uid *UnderidentifiedModelError
	require.ErrorAs(t, err, &uid)
	assert.Equal(t, 0, uid.NCities)
	assert.Equal(t, 0, uid.NYears)
	assert.NotContains(t, err.Error(), "unknown column")
}

func TestEstimate_WinsorUnknownColumn(t *testing.T) {
	tbl := feTable(2.0)

	spec := baseSpec("bad_winsor")
	spec.Winsorize = []string{"no_such_column"}

	_, err := Estimate(tbl, spec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown column")
}

func TestEstimate_ConstantTreatmentUnderidentified(t *testing.T) {
	// a treatment with no within variation is absorbed by the fixed effects
	tbl := feTable(2.0)
	for _, r := range tbl.Rows {
		r.LogRenewalLag = 1.0
	}

	_, err := Estimate(tbl, baseSpec("constant_treat"))
	var uid *UnderidentifiedModelError
	require.ErrorAs(t, err, &uid)
}

func TestEstimate_TableNotMutated(t *testing.T) {
	tbl := feTable(2.0)
	before := make([]float64, len(tbl.Rows))
	for i, r := range tbl.Rows {
		before[i] = r.LogPrice
	}

	spec := baseSpec("winsor")
	spec.Winsorize = []string{panel.ColLogPrice}
	spec.WinsorLower = 0.1
	spec.WinsorUpper = 0.9
	_, err := Estimate(tbl, spec)
	require.NoError(t, err)

	for i, r := range tbl.Rows {
		assert.Equal(t, before[i], r.LogPrice)
	}
}

func TestEstimateAll_OrderAndIndependence(t *testing.T) {
	tbl := feTable(2.0)

	specs := []Spec{
		baseSpec("baseline_level"),
		{Name: "broken", Dep: panel.ColDLogPrice, Treat: panel.ColLogRenewalLag}, // all-NaN dep
		baseSpec("again"),
	}

	outcomes := EstimateAll(context.Background(), tbl, specs, 0)
	require.Len(t, outcomes, 3)

	assert.Equal(t, "baseline_level", outcomes[0].Spec.Name)
	assert.Equal(t, "broken", outcomes[1].Spec.Name)
	assert.Equal(t, "again", outcomes[2].Spec.Name)

	require.NoError(t, outcomes[0].Err)
	require.Error(t, outcomes[1].Err)
	var uid *UnderidentifiedModelError
	assert.ErrorAs(t, outcomes[1].Err, &uid)

	// the failed middle spec must not perturb its neighbors
	assert.InDelta(t, outcomes[0].Result.Coef, outcomes[2].Result.Coef, 1e-12)
}

func TestEstimateAll_ParallelMatchesSequential(t *testing.T) {
	tbl := feTable(2.0)
	specs := DefaultSpecs(3, 0.01, 0.99)

	seq := EstimateAll(context.Background(), tbl, specs, 0)
	par := EstimateAll(context.Background(), tbl, specs, 4)

	require.Len(t, par, len(seq))
	for i := range seq {
		assert.Equal(t, seq[i].Spec.Name, par[i].Spec.Name)
		if seq[i].Err != nil {
			assert.Error(t, par[i].Err)
			continue
		}
		require.NoError(t, par[i].Err)
		assert.Equal(t, seq[i].Result.Coef, par[i].Result.Coef)
		assert.Equal(t, seq[i].Result.StdErr, par[i].Result.StdErr)
	}
}

func TestDefaultSpecs(t *testing.T) {
	specs := DefaultSpecs(3, 0.01, 0.99)
	require.Len(t, specs, 7)

	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	assert.Equal(t, []string{
		"baseline_level", "delta_dep", "winsor_1_99", "city_obs>=3",
		"hetero_renewal_low", "hetero_renewal_middle", "hetero_renewal_high",
	}, names)

	assert.Equal(t, panel.ColDLogPrice, specs[1].Dep)
	assert.Equal(t, []string{panel.ColLogPrice, panel.ColLogRenewalLag}, specs[2].Winsorize)
	assert.Equal(t, 3, specs[3].MinCityObs)
	assert.Equal(t, panel.GroupLow, specs[4].Group)
	assert.Equal(t, panel.GroupMiddle, specs[5].Group)
	assert.Equal(t, panel.GroupHigh, specs[6].Group)
}
