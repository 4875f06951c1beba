// Package regress estimates two-way fixed-effects panel regressions with
// city-clustered standard errors.
package regress

import (
	"fmt"

	"github.com/sells-group/renewal-panel/internal/panel"
)

// Spec is a named, self-contained regression configuration. Specs share no
// state and can be estimated in any order.
type Spec struct {
	Name     string
	Dep      string
	Treat    string
	Controls []string

	// Sample filters, applied after dropping rows with missing variables.
	MinCityObs int         // keep cities observed at least this many years
	Group      panel.Group // restrict to one tercile, GroupNone = all

	// Winsorize clips the listed columns to the [WinsorLower, WinsorUpper]
	// quantiles of the estimation sample before fitting.
	Winsorize   []string
	WinsorLower float64
	WinsorUpper float64
}

// Result holds the treatment coefficient of a fitted spec. Write-once.
type Result struct {
	SpecName string  `json:"spec"`
	Coef     float64 `json:"coef"`
	StdErr   float64 `json:"se"`
	PValue   float64 `json:"p"`
	CILow    float64 `json:"ci_low"`
	CIHigh   float64 `json:"ci_high"`
	R2Within float64 `json:"r2_within"`
	NObs     int     `json:"nobs"`
	NCities  int     `json:"n_city"`
	NYears   int     `json:"n_year"`
}

// Outcome pairs a spec with its result or its estimation error.
type Outcome struct {
	Spec   Spec
	Result *Result
	Err    error
}

// UnderidentifiedModelError reports a spec whose sample has too little
// variation to separate the fixed effects.
type UnderidentifiedModelError struct {
	SpecName string
	NCities  int
	NYears   int
}

func (e *UnderidentifiedModelError) Error() string {
	return fmt.Sprintf("regress: spec %q underidentified: %d cities, %d years (need >= 2 of each)",
		e.SpecName, e.NCities, e.NYears)
}

// DefaultSpecs returns the baseline model, the three robustness checks, and
// the tercile heterogeneity splits, in reporting order.
func DefaultSpecs(minCityObs int, winsorLower, winsorUpper float64) []Spec {
	base := Spec{
		Dep:   panel.ColLogPrice,
		Treat: panel.ColLogRenewalLag,
	}

	baseline := base
	baseline.Name = "baseline_level"

	delta := base
	delta.Name = "delta_dep"
	delta.Dep = panel.ColDLogPrice

	winsor := base
	winsor.Name = "winsor_1_99"
	winsor.Winsorize = []string{panel.ColLogPrice, panel.ColLogRenewalLag}
	winsor.WinsorLower = winsorLower
	winsor.WinsorUpper = winsorUpper

	longPanel := base
	longPanel.Name = fmt.Sprintf("city_obs>=%d", minCityObs)
	longPanel.MinCityObs = minCityObs

	specs := []Spec{baseline, delta, winsor, longPanel}
	for _, g := range []panel.Group{panel.GroupLow, panel.GroupMiddle, panel.GroupHigh} {
		s := base
		s.Name = "hetero_renewal_" + string(g)
		s.Group = g
		specs = append(specs, s)
	}
	return specs
}
