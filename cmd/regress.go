package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/renewal-panel/internal/pipeline"
	"github.com/sells-group/renewal-panel/internal/regress"
	"github.com/sells-group/renewal-panel/internal/store"
)

var regressCmd = &cobra.Command{
	Use:   "regress",
	Short: "Estimate the fixed-effects specs",
	Long: `Load the panel, construct the derived variables, and estimate the
two-way fixed-effects specs with city-clustered standard errors.

Examples:
  # All specs, table output
  renewal-panel regress

  # Only the baseline and the winsorized robustness check
  renewal-panel regress --spec baseline_level,winsor_1_99

  # Export to CSV and persist to the results store
  renewal-panel regress --format csv --output summary.csv --save`,
	RunE: runRegress,
}

func init() {
	f := regressCmd.Flags()
	f.String("data", "", "input panel file (.dta or .csv, overrides config)")
	f.String("out", "", "output directory (overrides config)")
	f.String("spec", "", "comma-separated spec names (default: all)")
	f.String("format", "table", "output format: table or csv")
	f.String("output", "", "output file path (default: stdout)")
	f.Bool("save", false, "save results to the SQLite store")

	rootCmd.AddCommand(regressCmd)
}

func runRegress(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	applyDataFlags(cmd)

	format, _ := cmd.Flags().GetString("format")
	if format != "table" && format != "csv" {
		return eris.Errorf("regress: --format must be table or csv (got %q)", format)
	}

	t, err := pipeline.LoadPanel(cfg)
	if err != nil {
		return err
	}

	specs := regress.DefaultSpecs(cfg.Panel.MinCityObs, cfg.Panel.WinsorLower, cfg.Panel.WinsorUpper)
	if filter, _ := cmd.Flags().GetString("spec"); filter != "" {
		specs, err = filterSpecs(specs, splitAndTrim(filter))
		if err != nil {
			return err
		}
	}

	outcomes := regress.EstimateAll(ctx, t, specs, cfg.Regress.Concurrency)

	outputPath, _ := cmd.Flags().GetString("output")
	if err := outputOutcomes(outcomes, format, outputPath); err != nil {
		return err
	}

	if save, _ := cmd.Flags().GetBool("save"); save {
		if cfg.Store.Path == "" {
			return eris.New("regress: --save requires store.path to be configured")
		}
		s, err := store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer s.Close()
		if err := s.Migrate(ctx); err != nil {
			return err
		}

		runID, err := s.SaveRun(ctx, store.Run{
			DataPath: cfg.Data.Path,
			Rows:     t.Len(),
			Cities:   len(t.Cities()),
			Years:    len(t.Years()),
		}, store.FromOutcomes(outcomes))
		if err != nil {
			return err
		}
		fmt.Printf("Saved %d results to %s (run %s)\n", len(outcomes), cfg.Store.Path, runID)
	}

	return nil
}

func filterSpecs(specs []regress.Spec, names []string) ([]regress.Spec, error) {
	byName := make(map[string]regress.Spec, len(specs))
	for _, s := range specs {
		byName[s.Name] = s
	}

	var kept []regress.Spec
	for _, name := range names {
		s, ok := byName[name]
		if !ok {
			return nil, eris.Errorf("regress: unknown spec %q", name)
		}
		kept = append(kept, s)
	}
	return kept, nil
}

func outputOutcomes(outcomes []regress.Outcome, format, path string) error {
	if format == "csv" {
		out := os.Stdout
		if path != "" {
			f, err := os.Create(path)
			if err != nil {
				return eris.Wrapf(err, "regress: create %s", path)
			}
			defer f.Close()
			out = f
		}

		w := csv.NewWriter(out)
		defer w.Flush()
		if err := w.Write([]string{"spec", "status", "coef", "se", "p", "ci_low", "ci_high", "r2_within", "nobs", "n_city", "n_year"}); err != nil {
			return eris.Wrap(err, "regress: write header")
		}
		for _, o := range outcomes {
			var row []string
			if o.Err != nil {
				row = []string{o.Spec.Name, "failed", "", "", "", "", "", "", "", "", ""}
			} else {
				r := o.Result
				row = []string{
					r.SpecName, "ok",
					fmt.Sprintf("%g", r.Coef), fmt.Sprintf("%g", r.StdErr), fmt.Sprintf("%g", r.PValue),
					fmt.Sprintf("%g", r.CILow), fmt.Sprintf("%g", r.CIHigh), fmt.Sprintf("%g", r.R2Within),
					fmt.Sprintf("%d", r.NObs), fmt.Sprintf("%d", r.NCities), fmt.Sprintf("%d", r.NYears),
				}
			}
			if err := w.Write(row); err != nil {
				return eris.Wrap(err, "regress: write row")
			}
		}
		return nil
	}

	printOutcomes(outcomes)
	return nil
}

func printOutcomes(outcomes []regress.Outcome) {
	fmt.Printf("%-24s %10s %10s %8s %22s %10s %6s\n",
		"spec", "coef", "se", "p", "95% CI", "r2_within", "nobs")
	for _, o := range outcomes {
		if o.Err != nil {
			fmt.Printf("%-24s failed: %v\n", o.Spec.Name, o.Err)
			zap.L().Debug("spec omitted from table", zap.String("spec", o.Spec.Name))
			continue
		}
		r := o.Result
		fmt.Printf("%-24s %10.4f %10.4f %8.4f [%9.4f, %9.4f] %10.4f %6d\n",
			r.SpecName, r.Coef, r.StdErr, r.PValue, r.CILow, r.CIHigh, r.R2Within, r.NObs)
	}
}

// splitAndTrim splits a comma-separated list and trims whitespace.
func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
