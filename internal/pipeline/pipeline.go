// Package pipeline wires the four analysis stages: load, derive, estimate,
// report.
package pipeline

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/renewal-panel/internal/config"
	"github.com/sells-group/renewal-panel/internal/panel"
	"github.com/sells-group/renewal-panel/internal/regress"
	"github.com/sells-group/renewal-panel/internal/report"
	"github.com/sells-group/renewal-panel/internal/store"
)

// Run executes the full analysis. Loader and report failures are fatal;
// invalid log-transform inputs and per-spec estimation failures degrade
// gracefully. Returns the estimation outcomes for display.
func Run(ctx context.Context, cfg *config.Config) ([]regress.Outcome, error) {
	t, err := LoadPanel(cfg)
	if err != nil {
		return nil, err
	}

	specs := regress.DefaultSpecs(cfg.Panel.MinCityObs, cfg.Panel.WinsorLower, cfg.Panel.WinsorUpper)
	outcomes := regress.EstimateAll(ctx, t, specs, cfg.Regress.Concurrency)

	w := &report.Writer{OutDir: cfg.Output.Dir, DataPath: cfg.Data.Path}
	if err := w.WriteAll(t, outcomes); err != nil {
		return outcomes, err
	}

	if cfg.Store.Path != "" {
		if err := saveOutcomes(ctx, cfg, t, outcomes); err != nil {
			return outcomes, err
		}
	}

	return outcomes, nil
}

// LoadPanel loads the raw table and constructs the derived variables.
// A DataAccessError aborts; invalid values in the log transforms are logged
// inside Derive and the surviving rows proceed.
func LoadPanel(cfg *config.Config) (*panel.Table, error) {
	t, err := panel.Load(cfg.Data.Path, panel.LoadOptions{
		MinYear: cfg.Data.MinYear,
		MaxYear: cfg.Data.MaxYear,
	})
	if err != nil {
		return nil, err
	}

	if err := panel.Derive(t); err != nil {
		var invalid *panel.InvalidValueError
		if !errors.As(err, &invalid) {
			return nil, eris.Wrap(err, "pipeline: derive")
		}
		// already logged by Derive; the affected rows drop out of the
		// regression samples
	}

	return t, nil
}

func saveOutcomes(ctx context.Context, cfg *config.Config, t *panel.Table, outcomes []regress.Outcome) error {
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

	zap.L().Info("run saved", zap.String("run_id", runID), zap.String("store", cfg.Store.Path))
	return nil
}
