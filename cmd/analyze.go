package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/renewal-panel/internal/pipeline"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the full analysis pipeline",
	Long: `Run the full analysis: load the panel, construct derived variables,
estimate the baseline, robustness, and heterogeneity specs, and write all
tables and charts to the output directory.

Behavior is fully determined by the configured input path and output
directory; no arguments are required.

Examples:
  # Run with config defaults (data/ -> results/)
  renewal-panel analyze

  # Override the input file
  renewal-panel analyze --data panel.csv

  # Persist results to the SQLite store as well
  renewal-panel analyze --store results/runs.db`,
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.String("data", "", "input panel file (.dta or .csv, overrides config)")
	f.String("out", "", "output directory (overrides config)")
	f.String("store", "", "SQLite results store path (overrides config)")

	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	applyDataFlags(cmd)
	if v, _ := cmd.Flags().GetString("store"); v != "" {
		cfg.Store.Path = v
	}

	log := zap.L().With(zap.String("command", "analyze"))
	log.Info("starting analysis",
		zap.String("data", cfg.Data.Path),
		zap.String("out", cfg.Output.Dir),
	)

	outcomes, err := pipeline.Run(ctx, cfg)
	if err != nil {
		return err
	}

	printOutcomes(outcomes)
	fmt.Printf("Artifacts written to %s\n", cfg.Output.Dir)

	return nil
}

// applyDataFlags copies shared data flags into the loaded config.
func applyDataFlags(cmd *cobra.Command) {
	if v, _ := cmd.Flags().GetString("data"); v != "" {
		cfg.Data.Path = v
	}
	if v, _ := cmd.Flags().GetString("out"); v != "" {
		cfg.Output.Dir = v
	}
}
