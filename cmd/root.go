package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/renewal-panel/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "renewal-panel",
	Short: "Fixed-effects analysis of urban renewal and housing prices",
	Long: "Loads the 2013-2018 prefecture-level city panel, constructs the derived\n" +
		"variables, estimates two-way fixed-effects regressions with city-clustered\n" +
		"standard errors, and writes descriptive tables, a regression summary, and charts.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return cfg.Validate()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
