package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tramites-sync/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "tramites",
	Short: "Weekly sync of the government procedures catalog",
	Long:  "Fetches every procedure from the public portal, diffs it against the previous snapshot, and appends additions, removals and field changes to CSV changelogs.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
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
