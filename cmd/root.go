package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/research-brief/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "research-brief",
	Short: "Market research briefs for business ideas",
	Long:  "Classifies a business idea, drafts its description, problem and competitive landscape with Claude, sizes keyword demand, and gathers proof-of-demand signals into one research brief.",
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
