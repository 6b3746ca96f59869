package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/avery-whitehead/StreetMapsDownload/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:          "streetmaps",
	Short:        "Printable street maps for addresses, postcodes and collection rounds",
	Long:         "Groups geocoded addresses, fetches ArcGIS or Mapbox map images at several scales, composes them onto print templates and merges each collection round into one PDF.",
	SilenceUsage: true,
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
