package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/avery-whitehead/StreetMapsDownload/assets"
	"github.com/avery-whitehead/StreetMapsDownload/internal/compose"
	"github.com/avery-whitehead/StreetMapsDownload/internal/layout"
	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
	"github.com/avery-whitehead/StreetMapsDownload/internal/printer"
	"github.com/avery-whitehead/StreetMapsDownload/internal/store"
	"github.com/avery-whitehead/StreetMapsDownload/internal/webmap"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove intermediate page artifacts from the work dir",
	RunE: func(cmd *cobra.Command, _ []string) error {
		layouts, err := layout.Load(cfg.Paths.Layouts)
		if err != nil {
			return err
		}
		n, err := printer.Cleanup(cfg.Paths.WorkDir, layouts.Templates())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d file(s) from %s\n", n, cfg.Paths.WorkDir)
		return nil
	},
}

var roundsCmd = &cobra.Command{
	Use:   "rounds",
	Short: "List the distinct collection rounds",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Require("store"); err != nil {
			return err
		}
		st, err := store.New(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rounds, err := st.Rounds(ctx)
		if err != nil {
			return eris.Wrap(err, "list rounds")
		}
		for _, r := range rounds {
			fmt.Fprintln(cmd.OutOrStdout(), r)
		}
		return nil
	},
}

var storeImportFile string

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage the location store",
}

var storeMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the location, round and print log tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Require("store"); err != nil {
			return err
		}
		// store.New migrates database stores on open.
		st, err := store.New(cmd.Context(), cfg.Store)
		if err != nil {
			return err
		}
		zap.L().Info("store migrated", zap.String("driver", cfg.Store.Driver))
		return st.Close()
	},
}

var storeImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Load locations from a CSV or XLSX file into the database store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Require("store"); err != nil {
			return err
		}
		src, err := store.NewFile(storeImportFile, cfg.Store.Sheet)
		if err != nil {
			return err
		}
		defer src.Close() //nolint:errcheck

		locs, err := src.Locations(ctx, model.Scope{})
		if err != nil {
			return eris.Wrap(err, "read import file")
		}

		st, err := store.New(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		imp, ok := st.(store.Importer)
		if !ok {
			return &model.ConfigurationError{Item: "store.driver", Err: eris.Errorf("%s store does not accept imports", cfg.Store.Driver)}
		}
		n, err := imp.Import(ctx, locs)
		if err != nil {
			return eris.Wrap(err, "import locations")
		}

		zap.L().Info("import complete",
			zap.String("file", storeImportFile),
			zap.Int64("rows", n),
		)
		return nil
	},
}

var assetsForce bool

var assetsCmd = &cobra.Command{
	Use:   "assets",
	Short: "Manage print templates",
}

var assetsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write blank page templates and the default web map templates",
	RunE: func(cmd *cobra.Command, _ []string) error {
		layouts, err := layout.Load(cfg.Paths.Layouts)
		if err != nil {
			return err
		}
		dir := cfg.Paths.AssetsDir
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrap(err, "create assets dir")
		}

		for name, size := range layouts.TemplateSizes() {
			path := filepath.Join(dir, name)
			if exists(path) && !assetsForce {
				zap.L().Info("template exists, skipping", zap.String("path", path))
				continue
			}
			if err := printer.Save(compose.Blank(size), path, cfg.Print.DPI); err != nil {
				return err
			}
			zap.L().Info("wrote template", zap.String("path", path), zap.Int("width", size.X), zap.Int("height", size.Y))
		}

		for path, data := range map[string][]byte{
			cfg.Paths.WebMap:          assets.WebMap,
			cfg.Paths.WebMapClustered: assets.WebMapClustered,
		} {
			if exists(path) && !assetsForce {
				continue
			}
			if _, err := webmap.Parse(data); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return eris.Wrap(err, "create web map dir")
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return eris.Wrap(err, "write web map template")
			}
			zap.L().Info("wrote web map template", zap.String("path", path))
		}
		return nil
	},
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func init() {
	storeImportCmd.Flags().StringVar(&storeImportFile, "file", "", "CSV or XLSX file of locations (required)")
	_ = storeImportCmd.MarkFlagRequired("file")
	storeCmd.AddCommand(storeMigrateCmd, storeImportCmd)

	assetsInitCmd.Flags().BoolVar(&assetsForce, "force", false, "overwrite existing templates")
	assetsCmd.AddCommand(assetsInitCmd)

	rootCmd.AddCommand(cleanupCmd, roundsCmd, storeCmd, assetsCmd)
}
