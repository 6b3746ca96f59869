package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/avery-whitehead/StreetMapsDownload/internal/export"
	"github.com/avery-whitehead/StreetMapsDownload/internal/grouping"
	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
	"github.com/avery-whitehead/StreetMapsDownload/internal/palette"
	"github.com/avery-whitehead/StreetMapsDownload/internal/store"
)

var (
	exportOut   string
	exportBy    string
	exportRound string
)

var exportCmd = &cobra.Command{
	Use:       "export shapefile|xlsx",
	Short:     "Export groups as a point shapefile or a summary workbook",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"shapefile", "xlsx"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Require("store"); err != nil {
			return err
		}
		grouper, err := newGrouper(exportBy)
		if err != nil {
			return err
		}

		st, err := store.New(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		locs, err := st.Locations(ctx, model.Scope{Round: exportRound})
		if err != nil {
			return eris.Wrap(err, "load locations")
		}
		groups, err := grouper.Group(ctx, locs)
		if err != nil {
			return eris.Wrap(err, "group locations")
		}
		if err := grouping.Validate(groups); err != nil {
			return err
		}
		palette.Assign(groups, palette.New(cfg.Colors.Seed, cfg.Colors.PastelFactor, cfg.Colors.Trials), cfg.Colors.OutlineOffset)
		grouping.SortByPosition(groups)

		switch args[0] {
		case "shapefile":
			err = export.Shapefile(exportOut, groups)
		case "xlsx":
			err = export.Workbook(exportOut, groups)
		}
		if err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.String("kind", args[0]),
			zap.String("path", exportOut),
			zap.Int("groups", len(groups)),
			zap.Int("locations", len(locs)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output path (required)")
	exportCmd.Flags().StringVar(&exportBy, "by", "postcode", "grouping: postcode or cluster")
	exportCmd.Flags().StringVar(&exportRound, "round", "", "only export locations served by this round")
	_ = exportCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(exportCmd)
}
