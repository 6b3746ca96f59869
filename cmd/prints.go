package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
	"github.com/avery-whitehead/StreetMapsDownload/internal/monitoring"
	"github.com/avery-whitehead/StreetMapsDownload/internal/pipeline"
)

var (
	printsProvider  string
	printsFormat    string
	printsBy        string
	printsRound     string
	printsNoCleanup bool
	printsPublish   bool
)

var printsCmd = &cobra.Command{
	Use:   "prints",
	Short: "Render map prints",
}

var printsSingleCmd = &cobra.Command{
	Use:   "single <uprn>",
	Short: "Print one address at every scale",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPrintEnv(ctx, printOptions{Provider: printsProvider, Format: printsFormat})
		if err != nil {
			return err
		}
		defer env.Close()

		rep, err := env.Pipeline.RunSingle(ctx, args[0])
		return finish(cmd, rep, err)
	},
}

var printsGroupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Print one page per postcode or cluster",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPrintEnv(ctx, printOptions{By: printsBy, Provider: printsProvider, Format: printsFormat})
		if err != nil {
			return err
		}
		defer env.Close()

		rep, err := env.Pipeline.RunGroups(ctx, model.Scope{Round: printsRound})
		return finish(cmd, rep, err)
	},
}

var printsRoundsCmd = &cobra.Command{
	Use:   "rounds",
	Short: "Print and merge one document per collection round",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPrintEnv(ctx, printOptions{
			By:       printsBy,
			Provider: printsProvider,
			Cleanup:  !printsNoCleanup,
			Publish:  printsPublish,
		})
		if err != nil {
			return err
		}
		defer env.Close()

		rep, err := env.Pipeline.RunRounds(ctx)
		return finish(cmd, rep, err)
	},
}

// finish prints the run summary, raises threshold alerts and turns recorded
// failures into a non-zero exit.
func finish(cmd *cobra.Command, rep *pipeline.Report, err error) error {
	if rep != nil {
		fmt.Fprint(cmd.OutOrStdout(), rep.Summary())
		alerter := monitoring.NewAlerter(cfg.Monitoring)
		alerter.SendAlerts(cmd.Context(), alerter.Evaluate(monitoring.SnapshotOf(rep)))
	}
	if err != nil {
		return err
	}
	if rep.Failed() {
		return eris.Errorf("%d group(s) or round(s) failed", len(rep.Failures))
	}
	return nil
}

func init() {
	printsCmd.PersistentFlags().StringVar(&printsProvider, "provider", "", "map provider: esri or mapbox (default from config)")
	printsCmd.PersistentFlags().StringVar(&printsBy, "by", "postcode", "grouping: postcode or cluster")

	printsSingleCmd.Flags().StringVar(&printsFormat, "format", "", "output format: pdf or jpg (default from config)")

	printsGroupsCmd.Flags().StringVar(&printsFormat, "format", "", "output format: pdf or jpg (default from config)")
	printsGroupsCmd.Flags().StringVar(&printsRound, "round", "", "only print locations served by this round")

	printsRoundsCmd.Flags().BoolVar(&printsNoCleanup, "no-cleanup", false, "keep intermediate page artifacts in the work dir")
	printsRoundsCmd.Flags().BoolVar(&printsPublish, "publish", false, "upload merged rounds to the configured target")

	printsCmd.AddCommand(printsSingleCmd, printsGroupsCmd, printsRoundsCmd)
	rootCmd.AddCommand(printsCmd)
}
