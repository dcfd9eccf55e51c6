package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/carrier-sync/internal/pipeline"
	"github.com/sells-group/carrier-sync/internal/signals"
)

var (
	lookupDOT    string
	lookupFormat string
	lookupSave   bool
)

var lookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Fetch and process a single identifier",
	Long:  "Runs one USDOT number through fetch, extraction, classification, scoring and history evaluation. Nothing is written unless --save is set.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "lookup")
		if err != nil {
			return err
		}
		defer env.Close()

		var out *pipeline.Outcome
		if lookupSave {
			out, err = env.Pipeline.Process(ctx, lookupDOT)
		} else {
			out, err = env.Pipeline.Preview(ctx, lookupDOT)
		}
		if err != nil {
			return eris.Wrapf(err, "lookup %s", lookupDOT)
		}

		if lookupSave {
			if alert := env.Alerter.EvaluateInsurance(out.Insurance); alert != nil {
				env.Alerter.SendAlerts(ctx, []signals.Alert{*alert})
			}
			zap.L().Info("lookup saved",
				zap.String("dot", out.Record.ExternalID),
				zap.Bool("changed", out.Changed),
			)
		}

		return writeOutput(cmd.OutOrStdout(), lookupFormat, out)
	},
}

func init() {
	lookupCmd.Flags().StringVar(&lookupDOT, "dot", "", "USDOT number (required)")
	lookupCmd.Flags().StringVar(&lookupFormat, "format", "json", "output format: json or yaml")
	lookupCmd.Flags().BoolVar(&lookupSave, "save", false, "persist the record and rating history")
	_ = lookupCmd.MarkFlagRequired("dot")
	rootCmd.AddCommand(lookupCmd)
}
