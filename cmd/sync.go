package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/carrier-sync/internal/idimport"
	"github.com/sells-group/carrier-sync/internal/model"
	"github.com/sells-group/carrier-sync/internal/regsync"
)

var (
	syncLimit    int
	syncDays     int
	syncIDs      string
	syncFile     string
	syncColumn   string
	syncSheet    string
	syncFormat   string
	syncFailOnly bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run bulk refresh and discovery jobs",
}

var syncStaleCmd = &cobra.Command{
	Use:   "stale",
	Short: "Refresh entities not synced within --days",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSyncJob(cmd, regsync.JobRequest{
			JobType:   model.JobTypeStaleRefresh,
			Limit:     syncLimit,
			StaleDays: syncDays,
		})
	},
}

var syncDiscoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Ingest an explicit list of new identifiers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ids, err := discoverIDs(cmd.Context())
		if err != nil {
			return err
		}
		return runSyncJob(cmd, regsync.JobRequest{
			JobType: model.JobTypeDiscover,
			Limit:   syncLimit,
			IDs:     ids,
		})
	},
}

// discoverIDs reads identifiers from --ids or --file. Malformed values are
// logged and skipped.
func discoverIDs(ctx context.Context) ([]string, error) {
	var res *idimport.Result
	switch {
	case syncIDs != "" && syncFile != "":
		return nil, eris.New("use either --ids or --file, not both")
	case syncIDs != "":
		res = idimport.ParseList(syncIDs)
	case syncFile != "":
		r, err := idimport.ReadFile(ctx, syncFile, idimport.Options{Column: syncColumn, Sheet: syncSheet})
		if err != nil {
			return nil, err
		}
		res = r
	default:
		return nil, eris.New("one of --ids or --file is required")
	}

	if len(res.Rejected) > 0 {
		zap.L().Warn("skipping malformed identifiers",
			zap.Int("count", len(res.Rejected)),
			zap.Strings("values", res.Rejected),
		)
	}
	if len(res.IDs) == 0 {
		return nil, eris.New("no valid identifiers to discover")
	}
	return res.IDs, nil
}

// runSyncJob submits and runs a job in the foreground. SIGINT or SIGTERM
// stops dispatch at the next identifier; the job is still recorded.
func runSyncJob(cmd *cobra.Command, req regsync.JobRequest) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env, err := initEnv(ctx, "sync")
	if err != nil {
		return err
	}
	defer env.Close()

	job, err := env.Engine.Submit(ctx, req)
	if err != nil {
		return eris.Wrap(err, "submit job")
	}
	zap.L().Info("job submitted",
		zap.String("job_id", job.ID),
		zap.String("job_type", string(job.JobType)),
		zap.Int("targets", len(job.Targets)),
	)

	id := job.ID
	job, err = env.Engine.RunJob(ctx, job)
	if err != nil {
		return eris.Wrapf(err, "run job %s", id)
	}

	if err := writeOutput(cmd.OutOrStdout(), syncFormat, job); err != nil {
		return err
	}
	if job.Status == model.JobStatusFailed {
		return eris.Errorf("job %s failed: %s", job.ID, job.Error)
	}
	if syncFailOnly && job.Failed > 0 {
		return eris.Errorf("job %s: %d of %d identifiers failed", job.ID, job.Failed, job.Processed)
	}
	return nil
}

func init() {
	syncCmd.PersistentFlags().IntVar(&syncLimit, "limit", 0, "max identifiers in the job (default from config)")
	syncCmd.PersistentFlags().StringVar(&syncFormat, "format", "json", "output format: json or yaml")
	syncCmd.PersistentFlags().BoolVar(&syncFailOnly, "fail-on-errors", false, "exit non-zero when any identifier fails")

	syncStaleCmd.Flags().IntVar(&syncDays, "days", 0, "stale threshold in days (default from config)")

	syncDiscoverCmd.Flags().StringVar(&syncIDs, "ids", "", "comma-separated USDOT numbers")
	syncDiscoverCmd.Flags().StringVar(&syncFile, "file", "", "CSV, TXT or XLSX file of USDOT numbers")
	syncDiscoverCmd.Flags().StringVar(&syncColumn, "column", "", "identifier column header (default: detect)")
	syncDiscoverCmd.Flags().StringVar(&syncSheet, "sheet", "", "XLSX sheet name (default: first sheet)")

	syncCmd.AddCommand(syncStaleCmd, syncDiscoverCmd)
	rootCmd.AddCommand(syncCmd)
}
