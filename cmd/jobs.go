package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/carrier-sync/internal/model"
)

var (
	jobsID       string
	jobsLimit    int
	jobsFormat   string
	jobsFailures bool
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect sync jobs",
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show one job",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		job, err := st.GetJob(ctx, jobsID)
		if err != nil {
			return eris.Wrapf(err, "get job %s", jobsID)
		}

		out := struct {
			Job         *model.SyncJob     `json:"job"`
			SuccessRate float64            `json:"success_rate"`
			Failures    []model.JobFailure `json:"failures,omitempty"`
		}{Job: job, SuccessRate: job.SuccessRate()}

		if jobsFailures {
			out.Failures, err = st.ListFailures(ctx, job.ID)
			if err != nil {
				return eris.Wrapf(err, "list failures for %s", job.ID)
			}
		}
		return writeOutput(cmd.OutOrStdout(), jobsFormat, out)
	},
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		jobs, err := st.ListJobs(ctx, jobsLimit)
		if err != nil {
			return eris.Wrap(err, "list jobs")
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tPROCESSED\tUPDATED\tFAILED\tCREATED") //nolint:errcheck
		for _, j := range jobs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n", //nolint:errcheck
				j.ID, j.JobType, j.Status, j.Processed, j.Updated, j.Failed,
				j.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

func init() {
	jobsStatusCmd.Flags().StringVar(&jobsID, "id", "", "job ID (required)")
	jobsStatusCmd.Flags().StringVar(&jobsFormat, "format", "json", "output format: json or yaml")
	jobsStatusCmd.Flags().BoolVar(&jobsFailures, "failures", false, "include per-identifier failures")
	_ = jobsStatusCmd.MarkFlagRequired("id")

	jobsListCmd.Flags().IntVar(&jobsLimit, "limit", 20, "max jobs to list")

	jobsCmd.AddCommand(jobsStatusCmd, jobsListCmd)
	rootCmd.AddCommand(jobsCmd)
}
