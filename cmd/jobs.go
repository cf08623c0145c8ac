package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/aqsync/internal/adapters/mq/queue"
	"github.com/okian/aqsync/internal/domain/model"
)

func jobsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and repair the job store",
	}
	cmd.AddCommand(jobsListCmd(c))
	cmd.AddCommand(jobsCountsCmd(c))
	cmd.AddCommand(jobsRecoverCmd(c))
	cmd.AddCommand(jobsRestartCmd(c))
	return cmd
}

func jobsListCmd(c *cli) *cobra.Command {
	var filter queue.ListFilter
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events and jobs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, err := c.startService(ctx)
			if err != nil {
				return err
			}
			defer svc.Stop()

			filter.Status = model.JobStatus(status)
			events, err := svc.ListJobs(ctx, filter)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTOPIC\tSTATUS\tPROJECT\tRETRIES\tDEPENDS ON\tUPDATED")
			for _, e := range events {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					e.ID, e.Topic, e.Status, e.Project, e.Retries, e.DependsOn, e.UpdatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&filter.Topic, "topic", "", "only this topic, e.g. "+model.TopicProcess)
	cmd.Flags().StringVar(&status, "status", "", "only this status (pending, in_progress, finished, restarted)")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "maximum rows, 0 for all")
	return cmd
}

func jobsCountsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "counts",
		Short: "Count processing jobs per status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, err := c.startService(ctx)
			if err != nil {
				return err
			}
			defer svc.Stop()

			counts, err := svc.JobCounts(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STATUS\tCOUNT")
			for _, sc := range counts {
				fmt.Fprintf(w, "%s\t%d\n", sc.Status, sc.Count)
			}
			return w.Flush()
		},
	}
}

func jobsRecoverCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Move jobs stuck in_progress back to restarted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, err := c.startService(ctx)
			if err != nil {
				return err
			}
			defer svc.Stop()

			n, err := svc.RecoverJobs(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recovered %d jobs\n", n)
			return nil
		},
	}
}

func jobsRestartCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "restart <id>",
		Short: "Mark a job restarted so the processor picks it up again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := c.startService(ctx)
			if err != nil {
				return err
			}
			defer svc.Stop()

			if err := svc.RestartJob(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restarted %s\n", args[0])
			return nil
		},
	}
}
