package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/aqsync/internal/domain/model"
)

func syncCmd(c *cli) *cobra.Command {
	var (
		user    string
		wait    bool
		timeout time.Duration
		every   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "sync <project>",
		Short: "Request a full sync of a paired AYON project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			project := args[0]

			trigger, event, done, err := c.syncTarget(ctx, user)
			if err != nil {
				return err
			}
			defer done()

			id, err := trigger(ctx, project)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			if !wait {
				return nil
			}

			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			ticker := time.NewTicker(every)
			defer ticker.Stop()
			for {
				view, err := event(ctx, id)
				if err != nil {
					return err
				}
				if view.Status == model.StatusFinished {
					printSummary(cmd, view)
					return nil
				}
				select {
				case <-ctx.Done():
					return fmt.Errorf("waiting for event %s: %w", id, ctx.Err())
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "AYON user the sync is requested for")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait until the sync job finished")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "how long --wait waits")
	cmd.Flags().DurationVar(&every, "poll", time.Second, "poll interval of --wait")
	return cmd
}

type (
	triggerFunc func(ctx context.Context, project string) (string, error)
	eventFunc   func(ctx context.Context, id string) (*model.EventView, error)
)

// syncTarget goes through the AYON addon API when configured, through a
// local service otherwise.
func (c *cli) syncTarget(ctx context.Context, user string) (triggerFunc, eventFunc, func(), error) {
	if remote := c.remoteAddon(); remote != nil {
		return remote.TriggerSync, remote.Event, func() {}, nil
	}
	svc, err := c.startService(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	trigger := func(ctx context.Context, project string) (string, error) {
		return svc.TriggerSync(ctx, project, user)
	}
	return trigger, svc.Event, svc.Stop, nil
}

func printSummary(cmd *cobra.Command, view *model.EventView) {
	out := cmd.OutOrStdout()
	for _, folderType := range model.SyncOrder {
		entry, ok := view.Summary[folderType]
		if !ok {
			continue
		}
		fmt.Fprintf(out, "%s\t%v\n", folderType, entry)
	}
}
