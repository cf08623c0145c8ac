package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	service "github.com/okian/aqsync/internal/app"
	"github.com/okian/aqsync/pkg/logger"
)

func processorCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "processor",
		Short: "Process sync jobs from the job store",
		Long: "Process sync jobs. Entities are written through the AYON addon API when\n" +
			"ayon.url is set, otherwise straight into the configured repository.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := c.startService(ctx)
			if err != nil {
				return err
			}
			defer svc.Stop()

			var addon service.Addon
			if remote := c.remoteAddon(); remote != nil {
				addon = remote
				logger.Get().Info(ctx, "processor writes through AYON", logger.String("url", c.cfg.Ayon.URL))
			}
			go startServiceMetricsUpdater(ctx, svc)
			return ignoreCanceled(svc.RunProcessor(ctx, addon))
		},
	}
}

func leecherCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "leecher",
		Short: "Forward Aquarium live events into the job store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := c.startService(ctx)
			if err != nil {
				return err
			}
			defer svc.Stop()

			return ignoreCanceled(svc.RunLeecher(ctx))
		},
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
