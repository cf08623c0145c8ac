// Command aqsync runs the Aquarium to AYON sync services: the addon API,
// the processor and the leecher, plus job store maintenance commands.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/okian/aqsync/internal/adapters/ayon"
	service "github.com/okian/aqsync/internal/app"
	"github.com/okian/aqsync/internal/config"
	"github.com/okian/aqsync/pkg/logger"
	"github.com/okian/aqsync/pkg/metrics"
)

// cli is the state shared by every command.
type cli struct {
	configPath string
	logLevel   string
	cfg        *config.Config
}

func main() {
	// The process exports its own system metrics on a dedicated registry.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	root := newRootCmd()
	err := root.Execute()
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "aqsync",
		Short:         "Sync Aquarium projects into AYON",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", os.Getenv(config.EnvConfigFile), "YAML config file (env "+config.EnvConfigFile+")")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override log.level")

	root.AddCommand(serveCmd(c))
	root.AddCommand(processorCmd(c))
	root.AddCommand(leecherCmd(c))
	root.AddCommand(syncCmd(c))
	root.AddCommand(jobsCmd(c))
	root.AddCommand(bootstrapCmd(c))
	return root
}

// init loads the configuration and sets the logger up from it.
func (c *cli) init(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.LoadFile(ctx, c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	c.cfg = cfg

	opts := []logger.Option{
		logger.WithLevel(cfg.Log.Level),
		logger.WithFormat(cfg.Log.Format),
	}
	if cfg.Log.File != "" {
		opts = append(opts, logger.WithFile(cfg.Log.File, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups, cfg.Log.MaxAgeDays, cfg.Log.Compress))
	}
	if err := logger.Init(opts...); err != nil {
		// Fall back to defaults so the error can still be reported.
		_ = logger.Init()
		return fmt.Errorf("initializing logger: %w", err)
	}

	metrics.Init(
		metrics.WithMetricsEnabled(cfg.Metrics.Enabled),
		metrics.WithNamespace(cfg.Metrics.Namespace),
		metrics.WithSubsystem(cfg.Metrics.Subsystem),
		metrics.WithHistogramBuckets(cfg.Metrics.Buckets),
		metrics.WithRefreshInterval(cfg.Metrics.RefreshInterval),
		metrics.WithCustomLabels(cfg.Metrics.Labels),
	)
	return nil
}

// startService creates and starts a service from the loaded configuration.
func (c *cli) startService(ctx context.Context) (*service.Service, error) {
	svc := service.New(
		service.WithConfig(c.cfg),
		service.WithLogger(logger.Get().Named("service")),
	)
	if err := svc.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting service: %w", err)
	}
	return svc, nil
}

// remoteAddon returns the AYON client when a remote AYON server is
// configured, nil otherwise.
func (c *cli) remoteAddon() *ayon.Client {
	if c.cfg.Ayon.URL == "" {
		return nil
	}
	return ayon.New(c.cfg.Ayon.URL,
		ayon.WithAPIKey(c.cfg.Ayon.APIKey),
		ayon.WithAddon(c.cfg.Ayon.AddonName, c.cfg.Ayon.AddonVersion),
		ayon.WithTimeout(c.cfg.Ayon.Timeout))
}
