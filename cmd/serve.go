package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/okian/aqsync/internal/adapters/ayon"
	"github.com/okian/aqsync/internal/adapters/http/api"
	"github.com/okian/aqsync/internal/adapters/http/site"
	"github.com/okian/aqsync/internal/adapters/http/swagger"
	service "github.com/okian/aqsync/internal/app"
	"github.com/okian/aqsync/internal/config"
	"github.com/okian/aqsync/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 120 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func serveCmd(c *cli) *cobra.Command {
	var withWorkers bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the addon API, dashboard and metrics",
		Long: "Serve the addon API under /api/addons/{addon}/{version}. With --with-workers the\n" +
			"processor and the leecher run in the same process.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, c, withWorkers)
		},
	}
	cmd.Flags().BoolVar(&withWorkers, "with-workers", false, "also run the processor and the leecher")
	return cmd
}

func runServe(ctx context.Context, c *cli, withWorkers bool) error {
	log := logger.Get()
	cfg := c.cfg

	svc, err := c.startService(ctx)
	if err != nil {
		return err
	}
	defer svc.Stop()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, cfg, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(gctx, "shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		startSystemMetricsUpdater(gctx)
		return nil
	})
	g.Go(func() error {
		startServiceMetricsUpdater(gctx, svc)
		return nil
	})
	if withWorkers {
		g.Go(func() error {
			return svc.RunProcessor(gctx, nil)
		})
		g.Go(func() error {
			return svc.RunLeecher(gctx)
		})
	}

	err = g.Wait()
	log.Info(ctx, "server stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// newMux registers every HTTP route of the process.
func newMux(ctx context.Context, cfg *config.Config, svc *service.Service) *http.ServeMux {
	mux := http.NewServeMux()
	site.Register(ctx, mux)
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc,
		api.WithPrefix(ayon.Entrypoint(cfg.Ayon.AddonName, cfg.Ayon.AddonVersion)),
		api.WithAPIKey(cfg.Ayon.APIKey),
	).Register(ctx, mux)
	return mux
}
