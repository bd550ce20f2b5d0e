package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"solarcore/config"
	"solarcore/internal/api"
	"solarcore/internal/mw"
)

const shutdownTimeout = 5 * time.Second

func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the voice loop and the background workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
		SilenceUsage: true,
	}
}

func runServe(cmd *cobra.Command, opts *RootOptions) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Log, os.Stdout)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	a.alerts.Start(ctx)
	defer a.alerts.Wait()
	defer a.alerts.Watch(a.bus)()
	defer a.shutdown.Watch(a.bus)()
	defer a.reconciler.Watch(ctx)()
	a.reconciler.StartPeriodic(ctx)

	cacheTTL := config.Duration(logger, "http.cache_ttl", cfg.HTTP.CacheTTL, 30*time.Second)
	responses := mw.NewResponseCache(cacheTTL, 2*cacheTTL)
	defer api.FlushOnUpdate(a.bus, responses)()

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	server := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: api.NewRouter(a.handler(), api.Options{
			RateLimit: rate.Limit(cfg.HTTP.RateLimit),
			RateBurst: cfg.HTTP.RateBurst,
			CacheTTL:  cacheTTL,
			Cache:     responses,
		}),
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server starting", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if source, ok := a.audioSource(); ok {
		go func() {
			err := a.assistant.Run(ctx, source, cfg.Account.ID)
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
			}
		}()
	}

	logger.Info("solarcore running",
		"backend", cfg.Sync.Backend,
		"audio_source", cfg.Audio.Source,
		"account", cfg.Account.ID,
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
		logger.Error("service failed", "error", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := server.Shutdown(shutdownCtx); serr != nil {
		logger.Error("http server shutdown", "error", serr)
	}
	return err
}
