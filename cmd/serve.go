package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/studio-suggest/internal/api"
	"github.com/sells-group/studio-suggest/internal/lifecycle"
	"github.com/sells-group/studio-suggest/internal/monitoring"
)

var (
	servePort           int
	serveExpireInterval time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the suggestion API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		env, err := initEngine(ctx, cfg, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		collector := monitoring.NewCollector(env.Engine)
		checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitoring), env.Metrics, cfg.Monitoring)
		go checker.Run(ctx)

		if serveExpireInterval > 0 {
			go runExpiry(ctx, env.Engine, serveExpireInterval)
		}

		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: api.NewRouter(env.Engine, api.Options{
				CORSOrigins: cfg.Server.CORSOrigins,
				Metrics:     env.Metrics.Handler(),
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// runExpiry rejects stale pending suggestions on every tick until ctx is
// cancelled.
func runExpiry(ctx context.Context, eng *lifecycle.Engine, interval time.Duration) {
	log := zap.L().With(zap.String("component", "expiry"))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tally, err := eng.ExpireStale(ctx)
			if err != nil {
				log.Error("expire stale suggestions", zap.Error(err))
				continue
			}
			if tally.Total > 0 {
				log.Info("expired stale suggestions", zap.Int("expired", tally.Succeeded), zap.Int("failed", tally.Failed))
			}
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().DurationVar(&serveExpireInterval, "expire-interval", time.Hour, "how often to expire stale pending suggestions (0 disables)")
	rootCmd.AddCommand(serveCmd)
}
