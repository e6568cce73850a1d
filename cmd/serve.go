package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/punch-clock/internal/audit"
	"github.com/kozaktomas/punch-clock/internal/config"
	"github.com/kozaktomas/punch-clock/internal/database"
	"github.com/kozaktomas/punch-clock/internal/database/postgres"
	"github.com/kozaktomas/punch-clock/internal/metrics"
	"github.com/kozaktomas/punch-clock/internal/web"
	"github.com/kozaktomas/punch-clock/internal/web/middleware"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the punch API server.
Employees submit punches with a camera frame; admins review audit records.
Orphaned time entries are reconciled periodically in the background.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

// runReconcileLoop creates fallback audits for orphaned entries every interval
// until ctx is done.
func runReconcileLoop(ctx context.Context, trail *audit.Trail, m *metrics.Registry, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := trail.ReconcileOrphans(ctx, nil)
			m.RecordReconciled(n)
			if err != nil {
				log.Error().Err(err).Msg("periodic reconciliation failed")
				continue
			}
			if n > 0 {
				log.Warn().Int("count", n).Msg("reconciled orphan time entries")
			}
		}
	}
}

// runIndexRefreshLoop rebuilds the in-memory reference index so references
// enrolled since startup become searchable.
func runIndexRefreshLoop(ctx context.Context, interval time.Duration) {
	rebuilder := database.GetReferenceHNSWRebuilder()
	if rebuilder == nil || !rebuilder.IsHNSWEnabled() || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rebuilder.RebuildHNSW(ctx); err != nil {
				log.Error().Err(err).Msg("failed to rebuild reference HNSW index")
				continue
			}
			log.Debug().Int("references", rebuilder.HNSWCount()).Msg("reference HNSW index rebuilt")
		}
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if port := mustGetInt(cmd, "port"); port != 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
	tokens, err := middleware.NewTokenManager(cfg.Web.TokenSecret)
	if err != nil {
		return fmt.Errorf("WEB_TOKEN_SECRET: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg, cfg.Database.HNSWEnabled)
	if err != nil {
		return err
	}
	defer postgres.GetGlobalPool().Close()

	m := metrics.New()
	authorizer, err := buildAuthorizer(ctx, cfg, store, m)
	if err != nil {
		return err
	}

	server := web.NewServer(cfg, web.Deps{
		Authorizer: authorizer,
		Tokens:     tokens,
		Metrics:    m,
		DB:         postgres.GetGlobalPool(),
	})

	go runReconcileLoop(ctx, authorizer.Trail(), m, cfg.Punch.ReconcileInterval)
	go runIndexRefreshLoop(ctx, cfg.Database.HNSWRefreshInterval)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("shutting down")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error during shutdown")
		}
	}()

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
