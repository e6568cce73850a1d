package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/punch-clock/internal/cache"
	"github.com/kozaktomas/punch-clock/internal/config"
	"github.com/kozaktomas/punch-clock/internal/database"
	"github.com/kozaktomas/punch-clock/internal/database/postgres"
	"github.com/kozaktomas/punch-clock/internal/facematch"
	"github.com/kozaktomas/punch-clock/internal/metrics"
	"github.com/kozaktomas/punch-clock/internal/punch"
	"github.com/rs/zerolog/log"
)

// openStore connects to PostgreSQL, runs migrations and registers the backend.
func openStore(ctx context.Context, cfg *config.Config, hnsw bool) (database.Store, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}

	log.Info().Msg("connecting to PostgreSQL")
	if err := postgres.Initialize(&cfg.Database); err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	if err := postgres.Register(ctx, cfg.Geofencing.DefaultRadiusMeters, hnsw); err != nil {
		return nil, err
	}
	if rebuilder := database.GetReferenceHNSWRebuilder(); rebuilder != nil && rebuilder.IsHNSWEnabled() {
		log.Info().Int("references", rebuilder.HNSWCount()).Msg("reference HNSW index built")
	}
	return database.GetStore(ctx)
}

// buildAuthorizer wires the authorizer from configuration. The Redis profile
// cache is used when REDIS_ADDR is set.
func buildAuthorizer(ctx context.Context, cfg *config.Config, store database.Store, m *metrics.Registry) (*punch.Authorizer, error) {
	refs, err := database.GetReferenceReader(ctx)
	if err != nil {
		return nil, err
	}
	embedder := facematch.NewEmbeddingClient(cfg.Face.EmbeddingURL, cfg.Face.RateLimitPerSecond)
	matcher := facematch.NewReferenceMatcher(embedder, refs, cfg.Face.MinLivenessScore)

	var profiles database.ProfileReader = store
	if cfg.Redis.Addr != "" {
		client := cache.NewClient(cfg.Redis)
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, profile cache disabled")
		} else {
			profiles = cache.NewProfileCache(store, client, cfg.Redis.CacheTTL, m)
			log.Info().Str("addr", cfg.Redis.Addr).Dur("ttl", cfg.Redis.CacheTTL).Msg("profile cache enabled")
		}
	}

	return punch.NewAuthorizer(punch.Deps{
		Profiles: profiles,
		Store:    store,
		Matcher:  matcher,
		Metrics:  m,
	}, punch.Settings{
		Face: facematch.Policy{
			SimilarityThreshold: cfg.Face.SimilarityThreshold,
			LivenessRequired:    cfg.Face.LivenessRequired,
		},
		AllowManualOverride: cfg.Punch.AllowManualOverride,
		CommitRetries:       cfg.Punch.CommitRetries,
		Location:            cfg.Punch.Location(),
	}), nil
}
