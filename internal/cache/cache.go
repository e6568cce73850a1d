// Package cache provides a Redis read-through cache for profile lookups that
// change rarely: work locations, the geofencing policy and work schedules.
// Employee status and facial enrolment are always read from the store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/kozaktomas/punch-clock/internal/config"
	"github.com/kozaktomas/punch-clock/internal/database"
	"github.com/kozaktomas/punch-clock/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	keyLocations      = "punch:locations"
	keyPolicy         = "punch:geofencing"
	keySchedulePrefix = "punch:schedule:"
)

// NewClient creates a Redis client from configuration.
func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// ProfileCache wraps a ProfileReader. Redis failures fall through to the
// wrapped reader, so the cache never fails a lookup the store could answer.
type ProfileCache struct {
	database.ProfileReader
	client  redis.Cmdable
	ttl     time.Duration
	metrics *metrics.Registry
}

var _ database.ProfileReader = (*ProfileCache)(nil)

// NewProfileCache creates a cache in front of inner. Metrics may be nil.
func NewProfileCache(inner database.ProfileReader, client redis.Cmdable, ttl time.Duration, m *metrics.Registry) *ProfileCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &ProfileCache{ProfileReader: inner, client: client, ttl: ttl, metrics: m}
}

// ActiveWorkLocations returns cached active locations.
func (c *ProfileCache) ActiveWorkLocations(ctx context.Context) ([]database.WorkLocation, error) {
	var locations []database.WorkLocation
	if c.get(ctx, keyLocations, "locations", &locations) {
		return locations, nil
	}
	locations, err := c.ProfileReader.ActiveWorkLocations(ctx)
	if err != nil {
		return nil, err
	}
	c.set(ctx, keyLocations, locations)
	return locations, nil
}

// GeofencingPolicy returns the cached policy.
func (c *ProfileCache) GeofencingPolicy(ctx context.Context) (database.GeofencingPolicy, error) {
	var policy database.GeofencingPolicy
	if c.get(ctx, keyPolicy, "policy", &policy) {
		return policy, nil
	}
	policy, err := c.ProfileReader.GeofencingPolicy(ctx)
	if err != nil {
		return database.GeofencingPolicy{}, err
	}
	c.set(ctx, keyPolicy, policy)
	return policy, nil
}

// WorkSchedule returns the cached schedule. A missing schedule is cached too.
func (c *ProfileCache) WorkSchedule(ctx context.Context, employeeID string) (*database.WorkSchedule, error) {
	key := keySchedulePrefix + employeeID
	var schedule *database.WorkSchedule
	if c.get(ctx, key, "schedule", &schedule) {
		return schedule, nil
	}
	schedule, err := c.ProfileReader.WorkSchedule(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, schedule)
	return schedule, nil
}

// Invalidate drops the shared keys and the schedules of the given employees.
func (c *ProfileCache) Invalidate(ctx context.Context, employeeIDs ...string) error {
	keys := []string{keyLocations, keyPolicy}
	for _, id := range employeeIDs {
		keys = append(keys, keySchedulePrefix+id)
	}
	return c.client.Del(ctx, keys...).Err()
}

func (c *ProfileCache) get(ctx context.Context, key, kind string, dst any) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("key", key).Msg("profile cache read failed")
		}
		c.metrics.RecordCacheMiss(kind)
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("discarding malformed profile cache entry")
		c.metrics.RecordCacheMiss(kind)
		return false
	}
	c.metrics.RecordCacheHit(kind)
	return true
}

func (c *ProfileCache) set(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("profile cache write failed")
	}
}
