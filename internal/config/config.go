package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var policyYAML []byte

type Config struct {
	Database   DatabaseConfig
	Web        WebConfig
	Redis      RedisConfig
	Face       FaceConfig
	Punch      PunchConfig
	Geofencing GeofencingConfig
	Log        LogConfig
}

type DatabaseConfig struct {
	URL                 string        // PostgreSQL connection URL
	MaxOpenConns        int           // Maximum open connections (default 25)
	MaxIdleConns        int           // Maximum idle connections (default 5)
	HNSWEnabled         bool          // Serve 1:N face identification from an in-memory HNSW index
	HNSWRefreshInterval time.Duration // How often the HNSW index is rebuilt from reference faces (default 10m)
}

type WebConfig struct {
	Host           string
	Port           int
	TokenSecret    string   // shared with the identity subsystem that issues bearer tokens
	AllowedOrigins []string // CORS whitelist, localhost is always allowed
}

type RedisConfig struct {
	Addr     string // empty disables the profile cache
	Password string
	DB       int
	CacheTTL time.Duration
}

type FaceConfig struct {
	EmbeddingURL        string  // defaults to http://localhost:8000
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	LivenessRequired    bool    `yaml:"liveness_required"`
	MinLivenessScore    float64 `yaml:"min_liveness_score"`
	RateLimitPerSecond  float64 `yaml:"rate_limit_per_second"`
}

type PunchConfig struct {
	Timezone            string        `yaml:"timezone"`
	AllowManualOverride bool          `yaml:"allow_manual_override"`
	CommitRetries       int           `yaml:"commit_retries"`
	ReconcileInterval   time.Duration `yaml:"reconcile_interval"`
}

type GeofencingConfig struct {
	DefaultRadiusMeters int `yaml:"default_radius_meters"`
}

type LogConfig struct {
	Level  string
	Pretty bool
}

// policyDefaults mirrors the layout of the embedded policy.yaml.
type policyDefaults struct {
	Face       FaceConfig       `yaml:"face"`
	Punch      PunchConfig      `yaml:"punch"`
	Geofencing GeofencingConfig `yaml:"geofencing"`
}

// Location resolves the configured timezone used for calendar-day boundaries.
// Falls back to UTC when the zone database does not know the name.
func (c *PunchConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a float in [0,1]. Out-of-range or invalid values yield the default.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f > 1 {
		return defaultVal
	}
	return f
}

func envBool(key string, defaultVal bool) bool {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma-separated variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func loadPolicyDefaults() policyDefaults {
	var defaults policyDefaults
	if err := yaml.Unmarshal(policyYAML, &defaults); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded policy.yaml: " + err.Error())
	}
	return defaults
}

func Load() *Config {
	defaults := loadPolicyDefaults()

	rateLimit := defaults.Face.RateLimitPerSecond
	if s := os.Getenv("FACE_RATE_LIMIT"); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
			rateLimit = f
		}
	}

	return &Config{
		Database: DatabaseConfig{
			URL:                 os.Getenv("DATABASE_URL"),
			MaxOpenConns:        envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:        envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWEnabled:         envBool("HNSW_ENABLED", false),
			HNSWRefreshInterval: envDuration("HNSW_REFRESH_INTERVAL", 10*time.Minute),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			TokenSecret:    os.Getenv("WEB_TOKEN_SECRET"),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envInt("REDIS_DB", 0),
			CacheTTL: envDuration("REDIS_CACHE_TTL", time.Minute),
		},
		Face: FaceConfig{
			EmbeddingURL:        os.Getenv("EMBEDDING_URL"),
			SimilarityThreshold: envFloat("FACE_SIMILARITY_THRESHOLD", defaults.Face.SimilarityThreshold),
			LivenessRequired:    envBool("FACE_LIVENESS_REQUIRED", defaults.Face.LivenessRequired),
			MinLivenessScore:    envFloat("FACE_MIN_LIVENESS", defaults.Face.MinLivenessScore),
			RateLimitPerSecond:  rateLimit,
		},
		Punch: PunchConfig{
			Timezone:            envString("PUNCH_TIMEZONE", defaults.Punch.Timezone),
			AllowManualOverride: envBool("PUNCH_ALLOW_MANUAL_OVERRIDE", defaults.Punch.AllowManualOverride),
			CommitRetries:       envInt("PUNCH_COMMIT_RETRIES", defaults.Punch.CommitRetries),
			ReconcileInterval:   envDuration("PUNCH_RECONCILE_INTERVAL", defaults.Punch.ReconcileInterval),
		},
		Geofencing: GeofencingConfig{
			DefaultRadiusMeters: envInt("GEOFENCE_DEFAULT_RADIUS_METERS", defaults.Geofencing.DefaultRadiusMeters),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Pretty: os.Getenv("LOG_PRETTY") == "1",
		},
	}
}
