// Package config loads cell configuration and the V2 feature-flag
// registry: every V2 subsystem defaults to off and is individually
// togglable. Adapted from pkg/config/config.go's env-var-with-default
// Load and pkg/config/profile_loader.go's gopkg.in/yaml.v3 file
// loading, generalized from a single regional compliance profile to a
// per-subsystem feature-flag set.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Feature names the togglable V2 subsystems.
type Feature string

const (
	FeatureFederationIdentity  Feature = "federation_identity"
	FeatureObservationIngest   Feature = "observation_ingest"
	FeatureBeliefAggregation   Feature = "belief_aggregation"
	FeatureConflictDetection   Feature = "conflict_detection"
	FeatureArbitration         Feature = "arbitration"
	FeatureContainment         Feature = "containment"
)

// allFeatures enumerates the closed set of flags, so an unknown key in a
// loaded config file is caught rather than silently ignored.
var allFeatures = []Feature{
	FeatureFederationIdentity,
	FeatureObservationIngest,
	FeatureBeliefAggregation,
	FeatureConflictDetection,
	FeatureArbitration,
	FeatureContainment,
}

// Flags is the feature-flag registry: every flag defaults to off and
// is independently settable.
type Flags struct {
	enabled map[Feature]bool
}

// NewFlags returns a registry with every feature off.
func NewFlags() *Flags {
	return &Flags{enabled: make(map[Feature]bool)}
}

// Enabled reports whether feature is on.
func (f *Flags) Enabled(feature Feature) bool {
	return f.enabled[feature]
}

// Set toggles feature.
func (f *Flags) Set(feature Feature, on bool) {
	f.enabled[feature] = on
}

// Config holds cell-level configuration.
type Config struct {
	CellID              string        `yaml:"cell_id"`
	TenantID            string        `yaml:"tenant_id"`
	ListenAddr          string        `yaml:"listen_addr"`
	LogLevel            string        `yaml:"log_level"`
	DatabaseURL         string        `yaml:"database_url"`
	RedisAddr           string        `yaml:"redis_addr"`
	TickerInterval      time.Duration `yaml:"ticker_interval"`
	MaxClockSkew        time.Duration `yaml:"max_clock_skew"`
	NonceTTL            time.Duration `yaml:"nonce_ttl"`
	Features            map[Feature]bool `yaml:"features"`
}

// Load reads Config from environment variables, in the same
// default-if-unset style as pkg/config/config.go's Load.
func Load() *Config {
	return &Config{
		CellID:         envOr("ADMO_CELL_ID", "cell-local"),
		TenantID:       envOr("ADMO_TENANT_ID", "default"),
		ListenAddr:     envOr("ADMO_LISTEN_ADDR", ":8443"),
		LogLevel:       envOr("ADMO_LOG_LEVEL", "info"),
		DatabaseURL:    envOr("ADMO_DATABASE_URL", "postgres://admo@localhost:5432/admo?sslmode=disable"),
		RedisAddr:      envOr("ADMO_REDIS_ADDR", "localhost:6379"),
		TickerInterval: envDuration("ADMO_TICKER_INTERVAL", 60*time.Second),
		MaxClockSkew:   envDuration("ADMO_MAX_CLOCK_SKEW", 300*time.Second),
		NonceTTL:       envDuration("ADMO_NONCE_TTL", 300*time.Second),
		Features:       make(map[Feature]bool),
	}
}

// LoadFile reads Config from a YAML file at path, falling back to
// environment-derived defaults for anything the file leaves zero.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := Load()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	for feature := range cfg.Features {
		known := false
		for _, f := range allFeatures {
			if feature == f {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("config: parse %q: unknown feature %q", path, feature)
		}
	}
	return cfg, nil
}

// FlagRegistry builds a Flags registry from Config.Features, leaving any
// feature absent from the file at its off default.
func (c *Config) FlagRegistry() *Flags {
	flags := NewFlags()
	for _, feature := range allFeatures {
		flags.Set(feature, c.Features[feature])
	}
	return flags
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
