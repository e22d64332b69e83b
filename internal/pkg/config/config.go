package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	PostgresURL string `env:"POSTGRES_URL,required"`
	RedisAddr   string `env:"REDIS_ADDR"`

	// AccessLogGlob selects the access-log files to ingest, the active file
	// plus gzip'd rotations.
	AccessLogGlob string `env:"ACCESS_LOG_GLOB" envDefault:"/var/log/caddy/access*.log*"`

	// Dataset paths. A missing file degrades to null enrichment with a
	// warning; it never aborts startup.
	GeoCityDBPath string `env:"GEOIP_CITY_DB" envDefault:"/var/lib/trafficlens/GeoLite2-City.mmdb"`
	GeoASNDBPath  string `env:"GEOIP_ASN_DB" envDefault:"/var/lib/trafficlens/GeoLite2-ASN.mmdb"`

	RunInterval      time.Duration `env:"RUN_INTERVAL" envDefault:"5m"`
	FirstRunLookback time.Duration `env:"FIRST_RUN_LOOKBACK" envDefault:"1h"`
	BatchSize        int           `env:"BATCH_SIZE" envDefault:"500"`

	DenylistSetKey string        `env:"DENYLIST_SET_KEY" envDefault:"trafficlens:banned"`
	DenylistTTL    time.Duration `env:"DENYLIST_TTL" envDefault:"60s"`
	RunLockKey     string        `env:"RUN_LOCK_KEY" envDefault:"trafficlens:ingest-lock"`
	RunLockTTL     time.Duration `env:"RUN_LOCK_TTL" envDefault:"15m"`

	// Static exclusions, comma-separated.
	OperatorAddresses []string `env:"OPERATOR_ADDRESSES" envSeparator:","`
	ExcludedSites     []string `env:"EXCLUDED_SITES" envSeparator:","`
	NoisePatterns     []string `env:"NOISE_PATTERNS" envSeparator:","`

	// WebshellTokens overrides the suspicious-token list guarding the
	// webshell attack rule. Empty keeps the built-in list.
	WebshellTokens []string `env:"WEBSHELL_TOKENS" envSeparator:","`

	// RedactHeaders adds header names to scrub before persistence, on top of
	// the built-in credential set (Cookie, Authorization and friends).
	RedactHeaders []string `env:"REDACT_HEADERS" envSeparator:","`

	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9091"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
