// Package config loads engine configuration from files, env and flags.
package config

import (
	"fmt"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfighcl"
)

// Config holds all runtime settings. Values layer file < env < flag, with the
// env prefix GREADER (e.g. GREADER_LISTEN_ADDR).
type Config struct {
	ListenAddr string `hcl:"listen_addr" env:"LISTEN_ADDR" default:":8080"`

	// DatabaseDriver selects the storage backend: "sqlite" or "postgres".
	DatabaseDriver string `hcl:"database_driver" env:"DATABASE_DRIVER" default:"sqlite"`
	DatabaseDSN    string `hcl:"database_dsn" env:"DATABASE_DSN" default:"greader.db"`

	// Fetch safety ceilings. Every outbound request carries both.
	FetchTimeout     time.Duration `hcl:"fetch_timeout" env:"FETCH_TIMEOUT" default:"10s"`
	MaxResponseBytes int64         `hcl:"max_response_bytes" env:"MAX_RESPONSE_BYTES" default:"10485760"`

	// RefreshInterval is the staleness threshold: feeds not fetched within
	// this interval are picked up by the next sweep.
	RefreshInterval time.Duration `hcl:"refresh_interval" env:"REFRESH_INTERVAL" default:"15m"`
	SweepWorkers    int           `hcl:"sweep_workers" env:"SWEEP_WORKERS" default:"5"`

	RateLimitWindow time.Duration `hcl:"rate_limit_window" env:"RATE_LIMIT_WINDOW" default:"60s"`
	RateLimitMax    int           `hcl:"rate_limit_max" env:"RATE_LIMIT_MAX" default:"30"`

	// AllowedOrigins is the CORS allow-list echoed on preflight. Never a
	// wildcard in an identity-bearing deployment.
	AllowedOrigins []string `hcl:"allowed_origins" env:"ALLOWED_ORIGINS"`

	// APITokens maps bearer tokens to user IDs. Token verification proper is
	// a collaborator concern; this static map stands in for it in small
	// deployments and tests.
	APITokens map[string]string `hcl:"api_tokens" env:"API_TOKENS"`

	LogLevel string `hcl:"log_level" env:"LOG_LEVEL" default:"info"`
	LogFile  string `hcl:"log_file" env:"LOG_FILE"`
}

// Load reads configuration from the usual locations.
func Load() (Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "GREADER",
		Files:     []string{"./greader.hcl", "./greader.local.hcl", "$HOME/.config/greader/config.hcl"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".hcl": aconfighcl.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
