// Package config holds the engine's runtime tunables, loaded from the
// environment. Rules themselves arrive through the control plane; only
// operational knobs (timeouts, cache lifetimes, retry budgets) live here.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config tunes key resolution and caching.
type Config struct {
	// FetchTimeout bounds a single JWKS or discovery fetch.
	FetchTimeout time.Duration `env:"JWKS_FETCH_TIMEOUT" envDefault:"5s"`

	// CacheTTL is how long a resolved key set is served before re-resolving.
	CacheTTL time.Duration `env:"JWKS_CACHE_TTL" envDefault:"20m"`

	// FetchRetries is the number of retry attempts after a failed fetch.
	FetchRetries int `env:"JWKS_FETCH_RETRIES" envDefault:"3"`

	// FetchRetryBase is the initial backoff; it doubles per attempt.
	FetchRetryBase time.Duration `env:"JWKS_FETCH_RETRY_BASE" envDefault:"200ms"`

	// FetchLimit caps fetch attempts per key source per FetchWindow, so a
	// down identity provider is not hammered by every miss.
	FetchLimit  int           `env:"JWKS_FETCH_LIMIT" envDefault:"10"`
	FetchWindow time.Duration `env:"JWKS_FETCH_WINDOW" envDefault:"1m"`

	// SweepSchedule is the cron spec for evicting expired cache entries.
	SweepSchedule string `env:"JWKS_CACHE_SWEEP" envDefault:"@every 1m"`
}

// Load reads configuration from the environment, applying defaults.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return c, nil
}

// Default returns the built-in defaults without consulting the environment.
func Default() Config {
	return Config{
		FetchTimeout:   5 * time.Second,
		CacheTTL:       20 * time.Minute,
		FetchRetries:   3,
		FetchRetryBase: 200 * time.Millisecond,
		FetchLimit:     10,
		FetchWindow:    time.Minute,
		SweepSchedule:  "@every 1m",
	}
}
