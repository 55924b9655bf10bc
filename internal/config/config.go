// Package config loads the process configuration from the environment (and an
// optional .env file) with validated defaults.
package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full process configuration. One process runs one bot instance
// per configured token; everything else is per-instance.
type Config struct {
	Tokens []string

	Prefix string

	// Playback.
	RetryLimit       int
	FadeDuration     time.Duration
	FadeSteps        int
	MinVolume        int
	MaxVolume        int
	DefaultVolume    int
	ClearQueueOnStop bool

	// Voice resilience.
	ManualDisconnectGrace time.Duration
	RejoinDelay           time.Duration
	SweepInterval         time.Duration

	// Media cache.
	CacheDir               string
	CacheMaxBytes          int64
	CacheMaxFiles          int
	MaxConcurrentDownloads int

	// Launcher.
	StartDelay   time.Duration
	RestartDelay time.Duration

	DatabasePath string
	LogLevel     string
}

// DefaultConfig returns a configuration with sensible defaults. Tokens must
// come from the environment.
func DefaultConfig() *Config {
	return &Config{
		Prefix: "!",

		RetryLimit:       3,
		FadeDuration:     2 * time.Second,
		FadeSteps:        10,
		MinVolume:        10,
		MaxVolume:        200,
		DefaultVolume:    100,
		ClearQueueOnStop: false,

		ManualDisconnectGrace: 60 * time.Second,
		RejoinDelay:           5 * time.Second,
		SweepInterval:         60 * time.Second,

		CacheDir:               "media_cache",
		CacheMaxBytes:          2 * 1024 * 1024 * 1024, // 2GB
		CacheMaxFiles:          200,
		MaxConcurrentDownloads: 2,

		StartDelay:   2 * time.Second,
		RestartDelay: 10 * time.Second,

		DatabasePath: "melodine.db",
		LogLevel:     "info",
	}
}

// Load builds the configuration: defaults, then .env, then the environment.
func Load() (*Config, error) {
	// A missing .env file is fine; the environment may carry everything.
	_ = godotenv.Load()

	cfg := DefaultConfig()
	cfg.LoadFromEnvironment()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnvironment overlays environment variables onto the configuration.
func (c *Config) LoadFromEnvironment() {
	c.Tokens = tokensFromEnvironment()

	if val := os.Getenv("COMMAND_PREFIX"); val != "" {
		c.Prefix = val
	}

	if val := os.Getenv("PLAYBACK_RETRY_LIMIT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.RetryLimit = n
		}
	}
	if val := os.Getenv("PLAYBACK_FADE_DURATION"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.FadeDuration = d
		}
	}
	if val := os.Getenv("PLAYBACK_FADE_STEPS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.FadeSteps = n
		}
	}
	if val := os.Getenv("PLAYBACK_MIN_VOLUME"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.MinVolume = n
		}
	}
	if val := os.Getenv("PLAYBACK_MAX_VOLUME"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.MaxVolume = n
		}
	}
	if val := os.Getenv("PLAYBACK_DEFAULT_VOLUME"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.DefaultVolume = n
		}
	}
	if val := os.Getenv("PLAYBACK_CLEAR_QUEUE_ON_STOP"); val != "" {
		c.ClearQueueOnStop = val == "true" || val == "1"
	}

	if val := os.Getenv("VOICE_MANUAL_DISCONNECT_GRACE"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.ManualDisconnectGrace = d
		}
	}
	if val := os.Getenv("VOICE_REJOIN_DELAY"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.RejoinDelay = d
		}
	}
	if val := os.Getenv("VOICE_SWEEP_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.SweepInterval = d
		}
	}

	if val := os.Getenv("CACHE_DIR"); val != "" {
		c.CacheDir = val
	}
	if val := os.Getenv("CACHE_MAX_BYTES"); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			c.CacheMaxBytes = n
		}
	}
	if val := os.Getenv("CACHE_MAX_FILES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.CacheMaxFiles = n
		}
	}
	if val := os.Getenv("CACHE_MAX_CONCURRENT_DOWNLOADS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.MaxConcurrentDownloads = n
		}
	}

	if val := os.Getenv("BOT_START_DELAY"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.StartDelay = d
		}
	}
	if val := os.Getenv("BOT_RESTART_DELAY"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.RestartDelay = d
		}
	}

	if val := os.Getenv("DATABASE_PATH"); val != "" {
		c.DatabasePath = val
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.LogLevel = val
	}
}

// tokensFromEnvironment gathers bot tokens from DISCORD_BOT_TOKENS (comma or
// newline separated) plus any DISCORD_TOKEN / DISCORD_TOKEN_* variables,
// deduplicated in a stable order.
func tokensFromEnvironment() []string {
	seen := make(map[string]bool)
	var tokens []string

	add := func(raw string) {
		tok := strings.TrimSpace(raw)
		if tok == "" || seen[tok] {
			return
		}
		seen[tok] = true
		tokens = append(tokens, tok)
	}

	for _, part := range strings.FieldsFunc(os.Getenv("DISCORD_BOT_TOKENS"), func(r rune) bool {
		return r == ',' || r == '\n'
	}) {
		add(part)
	}

	add(os.Getenv("DISCORD_TOKEN"))

	var numbered []string
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "DISCORD_TOKEN_") {
			numbered = append(numbered, kv)
		}
	}
	sort.Strings(numbered)
	for _, kv := range numbered {
		if i := strings.IndexByte(kv, '='); i > 0 {
			add(kv[i+1:])
		}
	}

	return tokens
}

// Validate checks the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs []string

	if len(c.Tokens) == 0 {
		errs = append(errs, "at least one bot token is required (DISCORD_BOT_TOKENS or DISCORD_TOKEN)")
	}
	if c.Prefix == "" {
		errs = append(errs, "command prefix cannot be empty")
	}

	if c.RetryLimit < 0 {
		errs = append(errs, "playback retry_limit must be >= 0")
	}
	if c.FadeDuration < 0 {
		errs = append(errs, "playback fade_duration must be >= 0")
	}
	if c.MinVolume <= 0 {
		errs = append(errs, "playback min_volume must be > 0")
	}
	if c.MaxVolume < c.MinVolume {
		errs = append(errs, "playback max_volume must be >= min_volume")
	}
	if c.DefaultVolume < c.MinVolume || c.DefaultVolume > c.MaxVolume {
		errs = append(errs, "playback default_volume must be within [min_volume, max_volume]")
	}

	if c.ManualDisconnectGrace < 0 {
		errs = append(errs, "voice manual_disconnect_grace must be >= 0")
	}
	if c.RejoinDelay < 0 {
		errs = append(errs, "voice rejoin_delay must be >= 0")
	}
	// A tight sweep hammers the gateway; floor it.
	if c.SweepInterval < 5*time.Second {
		errs = append(errs, "voice sweep_interval must be >= 5s")
	}

	if c.CacheDir == "" {
		errs = append(errs, "cache dir cannot be empty")
	}
	if c.MaxConcurrentDownloads < 1 {
		errs = append(errs, "cache max_concurrent_downloads must be >= 1")
	}

	if c.DatabasePath == "" {
		errs = append(errs, "database path cannot be empty")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[c.LogLevel] {
		errs = append(errs, "log level must be one of: debug, info, warn, error, fatal")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}
	return nil
}
