package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidatesWithToken(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tokens = []string{"token-a"}
	require.NoError(t, cfg.Validate())
}

func TestValidateRequiresToken(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative retry limit", func(c *Config) { c.RetryLimit = -1 }},
		{"zero min volume", func(c *Config) { c.MinVolume = 0 }},
		{"max below min volume", func(c *Config) { c.MaxVolume = c.MinVolume - 1 }},
		{"default outside bounds", func(c *Config) { c.DefaultVolume = c.MaxVolume + 1 }},
		{"sweep interval too tight", func(c *Config) { c.SweepInterval = time.Second }},
		{"empty cache dir", func(c *Config) { c.CacheDir = "" }},
		{"zero download slots", func(c *Config) { c.MaxConcurrentDownloads = 0 }},
		{"empty database path", func(c *Config) { c.DatabasePath = "" }},
		{"bogus log level", func(c *Config) { c.LogLevel = "loud" }},
		{"empty prefix", func(c *Config) { c.Prefix = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Tokens = []string{"token-a"}
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFromEnvironmentOverlays(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("DISCORD_BOT_TOKENS", "tok-1,tok-2")
	t.Setenv("COMMAND_PREFIX", "?")
	t.Setenv("PLAYBACK_RETRY_LIMIT", "5")
	t.Setenv("PLAYBACK_FADE_DURATION", "3s")
	t.Setenv("VOICE_MANUAL_DISCONNECT_GRACE", "90s")
	t.Setenv("CACHE_MAX_BYTES", "1024")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	cfg.LoadFromEnvironment()

	assert.Equal(t, []string{"tok-1", "tok-2"}, cfg.Tokens)
	assert.Equal(t, "?", cfg.Prefix)
	assert.Equal(t, 5, cfg.RetryLimit)
	assert.Equal(t, 3*time.Second, cfg.FadeDuration)
	assert.Equal(t, 90*time.Second, cfg.ManualDisconnectGrace)
	assert.Equal(t, int64(1024), cfg.CacheMaxBytes)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadFromEnvironmentIgnoresMalformedValues(t *testing.T) {
	t.Setenv("PLAYBACK_RETRY_LIMIT", "lots")
	t.Setenv("PLAYBACK_FADE_DURATION", "soon")

	cfg := DefaultConfig()
	cfg.LoadFromEnvironment()

	assert.Equal(t, DefaultConfig().RetryLimit, cfg.RetryLimit)
	assert.Equal(t, DefaultConfig().FadeDuration, cfg.FadeDuration)
}

func TestTokensFromEnvironmentMergesSources(t *testing.T) {
	t.Setenv("DISCORD_BOT_TOKENS", "tok-1,tok-2\ntok-3")
	t.Setenv("DISCORD_TOKEN", "tok-1")
	t.Setenv("DISCORD_TOKEN_2", "tok-4")

	tokens := tokensFromEnvironment()
	assert.Equal(t, []string{"tok-1", "tok-2", "tok-3", "tok-4"}, tokens)
}

func TestTokensFromEnvironmentTrimsAndDedupes(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("DISCORD_BOT_TOKENS", " tok-1 , tok-1 ,, ")

	tokens := tokensFromEnvironment()
	assert.Equal(t, []string{"tok-1"}, tokens)
}
