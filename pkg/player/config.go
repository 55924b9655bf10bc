package player

import "time"

// Config holds the per-session policy knobs. The zero value is not usable;
// start from DefaultConfig.
type Config struct {
	// RetryLimit is the number of extra playback attempts granted to a track
	// after a download or sink failure. Zero disables retries.
	RetryLimit int

	MinVolume     int
	MaxVolume     int
	DefaultVolume int

	FadeDuration time.Duration
	FadeSteps    int

	// ClearQueueOnStop makes stop wipe the pending queue as well as the
	// current track. Off by default: stop halts playback, the queue survives.
	ClearQueueOnStop bool
}

// DefaultConfig returns the session policy defaults.
func DefaultConfig() Config {
	return Config{
		RetryLimit:    3,
		MinVolume:     10,
		MaxVolume:     200,
		DefaultVolume: 100,
		FadeDuration:  2 * time.Second,
		FadeSteps:     10,
	}
}

func (c Config) clampVolume(v int) int {
	if v < c.MinVolume {
		return c.MinVolume
	}
	if v > c.MaxVolume {
		return c.MaxVolume
	}
	return v
}
