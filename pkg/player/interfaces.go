package player

import (
	"context"
)

// Input is what a sink plays. Path points at a cache-resident file when the
// payload is local; URL is the remote locator used when it is not.
type Input struct {
	Path string
	URL  string
}

// Resolver turns a user query into a playable track descriptor. When the
// query resolves to a playlist only the first entry is returned.
type Resolver interface {
	Resolve(ctx context.Context, query string) (*Track, error)
}

// Sink is a live audio output channel into the voice transport.
type Sink interface {
	SetVolume(percent int)
	Pause()
	Resume()
	Stop()
	Playing() bool
}

// SinkOpener opens a sink for the given input. The done callback is invoked
// exactly once from a background goroutine when playback finishes, with a nil
// error on normal completion. Implementations must never invoke done
// synchronously from Open or Stop.
type SinkOpener interface {
	Open(guildID string, input Input, initialVolume int, done func(err error)) (Sink, error)
}

// Fetcher is the media cache surface a session drives. Fetch blocks until the
// payload for sourceID is local, joining an in-flight download for the same
// source instead of starting a second one. Prefetch is fire-and-forget.
type Fetcher interface {
	Fetch(ctx context.Context, sourceID, sourceURL string) (path string, err error)
	Prefetch(sourceID, sourceURL string)
	CancelPrefetch(sourceID string)
	Pin(sourceID string)
	Unpin(sourceID string)
}

// Announcer posts user-visible playback notices. Implementations live outside
// the core; a nil-safe no-op is substituted when none is wired.
type Announcer interface {
	Announce(guildID string, t *Track)
	AnnounceFailure(guildID string, t *Track, err error)
}

// SettingsSource supplies persisted per-guild preferences at session creation.
type SettingsSource interface {
	GuildVolume(guildID string) (volume int, ok bool)
}

// Supervisor is the voice-resilience companion paired with each session. The
// concrete implementation lives in pkg/voice; the registry only needs to
// drive its periodic reconciliation and tear it down at shutdown.
type Supervisor interface {
	Reconcile()
	Stop()
}

// SupervisorFactory builds the supervisor for a freshly created session.
type SupervisorFactory func(guildID string, s *Session) Supervisor
