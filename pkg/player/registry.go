package player

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Entry pairs a guild's playback session with its resilience supervisor.
type Entry struct {
	Session    *Session
	Supervisor Supervisor
}

// Registry maps guild ids to their session/supervisor pair. Pairs are created
// lazily on first voice activity and retained for the process lifetime, since
// guilds tend to come back.
type Registry struct {
	cfg           Config
	deps          Deps
	settings      SettingsSource
	newSupervisor SupervisorFactory
	log           *logrus.Entry

	mu      sync.Mutex
	entries map[string]*Entry
}

// NewRegistry creates an empty registry. settings and newSupervisor may be
// nil; sessions then start at the default volume with no supervisor attached.
func NewRegistry(cfg Config, deps Deps, settings SettingsSource, factory SupervisorFactory, log *logrus.Entry) *Registry {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Registry{
		cfg:           cfg,
		deps:          deps,
		settings:      settings,
		newSupervisor: factory,
		log:           log,
		entries:       make(map[string]*Entry),
	}
}

// Get returns the pair for a guild, creating it on first use. The session's
// starting volume comes from the persisted guild settings when available.
func (r *Registry) Get(guildID string) *Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[guildID]; ok {
		return e
	}

	cfg := r.cfg
	if r.settings != nil {
		if vol, ok := r.settings.GuildVolume(guildID); ok {
			cfg.DefaultVolume = vol
		}
	}

	e := &Entry{Session: NewSession(guildID, cfg, r.deps, r.log)}
	if r.newSupervisor != nil {
		e.Supervisor = r.newSupervisor(guildID, e.Session)
	}
	r.entries[guildID] = e
	r.log.WithField("guild_id", guildID).Info("Created playback session")
	return e
}

// Peek returns the pair for a guild without creating one.
func (r *Registry) Peek(guildID string) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[guildID]
	return e, ok
}

// Entries returns a snapshot of all registered pairs.
func (r *Registry) Entries() []*Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

// RunSweeper drives every supervisor's reconciliation on a fixed interval
// until ctx is cancelled. This is the durability backstop against dropped
// disconnect notifications; per-guild serialization happens inside each
// session, so the sweep needs no lock of its own beyond the snapshot.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.log.WithField("interval", interval).Info("Reconciliation sweeper started")
	for {
		select {
		case <-ctx.Done():
			r.log.Info("Reconciliation sweeper stopped")
			return
		case <-ticker.C:
			for _, e := range r.Entries() {
				if e.Supervisor != nil {
					e.Supervisor.Reconcile()
				}
			}
		}
	}
}

// Close tears down every session and supervisor, for process shutdown.
func (r *Registry) Close() {
	for _, e := range r.Entries() {
		if e.Supervisor != nil {
			e.Supervisor.Stop()
		}
		e.Session.Close()
	}
}
