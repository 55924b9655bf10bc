package player

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Deps are the capabilities a session drives. Resolver, Cache and Sinks are
// required; Announcer may be nil.
type Deps struct {
	Resolver  Resolver
	Cache     Fetcher
	Sinks     SinkOpener
	Announcer Announcer
}

// Session owns one guild's playback state: the FIFO queue, the current and
// last track slots, the volume level, and the live sink. Every mutating
// operation serializes on the session mutex because completion callbacks from
// the sink, user commands, and the reconciliation sweep can all fire
// concurrently for the same guild. Operations for different guilds never
// contend.
type Session struct {
	guildID string
	cfg     Config
	deps    Deps
	log     *logrus.Entry

	mu      sync.Mutex
	queue   []*Track
	current *Track
	last    *Track
	volume  int
	paused  bool

	sink Sink
	fade *fadeRamp
	// attemptID identifies the playback attempt the live sink belongs to.
	// A completion callback carrying a stale attempt is ignored, which is how
	// stop() detaches from a sink it has already torn down.
	attemptID string
	// pinned is the cache source currently held against eviction.
	pinned string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSession creates an idle session for a guild.
func NewSession(guildID string, cfg Config, deps Deps, log *logrus.Entry) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Session{
		guildID: guildID,
		cfg:     cfg,
		deps:    deps,
		log:     log.WithField("guild_id", guildID),
		volume:  cfg.clampVolume(cfg.DefaultVolume),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// GuildID returns the guild this session belongs to.
func (s *Session) GuildID() string {
	return s.guildID
}

// Enqueue appends a track and starts playback if the session is idle. The
// track's payload is prefetched in the background so it is often already
// local by the time advance reaches it.
func (s *Session) Enqueue(t *Track) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue = append(s.queue, t)
	if t.SourceID != "" {
		s.deps.Cache.Prefetch(t.SourceID, t.SourceRef)
	}
	s.log.WithFields(logrus.Fields{
		"track_id": t.ID,
		"title":    t.Title,
		"position": len(s.queue),
	}).Info("Track enqueued")

	if s.current == nil {
		s.advanceLocked()
	}
}

// advanceLocked pops the queue head and starts it, looping through retry
// re-inserts and dropped tracks until a sink is running or the queue is
// drained. Callers must hold s.mu.
func (s *Session) advanceLocked() {
	for {
		if len(s.queue) == 0 {
			s.current = nil
			s.attemptID = ""
			s.log.Debug("Queue drained, session idle")
			return
		}

		t := s.queue[0]
		s.queue = s.queue[1:]
		s.current = t

		input, err := s.resolveInput(t)
		if err != nil {
			s.log.WithError(err).WithField("track_id", t.ID).Warn("Failed to prepare playable input")
			if !s.retryLocked(t, err) {
				s.dropLocked(t, err)
			}
			continue
		}

		attempt := uuid.NewString()
		initialVolume := 0
		if s.cfg.FadeDuration <= 0 || s.cfg.FadeSteps < 2 {
			initialVolume = s.volume
		}
		done := func(playErr error) { s.onTrackEnd(t, attempt, playErr) }

		sink, err := s.deps.Sinks.Open(s.guildID, input, initialVolume, done)
		if err != nil {
			serr := NewSinkError(err)
			s.log.WithError(err).WithField("track_id", t.ID).Warn("Failed to open sink")
			if !s.retryLocked(t, serr) {
				s.dropLocked(t, serr)
			}
			continue
		}

		s.sink = sink
		s.attemptID = attempt
		s.paused = false
		if t.SourceID != "" && input.Path != "" {
			s.deps.Cache.Pin(t.SourceID)
			s.pinned = t.SourceID
		}
		s.fade = startFade(sink, s.volume, s.cfg.FadeDuration, s.cfg.FadeSteps)

		if t.SkipAnnounce {
			t.SkipAnnounce = false
		} else if s.deps.Announcer != nil {
			s.deps.Announcer.Announce(s.guildID, t)
		}

		s.log.WithFields(logrus.Fields{
			"track_id": t.ID,
			"title":    t.Title,
			"attempt":  attempt,
			"retries":  t.RetryCount,
		}).Info("Playback started")
		return
	}
}

// resolveInput prefers the cache-resident payload, downloading it through the
// shared gate when it is not local yet. Non-cacheable tracks play the remote
// locator directly.
func (s *Session) resolveInput(t *Track) (Input, error) {
	if t.SourceID == "" {
		return Input{URL: t.SourceRef}, nil
	}
	path, err := s.deps.Cache.Fetch(s.ctx, t.SourceID, t.SourceRef)
	if err != nil {
		return Input{}, NewDownloadError(err)
	}
	return Input{Path: path, URL: t.SourceRef}, nil
}

// onTrackEnd is the sink's completion notification. It re-enters the
// serialized operation path; a stale attempt id means the session already
// moved on (stop, or a superseding advance) and the notification is dropped.
func (s *Session) onTrackEnd(t *Track, attempt string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attemptID != attempt {
		s.log.WithField("track_id", t.ID).Debug("Ignoring stale sink completion")
		return
	}
	s.detachSinkLocked()

	if err != nil {
		s.log.WithError(err).WithField("track_id", t.ID).Warn("Playback attempt failed")
		if !s.retryLocked(t, err) {
			s.dropLocked(t, err)
		}
		s.advanceLocked()
		return
	}

	s.last = t
	s.current = nil
	s.advanceLocked()
}

// retryLocked applies the retry policy: within budget the track is
// re-resolved, marked silent, head-inserted, and the caller's advance loop
// picks it up again. Returns false when retries are exhausted or disabled.
func (s *Session) retryLocked(t *Track, cause error) bool {
	if s.cfg.RetryLimit <= 0 || t.RetryCount >= s.cfg.RetryLimit {
		return false
	}
	t.RetryCount++

	// The original locator may have expired; refresh it best-effort and keep
	// the old one if resolution fails, since the cache may still serve it.
	query := t.OriginalQuery
	if query == "" {
		query = t.SourceRef
	}
	if fresh, err := s.deps.Resolver.Resolve(s.ctx, query); err != nil {
		s.log.WithError(err).WithField("track_id", t.ID).Warn("Re-resolve failed, retrying with stale locator")
	} else {
		t.SourceRef = fresh.SourceRef
	}

	t.SkipAnnounce = true
	s.queue = append([]*Track{t}, s.queue...)
	s.current = nil
	s.log.WithFields(logrus.Fields{
		"track_id": t.ID,
		"retry":    t.RetryCount,
		"limit":    s.cfg.RetryLimit,
	}).Info("Retrying track")
	return true
}

// dropLocked gives up on a track after its retry budget is spent.
func (s *Session) dropLocked(t *Track, cause error) {
	s.current = nil
	s.log.WithFields(logrus.Fields{
		"track_id": t.ID,
		"title":    t.Title,
		"retries":  t.RetryCount,
	}).Error("Dropping track, retries exhausted")
	if s.deps.Announcer != nil {
		s.deps.Announcer.AnnounceFailure(s.guildID, t, cause)
	}
}

// detachSinkLocked tears down per-attempt state: the fade ramp, the cache pin
// and the sink reference. It does not touch current/last ownership.
func (s *Session) detachSinkLocked() {
	s.attemptID = ""
	if s.fade != nil {
		s.fade.cancel()
		s.fade = nil
	}
	if s.pinned != "" {
		s.deps.Cache.Unpin(s.pinned)
		s.pinned = ""
	}
	s.sink = nil
	s.paused = false
}

// Skip stops the active sink; its completion callback drives the advance to
// the next queued track.
func (s *Session) Skip() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || s.sink == nil {
		return ErrNothingPlaying
	}
	s.log.WithField("track_id", s.current.ID).Info("Skipping track")
	s.sink.Stop()
	return nil
}

// Stop halts playback and clears the current track without re-queuing it.
// The pending queue is preserved unless ClearQueueOnStop is set. The stopped
// track lands in the last slot so restart can bring it back.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil && len(s.queue) == 0 {
		return ErrNothingPlaying
	}

	if s.sink != nil {
		sink := s.sink
		s.detachSinkLocked()
		sink.Stop()
	}
	if s.current != nil {
		s.last = s.current
		s.current = nil
	}
	if s.cfg.ClearQueueOnStop {
		s.clearQueueLocked()
	}
	s.log.Info("Playback stopped")
	return nil
}

// Restart replays the current track, or the last one when idle. The replay is
// a fresh clone head-inserted into the queue; when something is already
// playing it simply becomes the next track.
func (s *Session) Restart() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	src := s.current
	if src == nil {
		src = s.last
	}
	if src == nil {
		return ErrNoPriorTrack
	}

	clone := src.Clone()
	clone.SkipAnnounce = true
	s.queue = append([]*Track{clone}, s.queue...)
	s.log.WithField("track_id", clone.ID).Info("Restart queued")

	if s.current == nil {
		s.advanceLocked()
	}
	return nil
}

// Pause pauses the active sink.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sink == nil {
		return ErrNothingPlaying
	}
	s.sink.Pause()
	s.paused = true
	return nil
}

// Resume resumes a paused sink, or starts the queue when idle.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sink != nil {
		s.sink.Resume()
		s.paused = false
		return nil
	}
	if len(s.queue) == 0 {
		return ErrNothingPlaying
	}
	s.advanceLocked()
	return nil
}

// SetVolume adjusts the volume by delta, clamped to the configured bounds,
// and applies it live to an active sink. Returns the new level.
func (s *Session) SetVolume(delta int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.volume = s.cfg.clampVolume(s.volume + delta)
	if s.fade != nil {
		// A live volume change supersedes the ramp.
		s.fade.cancel()
		s.fade = nil
	}
	if s.sink != nil {
		s.sink.SetVolume(s.volume)
	}
	return s.volume
}

// Volume returns the session's target volume.
func (s *Session) Volume() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// Current returns the track occupying the current slot, if any.
func (s *Session) Current() *Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Last returns the most recently completed track, if any.
func (s *Session) Last() *Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Paused reports whether the active sink is paused.
func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// QueueItems returns a snapshot of the pending queue in play order.
func (s *Session) QueueItems() []*Track {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Track, len(s.queue))
	copy(out, s.queue)
	return out
}

// Remove deletes the queued track at index. Its prefetch, if still in flight
// and unshared, is cancelled so the bandwidth is not wasted.
func (s *Session) Remove(index int) (*Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.queue) {
		return nil, ErrNothingPlaying
	}
	t := s.queue[index]
	s.queue = append(s.queue[:index], s.queue[index+1:]...)
	if t.SourceID != "" {
		s.deps.Cache.CancelPrefetch(t.SourceID)
	}
	s.log.WithField("track_id", t.ID).Info("Removed track from queue")
	return t, nil
}

// ClearQueue drops every pending track, leaving the current one playing.
func (s *Session) ClearQueue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearQueueLocked()
}

func (s *Session) clearQueueLocked() {
	for _, t := range s.queue {
		if t.SourceID != "" {
			s.deps.Cache.CancelPrefetch(t.SourceID)
		}
	}
	s.queue = nil
}

// Stalled reports whether the session believes it is playing but the sink has
// stopped producing, the leftover of a disconnect whose notification was
// dropped.
func (s *Session) Stalled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && (s.sink == nil || !s.sink.Playing())
}

// RecoverStalled re-queues a stalled current track at the head and advances,
// replaying it silently. Invoked by the resilience supervisor after it has
// restored the voice connection; a healthy session is left untouched.
func (s *Session) RecoverStalled() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return
	}
	if s.sink != nil && s.sink.Playing() {
		return
	}

	t := s.current
	if s.sink != nil {
		sink := s.sink
		s.detachSinkLocked()
		sink.Stop()
	} else {
		s.detachSinkLocked()
	}

	t.SkipAnnounce = true
	s.queue = append([]*Track{t}, s.queue...)
	s.current = nil
	s.log.WithField("track_id", t.ID).Info("Re-queuing stalled track after reconnect")
	s.advanceLocked()
}

// Close tears the session down. Registered sessions live for the process
// lifetime; this exists for shutdown and tests.
func (s *Session) Close() {
	s.mu.Lock()
	if s.sink != nil {
		sink := s.sink
		s.detachSinkLocked()
		sink.Stop()
	}
	s.current = nil
	s.clearQueueLocked()
	s.mu.Unlock()
	s.cancel()
}
