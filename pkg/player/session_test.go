package player

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	mu     sync.Mutex
	tracks map[string]*Track
	err    error
	calls  int
}

func (r *fakeResolver) Resolve(ctx context.Context, query string) (*Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	if t, ok := r.tracks[query]; ok {
		return t, nil
	}
	return NewTrack("resolved "+query, "https://example.com/"+query, "", query), nil
}

type fakeFetcher struct {
	mu         sync.Mutex
	err        error
	fetches    []string
	prefetches []string
	cancels    []string
	pins       map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{pins: make(map[string]int)}
}

func (f *fakeFetcher) Fetch(ctx context.Context, sourceID, sourceURL string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches = append(f.fetches, sourceID)
	if f.err != nil {
		return "", f.err
	}
	return "/cache/" + sourceID + ".m4a", nil
}

func (f *fakeFetcher) Prefetch(sourceID, sourceURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefetches = append(f.prefetches, sourceID)
}

func (f *fakeFetcher) CancelPrefetch(sourceID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, sourceID)
}

func (f *fakeFetcher) Pin(sourceID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pins[sourceID]++
}

func (f *fakeFetcher) Unpin(sourceID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pins[sourceID]--
}

type fakeSink struct {
	mu      sync.Mutex
	volume  int
	paused  bool
	stopped bool
	playing bool
	done    func(err error)
}

func (s *fakeSink) SetVolume(percent int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = percent
}

func (s *fakeSink) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

func (s *fakeSink) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

func (s *fakeSink) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.playing = false
	done := s.done
	s.mu.Unlock()
	// Completion arrives from a background goroutine, like a real sink.
	go done(nil)
}

func (s *fakeSink) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

type fakeSinkOpener struct {
	t       *testing.T
	mu      sync.Mutex
	sinks   []*fakeSink
	openErr error
	volumes []int
}

func (o *fakeSinkOpener) Open(guildID string, input Input, initialVolume int, done func(err error)) (Sink, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.openErr != nil {
		return nil, o.openErr
	}
	s := &fakeSink{volume: initialVolume, playing: true, done: done}
	o.sinks = append(o.sinks, s)
	o.volumes = append(o.volumes, initialVolume)
	return s, nil
}

// last returns the most recently opened sink.
func (o *fakeSinkOpener) last() *fakeSink {
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(o.t, o.sinks)
	return o.sinks[len(o.sinks)-1]
}

type fakeAnnouncer struct {
	mu       sync.Mutex
	played   []string
	failed   []string
	failures []error
}

func (a *fakeAnnouncer) Announce(guildID string, t *Track) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.played = append(a.played, t.Title)
}

func (a *fakeAnnouncer) AnnounceFailure(guildID string, t *Track, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failed = append(a.failed, t.Title)
	a.failures = append(a.failures, err)
}

func (a *fakeAnnouncer) playedTitles() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.played))
	copy(out, a.played)
	return out
}

func (a *fakeAnnouncer) failedTitles() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.failed))
	copy(out, a.failed)
	return out
}

type harness struct {
	session   *Session
	resolver  *fakeResolver
	fetcher   *fakeFetcher
	opener    *fakeSinkOpener
	announcer *fakeAnnouncer
}

func newHarness(t *testing.T, cfg Config) *harness {
	h := &harness{
		resolver:  &fakeResolver{tracks: make(map[string]*Track)},
		fetcher:   newFakeFetcher(),
		opener:    &fakeSinkOpener{t: t},
		announcer: &fakeAnnouncer{},
	}
	h.session = NewSession("guild-1", cfg, Deps{
		Resolver:  h.resolver,
		Cache:     h.fetcher,
		Sinks:     h.opener,
		Announcer: h.announcer,
	}, nil)
	t.Cleanup(h.session.Close)
	return h
}

// noFade disables the ramp so sinks open at the session volume.
func noFade(cfg Config) Config {
	cfg.FadeDuration = 0
	return cfg
}

func cachedTrack(title, sourceID string) *Track {
	return NewTrack(title, "https://example.com/"+sourceID, sourceID, title)
}

// complete finishes the current attempt and waits for the session to settle.
func (h *harness) complete(t *testing.T, err error) {
	sink := h.opener.last()
	sink.mu.Lock()
	sink.playing = false
	done := sink.done
	sink.mu.Unlock()
	done(err)
}

func TestEnqueueStartsPlaybackWhenIdle(t *testing.T) {
	h := newHarness(t, noFade(DefaultConfig()))

	trackA := cachedTrack("song a", "vid-a")
	h.session.Enqueue(trackA)

	require.NotNil(t, h.session.Current())
	assert.Equal(t, "song a", h.session.Current().Title)
	assert.Empty(t, h.session.QueueItems())
	assert.Equal(t, []string{"song a"}, h.announcer.playedTitles())
	assert.Equal(t, []string{"vid-a"}, h.fetcher.prefetches)
}

func TestEnqueueAppendsWhilePlaying(t *testing.T) {
	h := newHarness(t, noFade(DefaultConfig()))

	h.session.Enqueue(cachedTrack("song a", "vid-a"))
	h.session.Enqueue(cachedTrack("song b", "vid-b"))

	assert.Equal(t, "song a", h.session.Current().Title)
	require.Len(t, h.session.QueueItems(), 1)
	assert.Equal(t, "song b", h.session.QueueItems()[0].Title)
}

func TestCompletionAdvancesAndRecordsLast(t *testing.T) {
	h := newHarness(t, noFade(DefaultConfig()))

	h.session.Enqueue(cachedTrack("song a", "vid-a"))
	h.session.Enqueue(cachedTrack("song b", "vid-b"))

	h.complete(t, nil)

	require.NotNil(t, h.session.Current())
	assert.Equal(t, "song b", h.session.Current().Title)
	require.NotNil(t, h.session.Last())
	assert.Equal(t, "song a", h.session.Last().Title)
}

func TestCompletionOnEmptyQueueGoesIdle(t *testing.T) {
	h := newHarness(t, noFade(DefaultConfig()))

	h.session.Enqueue(cachedTrack("song a", "vid-a"))
	h.complete(t, nil)

	assert.Nil(t, h.session.Current())
	assert.Equal(t, "song a", h.session.Last().Title)
}

func TestFailedTrackRetriesSilently(t *testing.T) {
	cfg := noFade(DefaultConfig())
	cfg.RetryLimit = 3
	h := newHarness(t, cfg)

	h.session.Enqueue(cachedTrack("song a", "vid-a"))
	h.complete(t, NewSinkError(assert.AnError))

	// The retry replays immediately and must not announce again.
	require.NotNil(t, h.session.Current())
	assert.Equal(t, "song a", h.session.Current().Title)
	assert.Equal(t, 1, h.session.Current().RetryCount)
	assert.Equal(t, []string{"song a"}, h.announcer.playedTitles())
	assert.Empty(t, h.announcer.failedTitles())
}

func TestRetryBudgetExhaustionDropsTrack(t *testing.T) {
	cfg := noFade(DefaultConfig())
	cfg.RetryLimit = 2
	h := newHarness(t, cfg)

	h.session.Enqueue(cachedTrack("song a", "vid-a"))
	h.session.Enqueue(cachedTrack("song b", "vid-b"))

	// Initial attempt plus two retries all fail.
	for i := 0; i < 3; i++ {
		h.complete(t, NewSinkError(assert.AnError))
	}

	assert.Equal(t, []string{"song a"}, h.announcer.failedTitles())
	require.NotNil(t, h.session.Current())
	assert.Equal(t, "song b", h.session.Current().Title)
}

func TestRetryDisabledDropsImmediately(t *testing.T) {
	cfg := noFade(DefaultConfig())
	cfg.RetryLimit = 0
	h := newHarness(t, cfg)

	h.session.Enqueue(cachedTrack("song a", "vid-a"))
	h.complete(t, NewSinkError(assert.AnError))

	assert.Equal(t, []string{"song a"}, h.announcer.failedTitles())
	assert.Nil(t, h.session.Current())
}

func TestSkipAdvancesViaCompletion(t *testing.T) {
	h := newHarness(t, noFade(DefaultConfig()))

	h.session.Enqueue(cachedTrack("song a", "vid-a"))
	h.session.Enqueue(cachedTrack("song b", "vid-b"))

	first := h.opener.last()
	require.NoError(t, h.session.Skip())

	// The sink's async completion drives the advance.
	require.Eventually(t, func() bool {
		cur := h.session.Current()
		return cur != nil && cur.Title == "song b"
	}, time.Second, 10*time.Millisecond)

	first.mu.Lock()
	stopped := first.stopped
	first.mu.Unlock()
	assert.True(t, stopped)
	assert.Equal(t, "song a", h.session.Last().Title)
}

func TestSkipWithNothingPlaying(t *testing.T) {
	h := newHarness(t, noFade(DefaultConfig()))
	assert.ErrorIs(t, h.session.Skip(), ErrNothingPlaying)
}

func TestStopPreservesQueue(t *testing.T) {
	h := newHarness(t, noFade(DefaultConfig()))

	h.session.Enqueue(cachedTrack("song a", "vid-a"))
	h.session.Enqueue(cachedTrack("song b", "vid-b"))

	require.NoError(t, h.session.Stop())

	assert.Nil(t, h.session.Current())
	assert.Equal(t, "song a", h.session.Last().Title)
	require.Len(t, h.session.QueueItems(), 1)
	assert.Equal(t, "song b", h.session.QueueItems()[0].Title)

	// The torn-down sink's completion must not trigger an advance.
	time.Sleep(50 * time.Millisecond)
	assert.Nil(t, h.session.Current())
}

func TestStopClearsQueueWhenConfigured(t *testing.T) {
	cfg := noFade(DefaultConfig())
	cfg.ClearQueueOnStop = true
	h := newHarness(t, cfg)

	h.session.Enqueue(cachedTrack("song a", "vid-a"))
	h.session.Enqueue(cachedTrack("song b", "vid-b"))

	require.NoError(t, h.session.Stop())
	assert.Empty(t, h.session.QueueItems())
}

func TestRestartWhileIdleReplaysLast(t *testing.T) {
	h := newHarness(t, noFade(DefaultConfig()))

	h.session.Enqueue(cachedTrack("song a", "vid-a"))
	h.complete(t, nil)
	require.Nil(t, h.session.Current())

	require.NoError(t, h.session.Restart())

	require.NotNil(t, h.session.Current())
	assert.Equal(t, "song a", h.session.Current().Title)
	// The replay is silent and carries a fresh identity.
	assert.Equal(t, []string{"song a"}, h.announcer.playedTitles())
	assert.NotEqual(t, h.session.Last().ID, h.session.Current().ID)
}

func TestRestartWhilePlayingQueuesNext(t *testing.T) {
	h := newHarness(t, noFade(DefaultConfig()))

	h.session.Enqueue(cachedTrack("song a", "vid-a"))
	require.NoError(t, h.session.Restart())

	assert.Equal(t, "song a", h.session.Current().Title)
	require.Len(t, h.session.QueueItems(), 1)
	assert.Equal(t, "song a", h.session.QueueItems()[0].Title)
}

func TestRestartWithNoHistory(t *testing.T) {
	h := newHarness(t, noFade(DefaultConfig()))
	assert.ErrorIs(t, h.session.Restart(), ErrNoPriorTrack)
}

func TestPauseResume(t *testing.T) {
	h := newHarness(t, noFade(DefaultConfig()))

	h.session.Enqueue(cachedTrack("song a", "vid-a"))

	require.NoError(t, h.session.Pause())
	assert.True(t, h.session.Paused())
	require.NoError(t, h.session.Resume())
	assert.False(t, h.session.Paused())
}

func TestResumeStartsIdleQueue(t *testing.T) {
	h := newHarness(t, noFade(DefaultConfig()))

	// Stop with a pending queue leaves the session idle but non-empty.
	h.session.Enqueue(cachedTrack("song a", "vid-a"))
	h.session.Enqueue(cachedTrack("song b", "vid-b"))
	require.NoError(t, h.session.Stop())
	require.Nil(t, h.session.Current())

	require.NoError(t, h.session.Resume())
	require.NotNil(t, h.session.Current())
	assert.Equal(t, "song b", h.session.Current().Title)
}

func TestResumeWithNothingQueued(t *testing.T) {
	h := newHarness(t, noFade(DefaultConfig()))
	assert.ErrorIs(t, h.session.Resume(), ErrNothingPlaying)
}

func TestSetVolumeClampsAndApplies(t *testing.T) {
	cfg := noFade(DefaultConfig())
	cfg.MinVolume = 10
	cfg.MaxVolume = 200
	cfg.DefaultVolume = 100
	h := newHarness(t, cfg)

	h.session.Enqueue(cachedTrack("song a", "vid-a"))

	assert.Equal(t, 200, h.session.SetVolume(+500))
	assert.Equal(t, 10, h.session.SetVolume(-500))
	assert.Equal(t, 60, h.session.SetVolume(+50))

	sink := h.opener.last()
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, 60, sink.volume)
}

func TestFadeInStartsQuietAndRamps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FadeDuration = 50 * time.Millisecond
	cfg.FadeSteps = 5
	h := newHarness(t, cfg)

	h.session.Enqueue(cachedTrack("song a", "vid-a"))

	assert.Equal(t, 0, h.opener.volumes[0])
	require.Eventually(t, func() bool {
		sink := h.opener.last()
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return sink.volume == h.session.Volume()
	}, time.Second, 5*time.Millisecond)
}

func TestVolumeChangeCancelsFade(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FadeDuration = 10 * time.Second
	cfg.FadeSteps = 100
	h := newHarness(t, cfg)

	h.session.Enqueue(cachedTrack("song a", "vid-a"))
	level := h.session.SetVolume(-20)

	sink := h.opener.last()
	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return sink.volume == level
	}, time.Second, 5*time.Millisecond)

	// The ramp is gone; the level must hold.
	time.Sleep(50 * time.Millisecond)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, level, sink.volume)
}

func TestRemoveCancelsPrefetch(t *testing.T) {
	h := newHarness(t, noFade(DefaultConfig()))

	h.session.Enqueue(cachedTrack("song a", "vid-a"))
	h.session.Enqueue(cachedTrack("song b", "vid-b"))

	removed, err := h.session.Remove(0)
	require.NoError(t, err)
	assert.Equal(t, "song b", removed.Title)
	assert.Equal(t, []string{"vid-b"}, h.fetcher.cancels)

	_, err = h.session.Remove(5)
	assert.Error(t, err)
}

func TestDirectURLTrackBypassesCache(t *testing.T) {
	h := newHarness(t, noFade(DefaultConfig()))

	direct := NewTrack("stream", "https://radio.example.com/live", "", "")
	h.session.Enqueue(direct)

	require.NotNil(t, h.session.Current())
	assert.Empty(t, h.fetcher.fetches)
	assert.Empty(t, h.fetcher.prefetches)
}

func TestStalledDetectionAndRecovery(t *testing.T) {
	h := newHarness(t, noFade(DefaultConfig()))

	h.session.Enqueue(cachedTrack("song a", "vid-a"))
	assert.False(t, h.session.Stalled())

	// Simulate the sink dying without a completion callback.
	sink := h.opener.last()
	sink.mu.Lock()
	sink.playing = false
	sink.mu.Unlock()

	assert.True(t, h.session.Stalled())

	h.session.RecoverStalled()

	require.NotNil(t, h.session.Current())
	assert.Equal(t, "song a", h.session.Current().Title)
	// Silent replay: still exactly one announcement.
	assert.Equal(t, []string{"song a"}, h.announcer.playedTitles())
	assert.False(t, h.session.Stalled())
}

func TestRecoverStalledLeavesHealthySessionAlone(t *testing.T) {
	h := newHarness(t, noFade(DefaultConfig()))

	h.session.Enqueue(cachedTrack("song a", "vid-a"))
	h.session.RecoverStalled()

	h.opener.mu.Lock()
	opened := len(h.opener.sinks)
	h.opener.mu.Unlock()
	assert.Equal(t, 1, opened)
}

func TestDownloadFailureFallsBackThroughRetries(t *testing.T) {
	cfg := noFade(DefaultConfig())
	cfg.RetryLimit = 1
	h := newHarness(t, cfg)
	h.fetcher.err = assert.AnError

	h.session.Enqueue(cachedTrack("song a", "vid-a"))

	// Fetch fails on the first attempt and the single retry, so the track is
	// dropped synchronously inside Enqueue's advance.
	assert.Nil(t, h.session.Current())
	assert.Equal(t, []string{"song a"}, h.announcer.failedTitles())
}
