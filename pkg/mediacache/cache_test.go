package mediacache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDownloader struct {
	mu      sync.Mutex
	calls   int32
	delay   time.Duration
	err     error
	payload []byte
	started chan struct{}
	release chan struct{}
}

func (d *fakeDownloader) Download(ctx context.Context, sourceRef, destPath string) error {
	atomic.AddInt32(&d.calls, 1)
	if d.started != nil {
		d.started <- struct{}{}
	}
	if d.release != nil {
		select {
		case <-d.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if d.err != nil {
		return d.err
	}
	payload := d.payload
	if payload == nil {
		payload = []byte("audio-bytes")
	}
	return os.WriteFile(destPath, payload, 0o644)
}

func (d *fakeDownloader) count() int {
	return int(atomic.LoadInt32(&d.calls))
}

func newTestCache(t *testing.T, cfg Config, dl Downloader) *Cache {
	t.Helper()
	if cfg.Dir == "" {
		cfg.Dir = t.TempDir()
	}
	c, err := New(cfg, dl, nil)
	require.NoError(t, err)
	return c
}

func TestFetchDownloadsAndReturnsPath(t *testing.T) {
	dl := &fakeDownloader{}
	c := newTestCache(t, Config{}, dl)

	path, err := c.Fetch(context.Background(), "vid-a", "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, c.PathFor("vid-a"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("audio-bytes"), data)
	assert.Equal(t, 1, dl.count())
}

func TestFetchHitSkipsDownload(t *testing.T) {
	dl := &fakeDownloader{}
	c := newTestCache(t, Config{}, dl)

	_, err := c.Fetch(context.Background(), "vid-a", "https://example.com/a")
	require.NoError(t, err)
	_, err = c.Fetch(context.Background(), "vid-a", "https://example.com/a")
	require.NoError(t, err)

	assert.Equal(t, 1, dl.count())
}

func TestConcurrentFetchesShareOneDownload(t *testing.T) {
	dl := &fakeDownloader{delay: 50 * time.Millisecond}
	c := newTestCache(t, Config{}, dl)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Fetch(context.Background(), "vid-a", "https://example.com/a")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, dl.count())
}

func TestFetchCallerContextDetaches(t *testing.T) {
	dl := &fakeDownloader{delay: time.Second}
	c := newTestCache(t, Config{}, dl)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Fetch(ctx, "vid-a", "https://example.com/a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetchDownloadFailure(t *testing.T) {
	dl := &fakeDownloader{err: errors.New("boom")}
	c := newTestCache(t, Config{}, dl)

	_, err := c.Fetch(context.Background(), "vid-a", "https://example.com/a")
	require.Error(t, err)

	// No partial entry may remain.
	entries, err := os.ReadDir(c.cfg.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCancelPrefetchAbortsDownload(t *testing.T) {
	dl := &fakeDownloader{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	c := newTestCache(t, Config{}, dl)

	c.Prefetch("vid-a", "https://example.com/a")
	<-dl.started

	c.CancelPrefetch("vid-a")

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		_, inFlight := c.flights["vid-a"]
		return !inFlight
	}, time.Second, 5*time.Millisecond)

	_, err := os.Stat(c.PathFor("vid-a"))
	assert.True(t, os.IsNotExist(err))
}

func TestEvictRemovesOldestBeyondFileCeiling(t *testing.T) {
	dir := t.TempDir()
	c := newTestCache(t, Config{Dir: dir, MaxFiles: 2}, &fakeDownloader{})

	now := time.Now()
	for i, id := range []string{"old", "mid", "new"} {
		path := c.PathFor(id)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		ts := now.Add(time.Duration(i-3) * time.Hour)
		require.NoError(t, os.Chtimes(path, ts, ts))
	}

	c.Evict()

	_, files := c.Usage()
	assert.Equal(t, 2, files)
	_, err := os.Stat(c.PathFor("old"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(c.PathFor("new"))
	assert.NoError(t, err)
}

func TestEvictRespectsByteCeiling(t *testing.T) {
	dir := t.TempDir()
	c := newTestCache(t, Config{Dir: dir, MaxBytes: 10}, &fakeDownloader{})

	now := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		path := c.PathFor(id)
		require.NoError(t, os.WriteFile(path, []byte("12345"), 0o644))
		ts := now.Add(time.Duration(i-3) * time.Hour)
		require.NoError(t, os.Chtimes(path, ts, ts))
	}

	c.Evict()

	bytes, _ := c.Usage()
	assert.LessOrEqual(t, bytes, int64(10))
}

func TestEvictSkipsPinnedEntries(t *testing.T) {
	dir := t.TempDir()
	c := newTestCache(t, Config{Dir: dir, MaxFiles: 1}, &fakeDownloader{})

	now := time.Now()
	for i, id := range []string{"pinned", "loose"} {
		path := c.PathFor(id)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		ts := now.Add(time.Duration(i-3) * time.Hour)
		require.NoError(t, os.Chtimes(path, ts, ts))
	}

	c.Pin("pinned")
	defer c.Unpin("pinned")

	c.Evict()

	// The pinned entry survives even though it is the oldest.
	_, err := os.Stat(c.PathFor("pinned"))
	assert.NoError(t, err)
	_, err = os.Stat(c.PathFor("loose"))
	assert.True(t, os.IsNotExist(err))
}

func TestEvictIgnoresPartialFiles(t *testing.T) {
	dir := t.TempDir()
	c := newTestCache(t, Config{Dir: dir, MaxFiles: 1}, &fakeDownloader{})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "half.m4a.part"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(c.PathFor("whole"), []byte("x"), 0o644))

	c.Evict()

	_, files := c.Usage()
	assert.Equal(t, 1, files)
	_, err := os.Stat(filepath.Join(dir, "half.m4a.part"))
	assert.NoError(t, err)
}

func TestFetchRefreshesRecency(t *testing.T) {
	dl := &fakeDownloader{}
	c := newTestCache(t, Config{}, dl)

	path, err := c.Fetch(context.Background(), "vid-a", "https://example.com/a")
	require.NoError(t, err)

	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	_, err = c.Fetch(context.Background(), "vid-a", "https://example.com/a")
	require.NoError(t, err)

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), fi.ModTime(), time.Minute)
}

func TestPinUnpinRefcounts(t *testing.T) {
	c := newTestCache(t, Config{}, &fakeDownloader{})

	c.Pin("vid-a")
	c.Pin("vid-a")
	c.Unpin("vid-a")
	assert.True(t, c.busy("vid-a"))

	c.Unpin("vid-a")
	assert.False(t, c.busy("vid-a"))
}

func TestUsageCountsResidentEntries(t *testing.T) {
	dir := t.TempDir()
	c := newTestCache(t, Config{Dir: dir}, &fakeDownloader{})

	require.NoError(t, os.WriteFile(c.PathFor("a"), []byte("1234"), 0o644))
	require.NoError(t, os.WriteFile(c.PathFor("b"), []byte("12"), 0o644))

	bytes, files := c.Usage()
	assert.Equal(t, int64(6), bytes)
	assert.Equal(t, 2, files)
}
