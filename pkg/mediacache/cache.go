// Package mediacache is a bounded on-disk store of downloaded audio payloads,
// shared by every guild in the process. Fetches for the same source are
// deduplicated, downloads run under a process-wide concurrency gate, and an
// eviction sweep keeps the directory under its byte and file-count ceilings.
package mediacache

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

const partSuffix = ".part"

// Downloader fetches a remote source into a local file. Must be safe to call
// when the destination already exists.
type Downloader interface {
	Download(ctx context.Context, sourceRef, destPath string) error
}

// Config bounds the cache. A ceiling of zero or below disables that
// dimension; MaxConcurrentDownloads is floored at one.
type Config struct {
	Dir                    string
	MaxBytes               int64
	MaxFiles               int
	MaxConcurrentDownloads int
}

// Cache owns the directory and all entry lifecycle. Playback code never
// removes files itself; it pins the entries it is reading so the sweep skips
// them.
type Cache struct {
	cfg Config
	dl  Downloader
	log *logrus.Entry

	gate  *semaphore.Weighted
	group singleflight.Group

	mu      sync.Mutex
	flights map[string]context.CancelFunc
	pins    map[string]int
}

// New creates the cache, making its directory if needed.
func New(cfg Config, dl Downloader, log *logrus.Entry) (*Cache, error) {
	if cfg.MaxConcurrentDownloads < 1 {
		cfg.MaxConcurrentDownloads = 1
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating cache dir")
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Cache{
		cfg:     cfg,
		dl:      dl,
		log:     log.WithField("component", "mediacache"),
		gate:    semaphore.NewWeighted(int64(cfg.MaxConcurrentDownloads)),
		flights: make(map[string]context.CancelFunc),
		pins:    make(map[string]int),
	}, nil
}

// PathFor returns the on-disk location for a source id.
func (c *Cache) PathFor(sourceID string) string {
	return filepath.Join(c.cfg.Dir, sourceID+".m4a")
}

// Fetch returns the local path for sourceID, downloading it first when it is
// not resident. Concurrent fetches for the same source share one download;
// the caller's ctx only detaches that caller, it does not abort a shared
// flight.
func (c *Cache) Fetch(ctx context.Context, sourceID, sourceURL string) (string, error) {
	path := c.PathFor(sourceID)
	if fi, err := os.Stat(path); err == nil && fi.Size() > 0 {
		now := time.Now()
		_ = os.Chtimes(path, now, now) // refresh recency for the LRU sweep
		return path, nil
	}

	ch := c.group.DoChan(sourceID, func() (interface{}, error) {
		return path, c.download(sourceID, sourceURL, path)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Prefetch starts a background fetch so the payload is often local by the
// time the track becomes current.
func (c *Cache) Prefetch(sourceID, sourceURL string) {
	go func() {
		if _, err := c.Fetch(context.Background(), sourceID, sourceURL); err != nil {
			c.log.WithError(err).WithField("source_id", sourceID).Debug("Prefetch failed")
		}
	}()
}

// CancelPrefetch aborts the in-flight download for sourceID, if any. Used
// when a track leaves the queue before becoming current. A flight another
// waiter is still blocked on gets cancelled too; that waiter sees the error
// and falls back to its retry policy.
func (c *Cache) CancelPrefetch(sourceID string) {
	c.mu.Lock()
	cancel, ok := c.flights[sourceID]
	c.mu.Unlock()
	if ok {
		c.log.WithField("source_id", sourceID).Debug("Cancelling prefetch")
		cancel()
	}
}

// Pin marks a source as in use by an active sink read; pinned entries are
// never evicted. Unpin releases it.
func (c *Cache) Pin(sourceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pins[sourceID]++
}

// Unpin releases a Pin.
func (c *Cache) Unpin(sourceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pins[sourceID] > 1 {
		c.pins[sourceID]--
	} else {
		delete(c.pins, sourceID)
	}
}

// download runs inside the singleflight group: one per source id at a time,
// bounded process-wide by the gate. The payload lands under a .part name and
// is renamed into place only when complete, so the sweep never sees a
// half-written entry.
func (c *Cache) download(sourceID, sourceURL, path string) error {
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.flights[sourceID] = cancel
	c.mu.Unlock()
	defer func() {
		cancel()
		c.mu.Lock()
		delete(c.flights, sourceID)
		c.mu.Unlock()
	}()

	if err := c.gate.Acquire(ctx, 1); err != nil {
		return errors.Wrap(err, "download cancelled waiting for slot")
	}
	defer c.gate.Release(1)

	tmp := path + partSuffix
	start := time.Now()
	if err := c.dl.Download(ctx, sourceURL, tmp); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "downloading %s", sourceID)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "placing cache entry")
	}

	c.log.WithFields(logrus.Fields{
		"source_id": sourceID,
		"took":      time.Since(start),
	}).Info("Cached media payload")

	go c.Evict()
	return nil
}

type entry struct {
	sourceID string
	path     string
	size     int64
	modTime  time.Time
}

// Evict removes least-recently-used entries until both enabled ceilings are
// satisfied. In-progress (.part), pinned, and mid-download entries are never
// candidates. Eviction errors are logged and swallowed; the cache self-heals
// and never surfaces an error to playback.
func (c *Cache) Evict() {
	entries, totalBytes, err := c.list()
	if err != nil {
		c.log.WithError(err).Warn("Eviction scan failed")
		return
	}

	// Oldest first.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].modTime.Before(entries[j].modTime)
	})

	count := len(entries)
	for _, e := range entries {
		if !c.overCeiling(totalBytes, count) {
			break
		}
		if c.busy(e.sourceID) {
			continue
		}
		if err := os.Remove(e.path); err != nil {
			c.log.WithError(err).WithField("path", e.path).Warn("Eviction remove failed")
			continue
		}
		totalBytes -= e.size
		count--
		c.log.WithFields(logrus.Fields{
			"source_id": e.sourceID,
			"size":      e.size,
		}).Debug("Evicted cache entry")
	}
}

// Usage reports the current resident byte and file totals.
func (c *Cache) Usage() (bytes int64, files int) {
	entries, total, err := c.list()
	if err != nil {
		return 0, 0
	}
	return total, len(entries)
}

func (c *Cache) overCeiling(bytes int64, files int) bool {
	if c.cfg.MaxBytes > 0 && bytes > c.cfg.MaxBytes {
		return true
	}
	if c.cfg.MaxFiles > 0 && files > c.cfg.MaxFiles {
		return true
	}
	return false
}

func (c *Cache) busy(sourceID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pins[sourceID] > 0 {
		return true
	}
	_, inFlight := c.flights[sourceID]
	return inFlight
}

func (c *Cache) list() ([]entry, int64, error) {
	dirEntries, err := os.ReadDir(c.cfg.Dir)
	if err != nil {
		return nil, 0, err
	}

	var out []entry
	var total int64
	for _, de := range dirEntries {
		if de.IsDir() || strings.HasSuffix(de.Name(), partSuffix) {
			continue
		}
		fi, err := de.Info()
		if err != nil {
			continue
		}
		name := de.Name()
		out = append(out, entry{
			sourceID: strings.TrimSuffix(name, filepath.Ext(name)),
			path:     filepath.Join(c.cfg.Dir, name),
			size:     fi.Size(),
			modTime:  fi.ModTime(),
		})
		total += fi.Size()
	}
	return out, total, nil
}
