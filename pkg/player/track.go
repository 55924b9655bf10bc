package player

import (
	"time"

	"github.com/google/uuid"
)

// Track describes one playable item. A track is owned by exactly one
// container at a time: the queue, the current slot, or the last slot.
// Everything except RetryCount and SkipAnnounce is fixed at resolve time.
type Track struct {
	// ID correlates log lines across attempts for the same track.
	ID string

	Title         string
	SourceRef     string // remote locator (watch URL or direct stream URL)
	SourceID      string // cache key; empty means the payload is not cacheable
	OriginalQuery string

	RequesterID    string
	ReplyChannelID string
	Duration       time.Duration
	AddedAt        time.Time

	// RetryCount is the number of failed playback attempts so far. Bumped by
	// the session's retry path, never reset on the same track instance.
	RetryCount int

	// SkipAnnounce suppresses the next now-playing announcement. Set when a
	// track is head-inserted by retry, restart, or reconnect recovery, and
	// cleared again once the suppressed announcement slot has passed.
	SkipAnnounce bool
}

// NewTrack creates a track descriptor with a fresh ID.
func NewTrack(title, sourceRef, sourceID, originalQuery string) *Track {
	return &Track{
		ID:            uuid.NewString(),
		Title:         title,
		SourceRef:     sourceRef,
		SourceID:      sourceID,
		OriginalQuery: originalQuery,
		AddedAt:       time.Now(),
	}
}

// Clone returns a fresh copy for replay: new ID, transient flags and the
// retry budget cleared.
func (t *Track) Clone() *Track {
	c := *t
	c.ID = uuid.NewString()
	c.RetryCount = 0
	c.SkipAnnounce = false
	c.AddedAt = time.Now()
	return &c
}
