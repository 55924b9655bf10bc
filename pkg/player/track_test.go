package player

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTrackAssignsIdentity(t *testing.T) {
	a := NewTrack("title", "https://example.com/watch", "vid-a", "query")
	b := NewTrack("title", "https://example.com/watch", "vid-a", "query")

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.WithinDuration(t, time.Now(), a.AddedAt, time.Minute)
}

func TestCloneResetsTransientState(t *testing.T) {
	orig := NewTrack("title", "ref", "vid-a", "query")
	orig.RetryCount = 2
	orig.SkipAnnounce = true
	orig.RequesterID = "user-1"

	clone := orig.Clone()

	assert.NotEqual(t, orig.ID, clone.ID)
	assert.Zero(t, clone.RetryCount)
	assert.False(t, clone.SkipAnnounce)
	// Descriptive fields carry over.
	assert.Equal(t, orig.Title, clone.Title)
	assert.Equal(t, orig.SourceRef, clone.SourceRef)
	assert.Equal(t, orig.SourceID, clone.SourceID)
	assert.Equal(t, orig.RequesterID, clone.RequesterID)
	require.Equal(t, orig.OriginalQuery, clone.OriginalQuery)
}
