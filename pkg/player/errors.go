package player

import (
	"errors"
	"fmt"
)

// ErrorKind classifies playback failures so policy code can decide between
// surfacing, retrying, and leaving recovery to the reconciliation sweep.
type ErrorKind int

const (
	KindResolve ErrorKind = iota
	KindDownload
	KindSink
	KindConnection
)

func (k ErrorKind) String() string {
	switch k {
	case KindResolve:
		return "resolve"
	case KindDownload:
		return "download"
	case KindSink:
		return "sink"
	case KindConnection:
		return "connection"
	default:
		return "unknown"
	}
}

// PlaybackError wraps a failure with its taxonomy kind. Resolve errors are
// surfaced to the user without retry; download and sink errors go through the
// session's retry budget; connection errors are healed by the supervisor.
type PlaybackError struct {
	Kind ErrorKind
	Err  error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *PlaybackError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the session's retry policy applies to this kind.
func (e *PlaybackError) Retryable() bool {
	return e.Kind == KindDownload || e.Kind == KindSink
}

// NewResolveError wraps err as a resolution failure.
func NewResolveError(err error) *PlaybackError {
	return &PlaybackError{Kind: KindResolve, Err: err}
}

// NewDownloadError wraps err as a cache fetch failure.
func NewDownloadError(err error) *PlaybackError {
	return &PlaybackError{Kind: KindDownload, Err: err}
}

// NewSinkError wraps err as a playback engine failure.
func NewSinkError(err error) *PlaybackError {
	return &PlaybackError{Kind: KindSink, Err: err}
}

// NewConnectionError wraps err as a voice join/move failure.
func NewConnectionError(err error) *PlaybackError {
	return &PlaybackError{Kind: KindConnection, Err: err}
}

// KindOf extracts the taxonomy kind from err, defaulting to KindSink for
// unclassified playback failures.
func KindOf(err error) ErrorKind {
	var pe *PlaybackError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindSink
}

// Sentinel errors returned by session operations invoked at a bad time.
var (
	ErrNothingPlaying = errors.New("nothing is playing")
	ErrNoPriorTrack   = errors.New("no prior track to restart")
)
