package player

import (
	"sync"
	"time"
)

// fadeRamp steps a sink's volume from zero to target over a fixed window so a
// track start does not pop, especially on reconnect-triggered replays.
type fadeRamp struct {
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// startFade begins the ramp in the background. With a non-positive duration
// or fewer than two steps the sink jumps straight to target and no ramp runs.
func startFade(sink Sink, target int, duration time.Duration, steps int) *fadeRamp {
	if duration <= 0 || steps < 2 {
		sink.SetVolume(target)
		return nil
	}

	f := &fadeRamp{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(f.done)

		ticker := time.NewTicker(duration / time.Duration(steps))
		defer ticker.Stop()

		for i := 1; i <= steps; i++ {
			select {
			case <-f.stop:
				// A cancelled ramp must not leave the sink stuck quiet.
				sink.SetVolume(target)
				return
			case <-ticker.C:
				sink.SetVolume(target * i / steps)
			}
		}
	}()

	return f
}

// cancel stops the ramp and waits for it to settle the sink at its target.
// Safe to call multiple times and on a nil ramp.
func (f *fadeRamp) cancel() {
	if f == nil {
		return
	}
	f.stopOnce.Do(func() { close(f.stop) })
	<-f.done
}
