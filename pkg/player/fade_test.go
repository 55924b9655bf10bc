package player

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type volumeRecorder struct {
	mu     sync.Mutex
	levels []int
}

func (r *volumeRecorder) SetVolume(percent int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels = append(r.levels, percent)
}

func (r *volumeRecorder) Pause()        {}
func (r *volumeRecorder) Resume()       {}
func (r *volumeRecorder) Stop()         {}
func (r *volumeRecorder) Playing() bool { return true }

func (r *volumeRecorder) snapshot() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.levels))
	copy(out, r.levels)
	return out
}

func TestStartFadeDisabledJumpsToTarget(t *testing.T) {
	rec := &volumeRecorder{}

	assert.Nil(t, startFade(rec, 80, 0, 10))
	assert.Equal(t, []int{80}, rec.snapshot())

	rec = &volumeRecorder{}
	assert.Nil(t, startFade(rec, 80, time.Second, 1))
	assert.Equal(t, []int{80}, rec.snapshot())
}

func TestFadeRampReachesTargetMonotonically(t *testing.T) {
	rec := &volumeRecorder{}
	f := startFade(rec, 100, 50*time.Millisecond, 5)
	require.NotNil(t, f)

	require.Eventually(t, func() bool {
		levels := rec.snapshot()
		return len(levels) > 0 && levels[len(levels)-1] == 100
	}, time.Second, 5*time.Millisecond)

	levels := rec.snapshot()
	for i := 1; i < len(levels); i++ {
		assert.GreaterOrEqual(t, levels[i], levels[i-1])
	}
}

func TestCancelSettlesAtTarget(t *testing.T) {
	rec := &volumeRecorder{}
	f := startFade(rec, 100, 10*time.Second, 100)
	require.NotNil(t, f)

	f.cancel()

	levels := rec.snapshot()
	require.NotEmpty(t, levels)
	assert.Equal(t, 100, levels[len(levels)-1])

	// Repeated and nil cancels are harmless.
	f.cancel()
	var nilRamp *fadeRamp
	nilRamp.cancel()
}
