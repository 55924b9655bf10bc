package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBytesToSamples(t *testing.T) {
	data := []byte{0x00, 0x00, 0xFF, 0x7F, 0x00, 0x80}
	samples := bytesToSamples(data)

	assert.Equal(t, []int16{0, 32767, -32768}, samples)
}

func TestScaleVolume(t *testing.T) {
	tests := []struct {
		name    string
		in      []int16
		percent int
		want    []int16
	}{
		{"unity is untouched", []int16{100, -100}, 100, []int16{100, -100}},
		{"half", []int16{100, -100}, 50, []int16{50, -50}},
		{"muted", []int16{100, -100}, 0, []int16{0, 0}},
		{"boost clips positive", []int16{32767}, 200, []int16{32767}},
		{"boost clips negative", []int16{-32768}, 200, []int16{-32768}},
		{"boost within range", []int16{1000}, 150, []int16{1500}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			samples := make([]int16, len(tt.in))
			copy(samples, tt.in)
			scaleVolume(samples, tt.percent)
			assert.Equal(t, tt.want, samples)
		})
	}
}
