// Package audio implements the sink capability on ffmpeg and opus: it decodes
// the playable input to PCM, scales it to the sink's live volume, encodes
// 20ms opus frames and pushes them over the guild's voice connection.
package audio

import (
	"context"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"layeh.com/gopus"

	"github.com/latoulicious/Melodine/pkg/player"
)

const (
	sampleRate    = 48000
	channels      = 2
	frameSize     = 960                            // 20ms at 48kHz
	pcmFrameBytes = frameSize * channels * 2       // s16le
	opusBitrate   = 128000
	sendTimeout   = 100 * time.Millisecond
	readTimeout   = 5 * time.Second
	readyTimeout  = 10 * time.Second
)

// ConnProvider hands out the live voice connection for a guild. The discord
// transport implements it.
type ConnProvider interface {
	Conn(guildID string) *discordgo.VoiceConnection
}

// SinkOpener builds ffmpeg sinks on top of a connection provider.
type SinkOpener struct {
	conns ConnProvider
	log   *logrus.Entry
}

// NewSinkOpener creates the opener.
func NewSinkOpener(conns ConnProvider, log *logrus.Entry) *SinkOpener {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SinkOpener{conns: conns, log: log.WithField("component", "audio")}
}

// Open starts an ffmpeg decode for the input and streams it to the guild's
// voice connection. done fires exactly once from the streaming goroutine.
func (o *SinkOpener) Open(guildID string, input player.Input, initialVolume int, done func(err error)) (player.Sink, error) {
	vc := o.conns.Conn(guildID)
	if vc == nil {
		return nil, errors.New("no voice connection for guild")
	}

	encoder, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		return nil, errors.Wrap(err, "creating opus encoder")
	}
	encoder.SetBitrate(opusBitrate)

	ctx, cancel := context.WithCancel(context.Background())

	source := input.Path
	args := []string{}
	if source == "" {
		source = input.URL
		// Remote streams get ffmpeg's own transport-level reconnects.
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
		)
	}
	args = append(args,
		"-i", source,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", "48000",
		"-ac", "2",
		"-bufsize", "64k",
		"-",
	)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	s := &sink{
		vc:      vc,
		cmd:     cmd,
		encoder: encoder,
		ctx:     ctx,
		cancel:  cancel,
		done:    done,
		log:     o.log.WithField("guild_id", guildID),
	}
	s.volume.Store(int32(initialVolume))

	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "creating stderr pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "creating stdout pipe")
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, errors.Wrap(err, "starting ffmpeg")
	}

	go consumeStderr(stderr)
	s.playing.Store(true)
	go s.stream(stdout)

	return s, nil
}

// sink is one live playback attempt.
type sink struct {
	vc      *discordgo.VoiceConnection
	cmd     *exec.Cmd
	encoder *gopus.Encoder
	ctx     context.Context
	cancel  context.CancelFunc
	log     *logrus.Entry

	volume  atomic.Int32 // percent
	paused  atomic.Bool
	playing atomic.Bool

	doneOnce sync.Once
	done     func(err error)
}

// SetVolume changes the live volume; the fade ramp drives this every step.
func (s *sink) SetVolume(percent int) {
	if percent < 0 {
		percent = 0
	}
	s.volume.Store(int32(percent))
}

func (s *sink) Pause()  { s.paused.Store(true) }
func (s *sink) Resume() { s.paused.Store(false) }

// Stop tears the attempt down. The streaming goroutine observes the
// cancellation and fires the completion callback with no error.
func (s *sink) Stop() {
	s.cancel()
}

// Playing reports whether frames are still being produced.
func (s *sink) Playing() bool {
	return s.playing.Load()
}

func (s *sink) stream(pcm io.Reader) {
	defer func() {
		s.playing.Store(false)
		s.cancel()
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		_ = s.cmd.Wait()
	}()

	if err := s.waitVoiceReady(); err != nil {
		s.finish(err)
		return
	}

	_ = s.vc.Speaking(true)
	defer func() { _ = s.vc.Speaking(false) }()

	buf := make([]byte, pcmFrameBytes)
	for {
		select {
		case <-s.ctx.Done():
			s.finish(nil)
			return
		default:
		}

		if s.paused.Load() {
			time.Sleep(20 * time.Millisecond)
			continue
		}

		n, err := s.readFrame(pcm, buf)
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				s.finish(nil)
			} else {
				s.finish(errors.Wrap(err, "reading pcm"))
			}
			return
		}
		if n == 0 {
			continue
		}

		samples := bytesToSamples(buf[:n])
		if len(samples) != frameSize*channels {
			padded := make([]int16, frameSize*channels)
			copy(padded, samples)
			samples = padded
		}
		scaleVolume(samples, int(s.volume.Load()))

		opusData, err := s.encoder.Encode(samples, frameSize, pcmFrameBytes)
		if err != nil {
			s.log.WithError(err).Warn("Opus encode failed, dropping frame")
			continue
		}

		select {
		case s.vc.OpusSend <- opusData:
		case <-s.ctx.Done():
			s.finish(nil)
			return
		case <-time.After(sendTimeout):
			s.log.Warn("OpusSend blocked, skipping frame")
		}
	}
}

// readFrame reads one full PCM frame, bounded so a wedged ffmpeg cannot hang
// the attempt forever.
func (s *sink) readFrame(r io.Reader, buf []byte) (int, error) {
	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := io.ReadFull(r, buf)
		ch <- result{n, err}
	}()

	select {
	case res := <-ch:
		return res.n, res.err
	case <-s.ctx.Done():
		return 0, io.EOF
	case <-time.After(readTimeout):
		return 0, errors.New("timeout reading pcm data")
	}
}

func (s *sink) waitVoiceReady() error {
	timeout := time.After(readyTimeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return nil
		case <-timeout:
			return errors.New("timeout waiting for voice connection")
		case <-ticker.C:
			if s.vc.Ready {
				return nil
			}
		}
	}
}

func (s *sink) finish(err error) {
	s.playing.Store(false)
	s.doneOnce.Do(func() {
		if s.done != nil {
			s.done(err)
		}
	})
}

func consumeStderr(stderr io.ReadCloser) {
	defer stderr.Close()
	buf := make([]byte, 1024)
	for {
		if _, err := stderr.Read(buf); err != nil {
			return
		}
	}
}

func bytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}

// scaleVolume applies a percent gain in place with clipping.
func scaleVolume(samples []int16, percent int) {
	if percent == 100 {
		return
	}
	for i, s := range samples {
		v := int32(s) * int32(percent) / 100
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		samples[i] = int16(v)
	}
}
