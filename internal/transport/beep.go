package transport

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/speaker"
)

// SpeakerSink renders sessions through the system audio device via beep.
// One emission exists at a time; starting a new one clears the device queue.
type SpeakerSink struct {
	deviceBuffer time.Duration
	log          *slog.Logger

	mu   sync.Mutex
	rate beep.SampleRate // 0 until the device is initialized
}

func NewSpeakerSink(deviceBuffer time.Duration, log *slog.Logger) *SpeakerSink {
	return &SpeakerSink{
		deviceBuffer: deviceBuffer,
		log:          log.With(slog.String("component", "speaker-sink")),
	}
}

func (k *SpeakerSink) Start(buf *Buffer, offsetSeconds, speed, volume float64, onEnd func()) (Emission, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	sr := beep.SampleRate(buf.SampleRate())
	if k.rate != sr {
		if err := speaker.Init(sr, sr.N(k.deviceBuffer)); err != nil {
			return nil, fmt.Errorf("init speaker at %d Hz: %w", buf.SampleRate(), err)
		}
		k.rate = sr
	} else {
		speaker.Clear()
	}

	src := newBufferStreamer(buf, offsetSeconds)
	vol := &effects.Volume{
		Streamer: src,
		Base:     2,
		Volume:   gainExponent(volume),
		Silent:   volume == 0,
	}
	res := beep.ResampleRatio(4, speed, vol)
	// The render loop holds the speaker mutex while the callback runs, so
	// onEnd must leave the render goroutine before it can touch the device.
	speaker.Play(beep.Seq(res, beep.Callback(func() { go onEnd() })))

	return &speakerEmission{vol: vol, res: res}, nil
}

func (k *SpeakerSink) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.rate != 0 {
		speaker.Clear()
	}
	return nil
}

type speakerEmission struct {
	vol  *effects.Volume
	res  *beep.Resampler
	once sync.Once
}

func (e *speakerEmission) SetVolume(v float64) {
	speaker.Lock()
	e.vol.Volume = gainExponent(v)
	e.vol.Silent = v == 0
	speaker.Unlock()
}

func (e *speakerEmission) SetRate(ratio float64) {
	speaker.Lock()
	e.res.SetRatio(ratio)
	speaker.Unlock()
}

func (e *speakerEmission) Stop() {
	e.once.Do(speaker.Clear)
}

// gainExponent maps linear volume to the base-2 exponent effects.Volume
// expects. 1.0 is unity gain.
func gainExponent(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Log2(v)
}

// bufferStreamer streams a mono clip from a sample offset as stereo frames.
type bufferStreamer struct {
	buf *Buffer
	pos int
}

func newBufferStreamer(buf *Buffer, offsetSeconds float64) *bufferStreamer {
	pos := int(offsetSeconds * float64(buf.SampleRate()))
	if pos > len(buf.Samples()) {
		pos = len(buf.Samples())
	}
	if pos < 0 {
		pos = 0
	}
	return &bufferStreamer{buf: buf, pos: pos}
}

func (s *bufferStreamer) Stream(samples [][2]float64) (int, bool) {
	src := s.buf.Samples()
	if s.pos >= len(src) {
		return 0, false
	}
	for i := range samples {
		if s.pos >= len(src) {
			return i, true
		}
		v := float64(src[s.pos])
		samples[i][0] = v
		samples[i][1] = v
		s.pos++
	}
	return len(samples), true
}

func (s *bufferStreamer) Err() error { return nil }
