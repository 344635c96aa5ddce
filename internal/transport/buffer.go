package transport

import "errors"

// ErrDecode is returned for PCM that cannot become a playable buffer.
var ErrDecode = errors.New("transport: undecodable pcm buffer")

// Buffer is a decoded, playable clip. Immutable once created; sessions share
// it read-only across seeks.
type Buffer struct {
	samples    []float32
	sampleRate int
}

// Load validates raw mono PCM and wraps it as a playable buffer.
func Load(samples []float32, sampleRate int) (*Buffer, error) {
	if len(samples) == 0 {
		return nil, ErrDecode
	}
	if sampleRate <= 0 {
		return nil, ErrDecode
	}
	return &Buffer{samples: samples, sampleRate: sampleRate}, nil
}

// Duration reports the clip length in seconds at 1.0x speed.
func (b *Buffer) Duration() float64 {
	return float64(len(b.samples)) / float64(b.sampleRate)
}

func (b *Buffer) SampleRate() int { return b.sampleRate }

// Samples exposes the backing PCM. Callers must not mutate it.
func (b *Buffer) Samples() []float32 { return b.samples }
