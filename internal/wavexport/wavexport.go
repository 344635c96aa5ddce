// Package wavexport encodes generated clips as standard 16-bit PCM WAV
// files for download.
package wavexport

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Encode writes samples as a mono 16-bit WAV stream.
func Encode(w io.WriteSeeker, samples []float32, sampleRate int) error {
	if len(samples) == 0 {
		return errors.New("wavexport: no samples")
	}
	if sampleRate <= 0 {
		return fmt.Errorf("wavexport: invalid sample rate %d", sampleRate)
	}

	enc := wav.NewEncoder(w, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(samples)),
	}
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		buf.Data[i] = int(s * 32767)
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("wavexport: write: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("wavexport: finalize: %w", err)
	}
	return nil
}

// EncodeBytes renders the WAV container in memory, for handlers that cannot
// seek their output.
func EncodeBytes(samples []float32, sampleRate int) ([]byte, error) {
	var seeker memSeeker
	if err := Encode(&seeker, samples, sampleRate); err != nil {
		return nil, err
	}
	return seeker.buf, nil
}

// memSeeker is a minimal in-memory io.WriteSeeker; the wav encoder seeks
// back to patch chunk sizes.
type memSeeker struct {
	buf []byte
	pos int
}

func (m *memSeeker) Write(p []byte) (int, error) {
	if need := m.pos + len(p); need > len(m.buf) {
		grown := make([]byte, need)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:], p)
	m.pos += len(p)
	return len(p), nil
}

func (m *memSeeker) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(m.pos) + offset
	case io.SeekEnd:
		next = int64(len(m.buf)) + offset
	default:
		return 0, fmt.Errorf("wavexport: bad whence %d", whence)
	}
	if next < 0 {
		return 0, errors.New("wavexport: negative seek")
	}
	m.pos = int(next)
	return next, nil
}
