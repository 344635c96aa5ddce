package engine

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/sounderlabs/voxd/internal/voices"
)

// mockEngine synthesizes a tone instead of speech so the daemon runs without
// a model binary.
type mockEngine struct {
	sampleRate int
	loadDelay  time.Duration

	mu     sync.Mutex
	loaded bool
}

// NewMockEngine returns an Engine producing deterministic synthetic audio.
func NewMockEngine(sampleRate int) Engine {
	return &mockEngine{sampleRate: sampleRate, loadDelay: 50 * time.Millisecond}
}

func (m *mockEngine) Load(ctx context.Context, observe LoadObserver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded {
		return nil
	}
	steps := []float64{0.25, 0.5, 0.75, 1.0}
	for _, p := range steps {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.loadDelay / time.Duration(len(steps))):
		}
		if observe != nil {
			observe(p, "loading mock model")
		}
	}
	m.loaded = true
	return nil
}

func (m *mockEngine) Synthesize(ctx context.Context, req Request, observe ProgressObserver) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		return Result{}, ErrNotLoaded
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	// Unknown voices fall back to the default, mirroring engine substitution.
	voice := req.VoiceID
	if _, ok := voices.Lookup(voice); !ok {
		voice = "af"
	}

	words := len(strings.Fields(req.Text))
	if words == 0 {
		words = 1
	}
	seconds := 0.3 * float64(words)
	if seconds < 0.5 {
		seconds = 0.5
	}
	total := int(seconds * float64(m.sampleRate))

	samples := make([]float32, total)
	freq := 220.0
	for i := range samples {
		t := float64(i) / float64(m.sampleRate)
		samples[i] = float32(req.Volume * 0.5 * math.Sin(2*math.Pi*freq*t))
	}

	if observe != nil {
		observe(0.5)
		observe(1.0)
	}
	return Result{Samples: samples, SampleRate: m.sampleRate, VoiceID: voice}, nil
}

func (m *mockEngine) Close() error { return nil }
