package engine

import (
	"context"
	"errors"
)

var (
	// ErrNotLoaded is returned when synthesis is requested before the model
	// finished loading.
	ErrNotLoaded = errors.New("engine model not loaded")
	// ErrBusy is returned when a synthesis request arrives while another is
	// still in flight.
	ErrBusy = errors.New("engine busy with another request")
)

// Request contains parameters to synthesize speech.
type Request struct {
	Text    string
	VoiceID string
	Speed   float64
	Volume  float64
}

// Result is the outcome of one synthesis. VoiceID is the voice the engine
// actually used; callers must take it over their requested voice.
type Result struct {
	Samples    []float32
	SampleRate int
	VoiceID    string
}

// LoadObserver receives fractional model-load progress, optionally with a
// human-readable status.
type LoadObserver func(progress float64, status string)

// ProgressObserver receives fractional synthesis progress.
type ProgressObserver func(progress float64)

// Engine is the contract for a speech synthesis model.
type Engine interface {
	// Load acquires the model. Safe to call more than once; subsequent calls
	// return immediately once the model is resident.
	Load(ctx context.Context, observe LoadObserver) error

	// Synthesize converts text to mono float32 PCM. Returns ErrNotLoaded if
	// called before Load completed.
	Synthesize(ctx context.Context, req Request, observe ProgressObserver) (Result, error)

	// Close releases the model and any subprocess.
	Close() error
}
