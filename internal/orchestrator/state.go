package orchestrator

import (
	"errors"
	"fmt"
	"time"
)

// Phase is the top-level orchestration state, distinct from the playback
// sub-state.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseReady        Phase = "ready"
	PhaseGenerating   Phase = "generating"
	PhaseError        Phase = "error"
)

var (
	// ErrEmptyText rejects generation of blank input.
	ErrEmptyText = errors.New("text is empty")
	// ErrModelLoading rejects generation before the model finished loading.
	ErrModelLoading = errors.New("model is still loading")
	// ErrGenerationInFlight rejects a second generate while one is outstanding.
	ErrGenerationInFlight = errors.New("a generation is already in flight")
	// ErrUnknownVoice rejects selection of a voice not in the table.
	ErrUnknownVoice = errors.New("unknown voice")
	// ErrNoSuchRecord is returned for playback or delete of a missing id.
	ErrNoSuchRecord = errors.New("no such record")
	// ErrSpeedOutOfRange rejects speeds outside [0.5, 2.0].
	ErrSpeedOutOfRange = errors.New("speed out of range")
	// ErrVolumeOutOfRange rejects volumes outside [0, 2.0].
	ErrVolumeOutOfRange = errors.New("volume out of range")
)

// HistoryEntry is the UI-facing view of a record; samples stay out of
// snapshots.
type HistoryEntry struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	VoiceID   string    `json:"voice_id"`
	VoiceName string    `json:"voice_name"`
	Duration  float64   `json:"duration_seconds"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is one immutable view of orchestration state, broadcast to
// subscribers on every change.
type Snapshot struct {
	Phase              Phase          `json:"phase"`
	LoadProgress       float64        `json:"load_progress"`
	LoadStatus         string         `json:"load_status,omitempty"`
	GenerationProgress float64        `json:"generation_progress"`
	Error              string         `json:"error,omitempty"`
	SelectedVoiceID    string         `json:"selected_voice_id"`
	Speed              float64        `json:"speed"`
	Volume             float64        `json:"volume"`
	CurrentlyPlayingID string         `json:"currently_playing_id,omitempty"`
	IsPlaying          bool           `json:"is_playing"`
	PlaybackProgress   float64        `json:"playback_progress"`
	CurrentTime        string         `json:"current_time"`
	Duration           string         `json:"duration"`
	History            []HistoryEntry `json:"history"`
}

// formatClock renders seconds as M:SS, matching the player display.
func formatClock(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
