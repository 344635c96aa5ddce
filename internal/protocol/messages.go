package protocol

import "time"

// Subjects for the generation worker boundary. The orchestrator publishes
// on the request subjects and subscribes to the rest; the engine service is
// the only other party on these subjects.
const (
	SubjectInit             = "tts.init"
	SubjectLoadProgress     = "tts.load.progress"
	SubjectModelLoaded      = "tts.model.loaded"
	SubjectGenerate         = "tts.generate"
	SubjectGenerateProgress = "tts.generate.progress"
	SubjectComplete         = "tts.complete"
	SubjectError            = "tts.error"
)

// InitRequest asks the engine to acquire its model. Idempotent: the engine
// collapses repeated inits into a single load.
type InitRequest struct {
	Timestamp time.Time `json:"timestamp"`
}

// LoadProgress reports fractional model acquisition progress. May arrive
// zero or more times before ModelLoaded.
type LoadProgress struct {
	Progress float64 `json:"progress"`
	Status   string  `json:"status,omitempty"`
}

// ModelLoaded is sent exactly once per engine lifetime, after the first
// successful init.
type ModelLoaded struct {
	SampleRate int       `json:"sample_rate"`
	Timestamp  time.Time `json:"timestamp"`
}

// GenerateRequest carries one synthesis request. At most one is in flight
// at a time; the orchestrator enforces that, the request id is for tracing.
type GenerateRequest struct {
	RequestID string  `json:"request_id"`
	Text      string  `json:"text"`
	VoiceID   string  `json:"voice_id"`
	Speed     float64 `json:"speed"`
	Volume    float64 `json:"volume"`
}

// GenerateProgress reports fractional synthesis progress for the request
// currently in flight.
type GenerateProgress struct {
	RequestID string  `json:"request_id"`
	Progress  float64 `json:"progress"`
}

// Complete terminates a generation with the synthesized audio. VoiceID is
// the voice the engine actually used, which may differ from the requested
// one; consumers must trust this value over their own request.
type Complete struct {
	RequestID  string `json:"request_id"`
	VoiceID    string `json:"voice_id"`
	SampleRate int    `json:"sample_rate"`
	PCM        []byte `json:"pcm"`
}

// GenerateError terminates a generation with a failure. Also published when
// the engine subprocess dies so the client never hangs in a generating state.
type GenerateError struct {
	RequestID string `json:"request_id,omitempty"`
	Message   string `json:"message"`
}
