package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/sounderlabs/voxd/internal/engine"
	"github.com/sounderlabs/voxd/internal/history"
	"github.com/sounderlabs/voxd/internal/protocol"
	"github.com/sounderlabs/voxd/internal/transport"
	"github.com/sounderlabs/voxd/internal/voices"
)

// Store is the history persistence contract the orchestrator needs. A nil
// Store degrades to memory-only operation.
type Store interface {
	LoadAll(ctx context.Context) ([]history.Record, error)
	ReplaceAll(ctx context.Context, records []history.Record) error
	Remove(ctx context.Context, id string) error
}

// Options seeds the user-adjustable parameters.
type Options struct {
	DefaultVoice    string
	Speed           float64
	Volume          float64
	GenerateTimeout time.Duration
}

// Orchestrator is the single source of truth combining model-loading,
// generation and playback state. It consumes worker and transport events
// and emits UI-facing snapshots.
type Orchestrator struct {
	worker    engine.Worker
	transport *transport.Transport
	store     Store
	logger    *slog.Logger
	opts      Options

	clock func() time.Time
	newID func() string

	genCompleted metric.Int64Counter
	genFailed    metric.Int64Counter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu            sync.Mutex
	phase         Phase
	loadProgress  float64
	loadStatus    string
	genProgress   float64
	errMsg        string
	selectedVoice string
	speed         float64
	volume        float64
	records       []history.Record
	playingID     string
	pendingReq    string
	pendingText   string
	watchdog      *time.Timer
	subscribers   map[chan Snapshot]struct{}
}

func New(worker engine.Worker, tr *transport.Transport, store Store, opts Options, log *slog.Logger) *Orchestrator {
	meter := otel.Meter("voxd/orchestrator")
	genCompleted, _ := meter.Int64Counter("voxd.generations.completed")
	genFailed, _ := meter.Int64Counter("voxd.generations.failed")
	return &Orchestrator{
		genCompleted:  genCompleted,
		genFailed:     genFailed,
		worker:        worker,
		transport:     tr,
		store:         store,
		logger:        log.With(slog.String("component", "orchestrator")),
		opts:          opts,
		clock:         time.Now,
		newID:         uuid.NewString,
		phase:         PhaseInitializing,
		selectedVoice: opts.DefaultVoice,
		speed:         opts.Speed,
		volume:        opts.Volume,
		subscribers:   make(map[chan Snapshot]struct{}),
	}
}

// Start loads history, kicks off model acquisition and begins consuming
// worker events. A history load failure degrades to an empty history; it
// never blocks startup.
func (o *Orchestrator) Start(parent context.Context) error {
	o.ctx, o.cancel = context.WithCancel(parent)

	if o.store != nil {
		records, err := o.store.LoadAll(o.ctx)
		if err != nil {
			o.logger.Warn("history load failed, starting empty", slogError(err))
		} else {
			o.mu.Lock()
			o.records = records
			o.mu.Unlock()
		}
	}

	o.transport.SetEndedFunc(o.playbackEnded)

	if err := o.worker.Init(); err != nil {
		return err
	}

	o.wg.Add(2)
	go o.eventLoop()
	go o.progressLoop()
	return nil
}

func (o *Orchestrator) Close() {
	if o.cancel != nil {
		o.cancel()
	}
	o.mu.Lock()
	if o.watchdog != nil {
		o.watchdog.Stop()
	}
	o.mu.Unlock()
	o.wg.Wait()
	o.transport.Stop()
}

// Subscribe registers a snapshot feed. Slow consumers miss intermediate
// snapshots rather than blocking the orchestrator.
func (o *Orchestrator) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 16)
	o.mu.Lock()
	o.subscribers[ch] = struct{}{}
	ch <- o.snapshotLocked()
	o.mu.Unlock()

	cancel := func() {
		o.mu.Lock()
		delete(o.subscribers, ch)
		o.mu.Unlock()
	}
	return ch, cancel
}

// Snapshot returns the current state view.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Generate submits one synthesis request. Refused while the model is
// loading or another generation is outstanding; a fresh attempt clears a
// prior error.
func (o *Orchestrator) Generate(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}

	o.mu.Lock()
	switch o.phase {
	case PhaseInitializing:
		o.mu.Unlock()
		return ErrModelLoading
	case PhaseGenerating:
		o.mu.Unlock()
		return ErrGenerationInFlight
	}

	reqID := o.newID()
	req := protocol.GenerateRequest{
		RequestID: reqID,
		Text:      text,
		VoiceID:   o.selectedVoice,
		Speed:     o.speed,
		Volume:    o.volume,
	}
	o.phase = PhaseGenerating
	o.genProgress = 0
	o.errMsg = ""
	o.pendingReq = reqID
	o.pendingText = text
	o.armWatchdogLocked(reqID)
	o.broadcastLocked()
	o.mu.Unlock()

	if err := o.worker.Generate(req); err != nil {
		o.mu.Lock()
		o.phase = PhaseError
		o.errMsg = "failed to reach generation worker: " + err.Error()
		o.pendingReq = ""
		o.broadcastLocked()
		o.mu.Unlock()
		return err
	}
	return nil
}

// Play starts playback of a history record. Playing the record that is
// currently paused resumes it; anything else starts a fresh session, fully
// stopping whatever was playing first.
func (o *Orchestrator) Play(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, ok := o.findLocked(id)
	if !ok {
		return ErrNoSuchRecord
	}

	if o.playingID == id && !o.transport.Playing() {
		if err := o.transport.Resume(); err == nil {
			o.broadcastLocked()
			return nil
		}
	}

	buf, err := transport.Load(rec.Samples, rec.SampleRate)
	if err != nil {
		o.errMsg = "cannot decode stored audio: " + err.Error()
		o.broadcastLocked()
		return err
	}
	if err := o.transport.Play(buf, 0, o.speed, o.volume); err != nil {
		o.errMsg = "playback failed: " + err.Error()
		o.playingID = ""
		o.broadcastLocked()
		return err
	}
	o.playingID = id
	o.errMsg = ""
	o.broadcastLocked()
	return nil
}

// Pause halts the active session, keeping its position for resume.
func (o *Orchestrator) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, err := o.transport.Pause(); err != nil {
		return err
	}
	o.broadcastLocked()
	return nil
}

// Seek repositions the active session. A paused session stays paused.
func (o *Orchestrator) Seek(fraction float64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.transport.Seek(fraction); err != nil {
		return err
	}
	o.broadcastLocked()
	return nil
}

// Delete removes a record from memory and store. Deleting the record that
// is playing stops playback first.
func (o *Orchestrator) Delete(id string) error {
	o.mu.Lock()

	idx := -1
	for i := range o.records {
		if o.records[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		o.mu.Unlock()
		return ErrNoSuchRecord
	}

	if o.playingID == id {
		o.transport.Stop()
		o.playingID = ""
	}
	o.records = append(o.records[:idx], o.records[idx+1:]...)
	o.broadcastLocked()
	o.mu.Unlock()

	if o.store != nil {
		if err := o.store.Remove(o.ctx, id); err != nil {
			o.logger.Warn("history delete failed, memory remains authoritative", slogError(err))
		}
	}
	return nil
}

// Record returns a stored generation by id, for export.
func (o *Orchestrator) Record(id string) (history.Record, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.findLocked(id)
}

// SelectVoice sets the voice used by subsequent generations.
func (o *Orchestrator) SelectVoice(id string) error {
	if _, ok := voices.Lookup(id); !ok {
		return ErrUnknownVoice
	}
	o.mu.Lock()
	o.selectedVoice = id
	o.broadcastLocked()
	o.mu.Unlock()
	return nil
}

// SetSpeed updates the playback/generation speed. Applies live to an
// active session via a clock re-anchor.
func (o *Orchestrator) SetSpeed(v float64) error {
	if v < 0.5 || v > 2.0 {
		return ErrSpeedOutOfRange
	}
	o.mu.Lock()
	o.speed = v
	o.transport.SetSpeed(v)
	o.broadcastLocked()
	o.mu.Unlock()
	return nil
}

// SetVolume updates the volume, applied live to the active gain stage.
func (o *Orchestrator) SetVolume(v float64) error {
	if v < 0 || v > 2.0 {
		return ErrVolumeOutOfRange
	}
	o.mu.Lock()
	o.volume = v
	o.transport.SetVolume(v)
	o.broadcastLocked()
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) eventLoop() {
	defer o.wg.Done()
	for {
		select {
		case <-o.ctx.Done():
			return
		case evt, ok := <-o.worker.Events():
			if !ok {
				return
			}
			o.handleWorkerEvent(evt)
		}
	}
}

// progressLoop broadcasts playback position at roughly display-refresh
// cadence while sound is emitting. Each tick recomputes position from the
// transport's clock anchor; missed ticks cannot skew it.
func (o *Orchestrator) progressLoop() {
	defer o.wg.Done()
	ticker := time.NewTicker(16 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			if !o.transport.Playing() {
				continue
			}
			o.mu.Lock()
			o.broadcastLocked()
			o.mu.Unlock()
		}
	}
}

func (o *Orchestrator) handleWorkerEvent(evt engine.Event) {
	switch evt.Kind {
	case engine.EventLoadProgress:
		o.mu.Lock()
		if evt.Progress > o.loadProgress {
			o.loadProgress = evt.Progress
		}
		if evt.Status != "" {
			o.loadStatus = evt.Status
		}
		o.broadcastLocked()
		o.mu.Unlock()

	case engine.EventModelLoaded:
		o.mu.Lock()
		o.loadProgress = 1
		o.loadStatus = ""
		if o.phase == PhaseInitializing {
			o.phase = PhaseReady
		}
		o.broadcastLocked()
		o.mu.Unlock()

	case engine.EventGenerateProgress:
		o.mu.Lock()
		if o.phase == PhaseGenerating && evt.RequestID == o.pendingReq && evt.Progress > o.genProgress {
			o.genProgress = evt.Progress
			o.broadcastLocked()
		}
		o.mu.Unlock()

	case engine.EventComplete:
		o.handleComplete(evt)

	case engine.EventError:
		o.handleError(evt)
	}
}

func (o *Orchestrator) handleComplete(evt engine.Event) {
	o.mu.Lock()
	if o.phase != PhaseGenerating || evt.RequestID != o.pendingReq {
		o.mu.Unlock()
		return
	}
	o.disarmWatchdogLocked()
	o.pendingReq = ""

	samples, err := protocol.DecodePCM(evt.PCM)
	if err != nil || len(samples) == 0 || evt.SampleRate <= 0 {
		o.phase = PhaseReady
		o.errMsg = "generation produced undecodable audio"
		o.genFailed.Add(context.Background(), 1)
		o.broadcastLocked()
		o.mu.Unlock()
		return
	}

	rec := history.Record{
		ID:         o.newID(),
		Text:       o.pendingText,
		VoiceID:    evt.VoiceID, // the voice the engine actually used
		SampleRate: evt.SampleRate,
		Samples:    samples,
		CreatedAt:  o.clock().UTC(),
	}
	o.records = append([]history.Record{rec}, o.records...)
	o.phase = PhaseReady
	o.genProgress = 1
	o.pendingText = ""
	o.genCompleted.Add(context.Background(), 1)

	// New clips start playing immediately.
	if buf, err := transport.Load(rec.Samples, rec.SampleRate); err == nil {
		if err := o.transport.Play(buf, 0, o.speed, o.volume); err != nil {
			o.errMsg = "playback failed: " + err.Error()
		} else {
			o.playingID = rec.ID
		}
	}
	o.broadcastLocked()
	snapshotRecords := make([]history.Record, len(o.records))
	copy(snapshotRecords, o.records)
	o.mu.Unlock()

	if o.store != nil {
		if err := o.store.ReplaceAll(o.ctx, snapshotRecords); err != nil {
			o.logger.Warn("history persist failed, memory remains authoritative", slogError(err))
		}
	}
}

func (o *Orchestrator) handleError(evt engine.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.phase {
	case PhaseGenerating:
		if evt.RequestID != "" && evt.RequestID != o.pendingReq {
			return
		}
		o.disarmWatchdogLocked()
		o.pendingReq = ""
		o.pendingText = ""
		o.phase = PhaseReady
		o.errMsg = evt.Message
		o.genFailed.Add(context.Background(), 1)
	case PhaseInitializing:
		o.phase = PhaseError
		o.errMsg = evt.Message
	default:
		o.errMsg = evt.Message
	}
	o.broadcastLocked()
}

// playbackEnded handles natural completion of a session.
func (o *Orchestrator) playbackEnded() {
	o.mu.Lock()
	o.playingID = ""
	o.broadcastLocked()
	o.mu.Unlock()
}

// armWatchdogLocked guards against a worker that dies without a terminal
// event; phase must never hang in generating forever.
func (o *Orchestrator) armWatchdogLocked(reqID string) {
	o.disarmWatchdogLocked()
	timeout := o.opts.GenerateTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	o.watchdog = time.AfterFunc(timeout, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.phase != PhaseGenerating || o.pendingReq != reqID {
			return
		}
		o.phase = PhaseError
		o.errMsg = "generation timed out"
		o.pendingReq = ""
		o.pendingText = ""
		o.genFailed.Add(context.Background(), 1)
		o.broadcastLocked()
	})
}

func (o *Orchestrator) disarmWatchdogLocked() {
	if o.watchdog != nil {
		o.watchdog.Stop()
		o.watchdog = nil
	}
}

func (o *Orchestrator) findLocked(id string) (history.Record, bool) {
	for i := range o.records {
		if o.records[i].ID == id {
			return o.records[i], true
		}
	}
	return history.Record{}, false
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	entries := make([]HistoryEntry, len(o.records))
	for i, r := range o.records {
		entries[i] = HistoryEntry{
			ID:        r.ID,
			Text:      r.Text,
			VoiceID:   r.VoiceID,
			VoiceName: voices.DisplayName(r.VoiceID),
			Duration:  r.Duration(),
			CreatedAt: r.CreatedAt,
		}
	}

	snap := Snapshot{
		Phase:              o.phase,
		LoadProgress:       o.loadProgress,
		LoadStatus:         o.loadStatus,
		GenerationProgress: o.genProgress,
		Error:              o.errMsg,
		SelectedVoiceID:    o.selectedVoice,
		Speed:              o.speed,
		Volume:             o.volume,
		CurrentlyPlayingID: o.playingID,
		IsPlaying:          o.transport.Playing(),
		CurrentTime:        formatClock(0),
		Duration:           formatClock(0),
		History:            entries,
	}
	if fraction, position, duration, ok := o.transport.Progress(); ok {
		snap.PlaybackProgress = fraction
		snap.CurrentTime = formatClock(position)
		snap.Duration = formatClock(duration)
	}
	return snap
}

// broadcastLocked fans the current snapshot out without blocking on slow
// subscribers.
func (o *Orchestrator) broadcastLocked() {
	snap := o.snapshotLocked()
	for ch := range o.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
