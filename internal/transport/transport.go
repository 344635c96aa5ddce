package transport

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrNoSession is returned for pause/seek with nothing loaded into the
// transport.
var ErrNoSession = errors.New("transport: no active session")

// session is the ephemeral state of one playback run. A new session is
// created on every play, seek and resume; position truth is the clock
// anchor paired with the offset at that anchor, so position can be
// recomputed at any instant without a running counter.
type session struct {
	buf      *Buffer
	emission Emission
	anchor   time.Time
	offset   float64
	speed    float64
	volume   float64
	playing  bool
	ended    bool
}

// Transport owns at most one playable buffer at a time and maps it to
// seekable, pausable playback.
type Transport struct {
	sink  Sink
	log   *slog.Logger
	clock func() time.Time

	mu      sync.Mutex
	sess    *session
	onEnded func()
}

func New(sink Sink, log *slog.Logger) *Transport {
	return &Transport{
		sink:  sink,
		log:   log.With(slog.String("component", "transport")),
		clock: time.Now,
	}
}

// SetEndedFunc registers the callback fired exactly once when a session
// drains naturally. It is not fired for manual stops.
func (t *Transport) SetEndedFunc(f func()) {
	t.mu.Lock()
	t.onEnded = f
	t.mu.Unlock()
}

// Play starts a new session for buf from offsetSeconds. Any prior session is
// fully stopped first.
func (t *Transport) Play(buf *Buffer, offsetSeconds, speed, volume float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.teardownLocked()

	s := &session{
		buf:    buf,
		offset: clamp(offsetSeconds, 0, buf.Duration()),
		speed:  speed,
		volume: volume,
	}
	if err := t.emitLocked(s); err != nil {
		return err
	}
	t.sess = s
	return nil
}

// Pause stops emission and returns the position reached, computed from the
// clock anchor rather than a polled counter. Pausing a paused or empty
// transport is not an error.
func (t *Transport) Pause() (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.sess
	if s == nil {
		return 0, nil
	}
	pos := t.positionLocked(s)
	if s.playing {
		s.emission.Stop()
	}
	t.sess = &session{
		buf:    s.buf,
		offset: pos,
		speed:  s.speed,
		volume: s.volume,
	}
	return pos, nil
}

// Resume continues a paused session from its offset.
func (t *Transport) Resume() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.sess
	if s == nil {
		return ErrNoSession
	}
	if s.playing {
		return nil
	}
	next := &session{
		buf:    s.buf,
		offset: s.offset,
		speed:  s.speed,
		volume: s.volume,
	}
	if err := t.emitLocked(next); err != nil {
		return err
	}
	t.sess = next
	return nil
}

// Seek stops the current emission and recreates the session at the offset
// given as a fraction of duration. A paused session stays paused at the new
// offset; seeking never implicitly resumes.
func (t *Transport) Seek(fraction float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.sess
	if s == nil {
		return ErrNoSession
	}
	wasPlaying := s.playing
	if wasPlaying {
		s.emission.Stop()
	}
	next := &session{
		buf:    s.buf,
		offset: clamp(fraction, 0, 1) * s.buf.Duration(),
		speed:  s.speed,
		volume: s.volume,
	}
	if wasPlaying {
		if err := t.emitLocked(next); err != nil {
			return err
		}
	}
	t.sess = next
	return nil
}

// Stop tears the session down without firing the ended notification.
func (t *Transport) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.teardownLocked()
}

// SetVolume applies to the live gain stage without restarting the session.
func (t *Transport) SetVolume(v float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.sess
	if s == nil {
		return
	}
	s.volume = v
	if s.playing {
		s.emission.SetVolume(v)
	}
}

// SetSpeed re-anchors the session clock at the current position and updates
// the live rate multiplier, so the recompute-from-anchor formula stays exact
// across the rate change.
func (t *Transport) SetSpeed(v float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.sess
	if s == nil {
		return
	}
	if s.playing {
		s.offset = t.positionLocked(s)
		s.anchor = t.clock()
		s.emission.SetRate(v)
	}
	s.speed = v
}

// Progress reports the current position. Idempotent; safe to call at any
// cadence. ok is false when nothing is loaded.
func (t *Transport) Progress() (fraction, position, duration float64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.sess
	if s == nil {
		return 0, 0, 0, false
	}
	duration = s.buf.Duration()
	position = t.positionLocked(s)
	return position / duration, position, duration, true
}

func (t *Transport) Playing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sess != nil && t.sess.playing
}

// Close releases the sink device.
func (t *Transport) Close() error {
	t.Stop()
	return t.sink.Close()
}

func (t *Transport) positionLocked(s *session) float64 {
	pos := s.offset
	if s.playing {
		pos += t.clock().Sub(s.anchor).Seconds() * s.speed
	}
	return clamp(pos, 0, s.buf.Duration())
}

func (t *Transport) emitLocked(s *session) error {
	emission, err := t.sink.Start(s.buf, s.offset, s.speed, s.volume, func() {
		t.sessionEnded(s)
	})
	if err != nil {
		return err
	}
	s.emission = emission
	s.anchor = t.clock()
	s.playing = true
	return nil
}

// sessionEnded handles natural completion. The ended flag and the current
// session check together prevent a double notification when a natural end
// races a manual stop or seek. The emission is not stopped here: it has
// already drained, and a sink may invoke onEnd from its render goroutine,
// where calling back into the device would self-deadlock.
func (t *Transport) sessionEnded(s *session) {
	t.mu.Lock()
	if t.sess != s || s.ended {
		t.mu.Unlock()
		return
	}
	s.ended = true
	t.sess = nil
	cb := t.onEnded
	t.mu.Unlock()

	if cb != nil {
		cb()
	}
}

func (t *Transport) teardownLocked() {
	if t.sess == nil {
		return
	}
	if t.sess.playing {
		t.sess.emission.Stop()
	}
	t.sess.ended = true
	t.sess = nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
