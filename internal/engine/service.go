package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sounderlabs/voxd/internal/bus"
	"github.com/sounderlabs/voxd/internal/config"
	"github.com/sounderlabs/voxd/internal/protocol"
)

// Service is the worker side of the generation protocol. It owns the Engine
// and is reachable only through bus subjects, keeping inference isolated
// from the orchestrator.
type Service struct {
	cfg    config.EngineConfig
	bus    *bus.Client
	engine Engine
	logger *slog.Logger

	subInit     *nats.Subscription
	subGenerate *nats.Subscription
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	mu         sync.Mutex
	loading    bool
	loaded     bool
	generating bool
}

func NewService(parent context.Context, cfg config.EngineConfig, busClient *bus.Client, eng Engine, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:    cfg,
		bus:    busClient,
		engine: eng,
		ctx:    ctx,
		cancel: cancel,
		logger: log.With(slog.String("component", "engine-service")),
	}
}

func (s *Service) Start() error {
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectInit, s.handleInit)
	if err != nil {
		return err
	}
	s.subInit = sub

	subGen, err := s.bus.Conn().Subscribe(protocol.SubjectGenerate, s.handleGenerate)
	if err != nil {
		_ = s.subInit.Drain()
		return err
	}
	s.subGenerate = subGen
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.subInit != nil {
		_ = s.subInit.Drain()
	}
	if s.subGenerate != nil {
		_ = s.subGenerate.Drain()
	}
	s.wg.Wait()
	if err := s.engine.Close(); err != nil {
		s.logger.Warn("engine close failed", slogError(err))
	}
}

func (s *Service) Healthy() bool {
	return s.subInit != nil && s.subGenerate != nil
}

// handleInit collapses concurrent init requests into one model load and
// publishes ModelLoaded exactly once.
func (s *Service) handleInit(_ *nats.Msg) {
	s.mu.Lock()
	if s.loading || s.loaded {
		s.mu.Unlock()
		return
	}
	s.loading = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		err := s.engine.Load(s.ctx, func(progress float64, status string) {
			s.publish(protocol.SubjectLoadProgress, protocol.LoadProgress{Progress: progress, Status: status})
		})

		s.mu.Lock()
		s.loading = false
		if err == nil {
			s.loaded = true
		}
		s.mu.Unlock()

		if err != nil {
			s.logger.Warn("model load failed", slogError(err))
			s.publish(protocol.SubjectError, protocol.GenerateError{Message: err.Error()})
			return
		}
		s.publish(protocol.SubjectModelLoaded, protocol.ModelLoaded{
			SampleRate: s.cfg.SampleRate,
			Timestamp:  time.Now().UTC(),
		})
	}()
}

func (s *Service) handleGenerate(msg *nats.Msg) {
	var req protocol.GenerateRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode generate request", slogError(err))
		return
	}

	s.mu.Lock()
	if !s.loaded {
		s.mu.Unlock()
		s.publish(protocol.SubjectError, protocol.GenerateError{RequestID: req.RequestID, Message: ErrNotLoaded.Error()})
		return
	}
	if s.generating {
		s.mu.Unlock()
		s.publish(protocol.SubjectError, protocol.GenerateError{RequestID: req.RequestID, Message: ErrBusy.Error()})
		return
	}
	s.generating = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.generating = false
			s.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(s.ctx, time.Duration(s.cfg.GenerateTimeoutMS)*time.Millisecond)
		defer cancel()

		result, err := s.engine.Synthesize(ctx, Request{
			Text:    req.Text,
			VoiceID: req.VoiceID,
			Speed:   req.Speed,
			Volume:  req.Volume,
		}, func(progress float64) {
			s.publish(protocol.SubjectGenerateProgress, protocol.GenerateProgress{RequestID: req.RequestID, Progress: progress})
		})
		if err != nil {
			s.logger.Warn("synthesis failed", slogError(err))
			s.publish(protocol.SubjectError, protocol.GenerateError{RequestID: req.RequestID, Message: err.Error()})
			return
		}

		// Hand the samples off; the wire copy is the only one kept.
		pcm := protocol.EncodePCM(result.Samples)
		result.Samples = nil
		s.publish(protocol.SubjectComplete, protocol.Complete{
			RequestID:  req.RequestID,
			VoiceID:    result.VoiceID,
			SampleRate: result.SampleRate,
			PCM:        pcm,
		})
	}()
}

func (s *Service) publish(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to marshal engine event", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(subject, data); err != nil {
		s.logger.Warn("failed to publish engine event", slog.String("subject", subject), slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
