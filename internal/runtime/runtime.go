package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sounderlabs/voxd/internal/bus"
	"github.com/sounderlabs/voxd/internal/config"
	"github.com/sounderlabs/voxd/internal/engine"
	"github.com/sounderlabs/voxd/internal/history"
	"github.com/sounderlabs/voxd/internal/natsserver"
	"github.com/sounderlabs/voxd/internal/orchestrator"
	"github.com/sounderlabs/voxd/internal/transport"
)

// Runtime wires the daemon together: embedded bus, generation worker,
// audio transport, history store, orchestrator and the HTTP surface.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings every component up, serves until ctx is cancelled, then
// tears down in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	busCfg := r.cfg.Bus
	var embedded *natsserver.EmbeddedServer
	if busCfg.Embedded {
		embedded, err = natsserver.Start(busCfg, r.logger)
		if err != nil {
			return fmt.Errorf("failed to start embedded bus: %w", err)
		}
		defer embedded.Shutdown()
		busCfg.Servers = []string{embedded.ClientURL()}
	}

	busClient, err := bus.Connect(ctx, busCfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	defer busClient.Close()

	eng, err := buildEngine(r.cfg.Engine, r.logger)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}

	service := engine.NewService(ctx, r.cfg.Engine, busClient, eng, r.logger)
	if err := service.Start(); err != nil {
		return fmt.Errorf("failed to start engine service: %w", err)
	}
	defer service.Close()

	worker, err := engine.NewClient(busClient, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start engine client: %w", err)
	}
	defer worker.Close()

	store, err := history.Open(ctx, r.cfg.History, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer store.Close()

	sink := transport.NewSpeakerSink(time.Duration(r.cfg.Playback.DeviceBufferMS)*time.Millisecond, r.logger)
	tr := transport.New(sink, r.logger)
	defer tr.Close()

	orch := orchestrator.New(worker, tr, store, orchestrator.Options{
		DefaultVoice:    r.cfg.Engine.DefaultVoice,
		Speed:           r.cfg.Playback.Speed,
		Volume:          r.cfg.Playback.Volume,
		GenerateTimeout: time.Duration(r.cfg.Engine.GenerateTimeoutMS) * time.Millisecond,
	}, r.logger)
	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("failed to start orchestrator: %w", err)
	}
	defer orch.Close()

	api := newAPI(orch, r.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricHandler != nil {
		mux.Handle("/metrics", metricHandler)
	}
	api.register(mux)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func buildEngine(cfg config.EngineConfig, logger *slog.Logger) (engine.Engine, error) {
	switch cfg.Mode {
	case "exec":
		return engine.NewExecEngine(cfg, logger)
	default:
		return engine.NewMockEngine(cfg.SampleRate), nil
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
