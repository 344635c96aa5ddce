package engine

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"

	shellwords "github.com/mattn/go-shellwords"

	"github.com/sounderlabs/voxd/internal/config"
	"github.com/sounderlabs/voxd/internal/protocol"
)

// execEngine drives a long-lived inference subprocess over line-delimited
// JSON on stdin/stdout. The subprocess loads the model once and serves
// generation requests until closed.
type execEngine struct {
	args      []string
	modelPath string
	log       *slog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan procLine
	loaded bool
	seq    uint64

	exitMu  sync.Mutex
	exitErr error
}

type procRequest struct {
	Op        string  `json:"op"`
	ID        string  `json:"id,omitempty"`
	ModelPath string  `json:"model_path,omitempty"`
	Text      string  `json:"text,omitempty"`
	Voice     string  `json:"voice,omitempty"`
	Speed     float64 `json:"speed,omitempty"`
	Volume    float64 `json:"volume,omitempty"`
}

type procLine struct {
	Type       string  `json:"type"`
	ID         string  `json:"id,omitempty"`
	Progress   float64 `json:"progress,omitempty"`
	Status     string  `json:"status,omitempty"`
	SampleRate int     `json:"sample_rate,omitempty"`
	Voice      string  `json:"voice,omitempty"`
	PCMBase64  string  `json:"pcm_base64,omitempty"`
	Message    string  `json:"message,omitempty"`
}

// NewExecEngine builds an Engine backed by the configured inference command.
func NewExecEngine(cfg config.EngineConfig, log *slog.Logger) (Engine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse engine command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("engine command empty")
	}
	return &execEngine{
		args:      args,
		modelPath: cfg.ModelPath,
		log:       log.With(slog.String("component", "exec-engine")),
	}, nil
}

func (e *execEngine) start() error {
	if e.cmd != nil {
		return nil
	}
	if err := e.exitState(); err != nil {
		return err
	}

	cmd := exec.Command(e.args[0], e.args[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("engine stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("engine stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start engine process: %w", err)
	}

	lines := make(chan procLine, 16)
	go func() {
		scanner := bufio.NewScanner(stdout)
		// Complete lines carry base64 PCM for whole clips.
		scanner.Buffer(make([]byte, 1024*1024), 64*1024*1024)
		for scanner.Scan() {
			raw := scanner.Bytes()
			if len(raw) == 0 {
				continue
			}
			var line procLine
			if err := json.Unmarshal(raw, &line); err != nil {
				e.log.Warn("engine emitted unparseable line", slog.String("error", err.Error()))
				continue
			}
			lines <- line
		}
		err := cmd.Wait()
		e.exitMu.Lock()
		if err != nil {
			e.exitErr = fmt.Errorf("engine process exited: %w", err)
		} else {
			e.exitErr = fmt.Errorf("engine process exited")
		}
		e.exitMu.Unlock()
		close(lines)
	}()

	e.cmd = cmd
	e.stdin = stdin
	e.lines = lines
	return nil
}

func (e *execEngine) send(req procRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if _, err := e.stdin.Write(data); err != nil {
		return fmt.Errorf("write to engine: %w", err)
	}
	return nil
}

func (e *execEngine) Load(ctx context.Context, observe LoadObserver) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.loaded {
		return nil
	}
	if err := e.start(); err != nil {
		return err
	}
	if err := e.send(procRequest{Op: "init", ModelPath: e.modelPath}); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-e.lines:
			if !ok {
				return e.exitError()
			}
			switch line.Type {
			case "load_progress":
				if observe != nil {
					observe(line.Progress, line.Status)
				}
			case "model_loaded":
				e.loaded = true
				return nil
			case "error":
				return fmt.Errorf("engine load failed: %s", line.Message)
			}
		}
	}
}

func (e *execEngine) Synthesize(ctx context.Context, req Request, observe ProgressObserver) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		return Result{}, ErrNotLoaded
	}

	// A timed-out request leaves its eventual terminal line queued; flush
	// anything stale so it cannot be taken for this request's result.
	if err := e.drainStale(); err != nil {
		return Result{}, err
	}

	e.seq++
	id := strconv.FormatUint(e.seq, 10)
	err := e.send(procRequest{
		Op:     "generate",
		ID:     id,
		Text:   req.Text,
		Voice:  req.VoiceID,
		Speed:  req.Speed,
		Volume: req.Volume,
	})
	if err != nil {
		return Result{}, err
	}

	for {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case line, ok := <-e.lines:
			if !ok {
				return Result{}, e.exitError()
			}
			if line.ID != "" && line.ID != id {
				e.log.Warn("discarding engine line for a superseded request",
					slog.String("type", line.Type), slog.String("id", line.ID))
				continue
			}
			switch line.Type {
			case "progress":
				if observe != nil {
					observe(line.Progress)
				}
			case "complete":
				raw, err := base64.StdEncoding.DecodeString(line.PCMBase64)
				if err != nil {
					return Result{}, fmt.Errorf("decode engine pcm: %w", err)
				}
				samples, err := protocol.DecodePCM(raw)
				if err != nil {
					return Result{}, fmt.Errorf("decode engine pcm: %w", err)
				}
				voice := line.Voice
				if voice == "" {
					voice = req.VoiceID
				}
				return Result{Samples: samples, SampleRate: line.SampleRate, VoiceID: voice}, nil
			case "error":
				return Result{}, fmt.Errorf("engine: %s", line.Message)
			}
		}
	}
}

// drainStale discards queued lines left behind by an abandoned request.
// Caller holds e.mu.
func (e *execEngine) drainStale() error {
	for {
		select {
		case line, ok := <-e.lines:
			if !ok {
				return e.exitError()
			}
			e.log.Warn("discarding stale engine line", slog.String("type", line.Type), slog.String("id", line.ID))
		default:
			return nil
		}
	}
}

// exitError records the subprocess as gone and reports why. Caller holds e.mu.
func (e *execEngine) exitError() error {
	e.cmd = nil
	e.loaded = false
	if err := e.exitState(); err != nil {
		return err
	}
	return fmt.Errorf("engine process closed its output")
}

func (e *execEngine) exitState() error {
	e.exitMu.Lock()
	defer e.exitMu.Unlock()
	return e.exitErr
}

func (e *execEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stdin != nil {
		_ = e.stdin.Close()
	}
	if e.cmd != nil && e.cmd.Process != nil {
		return e.cmd.Process.Kill()
	}
	return nil
}
