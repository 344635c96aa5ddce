package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Engine.Mode != "mock" {
		t.Fatalf("expected mock engine default, got %q", cfg.Engine.Mode)
	}
	if cfg.Engine.DefaultVoice != "af_sky" {
		t.Fatalf("expected default voice af_sky, got %q", cfg.Engine.DefaultVoice)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VOXD_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("VOXD_BUS_USERNAME", "alice")
	t.Setenv("VOXD_BUS_PASSWORD", "secret")
	t.Setenv("VOXD_ENGINE_MODE", "exec")
	t.Setenv("VOXD_ENGINE_COMMAND", "kokoro-infer --model model.onnx")
	t.Setenv("VOXD_ENGINE_SAMPLE_RATE", "44100")
	t.Setenv("VOXD_HISTORY_PATH", "./tmp.db")
	t.Setenv("VOXD_HISTORY_MAX_RECORDS", "50")
	t.Setenv("VOXD_PLAYBACK_VOLUME", "1.5")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if cfg.Engine.Mode != "exec" {
		t.Fatalf("expected engine mode override, got %q", cfg.Engine.Mode)
	}
	if cfg.Engine.Command != "kokoro-infer --model model.onnx" {
		t.Fatalf("expected engine command override, got %q", cfg.Engine.Command)
	}
	if cfg.Engine.SampleRate != 44100 {
		t.Fatalf("expected sample rate 44100, got %d", cfg.Engine.SampleRate)
	}
	if cfg.History.Path != "./tmp.db" {
		t.Fatalf("expected history path override")
	}
	if cfg.History.MaxRecords != 50 {
		t.Fatalf("expected max records 50, got %d", cfg.History.MaxRecords)
	}
	if cfg.Playback.Volume != 1.5 {
		t.Fatalf("expected volume 1.5, got %v", cfg.Playback.Volume)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "voxd.yaml")
	body := []byte(`
runtime_name: voxd-test
engine:
  mode: mock
  default_voice: am_adam
playback:
  volume: 0.5
  speed: 1.2
`)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RuntimeName != "voxd-test" {
		t.Fatalf("expected runtime name from file, got %q", cfg.RuntimeName)
	}
	if cfg.Engine.DefaultVoice != "am_adam" {
		t.Fatalf("expected voice from file, got %q", cfg.Engine.DefaultVoice)
	}
	if cfg.Playback.Speed != 1.2 {
		t.Fatalf("expected speed 1.2, got %v", cfg.Playback.Speed)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("VOXD_PLAYBACK_SPEED", "3.0")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for speed out of range")
	}
}

func TestValidateExecRequiresCommand(t *testing.T) {
	t.Setenv("VOXD_ENGINE_MODE", "exec")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for exec mode without command")
	}
}
