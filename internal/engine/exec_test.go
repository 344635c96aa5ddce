package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sounderlabs/voxd/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// writeSlowFirstScript fakes an inference subprocess that answers its first
// generate request late and every later one immediately, echoing request ids.
func writeSlowFirstScript(t *testing.T) string {
	t.Helper()
	script := `#!/bin/sh
n=0
while read line; do
  case "$line" in
  *'"op":"init"'*)
    echo '{"type":"model_loaded","sample_rate":24000}'
    ;;
  *'"op":"generate"'*)
    n=$((n+1))
    id=$(printf '%s' "$line" | sed -n 's/.*"id":"\([^"]*\)".*/\1/p')
    if [ "$n" = 1 ]; then
      sleep 1
      echo '{"type":"complete","id":"'"$id"'","voice":"AAA","sample_rate":24000,"pcm_base64":"AAAAAA=="}'
    else
      echo '{"type":"complete","id":"'"$id"'","voice":"BBB","sample_rate":24000,"pcm_base64":"AAAAAA=="}'
    fi
    ;;
  esac
done
`
	path := filepath.Join(t.TempDir(), "fake-engine.sh")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestExecEngineIgnoresResultOfTimedOutRequest(t *testing.T) {
	script := writeSlowFirstScript(t)
	eng, err := NewExecEngine(config.EngineConfig{Command: "/bin/sh " + script, SampleRate: 24000}, newLogger())
	if err != nil {
		t.Fatalf("new exec engine: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close() })

	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelLoad()
	if err := eng.Load(loadCtx, nil); err != nil {
		t.Fatalf("load: %v", err)
	}

	// The first request times out before the subprocess answers it.
	ctxA, cancelA := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancelA()
	_, err = eng.Synthesize(ctxA, Request{Text: "first", VoiceID: "af_sky", Speed: 1, Volume: 1}, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}

	// The late answer to the first request must not become the second
	// request's result.
	ctxB, cancelB := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelB()
	res, err := eng.Synthesize(ctxB, Request{Text: "second", VoiceID: "af_sky", Speed: 1, Volume: 1}, nil)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if res.VoiceID != "BBB" {
		t.Fatalf("voice = %q, want the second request's BBB", res.VoiceID)
	}
}
