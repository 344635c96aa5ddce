package history

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/sounderlabs/voxd/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStore(t *testing.T, cfg config.HistoryConfig) *Store {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "history.db")
	}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(id string, created time.Time) Record {
	return Record{
		ID:         id,
		Text:       "hello " + id,
		VoiceID:    "af_sky",
		SampleRate: 24000,
		Samples:    []float32{0, 0.5, -0.5, 1},
		CreatedAt:  created,
	}
}

func TestReplaceAllRoundTrip(t *testing.T) {
	s := openStore(t, config.HistoryConfig{})
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	records := []Record{
		record("newest", base.Add(2*time.Minute)),
		record("middle", base.Add(time.Minute)),
		record("oldest", base),
	}
	if err := s.ReplaceAll(ctx, records); err != nil {
		t.Fatalf("replace all: %v", err)
	}

	got, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	for i, want := range []string{"newest", "middle", "oldest"} {
		if got[i].ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, got[i].ID)
		}
	}
	if got[0].Text != "hello newest" || got[0].VoiceID != "af_sky" {
		t.Fatalf("unexpected record contents: %+v", got[0])
	}
	if len(got[0].Samples) != 4 || got[0].Samples[1] != 0.5 {
		t.Fatalf("pcm did not survive round trip: %v", got[0].Samples)
	}
}

func TestReplaceAllIsFullReplace(t *testing.T) {
	s := openStore(t, config.HistoryConfig{})
	ctx := context.Background()

	now := time.Now().UTC()
	if err := s.ReplaceAll(ctx, []Record{record("a", now), record("b", now.Add(time.Second))}); err != nil {
		t.Fatalf("first replace: %v", err)
	}
	if err := s.ReplaceAll(ctx, []Record{record("c", now.Add(2 * time.Second))}); err != nil {
		t.Fatalf("second replace: %v", err)
	}

	got, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(got) != 1 || got[0].ID != "c" {
		t.Fatalf("expected only record c, got %+v", got)
	}
}

func TestRemoveSingleRecord(t *testing.T) {
	s := openStore(t, config.HistoryConfig{})
	ctx := context.Background()

	now := time.Now().UTC()
	if err := s.ReplaceAll(ctx, []Record{record("keep", now), record("drop", now.Add(time.Second))}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := s.Remove(ctx, "drop"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	got, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(got) != 1 || got[0].ID != "keep" {
		t.Fatalf("expected only keep, got %+v", got)
	}
}

func TestMaxRecordsCapsPersistedSet(t *testing.T) {
	s := openStore(t, config.HistoryConfig{MaxRecords: 2})
	ctx := context.Background()

	base := time.Now().UTC()
	records := []Record{
		record("r1", base.Add(3*time.Second)),
		record("r2", base.Add(2*time.Second)),
		record("r3", base.Add(time.Second)),
	}
	if err := s.ReplaceAll(ctx, records); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, err := s.LoadAll(ctx)
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected cap of 2 records, got %d", len(got))
	}
	if got[0].ID != "r1" || got[1].ID != "r2" {
		t.Fatalf("expected newest records kept, got %+v", got)
	}
}

func TestLoadAllRejectsMalformedTimestamp(t *testing.T) {
	s := openStore(t, config.HistoryConfig{})
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generations(id, text, voice_id, sample_rate, pcm, created_at)
		 VALUES(?, ?, ?, ?, ?, ?)`,
		"bad", "hello", "af_sky", 24000, []byte{0, 0, 0, 0}, "not-a-timestamp")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, err := s.LoadAll(ctx); err == nil {
		t.Fatal("expected error for malformed created_at")
	}
}

func TestRecordDuration(t *testing.T) {
	r := Record{SampleRate: 44100, Samples: make([]float32, 22050)}
	if d := r.Duration(); d != 0.5 {
		t.Fatalf("expected duration 0.5, got %v", d)
	}
}
