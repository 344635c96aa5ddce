package engine

import (
	"context"
	"errors"
	"testing"
)

func TestMockEngineRequiresLoad(t *testing.T) {
	eng := NewMockEngine(24000)
	t.Cleanup(func() { _ = eng.Close() })

	_, err := eng.Synthesize(context.Background(), Request{Text: "hi", VoiceID: "af_sky", Volume: 1}, nil)
	if !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("err = %v, want ErrNotLoaded", err)
	}
}

func TestMockEngineLoadReportsProgress(t *testing.T) {
	eng := NewMockEngine(24000)
	t.Cleanup(func() { _ = eng.Close() })

	var seen []float64
	err := eng.Load(context.Background(), func(p float64, _ string) {
		seen = append(seen, p)
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(seen) == 0 || seen[len(seen)-1] != 1.0 {
		t.Fatalf("progress = %v, want terminal 1.0", seen)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Fatalf("progress went backwards: %v", seen)
		}
	}
}

func TestMockEngineSubstitutesUnknownVoice(t *testing.T) {
	eng := NewMockEngine(24000)
	t.Cleanup(func() { _ = eng.Close() })
	if err := eng.Load(context.Background(), nil); err != nil {
		t.Fatalf("load: %v", err)
	}

	res, err := eng.Synthesize(context.Background(), Request{Text: "hello there", VoiceID: "zz_missing", Speed: 1, Volume: 1}, nil)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if res.VoiceID != "af" {
		t.Fatalf("voice = %q, want substituted af", res.VoiceID)
	}
	if res.SampleRate != 24000 {
		t.Fatalf("sample rate = %d", res.SampleRate)
	}
	if len(res.Samples) == 0 {
		t.Fatal("no samples")
	}

	res2, err := eng.Synthesize(context.Background(), Request{Text: "hello there", VoiceID: "af_sky", Speed: 1, Volume: 1}, nil)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if res2.VoiceID != "af_sky" {
		t.Fatalf("voice = %q, want requested af_sky", res2.VoiceID)
	}
}
