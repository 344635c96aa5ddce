package wavexport

import (
	"bytes"
	"testing"

	"github.com/go-audio/wav"
)

func TestEncodeBytesProducesReadableWAV(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 1, -1}
	data, err := EncodeBytes(samples, 24000)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty wav")
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if int(dec.SampleRate) != 24000 {
		t.Fatalf("expected 24000 Hz, got %d", dec.SampleRate)
	}
	if dec.NumChans != 1 {
		t.Fatalf("expected mono, got %d channels", dec.NumChans)
	}
	if len(buf.Data) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(buf.Data))
	}
	if buf.Data[3] != 32767 {
		t.Fatalf("expected full-scale sample, got %d", buf.Data[3])
	}
}

func TestEncodeRejectsEmpty(t *testing.T) {
	if _, err := EncodeBytes(nil, 24000); err == nil {
		t.Fatal("expected error for empty samples")
	}
	if _, err := EncodeBytes([]float32{0.1}, 0); err == nil {
		t.Fatal("expected error for bad sample rate")
	}
}
