package protocol

import "testing"

func TestPCMRoundTrip(t *testing.T) {
	in := []float32{0, 1, -1, 0.5, -0.25, 0.0078125}
	data := EncodePCM(in)
	if len(data) != len(in)*4 {
		t.Fatalf("expected %d bytes, got %d", len(in)*4, len(data))
	}
	out, err := DecodePCM(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d samples, got %d", len(in), len(out))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("sample %d: expected %v, got %v", i, in[i], out[i])
		}
	}
}

func TestDecodePCMRejectsTruncated(t *testing.T) {
	if _, err := DecodePCM([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for truncated pcm")
	}
}
