package voices

import "testing"

func TestLookup(t *testing.T) {
	v, ok := Lookup("af_sky")
	if !ok {
		t.Fatal("expected af_sky to exist")
	}
	if v.Name != "Sky" || v.Locale != "en-us" || v.Gender != "Female" {
		t.Fatalf("unexpected voice: %+v", v)
	}
	if _, ok := Lookup("nope"); ok {
		t.Fatal("expected unknown voice to miss")
	}
}

func TestDisplayNameFallsBack(t *testing.T) {
	if got := DisplayName("bm_lewis"); got != "Lewis" {
		t.Fatalf("expected Lewis, got %q", got)
	}
	if got := DisplayName("xz_custom"); got != "xz_custom" {
		t.Fatalf("expected id fallback, got %q", got)
	}
}

func TestAllIsACopy(t *testing.T) {
	a := All()
	a[0].Name = "mutated"
	if b := All(); b[0].Name == "mutated" {
		t.Fatal("All must not expose the backing table")
	}
}
