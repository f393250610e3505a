package hash

import "testing"

func intPtr(i int) *int { return &i }

func TestContentHash_Deterministic(t *testing.T) {
	d := 125
	a := ContentHash("Yesterday", &d, "The Beatles")
	b := ContentHash("Yesterday", &d, "The Beatles")
	if a != b {
		t.Fatalf("ContentHash() not deterministic: %q != %q", a, b)
	}
}

func TestContentHash_NoiseInvariant(t *testing.T) {
	d := 125
	a := ContentHash("Yesterday (Official Video)", &d, "The Beatles")
	b := ContentHash("yesterday HD", &d, "The Beatles")
	if a != b {
		t.Fatalf("ContentHash() should be invariant to noise words/case: %q != %q", a, b)
	}
}

func TestContentHash_DifferentComponentsDifferHash(t *testing.T) {
	d1, d2 := 125, 126
	base := ContentHash("Yesterday", &d1, "The Beatles")

	if got := ContentHash("Yesterday", &d2, "The Beatles"); got == base {
		t.Error("different duration should change the hash")
	}
	if got := ContentHash("Tomorrow", &d1, "The Beatles"); got == base {
		t.Error("different title should change the hash")
	}
	if got := ContentHash("Yesterday", &d1, "Someone Else"); got == base {
		t.Error("different artist should change the hash")
	}
	if got := ContentHash("Yesterday", nil, "The Beatles"); got == base {
		t.Error("nil duration should not hash the same as a concrete value")
	}
}

func TestContentHash_NilDurationDiffersFromZero(t *testing.T) {
	zero := 0
	withZero := ContentHash("Yesterday", &zero, "")
	withNil := ContentHash("Yesterday", nil, "")
	if withZero == withNil {
		t.Error("zero duration and nil duration must hash differently")
	}
}

func TestContentHash_EmptyArtistOmitted(t *testing.T) {
	d := 125
	withEmpty := ContentHash("Yesterday", &d, "")
	withWhitespace := ContentHash("Yesterday", &d, "   ")
	if withEmpty != withWhitespace {
		t.Error("empty and whitespace-only artist should hash identically")
	}
}
