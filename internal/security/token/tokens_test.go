package tokens

import "testing"

func TestGenerateOpaque_LengthAndUniqueness(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		s, err := GenerateOpaque(32)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		// 32 bytes -> 43 base64url chars without padding.
		if len(s) != 43 {
			t.Fatalf("unexpected length %d for %q", len(s), s)
		}
		if seen[s] {
			t.Fatalf("duplicate token %q", s)
		}
		seen[s] = true
	}
}

func TestSHA256Base64URL_KnownVector(t *testing.T) {
	// RFC 7636 appendix B.
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	if got := SHA256Base64URL(verifier); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestConstantTimeEquals(t *testing.T) {
	if !ConstantTimeEquals("abc", "abc") {
		t.Fatal("equal strings must match")
	}
	if ConstantTimeEquals("abc", "abd") || ConstantTimeEquals("abc", "ab") {
		t.Fatal("different strings must not match")
	}
}
