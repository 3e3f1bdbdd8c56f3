package password

import (
	"strings"
	"testing"
)

func TestHashVerifyRoundtrip(t *testing.T) {
	phc, err := Hash(Default, "s3cret-value")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(phc, "$argon2id$v=19$") {
		t.Fatalf("unexpected PHC string %q", phc)
	}
	if !Verify("s3cret-value", phc) {
		t.Fatal("correct secret must verify")
	}
	if Verify("wrong", phc) {
		t.Fatal("wrong secret must not verify")
	}
}

func TestHashSaltsDiffer(t *testing.T) {
	a, err := Hash(Default, "same")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	b, err := Hash(Default, "same")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if a == b {
		t.Fatal("two hashes of the same input must differ by salt")
	}
}

func TestHashRejectsEmpty(t *testing.T) {
	if _, err := Hash(Default, ""); err == nil {
		t.Fatal("empty secret must be rejected")
	}
}

func TestVerifyMalformedPHC(t *testing.T) {
	for _, phc := range []string{
		"",
		"not-a-phc",
		"$argon2i$v=19$m=65536,t=3,p=1$c2FsdA$ZGs",  // wrong variant
		"$argon2id$v=18$m=65536,t=3,p=1$c2FsdA$ZGs", // wrong version
		"$argon2id$v=19$m=65536,t=3,p=1$!!$ZGs",     // bad salt b64
	} {
		if Verify("anything", phc) {
			t.Fatalf("malformed PHC must not verify: %q", phc)
		}
	}
}
