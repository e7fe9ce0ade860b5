package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
)

func TestGeneratePKCE(t *testing.T) {
	first, err := GeneratePKCE()
	if err != nil {
		t.Fatalf("GeneratePKCE failed: %v", err)
	}

	if first.State == "" || first.Verifier == "" || first.Challenge == "" {
		t.Fatalf("GeneratePKCE returned empty fields: %+v", first)
	}

	t.Run("challenge matches S256 of verifier", func(t *testing.T) {
		sum := sha256.Sum256([]byte(first.Verifier))
		want := base64.RawURLEncoding.EncodeToString(sum[:])
		if first.Challenge != want {
			t.Errorf("Challenge = %q, want %q", first.Challenge, want)
		}
	})

	t.Run("values are url safe", func(t *testing.T) {
		for _, value := range []string{first.State, first.Verifier, first.Challenge} {
			if strings.ContainsAny(value, "+/=") {
				t.Errorf("value %q contains non-url-safe characters", value)
			}
		}
	})

	t.Run("successive calls differ", func(t *testing.T) {
		second, err := GeneratePKCE()
		if err != nil {
			t.Fatalf("GeneratePKCE failed: %v", err)
		}
		if second.State == first.State || second.Verifier == first.Verifier {
			t.Error("expected fresh state and verifier on each call")
		}
	})
}

func TestChallengeS256(t *testing.T) {
	// Test vector from RFC 7636 appendix B.
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"

	if got := ChallengeS256(verifier); got != want {
		t.Errorf("ChallengeS256 = %q, want %q", got, want)
	}
}
