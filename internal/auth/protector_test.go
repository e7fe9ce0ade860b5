package auth

import "testing"

func TestNewTokenProtector(t *testing.T) {
	t.Run("rejects empty secret", func(t *testing.T) {
		if _, err := NewTokenProtector(""); err == nil {
			t.Fatal("expected error for empty secret")
		}
	})

	t.Run("accepts any non-empty secret", func(t *testing.T) {
		if _, err := NewTokenProtector("short"); err != nil {
			t.Fatalf("NewTokenProtector failed: %v", err)
		}
	})
}

func TestProtectorRoundTrip(t *testing.T) {
	protector, err := NewTokenProtector("a-test-secret-that-is-long-enough")
	if err != nil {
		t.Fatalf("NewTokenProtector failed: %v", err)
	}

	t.Run("round trip", func(t *testing.T) {
		sealed, err := protector.Protect("access-token-value")
		if err != nil {
			t.Fatalf("Protect failed: %v", err)
		}
		if sealed == "access-token-value" {
			t.Fatal("Protect returned plaintext")
		}

		opened, err := protector.Unprotect(sealed)
		if err != nil {
			t.Fatalf("Unprotect failed: %v", err)
		}
		if opened != "access-token-value" {
			t.Errorf("Unprotect = %q, want original plaintext", opened)
		}
	})

	t.Run("distinct ciphertexts per call", func(t *testing.T) {
		first, _ := protector.Protect("same-value")
		second, _ := protector.Protect("same-value")
		if first == second {
			t.Error("expected unique nonces to produce distinct ciphertexts")
		}
	})

	t.Run("tampered ciphertext rejected", func(t *testing.T) {
		sealed, err := protector.Protect("value")
		if err != nil {
			t.Fatalf("Protect failed: %v", err)
		}

		tampered := []byte(sealed)
		tampered[len(tampered)-1] ^= 1
		if _, err := protector.Unprotect(string(tampered)); err == nil {
			t.Error("expected error for tampered ciphertext")
		}
	})

	t.Run("garbage input rejected", func(t *testing.T) {
		for _, input := range []string{"", "!!!", "c2hvcnQ"} {
			if _, err := protector.Unprotect(input); err == nil {
				t.Errorf("Unprotect(%q) succeeded, want error", input)
			}
		}
	})

	t.Run("wrong key rejected", func(t *testing.T) {
		other, err := NewTokenProtector("a-completely-different-secret-key")
		if err != nil {
			t.Fatalf("NewTokenProtector failed: %v", err)
		}

		sealed, err := protector.Protect("value")
		if err != nil {
			t.Fatalf("Protect failed: %v", err)
		}
		if _, err := other.Unprotect(sealed); err == nil {
			t.Error("expected error when opening with a different key")
		}
	})
}
