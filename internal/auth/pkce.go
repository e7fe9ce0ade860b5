package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	stateBytes    = 32
	verifierBytes = 64
)

// PKCE holds the material for one authorization attempt. The verifier stays
// server-side; the challenge goes to the provider in the authorize URL.
type PKCE struct {
	State     string
	Verifier  string
	Challenge string
}

// GeneratePKCE returns fresh state, verifier, and S256 challenge values.
func GeneratePKCE() (PKCE, error) {
	state, err := randomToken(stateBytes)
	if err != nil {
		return PKCE{}, fmt.Errorf("generating state: %w", err)
	}

	verifier, err := randomToken(verifierBytes)
	if err != nil {
		return PKCE{}, fmt.Errorf("generating verifier: %w", err)
	}

	return PKCE{
		State:     state,
		Verifier:  verifier,
		Challenge: ChallengeS256(verifier),
	}, nil
}

// ChallengeS256 computes the code challenge for a verifier using the
// S256 transform.
func ChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func randomToken(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}
