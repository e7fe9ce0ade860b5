package auth

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// tokenPurpose scopes the derived key so the same master secret can back
// other protectors later without key reuse.
const tokenPurpose = "connected-account-tokens"

// Protector seals and opens secrets stored as opaque references.
type Protector interface {
	Protect(plaintext string) (string, error)
	Unprotect(reference string) (string, error)
}

// AEADProtector encrypts values with XChaCha20-Poly1305 under a key derived
// from the configured master secret.
type AEADProtector struct {
	aead cipher.AEAD
}

// NewTokenProtector derives the token key from secret and returns a
// protector bound to it.
func NewTokenProtector(secret string) (*AEADProtector, error) {
	if secret == "" {
		return nil, fmt.Errorf("protector secret is empty")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte(tokenPurpose))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("deriving token key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	return &AEADProtector{aead: aead}, nil
}

// Protect seals plaintext under a random nonce and returns a base64url
// reference of nonce and ciphertext.
func (p *AEADProtector) Protect(plaintext string) (string, error) {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := p.aead.Seal(nonce, nonce, []byte(plaintext), nil)

	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Unprotect reverses Protect. It fails on truncated or tampered references.
func (p *AEADProtector) Unprotect(reference string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(reference)
	if err != nil {
		return "", fmt.Errorf("decoding token reference: %w", err)
	}

	if len(raw) < chacha20poly1305.NonceSizeX {
		return "", fmt.Errorf("token reference too short")
	}

	nonce, ciphertext := raw[:chacha20poly1305.NonceSizeX], raw[chacha20poly1305.NonceSizeX:]
	plaintext, err := p.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("opening token reference: %w", err)
	}

	return string(plaintext), nil
}
