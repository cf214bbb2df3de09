// Package oauth2pkce implements the OAuth2 Authorization Code flow with
// PKCE (RFC 7636) used to obtain and refresh cloud-drive access tokens. It
// wraps golang.org/x/oauth2 with a local redirect-capture server for the
// authorization step and a read-mostly, double-checked-locking refresh
// path for the token lifecycle.
package oauth2pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// minVerifierLen and maxVerifierLen bound a PKCE code_verifier per RFC
// 7636 §4.1: 43 to 128 characters of the unreserved URL-safe alphabet.
const (
	minVerifierLen = 43
	maxVerifierLen = 128

	// defaultVerifierLen is generous within the RFC bounds; base64url
	// encoding of 64 random bytes yields 86 characters.
	defaultVerifierLen = 64
)

// Verifier is a PKCE code_verifier/code_challenge pair.
type Verifier struct {
	Value     string
	Challenge string
	Method    string // always "S256"
}

// NewVerifier generates a cryptographically random code_verifier and its
// S256 code_challenge.
func NewVerifier() (Verifier, error) {
	raw := make([]byte, defaultVerifierLen)
	if _, err := rand.Read(raw); err != nil {
		return Verifier{}, fmt.Errorf("oauth2pkce: generating verifier: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(raw)
	if len(verifier) < minVerifierLen {
		return Verifier{}, fmt.Errorf("oauth2pkce: generated verifier shorter than RFC minimum")
	}
	if len(verifier) > maxVerifierLen {
		verifier = verifier[:maxVerifierLen]
	}

	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])

	return Verifier{Value: verifier, Challenge: challenge, Method: "S256"}, nil
}
