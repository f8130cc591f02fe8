// Package internal holds small helpers shared by the engine packages and
// not meant for import from outside the module.
package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

const (
	sessionIDBytes     = 16
	refreshSecretBytes = 32
)

// ErrMalformedRefreshToken reports a refresh token that does not decode
// to the expected sessionID||secret layout.
var ErrMalformedRefreshToken = errors.New("malformed refresh token")

// NewSessionID returns a random 128-bit session identifier encoded as
// unpadded URL-safe base64. It doubles as the jti claim of the access
// token minted for the session.
func NewSessionID() (string, error) {
	var raw [sessionIDBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// NewRefreshSecret returns the random 256-bit half of a refresh token.
// Only its SHA-256 hash is ever persisted.
func NewRefreshSecret() ([]byte, error) {
	secret := make([]byte, refreshSecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate refresh secret: %w", err)
	}
	return secret, nil
}

// HashRefreshSecret computes the digest stored alongside the session.
func HashRefreshSecret(secret []byte) [32]byte {
	return sha256.Sum256(secret)
}

// EncodeRefreshToken packs a session ID and secret into the opaque token
// handed to clients: base64url(rawSessionID || secret).
func EncodeRefreshToken(sessionID string, secret []byte) (string, error) {
	rawID, err := base64.RawURLEncoding.DecodeString(sessionID)
	if err != nil || len(rawID) != sessionIDBytes {
		return "", ErrMalformedRefreshToken
	}
	if len(secret) != refreshSecretBytes {
		return "", ErrMalformedRefreshToken
	}
	buf := make([]byte, 0, sessionIDBytes+refreshSecretBytes)
	buf = append(buf, rawID...)
	buf = append(buf, secret...)
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// DecodeRefreshToken splits an opaque refresh token back into its session
// ID and secret. Any length or encoding problem maps to
// ErrMalformedRefreshToken so callers cannot distinguish token shapes.
func DecodeRefreshToken(token string) (sessionID string, secret []byte, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != sessionIDBytes+refreshSecretBytes {
		return "", nil, ErrMalformedRefreshToken
	}
	sessionID = base64.RawURLEncoding.EncodeToString(raw[:sessionIDBytes])
	secret = raw[sessionIDBytes:]
	return sessionID, secret, nil
}
