// Package ephemeral is an in-process store for short-lived pending-login
// state. Records are sealed with AES-256-GCM before they touch the heap,
// so a memory dump exposes ciphertext, not user identifiers. Nothing in
// here survives a process restart, which is the point: a pending login
// is worthless after a few minutes anyway.
package ephemeral

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

const recordVersion1 = 1

var (
	// ErrNotFound covers both tokens that never existed and blobs that
	// fail authentication, so callers cannot tell the two apart.
	ErrNotFound = errors.New("pending login not found")
	// ErrExpired reports a record whose deadline passed; the entry is
	// removed as a side effect of the lookup.
	ErrExpired = errors.New("pending login expired")
)

// PendingLogin is the state parked between a correct password and a
// correct second factor.
type PendingLogin struct {
	UserID    string
	Email     string
	ExpiresAt int64
	Attempts  uint16
}

// Store maps opaque tokens to sealed PendingLogin records.
type Store struct {
	aead cipher.AEAD

	mu      sync.Mutex
	entries map[string]sealedEntry

	now func() time.Time
}

// sealedEntry keeps the expiry in the clear so the sweeper can evict
// without decrypting.
type sealedEntry struct {
	blob      []byte // nonce || ciphertext
	expiresAt int64
}

// Option adjusts store construction; used by tests to control time.
type Option func(*Store)

// WithClock overrides the store's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New builds a store sealing records under the given AES-256 key.
func New(key []byte, opts ...Option) (*Store, error) {
	if len(key) != 32 {
		return nil, errors.New("ephemeral store key must be 32 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("ephemeral store cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("ephemeral store gcm: %w", err)
	}
	s := &Store{
		aead:    aead,
		entries: make(map[string]sealedEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Put seals record and stores it under token, replacing any previous
// entry. Each write uses a fresh nonce.
func (s *Store) Put(token string, record *PendingLogin) error {
	plain, err := encodePendingLogin(record)
	if err != nil {
		return err
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("ephemeral store nonce: %w", err)
	}
	// The token is bound in as additional data so a sealed blob cannot
	// be replayed under a different token.
	blob := s.aead.Seal(nonce, nonce, plain, []byte(token))

	s.mu.Lock()
	s.entries[token] = sealedEntry{blob: blob, expiresAt: record.ExpiresAt}
	s.mu.Unlock()
	return nil
}

// Get returns the record stored under token. Expired records are deleted
// on the way out. The entry itself is left in place on success; callers
// consume it with Remove once the second factor verifies.
func (s *Store) Get(token string) (*PendingLogin, error) {
	s.mu.Lock()
	entry, ok := s.entries[token]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}

	record, err := s.open(token, entry.blob)
	if err != nil {
		s.Remove(token)
		return nil, ErrNotFound
	}
	if s.now().Unix() > record.ExpiresAt {
		s.Remove(token)
		return nil, ErrExpired
	}
	return record, nil
}

// Remove deletes the entry for token and reports whether it existed.
// Exactly one concurrent caller observes true, which is what makes the
// pending token single-use.
func (s *Store) Remove(token string) bool {
	s.mu.Lock()
	_, ok := s.entries[token]
	delete(s.entries, token)
	s.mu.Unlock()
	return ok
}

// RecordFailure increments the attempt counter under token. When the
// counter reaches maxAttempts the entry is deleted and exceeded is true;
// the caller must then force a fresh login.
func (s *Store) RecordFailure(token string, maxAttempts int) (exceeded bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[token]
	if !ok {
		return false, ErrNotFound
	}
	record, err := s.open(token, entry.blob)
	if err != nil {
		delete(s.entries, token)
		return false, ErrNotFound
	}
	if s.now().Unix() > record.ExpiresAt {
		delete(s.entries, token)
		return false, ErrExpired
	}

	record.Attempts++
	if int(record.Attempts) >= maxAttempts {
		delete(s.entries, token)
		return true, nil
	}

	plain, err := encodePendingLogin(record)
	if err != nil {
		return false, err
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return false, fmt.Errorf("ephemeral store nonce: %w", err)
	}
	entry.blob = s.aead.Seal(nonce, nonce, plain, []byte(token))
	s.entries[token] = entry
	return false, nil
}

// SweepExpired drops every entry past its deadline and returns how many
// were removed.
func (s *Store) SweepExpired() int {
	deadline := s.now().Unix()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for token, entry := range s.entries {
		if deadline > entry.expiresAt {
			delete(s.entries, token)
			removed++
		}
	}
	return removed
}

// StartSweeper runs SweepExpired on the given interval until ctx is
// cancelled. Expiry is already enforced on read, so the sweeper only
// bounds memory held by abandoned logins.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.SweepExpired()
			}
		}
	}()
}

// Len reports the number of live entries, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) open(token string, blob []byte) (*PendingLogin, error) {
	if len(blob) < s.aead.NonceSize() {
		return nil, ErrNotFound
	}
	nonce, ciphertext := blob[:s.aead.NonceSize()], blob[s.aead.NonceSize():]
	plain, err := s.aead.Open(nil, nonce, ciphertext, []byte(token))
	if err != nil {
		return nil, ErrNotFound
	}
	return decodePendingLogin(plain)
}

func encodePendingLogin(record *PendingLogin) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(recordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.UserID) > 65535 || len(record.Email) > 65535 {
		return nil, errors.New("pending login field length exceeded")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.UserID)
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Email))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Email)

	return buf.Bytes(), nil
}

func decodePendingLogin(data []byte) (*PendingLogin, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordVersion1 {
		return nil, errors.New("invalid pending login version")
	}

	record := &PendingLogin{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var userLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userLen); err != nil {
		return nil, err
	}
	user := make([]byte, userLen)
	if _, err := io.ReadFull(reader, user); err != nil {
		return nil, err
	}
	record.UserID = string(user)

	var emailLen uint16
	if err := binary.Read(reader, binary.BigEndian, &emailLen); err != nil {
		return nil, err
	}
	email := make([]byte, emailLen)
	if _, err := io.ReadFull(reader, email); err != nil {
		return nil, err
	}
	record.Email = string(email)

	return record, nil
}
