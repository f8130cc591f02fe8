package authcore

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"hash"
	"net/url"
	"strings"
	"time"
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// totpManager implements RFC 6238 time-based one-time passwords on top of
// the RFC 4226 HOTP construction. One instance is shared by the engine;
// it holds no per-user state.
type totpManager struct {
	issuer  string
	digits  int
	period  int64
	skew    int
	algName string
	hashFn  func() hash.Hash
	now     func() time.Time
}

func newTOTPManager(cfg TOTPConfig) *totpManager {
	alg := strings.ToUpper(cfg.Algorithm)
	if alg != "SHA256" && alg != "SHA512" {
		alg = "SHA1"
	}
	return &totpManager{
		issuer:  cfg.Issuer,
		digits:  cfg.Digits,
		period:  int64(cfg.Period),
		skew:    cfg.Skew,
		algName: alg,
		hashFn:  hashByName(alg),
		now:     time.Now,
	}
}

// GenerateSecret returns a fresh 160-bit shared secret, the size the
// HOTP RFC recommends for SHA-1.
func (m *totpManager) GenerateSecret() ([]byte, error) {
	secret := make([]byte, 20)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}
	return secret, nil
}

// SecretBase32 encodes a secret the way authenticator apps expect it,
// without padding.
func (m *totpManager) SecretBase32(secret []byte) string {
	return b32.EncodeToString(secret)
}

// ProvisionURI builds the otpauth:// URI encoded into the enrollment QR
// code. accountName is what the authenticator app displays under the
// issuer, normally the user's email.
func (m *totpManager) ProvisionURI(secret []byte, accountName string) string {
	v := url.Values{}
	v.Set("secret", m.SecretBase32(secret))
	v.Set("issuer", m.issuer)
	v.Set("algorithm", m.algName)
	v.Set("digits", fmt.Sprintf("%d", m.digits))
	v.Set("period", fmt.Sprintf("%d", m.period))
	label := url.PathEscape(m.issuer + ":" + accountName)
	return "otpauth://totp/" + label + "?" + v.Encode()
}

// VerifyCode checks code against the current time step and skew window.
// On success it returns the matching step so the caller can persist it
// for replay protection. The comparison is constant-time per candidate
// step and always walks the full window.
func (m *totpManager) VerifyCode(secret []byte, code string) (bool, int64, error) {
	code = strings.TrimSpace(code)
	if len(code) != m.digits {
		return false, 0, nil
	}
	step := m.now().Unix() / m.period

	matched := false
	var matchedStep int64
	for offset := -m.skew; offset <= m.skew; offset++ {
		candidate := step + int64(offset)
		if candidate < 0 {
			continue
		}
		expected, err := m.hotpCode(secret, uint64(candidate))
		if err != nil {
			return false, 0, err
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			matched = true
			matchedStep = candidate
		}
	}
	return matched, matchedStep, nil
}

// hotpCode computes the RFC 4226 value for one counter: HMAC over the
// big-endian counter, dynamic truncation, then decimal mod 10^digits.
func (m *totpManager) hotpCode(secret []byte, counter uint64) (string, error) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], counter)

	mac := hmac.New(m.hashFn, secret)
	if _, err := mac.Write(buf[:]); err != nil {
		return "", fmt.Errorf("hotp hmac: %w", err)
	}
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	mod := uint32(1)
	for i := 0; i < m.digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", m.digits, bin%mod), nil
}

func hashByName(name string) func() hash.Hash {
	switch strings.ToUpper(name) {
	case "SHA256":
		return sha256.New
	case "SHA512":
		return sha512.New
	default:
		return sha1.New
	}
}
