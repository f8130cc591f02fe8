package session

// Session is the server-side state behind one logged-in device. The
// refresh hash is the SHA-256 of the secret half of the refresh token;
// the plaintext secret is never stored.
type Session struct {
	SessionID string
	UserID    string
	Email     string

	Roles []string

	Verified  bool
	TwoFactor bool

	RefreshHash [32]byte

	CreatedAt int64
	ExpiresAt int64
}
