package authcore

import "context"

// UserRecord is the account record returned by [UserProvider]. The user
// itself is owned by the external user-management subsystem; this engine
// only reads identity, credential hashes, and 2FA state.
type UserRecord struct {
	UserID           string
	Username         string
	Email            string
	PasswordHash     string
	Roles            []string
	Verified         bool
	TwoFactorEnabled bool
}

// TOTPRecord carries a user's TOTP secret state. A secret written during
// setup initiation has Confirmed=false and must not grant 2FA status until
// the user proves possession via setup confirmation.
type TOTPRecord struct {
	Secret       []byte
	Confirmed    bool
	LastUsedStep int64
}

// BackupCodeRecord stores the SHA-256 hash of a single backup code.
// The plaintext is never persisted.
type BackupCodeRecord struct {
	Hash [32]byte
}

// UserProvider is the interface callers implement to connect the engine to
// their user database. All mutating TOTP methods must be atomic per user;
// ConsumeBackupCode in particular must guarantee that two concurrent calls
// with the same hash yield exactly one success.
type UserProvider interface {
	GetUserByIdentifier(ctx context.Context, identifier string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error

	GetTOTPSecret(ctx context.Context, userID string) (*TOTPRecord, error)
	SavePendingTOTPSecret(ctx context.Context, userID string, secret []byte) error
	ConfirmTOTPSecret(ctx context.Context, userID string) error
	ClearTOTP(ctx context.Context, userID string) error
	UpdateTOTPLastUsedStep(ctx context.Context, userID string, step int64) error

	GetBackupCodes(ctx context.Context, userID string) ([]BackupCodeRecord, error)
	ReplaceBackupCodes(ctx context.Context, userID string, codes []BackupCodeRecord) error
	ConsumeBackupCode(ctx context.Context, userID string, codeHash [32]byte) (bool, error)
}

// Profile is the minimal user view returned alongside freshly minted tokens.
type Profile struct {
	ID               string   `json:"id"`
	Username         string   `json:"username"`
	Email            string   `json:"email"`
	Roles            []string `json:"roles"`
	Verified         bool     `json:"verified"`
	TwoFactorEnabled bool     `json:"twoFactorEnabled"`
}

// LoginResult is returned by [Engine.Login] and [Engine.ConfirmLogin2FA].
// When TwoFactorRequired is set, only PendingToken and Prompt are populated;
// otherwise the token pair and profile are present.
type LoginResult struct {
	AccessToken  string   `json:"accessToken,omitempty"`
	RefreshToken string   `json:"refreshToken,omitempty"`
	ExpiresIn    int64    `json:"expiresIn,omitempty"`
	User         *Profile `json:"user,omitempty"`

	TwoFactorRequired bool   `json:"requires2fa,omitempty"`
	PendingToken      string `json:"tempToken,omitempty"`
	Prompt            string `json:"message,omitempty"`
}

// TokenPair is returned by [Engine.Refresh].
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// TOTPSetup holds the provisioning material returned by
// [Engine.InitiateTOTPSetup]. ManualEntryKey is the base32 secret grouped in
// blocks of four for typing into an authenticator app by hand.
type TOTPSetup struct {
	SecretBase32   string `json:"secret"`
	QRCodeURL      string `json:"qrPayload"`
	ManualEntryKey string `json:"manualEntryKey"`
}

// AuthResult is the verified identity produced by [Engine.Validate]. Claims
// are validated once at parse time and consumed as plain data afterwards.
type AuthResult struct {
	UserID    string
	SessionID string
	Roles     []string
	TwoFactor bool
}

// SecondFactor selects which kind of code a 2FA confirmation carries.
type SecondFactor string

const (
	// FactorTOTP verifies the code against the user's active TOTP secret.
	FactorTOTP SecondFactor = "totp"
	// FactorBackupCode consumes a single-use backup code.
	FactorBackupCode SecondFactor = "backup"
)
