package model

import (
	"context"
	"time"
)

// -------------------- VERIFICATION REQUEST MODEL --------------------

// VerificationRequest is a pending one-time-code challenge. The plaintext
// code is never stored; only its salted digest is. The row is immutable
// except for Attempts (monotonic) and Consumed (false -> true, one way).
type VerificationRequest struct {
	RequestToken      string    `json:"request_token" db:"request_token"`
	IdentityEncrypted string    `json:"-" db:"identity_encrypted"` // envelope-encrypted admin email
	IdentityDEK       string    `json:"-" db:"identity_dek"`
	IdentityKeyID     string    `json:"-" db:"identity_key_id"`
	CodeDigest        string    `json:"-" db:"code_digest"`
	CodeSalt          string    `json:"-" db:"code_salt"`
	HashAlgorithm     string    `json:"-" db:"hash_algorithm"`
	IssuedAt          time.Time `json:"issued_at" db:"issued_at"`
	ExpiresAt         time.Time `json:"expires_at" db:"expires_at"`
	Attempts          int       `json:"attempts" db:"attempts"`
	Consumed          bool      `json:"consumed" db:"consumed"`
}

// Expired reports whether the request's validity window has elapsed.
func (r *VerificationRequest) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// -------------------- SESSION MODEL --------------------

// Session is the long-lived bearer credential issued after a successful
// verification. It is valid iff it exists in the store and has not expired;
// there is no sliding expiry.
type Session struct {
	SessionToken string    `json:"session_token" db:"session_token"`
	IssuedAt     time.Time `json:"issued_at" db:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at" db:"expires_at"`
}

// Valid reports whether the session is still within its validity window.
func (s *Session) Valid(now time.Time) bool {
	return !now.After(s.ExpiresAt)
}

// -------------------- SECURITY EVENT MODEL --------------------

// SecurityEventType enumerates the auth decisions worth an audit record.
type SecurityEventType string

const (
	EventOTPRequested   SecurityEventType = "otp_requested"
	EventOTPSendFailed  SecurityEventType = "otp_send_failed"
	EventOTPVerified    SecurityEventType = "otp_verified"
	EventOTPRejected    SecurityEventType = "otp_rejected"
	EventSessionRevoked SecurityEventType = "session_revoked"
)

type SecurityEvent struct {
	EventID      string            `json:"event_id" db:"event_id"`
	EventBucket  int               `json:"event_bucket" db:"event_bucket"`
	EventDate    string            `json:"event_date" db:"event_date"`
	EventTime    time.Time         `json:"event_time" db:"event_time"`
	EventType    SecurityEventType `json:"event_type" db:"event_type"`
	RequestToken string            `json:"request_token,omitempty" db:"request_token"`
	Detail       string            `json:"detail,omitempty" db:"detail"`
}

// -------------------- STORE INTERFACES --------------------

// OtpRequestStore persists verification requests keyed by request token.
// Consume and IncrementAttempts are conditional updates: they succeed only
// when the stored row still matches the expected prior state, which is what
// makes the consume transition race-safe.
type OtpRequestStore interface {
	Create(ctx context.Context, req *VerificationRequest) error
	Get(ctx context.Context, requestToken string) (*VerificationRequest, error)
	// Consume flips consumed from false to true. It returns false when the
	// row was already consumed (or missing), without modifying anything.
	Consume(ctx context.Context, requestToken string) (bool, error)
	// IncrementAttempts moves attempts from `from` to `from+1`. It returns
	// false when another writer got there first.
	IncrementAttempts(ctx context.Context, requestToken string, from int) (bool, error)
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}

// SessionStore persists issued sessions keyed by session token.
type SessionStore interface {
	Create(ctx context.Context, session *Session) error
	Get(ctx context.Context, sessionToken string) (*Session, error)
	Delete(ctx context.Context, sessionToken string) error
}

// ErrNotFound is returned by stores when a key does not exist. Kept here so
// store implementations and services agree on one sentinel.
var ErrNotFound = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "record not found" }

// -------------------- CAPABILITY INTERFACES --------------------

// CodeSender delivers a plaintext one-time code to the administrator over an
// out-of-band channel. The core never learns whether the code was read, only
// whether the handoff to the channel succeeded.
type CodeSender interface {
	Send(ctx context.Context, identity, code string) error
}

// SessionCache is a validation fast path in front of the durable session
// store. Misses fall through to the store; failures are never fatal.
type SessionCache interface {
	SetSession(sessionToken string, expiresAt time.Time) error
	GetSession(sessionToken string) (time.Time, bool, error)
	DeleteSession(sessionToken string) error
}

// EventRecorder accepts security events for the audit pipeline. Recording is
// best-effort; implementations must never block the auth path on sink errors.
type EventRecorder interface {
	Record(eventType SecurityEventType, requestToken, detail string)
}
