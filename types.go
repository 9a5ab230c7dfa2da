package inkauth

import (
	"context"
	"io"
	"time"

	"github.com/MrEthical07/inkauth/identity"
	internalaudit "github.com/MrEthical07/inkauth/internal/audit"
	"github.com/MrEthical07/inkauth/jwt"
	"github.com/MrEthical07/inkauth/ledger"
	"github.com/rs/zerolog"
)

// Device is the client metadata recorded on refresh tokens.
type Device = ledger.Device

// TokenPair is a freshly minted access/refresh pair.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	SessionID        string
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Identity *identity.Identity
	Tokens   TokenPair
}

// RefreshResult is returned by Refresh. RefreshToken is empty when rotation
// is disabled and the presented token stays in use.
type RefreshResult struct {
	Identity         *identity.Identity
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	SessionID        string
}

// Principal is the authenticated caller attached to a request.
type Principal struct {
	Identity *identity.Identity
	Claims   *jwt.Claims
	// Token is the raw access token, kept so logout can blacklist it.
	Token string
}

// SessionID returns the session the access token belongs to.
func (p *Principal) SessionID() string {
	if p == nil || p.Claims == nil {
		return ""
	}
	return p.Claims.SID
}

// RegisterRequest is the untrusted registration input.
type RegisterRequest struct {
	Email    string
	Password string
	Role     string
	FullName string
	PenName  string
	Bio      string
}

// ResetRequestMessage is the only response RequestPasswordReset ever gives.
const ResetRequestMessage = "If an account with that email exists, a password reset link has been sent."

// ResetRequestResult is the caller-visible outcome of a reset request. It
// never reveals whether the email exists.
type ResetRequestResult struct {
	Message string
}

// ResetNotifier delivers password reset tokens. Delivery is the
// application's concern.
type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, ident *identity.Identity, token string, expiresAt time.Time) error
}

// VerificationNotifier delivers email verification tokens.
type VerificationNotifier interface {
	SendEmailVerification(ctx context.Context, ident *identity.Identity, token string, expiresAt time.Time) error
}

// SessionInfo describes one active refresh-token session.
type SessionInfo struct {
	SessionID  string
	UserAgent  string
	IP         string
	IssuedAt   time.Time
	LastUsedAt time.Time
	ExpiresAt  time.Time
	UseCount   int64
}

// AuditEvent is a structured security record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes JSON-encoded events to an [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// ZerologSink writes events through a zerolog logger.
type ZerologSink = internalaudit.ZerologSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewZerologSink creates a [ZerologSink] that logs through log.
func NewZerologSink(log zerolog.Logger) *ZerologSink {
	return internalaudit.NewZerologSink(log)
}
