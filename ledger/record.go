package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// TokenType tags a ledger record.
type TokenType string

const (
	TypeAccess       TokenType = "access"
	TypeRefresh      TokenType = "refresh"
	TypeReset        TokenType = "reset"
	TypeVerification TokenType = "verification"
	TypeBlacklist    TokenType = "blacklist"
)

// Reason records why a token stopped being valid.
type Reason string

const (
	ReasonLogout         Reason = "logout"
	ReasonLogoutAll      Reason = "logout_all"
	ReasonPasswordChange Reason = "password_change"
	ReasonAdminAction    Reason = "admin_action"
	ReasonExpired        Reason = "expired"
	ReasonSuperseded     Reason = "superseded"
	ReasonSessionLimit   Reason = "session_limit_exceeded"
	ReasonReuseDetected  Reason = "reuse_detected"
	// ReasonConsumed marks a single-use reset or verification token that
	// has been redeemed.
	ReasonConsumed Reason = "consumed"
)

// Device is the client metadata captured when a token is issued.
type Device struct {
	UserAgent string
	IP        string
}

// Record is one persisted token.
type Record struct {
	Hash       string
	Type       TokenType
	IdentityID string
	SessionID  string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Active     bool

	RevokedAt        *time.Time
	RevocationReason Reason
	RevokedBy        string

	UserAgent  string
	IP         string
	LastUsedAt time.Time
	UseCount   int64
}

// Valid reports whether the record is active, unrevoked and unexpired at now.
func (r *Record) Valid(now time.Time) bool {
	return r.Active && r.RevokedAt == nil && r.ExpiresAt.After(now)
}

// HashToken returns the SHA-256 hex digest under which token is stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Hash field names.
const (
	fieldType       = "typ"
	fieldIdentity   = "uid"
	fieldSession    = "sid"
	fieldIssuedAt   = "iat"
	fieldExpiresAt  = "exp"
	fieldActive     = "act"
	fieldRevokedAt  = "rat"
	fieldReason     = "rr"
	fieldRevokedBy  = "rby"
	fieldUserAgent  = "ua"
	fieldIP         = "ip"
	fieldLastUsedAt = "lua"
	fieldUseCount   = "uc"
)

func (r *Record) fields() map[string]any {
	active := "0"
	if r.Active {
		active = "1"
	}
	return map[string]any{
		fieldType:       string(r.Type),
		fieldIdentity:   r.IdentityID,
		fieldSession:    r.SessionID,
		fieldIssuedAt:   millis(r.IssuedAt),
		fieldExpiresAt:  millis(r.ExpiresAt),
		fieldActive:     active,
		fieldUserAgent:  r.UserAgent,
		fieldIP:         r.IP,
		fieldLastUsedAt: millis(r.LastUsedAt),
		fieldUseCount:   r.UseCount,
	}
}

func recordFromHash(hash string, m map[string]string) *Record {
	rec := &Record{
		Hash:             hash,
		Type:             TokenType(m[fieldType]),
		IdentityID:       m[fieldIdentity],
		SessionID:        m[fieldSession],
		IssuedAt:         fromMillis(m[fieldIssuedAt]),
		ExpiresAt:        fromMillis(m[fieldExpiresAt]),
		Active:           m[fieldActive] == "1",
		RevocationReason: Reason(m[fieldReason]),
		RevokedBy:        m[fieldRevokedBy],
		UserAgent:        m[fieldUserAgent],
		IP:               m[fieldIP],
		LastUsedAt:       fromMillis(m[fieldLastUsedAt]),
	}
	if v, ok := m[fieldRevokedAt]; ok && v != "" {
		t := fromMillis(v)
		rec.RevokedAt = &t
	}
	rec.UseCount, _ = strconv.ParseInt(m[fieldUseCount], 10, 64)
	return rec
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
