package identity

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no identity matches the lookup.
	ErrNotFound = errors.New("identity not found")
	// ErrEmailTaken is returned by Create when the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidProfile is returned for unknown roles or missing role fields.
	ErrInvalidProfile = errors.New("invalid profile")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("identity store unavailable")
)

// LoginFailure is the state after a failed attempt was recorded.
type LoginFailure struct {
	Attempts  int
	LockUntil *time.Time
	// Locked is true only for the call that moved the account into lockout.
	Locked bool
}

// Store persists identities and their security counters. Every method must be
// safe for concurrent use.
type Store interface {
	Create(ctx context.Context, in NewIdentity) (*Identity, error)
	GetByID(ctx context.Context, id string) (*Identity, error)
	GetByEmail(ctx context.Context, email string) (*Identity, error)

	// RecordLoginFailure increments the failed-attempt counter. When the
	// counter reaches threshold the lock deadline is set to now+lockFor.
	RecordLoginFailure(ctx context.Context, id string, threshold int, lockFor time.Duration, now time.Time) (LoginFailure, error)
	// RecordLoginSuccess clears lockout state and stamps last login/activity.
	RecordLoginSuccess(ctx context.Context, id string, now time.Time) error
	Touch(ctx context.Context, id string, now time.Time) error

	UpdatePassword(ctx context.Context, id, hash string, changedAt time.Time) error
	MarkEmailVerified(ctx context.Context, id string, at time.Time) error

	SetBan(ctx context.Context, id string, banned bool, until *time.Time, reason string) error
	Unlock(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, active bool) error
	SoftDelete(ctx context.Context, id string, at time.Time) error
	ChangeRole(ctx context.Context, id string, profile Profile) error
}
