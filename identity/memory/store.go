// Package memory is an in-process [identity.Store] for tests and local
// development. Counters live in process memory, so it must not back a
// multi-instance deployment.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/inkauth/identity"
)

// Store is a mutex-guarded map of identities.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]*identity.Identity
	byEmail map[string]string
}

// New returns an empty store.
func New() *Store {
	return &Store{
		byID:    make(map[string]*identity.Identity),
		byEmail: make(map[string]string),
	}
}

var _ identity.Store = (*Store)(nil)

func (s *Store) Create(_ context.Context, in identity.NewIdentity) (*identity.Identity, error) {
	if in.Profile == nil || in.ID == "" {
		return nil, identity.ErrInvalidProfile
	}
	email := identity.NormalizeEmail(in.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[email]; ok {
		return nil, identity.ErrEmailTaken
	}
	created := in.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	rec := &identity.Identity{
		ID:                in.ID,
		Email:             email,
		PasswordHash:      in.PasswordHash,
		Role:              in.Profile.Role(),
		Profile:           in.Profile,
		Active:            true,
		LastActiveAt:      created,
		PasswordChangedAt: created,
		CreatedAt:         created,
		UpdatedAt:         created,
	}
	s.byID[rec.ID] = rec
	s.byEmail[email] = rec.ID
	return clone(rec), nil
}

func (s *Store) GetByID(_ context.Context, id string) (*identity.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return clone(rec), nil
}

func (s *Store) GetByEmail(_ context.Context, email string) (*identity.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[identity.NormalizeEmail(email)]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return clone(s.byID[id]), nil
}

func (s *Store) RecordLoginFailure(_ context.Context, id string, threshold int, lockFor time.Duration, now time.Time) (identity.LoginFailure, error) {
	var out identity.LoginFailure
	err := s.update(id, func(rec *identity.Identity) {
		if rec.LockUntil != nil && !rec.IsLocked(now) {
			rec.FailedAttempts = 0
			rec.LockUntil = nil
		}
		rec.FailedAttempts++
		out.Attempts = rec.FailedAttempts
		if threshold > 0 && rec.FailedAttempts >= threshold && !rec.IsLocked(now) {
			until := now.Add(lockFor)
			rec.LockUntil = &until
			out.Locked = true
		}
		out.LockUntil = copyTime(rec.LockUntil)
	})
	return out, err
}

func (s *Store) RecordLoginSuccess(_ context.Context, id string, now time.Time) error {
	return s.update(id, func(rec *identity.Identity) {
		rec.FailedAttempts = 0
		rec.LockUntil = nil
		rec.LastLoginAt = &now
		rec.LastActiveAt = now
	})
}

func (s *Store) Touch(_ context.Context, id string, now time.Time) error {
	return s.update(id, func(rec *identity.Identity) {
		rec.LastActiveAt = now
	})
}

func (s *Store) UpdatePassword(_ context.Context, id, hash string, changedAt time.Time) error {
	return s.update(id, func(rec *identity.Identity) {
		rec.PasswordHash = hash
		rec.PasswordChangedAt = changedAt
		rec.FailedAttempts = 0
		rec.LockUntil = nil
	})
}

func (s *Store) MarkEmailVerified(_ context.Context, id string, at time.Time) error {
	return s.update(id, func(rec *identity.Identity) {
		rec.EmailVerifiedAt = &at
	})
}

func (s *Store) SetBan(_ context.Context, id string, banned bool, until *time.Time, reason string) error {
	return s.update(id, func(rec *identity.Identity) {
		rec.Banned = banned
		if banned {
			rec.BanExpiresAt = copyTime(until)
			rec.BanReason = reason
			return
		}
		rec.BanExpiresAt = nil
		rec.BanReason = ""
	})
}

func (s *Store) Unlock(_ context.Context, id string) error {
	return s.update(id, func(rec *identity.Identity) {
		rec.FailedAttempts = 0
		rec.LockUntil = nil
	})
}

func (s *Store) SetActive(_ context.Context, id string, active bool) error {
	return s.update(id, func(rec *identity.Identity) {
		rec.Active = active
	})
}

func (s *Store) SoftDelete(_ context.Context, id string, at time.Time) error {
	return s.update(id, func(rec *identity.Identity) {
		if rec.DeletedAt == nil {
			rec.DeletedAt = &at
		}
		rec.Active = false
	})
}

func (s *Store) ChangeRole(_ context.Context, id string, profile identity.Profile) error {
	if profile == nil {
		return identity.ErrInvalidProfile
	}
	return s.update(id, func(rec *identity.Identity) {
		rec.Role = profile.Role()
		rec.Profile = profile
	})
}

func (s *Store) update(id string, fn func(rec *identity.Identity)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return identity.ErrNotFound
	}
	fn(rec)
	rec.UpdatedAt = time.Now()
	return nil
}

func clone(rec *identity.Identity) *identity.Identity {
	out := *rec
	out.DeletedAt = copyTime(rec.DeletedAt)
	out.LockUntil = copyTime(rec.LockUntil)
	out.BanExpiresAt = copyTime(rec.BanExpiresAt)
	out.EmailVerifiedAt = copyTime(rec.EmailVerifiedAt)
	out.LastLoginAt = copyTime(rec.LastLoginAt)
	return &out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
