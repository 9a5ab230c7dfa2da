package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Role is the enumerated account role.
type Role string

const (
	RoleReader Role = "reader"
	RoleWriter Role = "writer"
	RoleAdmin  Role = "admin"
)

// ParseRole normalizes s into a known role.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleReader:
		return RoleReader, nil
	case RoleWriter:
		return RoleWriter, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidProfile, s)
	}
}

// Profile is the role-specific part of an identity. It is implemented only by
// [ReaderProfile], [WriterProfile] and [AdminProfile].
type Profile interface {
	Role() Role
	DisplayName() string
	sealed()
}

// ReaderProfile is the profile of a reader account.
type ReaderProfile struct {
	FullName string `json:"fullName"`
}

// WriterProfile is the profile of a writer account.
type WriterProfile struct {
	FullName string `json:"fullName"`
	PenName  string `json:"penName"`
	Bio      string `json:"bio,omitempty"`
}

// AdminProfile is the profile of an administrator.
type AdminProfile struct {
	FullName string `json:"fullName"`
}

func (ReaderProfile) Role() Role { return RoleReader }
func (WriterProfile) Role() Role { return RoleWriter }
func (AdminProfile) Role() Role  { return RoleAdmin }

func (p ReaderProfile) DisplayName() string { return p.FullName }
func (p WriterProfile) DisplayName() string { return p.PenName }
func (p AdminProfile) DisplayName() string  { return p.FullName }

func (ReaderProfile) sealed() {}
func (WriterProfile) sealed() {}
func (AdminProfile) sealed()  {}

// ProfileFields is the flat, untrusted input from which a profile is built.
type ProfileFields struct {
	FullName string
	PenName  string
	Bio      string
}

const (
	maxNameLength = 100
	maxBioLength  = 500
)

// NewProfile builds the variant for role and enforces its required fields.
func NewProfile(role Role, f ProfileFields) (Profile, error) {
	fullName := strings.TrimSpace(f.FullName)
	if fullName == "" {
		return nil, fmt.Errorf("%w: full name is required", ErrInvalidProfile)
	}
	if len(fullName) > maxNameLength {
		return nil, fmt.Errorf("%w: full name too long", ErrInvalidProfile)
	}

	switch role {
	case RoleReader:
		return ReaderProfile{FullName: fullName}, nil
	case RoleWriter:
		penName := strings.TrimSpace(f.PenName)
		if penName == "" {
			return nil, fmt.Errorf("%w: writers require a pen name", ErrInvalidProfile)
		}
		if len(penName) > maxNameLength {
			return nil, fmt.Errorf("%w: pen name too long", ErrInvalidProfile)
		}
		bio := strings.TrimSpace(f.Bio)
		if len(bio) > maxBioLength {
			return nil, fmt.Errorf("%w: bio too long", ErrInvalidProfile)
		}
		return WriterProfile{FullName: fullName, PenName: penName, Bio: bio}, nil
	case RoleAdmin:
		return AdminProfile{FullName: fullName}, nil
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidProfile, role)
	}
}

// MarshalProfile encodes p for storage next to its role tag.
func MarshalProfile(p Profile) ([]byte, error) {
	if p == nil {
		return nil, errors.New("nil profile")
	}
	return json.Marshal(p)
}

// UnmarshalProfile decodes a stored profile of the given role.
func UnmarshalProfile(role Role, data []byte) (Profile, error) {
	switch role {
	case RoleReader:
		var p ReaderProfile
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case RoleWriter:
		var p WriterProfile
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case RoleAdmin:
		var p AdminProfile
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidProfile, role)
	}
}

// Identity is one human account.
type Identity struct {
	ID           string
	Email        string
	PasswordHash string `json:"-"`
	Role         Role
	Profile      Profile

	Active    bool
	DeletedAt *time.Time

	FailedAttempts int
	LockUntil      *time.Time

	Banned       bool
	BanExpiresAt *time.Time
	BanReason    string

	EmailVerifiedAt   *time.Time
	LastActiveAt      time.Time
	LastLoginAt       *time.Time
	PasswordChangedAt time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsDeleted reports whether the identity has been soft-deleted.
func (i *Identity) IsDeleted() bool {
	return i.DeletedAt != nil
}

// IsUsable reports whether the account is active and not soft-deleted.
func (i *Identity) IsUsable() bool {
	return i.Active && !i.IsDeleted()
}

// IsLocked reports whether a lockout deadline is still in the future.
func (i *Identity) IsLocked(now time.Time) bool {
	return i.LockUntil != nil && i.LockUntil.After(now)
}

// IsBanned reports whether a ban is in force at now. A ban without expiry is
// permanent.
func (i *Identity) IsBanned(now time.Time) bool {
	if !i.Banned {
		return false
	}
	return i.BanExpiresAt == nil || i.BanExpiresAt.After(now)
}

// NewIdentity is the input for [Store.Create]. PasswordHash must already be
// hashed.
type NewIdentity struct {
	ID           string
	Email        string
	PasswordHash string
	Profile      Profile
	CreatedAt    time.Time
}

// NormalizeEmail lower-cases and trims an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
