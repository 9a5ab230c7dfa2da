package inkauth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode"

	"github.com/MrEthical07/inkauth/identity"
	"github.com/MrEthical07/inkauth/internal/rate"
	"github.com/google/uuid"
)

const maxEmailLength = 254

// Register creates an identity and opens its first session.
//
// The password is hashed before anything is persisted. Role-specific profile
// fields are enforced by [identity.NewProfile]. A duplicate email, compared
// case-insensitively, fails with ErrConflict.
func (e *Engine) Register(ctx context.Context, req RegisterRequest, device Device) (*AuthResult, error) {
	ctx, device = withDevice(ctx, device)

	if err := e.allow(ctx, rate.ActionRegister, device.IP); err != nil {
		if errors.Is(err, ErrRateLimited) {
			e.metricInc(MetricRegisterRateLimited)
			e.emitRateLimit(ctx, "register")
		}
		return nil, err
	}

	ident, err := e.createIdentity(ctx, req, false)
	if err != nil {
		return nil, err
	}

	pair, err := e.startSession(ctx, ident, device)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, ident.ID, pair.SessionID, "", func() map[string]string {
		return map[string]string{"role": string(ident.Role)}
	})

	return &AuthResult{Identity: ident, Tokens: pair}, nil
}

// Provision creates an identity without opening a session. Unlike Register
// it may create admins, so it must only be reachable from trusted code such
// as bootstrap or admin tooling.
func (e *Engine) Provision(ctx context.Context, req RegisterRequest) (*identity.Identity, error) {
	ident, err := e.createIdentity(ctx, req, true)
	if err != nil {
		return nil, err
	}
	e.emitAudit(ctx, auditEventRegisterSuccess, true, ident.ID, "", "provisioned", func() map[string]string {
		return map[string]string{"role": string(ident.Role)}
	})
	return ident, nil
}

func (e *Engine) createIdentity(ctx context.Context, req RegisterRequest, allowAdmin bool) (*identity.Identity, error) {
	email, err := validateEmail(req.Email)
	if err != nil {
		e.emitFailure(ctx, auditEventRegisterFailure, "", "", err)
		return nil, err
	}
	if err := validatePassword(e.config.Password, req.Password); err != nil {
		e.emitFailure(ctx, auditEventRegisterFailure, "", "", err)
		return nil, err
	}
	profile, err := buildProfile(req)
	if err == nil && !allowAdmin && profile.Role() == identity.RoleAdmin {
		err = fmt.Errorf("%w: admin accounts cannot self-register", ErrValidation)
	}
	if err != nil {
		e.emitFailure(ctx, auditEventRegisterFailure, "", "", err)
		return nil, err
	}

	hash, err := e.hashPassword(ctx, req.Password)
	if err != nil {
		return nil, err
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	ident, err := e.identities.Create(sctx, identity.NewIdentity{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Profile:      profile,
		CreatedAt:    e.now(),
	})
	switch {
	case errors.Is(err, identity.ErrEmailTaken):
		e.metricInc(MetricRegisterDuplicate)
		e.emitFailure(ctx, auditEventRegisterFailure, "", "", ErrConflict)
		return nil, ErrConflict
	case errors.Is(err, identity.ErrInvalidProfile):
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	case err != nil:
		return nil, storeErr(err)
	}
	return ident, nil
}

// validateEmail accepts a bare address and returns it normalized.
func validateEmail(raw string) (string, error) {
	email := identity.NormalizeEmail(raw)
	if email == "" || len(email) > maxEmailLength {
		return "", fmt.Errorf("%w: email is required", ErrValidation)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndexByte(email, '@')+1:], ".") {
		return "", fmt.Errorf("%w: email is invalid", ErrValidation)
	}
	return email, nil
}

// validatePassword enforces the configured policy. MaxLength is in bytes
// because bcrypt ignores input beyond 72 bytes.
func validatePassword(cfg PasswordConfig, secret string) error {
	if len([]rune(secret)) < cfg.MinLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, cfg.MinLength)
	}
	if cfg.MaxLength > 0 && len(secret) > cfg.MaxLength {
		return fmt.Errorf("%w: password must be at most %d bytes", ErrValidation, cfg.MaxLength)
	}

	var letter, digit bool
	for _, r := range secret {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if cfg.RequireLetter && !letter {
		return fmt.Errorf("%w: password must contain a letter", ErrValidation)
	}
	if cfg.RequireDigit && !digit {
		return fmt.Errorf("%w: password must contain a digit", ErrValidation)
	}
	return nil
}

func buildProfile(req RegisterRequest) (identity.Profile, error) {
	roleName := req.Role
	if strings.TrimSpace(roleName) == "" {
		roleName = string(identity.RoleReader)
	}
	role, err := identity.ParseRole(roleName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	profile, err := identity.NewProfile(role, identity.ProfileFields{
		FullName: req.FullName,
		PenName:  req.PenName,
		Bio:      req.Bio,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return profile, nil
}
