package inkauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/inkauth/identity"
	"github.com/MrEthical07/inkauth/internal/rate"
)

// Login authenticates email and password and opens a new session.
//
// Unknown emails and wrong passwords both fail with ErrInvalidCredentials
// after one hash comparison. A locked account fails with ErrAccountLocked
// before the password is checked, and a banned one with ErrAccountBanned.
// Each wrong password increments the failed-attempt counter; reaching
// Lockout.MaxAttempts locks the account for Lockout.Duration.
func (e *Engine) Login(ctx context.Context, email, secret string, device Device) (*AuthResult, error) {
	ctx, device = withDevice(ctx, device)

	if err := e.allow(ctx, rate.ActionLogin, device.IP); err != nil {
		if errors.Is(err, ErrRateLimited) {
			e.metricInc(MetricLoginRateLimited)
			e.emitRateLimit(ctx, "login")
		}
		return nil, err
	}
	if email == "" || secret == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	sctx, cancel := e.storeCtx(ctx)
	ident, err := e.identities.GetByEmail(sctx, email)
	cancel()
	if err != nil {
		if !errors.Is(err, identity.ErrNotFound) {
			return nil, storeErr(err)
		}
		// Unknown email: spend the same hashing work as a real check.
		if _, verr := e.verifyPassword(ctx, secret, e.dummyHash); verr != nil && errors.Is(verr, ErrServiceUnavailable) {
			return nil, verr
		}
		e.metricInc(MetricLoginFailure)
		e.emitFailure(ctx, auditEventLoginFailure, "", "", ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	now := e.now()
	if ident.IsLocked(now) {
		e.metricInc(MetricLoginLocked)
		e.emitFailure(ctx, auditEventLoginFailure, ident.ID, "", ErrAccountLocked)
		return nil, ErrAccountLocked
	}
	if ident.IsBanned(now) {
		e.metricInc(MetricLoginFailure)
		e.emitFailure(ctx, auditEventLoginFailure, ident.ID, "", ErrAccountBanned)
		return nil, ErrAccountBanned
	}

	ok, err := e.verifyPassword(ctx, secret, ident.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, e.recordFailure(ctx, ident)
	}

	if !ident.IsUsable() {
		e.metricInc(MetricLoginFailure)
		e.emitFailure(ctx, auditEventLoginFailure, ident.ID, "", ErrAccountInactive)
		return nil, ErrAccountInactive
	}

	sctx, cancel = e.storeCtx(ctx)
	err = e.identities.RecordLoginSuccess(sctx, ident.ID, now)
	cancel()
	if err != nil {
		return nil, storeErr(err)
	}
	ident.FailedAttempts = 0
	ident.LockUntil = nil
	ident.LastLoginAt = &now
	ident.LastActiveAt = now

	e.upgradeHash(ctx, ident, secret)

	pair, err := e.startSession(ctx, ident, device)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, ident.ID, pair.SessionID, "", nil)

	return &AuthResult{Identity: ident, Tokens: pair}, nil
}

// recordFailure bumps the failed-attempt counter and reports a lockout when
// this attempt crossed the threshold. It always returns
// ErrInvalidCredentials unless the store is unreachable.
func (e *Engine) recordFailure(ctx context.Context, ident *identity.Identity) error {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	failure, err := e.identities.RecordLoginFailure(sctx, ident.ID, e.config.Lockout.MaxAttempts, e.config.Lockout.Duration, e.now())
	if err != nil {
		return storeErr(err)
	}

	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, ident.ID, "", string(CodeInvalidCredentials), func() map[string]string {
		return map[string]string{"attempts": fmt.Sprint(failure.Attempts)}
	})

	if failure.Locked {
		e.metricInc(MetricAccountLocked)
		e.log.Warn().
			Str("identity_id", ident.ID).
			Str("ip", clientIPFromContext(ctx)).
			Int("attempts", failure.Attempts).
			Time("lock_until", *failure.LockUntil).
			Msg("account locked after repeated login failures")
		e.emitAudit(ctx, auditEventAccountLocked, true, ident.ID, "", "max_login_attempts", func() map[string]string {
			return map[string]string{
				"attempts":   fmt.Sprint(failure.Attempts),
				"lock_until": failure.LockUntil.UTC().Format("2006-01-02T15:04:05Z07:00"),
			}
		})
	}
	return ErrInvalidCredentials
}

// upgradeHash re-hashes secret when the stored hash uses weaker parameters
// or another algorithm. PasswordChangedAt is kept so live tokens survive.
func (e *Engine) upgradeHash(ctx context.Context, ident *identity.Identity, secret string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	needs, err := e.hasher.NeedsUpgrade(ident.PasswordHash)
	if err != nil || !needs {
		return
	}
	hash, err := e.hashPassword(ctx, secret)
	if err != nil {
		e.log.Warn().Err(err).Str("identity_id", ident.ID).Msg("password rehash failed")
		return
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.identities.UpdatePassword(sctx, ident.ID, hash, ident.PasswordChangedAt); err != nil {
		e.log.Warn().Err(err).Str("identity_id", ident.ID).Msg("password rehash not persisted")
		return
	}
	ident.PasswordHash = hash
}
