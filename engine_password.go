package inkauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/inkauth/identity"
	"github.com/MrEthical07/inkauth/internal"
	"github.com/MrEthical07/inkauth/internal/rate"
	"github.com/MrEthical07/inkauth/ledger"
)

// ChangePassword replaces the password of an authenticated identity and
// revokes every token it holds, forcing re-authentication everywhere.
// Access tokens issued before the change are rejected by Authenticate.
func (e *Engine) ChangePassword(ctx context.Context, identityID, current, next string) error {
	ident, err := e.loadIdentity(ctx, identityID, ErrIdentityNotFound)
	if err != nil {
		return err
	}

	ok, err := e.verifyPassword(ctx, current, ident.PasswordHash)
	if err != nil {
		return err
	}
	if !ok {
		e.metricInc(MetricPasswordChangeInvalidCurrent)
		e.emitFailure(ctx, auditEventPasswordChangeFailure, identityID, "", ErrInvalidCredentials)
		return ErrInvalidCredentials
	}
	if err := validatePassword(e.config.Password, next); err != nil {
		e.emitFailure(ctx, auditEventPasswordChangeFailure, identityID, "", err)
		return err
	}
	if next == current {
		err := fmt.Errorf("%w: new password must differ from the current one", ErrValidation)
		e.emitFailure(ctx, auditEventPasswordChangeFailure, identityID, "", err)
		return err
	}

	if err := e.replacePassword(ctx, identityID, next); err != nil {
		return err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, identityID, "", string(ledger.ReasonPasswordChange), nil)
	return nil
}

// RequestPasswordReset starts a reset for email. The result is identical
// whether or not the email is registered. For a usable account, earlier
// reset tokens are revoked and a new one is handed to the ResetNotifier; it
// is never returned to the caller.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (*ResetRequestResult, error) {
	result := &ResetRequestResult{Message: ResetRequestMessage}

	if err := e.allow(ctx, rate.ActionResetRequest, clientIPFromContext(ctx)); err != nil {
		if errors.Is(err, ErrRateLimited) {
			e.emitRateLimit(ctx, "password_reset")
		}
		return nil, err
	}
	e.metricInc(MetricPasswordResetRequest)

	sctx, cancel := e.storeCtx(ctx)
	ident, err := e.identities.GetByEmail(sctx, email)
	cancel()
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", "", "unknown_email", nil)
			return result, nil
		}
		return nil, storeErr(err)
	}
	if !ident.IsUsable() || ident.IsBanned(e.now()) {
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, ident.ID, "", "account_not_eligible", nil)
		return result, nil
	}

	token, expiresAt, err := e.issueOneTime(ctx, ident.ID, ledger.TypeReset, e.config.Reset.TokenTTL)
	if err != nil {
		return nil, err
	}

	if e.resetNotify == nil {
		e.log.Warn().Str("identity_id", ident.ID).Msg("password reset requested but no reset notifier is configured")
	} else if err := e.resetNotify.SendPasswordReset(ctx, ident, token, expiresAt); err != nil {
		e.log.Error().Err(err).Str("identity_id", ident.ID).Msg("password reset delivery failed")
	}

	e.emitAudit(ctx, auditEventPasswordResetRequest, true, ident.ID, "", "", nil)
	return result, nil
}

// ResetPassword redeems a reset token. The token must be valid and belong
// to email; every other case fails with the same ErrInvalidToken. On
// success the password is replaced, lockout is cleared and all tokens of
// the identity are revoked.
func (e *Engine) ResetPassword(ctx context.Context, email, token, newPassword string) error {
	if err := validatePassword(e.config.Password, newPassword); err != nil {
		return err
	}
	if token == "" {
		return e.resetFailed(ctx, "", ErrInvalidToken)
	}

	sctx, cancel := e.storeCtx(ctx)
	ident, err := e.identities.GetByEmail(sctx, email)
	cancel()
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return e.resetFailed(ctx, "", ErrInvalidToken)
		}
		return storeErr(err)
	}

	rec, err := e.redeem(ctx, token, ledger.TypeReset, ident.ID)
	if err != nil {
		return e.resetFailed(ctx, ident.ID, err)
	}

	if err := e.replacePassword(ctx, rec.IdentityID, newPassword); err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, ident.ID, "", string(ledger.ReasonPasswordChange), nil)
	return nil
}

func (e *Engine) resetFailed(ctx context.Context, identityID string, err error) error {
	e.metricInc(MetricPasswordResetFailure)
	e.emitFailure(ctx, auditEventPasswordResetConfirm, identityID, "", err)
	return err
}

// replacePassword hashes and stores next, then revokes every token of the
// identity. The store also clears lockout state.
func (e *Engine) replacePassword(ctx context.Context, identityID, next string) error {
	hash, err := e.hashPassword(ctx, next)
	if err != nil {
		return err
	}

	sctx, cancel := e.storeCtx(ctx)
	err = e.identities.UpdatePassword(sctx, identityID, hash, e.now())
	cancel()
	switch {
	case errors.Is(err, identity.ErrNotFound):
		return ErrIdentityNotFound
	case err != nil:
		return storeErr(err)
	}

	_, err = e.revokeAll(ctx, identityID, ledger.ReasonPasswordChange, identityID)
	return err
}

// issueOneTime revokes outstanding tokens of typ and persists a fresh
// random one.
func (e *Engine) issueOneTime(ctx context.Context, identityID string, typ ledger.TokenType, ttl time.Duration) (string, time.Time, error) {
	token, err := internal.NewOpaqueToken()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	expiresAt := e.now().Add(ttl)

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if _, err := e.ledger.RevokeAllOfType(sctx, identityID, typ, ledger.ReasonSuperseded); err != nil {
		return "", time.Time{}, storeErr(err)
	}
	if _, err := e.ledger.Issue(sctx, ledger.Issue{
		Type:       typ,
		IdentityID: identityID,
		Token:      token,
		ExpiresAt:  expiresAt,
		Device:     DeviceFromContext(ctx),
	}); err != nil {
		return "", time.Time{}, storeErr(err)
	}
	return token, expiresAt, nil
}

// redeem consumes a single-use token. owner, when set, must match the
// token's identity.
func (e *Engine) redeem(ctx context.Context, token string, typ ledger.TokenType, owner string) (*ledger.Record, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	rec, err := e.ledger.FindValid(sctx, token, typ)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return nil, ErrInvalidToken
	case err != nil:
		return nil, storeErr(err)
	}
	if owner != "" && rec.IdentityID != owner {
		return nil, ErrInvalidToken
	}

	revoked, err := e.ledger.Revoke(sctx, rec, ledger.ReasonConsumed, rec.IdentityID)
	if err != nil {
		return nil, storeErr(err)
	}
	if !revoked {
		return nil, ErrInvalidToken
	}
	return rec, nil
}
