package inkauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/inkauth/identity"
	"github.com/MrEthical07/inkauth/internal/rate"
	"github.com/MrEthical07/inkauth/jwt"
	"github.com/MrEthical07/inkauth/ledger"
)

// Refresh exchanges a refresh token for a new access token.
//
// With Session.RotateRefreshTokens the presented token is revoked as
// superseded and a new refresh token for the same session is returned.
// Presenting a superseded token again is treated as theft: every token of
// the identity is revoked and ErrInvalidToken is returned.
func (e *Engine) Refresh(ctx context.Context, refreshToken string, device Device) (*RefreshResult, error) {
	ctx, device = withDevice(ctx, device)

	if err := e.allow(ctx, rate.ActionRefresh, device.IP); err != nil {
		if errors.Is(err, ErrRateLimited) {
			e.emitRateLimit(ctx, "refresh")
		}
		return nil, err
	}
	if refreshToken == "" {
		return nil, e.refreshFailed(ctx, "", "", ErrInvalidToken)
	}

	claims, err := e.tokens.Verify(jwt.KindRefresh, refreshToken)
	if err != nil {
		return nil, e.refreshFailed(ctx, "", "", ErrInvalidToken)
	}

	sctx, cancel := e.storeCtx(ctx)
	rec, err := e.ledger.FindValid(sctx, refreshToken, ledger.TypeRefresh)
	cancel()
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		if rerr := e.detectReuse(ctx, refreshToken); rerr != nil {
			return nil, rerr
		}
		return nil, e.refreshFailed(ctx, claims.UID, claims.SID, ErrInvalidToken)
	case err != nil:
		return nil, storeErr(err)
	}
	if rec.IdentityID != claims.UID || rec.SessionID != claims.SID {
		return nil, e.refreshFailed(ctx, claims.UID, claims.SID, ErrInvalidToken)
	}

	ident, err := e.loadIdentity(ctx, rec.IdentityID, ErrInvalidToken)
	if err != nil {
		return nil, e.refreshFailed(ctx, rec.IdentityID, rec.SessionID, err)
	}
	if err := e.checkStanding(ident); err != nil {
		return nil, e.refreshFailed(ctx, ident.ID, rec.SessionID, err)
	}

	sctx, cancel = e.storeCtx(ctx)
	err = e.ledger.RecordUse(sctx, rec)
	cancel()
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		// Revoked between lookup and use by a concurrent refresh.
		return nil, e.refreshFailed(ctx, ident.ID, rec.SessionID, ErrInvalidToken)
	case err != nil:
		return nil, storeErr(err)
	}

	out := &RefreshResult{Identity: ident, SessionID: rec.SessionID}
	if e.config.Session.RotateRefreshTokens {
		pair, err := e.rotate(ctx, ident, rec, device)
		if err != nil {
			return nil, err
		}
		out.AccessToken, out.AccessExpiresAt = pair.AccessToken, pair.AccessExpiresAt
		out.RefreshToken, out.RefreshExpiresAt = pair.RefreshToken, pair.RefreshExpiresAt
	} else {
		access, exp, err := e.tokens.Issue(jwt.KindAccess, ident.ID, string(ident.Role), rec.SessionID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInternal, err)
		}
		out.AccessToken, out.AccessExpiresAt = access, exp
	}

	e.touch(ctx, ident)
	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, ident.ID, rec.SessionID, "", nil)

	return out, nil
}

// rotate supersedes rec and issues a new pair in the same session. Losing a
// race against a concurrent refresh of the same token fails without
// triggering reuse handling.
func (e *Engine) rotate(ctx context.Context, ident *identity.Identity, rec *ledger.Record, device Device) (TokenPair, error) {
	sctx, cancel := e.storeCtx(ctx)
	revoked, err := e.ledger.Revoke(sctx, rec, ledger.ReasonSuperseded, ident.ID)
	cancel()
	if err != nil {
		return TokenPair{}, storeErr(err)
	}
	if !revoked {
		return TokenPair{}, e.refreshFailed(ctx, ident.ID, rec.SessionID, ErrInvalidToken)
	}
	return e.issueSession(ctx, ident, rec.SessionID, device)
}

// detectReuse revokes everything when a superseded refresh token is
// replayed. It returns nil when the token was simply invalid.
func (e *Engine) detectReuse(ctx context.Context, token string) error {
	if !e.config.Session.RotateRefreshTokens {
		return nil
	}
	sctx, cancel := e.storeCtx(ctx)
	rec, err := e.ledger.Lookup(sctx, token)
	cancel()
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil
		}
		return storeErr(err)
	}
	if rec.Type != ledger.TypeRefresh || rec.RevocationReason != ledger.ReasonSuperseded {
		return nil
	}

	e.metricInc(MetricRefreshReuseDetected)
	e.log.Warn().
		Str("identity_id", rec.IdentityID).
		Str("session_id", rec.SessionID).
		Str("ip", clientIPFromContext(ctx)).
		Msg("superseded refresh token replayed; revoking all tokens")
	e.emitAudit(ctx, auditEventRefreshReuseDetected, false, rec.IdentityID, rec.SessionID, string(ledger.ReasonReuseDetected), nil)

	if _, err := e.revokeAll(ctx, rec.IdentityID, ledger.ReasonReuseDetected, "system"); err != nil {
		return err
	}
	return ErrInvalidToken
}

func (e *Engine) refreshFailed(ctx context.Context, identityID, sessionID string, err error) error {
	e.metricInc(MetricRefreshFailure)
	e.emitFailure(ctx, auditEventRefreshInvalid, identityID, sessionID, err)
	return err
}

// checkStanding rejects identities that may not hold a session.
func (e *Engine) checkStanding(ident *identity.Identity) error {
	now := e.now()
	switch {
	case !ident.IsUsable():
		return ErrAccountInactive
	case ident.IsBanned(now):
		return ErrAccountBanned
	case ident.IsLocked(now):
		return ErrAccountLocked
	}
	return nil
}
