package inkauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/inkauth/jwt"
	"github.com/MrEthical07/inkauth/ledger"
)

// Logout blacklists accessToken for its remaining lifetime and revokes the
// refresh token of sessionID. An empty sessionID falls back to the session
// claim of accessToken.
func (e *Engine) Logout(ctx context.Context, identityID, accessToken, sessionID string) error {
	if identityID == "" {
		return ErrUnauthenticated
	}

	if accessToken != "" {
		claims, err := e.verifyAccess(accessToken)
		if err != nil {
			return err
		}
		if claims != nil {
			if claims.UID != identityID {
				return ErrForbidden
			}
			if err := e.blacklist(ctx, accessToken, claims, ledger.ReasonLogout); err != nil {
				return err
			}
			if sessionID == "" {
				sessionID = claims.SID
			}
		}
	}

	revoked := 0
	if sessionID != "" {
		sctx, cancel := e.storeCtx(ctx)
		n, err := e.ledger.RevokeSession(sctx, identityID, sessionID, ledger.ReasonLogout)
		cancel()
		if err != nil {
			return storeErr(err)
		}
		revoked = n
	}

	e.metricInc(MetricLogout)
	e.metricAdd(MetricTokensRevoked, revoked)
	e.emitAudit(ctx, auditEventLogoutSession, true, identityID, sessionID, string(ledger.ReasonLogout), nil)
	return nil
}

// LogoutAll revokes every persisted token of identityID. Access tokens
// already handed out stay valid until they expire unless blacklisted with
// [Engine.RevokeAccessToken].
func (e *Engine) LogoutAll(ctx context.Context, identityID string) error {
	if identityID == "" {
		return ErrUnauthenticated
	}
	if _, err := e.revokeAll(ctx, identityID, ledger.ReasonLogoutAll, identityID); err != nil {
		return err
	}
	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, identityID, "", string(ledger.ReasonLogoutAll), nil)
	return nil
}

// RevokeAccessToken blacklists accessToken for its remaining lifetime.
// Expired or malformed tokens need no blacklist entry and are ignored.
func (e *Engine) RevokeAccessToken(ctx context.Context, accessToken string) error {
	claims, err := e.verifyAccess(accessToken)
	if err != nil || claims == nil {
		return err
	}
	return e.blacklist(ctx, accessToken, claims, ledger.ReasonLogout)
}

// verifyAccess returns the verified claims, or nil when the token could not
// be verified and therefore needs no blacklist entry.
func (e *Engine) verifyAccess(token string) (*jwt.Claims, error) {
	claims, err := e.tokens.Verify(jwt.KindAccess, token)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) || errors.Is(err, jwt.ErrMalformed) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return claims, nil
}

// blacklist keeps the entry until the token fails verification on its own,
// which is exp plus the verification leeway.
func (e *Engine) blacklist(ctx context.Context, token string, claims *jwt.Claims, reason ledger.Reason) error {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	until := claims.ExpiresAt.Time.Add(e.config.JWT.Leeway)
	if err := e.ledger.Blacklist(sctx, token, claims.UID, reason, until); err != nil {
		return storeErr(err)
	}
	return nil
}
