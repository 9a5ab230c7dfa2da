package inkauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/inkauth/ledger"
)

// Sessions lists the active sessions of identityID, most recently used
// first.
func (e *Engine) Sessions(ctx context.Context, identityID string) ([]SessionInfo, error) {
	if identityID == "" {
		return nil, ErrUnauthenticated
	}
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	recs, err := e.ledger.ActiveSessions(sctx, identityID)
	if err != nil {
		return nil, storeErr(err)
	}
	out := make([]SessionInfo, 0, len(recs))
	for _, r := range recs {
		out = append(out, SessionInfo{
			SessionID:  r.SessionID,
			UserAgent:  r.UserAgent,
			IP:         r.IP,
			IssuedAt:   r.IssuedAt,
			LastUsedAt: r.LastUsedAt,
			ExpiresAt:  r.ExpiresAt,
			UseCount:   r.UseCount,
		})
	}
	return out, nil
}

// RevokeSession ends one session of identityID, for example from a device
// list. A session that does not exist fails with ErrResourceNotFound.
func (e *Engine) RevokeSession(ctx context.Context, identityID, sessionID string) error {
	if identityID == "" {
		return ErrUnauthenticated
	}
	sctx, cancel := e.storeCtx(ctx)
	n, err := e.ledger.RevokeSession(sctx, identityID, sessionID, ledger.ReasonLogout)
	cancel()
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return ErrResourceNotFound
		}
		return storeErr(err)
	}
	if n == 0 {
		return ErrResourceNotFound
	}
	e.metricAdd(MetricTokensRevoked, n)
	e.emitAudit(ctx, auditEventLogoutSession, true, identityID, sessionID, string(ledger.ReasonLogout), nil)
	return nil
}
