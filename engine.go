package inkauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/inkauth/identity"
	internalaudit "github.com/MrEthical07/inkauth/internal/audit"
	internalmetrics "github.com/MrEthical07/inkauth/internal/metrics"
	"github.com/MrEthical07/inkauth/internal/rate"
	"github.com/MrEthical07/inkauth/jwt"
	"github.com/MrEthical07/inkauth/ledger"
	"github.com/MrEthical07/inkauth/password"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Engine is the session manager and request gate. It is the only component
// that mints tokens or changes credential state. Build it with [New].
type Engine struct {
	config       Config
	identities   identity.Store
	ledger       *ledger.Store
	tokens       *jwt.Manager
	hasher       *password.Pool
	limiter      *rate.Limiter
	audit        *internalaudit.Dispatcher
	metrics      *internalmetrics.Metrics
	log          zerolog.Logger
	resetNotify  ResetNotifier
	verifyNotify VerificationNotifier
	now          func() time.Time

	// dummyHash is compared against for unknown emails so both login
	// failure paths cost one hash verification.
	dummyHash string
}

// Close drains the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Ledger exposes the token ledger for hygiene tasks such as the sweeper.
func (e *Engine) Ledger() *ledger.Store {
	return e.ledger
}

// AuditDropped returns the number of audit events discarded because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of every counter.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Ping checks the token ledger backend.
func (e *Engine) Ping(ctx context.Context) error {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.ledger.Ping(ctx); err != nil {
		return storeErr(err)
	}
	return nil
}

func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.Store.OperationTimeout)
}

// storeErr maps backend and timeout failures to ErrServiceUnavailable.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
}

func rateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		var limitErr *rate.LimitError
		if errors.As(err, &limitErr) {
			return &RateLimitError{RetryAfter: limitErr.RetryAfter}
		}
		return ErrRateLimited
	default:
		return storeErr(err)
	}
}

func (e *Engine) allow(ctx context.Context, action rate.Action, subject string) error {
	if subject == "" {
		return nil
	}
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return rateErr(e.limiter.Allow(ctx, action, subject))
}

// loadIdentity fetches an identity, mapping absence to notFound.
func (e *Engine) loadIdentity(ctx context.Context, id string, notFound error) (*identity.Identity, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	ident, err := e.identities.GetByID(ctx, id)
	switch {
	case err == nil:
		return ident, nil
	case errors.Is(err, identity.ErrNotFound):
		return nil, notFound
	default:
		return nil, storeErr(err)
	}
}

// issueSession mints an access/refresh pair for sessionID and persists the
// refresh token.
func (e *Engine) issueSession(ctx context.Context, ident *identity.Identity, sessionID string, device Device) (TokenPair, error) {
	access, accessExp, err := e.tokens.Issue(jwt.KindAccess, ident.ID, string(ident.Role), sessionID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	refresh, refreshExp, err := e.tokens.Issue(jwt.KindRefresh, ident.ID, string(ident.Role), sessionID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if _, err := e.ledger.IssueRefresh(sctx, ident.ID, sessionID, refresh, refreshExp, device); err != nil {
		return TokenPair{}, storeErr(err)
	}

	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
		SessionID:        sessionID,
	}, nil
}

// startSession opens a new session and enforces the concurrent session cap.
func (e *Engine) startSession(ctx context.Context, ident *identity.Identity, device Device) (TokenPair, error) {
	pair, err := e.issueSession(ctx, ident, uuid.NewString(), device)
	if err != nil {
		return TokenPair{}, err
	}
	e.enforceSessionCap(ctx, ident.ID)
	return pair, nil
}

// enforceSessionCap revokes the least recently used sessions beyond the
// configured maximum. Failures are logged; the new session stands.
func (e *Engine) enforceSessionCap(ctx context.Context, identityID string) {
	max := e.config.Session.MaxConcurrentSessions
	if max <= 0 {
		return
	}
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	n, err := e.ledger.CapConcurrentSessions(sctx, identityID, max)
	if err != nil {
		e.log.Warn().Err(err).Str("identity_id", identityID).Msg("session cap enforcement failed")
		return
	}
	if n == 0 {
		return
	}
	e.metricInc(MetricSessionLimitEnforced)
	e.metricAdd(MetricTokensRevoked, n)
	e.emitAudit(ctx, auditEventSessionLimitEnforced, true, identityID, "", string(ledger.ReasonSessionLimit), func() map[string]string {
		return map[string]string{"revoked": fmt.Sprint(n)}
	})
}

// revokeAll revokes every persisted token of identityID.
func (e *Engine) revokeAll(ctx context.Context, identityID string, reason ledger.Reason, actor string) (int, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	n, err := e.ledger.RevokeAllForIdentity(sctx, identityID, reason, actor)
	if err != nil {
		return 0, storeErr(err)
	}
	e.metricAdd(MetricTokensRevoked, n)
	e.emitAudit(ctx, auditEventTokensRevoked, true, identityID, "", string(reason), func() map[string]string {
		return map[string]string{"revoked": fmt.Sprint(n), "actor": actor}
	})
	return n, nil
}

// hashPassword runs the configured hasher on the bounded pool.
func (e *Engine) hashPassword(ctx context.Context, secret string) (string, error) {
	hash, err := e.hasher.Hash(ctx, secret)
	if err != nil {
		if ctx.Err() != nil {
			return "", storeErr(err)
		}
		return "", fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return hash, nil
}

func (e *Engine) verifyPassword(ctx context.Context, secret, encoded string) (bool, error) {
	ok, err := e.hasher.Verify(ctx, secret, encoded)
	if err != nil {
		if ctx.Err() != nil {
			return false, storeErr(err)
		}
		return false, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return ok, nil
}
