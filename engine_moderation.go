package inkauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/inkauth/identity"
	"github.com/MrEthical07/inkauth/ledger"
)

// Moderation operations are called by admin code that has already
// authorized actorID. Each one that removes access also revokes every token
// of the target identity with reason admin_action.

// Ban blocks authentication for identityID until until, or permanently when
// until is nil.
func (e *Engine) Ban(ctx context.Context, actorID, identityID string, until *time.Time, reason string) error {
	if until != nil && !until.After(e.now()) {
		return fmt.Errorf("%w: ban expiry must be in the future", ErrValidation)
	}
	if err := e.mutate(ctx, identityID, func(ctx context.Context) error {
		return e.identities.SetBan(ctx, identityID, true, until, reason)
	}); err != nil {
		return err
	}
	if _, err := e.revokeAll(ctx, identityID, ledger.ReasonAdminAction, actorID); err != nil {
		return err
	}

	e.metricInc(MetricAccountBanned)
	e.log.Info().Str("identity_id", identityID).Str("actor_id", actorID).Msg("account banned")
	e.emitStatusChange(ctx, actorID, identityID, "banned", func(m map[string]string) {
		if until != nil {
			m["until"] = until.UTC().Format(time.RFC3339)
		}
		if reason != "" {
			m["reason"] = reason
		}
	})
	return nil
}

// Unban lifts a ban.
func (e *Engine) Unban(ctx context.Context, actorID, identityID string) error {
	if err := e.mutate(ctx, identityID, func(ctx context.Context) error {
		return e.identities.SetBan(ctx, identityID, false, nil, "")
	}); err != nil {
		return err
	}
	e.metricInc(MetricAccountUnbanned)
	e.emitStatusChange(ctx, actorID, identityID, "unbanned", nil)
	return nil
}

// Unlock clears a lockout and the failed-attempt counter.
func (e *Engine) Unlock(ctx context.Context, actorID, identityID string) error {
	if err := e.mutate(ctx, identityID, func(ctx context.Context) error {
		return e.identities.Unlock(ctx, identityID)
	}); err != nil {
		return err
	}
	e.metricInc(MetricAccountUnlocked)
	e.emitStatusChange(ctx, actorID, identityID, "unlocked", nil)
	return nil
}

// Deactivate disables the account and revokes its tokens.
func (e *Engine) Deactivate(ctx context.Context, actorID, identityID string) error {
	if err := e.mutate(ctx, identityID, func(ctx context.Context) error {
		return e.identities.SetActive(ctx, identityID, false)
	}); err != nil {
		return err
	}
	if _, err := e.revokeAll(ctx, identityID, ledger.ReasonAdminAction, actorID); err != nil {
		return err
	}
	e.metricInc(MetricAccountDeactivated)
	e.emitStatusChange(ctx, actorID, identityID, "deactivated", nil)
	return nil
}

// Activate re-enables a deactivated account. Soft-deleted accounts stay
// unusable.
func (e *Engine) Activate(ctx context.Context, actorID, identityID string) error {
	if err := e.mutate(ctx, identityID, func(ctx context.Context) error {
		return e.identities.SetActive(ctx, identityID, true)
	}); err != nil {
		return err
	}
	e.emitStatusChange(ctx, actorID, identityID, "activated", nil)
	return nil
}

// SoftDelete marks the account deleted and revokes its tokens. Identities
// are never removed.
func (e *Engine) SoftDelete(ctx context.Context, actorID, identityID string) error {
	if err := e.mutate(ctx, identityID, func(ctx context.Context) error {
		return e.identities.SoftDelete(ctx, identityID, e.now())
	}); err != nil {
		return err
	}
	if _, err := e.revokeAll(ctx, identityID, ledger.ReasonAdminAction, actorID); err != nil {
		return err
	}
	e.metricInc(MetricAccountDeleted)
	e.emitStatusChange(ctx, actorID, identityID, "deleted", nil)
	return nil
}

// ChangeRole replaces the role and profile of identityID. Tokens are revoked
// so the new role claim is issued on next login.
func (e *Engine) ChangeRole(ctx context.Context, actorID, identityID string, profile identity.Profile) error {
	if profile == nil {
		return fmt.Errorf("%w: profile is required", ErrValidation)
	}
	err := e.mutate(ctx, identityID, func(ctx context.Context) error {
		return e.identities.ChangeRole(ctx, identityID, profile)
	})
	if errors.Is(err, identity.ErrInvalidProfile) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err != nil {
		return err
	}
	if _, err := e.revokeAll(ctx, identityID, ledger.ReasonAdminAction, actorID); err != nil {
		return err
	}

	e.metricInc(MetricRoleChanged)
	e.emitAudit(ctx, auditEventRoleChanged, true, identityID, "", string(ledger.ReasonAdminAction), func() map[string]string {
		return map[string]string{"actor": actorID, "role": string(profile.Role())}
	})
	return nil
}

// RevokeAllForIdentity revokes every persisted token of identityID on
// behalf of actorID and returns how many were revoked.
func (e *Engine) RevokeAllForIdentity(ctx context.Context, identityID, actorID string) (int, error) {
	return e.revokeAll(ctx, identityID, ledger.ReasonAdminAction, actorID)
}

// mutate runs fn under the store timeout and maps store errors.
func (e *Engine) mutate(ctx context.Context, identityID string, fn func(ctx context.Context) error) error {
	if identityID == "" {
		return ErrIdentityNotFound
	}
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	err := fn(sctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, identity.ErrNotFound):
		return ErrIdentityNotFound
	case errors.Is(err, identity.ErrInvalidProfile):
		return err
	default:
		return storeErr(err)
	}
}

func (e *Engine) emitStatusChange(ctx context.Context, actorID, identityID, status string, extra func(map[string]string)) {
	e.emitAudit(ctx, auditEventAccountStatusChange, true, identityID, "", status, func() map[string]string {
		m := map[string]string{"actor": actorID, "status": status}
		if extra != nil {
			extra(m)
		}
		return m
	})
}
