package inkauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/inkauth/identity"
	"github.com/MrEthical07/inkauth/ledger"
)

// RequestEmailVerification issues a verification token for identityID and
// hands it to the VerificationNotifier. Already verified identities are a
// no-op.
func (e *Engine) RequestEmailVerification(ctx context.Context, identityID string) error {
	ident, err := e.loadIdentity(ctx, identityID, ErrIdentityNotFound)
	if err != nil {
		return err
	}
	if ident.EmailVerifiedAt != nil {
		return nil
	}
	if err := e.checkStanding(ident); err != nil {
		return err
	}

	token, expiresAt, err := e.issueOneTime(ctx, ident.ID, ledger.TypeVerification, e.config.Verification.TokenTTL)
	if err != nil {
		return err
	}
	e.metricInc(MetricEmailVerificationRequest)

	if e.verifyNotify == nil {
		e.log.Warn().Str("identity_id", ident.ID).Msg("email verification requested but no verification notifier is configured")
	} else if err := e.verifyNotify.SendEmailVerification(ctx, ident, token, expiresAt); err != nil {
		e.log.Error().Err(err).Str("identity_id", ident.ID).Msg("email verification delivery failed")
		return fmt.Errorf("%w: verification delivery failed", ErrServiceUnavailable)
	}

	e.emitAudit(ctx, auditEventEmailVerificationRequest, true, ident.ID, "", "", nil)
	return nil
}

// VerifyEmail redeems a verification token and marks the owner's email as
// verified.
func (e *Engine) VerifyEmail(ctx context.Context, token string) (*identity.Identity, error) {
	if token == "" {
		return nil, e.verifyFailed(ctx, "", ErrInvalidToken)
	}
	rec, err := e.redeem(ctx, token, ledger.TypeVerification, "")
	if err != nil {
		return nil, e.verifyFailed(ctx, "", err)
	}

	now := e.now()
	sctx, cancel := e.storeCtx(ctx)
	err = e.identities.MarkEmailVerified(sctx, rec.IdentityID, now)
	cancel()
	switch {
	case errors.Is(err, identity.ErrNotFound):
		return nil, e.verifyFailed(ctx, rec.IdentityID, ErrInvalidToken)
	case err != nil:
		return nil, storeErr(err)
	}

	ident, err := e.loadIdentity(ctx, rec.IdentityID, ErrInvalidToken)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, auditEventEmailVerificationConfirm, true, rec.IdentityID, "", "", nil)
	return ident, nil
}

func (e *Engine) verifyFailed(ctx context.Context, identityID string, err error) error {
	e.metricInc(MetricEmailVerificationFailure)
	e.emitFailure(ctx, auditEventEmailVerificationConfirm, identityID, "", err)
	return err
}
