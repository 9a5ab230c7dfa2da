package inkauth

import (
	"context"
)

const (
	auditEventRegisterSuccess          = "register_success"
	auditEventRegisterFailure          = "register_failure"
	auditEventLoginSuccess             = "login_success"
	auditEventLoginFailure             = "login_failure"
	auditEventAccountLocked            = "account_locked"
	auditEventRefreshSuccess           = "refresh_success"
	auditEventRefreshInvalid           = "refresh_invalid"
	auditEventRefreshReuseDetected     = "refresh_reuse_detected"
	auditEventLogoutSession            = "logout_session"
	auditEventLogoutAll                = "logout_all"
	auditEventPasswordChangeSuccess    = "password_change_success"
	auditEventPasswordChangeFailure    = "password_change_failure"
	auditEventPasswordResetRequest     = "password_reset_request"
	auditEventPasswordResetConfirm     = "password_reset_confirm"
	auditEventEmailVerificationRequest = "email_verification_request"
	auditEventEmailVerificationConfirm = "email_verification_confirm"
	auditEventSessionLimitEnforced     = "session_limit_enforced"
	auditEventTokensRevoked            = "tokens_revoked"
	auditEventAccountStatusChange      = "account_status_change"
	auditEventRoleChanged              = "role_changed"
	auditEventAuthenticateFailure      = "authenticate_failure"
	auditEventRateLimited              = "rate_limit_triggered"
)

// emitAudit queues a security event. reason is an error code or revocation
// reason; it never carries secrets or raw tokens.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	identityID string,
	sessionID string,
	reason string,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	e.audit.Emit(ctx, AuditEvent{
		Timestamp:  e.now().UTC(),
		EventType:  eventType,
		IdentityID: identityID,
		SessionID:  sessionID,
		IP:         clientIPFromContext(ctx),
		UserAgent:  userAgentFromContext(ctx),
		Success:    success,
		Reason:     reason,
		Metadata:   metadata,
	})
}

// emitFailure records a failed operation, using the error's stable code as
// the reason.
func (e *Engine) emitFailure(ctx context.Context, eventType, identityID, sessionID string, err error) {
	e.emitAudit(ctx, eventType, false, identityID, sessionID, string(ErrorCode(err)), nil)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope string) {
	e.emitAudit(ctx, auditEventRateLimited, false, "", "", string(CodeRateLimited), func() map[string]string {
		return map[string]string{"scope": scope}
	})
}
