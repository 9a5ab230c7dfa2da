package internaldefs

import (
	"github.com/MrEthical07/inkauth"
)

// Namespace prefixes every exported metric name.
const Namespace = "inkauth"

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   inkauth.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   inkauth.MetricID
	Name string
	Help string
}

func counter(id inkauth.MetricID, stem, help string) CounterDef {
	return CounterDef{ID: id, Name: Namespace + "_" + stem + "_total", Help: help}
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	counter(inkauth.MetricLoginSuccess, "login_success", "Successful logins."),
	counter(inkauth.MetricLoginFailure, "login_failure", "Failed logins."),
	counter(inkauth.MetricLoginRateLimited, "login_rate_limited", "Login attempts rejected by the rate limiter."),
	counter(inkauth.MetricLoginLocked, "login_locked", "Login attempts against a locked account."),
	counter(inkauth.MetricAccountLocked, "account_locked", "Accounts locked after repeated failures."),
	counter(inkauth.MetricRegisterSuccess, "register_success", "Successful registrations."),
	counter(inkauth.MetricRegisterDuplicate, "register_duplicate", "Registrations rejected for a taken email."),
	counter(inkauth.MetricRegisterRateLimited, "register_rate_limited", "Registrations rejected by the rate limiter."),
	counter(inkauth.MetricRefreshSuccess, "refresh_success", "Successful token refreshes."),
	counter(inkauth.MetricRefreshFailure, "refresh_failure", "Failed token refreshes."),
	counter(inkauth.MetricRefreshReuseDetected, "refresh_reuse_detected", "Replays of superseded refresh tokens."),
	counter(inkauth.MetricLogout, "logout", "Single-session logouts."),
	counter(inkauth.MetricLogoutAll, "logout_all", "Logouts from every session."),
	counter(inkauth.MetricPasswordChangeSuccess, "password_change_success", "Successful password changes."),
	counter(inkauth.MetricPasswordChangeInvalidCurrent, "password_change_invalid_current", "Password changes with a wrong current password."),
	counter(inkauth.MetricPasswordResetRequest, "password_reset_request", "Password reset requests."),
	counter(inkauth.MetricPasswordResetSuccess, "password_reset_success", "Completed password resets."),
	counter(inkauth.MetricPasswordResetFailure, "password_reset_failure", "Rejected password reset confirmations."),
	counter(inkauth.MetricEmailVerificationRequest, "email_verification_request", "Email verification tokens issued."),
	counter(inkauth.MetricEmailVerificationSuccess, "email_verification_success", "Verified emails."),
	counter(inkauth.MetricEmailVerificationFailure, "email_verification_failure", "Rejected verification tokens."),
	counter(inkauth.MetricSessionLimitEnforced, "session_limit_enforced", "Sessions revoked by the concurrent session cap."),
	counter(inkauth.MetricTokensRevoked, "tokens_revoked", "Persisted tokens revoked."),
	counter(inkauth.MetricAccountBanned, "account_banned", "Ban operations."),
	counter(inkauth.MetricAccountUnbanned, "account_unbanned", "Unban operations."),
	counter(inkauth.MetricAccountUnlocked, "account_unlocked", "Manual unlock operations."),
	counter(inkauth.MetricAccountDeactivated, "account_deactivated", "Deactivation operations."),
	counter(inkauth.MetricAccountDeleted, "account_deleted", "Soft-delete operations."),
	counter(inkauth.MetricRoleChanged, "role_changed", "Role changes."),
	counter(inkauth.MetricAuthenticateSuccess, "authenticate_success", "Requests admitted by the request gate."),
	counter(inkauth.MetricAuthenticateFailure, "authenticate_failure", "Requests rejected by the request gate."),
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: inkauth.MetricAuthenticateLatency, Name: Namespace + "_authenticate_latency_seconds", Help: "Request gate latency."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = Namespace + "_audit_dropped_total"

// AuditDroppedHelp describes [AuditDroppedName].
const AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."

// HistogramBounds are the upper bounds, in seconds, of the engine's
// latency buckets.
var HistogramBounds = [inkauth.MetricBucketCount]string{
	"0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "+Inf",
}

// HistogramBoundSuffix spells [HistogramBounds] for instrument names.
var HistogramBoundSuffix = [inkauth.MetricBucketCount]string{
	"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf",
}

// Cumulative copies raw per-bucket counts into a fixed array and turns them
// into cumulative counts. Missing buckets count as zero.
func Cumulative(raw []uint64) [inkauth.MetricBucketCount]uint64 {
	var out [inkauth.MetricBucketCount]uint64
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
