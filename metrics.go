package inkauth

import (
	internalmetrics "github.com/MrEthical07/inkauth/internal/metrics"
)

// MetricID identifies a counter or the authenticate latency histogram.
type MetricID = internalmetrics.ID

const (
	MetricLoginSuccess                 = internalmetrics.LoginSuccess
	MetricLoginFailure                 = internalmetrics.LoginFailure
	MetricLoginRateLimited             = internalmetrics.LoginRateLimited
	MetricLoginLocked                  = internalmetrics.LoginLocked
	MetricAccountLocked                = internalmetrics.AccountLocked
	MetricRegisterSuccess              = internalmetrics.RegisterSuccess
	MetricRegisterDuplicate            = internalmetrics.RegisterDuplicate
	MetricRegisterRateLimited          = internalmetrics.RegisterRateLimited
	MetricRefreshSuccess               = internalmetrics.RefreshSuccess
	MetricRefreshFailure               = internalmetrics.RefreshFailure
	MetricRefreshReuseDetected         = internalmetrics.RefreshReuseDetected
	MetricLogout                       = internalmetrics.Logout
	MetricLogoutAll                    = internalmetrics.LogoutAll
	MetricPasswordChangeSuccess        = internalmetrics.PasswordChangeSuccess
	MetricPasswordChangeInvalidCurrent = internalmetrics.PasswordChangeInvalidCurrent
	MetricPasswordResetRequest         = internalmetrics.PasswordResetRequest
	MetricPasswordResetSuccess         = internalmetrics.PasswordResetSuccess
	MetricPasswordResetFailure         = internalmetrics.PasswordResetFailure
	MetricEmailVerificationRequest     = internalmetrics.EmailVerificationRequest
	MetricEmailVerificationSuccess     = internalmetrics.EmailVerificationSuccess
	MetricEmailVerificationFailure     = internalmetrics.EmailVerificationFailure
	MetricSessionLimitEnforced         = internalmetrics.SessionLimitEnforced
	MetricTokensRevoked                = internalmetrics.TokensRevoked
	MetricAccountBanned                = internalmetrics.AccountBanned
	MetricAccountUnbanned              = internalmetrics.AccountUnbanned
	MetricAccountUnlocked              = internalmetrics.AccountUnlocked
	MetricAccountDeactivated           = internalmetrics.AccountDeactivated
	MetricAccountDeleted               = internalmetrics.AccountDeleted
	MetricRoleChanged                  = internalmetrics.RoleChanged
	MetricAuthenticateSuccess          = internalmetrics.AuthenticateSuccess
	MetricAuthenticateFailure          = internalmetrics.AuthenticateFailure
	MetricAuthenticateLatency          = internalmetrics.AuthenticateLatency

	// MetricCount is the number of defined metric IDs.
	MetricCount = internalmetrics.Count
	// MetricBucketCount is the number of latency histogram buckets.
	MetricBucketCount = internalmetrics.BucketCount
)

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricAdd(id MetricID, n int) {
	if e == nil || e.metrics == nil || n <= 0 {
		return
	}
	e.metrics.Add(id, uint64(n))
}
