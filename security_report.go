package inkauth

import (
	"bytes"

	"github.com/MrEthical07/inkauth/internal/security"
)

// SecurityReport is the posture summary returned by [Engine.SecurityReport].
type SecurityReport = security.Report

// SecurityReport describes the effective security settings, with warnings
// for anything weaker than the defaults. It holds no secrets.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	cfg := e.config
	return security.BuildReport(security.ReportInput{
		SigningAlgorithm:       "HS256",
		AccessTTL:              cfg.JWT.AccessTTL,
		RefreshTTL:             cfg.JWT.RefreshTTL,
		SeparateSigningSecrets: !bytes.Equal(cfg.JWT.AccessSecret, cfg.JWT.RefreshSecret),
		Password: security.PasswordReport{
			Algorithm:         string(cfg.Password.Algorithm),
			BcryptCost:        cfg.Password.BcryptCost,
			Argon2Memory:      cfg.Password.Argon2.Memory,
			Argon2Time:        cfg.Password.Argon2.Time,
			Argon2Parallelism: cfg.Password.Argon2.Parallelism,
		},
		RehashOnLogin:         cfg.Password.UpgradeOnLogin,
		RotateRefreshTokens:   cfg.Session.RotateRefreshTokens,
		MaxConcurrentSessions: cfg.Session.MaxConcurrentSessions,
		MaxLoginAttempts:      cfg.Lockout.MaxAttempts,
		LockoutDuration:       cfg.Lockout.Duration,
		RateLimits: []int{
			cfg.RateLimit.Login.Limit,
			cfg.RateLimit.Register.Limit,
			cfg.RateLimit.ResetRequest.Limit,
			cfg.RateLimit.Refresh.Limit,
		},
		AuditEnabled: cfg.Audit.Enabled,
	})
}
