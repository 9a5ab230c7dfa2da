package security

import "time"

// PasswordReport summarizes the hashing setup for new passwords.
type PasswordReport struct {
	Algorithm  string
	BcryptCost int
	// Argon2 parameters, reported even when bcrypt is primary since stored
	// argon2id hashes still verify.
	Argon2Memory      uint32
	Argon2Time        uint32
	Argon2Parallelism uint8
}

// Report is the security posture derived from an engine configuration.
type Report struct {
	SigningAlgorithm             string
	AccessTTL                    time.Duration
	RefreshTTL                   time.Duration
	SeparateSigningSecrets       bool
	Password                     PasswordReport
	RehashOnLogin                bool
	RefreshRotationEnabled       bool
	RefreshReuseDetectionEnabled bool
	SessionCapActive             bool
	MaxConcurrentSessions        int
	LockoutActive                bool
	RateLimitingActive           bool
	AuditActive                  bool
	// Warnings lists settings weaker than the recommended defaults.
	Warnings []string
}

type ReportInput struct {
	SigningAlgorithm       string
	AccessTTL              time.Duration
	RefreshTTL             time.Duration
	SeparateSigningSecrets bool
	Password               PasswordReport
	RehashOnLogin          bool
	RotateRefreshTokens    bool
	MaxConcurrentSessions  int
	MaxLoginAttempts       int
	LockoutDuration        time.Duration
	RateLimits             []int
	AuditEnabled           bool
}

const (
	recommendedBcryptCost = 12
	recommendedAccessTTL  = time.Hour
)

func BuildReport(input ReportInput) Report {
	rateLimiting := false
	for _, limit := range input.RateLimits {
		if limit > 0 {
			rateLimiting = true
			break
		}
	}

	r := Report{
		SigningAlgorithm:             input.SigningAlgorithm,
		AccessTTL:                    input.AccessTTL,
		RefreshTTL:                   input.RefreshTTL,
		SeparateSigningSecrets:       input.SeparateSigningSecrets,
		Password:                     input.Password,
		RehashOnLogin:                input.RehashOnLogin,
		RefreshRotationEnabled:       input.RotateRefreshTokens,
		RefreshReuseDetectionEnabled: input.RotateRefreshTokens,
		SessionCapActive:             input.MaxConcurrentSessions > 0,
		MaxConcurrentSessions:        input.MaxConcurrentSessions,
		LockoutActive:                input.MaxLoginAttempts > 0 && input.LockoutDuration > 0,
		RateLimitingActive:           rateLimiting,
		AuditActive:                  input.AuditEnabled,
	}

	warn := func(msg string) { r.Warnings = append(r.Warnings, msg) }
	if !r.SeparateSigningSecrets {
		warn("access and refresh tokens share a signing secret")
	}
	if !r.RefreshRotationEnabled {
		warn("refresh rotation is off; a stolen refresh token stays usable until expiry")
	}
	if !r.SessionCapActive {
		warn("concurrent sessions are unbounded")
	}
	if !r.LockoutActive {
		warn("failed-login lockout is disabled")
	}
	if !r.RateLimitingActive {
		warn("all rate limits are disabled")
	}
	if input.Password.Algorithm == "bcrypt" && input.Password.BcryptCost < recommendedBcryptCost {
		warn("bcrypt cost is below 12")
	}
	if input.AccessTTL > recommendedAccessTTL {
		warn("access tokens live longer than an hour")
	}
	return r
}
