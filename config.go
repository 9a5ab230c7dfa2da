package inkauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/inkauth/jwt"
	"github.com/MrEthical07/inkauth/password"
	"github.com/caarlos0/env/v11"
)

// Config is the complete engine configuration. Build it with
// [DefaultConfig], override fields, and hand it to [Builder.WithConfig].
type Config struct {
	JWT          JWTConfig
	Password     PasswordConfig
	Lockout      LockoutConfig
	Session      SessionConfig
	Ledger       LedgerConfig
	RateLimit    RateLimitConfig
	Reset        ResetConfig
	Verification VerificationConfig
	Store        StoreConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds the signing secrets and lifetimes of both token kinds.
type JWTConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordAlgorithm selects the hash used for new passwords. Existing hashes
// of the other algorithm still verify.
type PasswordAlgorithm string

const (
	AlgorithmBcrypt   PasswordAlgorithm = "bcrypt"
	AlgorithmArgon2id PasswordAlgorithm = "argon2id"
)

// PasswordConfig controls hashing and the password policy.
type PasswordConfig struct {
	Algorithm  PasswordAlgorithm
	BcryptCost int
	Argon2     password.Argon2Config
	// Workers bounds concurrent hash operations.
	Workers int
	// UpgradeOnLogin re-hashes on successful login when the stored hash uses
	// weaker parameters or the other algorithm.
	UpgradeOnLogin bool

	MinLength     int
	MaxLength     int
	RequireLetter bool
	RequireDigit  bool
}

/*
====================================
LOCKOUT / SESSION CONFIG
====================================
*/

// LockoutConfig controls the failed-login lockout.
type LockoutConfig struct {
	MaxAttempts int
	Duration    time.Duration
}

// SessionConfig controls refresh-token sessions.
type SessionConfig struct {
	// MaxConcurrentSessions caps active refresh tokens per identity. Zero
	// disables the cap.
	MaxConcurrentSessions int
	// RotateRefreshTokens issues a new refresh token on every refresh and
	// treats replay of a superseded one as theft.
	RotateRefreshTokens bool
}

// LedgerConfig controls the Redis token ledger.
type LedgerConfig struct {
	Prefix         string
	RetentionGrace time.Duration
	SweepInterval  time.Duration
}

// RatePolicy is one fixed-window throttle. A zero Limit disables it.
type RatePolicy struct {
	Limit  int
	Window time.Duration
}

// RateLimitConfig holds the per-IP throttles.
type RateLimitConfig struct {
	Prefix       string
	Login        RatePolicy
	Register     RatePolicy
	ResetRequest RatePolicy
	Refresh      RatePolicy
}

// ResetConfig controls password reset tokens.
type ResetConfig struct {
	TokenTTL time.Duration
}

// VerificationConfig controls email verification tokens.
type VerificationConfig struct {
	TokenTTL time.Duration
}

// StoreConfig bounds every storage round-trip.
type StoreConfig struct {
	OperationTimeout time.Duration
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns production defaults. Secrets are empty and must be
// supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Issuer:     "inkauth",
			Audience:   "inkauth",
			Leeway:     5 * time.Second,
		},
		Password: PasswordConfig{
			Algorithm:      AlgorithmBcrypt,
			BcryptCost:     password.DefaultBcryptCost,
			Argon2:         password.DefaultArgon2Config(),
			Workers:        4,
			UpgradeOnLogin: true,
			MinLength:      8,
			MaxLength:      72,
			RequireLetter:  true,
			RequireDigit:   true,
		},
		Lockout: LockoutConfig{
			MaxAttempts: 5,
			Duration:    15 * time.Minute,
		},
		Session: SessionConfig{
			MaxConcurrentSessions: 5,
			RotateRefreshTokens:   true,
		},
		Ledger: LedgerConfig{
			Prefix:         "tl",
			RetentionGrace: 24 * time.Hour,
			SweepInterval:  10 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Prefix:       "rl",
			Login:        RatePolicy{Limit: 20, Window: 15 * time.Minute},
			Register:     RatePolicy{Limit: 10, Window: time.Hour},
			ResetRequest: RatePolicy{Limit: 5, Window: time.Hour},
			Refresh:      RatePolicy{Limit: 60, Window: time.Minute},
		},
		Reset:        ResetConfig{TokenTTL: time.Hour},
		Verification: VerificationConfig{TokenTTL: 24 * time.Hour},
		Store:        StoreConfig{OperationTimeout: 3 * time.Second},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks the configuration for unsafe or inconsistent values and
// returns every problem found.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if len(c.JWT.AccessSecret) < jwt.MinSecretLength {
		add("JWT.AccessSecret must be at least %d bytes", jwt.MinSecretLength)
	}
	if len(c.JWT.RefreshSecret) < jwt.MinSecretLength {
		add("JWT.RefreshSecret must be at least %d bytes", jwt.MinSecretLength)
	}
	if len(c.JWT.AccessSecret) > 0 && string(c.JWT.AccessSecret) == string(c.JWT.RefreshSecret) {
		add("JWT access and refresh secrets must differ")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		add("JWT TTLs must be > 0")
	}
	if c.JWT.RefreshTTL > 0 && c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		add("JWT.RefreshTTL must exceed JWT.AccessTTL")
	}

	switch c.Password.Algorithm {
	case AlgorithmBcrypt, AlgorithmArgon2id:
	default:
		add("Password.Algorithm %q is not supported", c.Password.Algorithm)
	}
	if c.Password.BcryptCost < password.DefaultBcryptCost {
		add("Password.BcryptCost must be >= %d", password.DefaultBcryptCost)
	}
	if c.Password.Workers <= 0 {
		add("Password.Workers must be > 0")
	}
	if c.Password.MinLength < 8 {
		add("Password.MinLength must be >= 8")
	}
	if c.Password.MaxLength < c.Password.MinLength || c.Password.MaxLength > 72 {
		add("Password.MaxLength must be between MinLength and 72")
	}

	if c.Lockout.MaxAttempts <= 0 {
		add("Lockout.MaxAttempts must be > 0")
	}
	if c.Lockout.Duration <= 0 {
		add("Lockout.Duration must be > 0")
	}
	if c.Session.MaxConcurrentSessions < 0 {
		add("Session.MaxConcurrentSessions must be >= 0")
	}
	if c.Ledger.RetentionGrace < 0 {
		add("Ledger.RetentionGrace must be >= 0")
	}
	if c.Ledger.SweepInterval < 0 {
		add("Ledger.SweepInterval must be >= 0")
	}

	for name, p := range map[string]RatePolicy{
		"Login":        c.RateLimit.Login,
		"Register":     c.RateLimit.Register,
		"ResetRequest": c.RateLimit.ResetRequest,
		"Refresh":      c.RateLimit.Refresh,
	} {
		if p.Limit < 0 || (p.Limit > 0 && p.Window <= 0) {
			add("RateLimit.%s needs a positive window when enabled", name)
		}
	}

	if c.Reset.TokenTTL <= 0 {
		add("Reset.TokenTTL must be > 0")
	}
	if c.Verification.TokenTTL <= 0 {
		add("Verification.TokenTTL must be > 0")
	}
	if c.Store.OperationTimeout <= 0 {
		add("Store.OperationTimeout must be > 0")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		add("Audit.BufferSize must be > 0 when audit is enabled")
	}

	return errors.Join(errs...)
}

// configEnv holds the raw environment values recognized by
// [LoadConfigFromEnv].
type configEnv struct {
	AccessSecret     string        `env:"INKAUTH_ACCESS_SECRET"`
	AccessTTL        time.Duration `env:"INKAUTH_ACCESS_TTL" envDefault:"15m"`
	RefreshSecret    string        `env:"INKAUTH_REFRESH_SECRET"`
	RefreshTTL       time.Duration `env:"INKAUTH_REFRESH_TTL" envDefault:"168h"`
	Issuer           string        `env:"INKAUTH_JWT_ISSUER" envDefault:"inkauth"`
	Audience         string        `env:"INKAUTH_JWT_AUDIENCE" envDefault:"inkauth"`
	HashAlgorithm    string        `env:"INKAUTH_HASH_ALGORITHM" envDefault:"bcrypt"`
	HashCost         int           `env:"INKAUTH_HASH_COST" envDefault:"12"`
	HashWorkers      int           `env:"INKAUTH_HASH_WORKERS" envDefault:"4"`
	MaxLoginAttempts int           `env:"INKAUTH_MAX_LOGIN_ATTEMPTS" envDefault:"5"`
	LockoutDuration  time.Duration `env:"INKAUTH_LOCKOUT_DURATION" envDefault:"15m"`
	MaxSessions      int           `env:"INKAUTH_MAX_SESSIONS" envDefault:"5"`
	RotateRefresh    bool          `env:"INKAUTH_ROTATE_REFRESH" envDefault:"true"`
	ResetTTL         time.Duration `env:"INKAUTH_RESET_TTL" envDefault:"1h"`
	VerificationTTL  time.Duration `env:"INKAUTH_VERIFICATION_TTL" envDefault:"24h"`
	StoreTimeout     time.Duration `env:"INKAUTH_STORE_TIMEOUT" envDefault:"3s"`
	SweepInterval    time.Duration `env:"INKAUTH_SWEEP_INTERVAL" envDefault:"10m"`
	MetricsEnabled   bool          `env:"INKAUTH_METRICS_ENABLED" envDefault:"true"`
	AuditBuffer      int           `env:"INKAUTH_AUDIT_BUFFER" envDefault:"1024"`
}

// LoadConfigFromEnv starts from [DefaultConfig] and applies INKAUTH_*
// environment variables. The result is validated.
func LoadConfigFromEnv() (Config, error) {
	var raw configEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = []byte(raw.AccessSecret)
	cfg.JWT.RefreshSecret = []byte(raw.RefreshSecret)
	cfg.JWT.AccessTTL = raw.AccessTTL
	cfg.JWT.RefreshTTL = raw.RefreshTTL
	cfg.JWT.Issuer = raw.Issuer
	cfg.JWT.Audience = raw.Audience
	cfg.Password.Algorithm = PasswordAlgorithm(raw.HashAlgorithm)
	cfg.Password.BcryptCost = raw.HashCost
	cfg.Password.Workers = raw.HashWorkers
	cfg.Lockout.MaxAttempts = raw.MaxLoginAttempts
	cfg.Lockout.Duration = raw.LockoutDuration
	cfg.Session.MaxConcurrentSessions = raw.MaxSessions
	cfg.Session.RotateRefreshTokens = raw.RotateRefresh
	cfg.Reset.TokenTTL = raw.ResetTTL
	cfg.Verification.TokenTTL = raw.VerificationTTL
	cfg.Store.OperationTimeout = raw.StoreTimeout
	cfg.Ledger.SweepInterval = raw.SweepInterval
	cfg.Metrics.Enabled = raw.MetricsEnabled
	cfg.Audit.BufferSize = raw.AuditBuffer

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
