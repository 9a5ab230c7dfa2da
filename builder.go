package inkauth

import (
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
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// dummyPassword seeds the hash compared against for unknown emails.
const dummyPassword = "inkauth-timing-equalizer-0"

// Builder assembles an [Engine]. It is single-use: Build may be called once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	identities   identity.Store
	hasher       password.Hasher
	auditSink    AuditSink
	resetNotify  ResetNotifier
	verifyNotify VerificationNotifier
	log          zerolog.Logger
	clock        func() time.Time

	built bool
}

// New returns a builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		log:    zerolog.Nop(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing the token ledger and rate limiter.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithIdentityStore sets the credential store.
func (b *Builder) WithIdentityStore(store identity.Store) *Builder {
	b.identities = store
	return b
}

// WithPasswordHasher overrides the hasher derived from Config.Password.
func (b *Builder) WithPasswordHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

// WithAuditSink sets where audit events are delivered.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithResetNotifier sets the password reset token delivery.
func (b *Builder) WithResetNotifier(n ResetNotifier) *Builder {
	b.resetNotify = n
	return b
}

// WithVerificationNotifier sets the email verification token delivery.
func (b *Builder) WithVerificationNotifier(n VerificationNotifier) *Builder {
	b.verifyNotify = n
	return b
}

// WithLogger sets the operational logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(log zerolog.Logger) *Builder {
	b.log = log
	return b
}

// WithClock overrides time.Now for the engine, codec and ledger.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the authenticate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.identities == nil {
		return nil, errors.New("identity store required")
	}

	now := b.clock
	if now == nil {
		now = time.Now
	}

	// -------- TOKEN CODEC --------
	tokens, err := jwt.NewManager(jwt.Config{
		AccessSecret:  cloneBytes(cfg.JWT.AccessSecret),
		RefreshSecret: cloneBytes(cfg.JWT.RefreshSecret),
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Clock:         now,
	})
	if err != nil {
		return nil, err
	}

	// -------- PASSWORD HASHING --------
	hasher := b.hasher
	if hasher == nil {
		hasher, err = newHasher(cfg.Password)
		if err != nil {
			return nil, err
		}
	}
	dummy, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, fmt.Errorf("dummy hash: %w", err)
	}

	engine := &Engine{
		config:     cfg,
		identities: b.identities,
		ledger: ledger.NewStore(b.redis, ledger.Options{
			Prefix:         cfg.Ledger.Prefix,
			RetentionGrace: cfg.Ledger.RetentionGrace,
			Clock:          now,
		}),
		tokens: tokens,
		hasher: password.NewPool(hasher, cfg.Password.Workers),
		limiter: rate.New(b.redis, rate.Config{
			Prefix:       cfg.RateLimit.Prefix,
			Login:        rate.Policy(cfg.RateLimit.Login),
			Register:     rate.Policy(cfg.RateLimit.Register),
			ResetRequest: rate.Policy(cfg.RateLimit.ResetRequest),
			Refresh:      rate.Policy(cfg.RateLimit.Refresh),
		}),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		metrics: internalmetrics.New(internalmetrics.Config{
			Enabled:                 cfg.Metrics.Enabled,
			EnableLatencyHistograms: cfg.Metrics.EnableLatencyHistograms,
		}),
		log:          b.log,
		resetNotify:  b.resetNotify,
		verifyNotify: b.verifyNotify,
		now:          now,
		dummyHash:    dummy,
	}

	b.built = true

	return engine, nil
}

// newHasher hashes with the configured algorithm and still verifies hashes
// of the other one, so switching algorithms needs no migration.
func newHasher(cfg PasswordConfig) (password.Hasher, error) {
	bc, err := password.NewBcrypt(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	a2, err := password.NewArgon2(cfg.Argon2)
	if err != nil {
		return nil, err
	}
	if cfg.Algorithm == AlgorithmArgon2id {
		return password.NewMulti(a2, bc), nil
	}
	return password.NewMulti(bc, a2), nil
}
