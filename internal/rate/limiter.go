package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Action names a throttled operation.
type Action string

const (
	ActionLogin        Action = "li"
	ActionRegister     Action = "rg"
	ActionResetRequest Action = "pr"
	ActionRefresh      Action = "rf"
)

// Policy is the budget of one action. A zero Limit disables the throttle.
type Policy struct {
	Limit  int
	Window time.Duration
}

// Config holds per-action policies.
type Config struct {
	Prefix       string
	Login        Policy
	Register     Policy
	ResetRequest Policy
	Refresh      Policy
}

// Limiter enforces fixed-window budgets using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "rl"
	}
	return &Limiter{redis: redisClient, config: cfg}
}

func (l *Limiter) policy(action Action) Policy {
	switch action {
	case ActionLogin:
		return l.config.Login
	case ActionRegister:
		return l.config.Register
	case ActionResetRequest:
		return l.config.ResetRequest
	case ActionRefresh:
		return l.config.Refresh
	default:
		return Policy{}
	}
}

func (l *Limiter) key(action Action, subject string) string {
	return l.config.Prefix + ":" + string(action) + ":" + subject
}

// Allow counts one attempt of action by subject and returns a [*LimitError]
// once the window's budget is exceeded. An empty subject is never throttled.
func (l *Limiter) Allow(ctx context.Context, action Action, subject string) error {
	p := l.policy(action)
	if p.Limit <= 0 || p.Window <= 0 || subject == "" {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, l.key(action, subject), p.Window)
	if err != nil {
		return err
	}
	if count > int64(p.Limit) {
		wait, err := l.RetryAfter(ctx, action, subject)
		if err != nil {
			return err
		}
		if wait <= 0 {
			wait = p.Window
		}
		return &LimitError{Action: action, RetryAfter: wait}
	}
	return nil
}

// RetryAfter returns how long until the subject's current window closes.
func (l *Limiter) RetryAfter(ctx context.Context, action Action, subject string) (time.Duration, error) {
	ttl, err := l.redis.PTTL(ctx, l.key(action, subject)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return count, nil
}
