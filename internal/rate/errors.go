package rate

import (
	"errors"
	"time"
)

var (
	// ErrRateLimited is returned when a window's budget is spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// LimitError reports a spent budget and when the window closes. It matches
// [ErrRateLimited] under errors.Is.
type LimitError struct {
	Action     Action
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return ErrRateLimited.Error() + ": " + string(e.Action)
}

func (e *LimitError) Unwrap() error { return ErrRateLimited }
