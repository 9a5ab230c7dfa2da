package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrEthical07/inkauth"
	"github.com/stretchr/testify/require"
)

func TestWriteErrorRetryAfter(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"exact seconds", &inkauth.RateLimitError{RetryAfter: 42 * time.Second}, "42"},
		{"rounds up", &inkauth.RateLimitError{RetryAfter: 1500 * time.Millisecond}, "2"},
		{"wrapped", fmt.Errorf("login: %w", &inkauth.RateLimitError{RetryAfter: 15 * time.Minute}), "900"},
		{"no wait known", inkauth.ErrRateLimited, "60"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tc.err)

			require.Equal(t, http.StatusTooManyRequests, rec.Code)
			require.Equal(t, tc.want, rec.Header().Get("Retry-After"))
			require.Equal(t, inkauth.CodeRateLimited, decodeError(t, rec).Error.Code)
		})
	}
}

func TestWriteErrorNoRetryAfterOutsideRateLimit(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, inkauth.ErrInvalidCredentials)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, rec.Header().Get("Retry-After"))
}
