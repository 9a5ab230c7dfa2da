package inkauth

import (
	"errors"
	"net/http"
	"time"
)

var (
	// ErrValidation is returned for malformed input: email, password policy,
	// or role-specific profile fields.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials is returned for an unknown email or a wrong
	// password. The two cases are indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken is returned for refresh, reset and verification tokens
	// that are missing, expired, revoked or owned by someone else.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned by Authenticate for an expired access token.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMalformed is returned by Authenticate for an access token with
	// a bad signature, structure or kind.
	ErrTokenMalformed = errors.New("malformed token")
	// ErrTokenRevoked is returned by Authenticate for a blacklisted access
	// token or one issued before the last password change.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrUnauthenticated is returned when no credential was presented.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrAccountInactive is returned for deactivated or soft-deleted accounts.
	ErrAccountInactive = errors.New("account inactive")
	// ErrAccountLocked is returned while a lockout deadline is in the future.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountBanned is returned for banned accounts.
	ErrAccountBanned = errors.New("account banned")
	// ErrIdentityNotFound is returned by Authenticate when the token's owner
	// no longer exists.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrForbidden is returned when an authenticated caller lacks the role or
	// ownership an operation requires.
	ErrForbidden = errors.New("forbidden")
	// ErrResourceNotFound is returned by ownership checks for a missing
	// resource.
	ErrResourceNotFound = errors.New("resource not found")
	// ErrConflict is returned when registering an email that already exists.
	ErrConflict = errors.New("conflict")
	// ErrRateLimited is returned when a throttle budget is spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrServiceUnavailable is returned when a storage backend fails or times
	// out. Operations never report success in that case.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrInternal is returned for unexpected faults such as entropy failure.
	ErrInternal = errors.New("internal error")
)

// Code is the stable machine-readable error code sent to clients.
type Code string

const (
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeInvalidToken       Code = "INVALID_TOKEN"
	CodeTokenExpired       Code = "TOKEN_EXPIRED"
	CodeTokenMalformed     Code = "TOKEN_MALFORMED"
	CodeTokenRevoked       Code = "TOKEN_REVOKED"
	CodeUnauthenticated    Code = "UNAUTHENTICATED"
	CodeAccountInactive    Code = "ACCOUNT_INACTIVE"
	CodeAccountLocked      Code = "ACCOUNT_LOCKED"
	CodeAccountBanned      Code = "ACCOUNT_BANNED"
	CodeIdentityNotFound   Code = "IDENTITY_NOT_FOUND"
	CodeForbidden          Code = "FORBIDDEN"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConflict           Code = "CONFLICT"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeInternal           Code = "INTERNAL_ERROR"
)

type errorClass struct {
	err     error
	code    Code
	status  int
	message string
}

// Ordered so wrapped errors resolve to their most specific class.
var errorClasses = []errorClass{
	{ErrValidation, CodeValidation, http.StatusUnprocessableEntity, "The request is invalid."},
	{ErrInvalidCredentials, CodeInvalidCredentials, http.StatusUnauthorized, "Invalid email or password."},
	{ErrInvalidToken, CodeInvalidToken, http.StatusUnauthorized, "The token is invalid or has expired."},
	{ErrTokenExpired, CodeTokenExpired, http.StatusUnauthorized, "Your session has expired."},
	{ErrTokenMalformed, CodeTokenMalformed, http.StatusUnauthorized, "The token is invalid or has expired."},
	{ErrTokenRevoked, CodeTokenRevoked, http.StatusUnauthorized, "The token has been revoked."},
	{ErrUnauthenticated, CodeUnauthenticated, http.StatusUnauthorized, "Authentication required."},
	{ErrAccountInactive, CodeAccountInactive, http.StatusUnauthorized, "This account is inactive."},
	{ErrAccountLocked, CodeAccountLocked, http.StatusUnauthorized, "This account is temporarily locked. Try again later."},
	{ErrAccountBanned, CodeAccountBanned, http.StatusUnauthorized, "This account has been suspended."},
	{ErrIdentityNotFound, CodeIdentityNotFound, http.StatusUnauthorized, "Authentication required."},
	{ErrForbidden, CodeForbidden, http.StatusForbidden, "You do not have permission to perform this action."},
	{ErrResourceNotFound, CodeNotFound, http.StatusNotFound, "The requested resource was not found."},
	{ErrConflict, CodeConflict, http.StatusConflict, "An account with this email already exists."},
	{ErrRateLimited, CodeRateLimited, http.StatusTooManyRequests, "Too many requests. Try again later."},
	{ErrServiceUnavailable, CodeServiceUnavailable, http.StatusServiceUnavailable, "The service is temporarily unavailable."},
	{ErrInternal, CodeInternal, http.StatusInternalServerError, "An unexpected error occurred."},
}

var internalClass = errorClass{ErrInternal, CodeInternal, http.StatusInternalServerError, "An unexpected error occurred."}

func classify(err error) errorClass {
	for _, c := range errorClasses {
		if errors.Is(err, c.err) {
			return c
		}
	}
	return internalClass
}

// HTTPStatus maps err to a response status. Unknown errors are 500.
func HTTPStatus(err error) int {
	return classify(err).status
}

// ErrorCode returns the stable client-facing code for err.
func ErrorCode(err error) Code {
	return classify(err).code
}

// PublicMessage returns a generic message for err that is safe to show to
// clients. It never includes wrapped detail.
func PublicMessage(err error) string {
	return classify(err).message
}

// RateLimitError carries the wait before a throttled operation may be
// retried. It matches [ErrRateLimited] under errors.Is.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string { return ErrRateLimited.Error() }

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// RetryAfter returns the wait carried by a rate limit error.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		return rl.RetryAfter, true
	}
	return 0, false
}

// IsAuthenticationError reports whether err belongs to the 401 class.
func IsAuthenticationError(err error) bool {
	return classify(err).status == http.StatusUnauthorized
}
