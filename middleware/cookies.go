package middleware

import (
	"net/http"
	"time"
)

const (
	// RefreshCookie carries the refresh token. It is scoped to RefreshPath.
	RefreshCookie = "refreshToken"
	// RefreshPath is the only path the refresh cookie is sent to.
	RefreshPath = "/auth/refresh"
)

// SetAuthCookies writes both token cookies. Expiry times come from the
// issued tokens.
func SetAuthCookies(w http.ResponseWriter, secure bool, access string, accessExp time.Time, refresh string, refreshExp time.Time) {
	if access != "" {
		http.SetCookie(w, tokenCookie(AccessCookie, "/", access, accessExp, secure))
	}
	if refresh != "" {
		http.SetCookie(w, tokenCookie(RefreshCookie, RefreshPath, refresh, refreshExp, secure))
	}
}

// ClearAuthCookies expires both token cookies.
func ClearAuthCookies(w http.ResponseWriter, secure bool) {
	for _, c := range []*http.Cookie{
		tokenCookie(AccessCookie, "/", "", time.Time{}, secure),
		tokenCookie(RefreshCookie, RefreshPath, "", time.Time{}, secure),
	} {
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}

func tokenCookie(name, path, value string, expires time.Time, secure bool) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	if !expires.IsZero() {
		c.Expires = expires
		c.MaxAge = int(time.Until(expires).Seconds())
		if c.MaxAge <= 0 {
			c.MaxAge = -1
		}
	}
	return c
}
