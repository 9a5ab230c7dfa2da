package middleware

import (
	"context"
	"net"
	"net/http"
	"slices"
	"strings"

	"github.com/MrEthical07/inkauth"
	"github.com/MrEthical07/inkauth/identity"
)

const (
	// AccessCookie carries the access token for browser clients.
	AccessCookie = "accessToken"
	// QueryTokenParam carries the token on routes wrapped with AllowQueryToken.
	QueryTokenParam = "token"
)

// Authenticator is the request gate a Gate delegates to. [inkauth.Engine]
// implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*inkauth.Principal, error)
}

type principalKey struct{}
type queryTokenKey struct{}

// PrincipalFromContext returns the principal attached by [Gate.Authenticate]
// or [Gate.Optional].
func PrincipalFromContext(ctx context.Context) (*inkauth.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*inkauth.Principal)
	return p, ok && p != nil
}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p *inkauth.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// Gate adapts the request gate to net/http.
type Gate struct {
	auth        Authenticator
	proxyHeader string
	secure      bool
	writeError  func(http.ResponseWriter, error)
}

// Option configures a Gate.
type Option func(*Gate)

// WithProxyHeader trusts header (for example X-Forwarded-For) for the client
// IP. Only enable it behind a proxy that overwrites the header.
func WithProxyHeader(header string) Option {
	return func(g *Gate) { g.proxyHeader = header }
}

// WithSecureCookies marks cookies cleared by the Gate as Secure.
func WithSecureCookies(secure bool) Option {
	return func(g *Gate) { g.secure = secure }
}

// WithErrorWriter replaces [WriteError] for rejected requests.
func WithErrorWriter(fn func(http.ResponseWriter, error)) Option {
	return func(g *Gate) {
		if fn != nil {
			g.writeError = fn
		}
	}
}

// NewGate returns a Gate backed by auth.
func NewGate(auth Authenticator, opts ...Option) *Gate {
	g := &Gate{auth: auth, writeError: WriteError}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Client attaches the client IP and user agent of r to its context so that
// engine audit events and ledger records carry them.
func (g *Gate) Client(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(g.clientContext(r)))
	})
}

// Authenticate rejects requests without a valid access token and attaches
// the principal otherwise.
func (g *Gate) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := g.clientContext(r)
		token, fromCookie := extractToken(r)
		p, err := g.auth.Authenticate(ctx, token)
		if err != nil {
			if fromCookie && inkauth.IsAuthenticationError(err) {
				ClearAuthCookies(w, g.secure)
			}
			g.writeError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, p)))
	})
}

// Optional attaches a principal when the request carries a valid token and
// passes every request through. Any failure, a store outage included, leaves
// the request anonymous.
func (g *Gate) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := g.clientContext(r)
		if token, _ := extractToken(r); token != "" {
			if p, err := g.auth.Authenticate(ctx, token); err == nil {
				ctx = WithPrincipal(ctx, p)
			}
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole admits principals holding one of roles. It must run inside
// Authenticate.
func (g *Gate) RequireRole(roles ...identity.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				g.writeError(w, inkauth.ErrUnauthenticated)
				return
			}
			if !slices.Contains(roles, p.Identity.Role) {
				g.writeError(w, inkauth.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// OwnerLookup resolves the owner identity ID of the resource addressed by r.
// It returns [inkauth.ErrResourceNotFound] when the resource does not exist.
type OwnerLookup func(r *http.Request) (ownerID string, err error)

// RequireOwnership admits the owner of the addressed resource and admins.
// It must run inside Authenticate.
func (g *Gate) RequireOwnership(lookup OwnerLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				g.writeError(w, inkauth.ErrUnauthenticated)
				return
			}
			if p.Identity.Role == identity.RoleAdmin {
				next.ServeHTTP(w, r)
				return
			}
			owner, err := lookup(r)
			if err != nil {
				g.writeError(w, err)
				return
			}
			if owner != p.Identity.ID {
				g.writeError(w, inkauth.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AllowQueryToken lets the wrapped route read the token from the query
// string, for links such as email verification. Wrap it outside the Gate
// middleware.
func AllowQueryToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), queryTokenKey{}, true)))
	})
}

// extractToken tries the bearer header, then the access cookie, then the
// query string when the route allows it. fromCookie reports the source.
func extractToken(r *http.Request) (token string, fromCookie bool) {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		return token, false
	}
	if c, err := r.Cookie(AccessCookie); err == nil && c.Value != "" {
		return c.Value, true
	}
	if allowed, _ := r.Context().Value(queryTokenKey{}).(bool); allowed {
		return r.URL.Query().Get(QueryTokenParam), false
	}
	return "", false
}

func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}
	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}
	return token, true
}

func (g *Gate) clientContext(r *http.Request) context.Context {
	ctx := inkauth.WithClientIP(r.Context(), g.clientIP(r))
	return inkauth.WithUserAgent(ctx, r.UserAgent())
}

func (g *Gate) clientIP(r *http.Request) string {
	if g.proxyHeader != "" {
		if v := r.Header.Get(g.proxyHeader); v != "" {
			first, _, _ := strings.Cut(v, ",")
			if ip := strings.TrimSpace(first); net.ParseIP(ip) != nil {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
