package inkauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/inkauth/jwt"
	"github.com/MrEthical07/inkauth/ledger"
)

func TestRegisterIssuesTokensAndPersistsRefresh(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.engine.Register(ctx, RegisterRequest{
		Email:    "a@x.com",
		Password: "Secur3!pass",
		Role:     "reader",
		FullName: "A",
	}, testDevice)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	claims, err := h.engine.tokens.Verify(jwt.KindAccess, res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("access token does not verify: %v", err)
	}
	if claims.UID != res.Identity.ID {
		t.Fatalf("claims uid %q != identity id %q", claims.UID, res.Identity.ID)
	}
	if res.Identity.PasswordHash == "Secur3!pass" {
		t.Fatal("password stored in plaintext")
	}

	rec, err := h.engine.Ledger().FindValid(ctx, res.Tokens.RefreshToken, ledger.TypeRefresh)
	if err != nil {
		t.Fatalf("refresh token not persisted: %v", err)
	}
	if rec.Type != ledger.TypeRefresh || rec.IdentityID != res.Identity.ID {
		t.Fatalf("unexpected refresh record: %+v", rec)
	}
	want := h.clock.Now().Add(7 * 24 * time.Hour)
	if d := rec.ExpiresAt.Sub(want); d > 2*time.Second || d < -2*time.Second {
		t.Fatalf("refresh expiry %v not within 2s of %v", rec.ExpiresAt, want)
	}
	if rec.UserAgent != testDevice.UserAgent || rec.IP != testDevice.IP {
		t.Fatalf("device metadata not recorded: %+v", rec)
	}
}

func TestRegisterRejectsDuplicateEmailCaseInsensitive(t *testing.T) {
	h := newHarness(t)
	h.register(t, "dup@example.com")

	_, err := h.engine.Register(context.Background(), RegisterRequest{
		Email:    "DUP@Example.com",
		Password: testPassword,
		Role:     "reader",
		FullName: "B",
	}, testDevice)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if got := h.engine.MetricsSnapshot().Counters[MetricRegisterDuplicate]; got != 1 {
		t.Fatalf("expected 1 duplicate metric, got %d", got)
	}
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		req  RegisterRequest
	}{
		{"malformed email", RegisterRequest{Email: "not-an-email", Password: testPassword, Role: "reader", FullName: "A"}},
		{"display name email", RegisterRequest{Email: "A <a@x.com>", Password: testPassword, Role: "reader", FullName: "A"}},
		{"short password", RegisterRequest{Email: "a@x.com", Password: "ab1", Role: "reader", FullName: "A"}},
		{"password without digit", RegisterRequest{Email: "a@x.com", Password: "onlyletters", Role: "reader", FullName: "A"}},
		{"password without letter", RegisterRequest{Email: "a@x.com", Password: "1234567890", Role: "reader", FullName: "A"}},
		{"writer without pen name", RegisterRequest{Email: "a@x.com", Password: testPassword, Role: "writer", FullName: "A"}},
		{"unknown role", RegisterRequest{Email: "a@x.com", Password: testPassword, Role: "moderator", FullName: "A"}},
		{"admin self registration", RegisterRequest{Email: "a@x.com", Password: testPassword, Role: "admin", FullName: "A"}},
		{"missing full name", RegisterRequest{Email: "a@x.com", Password: testPassword, Role: "reader"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.engine.Register(context.Background(), tc.req, testDevice)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestRegisterWriterKeepsProfile(t *testing.T) {
	h := newHarness(t)

	res, err := h.engine.Register(context.Background(), RegisterRequest{
		Email:    "writer@example.com",
		Password: testPassword,
		Role:     "writer",
		FullName: "Ada",
		PenName:  "Quill",
	}, testDevice)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if res.Identity.Role != "writer" || res.Identity.Profile.DisplayName() != "Quill" {
		t.Fatalf("unexpected identity: role=%s profile=%#v", res.Identity.Role, res.Identity.Profile)
	}
}

func TestLogoutBlacklistsAccessToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.register(t, "logout@example.com")

	p, err := h.engine.Authenticate(ctx, res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate before logout failed: %v", err)
	}

	if err := h.engine.Logout(ctx, p.Identity.ID, p.Token, ""); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	if _, err := h.engine.Authenticate(ctx, res.Tokens.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked after logout, got %v", err)
	}
	if _, err := h.engine.Refresh(ctx, res.Tokens.RefreshToken, testDevice); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for logged-out refresh, got %v", err)
	}
}

func TestLogoutBlacklistOutlivesVerificationLeeway(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.register(t, "leeway@example.com")

	if err := h.engine.Logout(ctx, res.Identity.ID, res.Tokens.AccessToken, ""); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	// Past exp but inside the 5s leeway the signature still verifies.
	past := res.Tokens.AccessExpiresAt.Sub(h.clock.Now()) + 2*time.Second
	h.clock.Advance(past)
	h.mr.FastForward(past)

	if _, err := h.engine.Authenticate(ctx, res.Tokens.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("expected ErrTokenRevoked inside leeway, got %v", err)
	}
}

func TestLogoutRejectsForeignAccessToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	victim := h.register(t, "victim@example.com")
	caller := h.register(t, "caller@example.com")

	err := h.engine.Logout(ctx, caller.Identity.ID, victim.Tokens.AccessToken, "")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	if _, err := h.engine.Authenticate(ctx, victim.Tokens.AccessToken); err != nil {
		t.Fatalf("foreign logout must not revoke the token: %v", err)
	}
	if _, err := h.engine.Refresh(ctx, victim.Tokens.RefreshToken, testDevice); err != nil {
		t.Fatalf("foreign logout must not revoke the session: %v", err)
	}
}

func TestLogoutLeavesOtherSessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.register(t, "two@example.com")
	second := h.login(t, "two@example.com")

	if err := h.engine.Logout(ctx, first.Identity.ID, first.Tokens.AccessToken, ""); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, err := h.engine.Refresh(ctx, second.Tokens.RefreshToken, testDevice); err != nil {
		t.Fatalf("other session should survive logout: %v", err)
	}
}

func TestLogoutAllRevokesEverySession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.register(t, "all@example.com")
	second := h.login(t, "all@example.com")

	if err := h.engine.LogoutAll(ctx, first.Identity.ID); err != nil {
		t.Fatalf("LogoutAll failed: %v", err)
	}
	for _, tok := range []string{first.Tokens.RefreshToken, second.Tokens.RefreshToken} {
		if _, err := h.engine.Ledger().FindValid(ctx, tok, ledger.TypeRefresh); !errors.Is(err, ledger.ErrNotFound) {
			t.Fatalf("expected refresh revoked, got %v", err)
		}
	}
	sessions, err := h.engine.Sessions(ctx, first.Identity.ID)
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions, got %d", len(sessions))
	}
}

func TestRefreshRotatesAndDetectsReuse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.register(t, "rotate@example.com")

	rotated, err := h.engine.Refresh(ctx, res.Tokens.RefreshToken, testDevice)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if rotated.RefreshToken == "" || rotated.RefreshToken == res.Tokens.RefreshToken {
		t.Fatal("expected a new refresh token")
	}
	if rotated.SessionID != res.Tokens.SessionID {
		t.Fatalf("rotation changed session: %s -> %s", res.Tokens.SessionID, rotated.SessionID)
	}
	if _, err := h.engine.Authenticate(ctx, rotated.AccessToken); err != nil {
		t.Fatalf("rotated access token rejected: %v", err)
	}

	// Replay of the superseded token.
	if _, err := h.engine.Refresh(ctx, res.Tokens.RefreshToken, testDevice); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken on reuse, got %v", err)
	}
	if _, err := h.engine.Ledger().FindValid(ctx, rotated.RefreshToken, ledger.TypeRefresh); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("reuse must revoke the rotated token too, got %v", err)
	}
	rec, err := h.engine.Ledger().Lookup(ctx, rotated.RefreshToken)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if rec.RevocationReason != ledger.ReasonReuseDetected {
		t.Fatalf("expected reuse_detected, got %q", rec.RevocationReason)
	}
	if got := h.engine.MetricsSnapshot().Counters[MetricRefreshReuseDetected]; got != 1 {
		t.Fatalf("expected 1 reuse metric, got %d", got)
	}
}

func TestRefreshWithoutRotationReusesToken(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Session.RotateRefreshTokens = false })
	ctx := context.Background()
	res := h.register(t, "static@example.com")

	for i := 0; i < 2; i++ {
		out, err := h.engine.Refresh(ctx, res.Tokens.RefreshToken, testDevice)
		if err != nil {
			t.Fatalf("Refresh #%d failed: %v", i+1, err)
		}
		if out.RefreshToken != "" {
			t.Fatal("refresh token must not be rotated")
		}
		if out.AccessToken == "" {
			t.Fatal("expected an access token")
		}
	}

	rec, err := h.engine.Ledger().FindValid(ctx, res.Tokens.RefreshToken, ledger.TypeRefresh)
	if err != nil {
		t.Fatalf("refresh token should remain valid: %v", err)
	}
	if rec.UseCount != 2 {
		t.Fatalf("expected use count 2, got %d", rec.UseCount)
	}
}

func TestRefreshRejectsAccessTokenAndGarbage(t *testing.T) {
	h := newHarness(t)
	res := h.register(t, "kinds@example.com")

	for _, tok := range []string{res.Tokens.AccessToken, "garbage", ""} {
		if _, err := h.engine.Refresh(context.Background(), tok, testDevice); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("Refresh(%q) expected ErrInvalidToken, got %v", tok, err)
		}
	}
}

func TestRefreshRejectsDeactivatedIdentity(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Session.RotateRefreshTokens = false })
	ctx := context.Background()
	res := h.register(t, "inactive@example.com")

	// Deactivate directly in the store so the refresh token survives.
	if err := h.store.SetActive(ctx, res.Identity.ID, false); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}
	if _, err := h.engine.Refresh(ctx, res.Tokens.RefreshToken, testDevice); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
}

func TestSessionCapRevokesLeastRecentlyUsed(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Session.MaxConcurrentSessions = 2 })
	ctx := context.Background()

	first := h.register(t, "cap@example.com")
	h.clock.Advance(time.Second)
	second := h.login(t, "cap@example.com")
	h.clock.Advance(time.Second)
	third := h.login(t, "cap@example.com")

	if _, err := h.engine.Ledger().FindValid(ctx, first.Tokens.RefreshToken, ledger.TypeRefresh); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("oldest session should be revoked, got %v", err)
	}
	rec, err := h.engine.Ledger().Lookup(ctx, first.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if rec.RevocationReason != ledger.ReasonSessionLimit {
		t.Fatalf("expected session_limit_exceeded, got %q", rec.RevocationReason)
	}

	sessions, err := h.engine.Sessions(ctx, first.Identity.ID)
	if err != nil {
		t.Fatalf("Sessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	got := map[string]bool{sessions[0].SessionID: true, sessions[1].SessionID: true}
	if !got[second.Tokens.SessionID] || !got[third.Tokens.SessionID] {
		t.Fatalf("unexpected surviving sessions: %+v", sessions)
	}
	if n := h.engine.MetricsSnapshot().Counters[MetricSessionLimitEnforced]; n != 1 {
		t.Fatalf("expected 1 session limit metric, got %d", n)
	}
}

func TestRevokeSessionFromDeviceList(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.register(t, "device@example.com")

	if err := h.engine.RevokeSession(ctx, res.Identity.ID, res.Tokens.SessionID); err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}
	if err := h.engine.RevokeSession(ctx, res.Identity.ID, res.Tokens.SessionID); !errors.Is(err, ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound on second revoke, got %v", err)
	}
}
