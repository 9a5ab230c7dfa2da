package inkauth

import (
	"context"
	"errors"
	"testing"
	"time"
)

// drainAudit closes the engine and returns every event delivered so far.
func (h *testHarness) drainAudit() []AuditEvent {
	h.engine.Close()
	var out []AuditEvent
	for {
		select {
		case ev := <-h.auditEvents.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func findEvent(events []AuditEvent, eventType string) (AuditEvent, bool) {
	for _, ev := range events {
		if ev.EventType == eventType {
			return ev, true
		}
	}
	return AuditEvent{}, false
}

func TestLoginSuccessResetsFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.register(t, "reset@example.com")

	if _, err := h.engine.Login(ctx, "reset@example.com", "wrong-pass1", testDevice); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	out := h.login(t, "RESET@example.com")
	if out.Identity.ID != res.Identity.ID {
		t.Fatalf("login resolved a different identity")
	}
	if out.Identity.FailedAttempts != 0 || out.Identity.LastLoginAt == nil {
		t.Fatalf("login success not recorded: %+v", out.Identity)
	}
	if out.Tokens.SessionID == res.Tokens.SessionID {
		t.Fatal("each login must open a new session")
	}
}

func TestLoginUnknownEmailMatchesWrongPassword(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "known@example.com")

	_, errUnknown := h.engine.Login(ctx, "nobody@example.com", testPassword, testDevice)
	_, errWrong := h.engine.Login(ctx, "known@example.com", "Wrong-pass9", testDevice)

	if !errors.Is(errUnknown, ErrInvalidCredentials) || !errors.Is(errWrong, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v and %v", errUnknown, errWrong)
	}
	if PublicMessage(errUnknown) != PublicMessage(errWrong) || HTTPStatus(errUnknown) != HTTPStatus(errWrong) {
		t.Fatal("unknown email and wrong password must be indistinguishable")
	}
}

func TestLoginRequiresCredentials(t *testing.T) {
	h := newHarness(t)
	if _, err := h.engine.Login(context.Background(), "", testPassword, testDevice); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := h.engine.Login(context.Background(), "a@x.com", "", testDevice); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestLoginLockoutAfterMaxAttempts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "lock@example.com")

	for i := 0; i < 5; i++ {
		if _, err := h.engine.Login(ctx, "lock@example.com", "Wrong-pass9", testDevice); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	// Correct password during lockout is still refused.
	if _, err := h.engine.Login(ctx, "lock@example.com", testPassword, testDevice); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
	if got := h.engine.MetricsSnapshot().Counters[MetricAccountLocked]; got != 1 {
		t.Fatalf("expected 1 account locked metric, got %d", got)
	}

	h.clock.Advance(16 * time.Minute)
	out := h.login(t, "lock@example.com")
	if out.Identity.LockUntil != nil || out.Identity.FailedAttempts != 0 {
		t.Fatalf("lockout not cleared: %+v", out.Identity)
	}

	events := h.drainAudit()
	ev, ok := findEvent(events, auditEventAccountLocked)
	if !ok {
		t.Fatal("account_locked audit event not emitted")
	}
	if ev.IdentityID != out.Identity.ID || ev.IP != testIP {
		t.Fatalf("unexpected account_locked event: %+v", ev)
	}
	if ev.Metadata["attempts"] != "5" {
		t.Fatalf("expected attempts=5, got %q", ev.Metadata["attempts"])
	}
}

func TestLoginAfterLockoutExpiryCountsFromOne(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.register(t, "relock@example.com")

	for i := 0; i < 5; i++ {
		_, _ = h.engine.Login(ctx, "relock@example.com", "Wrong-pass9", testDevice)
	}
	h.clock.Advance(16 * time.Minute)

	if _, err := h.engine.Login(ctx, "relock@example.com", "Wrong-pass9", testDevice); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	ident, err := h.store.GetByEmail(ctx, "relock@example.com")
	if err != nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}
	if ident.FailedAttempts != 1 || ident.LockUntil != nil {
		t.Fatalf("expected a fresh counter, got attempts=%d lock=%v", ident.FailedAttempts, ident.LockUntil)
	}
}

func TestLoginRateLimitedPerIP(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.RateLimit.Login = RatePolicy{Limit: 2, Window: time.Minute}
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = h.engine.Login(ctx, "x@example.com", testPassword, testDevice)
	}
	h.mr.FastForward(20 * time.Second)
	_, err := h.engine.Login(ctx, "x@example.com", testPassword, testDevice)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	wait, ok := RetryAfter(err)
	if !ok || wait <= 39*time.Second || wait > 40*time.Second {
		t.Fatalf("RetryAfter = %v, %v; want about 40s", wait, ok)
	}

	other := Device{UserAgent: testDevice.UserAgent, IP: "198.51.100.1"}
	if _, err := h.engine.Login(ctx, "x@example.com", testPassword, other); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("other IP should not be throttled, got %v", err)
	}
}

func TestBanBlocksLoginAndAuthenticate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.register(t, "ban@example.com")

	until := h.clock.Now().Add(time.Hour)
	if err := h.engine.Ban(ctx, "admin-1", res.Identity.ID, &until, "spam"); err != nil {
		t.Fatalf("Ban failed: %v", err)
	}

	if _, err := h.engine.Login(ctx, "ban@example.com", testPassword, testDevice); !errors.Is(err, ErrAccountBanned) {
		t.Fatalf("expected ErrAccountBanned on login, got %v", err)
	}
	if _, err := h.engine.Authenticate(ctx, res.Tokens.AccessToken); !errors.Is(err, ErrAccountBanned) {
		t.Fatalf("expected ErrAccountBanned on authenticate, got %v", err)
	}
	if _, err := h.engine.Refresh(ctx, res.Tokens.RefreshToken, testDevice); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("ban must revoke refresh tokens, got %v", err)
	}

	// Login honours the expiry; the request gate checks the flag alone.
	h.clock.Advance(2 * time.Hour)
	out := h.login(t, "ban@example.com")
	if _, err := h.engine.Authenticate(ctx, out.Tokens.AccessToken); !errors.Is(err, ErrAccountBanned) {
		t.Fatalf("expected ErrAccountBanned while flag is set, got %v", err)
	}

	if err := h.engine.Unban(ctx, "admin-1", res.Identity.ID); err != nil {
		t.Fatalf("Unban failed: %v", err)
	}
	if _, err := h.engine.Authenticate(ctx, out.Tokens.AccessToken); err != nil {
		t.Fatalf("Authenticate after unban failed: %v", err)
	}
}

func TestBanRejectsPastExpiry(t *testing.T) {
	h := newHarness(t)
	res := h.register(t, "past@example.com")

	past := h.clock.Now().Add(-time.Minute)
	if err := h.engine.Ban(context.Background(), "admin-1", res.Identity.ID, &past, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if err := h.engine.Ban(context.Background(), "admin-1", "missing", nil, ""); !errors.Is(err, ErrIdentityNotFound) {
		t.Fatalf("expected ErrIdentityNotFound, got %v", err)
	}
}

func TestAuthenticatePipeline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	res := h.register(t, "gate@example.com")

	p, err := h.engine.Authenticate(ctx, res.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if p.Identity.ID != res.Identity.ID || p.SessionID() != res.Tokens.SessionID {
		t.Fatalf("unexpected principal: %+v", p)
	}

	if _, err := h.engine.Authenticate(ctx, ""); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if _, err := h.engine.Authenticate(ctx, "not.a.jwt"); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
	if _, err := h.engine.Authenticate(ctx, res.Tokens.RefreshToken); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("refresh token must not pass the gate, got %v", err)
	}

	h.clock.Advance(16 * time.Minute)
	if _, err := h.engine.Authenticate(ctx, res.Tokens.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}

	snap := h.engine.MetricsSnapshot()
	if snap.Counters[MetricAuthenticateSuccess] != 1 || snap.Counters[MetricAuthenticateFailure] != 4 {
		t.Fatalf("unexpected authenticate counters: %+v", snap.Counters)
	}
}

func TestAuthenticateAccountStanding(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	inactive := h.register(t, "inactive@example.com")
	if err := h.store.SetActive(ctx, inactive.Identity.ID, false); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}
	if _, err := h.engine.Authenticate(ctx, inactive.Tokens.AccessToken); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}

	locked := h.register(t, "locked@example.com")
	for i := 0; i < 5; i++ {
		_, _ = h.engine.Login(ctx, "locked@example.com", "Wrong-pass9", testDevice)
	}
	if _, err := h.engine.Authenticate(ctx, locked.Tokens.AccessToken); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
	if err := h.engine.Unlock(ctx, "admin-1", locked.Identity.ID); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if _, err := h.engine.Authenticate(ctx, locked.Tokens.AccessToken); err != nil {
		t.Fatalf("Authenticate after unlock failed: %v", err)
	}

	deleted := h.register(t, "deleted@example.com")
	if err := h.engine.SoftDelete(ctx, "admin-1", deleted.Identity.ID); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	if _, err := h.engine.Authenticate(ctx, deleted.Tokens.AccessToken); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive for deleted account, got %v", err)
	}
}

func TestAuthenticateStoreUnavailable(t *testing.T) {
	h := newHarness(t)
	res := h.register(t, "down@example.com")

	h.mr.Close()

	_, err := h.engine.Authenticate(context.Background(), res.Tokens.AccessToken)
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
	if HTTPStatus(err) != 503 {
		t.Fatalf("expected 503, got %d", HTTPStatus(err))
	}
}

func TestAuditNeverCarriesSecrets(t *testing.T) {
	h := newHarness(t)
	res := h.register(t, "secret@example.com")
	_, _ = h.engine.Login(context.Background(), "secret@example.com", "Wrong-pass9", testDevice)

	for _, ev := range h.drainAudit() {
		for k, v := range ev.Metadata {
			if v == testPassword || v == "Wrong-pass9" || v == res.Tokens.AccessToken || v == res.Tokens.RefreshToken {
				t.Fatalf("event %s leaks a secret in %s", ev.EventType, k)
			}
		}
		if ev.Reason == testPassword || ev.Reason == "Wrong-pass9" {
			t.Fatalf("event %s leaks a password in reason", ev.EventType)
		}
	}
}
