package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newLedgerTest(t *testing.T) (*Store, *testClock, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewStore(rdb, Options{Clock: clock.Now}), clock, mr
}

func issueRefresh(t *testing.T, s *Store, clock *testClock, identityID, sessionID, token string) *Record {
	t.Helper()
	rec, err := s.IssueRefresh(context.Background(), identityID, sessionID, token, clock.Now().Add(7*24*time.Hour), Device{UserAgent: "test", IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	return rec
}

func TestFindValidTruthTable(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		prepare func(t *testing.T, s *Store, clock *testClock) string
		typ     TokenType
		wantOK  bool
	}{
		{
			name: "active unexpired matching type",
			prepare: func(t *testing.T, s *Store, clock *testClock) string {
				issueRefresh(t, s, clock, "u1", "s1", "tok")
				return "tok"
			},
			typ:    TypeRefresh,
			wantOK: true,
		},
		{
			name: "type mismatch",
			prepare: func(t *testing.T, s *Store, clock *testClock) string {
				issueRefresh(t, s, clock, "u1", "s1", "tok")
				return "tok"
			},
			typ: TypeReset,
		},
		{
			name: "expired",
			prepare: func(t *testing.T, s *Store, clock *testClock) string {
				issueRefresh(t, s, clock, "u1", "s1", "tok")
				clock.Advance(8 * 24 * time.Hour)
				return "tok"
			},
			typ: TypeRefresh,
		},
		{
			name: "revoked",
			prepare: func(t *testing.T, s *Store, clock *testClock) string {
				rec := issueRefresh(t, s, clock, "u1", "s1", "tok")
				if _, err := s.Revoke(context.Background(), rec, ReasonLogout, "u1"); err != nil {
					t.Fatalf("Revoke: %v", err)
				}
				return "tok"
			},
			typ: TypeRefresh,
		},
		{
			name: "missing",
			prepare: func(t *testing.T, s *Store, clock *testClock) string {
				return "never-issued"
			},
			typ: TypeRefresh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, clock, _ := newLedgerTest(t)
			token := tt.prepare(t, s, clock)

			rec, err := s.FindValid(ctx, token, tt.typ)
			if tt.wantOK {
				if err != nil || rec == nil {
					t.Fatalf("expected valid record, got %v", err)
				}
				if rec.Hash != HashToken(token) {
					t.Fatalf("hash mismatch")
				}
				return
			}
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestRawTokenNeverStored(t *testing.T) {
	s, clock, mr := newLedgerTest(t)
	issueRefresh(t, s, clock, "u1", "s1", "raw-secret-token")

	for _, key := range mr.Keys() {
		if key == "raw-secret-token" {
			t.Fatalf("raw token used as key")
		}
		if mr.Type(key) == "hash" {
			fields, _ := mr.HKeys(key)
			for _, f := range fields {
				if mr.HGet(key, f) == "raw-secret-token" {
					t.Fatalf("raw token stored in %s.%s", key, f)
				}
			}
		}
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	s, clock, _ := newLedgerTest(t)
	ctx := context.Background()
	rec := issueRefresh(t, s, clock, "u1", "s1", "tok")

	first, err := s.Revoke(ctx, rec, ReasonLogout, "u1")
	if err != nil || !first {
		t.Fatalf("first revoke = %v, %v", first, err)
	}
	firstAt := clock.Now()

	clock.Advance(time.Minute)
	again, err := s.Revoke(ctx, &Record{Hash: rec.Hash, IdentityID: "u1"}, ReasonAdminAction, "admin")
	if err != nil || again {
		t.Fatalf("second revoke = %v, %v", again, err)
	}

	stored, err := s.Lookup(ctx, "tok")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if stored.RevokedAt == nil || !stored.RevokedAt.Equal(firstAt) {
		t.Fatalf("RevokedAt = %v, want %v", stored.RevokedAt, firstAt)
	}
	if stored.RevocationReason != ReasonLogout || stored.RevokedBy != "u1" {
		t.Fatalf("revocation metadata overwritten: %+v", stored)
	}

	missing, err := s.Revoke(ctx, &Record{Hash: HashToken("nope"), IdentityID: "u1"}, ReasonLogout, "")
	if err != nil || missing {
		t.Fatalf("revoking a missing record = %v, %v", missing, err)
	}
}

func TestRevokeAllForIdentity(t *testing.T) {
	s, clock, _ := newLedgerTest(t)
	ctx := context.Background()

	issueRefresh(t, s, clock, "u1", "s1", "a")
	issueRefresh(t, s, clock, "u1", "s2", "b")
	if _, err := s.Issue(ctx, Issue{Type: TypeReset, IdentityID: "u1", Token: "r", ExpiresAt: clock.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("Issue reset: %v", err)
	}
	issueRefresh(t, s, clock, "u2", "s3", "c")

	n, err := s.RevokeAllForIdentity(ctx, "u1", ReasonPasswordChange, "u1")
	if err != nil {
		t.Fatalf("RevokeAllForIdentity: %v", err)
	}
	if n != 3 {
		t.Fatalf("revoked %d, want 3", n)
	}

	for _, tok := range []string{"a", "b"} {
		if _, err := s.FindValid(ctx, tok, TypeRefresh); !errors.Is(err, ErrNotFound) {
			t.Fatalf("token %s still valid", tok)
		}
	}
	sessions, err := s.ActiveSessions(ctx, "u1")
	if err != nil || len(sessions) != 0 {
		t.Fatalf("ActiveSessions = %d, %v", len(sessions), err)
	}
	if _, err := s.FindValid(ctx, "c", TypeRefresh); err != nil {
		t.Fatalf("other identity affected: %v", err)
	}

	n, err = s.RevokeAllForIdentity(ctx, "u1", ReasonLogoutAll, "u1")
	if err != nil || n != 0 {
		t.Fatalf("second RevokeAllForIdentity = %d, %v", n, err)
	}
}

func TestRevokeAllOfTypeLeavesOtherTypes(t *testing.T) {
	s, clock, _ := newLedgerTest(t)
	ctx := context.Background()

	issueRefresh(t, s, clock, "u1", "s1", "a")
	for _, tok := range []string{"r1", "r2"} {
		if _, err := s.Issue(ctx, Issue{Type: TypeReset, IdentityID: "u1", Token: tok, ExpiresAt: clock.Now().Add(time.Hour)}); err != nil {
			t.Fatalf("Issue reset: %v", err)
		}
	}

	n, err := s.RevokeAllOfType(ctx, "u1", TypeReset, ReasonSuperseded)
	if err != nil || n != 2 {
		t.Fatalf("RevokeAllOfType = %d, %v", n, err)
	}
	if _, err := s.FindValid(ctx, "a", TypeRefresh); err != nil {
		t.Fatalf("refresh token revoked by type filter: %v", err)
	}
}

func TestRevokeSession(t *testing.T) {
	s, clock, _ := newLedgerTest(t)
	ctx := context.Background()

	issueRefresh(t, s, clock, "u1", "s1", "a")
	issueRefresh(t, s, clock, "u1", "s2", "b")

	n, err := s.RevokeSession(ctx, "u1", "s1", ReasonLogout)
	if err != nil || n != 1 {
		t.Fatalf("RevokeSession = %d, %v", n, err)
	}
	if _, err := s.FindValid(ctx, "a", TypeRefresh); !errors.Is(err, ErrNotFound) {
		t.Fatalf("session token still valid")
	}
	if _, err := s.FindValid(ctx, "b", TypeRefresh); err != nil {
		t.Fatalf("other session revoked: %v", err)
	}
}

func TestCapConcurrentSessionsRevokesLeastRecentlyUsed(t *testing.T) {
	s, clock, _ := newLedgerTest(t)
	ctx := context.Background()

	first := issueRefresh(t, s, clock, "u1", "s1", "a")
	clock.Advance(time.Second)
	issueRefresh(t, s, clock, "u1", "s2", "b")
	clock.Advance(time.Second)
	issueRefresh(t, s, clock, "u1", "s3", "c")
	clock.Advance(time.Second)

	if err := s.RecordUse(ctx, first); err != nil {
		t.Fatalf("RecordUse: %v", err)
	}
	if first.UseCount != 1 {
		t.Fatalf("UseCount = %d", first.UseCount)
	}

	n, err := s.CapConcurrentSessions(ctx, "u1", 2)
	if err != nil || n != 1 {
		t.Fatalf("CapConcurrentSessions = %d, %v", n, err)
	}

	evicted, err := s.Lookup(ctx, "b")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if evicted.Active || evicted.RevocationReason != ReasonSessionLimit {
		t.Fatalf("expected s2 evicted for session limit, got %+v", evicted)
	}

	sessions, err := s.ActiveSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("ActiveSessions: %v", err)
	}
	if len(sessions) != 2 || sessions[0].SessionID != "s1" {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}

	if n, _ := s.CapConcurrentSessions(ctx, "u1", 0); n != 0 {
		t.Fatalf("cap 0 should be disabled")
	}
}

func TestBlacklist(t *testing.T) {
	s, clock, mr := newLedgerTest(t)
	ctx := context.Background()

	if err := s.Blacklist(ctx, "access", "u1", ReasonLogout, clock.Now().Add(10*time.Minute)); err != nil {
		t.Fatalf("Blacklist: %v", err)
	}
	ok, err := s.IsBlacklisted(ctx, "access")
	if err != nil || !ok {
		t.Fatalf("IsBlacklisted = %v, %v", ok, err)
	}

	mr.FastForward(11 * time.Minute)
	ok, err = s.IsBlacklisted(ctx, "access")
	if err != nil || ok {
		t.Fatalf("blacklist entry should expire with the token, got %v, %v", ok, err)
	}

	if err := s.Blacklist(ctx, "stale", "u1", ReasonLogout, clock.Now().Add(-time.Second)); err != nil {
		t.Fatalf("Blacklist expired: %v", err)
	}
	if ok, _ := s.IsBlacklisted(ctx, "stale"); ok {
		t.Fatalf("expired token should not be recorded")
	}
}

func TestSweepExpiredRemovesPastRetention(t *testing.T) {
	s, clock, _ := newLedgerTest(t)
	ctx := context.Background()

	if _, err := s.Issue(ctx, Issue{Type: TypeReset, IdentityID: "u1", Token: "old", ExpiresAt: clock.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	issueRefresh(t, s, clock, "u1", "s1", "fresh")

	removed, err := s.SweepExpired(ctx, clock.Now().Add(26*time.Hour))
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed %d, want 1", removed)
	}
	if _, err := s.Lookup(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("swept record still present: %v", err)
	}
	if _, err := s.FindValid(ctx, "fresh", TypeRefresh); err != nil {
		t.Fatalf("unexpired record swept: %v", err)
	}
}

func TestIssueRejectsUnpersistedTypes(t *testing.T) {
	s, clock, _ := newLedgerTest(t)
	_, err := s.Issue(context.Background(), Issue{Type: TypeAccess, IdentityID: "u1", Token: "x", ExpiresAt: clock.Now().Add(time.Minute)})
	if err == nil {
		t.Fatalf("access tokens must not be persisted")
	}
}

func TestUnavailableBackend(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	s := NewStore(rdb, Options{})
	mr.Close()

	_, err = s.FindValid(context.Background(), "tok", TypeRefresh)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
