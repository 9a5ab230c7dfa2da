package inkauth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/inkauth/identity"
	"github.com/MrEthical07/inkauth/identity/memory"
	"github.com/MrEthical07/inkauth/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

const (
	testPassword = "Secur3!pass"
	testIP       = "203.0.113.7"
)

var testDevice = Device{UserAgent: "inkauth-test/1.0", IP: testIP}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Now().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type sentToken struct {
	identityID string
	token      string
	expiresAt  time.Time
}

type captureNotifier struct {
	mu            sync.Mutex
	resets        []sentToken
	verifications []sentToken
}

func (n *captureNotifier) SendPasswordReset(_ context.Context, ident *identity.Identity, token string, expiresAt time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resets = append(n.resets, sentToken{identityID: ident.ID, token: token, expiresAt: expiresAt})
	return nil
}

func (n *captureNotifier) SendEmailVerification(_ context.Context, ident *identity.Identity, token string, expiresAt time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.verifications = append(n.verifications, sentToken{identityID: ident.ID, token: token, expiresAt: expiresAt})
	return nil
}

func (n *captureNotifier) lastReset(t *testing.T) sentToken {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.resets) == 0 {
		t.Fatal("no reset token was delivered")
	}
	return n.resets[len(n.resets)-1]
}

type testHarness struct {
	engine      *Engine
	store       *memory.Store
	mr          *miniredis.Miniredis
	rdb         *redis.Client
	clock       *testClock
	notifier    *captureNotifier
	auditEvents *ChannelSink
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-for-tests-0123456789abcdef")
	cfg.JWT.RefreshSecret = []byte("refresh-secret-for-tests-0123456789abcdef")
	return cfg
}

func newHarness(t testing.TB, mutate ...func(*Config)) *testHarness {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	hasher, err := password.NewBcrypt(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcrypt failed: %v", err)
	}

	h := &testHarness{
		store:       memory.New(),
		mr:          mr,
		rdb:         rdb,
		clock:       newTestClock(),
		notifier:    &captureNotifier{},
		auditEvents: NewChannelSink(1024),
	}
	h.engine, err = New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityStore(h.store).
		WithPasswordHasher(hasher).
		WithAuditSink(h.auditEvents).
		WithResetNotifier(h.notifier).
		WithVerificationNotifier(h.notifier).
		WithClock(h.clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(h.engine.Close)
	return h
}

func (h *testHarness) register(t *testing.T, email string) *AuthResult {
	t.Helper()
	res, err := h.engine.Register(context.Background(), RegisterRequest{
		Email:    email,
		Password: testPassword,
		Role:     "reader",
		FullName: "A",
	}, testDevice)
	if err != nil {
		t.Fatalf("Register(%s) failed: %v", email, err)
	}
	return res
}

func (h *testHarness) login(t *testing.T, email string) *AuthResult {
	t.Helper()
	res, err := h.engine.Login(context.Background(), email, testPassword, testDevice)
	if err != nil {
		t.Fatalf("Login(%s) failed: %v", email, err)
	}
	return res
}
