package password

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHashAndVerify(t *testing.T) {
	b, err := NewBcrypt(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcrypt: %v", err)
	}
	hash, err := b.Hash("correct horse 1")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !b.Recognizes(hash) {
		t.Fatalf("bcrypt does not recognize its own hash %q", hash)
	}
	if ok, err := b.Verify("correct horse 1", hash); err != nil || !ok {
		t.Fatalf("Verify = %v, %v", ok, err)
	}
	if ok, err := b.Verify("wrong horse 1", hash); err != nil || ok {
		t.Fatalf("mismatch Verify = %v, %v", ok, err)
	}
}

func TestNewBcryptCost(t *testing.T) {
	b, err := NewBcrypt(0)
	if err != nil || b.cost != DefaultBcryptCost {
		t.Fatalf("default cost = %v, %v", b, err)
	}
	if _, err := NewBcrypt(bcrypt.MaxCost + 1); err == nil {
		t.Fatal("expected cost above max to be rejected")
	}
}

func TestMultiDispatchesOnPrefix(t *testing.T) {
	b, _ := NewBcrypt(bcrypt.MinCost)
	a, _ := NewArgon2(fastArgon2Config())
	m := NewMulti(b, a)

	legacy, err := a.Hash("legacy-secret1")
	if err != nil {
		t.Fatalf("argon2 Hash: %v", err)
	}
	if ok, err := m.Verify("legacy-secret1", legacy); err != nil || !ok {
		t.Fatalf("argon2 hash via Multi = %v, %v", ok, err)
	}
	if up, _ := m.NeedsUpgrade(legacy); !up {
		t.Fatal("non-primary hash should need upgrade")
	}

	fresh, err := m.Hash("fresh-secret1")
	if err != nil {
		t.Fatalf("Multi Hash: %v", err)
	}
	if !b.Recognizes(fresh) {
		t.Fatalf("Multi should hash with primary, got %q", fresh)
	}
	if up, _ := m.NeedsUpgrade(fresh); up {
		t.Fatal("primary hash should not need upgrade")
	}

	if _, err := m.Verify("x", "plaintext"); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
}

type slowHasher struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (s *slowHasher) Hash(string) (string, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	return "h", nil
}
func (s *slowHasher) Verify(string, string) (bool, error) { return true, nil }
func (s *slowHasher) NeedsUpgrade(string) (bool, error)   { return false, nil }
func (s *slowHasher) Recognizes(string) bool              { return true }

func TestPoolBoundsConcurrency(t *testing.T) {
	h := &slowHasher{}
	pool := NewPool(h, 2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := pool.Hash(context.Background(), "pw"); err != nil {
				t.Errorf("Hash: %v", err)
			}
		}()
	}
	wg.Wait()

	if peak := h.peak.Load(); peak > 2 {
		t.Fatalf("peak concurrency %d exceeds pool size", peak)
	}
}

func TestPoolHonorsContext(t *testing.T) {
	pool := NewPool(&slowHasher{}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := pool.Verify(ctx, "pw", "h"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
