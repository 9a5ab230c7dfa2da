package password

import (
	"errors"
	"strings"
)

// ErrUnknownFormat is returned when no configured algorithm recognizes a hash.
var ErrUnknownFormat = errors.New("unrecognized password hash format")

// Hasher hashes and verifies secrets with one algorithm.
type Hasher interface {
	Hash(password string) (string, error)
	// Verify reports whether password matches encoded. A mismatch is (false, nil).
	Verify(password, encoded string) (bool, error)
	NeedsUpgrade(encoded string) (bool, error)
	// Recognizes reports whether encoded was produced by this algorithm.
	Recognizes(encoded string) bool
}

// Multi hashes with a primary algorithm and verifies with whichever
// algorithm produced the stored hash.
type Multi struct {
	primary Hasher
	others  []Hasher
}

// NewMulti returns a dispatcher that hashes with primary.
func NewMulti(primary Hasher, others ...Hasher) *Multi {
	return &Multi{primary: primary, others: others}
}

func (m *Multi) Hash(password string) (string, error) {
	return m.primary.Hash(password)
}

func (m *Multi) Verify(password, encoded string) (bool, error) {
	h := m.pick(encoded)
	if h == nil {
		return false, ErrUnknownFormat
	}
	return h.Verify(password, encoded)
}

// NeedsUpgrade is true when encoded came from a non-primary algorithm or from
// weaker primary parameters.
func (m *Multi) NeedsUpgrade(encoded string) (bool, error) {
	h := m.pick(encoded)
	if h == nil {
		return false, ErrUnknownFormat
	}
	if h != m.primary {
		return true, nil
	}
	return h.NeedsUpgrade(encoded)
}

func (m *Multi) Recognizes(encoded string) bool {
	return m.pick(encoded) != nil
}

func (m *Multi) pick(encoded string) Hasher {
	if m.primary.Recognizes(encoded) {
		return m.primary
	}
	for _, h := range m.others {
		if h.Recognizes(encoded) {
			return h
		}
	}
	return nil
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
