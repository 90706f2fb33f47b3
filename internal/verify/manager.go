// Package verify manages short-lived one-time verification codes keyed by
// claim identity. Codes live in memory only: they are worthless after their
// ten-minute window and must not survive a restart anyway.
package verify

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kitemc/verifyd/pkg/crypto"
	apperrors "github.com/kitemc/verifyd/pkg/errors"
)

const (
	defaultTTL         = 10 * time.Minute
	defaultCodeLength  = 6
	defaultMaxAttempts = 5
)

// Option customises the Manager.
type Option func(*Manager)

// WithTTL overrides the code lifetime.
func WithTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

// WithCodeLength adjusts the number of digits in generated codes.
func WithCodeLength(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.codeLength = n
		}
	}
}

// WithMaxAttempts sets the attempt budget per issued code.
func WithMaxAttempts(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// WithClock injects a custom time source.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		if clock != nil {
			m.now = clock
		}
	}
}

type code struct {
	value             string
	issuedAt          time.Time
	expiresAt         time.Time
	consumed          bool
	attemptsRemaining int
}

// Manager issues and consumes one-time codes. At most one active code exists
// per claim identity; issuing a fresh one invalidates its predecessor.
type Manager struct {
	mu          sync.Mutex
	codes       map[string]*code
	ttl         time.Duration
	codeLength  int
	maxAttempts int
	now         func() time.Time
}

// NewManager constructs a Manager with the supplied options.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		codes:       make(map[string]*code),
		ttl:         defaultTTL,
		codeLength:  defaultCodeLength,
		maxAttempts: defaultMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Issue mints a fresh code for the claim identity, replacing any prior active
// code and resetting the attempt budget. The caller owns delivering the code
// and writing the code-issued audit entry; the manager stays storage-agnostic.
func (m *Manager) Issue(identity string) (string, time.Time, error) {
	identity = normalizeIdentity(identity)
	if identity == "" {
		return "", time.Time{}, fmt.Errorf("verify: claim identity is required")
	}

	value, err := crypto.RandomDigits(m.codeLength)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("verify: generate code: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	expires := now.Add(m.ttl)
	m.codes[identity] = &code{
		value:             value,
		issuedAt:          now,
		expiresAt:         expires,
		attemptsRemaining: m.maxAttempts,
	}

	return value, expires, nil
}

// Verify checks the submitted value against the active code for the identity.
// Outcomes, in precedence order: no active or stale code yields ErrCodeExpired;
// an exhausted attempt budget yields ErrCodeAttemptsExhausted; a wrong value
// decrements the budget and yields ErrCodeMismatch. On success the code is
// consumed in the same critical section, so Ok can never be returned twice.
func (m *Manager) Verify(identity, submitted string) error {
	identity = normalizeIdentity(identity)

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.codes[identity]
	if !ok || c.consumed {
		return apperrors.ErrCodeExpired
	}

	now := m.now()
	if now.After(c.expiresAt) {
		delete(m.codes, identity)
		return apperrors.ErrCodeExpired
	}

	// An exhausted code lingers until expiry so later attempts, even with
	// the correct value, report exhaustion rather than a missing code.
	if c.attemptsRemaining <= 0 {
		return apperrors.ErrCodeAttemptsExhausted
	}
	c.attemptsRemaining--

	if c.value != strings.TrimSpace(submitted) {
		return apperrors.ErrCodeMismatch
	}

	// Check and consume are one atomic step under the manager lock.
	c.consumed = true
	delete(m.codes, identity)
	return nil
}

// Sweep drops unconsumed codes past their expiry. Expiry is also enforced
// lazily in Verify, so the sweep only bounds memory, never correctness.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for identity, c := range m.codes {
		if now.After(c.expiresAt) {
			delete(m.codes, identity)
			removed++
		}
	}
	return removed
}

// ActiveCodes reports how many unexpired codes are outstanding.
func (m *Manager) ActiveCodes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.codes)
}

func normalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}
