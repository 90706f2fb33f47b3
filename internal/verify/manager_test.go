package verify

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	apperrors "github.com/kitemc/verifyd/pkg/errors"
)

func TestIssueAndVerifyOnce(t *testing.T) {
	m := NewManager()

	value, expires, err := m.Issue("alice@example.com")
	require.NoError(t, err)
	require.Len(t, value, 6)
	require.True(t, expires.After(time.Now()))

	require.NoError(t, m.Verify("alice@example.com", value))

	// Consumed codes can never verify a second time.
	err = m.Verify("alice@example.com", value)
	require.ErrorIs(t, err, apperrors.ErrCodeExpired)
}

func TestVerifyIdentityIsCaseInsensitive(t *testing.T) {
	m := NewManager()

	value, _, err := m.Issue("Alice@Example.com")
	require.NoError(t, err)

	require.NoError(t, m.Verify("alice@example.com", value))
}

func TestVerifyWithoutActiveCode(t *testing.T) {
	m := NewManager()

	err := m.Verify("nobody@example.com", "123456")
	require.ErrorIs(t, err, apperrors.ErrCodeExpired)
}

func TestReissueInvalidatesPriorCode(t *testing.T) {
	m := NewManager()

	first, _, err := m.Issue("alice@example.com")
	require.NoError(t, err)
	second, _, err := m.Issue("alice@example.com")
	require.NoError(t, err)

	if first != second {
		err = m.Verify("alice@example.com", first)
		require.ErrorIs(t, err, apperrors.ErrCodeMismatch)
	}
	require.NoError(t, m.Verify("alice@example.com", second))
}

func TestAttemptBudgetExhaustion(t *testing.T) {
	m := NewManager(WithMaxAttempts(3))

	value, _, err := m.Issue("alice@example.com")
	require.NoError(t, err)

	wrong := "000000"
	if wrong == value {
		wrong = "000001"
	}

	for i := 0; i < 3; i++ {
		err = m.Verify("alice@example.com", wrong)
		require.ErrorIs(t, err, apperrors.ErrCodeMismatch)
	}

	// Even the correct value is refused once the budget is spent.
	err = m.Verify("alice@example.com", value)
	require.ErrorIs(t, err, apperrors.ErrCodeAttemptsExhausted)
}

func TestReissueResetsAttemptBudget(t *testing.T) {
	m := NewManager(WithMaxAttempts(1))

	value, _, err := m.Issue("alice@example.com")
	require.NoError(t, err)

	wrong := "000000"
	if wrong == value {
		wrong = "000001"
	}
	require.ErrorIs(t, m.Verify("alice@example.com", wrong), apperrors.ErrCodeMismatch)
	require.ErrorIs(t, m.Verify("alice@example.com", value), apperrors.ErrCodeAttemptsExhausted)

	fresh, _, err := m.Issue("alice@example.com")
	require.NoError(t, err)
	require.NoError(t, m.Verify("alice@example.com", fresh))
}

func TestExpiryIsLazilyEnforced(t *testing.T) {
	current := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	m := NewManager(
		WithTTL(10*time.Minute),
		WithClock(func() time.Time { return current }),
	)

	value, expires, err := m.Issue("alice@example.com")
	require.NoError(t, err)
	require.Equal(t, current.Add(10*time.Minute), expires)

	current = current.Add(11 * time.Minute)

	// A stale code is Expired regardless of value correctness.
	err = m.Verify("alice@example.com", value)
	require.ErrorIs(t, err, apperrors.ErrCodeExpired)
}

func TestIssueAfterConsumption(t *testing.T) {
	m := NewManager()

	value, _, err := m.Issue("alice@example.com")
	require.NoError(t, err)
	require.NoError(t, m.Verify("alice@example.com", value))

	fresh, _, err := m.Issue("alice@example.com")
	require.NoError(t, err)
	require.NoError(t, m.Verify("alice@example.com", fresh))
}

func TestSweepDropsExpiredCodes(t *testing.T) {
	current := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	m := NewManager(
		WithTTL(time.Minute),
		WithClock(func() time.Time { return current }),
	)

	_, _, err := m.Issue("a@example.com")
	require.NoError(t, err)
	_, _, err = m.Issue("b@example.com")
	require.NoError(t, err)
	require.Equal(t, 2, m.ActiveCodes())

	current = current.Add(2 * time.Minute)
	require.Equal(t, 2, m.Sweep())
	require.Equal(t, 0, m.ActiveCodes())
}

func TestConcurrentVerifySingleConsumer(t *testing.T) {
	m := NewManager()

	value, _, err := m.Issue("alice@example.com")
	require.NoError(t, err)

	const workers = 8
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		oks int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Verify("alice@example.com", value); err == nil {
				mu.Lock()
				oks++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, oks, "check-then-consume must be atomic")
}
