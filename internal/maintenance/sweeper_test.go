package maintenance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kitemc/verifyd/internal/models"
	"github.com/kitemc/verifyd/internal/store"
	"github.com/kitemc/verifyd/internal/verify"
)

func newStores(t *testing.T) (*store.FileUserStore, *store.FileAuditStore, string) {
	t.Helper()
	dir := t.TempDir()
	usersPath := filepath.Join(dir, "users.json")
	users, err := store.NewFileUserStore(usersPath)
	require.NoError(t, err)
	audits, err := store.NewFileAuditStore(filepath.Join(dir, "audit.json"))
	require.NoError(t, err)
	return users, audits, usersPath
}

func TestRunOnceSweepsExpiredCodes(t *testing.T) {
	current := time.Now()
	codes := verify.NewManager(
		verify.WithTTL(time.Minute),
		verify.WithClock(func() time.Time { return current }),
	)

	_, _, err := codes.Issue("a@x.com")
	require.NoError(t, err)
	_, _, err = codes.Issue("b@x.com")
	require.NoError(t, err)
	require.Equal(t, 2, codes.ActiveCodes())

	current = current.Add(2 * time.Minute)

	s := NewSweeper(codes, nil, nil)
	require.NoError(t, s.RunOnce(context.Background()))
	require.Zero(t, codes.ActiveCodes())
}

func TestRunOnceEnforcesAuditRetention(t *testing.T) {
	_, audits, _ := newStores(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec := models.AuditRecord{
			Timestamp: base.Add(time.Duration(i) * 24 * time.Hour),
			Actor:     "system",
			AccountID: "a1",
			Action:    models.AuditRegister,
		}
		require.NoError(t, audits.Append(ctx, &rec))
	}

	now := base.Add(4 * 24 * time.Hour)
	s := NewSweeper(nil, nil, audits,
		WithNow(func() time.Time { return now }),
		WithAuditRetention(3*24*time.Hour),
	)
	require.NoError(t, s.RunOnce(ctx))

	remaining, err := audits.List(ctx, store.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, remaining, 2)
}

func TestRunOnceFlushesSnapshots(t *testing.T) {
	users, audits, usersPath := newStores(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, users.RegisterUser(ctx, &models.UserRecord{
		ID:                 "id-1",
		Username:           "alice",
		UsernameKey:        "alice",
		Email:              "a@x.com",
		Status:             models.StatusPending,
		CreatedAt:          now,
		LastStatusChangeAt: now,
	}))
	require.NoError(t, audits.Append(ctx, &models.AuditRecord{
		Timestamp: now, Actor: "system", AccountID: "id-1", Action: models.AuditRegister,
	}))

	s := NewSweeper(nil, users, audits)
	require.NoError(t, s.RunOnce(ctx))

	// A fresh store sees the flushed state.
	reloaded, err := store.NewFileUserStore(usersPath)
	require.NoError(t, err)
	all, err := reloaded.GetAllUsers(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestStartAndStopScheduler(t *testing.T) {
	s := NewSweeper(verify.NewManager(), nil, nil, WithSchedule("@every 1h"))
	require.NoError(t, s.Start())
	<-s.Stop().Done()
}
