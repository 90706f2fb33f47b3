package authme

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/kitemc/verifyd/pkg/errors"
)

func TestNewClientDisabledIsNoop(t *testing.T) {
	syncer, err := NewClient(Config{Enabled: false})
	require.NoError(t, err)

	_, ok := syncer.(Noop)
	require.True(t, ok)
	require.NoError(t, syncer.EnsureAccount(context.Background(), "alice", "hash"))
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{Enabled: true})
	require.Error(t, err)
}

func TestEnsureAccountPostsPayload(t *testing.T) {
	var got ensureRequest
	var auth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/accounts", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	syncer, err := NewClient(Config{Enabled: true, BaseURL: server.URL, Token: "secret"})
	require.NoError(t, err)

	require.NoError(t, syncer.EnsureAccount(context.Background(), "alice", "bcrypt-hash"))
	require.Equal(t, "alice", got.Username)
	require.Equal(t, "bcrypt-hash", got.PasswordHash)
	require.Equal(t, "Bearer secret", auth)
}

func TestEnsureAccountSurfacesSyncFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	syncer, err := NewClient(Config{Enabled: true, BaseURL: server.URL})
	require.NoError(t, err)

	err = syncer.EnsureAccount(context.Background(), "alice", "hash")
	require.ErrorIs(t, err, apperrors.ErrSyncFailure)
}

func TestEnsureAccountUnreachableBridge(t *testing.T) {
	syncer, err := NewClient(Config{Enabled: true, BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	err = syncer.EnsureAccount(context.Background(), "alice", "hash")
	require.ErrorIs(t, err, apperrors.ErrSyncFailure)
}
