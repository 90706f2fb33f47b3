package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/kitemc/verifyd/internal/auth"
	"github.com/kitemc/verifyd/internal/hub"
	"github.com/kitemc/verifyd/internal/registry"
	"github.com/kitemc/verifyd/internal/store"
	"github.com/kitemc/verifyd/internal/verify"
	"github.com/kitemc/verifyd/pkg/crypto"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	dir := t.TempDir()
	users, err := store.NewFileUserStore(filepath.Join(dir, "users.json"))
	require.NoError(t, err)
	audits, err := store.NewFileAuditStore(filepath.Join(dir, "audit.json"))
	require.NoError(t, err)

	h := hub.NewHub()
	t.Cleanup(h.Close)

	svc, err := registry.NewService(users, audits, verify.NewManager(), h, registry.Config{})
	require.NoError(t, err)

	tokens, err := iauth.NewService(iauth.Config{Secret: "router-test-secret"})
	require.NoError(t, err)
	hash, err := crypto.HashPassword("reviewpass")
	require.NoError(t, err)
	admin, err := iauth.NewAdmin(iauth.AdminConfig{Username: "admin", PasswordHash: hash}, tokens)
	require.NoError(t, err)

	router, err := NewRouter(Options{
		Registry:    svc,
		Hub:         h,
		Tokens:      tokens,
		Admin:       admin,
		RevealCodes: true,
	})
	require.NoError(t, err)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var envelope map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	}
	return rec, envelope
}

func loginAdmin(t *testing.T, router *gin.Engine) string {
	t.Helper()
	rec, envelope := doJSON(t, router, http.MethodPost, "/api/auth/login", "",
		gin.H{"username": "admin", "password": "reviewpass"})
	require.Equal(t, http.StatusOK, rec.Code)
	data := envelope["data"].(map[string]any)
	return data["token"].(string)
}

func TestClaimLifecycleOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	// Register.
	rec, envelope := doJSON(t, router, http.MethodPost, "/api/register", "",
		gin.H{"username": "alice", "email": "a@x.com"})
	require.Equal(t, http.StatusCreated, rec.Code)
	data := envelope["data"].(map[string]any)
	require.Equal(t, "pending", data["status"])
	accountID := data["id"].(string)
	code := data["code"].(string)
	require.Len(t, code, 6)

	// Confirm with the minted code.
	rec, envelope = doJSON(t, router, http.MethodPost, "/api/confirm", "",
		gin.H{"identity": "a@x.com", "code": code})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "pending", envelope["data"].(map[string]any)["status"])

	// Not yet on the whitelist.
	rec, envelope = doJSON(t, router, http.MethodGet, "/api/whitelist/alice", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, false, envelope["data"].(map[string]any)["allowed"])

	// Approve as reviewer.
	token := loginAdmin(t, router)
	rec, envelope = doJSON(t, router, http.MethodPut, fmt.Sprintf("/api/users/%s/status", accountID), token,
		gin.H{"status": "approved"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "approved", envelope["data"].(map[string]any)["status"])

	// Now allowed in.
	rec, envelope = doJSON(t, router, http.MethodGet, "/api/whitelist/alice", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, envelope["data"].(map[string]any)["allowed"])

	// Audit trail shows it all, attributed to the admin.
	rec, envelope = doJSON(t, router, http.MethodGet, "/api/audit?account_id="+accountID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := envelope["data"].([]any)
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1].(map[string]any)
	require.Equal(t, "approve", last["action"])
	require.Equal(t, "admin", last["actor"])
}

func TestReviewRoutesRequireAuth(t *testing.T) {
	router := newTestRouter(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/users"},
		{http.MethodPut, "/api/users/some-id/status"},
		{http.MethodDelete, "/api/users/some-id"},
		{http.MethodGet, "/api/audit"},
	} {
		rec, _ := doJSON(t, router, tc.method, tc.path, "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestListUsersFilterOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	token := loginAdmin(t, router)

	rec, _ := doJSON(t, router, http.MethodPost, "/api/register", "",
		gin.H{"username": "alice", "email": "a@x.com"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec, _ = doJSON(t, router, http.MethodPost, "/api/register", "",
		gin.H{"username": "bob", "email": "b@x.com"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, envelope := doJSON(t, router, http.MethodGet, "/api/users?status=pending", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, envelope["data"].([]any), 2)

	rec, envelope = doJSON(t, router, http.MethodGet, "/api/users?status=approved", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, envelope["data"])
}

func TestRegisterConflictOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	rec, _ := doJSON(t, router, http.MethodPost, "/api/register", "",
		gin.H{"username": "alice", "email": "a@x.com"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, envelope := doJSON(t, router, http.MethodPost, "/api/register", "",
		gin.H{"username": "Alice", "email": "b@x.com"})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, false, envelope["success"])
}

func TestLoginRejectsBadPassword(t *testing.T) {
	router := newTestRouter(t)

	rec, _ := doJSON(t, router, http.MethodPost, "/api/auth/login", "",
		gin.H{"username": "admin", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRemoveUserOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	token := loginAdmin(t, router)

	rec, envelope := doJSON(t, router, http.MethodPost, "/api/register", "",
		gin.H{"username": "alice", "email": "a@x.com"})
	require.Equal(t, http.StatusCreated, rec.Code)
	accountID := envelope["data"].(map[string]any)["id"].(string)

	rec, _ = doJSON(t, router, http.MethodDelete, "/api/users/"+accountID, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, router, http.MethodDelete, "/api/users/"+accountID, token, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
