package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	appErrors "github.com/kitemc/verifyd/pkg/errors"
)

func newTestContext(t *testing.T) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	return c, rec
}

func TestSuccessEnvelope(t *testing.T) {
	c, rec := newTestContext(t)

	Success(c, http.StatusOK, map[string]string{"id": "abc"})

	require.Equal(t, http.StatusOK, rec.Code)

	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Success)
	require.Nil(t, body.Error)
}

func TestErrorUsesAppErrorStatus(t *testing.T) {
	c, rec := newTestContext(t)

	Error(c, appErrors.ErrConflict)

	require.Equal(t, http.StatusConflict, rec.Code)

	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.False(t, body.Success)
	require.Equal(t, appErrors.ErrConflict.Code, body.Error.Code)
}

func TestErrorMasksUnknownErrors(t *testing.T) {
	c, rec := newTestContext(t)

	Error(c, errors.New("disk exploded"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, appErrors.ErrInternalServer.Code, body.Error.Code)
	require.NotContains(t, body.Error.Message, "disk exploded")
}
