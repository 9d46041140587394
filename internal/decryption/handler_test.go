package decryption

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "github.com/ahwlsqja/shadow-vote/internal/common/errors"
	"github.com/ahwlsqja/shadow-vote/internal/common/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(env *testEnv) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	NewHandler(env.service, zap.NewNop()).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func serve(r http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_Authorize(t *testing.T) {
	env := newTestEnv(t)
	r := newTestRouter(env)

	w := serve(r, http.MethodPost, "/api/v1/decryption-signatures",
		`{"contract_addresses":["`+contractA+`"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "private")

	var resp struct {
		Data SignatureResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, env.signer.Address().Hex(), resp.Data.UserAddress)
	assert.Equal(t, []string{contractA}, resp.Data.ContractAddresses)
	assert.Equal(t, int64(365), resp.Data.DurationDays)
	assert.Len(t, resp.Data.Signature, 132)
	assert.NotEmpty(t, resp.Data.CacheKey)

	t.Run("lookup returns cached", func(t *testing.T) {
		w := serve(r, http.MethodGet, "/api/v1/decryption-signatures?contracts="+contractA, "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), resp.Data.Signature)
	})

	t.Run("cache key matches", func(t *testing.T) {
		w := serve(r, http.MethodGet, "/api/v1/decryption-signatures/cache-key?contracts="+contractA, "")
		require.Equal(t, http.StatusOK, w.Code)

		var key struct {
			Data CacheKeyResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &key))
		assert.Equal(t, resp.Data.CacheKey, key.Data.CacheKey)
	})
}

func TestHandler_AuthorizeErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		decline    bool
		wantStatus int
		wantCode   string
	}{
		{name: "empty list", body: `{"contract_addresses":[]}`, wantStatus: http.StatusBadRequest, wantCode: apperrors.CodeInvalidInput},
		{name: "malformed json", body: `{`, wantStatus: http.StatusBadRequest, wantCode: apperrors.CodeInvalidInput},
		{name: "declined", body: `{"contract_addresses":["` + contractA + `"]}`, decline: true, wantStatus: http.StatusForbidden, wantCode: apperrors.CodeAuthorizationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.signer.decline = tt.decline
			r := newTestRouter(env)

			w := serve(r, http.MethodPost, "/api/v1/decryption-signatures", tt.body)
			require.Equal(t, tt.wantStatus, w.Code)

			var resp middleware.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.RequestID)
		})
	}
}

func TestHandler_LookupMiss(t *testing.T) {
	r := newTestRouter(newTestEnv(t))

	w := serve(r, http.MethodGet, "/api/v1/decryption-signatures?contracts="+contractB, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(r, http.MethodGet, "/api/v1/decryption-signatures/cache-key", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
