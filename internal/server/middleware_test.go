package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolecraft/turneval/internal/auth"
	"github.com/rolecraft/turneval/internal/ctxutil"
	"github.com/rolecraft/turneval/internal/model"
	"github.com/rolecraft/turneval/internal/ratelimit"
	"github.com/rolecraft/turneval/internal/testutil"
)

func TestRecoveryMiddleware(t *testing.T) {
	h := requestIDMiddleware(recoveryMiddleware(testutil.TestLogger(), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/config", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body model.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, model.ErrCodeInternalError, body.Error.Code)
	assert.Equal(t, rec.Header().Get("X-Request-ID"), body.Meta.RequestID)
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := requestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = ctxutil.RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "caller-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "caller-123", seen)
	assert.Equal(t, "caller-123", rec.Header().Get("X-Request-ID"))

	req.Header.Set("X-Request-ID", "bad id\nwith newline")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.NotEqual(t, "bad id\nwith newline", seen)
	assert.Len(t, seen, 36, "replaced with a UUID")
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := requireRole(model.ClientEvaluator)(ok)

	cases := []struct {
		role model.ClientRole
		want int
	}{
		{model.ClientAdmin, http.StatusNoContent},
		{model.ClientEvaluator, http.StatusNoContent},
		{model.ClientReader, http.StatusForbidden},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/v1/evaluations", nil)
		req = req.WithContext(ctxutil.WithClaims(req.Context(), &auth.Claims{ClientID: "c", Role: tc.role}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, tc.want, rec.Code, "role %s", tc.role)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/evaluations", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestClientKeyFunc(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, clientKeyFunc(req))

	admin := req.WithContext(ctxutil.WithClaims(req.Context(), &auth.Claims{ClientID: "root", Role: model.ClientAdmin}))
	assert.Empty(t, clientKeyFunc(admin), "admins are exempt")

	runner := req.WithContext(ctxutil.WithClaims(req.Context(), &auth.Claims{ClientID: "runner", Role: model.ClientEvaluator}))
	assert.Equal(t, "client:runner", clientKeyFunc(runner))
}

func TestAuthRateLimitedByIP(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(1, 2)
	defer func() { _ = limiter.Close() }()

	mgr, err := auth.NewJWTManager("", "", 0)
	require.NoError(t, err)
	keyring, err := auth.NewKeyring(nil)
	require.NoError(t, err)
	srv := New(ServerConfig{
		JWTMgr:              mgr,
		Keyring:             keyring,
		Limiter:             limiter,
		Logger:              testutil.TestLogger(),
		MaxRequestBodyBytes: 1024,
	})

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "/auth/token", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	// The first two reach the handler (and fail on the empty body); the third is throttled.
	assert.Equal(t, []int{http.StatusBadRequest, http.StatusBadRequest, http.StatusTooManyRequests}, codes)
}
