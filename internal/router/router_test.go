package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/0xArchitect/ludo-backend/internal/auth"
	"github.com/0xArchitect/ludo-backend/internal/config"
	"github.com/0xArchitect/ludo-backend/internal/dto"
	"github.com/0xArchitect/ludo-backend/internal/handlers"
	"github.com/0xArchitect/ludo-backend/internal/middleware"
	"github.com/0xArchitect/ludo-backend/internal/services"
	"github.com/0xArchitect/ludo-backend/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tokens look like "user-<id>"
type fakeVerifier struct{}

func (fakeVerifier) Verify(token string) (auth.Identity, error) {
	id, err := strconv.ParseUint(strings.TrimPrefix(token, "user-"), 10, 64)
	if err != nil || !strings.HasPrefix(token, "user-") {
		return auth.Identity{}, fmt.Errorf("%w: bad token", types.ErrUnauthorized)
	}
	return auth.Identity{UserID: id, Subject: strconv.FormatUint(id, 10)}, nil
}

type fakeQueries struct {
	gotOffset, gotLimit int
}

func (q *fakeQueries) Balance(_ context.Context, userID uint64) (*dto.BalanceResponse, error) {
	if userID == 404 {
		return nil, fmt.Errorf("%w: account 404", types.ErrNotFound)
	}
	return &dto.BalanceResponse{UserID: userID, Balance: "60", PendingBalance: "40"}, nil
}

func (q *fakeQueries) Transactions(_ context.Context, _ uint64, offset, limit int) ([]dto.TransactionResponse, error) {
	q.gotOffset, q.gotLimit = offset, limit
	if limit > 100 {
		return nil, fmt.Errorf("%w: limit", types.ErrValidation)
	}
	return []dto.TransactionResponse{{Amount: "100", TxHash: "0xaa", Type: "deposit"}}, nil
}

type fakeAuthorizer struct {
	mu   sync.Mutex
	reqs []services.WithdrawalRequest
	err  error
}

func (a *fakeAuthorizer) Authorize(_ context.Context, identity auth.Identity, req services.WithdrawalRequest) (*dto.WithdrawalAuthorization, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reqs = append(a.reqs, req)
	if a.err != nil {
		return nil, a.err
	}
	return &dto.WithdrawalAuthorization{
		Signature: "0xsig",
		Amount:    "40000000000000000000",
		Address:   req.Address,
		Timestamp: 1740830400,
		Nonce:     identity.UserID,
	}, nil
}

type harness struct {
	engine     *gin.Engine
	queries    *fakeQueries
	authorizer *fakeAuthorizer
}

func newHarness(t *testing.T, throttle time.Duration) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger, _ := test.NewNullLogger()

	h := &harness{queries: &fakeQueries{}, authorizer: &fakeAuthorizer{}}
	h.engine = SetupRouter(Dependencies{
		Ledger:   handlers.NewLedgerHandler(h.queries, h.authorizer, logger),
		Verifier: fakeVerifier{},
		Throttle: middleware.NewUserThrottle(throttle, logger),
		CORS:     config.CORSConfig{AllowedOrigins: []string{"https://app.ludo.example"}},
		Logger:   logger,
	})
	return h
}

func (h *harness) do(t *testing.T, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.RemoteAddr = "203.0.113.9:4000"
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	return body
}

func TestRouter_Health(t *testing.T) {
	h := newHarness(t, 0)
	w := h.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestRouter_Balance(t *testing.T) {
	h := newHarness(t, 0)

	w := h.do(t, http.MethodGet, "/balance", "user-7", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.BalanceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, dto.BalanceResponse{UserID: 7, Balance: "60", PendingBalance: "40"}, resp)

	w = h.do(t, http.MethodGet, "/balance", "user-404", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, w)["code"])
}

func TestRouter_AuthRequired(t *testing.T) {
	h := newHarness(t, 0)

	w := h.do(t, http.MethodGet, "/balance", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", decodeError(t, w)["code"])

	w = h.do(t, http.MethodGet, "/balance", "forged", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/balance", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	w = httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// query string fallback
	w = h.do(t, http.MethodGet, "/balance?accessToken=user-9", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_WithdrawBodyTokenFallback(t *testing.T) {
	h := newHarness(t, 0)

	w := h.do(t, http.MethodPost, "/withdraw", "",
		`{"accessToken":"user-3","amount":"40","user_address":"0x70997970C51812dc3A010C7d01b50e0d17dc79C8"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var permit dto.WithdrawalAuthorization
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &permit))
	assert.Equal(t, "40000000000000000000", permit.Amount)
	assert.Equal(t, uint64(3), permit.Nonce)

	require.Len(t, h.authorizer.reqs, 1)
	assert.Equal(t, "40", h.authorizer.reqs[0].Amount)
	assert.Equal(t, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", h.authorizer.reqs[0].Address)
}

func TestRouter_WithdrawAcceptsNumericAmount(t *testing.T) {
	h := newHarness(t, 0)

	w := h.do(t, http.MethodPost, "/withdraw", "user-3",
		`{"amount":12.5,"address":"0x70997970c51812dc3a010c7d01b50e0d17dc79c8","otp":"123456","requestId":"r-1"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, h.authorizer.reqs, 1)
	assert.Equal(t, services.WithdrawalRequest{
		Amount:    "12.5",
		Address:   "0x70997970c51812dc3a010c7d01b50e0d17dc79c8",
		OTP:       "123456",
		RequestID: "r-1",
	}, h.authorizer.reqs[0])

	w = h.do(t, http.MethodPost, "/withdraw", "user-3", `{"amount":"forty"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, w)["code"])
}

func TestRouter_WithdrawErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: balance 100", types.ErrInsufficientFunds), http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS"},
		{fmt.Errorf("%w: code required", types.ErrUnauthenticated), http.StatusUnauthorized, "INVALID_OTP"},
		{fmt.Errorf("%w: amount", types.ErrValidation), http.StatusBadRequest, "VALIDATION_ERROR"},
		{fmt.Errorf("%w: sign: hsm offline", types.ErrExternalUnavailable), http.StatusServiceUnavailable, "EXTERNAL_UNAVAILABLE"},
		{fmt.Errorf("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			h := newHarness(t, 0)
			h.authorizer.err = tc.err

			w := h.do(t, http.MethodPost, "/withdraw", "user-1", `{"amount":"1","address":"0x70997970c51812dc3a010c7d01b50e0d17dc79c8"}`)
			assert.Equal(t, tc.status, w.Code)
			body := decodeError(t, w)
			assert.Equal(t, tc.code, body["code"])
			if tc.status >= 500 {
				assert.NotContains(t, body["message"], "hsm")
			}
		})
	}
}

func TestRouter_WithdrawThrottle(t *testing.T) {
	h := newHarness(t, time.Minute)
	body := `{"amount":"1","address":"0x70997970c51812dc3a010c7d01b50e0d17dc79c8"}`

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/withdraw", "user-1", body).Code)

	w := h.do(t, http.MethodPost, "/withdraw", "user-1", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", decodeError(t, w)["code"])

	// other users are unaffected, reads are never throttled
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/withdraw", "user-2", body).Code)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/balance", "user-1", "").Code)
	assert.Len(t, h.authorizer.reqs, 2)
}

func TestRouter_Transactions(t *testing.T) {
	h := newHarness(t, 0)

	w := h.do(t, http.MethodGet, "/transactions?offset=5&limit=10", "user-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, h.queries.gotOffset)
	assert.Equal(t, 10, h.queries.gotLimit)

	var txs []dto.TransactionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &txs))
	require.Len(t, txs, 1)
	assert.Equal(t, "0xaa", txs[0].TxHash)

	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/transactions?limit=abc", "user-1", "").Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/transactions?limit=101", "user-1", "").Code)
}

func TestRouter_MetricsRestricted(t *testing.T) {
	h := newHarness(t, 0)

	w := h.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.RemoteAddr = "127.0.0.1:5000"
	w = httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "backend_http_request_duration_seconds")
}

func TestRouter_CORS(t *testing.T) {
	h := newHarness(t, 0)

	req := httptest.NewRequest(http.MethodOptions, "/withdraw", nil)
	req.Header.Set("Origin", "https://app.ludo.example")
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.ludo.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_NoRoute(t *testing.T) {
	h := newHarness(t, 0)
	w := h.do(t, http.MethodGet, "/api/v2/checkbooks", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, w)["code"])
}
