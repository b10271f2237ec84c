package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"escrow-service/config"
	"escrow-service/internal/apperr"
	"escrow-service/internal/auth"
	"escrow-service/internal/models"
	"escrow-service/internal/service"
	"escrow-service/internal/store/memstore"
	"escrow-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testAuth = config.AuthConfig{JWTSecret: "api-test-secret", JWTIssuer: "identity-service"}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

type testServer struct {
	router *gin.Engine
	db     *memstore.Store
}

func newTestServer(t *testing.T, readiness ...Pinger) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	util.SetLogger(zap.NewNop())

	db := memstore.New()
	business := config.BusinessConfig{
		CommissionRate:    decimal.RequireFromString("0.05"),
		InspectorShare:    decimal.RequireFromString("0.8"),
		InspectionFee:     100,
		PointsPerCurrency: 1000,
	}
	wallets := service.NewWalletService(db, nil, business)
	h := NewHandler(Services{
		Orders:      service.NewOrderService(db, nil, nil, business),
		Disputes:    service.NewDisputeService(db, nil, business),
		Inspections: service.NewInspectionService(db, nil, business),
		Withdrawals: service.NewWithdrawalService(db, nil),
		Wallets:     wallets,
		Gateway:     service.NewGatewayService(config.GatewayConfig{TmnCode: "TMN", HashSecret: "secret", PayURL: "https://pay.example.com"}, wallets),
		History:     service.NewHistoryService(db),
	}, testAuth, append([]Pinger{db}, readiness...)...)

	router := gin.New()
	h.SetupRoutes(router)
	return &testServer{router: router, db: db}
}

func token(t *testing.T, userID int64, role string) string {
	t.Helper()
	tok, err := auth.MintToken(testAuth, time.Now(), time.Hour, userID, role)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var env errorEnvelope
	decode(t, w, &env)
	return env.Error.Code
}

func TestHealthAndReadiness(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/ready", "", nil).Code)

	down := newTestServer(t, failingPinger{})
	assert.Equal(t, http.StatusServiceUnavailable, down.do(t, http.MethodGet, "/ready", "", nil).Code)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/wallets/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, string(apperr.CodeUnauthorized), errorCode(t, w))

	w = s.do(t, http.MethodGet, "/api/v1/wallets/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/admin/disputes", token(t, 1, auth.RoleUser), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, string(apperr.CodeForbidden), errorCode(t, w))

	w = s.do(t, http.MethodPost, "/api/v1/inspections/1/start", token(t, 1, auth.RoleUser), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestOrderFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	buyer, seller, admin := token(t, 1, auth.RoleUser), token(t, 2, auth.RoleUser), token(t, 9, auth.RoleAdmin)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/wallets", buyer, nil).Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/wallets", seller, nil).Code)
	w := s.do(t, http.MethodPost, "/api/v1/admin/deposits", admin, gin.H{"user_id": 1, "amount": 1000, "reference_id": "ops-1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	item := s.db.PutItem(models.Item{OwnerID: 2, PricePoints: 400, Status: models.ItemStatusActive})

	w = s.do(t, http.MethodPost, "/api/v1/orders", buyer, gin.H{"item_id": item.ID, "idempotency_key": "k1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var order models.Order
	decode(t, w, &order)
	assert.Equal(t, models.OrderStatusEscrowed, order.Status)

	w = s.do(t, http.MethodPost, "/api/v1/orders", buyer, gin.H{"item_id": item.ID, "idempotency_key": "k1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(apperr.CodeDuplicateRequest), errorCode(t, w))

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/orders/%d", order.ID), token(t, 5, auth.RoleUser), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/orders/%d/approve", order.ID), buyer, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/wallets/me", seller, nil)
	var wallet models.Wallet
	decode(t, w, &wallet)
	assert.Equal(t, int64(380), wallet.AvailablePoints)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/orders/%d/history", order.ID), seller, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/wallets/me/transactions?type=escrow_hold,spend", buyer, nil)
	var txs struct {
		Transactions []models.PointTransaction `json:"transactions"`
	}
	decode(t, w, &txs)
	assert.Len(t, txs.Transactions, 2)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	buyer := token(t, 1, auth.RoleUser)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/wallets", buyer, nil).Code)
	item := s.db.PutItem(models.Item{OwnerID: 2, PricePoints: 400, Status: models.ItemStatusActive})

	w := s.do(t, http.MethodPost, "/api/v1/orders", buyer, gin.H{"item_id": item.ID, "idempotency_key": "k2"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, string(apperr.CodeInsufficientBalance), errorCode(t, w))

	w = s.do(t, http.MethodPost, "/api/v1/orders", buyer, gin.H{"idempotency_key": "k3"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(apperr.CodeValidation), errorCode(t, w))

	w = s.do(t, http.MethodGet, "/api/v1/orders/abc", buyer, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/orders/404", buyer, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(apperr.CodeNotFound), errorCode(t, w))
}

func TestErrorBodyHidesInternals(t *testing.T) {
	status, body := errorBody(errors.New("pq: connection reset"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, string(apperr.CodeInternal), body.Error.Code)
	assert.Equal(t, "internal server error", body.Error.Message)
	assert.Nil(t, body.Error.Details)

	status, body = errorBody(apperr.Forbidden("user 3 is not the buyer"))
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "access denied", body.Error.Message)
}

func TestWithdrawalOverHTTP(t *testing.T) {
	s := newTestServer(t)
	user, admin := token(t, 1, auth.RoleUser), token(t, 9, auth.RoleAdmin)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/wallets", user, nil).Code)
	s.do(t, http.MethodPost, "/api/v1/admin/deposits", admin, gin.H{"user_id": 1, "amount": 500, "reference_id": "ops-w"})

	w := s.do(t, http.MethodPost, "/api/v1/wallets/me/withdrawals", user, gin.H{
		"amount": 100, "bank_name": "ACB", "bank_account_name": "TRAN B", "bank_account_number": "12345678",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var tx models.PointTransaction
	decode(t, w, &tx)

	w = s.do(t, http.MethodGet, "/api/v1/admin/withdrawals?status=pending", admin, nil)
	var list struct {
		Withdrawals []models.PointTransaction `json:"withdrawals"`
	}
	decode(t, w, &list)
	require.Len(t, list.Withdrawals, 1)

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/admin/withdrawals/%d/reject", tx.ID), admin, gin.H{"reason": "name mismatch"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/wallets/me", user, nil)
	var wallet models.Wallet
	decode(t, w, &wallet)
	assert.Equal(t, int64(500), wallet.AvailablePoints)
	assert.Equal(t, int64(0), wallet.FrozenPoints)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/admin/history/withdrawal/%d", tx.ID), admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var audit struct {
		History []models.EntityHistory `json:"history"`
	}
	decode(t, w, &audit)
	require.Len(t, audit.History, 2)
	require.NotNil(t, audit.History[0].PerformedBy)
	assert.Equal(t, int64(1), *audit.History[0].PerformedBy)
	assert.Equal(t, "rejected", audit.History[1].Action)
	require.NotNil(t, audit.History[1].PerformedBy)
	assert.Equal(t, int64(9), *audit.History[1].PerformedBy)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/admin/history/withdrawal/%d", tx.ID), user, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGatewayIPNRejectsBadSignature(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/v1/payments/gateway/ipn?vnp_TmnCode=TMN&vnp_SecureHash=deadbeef", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "RspCode=97&Message=Invalid signature", w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/payments/gateway/return?vnp_TmnCode=TMN", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDepositURL(t *testing.T) {
	s := newTestServer(t)
	user := token(t, 1, auth.RoleUser)

	w := s.do(t, http.MethodGet, "/api/v1/wallets/me/deposit-url?amount=50000", user, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	decode(t, w, &body)
	assert.Contains(t, body["payment_url"], "https://pay.example.com?")

	w = s.do(t, http.MethodGet, "/api/v1/wallets/me/deposit-url?amount=x", user, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
