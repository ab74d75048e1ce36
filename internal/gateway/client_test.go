package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/betbot/core/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(coreconfig.BackendConfig{
		BaseURL:        srv.URL,
		TimeoutSeconds: 5,
		Currency:       "ETB",
	})
}

func TestCreateTransactionSendsIdempotencyKey(t *testing.T) {
	var seenKey string
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/transactions", r.URL.Path)
		seenKey = r.Header.Get("Idempotency-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"transaction":{"id":7,"transactionUuid":"tx-7","type":"DEPOSIT","amount":"250","currency":"ETB","status":"PENDING"}}`))
	})

	tx, err := client.CreateTransaction(context.Background(), CreateTransactionRequest{
		PlayerUUID:    "p-1",
		Type:          TxDeposit,
		Amount:        250,
		DepositBankID: 3,
		BettingSiteID: 9,
		PlayerSiteID:  "player_01",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, seenKey)
	assert.Equal(t, int64(7), tx.ID)
	assert.Equal(t, 250.0, tx.Amount)
	assert.Equal(t, StatusPending, tx.Status)
	assert.Equal(t, "ETB", body["currency"], "default currency applied")
	assert.Equal(t, float64(3), body["depositBankId"])
	_, hasWithdrawal := body["withdrawalBankId"]
	assert.False(t, hasWithdrawal, "zero bank ids omitted")
}

func TestUnauthorizedMapsToSessionExpired(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
	})

	_, _, err := client.AdminTransactions(context.Background(), "stale-token", ListFilter{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSessionExpired))

	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, http.StatusUnauthorized, gwErr.Status)
	assert.False(t, gwErr.Retryable())
}

func TestAdminTransactionsSendsBearerAndFilter(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "PENDING", r.URL.Query().Get("status"))
		assert.Equal(t, "2026-08-30", r.URL.Query().Get("dateRange"))
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		_, _ = w.Write([]byte(`{"transactions":[{"id":1,"transactionUuid":"u1","type":"WITHDRAW","amount":100,"currency":"ETB","status":"PENDING"}],"pagination":{"page":1,"limit":20,"total":1}}`))
	})

	txs, page, err := client.AdminTransactions(context.Background(), "tok-1", ListFilter{
		Status:    StatusPending,
		DateRange: "2026-08-30",
	})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, TxWithdraw, txs[0].Type)
	assert.Equal(t, 1, page.Total)
}

func TestServerErrorIsRetryable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.DepositBanks(context.Background())
	require.Error(t, err)

	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
	assert.True(t, gwErr.Retryable())
	assert.Equal(t, "GATEWAY_502", gwErr.Code())
}

func TestLogoutPostsBearerToken(t *testing.T) {
	var seenPath, seenAuth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		seenPath = r.URL.Path
		seenAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	})

	require.NoError(t, client.Logout(context.Background(), "tok-9"))
	assert.Equal(t, "/auth/logout", seenPath)
	assert.Equal(t, "Bearer tok-9", seenAuth)
}

func TestLogoutReportsBackendFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	err := client.Logout(context.Background(), "tok-9")
	require.Error(t, err)

	var gwErr *Error
	require.True(t, errors.As(err, &gwErr))
	assert.True(t, gwErr.Retryable())
}

func TestSharedSecretHeaderSentWhenConfigured(t *testing.T) {
	var seenSecret string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenSecret = r.Header.Get("X-BACKEND-SECRET")
		_, _ = w.Write([]byte(`{"banks":[]}`))
	}))
	t.Cleanup(srv.Close)

	client := New(coreconfig.BackendConfig{
		BaseURL:        srv.URL,
		TimeoutSeconds: 5,
		Currency:       "ETB",
		Secret:         "shared-secret",
	})

	_, err := client.DepositBanks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "shared-secret", seenSecret)
}

func TestLoginLowercasesRole(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "agent7", body["username"])
		_, _ = w.Write([]byte(`{"accessToken":"tok","role":"AGENT","playerUuid":"p-9"}`))
	})

	res, err := client.Login(context.Background(), "agent7", "secret-pass")
	require.NoError(t, err)
	assert.Equal(t, "agent", res.Role)
	assert.Equal(t, "tok", res.AccessToken)
}
