package server_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyades-labs/tokengate/internal/crypto"
	"github.com/hyades-labs/tokengate/internal/domain"
	"github.com/hyades-labs/tokengate/internal/ledger"
	"github.com/hyades-labs/tokengate/internal/policy"
	"github.com/hyades-labs/tokengate/internal/sale"
	"github.com/hyades-labs/tokengate/internal/server"
	"github.com/hyades-labs/tokengate/internal/server/handler"
	"github.com/hyades-labs/tokengate/internal/service"
	"github.com/hyades-labs/tokengate/internal/store/memory"
	"github.com/hyades-labs/tokengate/internal/testutil"
)

type testEnv struct {
	srv      *httptest.Server
	store    *memory.Store
	ledger   *ledger.Memory
	clock    *testutil.Clock
	operator string
}

func newTestEnv(t *testing.T, apiKey string) *testEnv {
	t.Helper()

	store := memory.New()
	led := ledger.NewMemory()
	clock := testutil.NewClock(1_000)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	engine := sale.NewEngine(store, store.Vaults(), led, clock, logger)
	evaluator := policy.NewEvaluator(store.Allowlist(), led, clock)
	sales := service.NewSaleService(engine, store.Receipts(), nil, nil, store.Audit(), logger)
	policies := service.NewPolicyService(
		store.Policies(), nil, store.Allowlist(), evaluator,
		store.Decisions(), led, clock, store.Audit(), nil, logger,
		"", 0,
	)

	operator, err := crypto.NewSigner("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)

	s := server.NewServer(server.Config{Port: 0, APIKey: apiKey}, server.Handlers{
		Health:    handler.NewHealthHandler("standalone", operator.Address().Hex(), logger),
		Sales:     handler.NewSaleHandler(sales, logger),
		Policies:  handler.NewPolicyHandler(policies, logger),
		Transfers: handler.NewTransferHandler(policies, logger),
	}, nil, nil, logger)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{srv: ts, store: store, ledger: led, clock: clock, operator: operator.Address().Hex()}
}

// do issues a JSON request and decodes the response body into out when it is
// non-nil.
func (e *testEnv) do(t *testing.T, method, path string, body any, out any, headers map[string]string) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "")

	var got map[string]any
	status := env.do(t, http.MethodGet, "/api/health", nil, &got, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", got["status"])
	assert.Equal(t, "standalone", got["mode"])
	assert.Equal(t, env.operator, got["operator"])
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t, "sekrit")

	status := env.do(t, http.MethodGet, "/api/health", nil, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status = env.do(t, http.MethodGet, "/api/health", nil, nil, map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status = env.do(t, http.MethodGet, "/api/health", nil, nil, map[string]string{"Authorization": "Bearer sekrit"})
	assert.Equal(t, http.StatusOK, status)

	status = env.do(t, http.MethodGet, "/api/health", nil, nil, map[string]string{"X-API-Key": "sekrit"})
	assert.Equal(t, http.StatusOK, status)
}

func TestSaleLifecycle(t *testing.T) {
	env := newTestEnv(t, "")
	env.ledger.Mint("creator-1", "asset-1", 1_000)
	env.ledger.CreditNative("buyer-1", 1_000)

	createReq := map[string]any{
		"creator":        "creator-1",
		"asset":          "asset-1",
		"soft_cap":       100,
		"hard_cap":       1_000,
		"start_time":     500,
		"end_time":       5_000,
		"price_per_unit": 2,
		"deposit_amount": 1_000,
	}

	var created domain.Sale
	status := env.do(t, http.MethodPost, "/api/sales", createReq, &created, nil)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "asset-1", created.Asset)

	// Duplicate asset conflicts.
	status = env.do(t, http.MethodPost, "/api/sales", createReq, nil, nil)
	assert.Equal(t, http.StatusConflict, status)

	var got domain.Sale
	status = env.do(t, http.MethodGet, "/api/sales/asset-1", nil, &got, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, created.Vault, got.Vault)

	status = env.do(t, http.MethodGet, "/api/sales/asset-nope", nil, nil, nil)
	assert.Equal(t, http.StatusNotFound, status)

	var receipt domain.Receipt
	status = env.do(t, http.MethodPost, "/api/sales/asset-1/purchase", map[string]any{
		"buyer":  "buyer-1",
		"amount": 100,
	}, &receipt, nil)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, uint64(200), receipt.Cost)

	// A settlement rejection maps to 422.
	status = env.do(t, http.MethodPost, "/api/sales/asset-1/purchase", map[string]any{
		"buyer":  "buyer-1",
		"amount": 950,
	}, nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	var page struct {
		Receipts []domain.Receipt `json:"receipts"`
	}
	status = env.do(t, http.MethodGet, "/api/sales/asset-1/receipts", nil, &page, nil)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, page.Receipts, 1)
	assert.Equal(t, receipt.ID, page.Receipts[0].ID)
}

func TestCreateSale_BadRequests(t *testing.T) {
	env := newTestEnv(t, "")

	// Missing required identifiers.
	status := env.do(t, http.MethodPost, "/api/sales", map[string]any{"asset": "a"}, nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	// Unknown fields are rejected.
	status = env.do(t, http.MethodPost, "/api/sales", map[string]any{
		"creator": "c", "asset": "a", "bogus": true,
	}, nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	// Violated creation invariants are 400, not 422.
	status = env.do(t, http.MethodPost, "/api/sales", map[string]any{
		"creator":        "c",
		"asset":          "a",
		"soft_cap":       10,
		"hard_cap":       5,
		"start_time":     500,
		"end_time":       5_000,
		"deposit_amount": 1,
	}, nil, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestPolicyLifecycle(t *testing.T) {
	env := newTestEnv(t, "")
	env.ledger.Mint("wallet-a", "asset-gov", 1_000)

	var pol domain.Policy
	status := env.do(t, http.MethodPost, "/api/policies", map[string]any{
		"owner":        "owner-1",
		"asset":        "asset-gov",
		"max_transfer": 100,
		"min_transfer": 1,
	}, &pol, nil)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "owner-1", pol.Owner)
	assert.False(t, pol.MaxTransferEnabled)

	// Only the owner may flip the gates.
	status = env.do(t, http.MethodPut, "/api/policies/asset-gov", map[string]any{
		"caller":       "intruder",
		"max_transfer": true,
	}, nil, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status = env.do(t, http.MethodPut, "/api/policies/asset-gov", map[string]any{
		"caller":       "owner-1",
		"max_transfer": true,
		"whitelist":    true,
	}, &pol, nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, pol.MaxTransferEnabled)
	assert.True(t, pol.WhitelistEnabled)

	// Grant, list, and dry-run check.
	status = env.do(t, http.MethodPost, "/api/policies/asset-gov/whitelist/wallet-a", map[string]any{
		"caller": "owner-1",
	}, nil, nil)
	require.Equal(t, http.StatusCreated, status)

	var wl struct {
		Wallets []domain.AllowListEntry `json:"wallets"`
	}
	status = env.do(t, http.MethodGet, "/api/policies/asset-gov/whitelist", nil, &wl, nil)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, wl.Wallets, 1)

	var dec domain.Decision
	status = env.do(t, http.MethodPost, "/api/policies/asset-gov/check", map[string]any{
		"wallet": "wallet-a",
		"to":     "wallet-b",
		"amount": 500,
	}, &dec, nil)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, dec.Allowed)
	assert.Equal(t, "transfer_bounds", dec.Rule)

	// Denied governed transfer: 422, nothing moves.
	var tr struct {
		Decision domain.Decision `json:"decision"`
		Executed bool            `json:"executed"`
	}
	status = env.do(t, http.MethodPost, "/api/transfers", map[string]any{
		"asset":  "asset-gov",
		"wallet": "wallet-a",
		"to":     "wallet-b",
		"amount": 500,
	}, &tr, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.False(t, tr.Executed)
	assert.Equal(t, "transfer_bounds", tr.Decision.Rule)

	// Allowed governed transfer executes.
	status = env.do(t, http.MethodPost, "/api/transfers", map[string]any{
		"asset":  "asset-gov",
		"wallet": "wallet-a",
		"to":     "wallet-b",
		"amount": 50,
	}, &tr, nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, tr.Executed)

	bal, _ := env.ledger.AssetBalance(t.Context(), "wallet-b", "asset-gov")
	assert.Equal(t, uint64(50), bal)

	// Revoke closes the gate again.
	status = env.do(t, http.MethodDelete, "/api/policies/asset-gov/whitelist/wallet-a", map[string]any{
		"caller": "owner-1",
	}, nil, nil)
	require.Equal(t, http.StatusOK, status)

	status = env.do(t, http.MethodPost, "/api/policies/asset-gov/check", map[string]any{
		"wallet": "wallet-a",
		"amount": 50,
	}, &dec, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "whitelist", dec.Rule)
}

func TestSignedCallerIdentity(t *testing.T) {
	env := newTestEnv(t, "")

	owner, err := crypto.NewSigner("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)
	intruder, err := crypto.NewSigner("8da4ef21b864d2cc526dbdb2a120bd2874c36c9d0a1fb7f8c63d7f7a8b41de8f")
	require.NoError(t, err)

	status := env.do(t, http.MethodPost, "/api/policies", map[string]any{
		"owner": owner.Address().Hex(),
		"asset": "asset-gov",
	}, nil, nil)
	require.Equal(t, http.StatusCreated, status)

	flagsBody, err := json.Marshal(map[string]any{
		"caller":    owner.Address().Hex(),
		"whitelist": true,
	})
	require.NoError(t, err)

	// A signature by someone else overrides the declared caller and fails
	// the ownership check.
	sig, err := intruder.SignMessage(flagsBody)
	require.NoError(t, err)
	status = rawDo(t, env, http.MethodPut, "/api/policies/asset-gov", flagsBody, map[string]string{"X-Signature": sig})
	assert.Equal(t, http.StatusForbidden, status)

	// The owner's signature authorizes the update regardless of the declared
	// caller field.
	spoofed, err := json.Marshal(map[string]any{
		"caller":    "somebody-else",
		"whitelist": true,
	})
	require.NoError(t, err)
	sig, err = owner.SignMessage(spoofed)
	require.NoError(t, err)
	status = rawDo(t, env, http.MethodPut, "/api/policies/asset-gov", spoofed, map[string]string{"X-Signature": sig})
	assert.Equal(t, http.StatusOK, status)

	// A garbage signature is rejected outright.
	status = rawDo(t, env, http.MethodPut, "/api/policies/asset-gov", flagsBody, map[string]string{"X-Signature": "0xdead"})
	assert.Equal(t, http.StatusBadRequest, status)
}

// rawDo sends a pre-marshalled body so signature verification sees the exact
// bytes that were signed.
func rawDo(t *testing.T, env *testEnv, method, path string, body []byte, headers map[string]string) int {
	t.Helper()
	req, err := http.NewRequest(method, env.srv.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := env.srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}
