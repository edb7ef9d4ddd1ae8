package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nooterra/substrate/internal/agent"
	"github.com/nooterra/substrate/internal/authority"
	"github.com/nooterra/substrate/internal/clock"
	"github.com/nooterra/substrate/internal/cryptoutil"
	"github.com/nooterra/substrate/internal/eventchain"
	"github.com/nooterra/substrate/internal/holdback"
	"github.com/nooterra/substrate/internal/httpapi"
	"github.com/nooterra/substrate/internal/idempotency"
	"github.com/nooterra/substrate/internal/ledger"
	"github.com/nooterra/substrate/internal/lock"
	"github.com/nooterra/substrate/internal/store/memstore"
	"github.com/nooterra/substrate/internal/x402"
)

const apiTenant = "tenant-a"

func newTestServer(t *testing.T) (*httptest.Server, *memstore.Memory, *clock.Fake) {
	t.Helper()
	store := memstore.New()
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	_, priv, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)
	signer, err := eventchain.NewServerSigner(priv)
	require.NoError(t, err)

	chain := eventchain.New(store, signer, clk)
	keys := eventchain.NewGovernanceKeyRegistry(chain, apiTenant)
	_, err = keys.IssueKey(context.Background(), "bootstrap", signer.KeyID())
	require.NoError(t, err)

	keyDir := agent.NewKeyDirectory(store, apiTenant)
	agents := agent.NewManager(store)
	ldg := ledger.New(store)
	validator := authority.NewValidator(store, x402.RunningTotal{Store: store})
	grants := authority.NewManager(store)
	x402Engine := x402.NewEngine(store, ldg, validator, chain, agent.AsLifecycleSource(store), clk)
	holdbackEngine := holdback.NewEngine(store, store, store, store,
		x402.Binding{Store: store}, agent.AsLifecycleSource(store),
		ldg, chain, keys, keyDir, clk)

	server := httpapi.New(httpapi.Deps{
		Agents:    agents,
		AgentKeys: store,
		Ledger:    ldg,
		Grants:    grants,
		X402:      x402Engine,
		Holdback:  holdbackEngine,
		Locks:     lock.NewInProcess(),
		Idem:      idempotency.New(store),
		Clock:     clk,
	})

	return httptest.NewServer(server.Router()), store, clk
}

func doRequest(t *testing.T, ts *httptest.Server, method, path string, body any, tenantID string) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if tenantID != "" {
		req.Header.Set(httpapi.HeaderTenantID, tenantID)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestRequestMissingTenantHeaderIsRejected(t *testing.T) {
	ts, _, _ := newTestServer(t)
	defer ts.Close()

	resp, body := doRequest(t, ts, http.MethodPost, "/agents/register", map[string]any{"agentId": "agent-1"}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "VALIDATION_REQUIRED", body["code"])
}

func TestRequestWithUnsupportedProtocolIsRejected(t *testing.T) {
	ts, _, _ := newTestServer(t)
	defer ts.Close()

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/agents/register", bytes.NewBufferString(`{"agentId":"agent-1"}`))
	require.NoError(t, err)
	req.Header.Set(httpapi.HeaderTenantID, apiTenant)
	req.Header.Set(httpapi.HeaderProtocol, "99")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRegisterAgentThenGetWallet(t *testing.T) {
	ts, _, _ := newTestServer(t)
	defer ts.Close()

	resp, body := doRequest(t, ts, http.MethodPost, "/agents/register", map[string]any{"agentId": "payer"}, apiTenant)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "payer", body["agentId"])

	resp, body = doRequest(t, ts, http.MethodPost, "/agents/payer/wallet/credit",
		map[string]any{"currency": "USD", "amountCents": 5000}, apiTenant)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, body["receipt"])

	resp, err := http.Get(ts.URL + "/agents/payer/wallet?currency=USD")
	require.NoError(t, err)
	defer resp.Body.Close()
	// GET without the tenant header must be rejected by the same
	// middleware every other route goes through.
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestFullGateLifecycleOverHTTP(t *testing.T) {
	ts, store, clk := newTestServer(t)
	defer ts.Close()

	mgr := agent.NewManager(store)
	_, err := mgr.Register(context.Background(), agent.RegisterParams{AgentID: "payer", TenantID: apiTenant}, clk.Now())
	require.NoError(t, err)
	_, err = mgr.Register(context.Background(), agent.RegisterParams{AgentID: "payee", TenantID: apiTenant}, clk.Now())
	require.NoError(t, err)

	grantMgr := authority.NewManager(store)
	now := clk.Now()
	_, err = grantMgr.Issue(context.Background(), authority.Grant{
		GrantID: "grant-1", TenantID: apiTenant, PrincipalRef: "owner-1", GranteeAgentID: "payer",
		Scope: authority.Scope{
			AllowedProviderIDs: []string{"provider-1"}, AllowedToolIDs: []string{"tool-1"}, AllowedRiskClasses: []string{"low"},
		},
		SpendEnvelope: authority.SpendEnvelope{Currency: "USD", MaxPerCallCents: 10000, MaxTotalCents: 100000},
		Validity:      authority.Validity{IssuedAt: now, NotBefore: now, ExpiresAt: now.Add(24 * time.Hour)},
		Revocation:    authority.Revocation{Revocable: true},
	})
	require.NoError(t, err)

	ldg := ledger.New(store)
	_, err = ldg.CommitTx(context.Background(), apiTenant, []ledger.Op{
		ledger.Credit(apiTenant, "payer", "USD", ledger.Available, 5000),
	}, clk.Now())
	require.NoError(t, err)

	resp, body := doRequest(t, ts, http.MethodPost, "/x402/gate/create", map[string]any{
		"payerAgentId": "payer", "payeeAgentId": "payee", "providerId": "provider-1",
		"toolId": "tool-1", "riskClass": "low", "amountCents": 1000, "currency": "USD",
		"authorityGrantRef": "grant-1",
	}, apiTenant)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	gateID, _ := body["gateId"].(string)
	require.NotEmpty(t, gateID)

	resp, body = doRequest(t, ts, http.MethodPost, "/x402/gate/authorize-payment", map[string]any{"gateId": gateID}, apiTenant)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "authorized", body["state"])

	resp, body = doRequest(t, ts, http.MethodPost, "/x402/gate/execute",
		map[string]any{"gateId": gateID, "bindingRequestSha256": "req-hash"}, apiTenant)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "executed", body["state"])

	resp, body = doRequest(t, ts, http.MethodPost, "/x402/gate/verify",
		map[string]any{"gateId": gateID, "status": "green"}, apiTenant)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	gate, ok := body["gate"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "released", gate["state"])

	resp, body = doRequest(t, ts, http.MethodGet, "/agents/payee/wallet?currency=USD", nil, apiTenant)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1000), body["availableCents"])
}

func TestRunMaintenanceWithNothingToDo(t *testing.T) {
	ts, _, _ := newTestServer(t)
	defer ts.Close()

	resp, body := doRequest(t, ts, http.MethodPost, "/ops/maintenance/tool-call-holdback/run", nil, apiTenant)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["released"])
	assert.Empty(t, body["blocked"])
}

func TestHoldsLockConflictsOnSecondAcquire(t *testing.T) {
	ts, _, _ := newTestServer(t)
	defer ts.Close()

	resp1, body1 := doRequest(t, ts, http.MethodPost, "/ops/tool-calls/holds/lock",
		map[string]any{"holdHash": "some-hold", "ttlMillis": 30000}, apiTenant)
	require.Equal(t, http.StatusOK, resp1.StatusCode)
	assert.True(t, body1["acquired"].(bool))

	resp2, body2 := doRequest(t, ts, http.MethodPost, "/ops/tool-calls/holds/lock",
		map[string]any{"holdHash": "some-hold", "ttlMillis": 30000}, apiTenant)
	require.Equal(t, http.StatusConflict, resp2.StatusCode)
	assert.Equal(t, "MAINTENANCE_ALREADY_RUNNING", body2["code"])
}

func TestGateCreateRejectsInvalidJSON(t *testing.T) {
	ts, _, _ := newTestServer(t)
	defer ts.Close()

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/x402/gate/create", bytes.NewBufferString("not json"))
	require.NoError(t, err)
	req.Header.Set(httpapi.HeaderTenantID, apiTenant)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIssueGrantThenRevokeOverHTTP(t *testing.T) {
	ts, _, clk := newTestServer(t)
	defer ts.Close()
	now := clk.Now()

	resp, body := doRequest(t, ts, http.MethodPost, "/authority-grants", map[string]any{
		"grantId": "grant-1", "principalRef": "owner-1", "granteeAgentId": "payer",
		"scope": map[string]any{
			"allowedProviderIds": []string{"provider-1"}, "allowedToolIds": []string{"tool-1"}, "allowedRiskClasses": []string{"low"},
		},
		"spendEnvelope": map[string]any{"currency": "USD", "maxPerCallCents": 1000, "maxTotalCents": 5000},
		"validity":      map[string]any{"issuedAt": now, "notBefore": now, "expiresAt": now.Add(24 * time.Hour)},
	}, apiTenant)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "grant-1", body["grantId"])

	resp, body = doRequest(t, ts, http.MethodPost, "/authority-grants/grant-1/revoke",
		map[string]any{"reasonCode": "principal_requested"}, apiTenant)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	revocation, ok := body["revocation"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "principal_requested", revocation["revocationReasonCode"])
}

func doKeyedRequest(t *testing.T, ts *httptest.Server, path string, body any, idemKey string) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(httpapi.HeaderTenantID, apiTenant)
	req.Header.Set(httpapi.HeaderIdempotencyKey, idemKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

// seedGateFixtures registers a payer/payee pair, an open-ended grant, and a
// funded payer wallet directly against the store.
func seedGateFixtures(t *testing.T, store *memstore.Memory, clk *clock.Fake) {
	t.Helper()
	mgr := agent.NewManager(store)
	_, err := mgr.Register(context.Background(), agent.RegisterParams{AgentID: "payer", TenantID: apiTenant}, clk.Now())
	require.NoError(t, err)
	_, err = mgr.Register(context.Background(), agent.RegisterParams{AgentID: "payee", TenantID: apiTenant}, clk.Now())
	require.NoError(t, err)

	now := clk.Now()
	_, err = authority.NewManager(store).Issue(context.Background(), authority.Grant{
		GrantID: "grant-1", TenantID: apiTenant, PrincipalRef: "owner-1", GranteeAgentID: "payer",
		Scope: authority.Scope{
			AllowedProviderIDs: []string{"provider-1"}, AllowedToolIDs: []string{"tool-1"}, AllowedRiskClasses: []string{"low"},
		},
		SpendEnvelope: authority.SpendEnvelope{Currency: "USD", MaxPerCallCents: 10000, MaxTotalCents: 100000},
		Validity:      authority.Validity{IssuedAt: now, NotBefore: now, ExpiresAt: now.Add(24 * time.Hour)},
		Revocation:    authority.Revocation{Revocable: true},
	})
	require.NoError(t, err)

	_, err = ledger.New(store).CommitTx(context.Background(), apiTenant, []ledger.Op{
		ledger.Credit(apiTenant, "payer", "USD", ledger.Available, 5000),
	}, clk.Now())
	require.NoError(t, err)
}

func TestIdempotencyKeyReplaysStoredResponse(t *testing.T) {
	ts, store, clk := newTestServer(t)
	defer ts.Close()
	seedGateFixtures(t, store, clk)

	createBody := map[string]any{
		"payerAgentId": "payer", "payeeAgentId": "payee", "providerId": "provider-1",
		"toolId": "tool-1", "riskClass": "low", "amountCents": 1000, "currency": "USD",
		"authorityGrantRef": "grant-1",
	}
	resp, body := doKeyedRequest(t, ts, "/x402/gate/create", createBody, "create-key-1")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	gateID, _ := body["gateId"].(string)
	require.NotEmpty(t, gateID)

	// Same key, same body: the stored response replays, no second gate is
	// created.
	resp, body = doKeyedRequest(t, ts, "/x402/gate/create", createBody, "create-key-1")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, gateID, body["gateId"])
}

func TestIdempotencyKeyConflictsOnDifferentBody(t *testing.T) {
	ts, store, clk := newTestServer(t)
	defer ts.Close()
	seedGateFixtures(t, store, clk)

	createBody := map[string]any{
		"payerAgentId": "payer", "payeeAgentId": "payee", "providerId": "provider-1",
		"toolId": "tool-1", "riskClass": "low", "amountCents": 1000, "currency": "USD",
		"authorityGrantRef": "grant-1",
	}
	resp, _ := doKeyedRequest(t, ts, "/x402/gate/create", createBody, "create-key-2")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	createBody["amountCents"] = 2000
	resp, body := doKeyedRequest(t, ts, "/x402/gate/create", createBody, "create-key-2")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "IDEMPOTENCY_KEY_CONFLICT", body["code"])
}

func TestIdempotentRetryDoesNotReExecuteGateTransition(t *testing.T) {
	ts, store, clk := newTestServer(t)
	defer ts.Close()
	seedGateFixtures(t, store, clk)

	resp, body := doRequest(t, ts, http.MethodPost, "/x402/gate/create", map[string]any{
		"payerAgentId": "payer", "payeeAgentId": "payee", "providerId": "provider-1",
		"toolId": "tool-1", "riskClass": "low", "amountCents": 1000, "currency": "USD",
		"authorityGrantRef": "grant-1",
	}, apiTenant)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	gateID, _ := body["gateId"].(string)

	authBody := map[string]any{"gateId": gateID}
	resp, body = doKeyedRequest(t, ts, "/x402/gate/authorize-payment", authBody, "auth-key-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "authorized", body["state"])

	// A bare retry of authorize-payment would fail on the state check; with
	// the same idempotency key it replays the stored envelope instead.
	resp, body = doKeyedRequest(t, ts, "/x402/gate/authorize-payment", authBody, "auth-key-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "authorized", body["state"])
}
