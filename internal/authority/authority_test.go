package authority_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nooterra/substrate/internal/authority"
	"github.com/nooterra/substrate/internal/store/memstore"
	"github.com/nooterra/substrate/internal/substraterr"
	"github.com/nooterra/substrate/internal/x402"
)

const authTenant = "tenant-a"

func newValidator(store *memstore.Memory) *authority.Validator {
	return authority.NewValidator(store, x402.RunningTotal{Store: store})
}

func baseGrant(now time.Time) authority.Grant {
	return authority.Grant{
		GrantID:        "grant-1",
		TenantID:       authTenant,
		PrincipalRef:   "owner-1",
		GranteeAgentID: "payer",
		Scope: authority.Scope{
			AllowedProviderIDs: []string{"provider-1"},
			AllowedToolIDs:     []string{"tool-1"},
			AllowedRiskClasses: []string{"low"},
		},
		SpendEnvelope: authority.SpendEnvelope{Currency: "USD", MaxPerCallCents: 400, MaxTotalCents: 600},
		Validity:      authority.Validity{IssuedAt: now, NotBefore: now, ExpiresAt: now.Add(24 * time.Hour)},
		Revocation:    authority.Revocation{Revocable: true},
	}
}

func toolCall(amountCents int64, at time.Time) authority.ToolCallRequest {
	return authority.ToolCallRequest{
		AgentID: "payer", ProviderID: "provider-1", ToolID: "tool-1", RiskClass: "low",
		Currency: "USD", AmountCents: amountCents, At: at,
	}
}

func TestIssueRequiresCoreIDs(t *testing.T) {
	store := memstore.New()
	mgr := authority.NewManager(store)
	_, err := mgr.Issue(context.Background(), authority.Grant{})
	assert.Error(t, err)
}

func TestRevokeRequiresReasonCode(t *testing.T) {
	store := memstore.New()
	mgr := authority.NewManager(store)
	ctx := context.Background()
	now := time.Now()

	_, err := mgr.Issue(ctx, baseGrant(now))
	require.NoError(t, err)

	_, err = mgr.Revoke(ctx, authTenant, "grant-1", "", now)
	require.Error(t, err)
	var se *substraterr.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "VALIDATION_REQUIRED", se.Code)
}

func TestRevokeRejectsNonRevocableGrant(t *testing.T) {
	store := memstore.New()
	mgr := authority.NewManager(store)
	ctx := context.Background()
	now := time.Now()

	g := baseGrant(now)
	g.Revocation.Revocable = false
	_, err := mgr.Issue(ctx, g)
	require.NoError(t, err)

	_, err = mgr.Revoke(ctx, authTenant, "grant-1", "fraud_suspected", now)
	require.Error(t, err)
}

func TestAuthorizeOrderedChecksMatchSpendScenario(t *testing.T) {
	store := memstore.New()
	mgr := authority.NewManager(store)
	validator := newValidator(store)
	ctx := context.Background()
	now := time.Now()

	_, err := mgr.Issue(ctx, baseGrant(now))
	require.NoError(t, err)

	// gate1: 300 cents authorizes cleanly. Simulate it landing in the
	// running total the way an executed gate would, without going through
	// the full x402 engine this package never imports.
	_, err = validator.Authorize(ctx, authTenant, "grant-1", toolCall(300, now))
	require.NoError(t, err)
	require.NoError(t, store.PutGate(ctx, x402.Gate{
		GateID: "gate-1", TenantID: authTenant, AuthorityGrantRef: "grant-1",
		AmountCents: 300, Currency: "USD", State: x402.Executed,
	}))

	// gate2: 500 cents exceeds maxPerCallCents(400) before the running
	// total is even consulted.
	_, err = validator.Authorize(ctx, authTenant, "grant-1", toolCall(500, now))
	require.Error(t, err)
	var se *substraterr.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "X402_AUTHORITY_GRANT_PER_CALL_EXCEEDED", se.Code)

	// gate3: 350 cents is within the per-call cap but 300+350=650 exceeds
	// maxTotalCents(600).
	_, err = validator.Authorize(ctx, authTenant, "grant-1", toolCall(350, now))
	require.Error(t, err)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "X402_AUTHORITY_GRANT_TOTAL_EXCEEDED", se.Code)

	// Revoke, then gate4: 100 cents would otherwise pass every later
	// check, but revocation is checked first.
	_, err = mgr.Revoke(ctx, authTenant, "grant-1", "principal_requested", now)
	require.NoError(t, err)

	_, err = validator.Authorize(ctx, authTenant, "grant-1", toolCall(100, now))
	require.Error(t, err)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "X402_AUTHORITY_GRANT_REVOKED", se.Code)
}

func TestAuthorizeRejectsNotYetActive(t *testing.T) {
	store := memstore.New()
	mgr := authority.NewManager(store)
	validator := newValidator(store)
	ctx := context.Background()
	now := time.Now()

	g := baseGrant(now)
	g.Validity.NotBefore = now.Add(time.Hour)
	_, err := mgr.Issue(ctx, g)
	require.NoError(t, err)

	_, err = validator.Authorize(ctx, authTenant, "grant-1", toolCall(100, now))
	require.Error(t, err)
	var se *substraterr.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "X402_AUTHORITY_GRANT_NOT_ACTIVE", se.Code)
}

func TestAuthorizeRejectsExpiredGrant(t *testing.T) {
	store := memstore.New()
	mgr := authority.NewManager(store)
	validator := newValidator(store)
	ctx := context.Background()
	now := time.Now()

	g := baseGrant(now)
	g.Validity.ExpiresAt = now.Add(-time.Minute)
	_, err := mgr.Issue(ctx, g)
	require.NoError(t, err)

	_, err = validator.Authorize(ctx, authTenant, "grant-1", toolCall(100, now))
	require.Error(t, err)
	var se *substraterr.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "X402_AUTHORITY_GRANT_EXPIRED", se.Code)
}

func TestAuthorizeRejectsActorMismatch(t *testing.T) {
	store := memstore.New()
	mgr := authority.NewManager(store)
	validator := newValidator(store)
	ctx := context.Background()
	now := time.Now()

	_, err := mgr.Issue(ctx, baseGrant(now))
	require.NoError(t, err)

	req := toolCall(100, now)
	req.AgentID = "someone-else"
	_, err = validator.Authorize(ctx, authTenant, "grant-1", req)
	require.Error(t, err)
	var se *substraterr.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "X402_AUTHORITY_GRANT_ACTOR_MISMATCH", se.Code)
}

func TestAuthorizeRejectsOutOfScopeTool(t *testing.T) {
	store := memstore.New()
	mgr := authority.NewManager(store)
	validator := newValidator(store)
	ctx := context.Background()
	now := time.Now()

	_, err := mgr.Issue(ctx, baseGrant(now))
	require.NoError(t, err)

	req := toolCall(100, now)
	req.ToolID = "tool-not-in-scope"
	_, err = validator.Authorize(ctx, authTenant, "grant-1", req)
	require.Error(t, err)
	var se *substraterr.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "X402_AUTHORITY_GRANT_SCOPE_DENIED", se.Code)
}

func TestAuthorizeRejectsSideEffectingWhenNotAllowed(t *testing.T) {
	store := memstore.New()
	mgr := authority.NewManager(store)
	validator := newValidator(store)
	ctx := context.Background()
	now := time.Now()

	_, err := mgr.Issue(ctx, baseGrant(now))
	require.NoError(t, err)

	req := toolCall(100, now)
	req.SideEffecting = true
	_, err = validator.Authorize(ctx, authTenant, "grant-1", req)
	require.Error(t, err)
	var se *substraterr.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "X402_AUTHORITY_GRANT_SCOPE_DENIED", se.Code)
}

func TestAuthorizeFailsClosedOnUnknownGrant(t *testing.T) {
	store := memstore.New()
	validator := newValidator(store)
	_, err := validator.Authorize(context.Background(), authTenant, "missing-grant", toolCall(100, time.Now()))
	require.Error(t, err)
	var se *substraterr.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "GRANT_NOT_FOUND", se.Code)
}
