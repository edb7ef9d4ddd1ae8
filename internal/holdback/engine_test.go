package holdback_test

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nooterra/substrate/internal/agent"
	"github.com/nooterra/substrate/internal/authority"
	"github.com/nooterra/substrate/internal/canon"
	"github.com/nooterra/substrate/internal/clock"
	"github.com/nooterra/substrate/internal/cryptoutil"
	"github.com/nooterra/substrate/internal/eventchain"
	"github.com/nooterra/substrate/internal/holdback"
	"github.com/nooterra/substrate/internal/ledger"
	"github.com/nooterra/substrate/internal/lock"
	"github.com/nooterra/substrate/internal/store/memstore"
	"github.com/nooterra/substrate/internal/x402"
)

const testTenant = "tenant-a"

type hbHarness struct {
	store *memstore.Memory
	clk   *clock.Fake
	keys  *eventchain.GovernanceKeyRegistry
	ldg   *ledger.Ledger
	gate  *x402.Engine
	hb    *holdback.Engine
}

func newHBHarness(t *testing.T) *hbHarness {
	t.Helper()
	store := memstore.New()
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	_, priv, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)
	signer, err := eventchain.NewServerSigner(priv)
	require.NoError(t, err)

	chain := eventchain.New(store, signer, clk)
	keys := eventchain.NewGovernanceKeyRegistry(chain, testTenant)
	_, err = keys.IssueKey(context.Background(), "bootstrap", signer.KeyID())
	require.NoError(t, err)

	keyDir := agent.NewKeyDirectory(store, testTenant)
	ldg := ledger.New(store)
	validator := authority.NewValidator(store, x402.RunningTotal{Store: store})
	gate := x402.NewEngine(store, ldg, validator, chain, agent.AsLifecycleSource(store), clk)
	hb := holdback.NewEngine(store, store, store, store,
		x402.Binding{Store: store}, agent.AsLifecycleSource(store),
		ldg, chain, keys, keyDir, clk)

	return &hbHarness{store: store, clk: clk, keys: keys, ldg: ldg, gate: gate, hb: hb}
}

// registerSigningAgent registers an active agent carrying one Ed25519 key
// and issues that key on the governance stream, so it verifies as active.
func registerSigningAgent(t *testing.T, h *hbHarness, agentID string) (ed25519.PrivateKey, string) {
	t.Helper()
	pub, priv, err := cryptoutil.GenerateKeyPair()
	require.NoError(t, err)
	spki, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	pemStr := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: spki}))

	mgr := agent.NewManager(h.store)
	_, err = mgr.Register(context.Background(), agent.RegisterParams{
		AgentID: agentID, TenantID: testTenant, PublicKeyPEM: pemStr,
	}, h.clk.Now())
	require.NoError(t, err)

	keyID, err := cryptoutil.KeyIDFromPublicKey(pub)
	require.NoError(t, err)
	_, err = h.keys.IssueKey(context.Background(), "bootstrap", keyID)
	require.NoError(t, err)
	return priv, keyID
}

func registerPlainAgent(t *testing.T, h *hbHarness, agentID string) {
	t.Helper()
	mgr := agent.NewManager(h.store)
	_, err := mgr.Register(context.Background(), agent.RegisterParams{AgentID: agentID, TenantID: testTenant}, h.clk.Now())
	require.NoError(t, err)
}

func issueGrant(t *testing.T, h *hbHarness, grantee string, maxPerCall, maxTotal int64) *authority.Grant {
	t.Helper()
	mgr := authority.NewManager(h.store)
	now := h.clk.Now()
	g, err := mgr.Issue(context.Background(), authority.Grant{
		GrantID:        "grant-" + grantee,
		TenantID:       testTenant,
		PrincipalRef:   "owner-1",
		GranteeAgentID: grantee,
		Scope: authority.Scope{
			AllowedProviderIDs: []string{"provider-1"},
			AllowedToolIDs:     []string{"tool-1"},
			AllowedRiskClasses: []string{"low"},
		},
		SpendEnvelope: authority.SpendEnvelope{Currency: "USD", MaxPerCallCents: maxPerCall, MaxTotalCents: maxTotal},
		Validity:      authority.Validity{IssuedAt: now, NotBefore: now, ExpiresAt: now.Add(24 * time.Hour)},
		Revocation:    authority.Revocation{Revocable: true},
	})
	require.NoError(t, err)
	return g
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// disputeEnvelopeHash mirrors holdback's unexported envelopeHashFields: a
// real client computes the same canonical fields independently before
// signing, so the test constructs it the same way rather than reaching into
// the package's internals.
func disputeEnvelopeHash(e holdback.DisputeOpenEnvelope) string {
	h, err := canon.HashJSON(map[string]any{
		"envelopeId":      e.EnvelopeID,
		"caseId":          e.CaseID,
		"tenantId":        e.TenantID,
		"agreementHash":   e.AgreementHash,
		"receiptHash":     e.ReceiptHash,
		"holdHash":        e.HoldHash,
		"openedByAgentId": e.OpenedByAgentID,
		"openedAt":        e.OpenedAt,
		"reasonCode":      e.ReasonCode,
		"nonce":           e.Nonce,
		"evidenceRefs":    e.EvidenceRefs,
		"signerKeyId":     e.SignerKeyID,
	})
	if err != nil {
		panic(err)
	}
	return h
}

func verdictHash(v holdback.Verdict) string {
	h, err := canon.HashJSON(map[string]any{
		"verdictId":      v.VerdictID,
		"caseId":         v.CaseID,
		"tenantId":       v.TenantID,
		"runId":          v.RunID,
		"settlementId":   v.SettlementID,
		"disputeId":      v.DisputeID,
		"arbiterAgentId": v.ArbiterAgentID,
		"outcome":        v.Outcome,
		"releaseRatePct": v.ReleaseRatePct,
		"rationale":      v.Rationale,
		"evidenceRefs":   v.EvidenceRefs,
		"issuedAt":       v.IssuedAt,
		"signerKeyId":    v.SignerKeyID,
	})
	if err != nil {
		panic(err)
	}
	return h
}

// setupHeldGate drives a gate all the way through create/authorize/execute/
// verify(green, holdbackBps>0), returning the resulting gate and hold.
func setupHeldGate(t *testing.T, h *hbHarness, amountCents int64, holdbackBps int, challengeWindowMs int64, bindingHash string) (*x402.Gate, *x402.Hold) {
	t.Helper()
	ctx := context.Background()
	registerPlainAgent(t, h, "payer")
	registerPlainAgent(t, h, "payee")
	grant := issueGrant(t, h, "payer", amountCents, amountCents*10)

	_, err := h.ldg.CommitTx(ctx, testTenant, []ledger.Op{
		ledger.Credit(testTenant, "payer", "USD", ledger.Available, amountCents),
	}, h.clk.Now())
	require.NoError(t, err)

	g, err := h.gate.Create(ctx, x402.CreateParams{
		TenantID: testTenant, PayerAgentID: "payer", PayeeAgentID: "payee",
		ProviderID: "provider-1", ToolID: "tool-1", RiskClass: "low",
		AmountCents: amountCents, Currency: "USD", AuthorityGrantRef: grant.GrantID,
		HoldbackBps: holdbackBps, ChallengeWindowMs: challengeWindowMs,
	})
	require.NoError(t, err)
	g, err = h.gate.AuthorizePayment(ctx, testTenant, g.GateID)
	require.NoError(t, err)
	g, err = h.gate.Execute(ctx, testTenant, g.GateID, bindingHash)
	require.NoError(t, err)
	g, hold, err := h.gate.Verify(ctx, testTenant, g.GateID, x402.VerifyParams{Status: x402.VerifyGreen, HoldbackBps: holdbackBps})
	require.NoError(t, err)
	require.NotNil(t, hold)
	return g, hold
}

func TestOpenDisputeThenVerdictReleasesHoldback(t *testing.T) {
	h := newHBHarness(t)
	ctx := context.Background()
	bindingHash := sha256Hex("tool-call-request-1")

	g, hold := setupHeldGate(t, h, 10000, 2000, 1000, bindingHash)
	assert.Equal(t, int64(2000), hold.HeldAmountCents)

	openerPriv, openerKeyID := registerSigningAgent(t, h, "dispute-opener")

	env := holdback.DisputeOpenEnvelope{
		EnvelopeID:      holdback.DisputeOpenEnvelopeID(g.AgreementHash),
		CaseID:          holdback.CaseID(g.AgreementHash),
		TenantID:        testTenant,
		AgreementHash:   g.AgreementHash,
		ReceiptHash:     bindingHash,
		HoldHash:        hold.HoldHash,
		OpenedByAgentID: "dispute-opener",
		OpenedAt:        h.clk.Now(),
		ReasonCode:      "quality_dispute",
		Nonce:           uuid.NewString(),
		EvidenceRefs:    []string{"http:request_sha256:" + bindingHash},
		SignerKeyID:     openerKeyID,
	}
	env.EnvelopeHash = disputeEnvelopeHash(env)
	sig, err := cryptoutil.Sign(env.EnvelopeHash, openerPriv, holdback.PurposeDisputeOpen, nil)
	require.NoError(t, err)
	env.Signature = sig

	c, err := h.hb.OpenDispute(ctx, env)
	require.NoError(t, err)
	assert.Equal(t, holdback.UnderReview, c.Status)
	assert.Equal(t, holdback.CaseID(g.AgreementHash), c.CaseID)

	heldHold, found, err := h.store.GetHold(ctx, testTenant, hold.HoldHash)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, x402.HoldDisputed, heldHold.Status)

	h.clk.Advance(2000 * time.Millisecond)
	released, blocked, err := h.hb.RunMaintenance(ctx, lock.NewInProcess(), testTenant)
	require.NoError(t, err)
	assert.Empty(t, released)
	assert.Equal(t, []string{hold.HoldHash}, blocked, "a disputed hold must not be auto-released")

	arbiterPriv, arbiterKeyID := registerSigningAgent(t, h, "arbiter-1")
	v := holdback.Verdict{
		VerdictID:      holdback.NewVerdictID(),
		CaseID:         c.CaseID,
		TenantID:       testTenant,
		RunID:          "run-1",
		SettlementID:   "settle-1",
		DisputeID:      "dispute-1",
		ArbiterAgentID: "arbiter-1",
		Outcome:        holdback.Accepted,
		ReleaseRatePct: 100,
		Rationale:      "tool call completed successfully",
		IssuedAt:       h.clk.Now(),
		SignerKeyID:    arbiterKeyID,
	}
	v.VerdictHash = verdictHash(v)
	sig, err = cryptoutil.Sign(v.VerdictHash, arbiterPriv, holdback.PurposeArbitrationVerdict, nil)
	require.NoError(t, err)
	v.Signature = sig

	adj, err := h.hb.AcceptVerdict(ctx, v)
	require.NoError(t, err)
	assert.Equal(t, holdback.HoldbackRelease, adj.Kind)
	assert.Equal(t, int64(2000), adj.AmountCents)
	assert.Equal(t, holdback.AdjustmentID(g.AgreementHash), adj.AdjustmentID)

	payerWallet, err := h.ldg.GetWallet(ctx, testTenant, "payer", "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(0), payerWallet.AvailableCents)
	assert.Equal(t, int64(0), payerWallet.EscrowLockedCents)

	payeeWallet, err := h.ldg.GetWallet(ctx, testTenant, "payee", "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), payeeWallet.AvailableCents)
	assert.Equal(t, int64(0), payeeWallet.HeldbackCents)

	finalHold, _, err := h.store.GetHold(ctx, testTenant, hold.HoldHash)
	require.NoError(t, err)
	assert.Equal(t, x402.HoldReleased, finalHold.Status)

	finalCase, err := h.hb.GetCase(ctx, testTenant, c.CaseID)
	require.NoError(t, err)
	assert.Equal(t, holdback.Closed, finalCase.Status)

	// A second verdict against the same closed case must not reprocess.
	_, err = h.hb.AcceptVerdict(ctx, v)
	assert.Error(t, err)
}

func TestAdminOverrideDisputeThenVerdictRefundsHeldback(t *testing.T) {
	h := newHBHarness(t)
	ctx := context.Background()
	bindingHash := sha256Hex("tool-call-request-2")

	g, hold := setupHeldGate(t, h, 5000, 2000, 1000, bindingHash)
	assert.Equal(t, int64(1000), hold.HeldAmountCents)

	payeeWalletBefore, err := h.ldg.GetWallet(ctx, testTenant, "payee", "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(4000), payeeWalletBefore.AvailableCents)

	h.clk.Advance(2000 * time.Millisecond) // past the challenge deadline

	openerPriv, openerKeyID := registerSigningAgent(t, h, "dispute-opener")
	env := holdback.DisputeOpenEnvelope{
		EnvelopeID:      holdback.DisputeOpenEnvelopeID(g.AgreementHash),
		CaseID:          holdback.CaseID(g.AgreementHash),
		TenantID:        testTenant,
		AgreementHash:   g.AgreementHash,
		ReceiptHash:     bindingHash,
		HoldHash:        hold.HoldHash,
		OpenedByAgentID: "dispute-opener",
		OpenedAt:        h.clk.Now(),
		ReasonCode:      "payer_dispute",
		Nonce:           uuid.NewString(),
		EvidenceRefs:    []string{"http:request_sha256:" + bindingHash},
		SignerKeyID:     openerKeyID,
		AdminOverride:   &holdback.AdminOverride{Enabled: true, Reason: "late filing approved by ops"},
	}
	env.EnvelopeHash = disputeEnvelopeHash(env)
	sig, err := cryptoutil.Sign(env.EnvelopeHash, openerPriv, holdback.PurposeDisputeOpen, nil)
	require.NoError(t, err)
	env.Signature = sig

	c, err := h.hb.OpenDispute(ctx, env)
	require.NoError(t, err)

	arbiterPriv, arbiterKeyID := registerSigningAgent(t, h, "arbiter-1")
	v := holdback.Verdict{
		VerdictID:      holdback.NewVerdictID(),
		CaseID:         c.CaseID,
		TenantID:       testTenant,
		ArbiterAgentID: "arbiter-1",
		Outcome:        holdback.Accepted,
		ReleaseRatePct: 0,
		Rationale:      "tool call did not meet spec",
		IssuedAt:       h.clk.Now(),
		SignerKeyID:    arbiterKeyID,
	}
	v.VerdictHash = verdictHash(v)
	sig, err = cryptoutil.Sign(v.VerdictHash, arbiterPriv, holdback.PurposeArbitrationVerdict, nil)
	require.NoError(t, err)
	v.Signature = sig

	adj, err := h.hb.AcceptVerdict(ctx, v)
	require.NoError(t, err)
	assert.Equal(t, holdback.HoldbackRefund, adj.Kind)
	assert.Equal(t, int64(1000), adj.AmountCents)

	payerWallet, err := h.ldg.GetWallet(ctx, testTenant, "payer", "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), payerWallet.AvailableCents)

	payeeWallet, err := h.ldg.GetWallet(ctx, testTenant, "payee", "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(4000), payeeWallet.AvailableCents)
	assert.Equal(t, int64(0), payeeWallet.HeldbackCents)

	finalHold, _, err := h.store.GetHold(ctx, testTenant, hold.HoldHash)
	require.NoError(t, err)
	assert.Equal(t, x402.HoldRefunded, finalHold.Status)
}

func TestAutoReleaseExpiredWithNoDispute(t *testing.T) {
	h := newHBHarness(t)
	ctx := context.Background()
	bindingHash := sha256Hex("tool-call-request-3")

	_, hold := setupHeldGate(t, h, 5000, 2000, 1000, bindingHash)

	h.clk.Advance(2000 * time.Millisecond)
	released, blocked, err := h.hb.RunMaintenance(ctx, lock.NewInProcess(), testTenant)
	require.NoError(t, err)
	assert.Empty(t, blocked)
	assert.Equal(t, []string{hold.HoldHash}, released)

	finalHold, _, err := h.store.GetHold(ctx, testTenant, hold.HoldHash)
	require.NoError(t, err)
	assert.Equal(t, x402.HoldReleased, finalHold.Status)

	// Running it again is a no-op: the hold is no longer "held".
	released, blocked, err = h.hb.RunMaintenance(ctx, lock.NewInProcess(), testTenant)
	require.NoError(t, err)
	assert.Empty(t, released)
	assert.Empty(t, blocked)
}

func TestOpenDisputeRejectsPastDeadlineWithoutOverride(t *testing.T) {
	h := newHBHarness(t)
	ctx := context.Background()
	bindingHash := sha256Hex("tool-call-request-4")

	g, hold := setupHeldGate(t, h, 5000, 2000, 1000, bindingHash)
	h.clk.Advance(2000 * time.Millisecond)

	openerPriv, openerKeyID := registerSigningAgent(t, h, "dispute-opener")
	_ = g
	env := holdback.DisputeOpenEnvelope{
		EnvelopeID:      holdback.DisputeOpenEnvelopeID(g.AgreementHash),
		CaseID:          holdback.CaseID(g.AgreementHash),
		TenantID:        testTenant,
		AgreementHash:   g.AgreementHash,
		ReceiptHash:     bindingHash,
		HoldHash:        hold.HoldHash,
		OpenedByAgentID: "dispute-opener",
		OpenedAt:        h.clk.Now(),
		ReasonCode:      "too_late",
		Nonce:           uuid.NewString(),
		EvidenceRefs:    []string{"http:request_sha256:" + bindingHash},
		SignerKeyID:     openerKeyID,
	}
	env.EnvelopeHash = disputeEnvelopeHash(env)
	sig, err := cryptoutil.Sign(env.EnvelopeHash, openerPriv, holdback.PurposeDisputeOpen, nil)
	require.NoError(t, err)
	env.Signature = sig

	_, err = h.hb.OpenDispute(ctx, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DISPUTE_WINDOW_EXPIRED")
}

func TestOpenDisputeRejectsSecondOpenForSameAgreement(t *testing.T) {
	h := newHBHarness(t)
	ctx := context.Background()
	bindingHash := sha256Hex("tool-call-request-5")

	g, hold := setupHeldGate(t, h, 5000, 2000, 1000, bindingHash)
	openerPriv, openerKeyID := registerSigningAgent(t, h, "dispute-opener")

	buildEnv := func(nonce string) holdback.DisputeOpenEnvelope {
		env := holdback.DisputeOpenEnvelope{
			EnvelopeID:      holdback.DisputeOpenEnvelopeID(g.AgreementHash),
			CaseID:          holdback.CaseID(g.AgreementHash),
			TenantID:        testTenant,
			AgreementHash:   g.AgreementHash,
			ReceiptHash:     bindingHash,
			HoldHash:        hold.HoldHash,
			OpenedByAgentID: "dispute-opener",
			OpenedAt:        h.clk.Now(),
			ReasonCode:      "quality_dispute",
			Nonce:           nonce,
			EvidenceRefs:    []string{"http:request_sha256:" + bindingHash},
			SignerKeyID:     openerKeyID,
		}
		env.EnvelopeHash = disputeEnvelopeHash(env)
		sig, err := cryptoutil.Sign(env.EnvelopeHash, openerPriv, holdback.PurposeDisputeOpen, nil)
		require.NoError(t, err)
		env.Signature = sig
		return env
	}

	_, err := h.hb.OpenDispute(ctx, buildEnv("nonce-1"))
	require.NoError(t, err)

	_, err = h.hb.OpenDispute(ctx, buildEnv("nonce-2"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DISPUTE_ALREADY_OPEN")
}

func TestOpenDisputeRejectsTamperedEnvelopeHash(t *testing.T) {
	h := newHBHarness(t)
	ctx := context.Background()
	bindingHash := sha256Hex("tool-call-request-6")

	g, hold := setupHeldGate(t, h, 5000, 2000, 1000, bindingHash)
	openerPriv, openerKeyID := registerSigningAgent(t, h, "dispute-opener")

	env := holdback.DisputeOpenEnvelope{
		EnvelopeID:      holdback.DisputeOpenEnvelopeID(g.AgreementHash),
		CaseID:          holdback.CaseID(g.AgreementHash),
		TenantID:        testTenant,
		AgreementHash:   g.AgreementHash,
		ReceiptHash:     bindingHash,
		HoldHash:        hold.HoldHash,
		OpenedByAgentID: "dispute-opener",
		OpenedAt:        h.clk.Now(),
		ReasonCode:      "quality_dispute",
		Nonce:           uuid.NewString(),
		EvidenceRefs:    []string{"http:request_sha256:" + bindingHash},
		SignerKeyID:     openerKeyID,
	}
	env.EnvelopeHash = disputeEnvelopeHash(env)
	sig, err := cryptoutil.Sign(env.EnvelopeHash, openerPriv, holdback.PurposeDisputeOpen, nil)
	require.NoError(t, err)
	env.Signature = sig
	env.ReasonCode = "tampered_after_signing"

	_, err = h.hb.OpenDispute(ctx, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENVELOPE_HASH_MISMATCH")
}

func TestOpenDisputeRequiresMatchingBindingEvidence(t *testing.T) {
	h := newHBHarness(t)
	ctx := context.Background()
	bindingHash := sha256Hex("tool-call-request-7")

	g, hold := setupHeldGate(t, h, 5000, 2000, 1000, bindingHash)
	openerPriv, openerKeyID := registerSigningAgent(t, h, "dispute-opener")

	env := holdback.DisputeOpenEnvelope{
		EnvelopeID:      holdback.DisputeOpenEnvelopeID(g.AgreementHash),
		CaseID:          holdback.CaseID(g.AgreementHash),
		TenantID:        testTenant,
		AgreementHash:   g.AgreementHash,
		ReceiptHash:     bindingHash,
		HoldHash:        hold.HoldHash,
		OpenedByAgentID: "dispute-opener",
		OpenedAt:        h.clk.Now(),
		ReasonCode:      "quality_dispute",
		Nonce:           uuid.NewString(),
		EvidenceRefs:    []string{"http:request_sha256:" + sha256Hex("some-other-request")},
		SignerKeyID:     openerKeyID,
	}
	env.EnvelopeHash = disputeEnvelopeHash(env)
	sig, err := cryptoutil.Sign(env.EnvelopeHash, openerPriv, holdback.PurposeDisputeOpen, nil)
	require.NoError(t, err)
	env.Signature = sig

	_, err = h.hb.OpenDispute(ctx, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "X402_TOOL_CALL_OPEN_BINDING_EVIDENCE_MISMATCH")
}

func TestAcceptVerdictRejectsOutOfRangeReleaseRate(t *testing.T) {
	h := newHBHarness(t)
	ctx := context.Background()
	bindingHash := sha256Hex("tool-call-request-8")

	g, hold := setupHeldGate(t, h, 5000, 2000, 1000, bindingHash)
	openerPriv, openerKeyID := registerSigningAgent(t, h, "dispute-opener")
	env := holdback.DisputeOpenEnvelope{
		EnvelopeID:      holdback.DisputeOpenEnvelopeID(g.AgreementHash),
		CaseID:          holdback.CaseID(g.AgreementHash),
		TenantID:        testTenant,
		AgreementHash:   g.AgreementHash,
		ReceiptHash:     bindingHash,
		HoldHash:        hold.HoldHash,
		OpenedByAgentID: "dispute-opener",
		OpenedAt:        h.clk.Now(),
		ReasonCode:      "quality_dispute",
		Nonce:           uuid.NewString(),
		EvidenceRefs:    []string{"http:request_sha256:" + bindingHash},
		SignerKeyID:     openerKeyID,
	}
	env.EnvelopeHash = disputeEnvelopeHash(env)
	sig, err := cryptoutil.Sign(env.EnvelopeHash, openerPriv, holdback.PurposeDisputeOpen, nil)
	require.NoError(t, err)
	env.Signature = sig
	c, err := h.hb.OpenDispute(ctx, env)
	require.NoError(t, err)

	arbiterPriv, arbiterKeyID := registerSigningAgent(t, h, "arbiter-1")
	v := holdback.Verdict{
		VerdictID:      holdback.NewVerdictID(),
		CaseID:         c.CaseID,
		TenantID:       testTenant,
		ArbiterAgentID: "arbiter-1",
		Outcome:        holdback.Accepted,
		ReleaseRatePct: 150,
		IssuedAt:       h.clk.Now(),
		SignerKeyID:    arbiterKeyID,
	}
	v.VerdictHash = verdictHash(v)
	sig, err = cryptoutil.Sign(v.VerdictHash, arbiterPriv, holdback.PurposeArbitrationVerdict, nil)
	require.NoError(t, err)
	v.Signature = sig

	_, err = h.hb.AcceptVerdict(ctx, v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RELEASE_RATE_OUT_OF_RANGE")
}
