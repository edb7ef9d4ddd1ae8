package holdback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nooterra/substrate/internal/canon"
	"github.com/nooterra/substrate/internal/clock"
	"github.com/nooterra/substrate/internal/eventchain"
	"github.com/nooterra/substrate/internal/ledger"
	"github.com/nooterra/substrate/internal/substraterr"
	"github.com/nooterra/substrate/internal/x402"
)

// Engine runs the dispute-open, verdict-accept, and settlement-adjustment
// operations, plus the single-flight maintenance sweep that auto-releases
// expired, undisputed holds.
type Engine struct {
	holds       HoldStore
	gates       GateStore
	cases       CaseStore
	adjustments AdjustmentStore
	bindings    x402.BindingSource
	arbiters    ArbiterLifecycleSource
	ledger      *ledger.Ledger
	chain       *eventchain.Chain
	keys        *eventchain.GovernanceKeyRegistry
	keyDir      eventchain.KeyDirectory
	clock       clock.Clock
}

func NewEngine(
	holds HoldStore,
	gates GateStore,
	cases CaseStore,
	adjustments AdjustmentStore,
	bindings x402.BindingSource,
	arbiters ArbiterLifecycleSource,
	ldg *ledger.Ledger,
	chain *eventchain.Chain,
	keys *eventchain.GovernanceKeyRegistry,
	keyDir eventchain.KeyDirectory,
	clk clock.Clock,
) *Engine {
	return &Engine{
		holds: holds, gates: gates, cases: cases, adjustments: adjustments,
		bindings: bindings, arbiters: arbiters, ledger: ldg, chain: chain,
		keys: keys, keyDir: keyDir, clock: clk,
	}
}

// envelopeHashFields is the canonical form an envelope's hash covers:
// every field except the hash and signature themselves.
func envelopeHashFields(e DisputeOpenEnvelope) map[string]any {
	return map[string]any{
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
	}
}

// OpenDispute validates and accepts a DisputeOpenEnvelope.v1 against an
// existing held hold. The checks run in a fixed fail-closed order; the
// first failure wins.
func (e *Engine) OpenDispute(ctx context.Context, env DisputeOpenEnvelope) (*Case, error) {
	// 1. Canonical envelope hash matches envelopeHash.
	wantHash, err := canon.HashJSON(envelopeHashFields(env))
	if err != nil {
		return nil, err
	}
	if wantHash != env.EnvelopeHash {
		return nil, substraterr.New("ENVELOPE_HASH_MISMATCH", "dispute open envelope hash does not match its canonical form")
	}

	// 2. Signature verifies against signerKeyId, purpose "dispute_open",
	// key active at openedAt.
	ok, reason, err := eventchain.VerifySigned(ctx, e.keys, e.keyDir, env.EnvelopeHash, env.Signature, env.SignerKeyID, PurposeDisputeOpen, nil, env.OpenedAt)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, substraterr.New("DISPUTE_INVALID_SIGNER", "dispute open signature invalid").
			WithDetails(map[string]any{"reason": reason})
	}

	hold, found, err := e.holds.GetHold(ctx, env.TenantID, env.HoldHash)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, substraterr.New("DISPUTE_HOLD_NOT_FOUND", "hold not found")
	}

	// 3. openedAt <= challengeDeadline, unless admin override with reason.
	if env.OpenedAt.After(hold.ChallengeDeadline) {
		if env.AdminOverride == nil || !env.AdminOverride.Enabled || env.AdminOverride.Reason == "" {
			return nil, substraterr.New("DISPUTE_WINDOW_EXPIRED", "challenge window has elapsed")
		}
		if _, err := e.keys.RecordOpsAudit(ctx, env.OpenedByAgentID, map[string]any{
			"event":         eventchain.EventOpsAudit,
			"agreementHash": env.AgreementHash,
			"reason":        env.AdminOverride.Reason,
		}); err != nil {
			return nil, err
		}
	}

	// 4. agreementHash/receiptHash/holdHash refer to an existing hold;
	// hold.status is held. A hold already flipped to disputed by an
	// earlier open reports DISPUTE_ALREADY_OPEN.
	if hold.AgreementHash == env.AgreementHash && hold.Status == x402.HoldDisputed {
		return nil, substraterr.New("DISPUTE_ALREADY_OPEN", "a dispute is already open for this agreement")
	}
	if hold.AgreementHash != env.AgreementHash || hold.Status != x402.HoldHeld {
		return nil, substraterr.New("DISPUTE_HOLD_NOT_HELD", "hold is not in held status")
	}

	// 5. Settlement binding-source exists.
	bindingHash, hasBinding, err := e.bindings.RequestSHA256ForAgreement(ctx, env.TenantID, env.AgreementHash)
	if err != nil {
		return nil, err
	}
	if !hasBinding {
		return nil, substraterr.New("X402_TOOL_CALL_BINDING_SOURCE_REQUIRED", "no settlement binding source for this agreement")
	}

	// 6. evidenceRefs contains exactly one http:request_sha256:<hex> equal
	// to the binding-source hash.
	if err := requireSingleMatchingBindingRef(env.EvidenceRefs, bindingHash,
		"X402_TOOL_CALL_OPEN_BINDING_EVIDENCE_REQUIRED",
		"X402_TOOL_CALL_OPEN_BINDING_EVIDENCE_MISMATCH"); err != nil {
		return nil, err
	}

	// 7. No prior open case exists for this agreement.
	if _, found, err := e.cases.GetCaseByAgreement(ctx, env.TenantID, env.AgreementHash); err != nil {
		return nil, err
	} else if found {
		return nil, substraterr.New("DISPUTE_ALREADY_OPEN", "a dispute is already open for this agreement")
	}

	c := Case{
		CaseID:              CaseID(env.AgreementHash),
		TenantID:             env.TenantID,
		AgreementHash:        env.AgreementHash,
		ReceiptHash:          env.ReceiptHash,
		HoldHash:             env.HoldHash,
		OpenedBy:             env.OpenedByAgentID,
		Status:               UnderReview,
		EvidenceRefs:         env.EvidenceRefs,
		Revision:             1,
		DisputeOpenEnvelope:  env,
	}
	if err := e.cases.PutCase(ctx, c); err != nil {
		return nil, err
	}

	hold.Status = x402.HoldDisputed
	if err := e.holds.PutHold(ctx, hold); err != nil {
		return nil, err
	}
	if gate, found, err := e.gates.GetGateByAgreementHash(ctx, env.TenantID, env.AgreementHash); err == nil && found {
		gate.State = x402.Disputed
		_ = e.gates.PutGate(ctx, gate)
	}

	if _, err := e.chain.Append(ctx, env.TenantID, x402.StreamID(hold.GateID), "DISPUTE_OPENED", env.OpenedByAgentID, map[string]any{"case": c}); err != nil {
		return nil, err
	}
	return &c, nil
}

func requireSingleMatchingBindingRef(refs []string, bindingHash, missingCode, mismatchCode string) error {
	var matches int
	var total int
	for _, ref := range refs {
		if !strings.HasPrefix(ref, bindingEvidencePrefix) {
			continue
		}
		total++
		if strings.TrimPrefix(ref, bindingEvidencePrefix) == bindingHash {
			matches++
		}
	}
	if total == 0 {
		return substraterr.New(missingCode, "evidenceRefs must contain an http:request_sha256:<hex> entry")
	}
	if total > 1 || matches != 1 {
		return substraterr.New(mismatchCode, "evidenceRefs binding hash does not uniquely match the settlement binding source")
	}
	return nil
}

func verdictHashFields(v Verdict) map[string]any {
	return map[string]any{
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
	}
}

// AcceptVerdict validates and applies an ArbitrationVerdict.v1, producing
// the hold's terminal settlement adjustment.
func (e *Engine) AcceptVerdict(ctx context.Context, v Verdict) (*Adjustment, error) {
	// 1. Canonical verdictHash matches.
	wantHash, err := canon.HashJSON(verdictHashFields(v))
	if err != nil {
		return nil, err
	}
	if wantHash != v.VerdictHash {
		return nil, substraterr.New("ENVELOPE_HASH_MISMATCH", "verdict hash does not match its canonical form")
	}

	// 2. Signature verifies under arbiter's active key, purpose
	// "arbitration_verdict".
	ok, reason, err := eventchain.VerifySigned(ctx, e.keys, e.keyDir, v.VerdictHash, v.Signature, v.SignerKeyID, PurposeArbitrationVerdict, nil, v.IssuedAt)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, substraterr.New("DISPUTE_INVALID_SIGNER", "verdict signature invalid").
			WithDetails(map[string]any{"reason": reason})
	}

	c, found, err := e.caseByID(ctx, v.TenantID, v.CaseID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, substraterr.New("DISPUTE_CASE_NOT_FOUND", "case not found")
	}
	// 3. caseId corresponds to an under_review case; arbiter matches.
	if c.Status != UnderReview {
		return nil, substraterr.New("DISPUTE_CASE_NOT_UNDER_REVIEW", "case is not under review")
	}
	if c.ArbiterAgentID != "" && c.ArbiterAgentID != v.ArbiterAgentID {
		return nil, substraterr.New("DISPUTE_ARBITER_MISMATCH", "verdict arbiter does not match the case's designated arbiter")
	}

	// 4. Verdict's binding evidence (if present) must match the case's
	// binding-source.
	if bindingHash, hasBinding, err := e.bindings.RequestSHA256ForAgreement(ctx, v.TenantID, c.AgreementHash); err == nil && hasBinding {
		var sawBindingRef bool
		for _, ref := range v.EvidenceRefs {
			if !strings.HasPrefix(ref, bindingEvidencePrefix) {
				continue
			}
			sawBindingRef = true
			if strings.TrimPrefix(ref, bindingEvidencePrefix) != bindingHash {
				return nil, substraterr.New("X402_TOOL_CALL_VERDICT_BINDING_EVIDENCE_MISMATCH", "verdict binding evidence does not match the case's binding source")
			}
		}
		_ = sawBindingRef
	} else if err != nil {
		return nil, err
	}

	// 5. releaseRatePct in [0,100].
	if v.ReleaseRatePct < 0 || v.ReleaseRatePct > 100 {
		return nil, substraterr.New("RELEASE_RATE_OUT_OF_RANGE", "releaseRatePct must be within [0,100]")
	}

	// 6. Arbiter lifecycle is active.
	status, err := e.arbiters.LifecycleStatus(ctx, v.TenantID, v.ArbiterAgentID)
	if err != nil {
		return nil, err
	}
	if status != "active" {
		return nil, substraterr.New("DISPUTE_ARBITER_NOT_ACTIVE", "arbiter is not active").
			WithDetails(map[string]any{"status": status})
	}

	hold, found, err := e.holds.GetHold(ctx, v.TenantID, c.HoldHash)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, substraterr.New("DISPUTE_HOLD_NOT_FOUND", "hold not found")
	}

	adj, err := e.applyAdjustment(ctx, v.TenantID, hold, v.ReleaseRatePct, e.clock.Now())
	if err != nil {
		return nil, err
	}

	c.Status = Closed
	c.Revision++
	if err := e.cases.PutCase(ctx, c); err != nil {
		return nil, err
	}
	if gate, found, err := e.gates.GetGateByAgreementHash(ctx, v.TenantID, c.AgreementHash); err == nil && found {
		gate.State = x402.Closed
		_ = e.gates.PutGate(ctx, gate)
	}
	if _, err := e.chain.Append(ctx, v.TenantID, x402.StreamID(hold.GateID), "ARBITRATION_VERDICT_ACCEPTED", v.ArbiterAgentID, map[string]any{"verdict": v, "adjustment": adj}); err != nil {
		return nil, err
	}
	return adj, nil
}

// ListCases returns every arbitration case for tenantID.
func (e *Engine) ListCases(ctx context.Context, tenantID string) ([]Case, error) {
	return e.cases.ListCases(ctx, tenantID)
}

// GetCase returns a single arbitration case by id.
func (e *Engine) GetCase(ctx context.Context, tenantID, caseID string) (*Case, error) {
	c, found, err := e.caseByID(ctx, tenantID, caseID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, substraterr.New("DISPUTE_CASE_NOT_FOUND", "case not found")
	}
	return &c, nil
}

func (e *Engine) caseByID(ctx context.Context, tenantID, caseID string) (Case, bool, error) {
	cases, err := e.cases.ListCases(ctx, tenantID)
	if err != nil {
		return Case{}, false, err
	}
	for _, c := range cases {
		if c.CaseID == caseID {
			return c, true, nil
		}
	}
	return Case{}, false, nil
}

// applyAdjustment applies the deterministic settlement adjustment for hold
// at releaseRatePct, idempotently: a second call with the same hold
// returns the existing adjustment unchanged.
func (e *Engine) applyAdjustment(ctx context.Context, tenantID string, hold x402.Hold, releaseRatePct int, at time.Time) (*Adjustment, error) {
	adjID := AdjustmentID(hold.AgreementHash)
	if existing, found, err := e.adjustments.GetAdjustment(ctx, tenantID, adjID); err != nil {
		return nil, err
	} else if found {
		return &existing, nil
	}

	releaseAmount := int64(releaseRatePct) * hold.HeldAmountCents / 100
	refundAmount := hold.HeldAmountCents - releaseAmount

	var ops []ledger.Op
	var kind AdjustmentKind
	var amount int64
	var roundingRule string
	switch {
	case releaseRatePct == 100:
		kind = HoldbackRelease
		amount = hold.HeldAmountCents
		ops = ledger.Move(ledger.OpHoldbackRelease, tenantID, hold.PayeeAgentID, ledger.Heldback, hold.PayeeAgentID, ledger.Available, hold.Currency, amount)
	case releaseRatePct == 0:
		kind = HoldbackRefund
		amount = hold.HeldAmountCents
		ops = ledger.Move(ledger.OpHoldbackRefund, tenantID, hold.PayeeAgentID, ledger.Heldback, hold.PayerAgentID, ledger.Available, hold.Currency, amount)
	default:
		// Intermediate split: payer side rounds up, so the refund amount
		// absorbs the rounding remainder.
		kind = HoldbackRelease
		amount = releaseAmount
		roundingRule = "payer_rounds_up"
		ops = ledger.Move(ledger.OpHoldbackRelease, tenantID, hold.PayeeAgentID, ledger.Heldback, hold.PayeeAgentID, ledger.Available, hold.Currency, releaseAmount)
		ops = append(ops, ledger.Move(ledger.OpHoldbackRefund, tenantID, hold.PayeeAgentID, ledger.Heldback, hold.PayerAgentID, ledger.Available, hold.Currency, refundAmount)...)
	}

	if len(ops) > 0 {
		if _, err := e.ledger.CommitTx(ctx, tenantID, ops, at); err != nil {
			return nil, err
		}
	}

	adj := Adjustment{AdjustmentID: adjID, TenantID: tenantID, HoldHash: hold.HoldHash, Kind: kind, AmountCents: amount, AppliedAt: at, RoundingRule: roundingRule}
	if err := e.adjustments.PutAdjustment(ctx, adj); err != nil {
		return nil, err
	}

	switch {
	case releaseRatePct == 100:
		hold.Status = x402.HoldReleased
	case releaseRatePct == 0:
		hold.Status = x402.HoldRefunded
	default:
		hold.Status = x402.HoldReleased
	}
	if err := e.holds.PutHold(ctx, hold); err != nil {
		return nil, err
	}
	return &adj, nil
}

// AutoReleaseExpired scans every held hold in tenantID whose challenge
// deadline has elapsed and no case was ever opened, auto-releasing it via
// the same deterministic adjustment path a verdict would produce. Holds
// with an open case are reported as blocked, not touched.
func (e *Engine) AutoReleaseExpired(ctx context.Context, tenantID string, now time.Time) (released []string, blocked []string, err error) {
	holds, err := e.holds.ListHolds(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}
	for _, h := range holds {
		if h.Status != x402.HoldHeld && h.Status != x402.HoldDisputed {
			continue
		}
		if !h.ChallengeDeadline.Before(now) {
			continue
		}
		if _, found, cerr := e.cases.GetCaseByAgreement(ctx, tenantID, h.AgreementHash); cerr != nil {
			return nil, nil, cerr
		} else if found {
			blocked = append(blocked, h.HoldHash)
			continue
		}
		if h.Status != x402.HoldHeld {
			continue
		}
		if _, aerr := e.applyAdjustment(ctx, tenantID, h, 100, now); aerr != nil {
			return nil, nil, aerr
		}
		if gate, found, gerr := e.gates.GetGateByAgreementHash(ctx, tenantID, h.AgreementHash); gerr == nil && found {
			gate.State = x402.Released
			_ = e.gates.PutGate(ctx, gate)
		}
		released = append(released, h.HoldHash)
	}
	return released, blocked, nil
}

// NewVerdictID returns a fresh deterministic-looking identifier for a
// freshly authored verdict artifact (callers constructing a Verdict before
// hashing/signing it use this, not an agent ID, to avoid collisions).
func NewVerdictID() string { return fmt.Sprintf("verdict_%s", uuid.NewString()) }
