// Package holdback implements the tool-call holdback and arbitration
// engine: opening a signed dispute against a held escrow, accepting a
// signed arbiter verdict, and applying the deterministic settlement
// adjustment that closes the hold either way. It also runs the
// single-flight maintenance sweep that auto-releases holds whose
// challenge window elapsed undisputed. Validation is an ordered list of
// fail-closed checks over signed envelopes, never in-process policy
// objects.
package holdback

import "time"

// CaseStatus is an ArbitrationCase's lifecycle status.
type CaseStatus string

const (
	UnderReview CaseStatus = "under_review"
	Closed      CaseStatus = "closed"
)

// Case is ArbitrationCase.
type Case struct {
	CaseID             string             `json:"caseId"`
	TenantID           string             `json:"tenantId"`
	AgreementHash      string             `json:"agreementHash"`
	ReceiptHash        string             `json:"receiptHash"`
	HoldHash           string             `json:"holdHash"`
	OpenedBy           string             `json:"openedBy"`
	ArbiterAgentID     string             `json:"arbiterAgentId"`
	Status             CaseStatus         `json:"status"`
	EvidenceRefs       []string           `json:"evidenceRefs"`
	Revision           int                `json:"revision"`
	DisputeOpenEnvelope DisputeOpenEnvelope `json:"disputeOpenEnvelope"`
}

// CaseID derives ArbitrationCase.caseId deterministically from an
// agreement hash.
func CaseID(agreementHash string) string { return "arb_case_tc_" + agreementHash }

// DisputeOpenEnvelopeID derives DisputeOpenEnvelope.v1's artifact id
// deterministically from an agreement hash.
func DisputeOpenEnvelopeID(agreementHash string) string { return "dopen_tc_" + agreementHash }

// DisputeOpenEnvelope is DisputeOpenEnvelope.v1.
type DisputeOpenEnvelope struct {
	EnvelopeID     string    `json:"envelopeId"`
	CaseID         string    `json:"caseId"`
	TenantID       string    `json:"tenantId"`
	AgreementHash  string    `json:"agreementHash"`
	ReceiptHash    string    `json:"receiptHash"`
	HoldHash       string    `json:"holdHash"`
	OpenedByAgentID string   `json:"openedByAgentId"`
	OpenedAt       time.Time `json:"openedAt"`
	ReasonCode     string    `json:"reasonCode"`
	Nonce          string    `json:"nonce"`
	EvidenceRefs   []string  `json:"evidenceRefs"`
	SignerKeyID    string    `json:"signerKeyId"`
	Signature      string    `json:"signature"`
	EnvelopeHash   string    `json:"envelopeHash"`

	AdminOverride *AdminOverride `json:"adminOverride,omitempty"`
}

// AdminOverride lets an open past the challenge deadline proceed, emitting
// an ops-audit governance event.
type AdminOverride struct {
	Enabled bool   `json:"enabled"`
	Reason  string `json:"reason"`
}

// VerdictOutcome is the arbiter's accept/reject determination.
type VerdictOutcome string

const (
	Accepted VerdictOutcome = "accepted"
	Rejected VerdictOutcome = "rejected"
)

// Verdict is ArbitrationVerdict.v1.
type Verdict struct {
	VerdictID      string         `json:"verdictId"`
	CaseID         string         `json:"caseId"`
	TenantID       string         `json:"tenantId"`
	RunID          string         `json:"runId"`
	SettlementID   string         `json:"settlementId"`
	DisputeID      string         `json:"disputeId"`
	ArbiterAgentID string         `json:"arbiterAgentId"`
	Outcome        VerdictOutcome `json:"outcome"`
	ReleaseRatePct int            `json:"releaseRatePct"`
	Rationale      string         `json:"rationale"`
	EvidenceRefs   []string       `json:"evidenceRefs"`
	IssuedAt       time.Time      `json:"issuedAt"`
	SignerKeyID    string         `json:"signerKeyId"`
	Signature      string         `json:"signature"`
	VerdictHash    string         `json:"verdictHash"`
}

// AdjustmentKind is a SettlementAdjustment's kind.
type AdjustmentKind string

const (
	HoldbackRelease AdjustmentKind = "holdback_release"
	HoldbackRefund  AdjustmentKind = "holdback_refund"
)

// Adjustment is SettlementAdjustment: the deterministic, idempotent
// ledger entry that closes a hold.
type Adjustment struct {
	AdjustmentID string         `json:"adjustmentId"`
	TenantID     string         `json:"tenantId"`
	HoldHash     string         `json:"holdHash"`
	Kind         AdjustmentKind `json:"kind"`
	AmountCents  int64          `json:"amountCents"`
	AppliedAt    time.Time      `json:"appliedAt"`
	// RoundingRule records which side absorbed the remainder on an
	// intermediate (neither 0 nor 100) releaseRatePct split, always
	// "payer_rounds_up". Empty for the all-or-nothing cases, where no
	// rounding occurs.
	RoundingRule string `json:"roundingRule,omitempty"`
}

// AdjustmentID derives SettlementAdjustment.adjustmentId deterministically
// from an agreement hash: one adjustment per hold, same id whether it
// came from auto-release or a verdict.
func AdjustmentID(agreementHash string) string { return "sadj_agmt_" + agreementHash + "_holdback" }

// Sign purpose tags bound into envelope/verdict signatures.
const (
	PurposeDisputeOpen        = "dispute_open"
	PurposeArbitrationVerdict = "arbitration_verdict"
)

// binding evidence ref prefix for dispute-open envelopes.
const bindingEvidencePrefix = "http:request_sha256:"
