// Package x402 implements the payment gate state machine: one gate per
// paid tool call, from create through authorize/execute/verify into a
// terminal released/refunded/closed state. Authorization checks the payer's
// and payee's lifecycle status, then five signals: grant validity, scope,
// per-call cap, running-total cap, and payer balance. No lock is taken
// around these checks.
package x402

import "time"

// State is one of the gate's lifecycle states.
type State string

const (
	Created    State = "created"
	Authorized State = "authorized"
	Executed   State = "executed"
	Released   State = "released"
	Refunded   State = "refunded"
	Held       State = "held"
	Disputed   State = "disputed"
	Closed     State = "closed"
)

// Gate is X402Gate: one paid tool call from create to settle.
type Gate struct {
	GateID            string    `json:"gateId"`
	TenantID          string    `json:"tenantId"`
	PayerAgentID      string    `json:"payerAgentId"`
	PayeeAgentID      string    `json:"payeeAgentId"`
	ProviderID        string    `json:"providerId"`
	ToolID            string    `json:"toolId"`
	RiskClass         string    `json:"riskClass"`
	SideEffecting     bool      `json:"sideEffecting"`
	AmountCents       int64     `json:"amountCents"`
	Currency          string    `json:"currency"`
	AuthorityGrantRef string    `json:"authorityGrantRef"`
	State             State     `json:"state"`
	HoldbackBps       int       `json:"holdbackBps"`
	ChallengeWindowMs int64     `json:"challengeWindowMs"`
	CreatedAt         time.Time `json:"createdAt"`
	AgreementHash     string    `json:"agreementHash"`

	// BindingRequestSHA256 is populated on execute(): the SHA-256 of the
	// tool-call request payload that verify()/dispute-open bind evidence
	// against.
	BindingRequestSHA256 string `json:"bindingRequestSha256,omitempty"`
}

// HoldStatus is a ToolCallHold's lifecycle status.
type HoldStatus string

const (
	HoldHeld      HoldStatus = "held"
	HoldReleased  HoldStatus = "released"
	HoldRefunded  HoldStatus = "refunded"
	HoldDisputed  HoldStatus = "disputed"
)

// Hold is ToolCallHold: the escrowed portion of a verified payment retained
// during the challenge window.
type Hold struct {
	HoldHash          string     `json:"holdHash"`
	TenantID          string     `json:"tenantId"`
	GateID            string     `json:"gateId"`
	AgreementHash     string     `json:"agreementHash"`
	ReceiptHash       string     `json:"receiptHash"`
	PayerAgentID      string     `json:"payerAgentId"`
	PayeeAgentID      string     `json:"payeeAgentId"`
	Currency          string     `json:"currency"`
	HeldAmountCents   int64      `json:"heldAmountCents"`
	TotalAmountCents  int64      `json:"totalAmountCents"`
	ChallengeDeadline time.Time  `json:"challengeDeadline"`
	Status            HoldStatus `json:"status"`
}

// VerifyStatus is the tool-call execution's observed outcome.
type VerifyStatus string

const (
	VerifyGreen VerifyStatus = "green"
	VerifyRed   VerifyStatus = "red"
)

// CreateParams are the fields a caller supplies to open a new gate.
type CreateParams struct {
	TenantID          string
	PayerAgentID      string
	PayeeAgentID      string
	ProviderID        string
	ToolID            string
	RiskClass         string
	SideEffecting     bool
	AmountCents       int64
	Currency          string
	AuthorityGrantRef string
	HoldbackBps       int
	ChallengeWindowMs int64
}

// VerifyParams describe the verify transition.
type VerifyParams struct {
	Status      VerifyStatus
	Auto        bool
	HoldbackBps int
}
