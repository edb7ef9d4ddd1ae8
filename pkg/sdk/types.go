package sdk

import "time"

// GateState mirrors internal/x402.State for SDK callers that don't want
// to import the server's internal package.
type GateState string

const (
	GateCreated    GateState = "created"
	GateAuthorized GateState = "authorized"
	GateExecuted   GateState = "executed"
	GateReleased   GateState = "released"
	GateHeld       GateState = "held"
	GateDisputed   GateState = "disputed"
	GateRefunded   GateState = "refunded"
	GateClosed     GateState = "closed"
)

// Gate is the client-side view of an x402 payment gate.
type Gate struct {
	GateID            string    `json:"gateId"`
	PayerAgentID      string    `json:"payerAgentId"`
	PayeeAgentID      string    `json:"payeeAgentId"`
	ProviderID        string    `json:"providerId"`
	ToolID            string    `json:"toolId"`
	AmountCents       int64     `json:"amountCents"`
	Currency          string    `json:"currency"`
	AuthorityGrantRef string    `json:"authorityGrantRef"`
	State             GateState `json:"state"`
	CreatedAt         time.Time `json:"createdAt"`
	AgreementHash     string    `json:"agreementHash"`
}

// CreateGateRequest opens a new payment gate for one paid tool call.
type CreateGateRequest struct {
	PayerAgentID      string `json:"payerAgentId"`
	PayeeAgentID      string `json:"payeeAgentId"`
	ProviderID        string `json:"providerId"`
	ToolID            string `json:"toolId"`
	RiskClass         string `json:"riskClass"`
	SideEffecting     bool   `json:"sideEffecting"`
	AmountCents       int64  `json:"amountCents"`
	Currency          string `json:"currency"`
	AuthorityGrantRef string `json:"authorityGrantRef"`
	HoldbackBps       int    `json:"holdbackBps,omitempty"`
	ChallengeWindowMs int64  `json:"challengeWindowMs,omitempty"`
}

// VerifyRequest reports the tool call's observed outcome.
type VerifyRequest struct {
	GateID      string `json:"gateId"`
	Status      string `json:"status"`
	Auto        bool   `json:"auto"`
	HoldbackBps int    `json:"holdbackBps,omitempty"`
}

// Agent is the client-side view of a registered agent.
type Agent struct {
	AgentID         string    `json:"agentId"`
	TenantID        string    `json:"tenantId"`
	DisplayName     string    `json:"displayName"`
	LifecycleStatus string    `json:"lifecycleStatus"`
	CreatedAt       time.Time `json:"createdAt"`
}

// RegisterAgentRequest registers a new agent.
type RegisterAgentRequest struct {
	AgentID      string   `json:"agentId"`
	DisplayName  string   `json:"displayName"`
	OwnerRef     string   `json:"ownerRef"`
	Capabilities []string `json:"capabilities,omitempty"`
	PublicKeyPEM string   `json:"publicKeyPem,omitempty"`
}

// Wallet is the client-side view of an agent's per-currency balance.
type Wallet struct {
	AgentID           string `json:"agentId"`
	Currency          string `json:"currency"`
	AvailableCents    int64  `json:"availableCents"`
	EscrowLockedCents int64  `json:"escrowLockedCents"`
	HeldbackCents     int64  `json:"heldbackCents"`
}
