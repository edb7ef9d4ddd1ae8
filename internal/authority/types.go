// Package authority validates AuthorityGrant.v1 envelopes: signed
// delegations of spend/tool authority from a principal to a grantee
// agent. Evaluation is an ordered list of named checks, first failure
// wins, fail-closed.
package authority

import "time"

// Scope restricts which tool calls a grant authorizes.
type Scope struct {
	AllowedProviderIDs  []string `json:"allowedProviderIds"`
	AllowedToolIDs      []string `json:"allowedToolIds"`
	AllowedRiskClasses  []string `json:"allowedRiskClasses"`
	SideEffectingAllowed bool    `json:"sideEffectingAllowed"`
}

// SpendEnvelope bounds the money a grant authorizes.
type SpendEnvelope struct {
	Currency        string `json:"currency"`
	MaxPerCallCents int64  `json:"maxPerCallCents"`
	MaxTotalCents   int64  `json:"maxTotalCents"`
}

// ChainBinding records delegation depth for sub-delegated grants.
type ChainBinding struct {
	Depth              int `json:"depth"`
	MaxDelegationDepth int `json:"maxDelegationDepth"`
}

// Validity is the grant's active time window.
type Validity struct {
	IssuedAt  time.Time `json:"issuedAt"`
	NotBefore time.Time `json:"notBefore"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Revocation records whether/when/why a grant was revoked.
type Revocation struct {
	Revocable          bool       `json:"revocable"`
	RevokedAt          *time.Time `json:"revokedAt,omitempty"`
	RevocationReasonCode string   `json:"revocationReasonCode,omitempty"`
}

// Grant is AuthorityGrant.v1.
type Grant struct {
	GrantID         string        `json:"grantId"`
	TenantID        string        `json:"tenantId"`
	PrincipalRef    string        `json:"principalRef"`
	GranteeAgentID  string        `json:"granteeAgentId"`
	Scope           Scope         `json:"scope"`
	SpendEnvelope   SpendEnvelope `json:"spendEnvelope"`
	ChainBinding    ChainBinding  `json:"chainBinding"`
	Validity        Validity      `json:"validity"`
	Revocation      Revocation    `json:"revocation"`
	GrantHash       string        `json:"grantHash"`
	SignerKeyID     string        `json:"signerKeyId"`
	Signature       string        `json:"signature"`
}

// ToolCallRequest describes the call being authorized against a grant.
type ToolCallRequest struct {
	AgentID      string
	ProviderID   string
	ToolID       string
	RiskClass    string
	SideEffecting bool
	Currency     string
	AmountCents  int64
	At           time.Time
}
