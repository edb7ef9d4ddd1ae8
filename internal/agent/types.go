// Package agent implements the agent registry: a tenant-scoped principal
// with registered Ed25519 keys and a lifecycle status the x402 gate
// consults before authorizing any spend on its behalf.
package agent

import "time"

// LifecycleStatus is an agent's current standing.
type LifecycleStatus string

const (
	Active     LifecycleStatus = "active"
	Throttled  LifecycleStatus = "throttled"
	Suspended  LifecycleStatus = "suspended"
)

// PublicKey is one registered signer key for an agent. KeyID is always the
// SHA-256 of the key's SPKI encoding (cryptoutil.KeyIDFromPublicKey); never
// caller-supplied.
type PublicKey struct {
	KeyID     string    `json:"keyId"`
	PEM       string    `json:"pem"`
	CreatedAt time.Time `json:"createdAt"`
}

// Agent is a tenant-scoped principal. Invariant: at most one key per
// (agentId, keyId), enforced by Manager.AddPublicKey.
type Agent struct {
	AgentID         string          `json:"agentId"`
	TenantID        string          `json:"tenantId"`
	DisplayName     string          `json:"displayName"`
	OwnerRef        string          `json:"ownerRef"`
	PublicKeys      []PublicKey     `json:"publicKeys"`
	Capabilities    []string        `json:"capabilities"`
	LifecycleStatus LifecycleStatus `json:"lifecycleStatus"`
	CreatedAt       time.Time       `json:"createdAt"`
}
