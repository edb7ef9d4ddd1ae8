// Package eventchain implements the hash-chained per-stream event log:
// one logical log per (tenantId, streamId), monotonic chain hashes signed
// by the active server key, and a governance stream that is the sole
// authority over signer key lifecycle. Streams lock independently; there
// is no single global chain.
package eventchain

import "time"

// Event is one entry on a stream's hash chain.
type Event struct {
	V             int       `json:"v"`
	ID            string    `json:"id"`
	At            time.Time `json:"at"`
	StreamID      string    `json:"streamId"`
	Type          string    `json:"type"`
	Actor         string    `json:"actor"`
	Payload       any       `json:"payload"`
	PrevChainHash *string   `json:"prevChainHash"`
	ChainHash     string    `json:"chainHash"`
	SignerKeyID   string    `json:"signerKeyId"`
	Signature     string    `json:"signature"`
}

// Snapshot is emitted on export: the latest position of a stream.
type Snapshot struct {
	StreamID      string `json:"streamId"`
	LastChainHash string `json:"lastChainHash"`
	LastEventID   string `json:"lastEventId"`
}

// GovernanceStreamID is the well-known stream carrying key lifecycle events.
const GovernanceStreamID = "governance"

// SignPurposeAppend is the purpose tag bound into every chain-hash signature.
const SignPurposeAppend = "event_chain_append"
