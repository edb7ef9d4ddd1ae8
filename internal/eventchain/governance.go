package eventchain

import (
	"context"
	"sort"
	"time"
)

// KeyStatus is a signer key's lifecycle state as of a point in time.
type KeyStatus string

const (
	KeyActive  KeyStatus = "active"
	KeyRotated KeyStatus = "rotated"
	KeyRevoked KeyStatus = "revoked"
	// KeyUnknown is returned for a keyId the governance stream has never
	// mentioned. Fail-closed: unknown is never treated as active.
	KeyUnknown KeyStatus = "unknown"
)

// Governance event types recorded on the governance stream.
const (
	EventKeyIssued  = "SERVER_SIGNER_KEY_ISSUED"
	EventKeyRotated = "SERVER_SIGNER_KEY_ROTATED"
	EventKeyRevoked = "SERVER_SIGNER_KEY_REVOKED"
	EventOpsAudit   = "OPS_AUDIT_DISPUTE_OVERRIDE"
)

// GovernanceKeyRegistry is the authoritative index of signer keys and their
// lifecycle, derived strictly from the governance stream, never from an
// out-of-band "keys" manifest. A manifest's revokedAt field is, at best, a
// cache of this registry; it is never consulted for a verification decision.
type GovernanceKeyRegistry struct {
	chain    *Chain
	tenantID string
}

// NewGovernanceKeyRegistry returns a registry reading the governance stream
// for tenantID through chain.
func NewGovernanceKeyRegistry(chain *Chain, tenantID string) *GovernanceKeyRegistry {
	return &GovernanceKeyRegistry{chain: chain, tenantID: tenantID}
}

// IssueKey records a SERVER_SIGNER_KEY_ISSUED event for keyID.
func (g *GovernanceKeyRegistry) IssueKey(ctx context.Context, actor, keyID string) (*Event, error) {
	return g.chain.Append(ctx, g.tenantID, GovernanceStreamID, EventKeyIssued, actor, map[string]any{"keyId": keyID})
}

// RotateKey records a SERVER_SIGNER_KEY_ROTATED event for oldKeyID, naming
// newKeyID as its replacement.
func (g *GovernanceKeyRegistry) RotateKey(ctx context.Context, actor, oldKeyID, newKeyID string) (*Event, error) {
	return g.chain.Append(ctx, g.tenantID, GovernanceStreamID, EventKeyRotated, actor, map[string]any{
		"keyId":    oldKeyID,
		"newKeyId": newKeyID,
	})
}

// RevokeKey records a SERVER_SIGNER_KEY_REVOKED event for keyID.
func (g *GovernanceKeyRegistry) RevokeKey(ctx context.Context, actor, keyID, reasonCode string) (*Event, error) {
	return g.chain.Append(ctx, g.tenantID, GovernanceStreamID, EventKeyRevoked, actor, map[string]any{
		"keyId":      keyID,
		"reasonCode": reasonCode,
	})
}

// RecordOpsAudit records an admin-override audit event so the override
// itself becomes part of the tamper-evident trail.
func (g *GovernanceKeyRegistry) RecordOpsAudit(ctx context.Context, actor string, details map[string]any) (*Event, error) {
	return g.chain.Append(ctx, g.tenantID, GovernanceStreamID, EventOpsAudit, actor, details)
}

// StatusAt returns keyID's lifecycle status as asserted by the governance
// stream at time at: any SERVER_SIGNER_KEY_REVOKED or _ROTATED event
// rendered at time T marks the key ineligible for any signedAt >= T.
func (g *GovernanceKeyRegistry) StatusAt(ctx context.Context, keyID string, at time.Time) (KeyStatus, error) {
	events, err := g.chain.List(ctx, g.tenantID, GovernanceStreamID)
	if err != nil {
		return "", err
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].At.Before(events[j].At) })

	status := KeyActive
	seen := false
	for _, ev := range events {
		if ev.At.After(at) {
			break
		}
		payload, ok := ev.Payload.(map[string]any)
		if !ok {
			continue
		}
		if id, _ := payload["keyId"].(string); id != keyID {
			continue
		}
		switch ev.Type {
		case EventKeyIssued:
			status = KeyActive
		case EventKeyRotated:
			status = KeyRotated
		case EventKeyRevoked:
			status = KeyRevoked
		default:
			continue
		}
		seen = true
	}
	if !seen {
		return KeyUnknown, nil
	}
	return status, nil
}
