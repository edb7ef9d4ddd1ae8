package authority

import "github.com/nooterra/substrate/internal/canon"

// hashFields is the canonical form grantHash covers: the grant's full
// content minus signature.
func hashFields(g Grant) map[string]any {
	return map[string]any{
		"grantId":        g.GrantID,
		"tenantId":       g.TenantID,
		"principalRef":   g.PrincipalRef,
		"granteeAgentId": g.GranteeAgentID,
		"scope":          g.Scope,
		"spendEnvelope":  g.SpendEnvelope,
		"chainBinding":   g.ChainBinding,
		"validity":       g.Validity,
		"revocation":     g.Revocation,
	}
}

// ComputeGrantHash returns H(canonicalJSON(hashFields(g))).
func ComputeGrantHash(g Grant) (string, error) {
	return canon.HashJSON(hashFields(g))
}
