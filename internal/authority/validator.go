package authority

import (
	"context"
	"slices"

	"github.com/nooterra/substrate/internal/substraterr"
)

// Validator runs the ordered, fail-closed grant checks gate authorization
// requires.
type Validator struct {
	store   Store
	runtime RunningTotalSource
}

func NewValidator(store Store, runtime RunningTotalSource) *Validator {
	return &Validator{store: store, runtime: runtime}
}

// Authorize evaluates req against its referenced grant atomically, in a
// fixed order: revocation, validity window, actor match, scope, per-call
// cap, running total. The first failing check wins.
func (v *Validator) Authorize(ctx context.Context, tenantID, grantID string, req ToolCallRequest) (*Grant, error) {
	grant, found, err := v.store.GetGrant(ctx, tenantID, grantID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, substraterr.New("GRANT_NOT_FOUND", "authority grant not found")
	}

	if grant.Revocation.RevokedAt != nil {
		return nil, substraterr.New("X402_AUTHORITY_GRANT_REVOKED", "authority grant has been revoked").
			WithDetails(map[string]any{"reasonCode": grant.Revocation.RevocationReasonCode})
	}

	if req.At.Before(grant.Validity.NotBefore) {
		return nil, substraterr.New("X402_AUTHORITY_GRANT_NOT_ACTIVE", "authority grant is not yet active")
	}
	if !req.At.Before(grant.Validity.ExpiresAt) {
		return nil, substraterr.New("X402_AUTHORITY_GRANT_EXPIRED", "authority grant has expired")
	}

	if req.AgentID != grant.GranteeAgentID {
		return nil, substraterr.New("X402_AUTHORITY_GRANT_ACTOR_MISMATCH", "requesting agent does not match grantee")
	}

	if !scopeAllows(grant.Scope, req) {
		return nil, substraterr.New("X402_AUTHORITY_GRANT_SCOPE_DENIED", "scope does not permit this provider/tool/riskClass")
	}

	if req.AmountCents > grant.SpendEnvelope.MaxPerCallCents {
		return nil, substraterr.New("X402_AUTHORITY_GRANT_PER_CALL_EXCEEDED", "amount exceeds maxPerCallCents").
			WithDetails(map[string]any{"maxPerCallCents": grant.SpendEnvelope.MaxPerCallCents, "amountCents": req.AmountCents})
	}

	runningTotal, err := v.runtime.RunningTotalForGrant(ctx, tenantID, grantID)
	if err != nil {
		return nil, err
	}
	if runningTotal+req.AmountCents > grant.SpendEnvelope.MaxTotalCents {
		return nil, substraterr.New("X402_AUTHORITY_GRANT_TOTAL_EXCEEDED", "running total would exceed maxTotalCents").
			WithDetails(map[string]any{
				"maxTotalCents": grant.SpendEnvelope.MaxTotalCents,
				"runningTotal":  runningTotal,
				"amountCents":   req.AmountCents,
			})
	}

	return &grant, nil
}

func scopeAllows(scope Scope, req ToolCallRequest) bool {
	if !contains(scope.AllowedProviderIDs, req.ProviderID) {
		return false
	}
	if !contains(scope.AllowedToolIDs, req.ToolID) {
		return false
	}
	if !contains(scope.AllowedRiskClasses, req.RiskClass) {
		return false
	}
	if req.SideEffecting && !scope.SideEffectingAllowed {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	if len(list) == 0 {
		return false
	}
	return slices.Contains(list, v)
}
