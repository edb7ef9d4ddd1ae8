package reputation

import (
	"context"

	"github.com/nooterra/substrate/internal/holdback"
	"github.com/nooterra/substrate/internal/x402"
)

// AgentReputationFacts is the rolling per-agent trust picture: settlement
// outcomes folded into a single trust score, keyed off real settlement
// money rather than raw interaction counts.
type AgentReputationFacts struct {
	TenantID          string  `json:"tenantId"`
	AgentID           string  `json:"agentId"`
	AutoReleasedCents int64   `json:"autoReleasedCents"`
	DisputeWinCents   int64   `json:"disputeWinCents"`
	DisputeLossCents  int64   `json:"disputeLossCents"`
	DisputeCount      int     `json:"disputeCount"`
	TrustScore        float64 `json:"trustScore"`
}

// HoldSource resolves the hold an adjustment was computed against, to
// learn which agent was the payee.
type HoldSource interface {
	GetHold(ctx context.Context, tenantID, holdHash string) (x402.Hold, bool, error)
}

// AdjustmentSource lists every settlement adjustment applied for a tenant.
type AdjustmentSource interface {
	ListAdjustmentsForTenant(ctx context.Context, tenantID string) ([]holdback.Adjustment, error)
}

// FactsDeriver computes AgentReputationFacts from settlement history.
type FactsDeriver struct {
	adjustments AdjustmentSource
	holds       HoldSource
	metering    MeteringSource
}

func NewFactsDeriver(adjustments AdjustmentSource, holds HoldSource, metering MeteringSource) *FactsDeriver {
	return &FactsDeriver{adjustments: adjustments, holds: holds, metering: metering}
}

// DeriveForTenant folds every gate and settlement adjustment for tenantID
// into one AgentReputationFacts per payee agent. Gates still Released by
// auto-release (no dispute ever opened) contribute straight to
// autoReleasedCents; every Adjustment contributes to either
// disputeWinCents (HoldbackRelease, the payee kept the money) or
// disputeLossCents (HoldbackRefund, the payer got it back).
func (d *FactsDeriver) DeriveForTenant(ctx context.Context, tenantID string) ([]AgentReputationFacts, error) {
	gates, err := d.metering.ListGatesForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	adjustments, err := d.adjustments.ListAdjustmentsForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	byAgent := map[string]*AgentReputationFacts{}
	order := make([]string, 0)
	factsFor := func(agentID string) *AgentReputationFacts {
		f, ok := byAgent[agentID]
		if !ok {
			f = &AgentReputationFacts{TenantID: tenantID, AgentID: agentID}
			byAgent[agentID] = f
			order = append(order, agentID)
		}
		return f
	}

	for _, a := range adjustments {
		hold, found, err := d.holds.GetHold(ctx, tenantID, a.HoldHash)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		f := factsFor(hold.PayeeAgentID)
		f.DisputeCount++
		switch a.Kind {
		case holdback.HoldbackRelease:
			f.DisputeWinCents += a.AmountCents
		case holdback.HoldbackRefund:
			f.DisputeLossCents += a.AmountCents
		}
	}

	for _, g := range gates {
		if g.State != x402.Released {
			continue
		}
		f := factsFor(g.PayeeAgentID)
		f.AutoReleasedCents += g.AmountCents
	}

	out := make([]AgentReputationFacts, 0, len(order))
	for _, agentID := range order {
		f := byAgent[agentID]
		f.TrustScore = trustScore(*f)
		out = append(out, *f)
	}
	return out, nil
}

// trustScore maps settlement history onto a 0.0-1.0 score: a neutral
// 0.5 baseline, pulled up by auto-releases and won disputes, pulled down
// by lost disputes, saturating at either end rather than overshooting.
func trustScore(f AgentReputationFacts) float64 {
	good := float64(f.AutoReleasedCents + f.DisputeWinCents)
	bad := float64(f.DisputeLossCents)
	total := good + bad
	if total == 0 {
		return 0.5
	}
	score := 0.5 + 0.5*((good-bad)/total)
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
