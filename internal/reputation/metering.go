package reputation

import (
	"context"
	"time"

	"github.com/nooterra/substrate/internal/proofbundle"
	"github.com/nooterra/substrate/internal/x402"
)

// MeteringSource lists the gates a tenant's metering pass should fold over.
// A narrow interface rather than the full x402.Store surface.
type MeteringSource interface {
	ListGatesForTenant(ctx context.Context, tenantID string) ([]x402.Gate, error)
}

// MeteringDeriver folds settled gates into per-agent usage facts: gross
// spend, the auto-released/disputed/refunded split, and the call/dispute
// counts an invoice's pricing stage consumes.
type MeteringDeriver struct {
	source MeteringSource
}

func NewMeteringDeriver(source MeteringSource) *MeteringDeriver {
	return &MeteringDeriver{source: source}
}

// DeriveForPeriod computes MeteringFacts per payee agent for gates created
// within [start, end).
func (d *MeteringDeriver) DeriveForPeriod(ctx context.Context, tenantID string, start, end time.Time) ([]proofbundle.MeteringFacts, error) {
	gates, err := d.source.ListGatesForTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	byAgent := map[string]*proofbundle.MeteringFacts{}
	order := make([]string, 0)
	factsFor := func(agentID string) *proofbundle.MeteringFacts {
		f, ok := byAgent[agentID]
		if !ok {
			f = &proofbundle.MeteringFacts{TenantID: tenantID, AgentID: agentID, PeriodStart: start, PeriodEnd: end}
			byAgent[agentID] = f
			order = append(order, agentID)
		}
		return f
	}

	for _, g := range gates {
		if g.CreatedAt.Before(start) || !g.CreatedAt.Before(end) {
			continue
		}
		f := factsFor(g.PayeeAgentID)
		switch g.State {
		case x402.Released:
			f.GrossCents += g.AmountCents
			f.AutoReleasedCents += g.AmountCents
			f.CallCount++
		case x402.Refunded:
			f.RefundedCents += g.AmountCents
			f.CallCount++
		case x402.Held, x402.Disputed, x402.Closed:
			f.GrossCents += g.AmountCents
			f.CallCount++
			if g.State == x402.Disputed || g.State == x402.Closed {
				f.DisputedCents += g.AmountCents
				f.DisputeCount++
			}
		}
	}

	out := make([]proofbundle.MeteringFacts, 0, len(order))
	for _, agentID := range order {
		out = append(out, *byAgent[agentID])
	}
	return out, nil
}
