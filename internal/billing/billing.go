// Package billing aggregates x402 gate and holdback activity into a
// per-tenant monthly Bill, priced by subscription tier and driven by real
// settled cents.
package billing

import (
	"context"
	"sync"
	"time"

	"github.com/nooterra/substrate/internal/proofbundle"
)

// Tier is a subscription pricing tier.
type Tier string

const (
	TierStartup    Tier = "startup"
	TierGrowth     Tier = "growth"
	TierEnterprise Tier = "enterprise"
	TierPayAsYouGo Tier = "pay_as_you_go"
)

// TierLimits names the per-tier monthly transaction allowance and the
// per-transaction overage price charged past it, in hundredths-of-a-cent
// (micro-cents) to keep billing math in integers.
type TierLimits struct {
	MonthlyCallLimit  int64
	OveragePerCallMC  int64
	BasePriceCentsPM  int64
}

func LimitsFor(t Tier) TierLimits {
	switch t {
	case TierStartup:
		return TierLimits{MonthlyCallLimit: 1_000_000, OveragePerCallMC: 50, BasePriceCentsPM: 49_900}
	case TierGrowth:
		return TierLimits{MonthlyCallLimit: 10_000_000, OveragePerCallMC: 30, BasePriceCentsPM: 249_900}
	case TierEnterprise:
		return TierLimits{MonthlyCallLimit: -1, OveragePerCallMC: 0, BasePriceCentsPM: 0}
	default:
		return TierLimits{MonthlyCallLimit: -1, OveragePerCallMC: 100, BasePriceCentsPM: 0}
	}
}

// TenantAccount is a tenant's billing account: its tier and the running
// call counter for the current billing period.
type TenantAccount struct {
	mu sync.Mutex

	TenantID           string
	Tier               Tier
	BillingPeriodStart time.Time
	BillingPeriodEnd   time.Time
	CallsThisPeriod    int64
}

// NewTenantAccount opens an account for tenantID on tier, with a billing
// period running from start to the first of the following month.
func NewTenantAccount(tenantID string, tier Tier, start time.Time) *TenantAccount {
	periodEnd := time.Date(start.Year(), start.Month()+1, 1, 0, 0, 0, 0, start.Location())
	return &TenantAccount{
		TenantID:           tenantID,
		Tier:               tier,
		BillingPeriodStart: start,
		BillingPeriodEnd:   periodEnd,
	}
}

// RecordCalls advances the tenant's call counter for the current period.
func (a *TenantAccount) RecordCalls(n int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.CallsThisPeriod += n
}

// Bill is one billing period's aggregated charge for a tenant.
type Bill struct {
	TenantID        string    `json:"tenantId"`
	PeriodStart     time.Time `json:"periodStart"`
	PeriodEnd       time.Time `json:"periodEnd"`
	Tier            Tier      `json:"tier"`
	TotalCalls      int64     `json:"totalCalls"`
	GrossCents      int64     `json:"grossCents"`
	BaseFeeCents    int64     `json:"baseFeeCents"`
	OverageCalls    int64     `json:"overageCalls"`
	OverageCentsMC  int64     `json:"overageMicrocents"`
	TotalDueCents   int64     `json:"totalDueCents"`
}

// MeteringSource supplies the per-agent usage facts a bill aggregates
// over. internal/reputation.MeteringDeriver satisfies this.
type MeteringSource interface {
	DeriveForPeriod(ctx context.Context, tenantID string, start, end time.Time) ([]proofbundle.MeteringFacts, error)
}

// CalculateBill aggregates every agent's MeteringFacts for the account's
// current billing period into one Bill: a flat per-tier base fee plus
// metered overage once the tier's monthly call limit is exceeded.
func CalculateBill(ctx context.Context, account *TenantAccount, metering MeteringSource) (Bill, error) {
	facts, err := metering.DeriveForPeriod(ctx, account.TenantID, account.BillingPeriodStart, account.BillingPeriodEnd)
	if err != nil {
		return Bill{}, err
	}

	limits := LimitsFor(account.Tier)
	bill := Bill{
		TenantID:     account.TenantID,
		PeriodStart:  account.BillingPeriodStart,
		PeriodEnd:    account.BillingPeriodEnd,
		Tier:         account.Tier,
		BaseFeeCents: limits.BasePriceCentsPM,
	}

	for _, f := range facts {
		bill.TotalCalls += int64(f.CallCount)
		bill.GrossCents += f.GrossCents
	}

	if limits.MonthlyCallLimit >= 0 && bill.TotalCalls > limits.MonthlyCallLimit {
		bill.OverageCalls = bill.TotalCalls - limits.MonthlyCallLimit
		bill.OverageCentsMC = bill.OverageCalls * limits.OveragePerCallMC
	}

	bill.TotalDueCents = bill.BaseFeeCents + bill.OverageCentsMC/100
	return bill, nil
}
