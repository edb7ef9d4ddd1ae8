// Package reserve models the boundary between the ledger's integer-cent
// bookkeeping and whatever actually moves real money: a bank rail, a
// card processor, a stablecoin settlement network. The core never
// performs fiat rail transfers itself; this package is the pluggable
// seam that stands in for one.
package reserve

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// TransferRecord is the adapter's receipt for one reserve-side movement,
// independent of (and prior to) the ledger's own internal Receipt.
type TransferRecord struct {
	TransferID  string    `json:"transferId"`
	TenantID    string    `json:"tenantId"`
	AgentID     string    `json:"agentId"`
	Currency    string    `json:"currency"`
	AmountCents int64     `json:"amountCents"`
	Direction   string    `json:"direction"` // "inbound" | "outbound"
	Reference   string    `json:"reference"`
	RecordedAt  time.Time `json:"recordedAt"`
}

// Adapter is the reserve-side collaborator the wallet-credit handler
// consults (RecordInbound) before the ledger commits the credit; no
// handler in this repository calls RecordOutbound. A real
// implementation would call out to a bank rail or custody API; this core
// only needs the seam and a safe no-op default.
type Adapter interface {
	// RecordInbound notes that amountCents of currency is expected to
	// arrive (or has arrived) for agentID from an external source,
	// identified by reference (e.g. a bank wire ID, a card charge ID).
	RecordInbound(ctx context.Context, tenantID, agentID, currency string, amountCents int64, reference string) (*TransferRecord, error)

	// RecordOutbound notes that amountCents of currency should be (or was)
	// paid out to agentID's external account.
	RecordOutbound(ctx context.Context, tenantID, agentID, currency string, amountCents int64, reference string) (*TransferRecord, error)
}

// NoopAdapter is the default Adapter: it records every call it received
// (for audit/debugging) but performs no external transfer whatsoever.
// Every production deployment of this substrate is expected to replace it
// with a real reserve binding; the core never assumes one exists.
type NoopAdapter struct {
	log *slog.Logger
}

// New returns a NoopAdapter.
func New(log *slog.Logger) *NoopAdapter {
	if log == nil {
		log = slog.Default()
	}
	return &NoopAdapter{log: log.With("component", "reserve")}
}

func (a *NoopAdapter) RecordInbound(ctx context.Context, tenantID, agentID, currency string, amountCents int64, reference string) (*TransferRecord, error) {
	rec := &TransferRecord{
		TransferID: "xfer_" + uuid.NewString(), TenantID: tenantID, AgentID: agentID,
		Currency: currency, AmountCents: amountCents, Direction: "inbound", Reference: reference,
		RecordedAt: time.Now(),
	}
	a.log.Info("reserve inbound recorded (no-op adapter)", "tenantId", tenantID, "agentId", agentID, "amountCents", amountCents, "reference", reference)
	return rec, nil
}

func (a *NoopAdapter) RecordOutbound(ctx context.Context, tenantID, agentID, currency string, amountCents int64, reference string) (*TransferRecord, error) {
	rec := &TransferRecord{
		TransferID: "xfer_" + uuid.NewString(), TenantID: tenantID, AgentID: agentID,
		Currency: currency, AmountCents: amountCents, Direction: "outbound", Reference: reference,
		RecordedAt: time.Now(),
	}
	a.log.Info("reserve outbound recorded (no-op adapter)", "tenantId", tenantID, "agentId", agentID, "amountCents", amountCents, "reference", reference)
	return rec, nil
}
