// Package ledger implements multi-currency wallet balances with
// available/escrowLocked/heldback partitions and the atomic commitTx
// primitive every write in the substrate funnels through. A per-tenant
// Merkle tree over committed receipts (merkle.go) gives each tenant an
// independently verifiable audit root.
package ledger

import "time"

// Bucket identifies one of a wallet's three balance partitions.
type Bucket string

const (
	Available    Bucket = "available"
	EscrowLocked Bucket = "escrowLocked"
	Heldback     Bucket = "heldback"
)

// Wallet is the per-(agent, currency) balance record. Invariant: every
// bucket is >= 0; available + escrowLocked + heldback equals the sum of
// all posted credit/debit entries for that wallet.
type Wallet struct {
	TenantID          string `json:"tenantId"`
	AgentID           string `json:"agentId"`
	Currency          string `json:"currency"`
	AvailableCents    int64  `json:"availableCents"`
	EscrowLockedCents int64  `json:"escrowLockedCents"`
	HeldbackCents     int64  `json:"heldbackCents"`
}

func (w Wallet) bucket(b Bucket) int64 {
	switch b {
	case Available:
		return w.AvailableCents
	case EscrowLocked:
		return w.EscrowLockedCents
	case Heldback:
		return w.HeldbackCents
	default:
		return 0
	}
}

func (w *Wallet) addBucket(b Bucket, delta int64) {
	switch b {
	case Available:
		w.AvailableCents += delta
	case EscrowLocked:
		w.EscrowLockedCents += delta
	case Heldback:
		w.HeldbackCents += delta
	}
}

// OpKind names the named ledger operation an Op was constructed from, kept
// for receipt/event-log readability even though every Op ultimately applies
// as a bucket delta.
type OpKind string

const (
	OpWalletCredit             OpKind = "WALLET_CREDIT"
	OpWalletDebit              OpKind = "WALLET_DEBIT"
	OpEscrowLock               OpKind = "ESCROW_LOCK"
	OpEscrowRelease            OpKind = "ESCROW_RELEASE"
	OpEscrowRefund             OpKind = "ESCROW_REFUND"
	OpHoldbackPlace            OpKind = "HOLDBACK_PLACE"
	OpHoldbackRelease          OpKind = "HOLDBACK_RELEASE"
	OpHoldbackRefund           OpKind = "HOLDBACK_REFUND"
	OpStateCheckpointUpsert    OpKind = "STATE_CHECKPOINT_UPSERT"
	OpAgentRunSettlementUpsert OpKind = "AGENT_RUN_SETTLEMENT_UPSERT"
)

// Op is one atomic bucket mutation within a commitTx. Delta is signed:
// positive credits the bucket, negative debits it. A negative delta whose
// magnitude exceeds the current balance fails the whole transaction.
type Op struct {
	Kind     OpKind `json:"kind"`
	TenantID string `json:"tenantId"`
	AgentID  string `json:"agentId"`
	Currency string `json:"currency"`
	Bucket   Bucket `json:"bucket"`
	Delta    int64  `json:"deltaCents"`
}

// Receipt is the durable record of one committed transaction.
type Receipt struct {
	ReceiptID   string    `json:"receiptId"`
	TenantID    string    `json:"tenantId"`
	Ops         []Op      `json:"ops"`
	AppliedAt   time.Time `json:"appliedAt"`
	ReceiptHash string    `json:"receiptHash"`
}

// Credit returns a WALLET_CREDIT op.
func Credit(tenantID, agentID, currency string, bucket Bucket, amountCents int64) Op {
	return Op{Kind: OpWalletCredit, TenantID: tenantID, AgentID: agentID, Currency: currency, Bucket: bucket, Delta: amountCents}
}

// Debit returns a WALLET_DEBIT op (amountCents expressed as a positive magnitude).
func Debit(tenantID, agentID, currency string, bucket Bucket, amountCents int64) Op {
	return Op{Kind: OpWalletDebit, TenantID: tenantID, AgentID: agentID, Currency: currency, Bucket: bucket, Delta: -amountCents}
}

// Move returns a pair of ops debiting fromBucket on fromAgent and crediting
// toBucket on toAgent, tagged with kind for audit readability.
func Move(kind OpKind, tenantID, fromAgent string, fromBucket Bucket, toAgent string, toBucket Bucket, currency string, amountCents int64) []Op {
	return []Op{
		{Kind: kind, TenantID: tenantID, AgentID: fromAgent, Currency: currency, Bucket: fromBucket, Delta: -amountCents},
		{Kind: kind, TenantID: tenantID, AgentID: toAgent, Currency: currency, Bucket: toBucket, Delta: amountCents},
	}
}
