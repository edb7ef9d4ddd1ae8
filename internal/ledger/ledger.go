package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nooterra/substrate/internal/canon"
	"github.com/nooterra/substrate/internal/substraterr"
)

// Ledger applies ordered op lists atomically via Store.WithTx and keeps a
// per-tenant Merkle audit trail over every committed Receipt.
type Ledger struct {
	store  Store
	merkle *Merkle
}

// New constructs a Ledger over store.
func New(store Store) *Ledger {
	return &Ledger{store: store, merkle: NewMerkle()}
}

// CommitTx applies ops atomically: preconditions are checked against a
// snapshot read (no wallet balance may go negative), then applied; any
// precondition failure aborts the whole batch with no partial writes.
func (l *Ledger) CommitTx(ctx context.Context, tenantID string, ops []Op, at time.Time) (*Receipt, error) {
	if len(ops) == 0 {
		return nil, substraterr.New("VALIDATION_REQUIRED", "commitTx requires at least one op")
	}

	var receipt *Receipt
	err := l.store.WithTx(ctx, tenantID, func(ctx context.Context) error {
		touched := make(map[string]Wallet)
		order := make([]string, 0, len(ops))

		for _, op := range ops {
			if op.TenantID != tenantID {
				return substraterr.Withf("VALIDATION_INVALID", "op tenant %q does not match commitTx tenant %q", op.TenantID, tenantID)
			}
			key := walletKey(op.TenantID, op.AgentID, op.Currency)
			w, ok := touched[key]
			if !ok {
				loaded, err := l.store.GetWallet(ctx, op.TenantID, op.AgentID, op.Currency)
				if err != nil {
					return fmt.Errorf("ledger: load wallet %s: %w", key, err)
				}
				w = loaded
				order = append(order, key)
			}
			w.addBucket(op.Bucket, op.Delta)
			if w.bucket(op.Bucket) < 0 {
				return substraterr.Withf("X402_INSUFFICIENT_BALANCE",
					"op %s would drive bucket %s negative for agent %s", op.Kind, op.Bucket, op.AgentID).
					WithDetails(map[string]any{"agentId": op.AgentID, "bucket": string(op.Bucket)})
			}
			touched[key] = w
		}

		for _, key := range order {
			if err := l.store.PutWallet(ctx, touched[key]); err != nil {
				return fmt.Errorf("ledger: persist wallet %s: %w", key, err)
			}
		}

		r := Receipt{
			ReceiptID: "rcpt_" + uuid.NewString(),
			TenantID:  tenantID,
			Ops:       ops,
			AppliedAt: at,
		}
		hash, err := canon.HashJSON(map[string]any{
			"receiptId": r.ReceiptID,
			"tenantId":  r.TenantID,
			"ops":       r.Ops,
			"appliedAt": r.AppliedAt,
		})
		if err != nil {
			return fmt.Errorf("ledger: hash receipt: %w", err)
		}
		r.ReceiptHash = hash

		if err := l.store.PutReceipt(ctx, r); err != nil {
			return fmt.Errorf("ledger: persist receipt: %w", err)
		}
		l.merkle.Append(tenantID, r.ReceiptHash)
		receipt = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// GetWallet reads a wallet outside of a transaction (a consistent snapshot
// at the last commit boundary).
func (l *Ledger) GetWallet(ctx context.Context, tenantID, agentID, currency string) (Wallet, error) {
	return l.store.GetWallet(ctx, tenantID, agentID, currency)
}

// MerkleRoot returns the current Merkle root over tenantID's committed
// receipt hashes, for inclusion in proof bundle exports.
func (l *Ledger) MerkleRoot(tenantID string) string {
	return l.merkle.Root(tenantID)
}

// MerkleProof returns an inclusion proof for receiptHash within tenantID's
// ledger history.
func (l *Ledger) MerkleProof(tenantID, receiptHash string) (*MerkleProof, error) {
	return l.merkle.GenerateProof(tenantID, receiptHash)
}

func walletKey(tenantID, agentID, currency string) string {
	return tenantID + "/" + agentID + "/" + currency
}
