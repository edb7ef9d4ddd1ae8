package ledger

import "context"

// Store is the pluggable persistence interface for wallets and receipts.
// memstore and pgstore both implement it; Ledger.CommitTx checks every op
// before its first write, so a rejected commit leaves no trace on either.
type Store interface {
	// WithTx runs fn so that every Get/Put call fn makes through ctx is
	// isolated from concurrent WithTx calls touching the same tenant. On
	// pgstore, fn returning an error rolls back every mutation made inside
	// it; memstore's WithTx only serialises per tenant and undoes no write.
	WithTx(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error

	GetWallet(ctx context.Context, tenantID, agentID, currency string) (Wallet, error)
	PutWallet(ctx context.Context, w Wallet) error

	PutReceipt(ctx context.Context, r Receipt) error
	GetReceipt(ctx context.Context, tenantID, receiptID string) (Receipt, bool, error)
}
