// Package pgstore is a Postgres-backed implementation of the ledger and
// agent registry store interfaces, for deployments that need durability
// beyond the single-process internal/store/memstore reference backend.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/nooterra/substrate/internal/agent"
	"github.com/nooterra/substrate/internal/idempotency"
	"github.com/nooterra/substrate/internal/ledger"
)

// Store wraps a *sql.DB and implements ledger.Store, agent.Store, and
// idempotency.Store. internal/x402, internal/authority, and
// internal/holdback have only the memstore implementation;
// their narrower interfaces are easy to add here following the same
// pattern once a deployment needs it.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres via dsn and ensures the substrate schema
// exists.
func Open(ctx context.Context, dsn string, maxOpenConns, maxIdleConns int) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: open: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if maxIdleConns > 0 {
		db.SetMaxIdleConns(maxIdleConns)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("pgstore: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS wallets (
			tenant_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			currency TEXT NOT NULL,
			available_cents BIGINT NOT NULL DEFAULT 0,
			escrow_locked_cents BIGINT NOT NULL DEFAULT 0,
			heldback_cents BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (tenant_id, agent_id, currency)
		)`,
		`CREATE TABLE IF NOT EXISTS receipts (
			tenant_id TEXT NOT NULL,
			receipt_id TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL,
			receipt_hash TEXT NOT NULL,
			ops_json JSONB NOT NULL,
			PRIMARY KEY (tenant_id, receipt_id)
		)`,
		`CREATE TABLE IF NOT EXISTS agents (
			tenant_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			agent_json JSONB NOT NULL,
			PRIMARY KEY (tenant_id, agent_id)
		)`,
		`CREATE TABLE IF NOT EXISTS idempotency_records (
			tenant_id TEXT NOT NULL,
			route TEXT NOT NULL,
			key TEXT NOT NULL,
			request_hash TEXT NOT NULL,
			envelope BYTEA NOT NULL,
			PRIMARY KEY (tenant_id, route, key)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// txKey is how WithTx threads the active *sql.Tx through ctx so Get/Put
// calls made inside fn participate in the same transaction.
type txKey struct{}

func (s *Store) execer(ctx context.Context) execer {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn inside a single Postgres transaction; any error returned
// by fn rolls the transaction back.
func (s *Store) WithTx(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgstore: begin tx: %w", err)
	}
	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pgstore: commit: %w", err)
	}
	return nil
}

func (s *Store) GetWallet(ctx context.Context, tenantID, agentID, currency string) (ledger.Wallet, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT available_cents, escrow_locked_cents, heldback_cents FROM wallets WHERE tenant_id=$1 AND agent_id=$2 AND currency=$3`,
		tenantID, agentID, currency)
	w := ledger.Wallet{TenantID: tenantID, AgentID: agentID, Currency: currency}
	err := row.Scan(&w.AvailableCents, &w.EscrowLockedCents, &w.HeldbackCents)
	if errors.Is(err, sql.ErrNoRows) {
		return w, nil
	}
	if err != nil {
		return ledger.Wallet{}, fmt.Errorf("pgstore: get wallet: %w", err)
	}
	return w, nil
}

func (s *Store) PutWallet(ctx context.Context, w ledger.Wallet) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO wallets (tenant_id, agent_id, currency, available_cents, escrow_locked_cents, heldback_cents)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (tenant_id, agent_id, currency) DO UPDATE SET
			available_cents = EXCLUDED.available_cents,
			escrow_locked_cents = EXCLUDED.escrow_locked_cents,
			heldback_cents = EXCLUDED.heldback_cents`,
		w.TenantID, w.AgentID, w.Currency, w.AvailableCents, w.EscrowLockedCents, w.HeldbackCents)
	if err != nil {
		return fmt.Errorf("pgstore: put wallet: %w", err)
	}
	return nil
}

func (s *Store) PutReceipt(ctx context.Context, r ledger.Receipt) error {
	opsJSON, err := json.Marshal(r.Ops)
	if err != nil {
		return fmt.Errorf("pgstore: marshal ops: %w", err)
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO receipts (tenant_id, receipt_id, applied_at, receipt_hash, ops_json)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (tenant_id, receipt_id) DO NOTHING`,
		r.TenantID, r.ReceiptID, r.AppliedAt, r.ReceiptHash, opsJSON)
	if err != nil {
		return fmt.Errorf("pgstore: put receipt: %w", err)
	}
	return nil
}

func (s *Store) GetReceipt(ctx context.Context, tenantID, receiptID string) (ledger.Receipt, bool, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT applied_at, receipt_hash, ops_json FROM receipts WHERE tenant_id=$1 AND receipt_id=$2`,
		tenantID, receiptID)
	var r ledger.Receipt
	r.TenantID = tenantID
	r.ReceiptID = receiptID
	var opsJSON []byte
	err := row.Scan(&r.AppliedAt, &r.ReceiptHash, &opsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Receipt{}, false, nil
	}
	if err != nil {
		return ledger.Receipt{}, false, fmt.Errorf("pgstore: get receipt: %w", err)
	}
	if err := json.Unmarshal(opsJSON, &r.Ops); err != nil {
		return ledger.Receipt{}, false, fmt.Errorf("pgstore: unmarshal ops: %w", err)
	}
	return r, true, nil
}

func (s *Store) CreateAgent(ctx context.Context, a agent.Agent) error {
	return s.PutAgent(ctx, a)
}

func (s *Store) PutAgent(ctx context.Context, a agent.Agent) error {
	blob, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("pgstore: marshal agent: %w", err)
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO agents (tenant_id, agent_id, agent_json) VALUES ($1,$2,$3)
		ON CONFLICT (tenant_id, agent_id) DO UPDATE SET agent_json = EXCLUDED.agent_json`,
		a.TenantID, a.AgentID, blob)
	if err != nil {
		return fmt.Errorf("pgstore: put agent: %w", err)
	}
	return nil
}

func (s *Store) GetAgent(ctx context.Context, tenantID, agentID string) (agent.Agent, bool, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT agent_json FROM agents WHERE tenant_id=$1 AND agent_id=$2`, tenantID, agentID)
	var blob []byte
	if err := row.Scan(&blob); errors.Is(err, sql.ErrNoRows) {
		return agent.Agent{}, false, nil
	} else if err != nil {
		return agent.Agent{}, false, fmt.Errorf("pgstore: get agent: %w", err)
	}
	var a agent.Agent
	if err := json.Unmarshal(blob, &a); err != nil {
		return agent.Agent{}, false, fmt.Errorf("pgstore: unmarshal agent: %w", err)
	}
	return a, true, nil
}

func (s *Store) Get(ctx context.Context, scope idempotency.Scope, key string) (idempotency.Record, bool, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT request_hash, envelope FROM idempotency_records WHERE tenant_id=$1 AND route=$2 AND key=$3`,
		scope.TenantID, scope.Route, key)
	r := idempotency.Record{Scope: scope, Key: key}
	err := row.Scan(&r.RequestHash, &r.ResponseEnvelope)
	if errors.Is(err, sql.ErrNoRows) {
		return idempotency.Record{}, false, nil
	}
	if err != nil {
		return idempotency.Record{}, false, fmt.Errorf("pgstore: get idempotency record: %w", err)
	}
	return r, true, nil
}

func (s *Store) Put(ctx context.Context, r idempotency.Record) error {
	// First writer wins: a concurrent duplicate insert is a no-op, and the
	// replay path reads back whichever envelope landed first.
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO idempotency_records (tenant_id, route, key, request_hash, envelope)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (tenant_id, route, key) DO NOTHING`,
		r.Scope.TenantID, r.Scope.Route, r.Key, r.RequestHash, r.ResponseEnvelope)
	if err != nil {
		return fmt.Errorf("pgstore: put idempotency record: %w", err)
	}
	return nil
}

func (s *Store) ListAgents(ctx context.Context, tenantID string) ([]agent.Agent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT agent_json FROM agents WHERE tenant_id=$1`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("pgstore: list agents: %w", err)
	}
	defer rows.Close()
	var out []agent.Agent
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		var a agent.Agent
		if err := json.Unmarshal(blob, &a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
