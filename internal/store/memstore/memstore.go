// Package memstore is the in-memory Store implementation: one
// process-local backing for the ledger, x402 gates/holds, authority
// grants, the event chain, agent registry, idempotency records, and
// arbitration cases/adjustments. internal/store/pgstore implements only
// the ledger, agent and idempotency interfaces over Postgres, and differs
// in places: its CreateAgent overwrites an existing agent, and its
// idempotency Put keeps the first record written for a key where this
// one keeps the last.
package memstore

import (
	"context"
	"sync"

	"github.com/nooterra/substrate/internal/agent"
	"github.com/nooterra/substrate/internal/authority"
	"github.com/nooterra/substrate/internal/eventchain"
	"github.com/nooterra/substrate/internal/holdback"
	"github.com/nooterra/substrate/internal/idempotency"
	"github.com/nooterra/substrate/internal/ledger"
	"github.com/nooterra/substrate/internal/substraterr"
	"github.com/nooterra/substrate/internal/x402"
)

// Memory is a single process-local store backing every core package. It
// satisfies ledger.Store, x402.Store, authority.Store, eventchain.Store,
// idempotency.Store, agent.Store, holdback.CaseStore, and
// holdback.AdjustmentStore.
type Memory struct {
	mu sync.RWMutex

	txMu     sync.Mutex
	txLocks  map[string]*sync.Mutex

	wallets          map[string]ledger.Wallet
	receipts         map[string]ledger.Receipt
	gates            map[string]x402.Gate
	gatesByAgreement map[string]string
	holds            map[string]x402.Hold
	grants           map[string]authority.Grant
	events           map[string][]eventchain.Event
	idemRecords      map[string]idempotency.Record
	agents           map[string]agent.Agent
	cases            map[string]holdback.Case
	adjustments      map[string]holdback.Adjustment
}

func New() *Memory {
	return &Memory{
		txLocks:          make(map[string]*sync.Mutex),
		wallets:          make(map[string]ledger.Wallet),
		receipts:         make(map[string]ledger.Receipt),
		gates:            make(map[string]x402.Gate),
		gatesByAgreement: make(map[string]string),
		holds:            make(map[string]x402.Hold),
		grants:           make(map[string]authority.Grant),
		events:           make(map[string][]eventchain.Event),
		idemRecords:      make(map[string]idempotency.Record),
		agents:           make(map[string]agent.Agent),
		cases:            make(map[string]holdback.Case),
		adjustments:      make(map[string]holdback.Adjustment),
	}
}

// --- ledger.Store ---

func (m *Memory) WithTx(ctx context.Context, tenantID string, fn func(ctx context.Context) error) error {
	m.txMu.Lock()
	l, ok := m.txLocks[tenantID]
	if !ok {
		l = &sync.Mutex{}
		m.txLocks[tenantID] = l
	}
	m.txMu.Unlock()

	l.Lock()
	defer l.Unlock()
	return fn(ctx)
}

func (m *Memory) GetWallet(ctx context.Context, tenantID, agentID, currency string) (ledger.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if w, ok := m.wallets[walletKey(tenantID, agentID, currency)]; ok {
		return w, nil
	}
	return ledger.Wallet{TenantID: tenantID, AgentID: agentID, Currency: currency}, nil
}

func (m *Memory) PutWallet(ctx context.Context, w ledger.Wallet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallets[walletKey(w.TenantID, w.AgentID, w.Currency)] = w
	return nil
}

func (m *Memory) PutReceipt(ctx context.Context, r ledger.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts[r.TenantID+"/"+r.ReceiptID] = r
	return nil
}

func (m *Memory) GetReceipt(ctx context.Context, tenantID, receiptID string) (ledger.Receipt, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.receipts[tenantID+"/"+receiptID]
	return r, ok, nil
}

func walletKey(tenantID, agentID, currency string) string {
	return tenantID + "/" + agentID + "/" + currency
}

// --- x402.Store ---

func (m *Memory) CreateGate(ctx context.Context, g x402.Gate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gates[gateKey(g.TenantID, g.GateID)] = g
	if g.AgreementHash != "" {
		m.gatesByAgreement[tenantScopedKey(g.TenantID, g.AgreementHash)] = g.GateID
	}
	return nil
}

func (m *Memory) GetGate(ctx context.Context, tenantID, gateID string) (x402.Gate, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.gates[gateKey(tenantID, gateID)]
	return g, ok, nil
}

func (m *Memory) GetGateByAgreementHash(ctx context.Context, tenantID, agreementHash string) (x402.Gate, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	gateID, ok := m.gatesByAgreement[tenantScopedKey(tenantID, agreementHash)]
	if !ok {
		return x402.Gate{}, false, nil
	}
	g, ok := m.gates[gateKey(tenantID, gateID)]
	return g, ok, nil
}

func (m *Memory) PutGate(ctx context.Context, g x402.Gate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gates[gateKey(g.TenantID, g.GateID)] = g
	if g.AgreementHash != "" {
		m.gatesByAgreement[tenantScopedKey(g.TenantID, g.AgreementHash)] = g.GateID
	}
	return nil
}

func (m *Memory) ListGatesForGrant(ctx context.Context, tenantID, grantID string) ([]x402.Gate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []x402.Gate
	for _, g := range m.gates {
		if g.TenantID == tenantID && g.AuthorityGrantRef == grantID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *Memory) ListGatesForTenant(ctx context.Context, tenantID string) ([]x402.Gate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []x402.Gate
	for k, g := range m.gates {
		if hasTenantPrefix(k, tenantID) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *Memory) CreateHold(ctx context.Context, h x402.Hold) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holds[tenantScopedKey(h.TenantID, h.HoldHash)] = h
	return nil
}

func (m *Memory) GetHold(ctx context.Context, tenantID, holdHash string) (x402.Hold, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.holds[tenantScopedKey(tenantID, holdHash)]
	return h, ok, nil
}

func (m *Memory) PutHold(ctx context.Context, h x402.Hold) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holds[tenantScopedKey(h.TenantID, h.HoldHash)] = h
	return nil
}

func (m *Memory) ListHolds(ctx context.Context, tenantID string) ([]x402.Hold, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []x402.Hold
	for k, h := range m.holds {
		if hasTenantPrefix(k, tenantID) {
			out = append(out, h)
		}
	}
	return out, nil
}

// --- authority.Store ---

func (m *Memory) GetGrant(ctx context.Context, tenantID, grantID string) (authority.Grant, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.grants[tenantScopedKey(tenantID, grantID)]
	return g, ok, nil
}

func (m *Memory) PutGrant(ctx context.Context, g authority.Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants[tenantScopedKey(g.TenantID, g.GrantID)] = g
	return nil
}

func (m *Memory) ListGrants(ctx context.Context, tenantID string) ([]authority.Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []authority.Grant
	for k, g := range m.grants {
		if hasTenantPrefix(k, tenantID) {
			out = append(out, g)
		}
	}
	return out, nil
}

// --- eventchain.Store ---

func (m *Memory) Append(ctx context.Context, tenantID, streamID string, ev eventchain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := tenantScopedKey(tenantID, streamID)
	m.events[k] = append(m.events[k], ev)
	return nil
}

func (m *Memory) Last(ctx context.Context, tenantID, streamID string) (*eventchain.Event, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := m.events[tenantScopedKey(tenantID, streamID)]
	if len(events) == 0 {
		return nil, false, nil
	}
	last := events[len(events)-1]
	return &last, true, nil
}

func (m *Memory) List(ctx context.Context, tenantID, streamID string) ([]eventchain.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := m.events[tenantScopedKey(tenantID, streamID)]
	out := make([]eventchain.Event, len(events))
	copy(out, events)
	return out, nil
}

// --- idempotency.Store ---

func (m *Memory) Get(ctx context.Context, scope idempotency.Scope, key string) (idempotency.Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.idemRecords[idemKey(scope, key)]
	return r, ok, nil
}

func (m *Memory) Put(ctx context.Context, r idempotency.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idemRecords[idemKey(r.Scope, r.Key)] = r
	return nil
}

func idemKey(scope idempotency.Scope, key string) string {
	return scope.TenantID + "/" + scope.Route + "/" + key
}

// --- agent.Store ---

func (m *Memory) CreateAgent(ctx context.Context, a agent.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := tenantScopedKey(a.TenantID, a.AgentID)
	if _, exists := m.agents[k]; exists {
		return substraterr.New("VALIDATION_INVALID", "agent already registered")
	}
	m.agents[k] = a
	return nil
}

func (m *Memory) GetAgent(ctx context.Context, tenantID, agentID string) (agent.Agent, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[tenantScopedKey(tenantID, agentID)]
	return a, ok, nil
}

func (m *Memory) PutAgent(ctx context.Context, a agent.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[tenantScopedKey(a.TenantID, a.AgentID)] = a
	return nil
}

func (m *Memory) ListAgents(ctx context.Context, tenantID string) ([]agent.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []agent.Agent
	for k, a := range m.agents {
		if hasTenantPrefix(k, tenantID) {
			out = append(out, a)
		}
	}
	return out, nil
}

// --- holdback.CaseStore / AdjustmentStore ---

func (m *Memory) GetCaseByAgreement(ctx context.Context, tenantID, agreementHash string) (holdback.Case, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cases[tenantScopedKey(tenantID, holdback.CaseID(agreementHash))]
	return c, ok, nil
}

func (m *Memory) PutCase(ctx context.Context, c holdback.Case) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cases[tenantScopedKey(c.TenantID, c.CaseID)] = c
	return nil
}

func (m *Memory) ListCases(ctx context.Context, tenantID string) ([]holdback.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []holdback.Case
	for k, c := range m.cases {
		if hasTenantPrefix(k, tenantID) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) GetAdjustment(ctx context.Context, tenantID, adjustmentID string) (holdback.Adjustment, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.adjustments[tenantScopedKey(tenantID, adjustmentID)]
	return a, ok, nil
}

func (m *Memory) PutAdjustment(ctx context.Context, a holdback.Adjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adjustments[tenantScopedKey(a.TenantID, a.AdjustmentID)] = a
	return nil
}

func (m *Memory) ListAdjustmentsForTenant(ctx context.Context, tenantID string) ([]holdback.Adjustment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []holdback.Adjustment
	for k, a := range m.adjustments {
		if hasTenantPrefix(k, tenantID) {
			out = append(out, a)
		}
	}
	return out, nil
}

func gateKey(tenantID, gateID string) string { return tenantScopedKey(tenantID, gateID) }

func tenantScopedKey(tenantID, id string) string { return tenantID + "/" + id }

func hasTenantPrefix(key, tenantID string) bool {
	prefix := tenantID + "/"
	return len(key) >= len(prefix) && key[:len(prefix)] == prefix
}
