package x402

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nooterra/substrate/internal/agent"
	"github.com/nooterra/substrate/internal/authority"
	"github.com/nooterra/substrate/internal/canon"
	"github.com/nooterra/substrate/internal/clock"
	"github.com/nooterra/substrate/internal/eventchain"
	"github.com/nooterra/substrate/internal/ledger"
	"github.com/nooterra/substrate/internal/substraterr"
)

// Gate event types recorded on a gate's own stream ("gate:<gateId>").
const (
	EventGateCreated    = "X402_GATE_CREATED"
	EventGateAuthorized = "X402_GATE_AUTHORIZED"
	EventGateExecuted   = "X402_GATE_EXECUTED"
	EventGateReleased   = "X402_GATE_RELEASED"
	EventGateRefunded   = "X402_GATE_REFUNDED"
	EventGateHeld       = "X402_GATE_HELD"
)

// StreamID returns the per-gate event-chain stream name.
func StreamID(gateID string) string { return "gate:" + gateID }

// Engine implements the x402 gate state machine: create,
// authorize-payment, execute, verify. It consumes the ledger for money
// movement, the authority validator for grant enforcement, and the event
// chain for the per-gate append-only trail every transition leaves.
type Engine struct {
	store     Store
	ledger    *ledger.Ledger
	validator *authority.Validator
	chain     *eventchain.Chain
	lifecycle AgentLifecycleSource
	clock     clock.Clock
}

func NewEngine(store Store, ldg *ledger.Ledger, validator *authority.Validator, chain *eventchain.Chain, lifecycle AgentLifecycleSource, clk clock.Clock) *Engine {
	return &Engine{store: store, ledger: ldg, validator: validator, chain: chain, lifecycle: lifecycle, clock: clk}
}

func (e *Engine) checkLifecycle(ctx context.Context, tenantID, agentID string) error {
	status, err := e.lifecycle.LifecycleStatus(ctx, tenantID, agentID)
	if err != nil {
		return err
	}
	return agent.CheckLifecycle(status)
}

// Create opens a new gate in state "created" and derives its agreement
// hash from the canonical form of its defining fields.
func (e *Engine) Create(ctx context.Context, p CreateParams) (*Gate, error) {
	if p.TenantID == "" || p.PayerAgentID == "" || p.PayeeAgentID == "" || p.ToolID == "" || p.Currency == "" {
		return nil, substraterr.New("VALIDATION_REQUIRED", "tenantId, payerAgentId, payeeAgentId, toolId, currency are required")
	}
	if p.AmountCents <= 0 {
		return nil, substraterr.New("VALIDATION_INVALID", "amountCents must be positive")
	}
	now := e.clock.Now()
	gateID := "gate_" + uuid.NewString()

	agreementHash, err := canon.HashJSON(map[string]any{
		"gateId":            gateID,
		"tenantId":          p.TenantID,
		"payerAgentId":      p.PayerAgentID,
		"payeeAgentId":      p.PayeeAgentID,
		"providerId":        p.ProviderID,
		"toolId":            p.ToolID,
		"amountCents":       p.AmountCents,
		"currency":          p.Currency,
		"authorityGrantRef": p.AuthorityGrantRef,
		"createdAt":         now,
	})
	if err != nil {
		return nil, fmt.Errorf("x402: hash agreement: %w", err)
	}

	g := Gate{
		GateID:            gateID,
		TenantID:          p.TenantID,
		PayerAgentID:      p.PayerAgentID,
		PayeeAgentID:      p.PayeeAgentID,
		ProviderID:        p.ProviderID,
		ToolID:            p.ToolID,
		RiskClass:         p.RiskClass,
		SideEffecting:     p.SideEffecting,
		AmountCents:       p.AmountCents,
		Currency:          p.Currency,
		AuthorityGrantRef: p.AuthorityGrantRef,
		State:             Created,
		HoldbackBps:       p.HoldbackBps,
		ChallengeWindowMs: p.ChallengeWindowMs,
		CreatedAt:         now,
		AgreementHash:     agreementHash,
	}
	if err := e.store.CreateGate(ctx, g); err != nil {
		return nil, err
	}
	if _, err := e.chain.Append(ctx, p.TenantID, StreamID(gateID), EventGateCreated, p.PayerAgentID, g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (e *Engine) loadTransitionable(ctx context.Context, tenantID, gateID string, from State) (Gate, error) {
	g, found, err := e.store.GetGate(ctx, tenantID, gateID)
	if err != nil {
		return Gate{}, err
	}
	if !found {
		return Gate{}, substraterr.New("X402_GATE_NOT_FOUND", "gate not found")
	}
	if g.State != from {
		return Gate{}, substraterr.Withf("X402_GATE_INVALID_TRANSITION", "gate %s is in state %q, expected %q", gateID, g.State, from)
	}
	return g, nil
}

// AuthorizePayment evaluates the authority grant referenced by the gate and
// moves it from "created" to "authorized". No ledger mutation happens
// here; only the payer's available balance is checked, not locked.
func (e *Engine) AuthorizePayment(ctx context.Context, tenantID, gateID string) (*Gate, error) {
	g, err := e.loadTransitionable(ctx, tenantID, gateID, Created)
	if err != nil {
		return nil, err
	}
	if err := e.checkLifecycle(ctx, tenantID, g.PayerAgentID); err != nil {
		return nil, err
	}
	if err := e.checkLifecycle(ctx, tenantID, g.PayeeAgentID); err != nil {
		return nil, err
	}

	now := e.clock.Now()
	if _, err := e.validator.Authorize(ctx, tenantID, g.AuthorityGrantRef, authority.ToolCallRequest{
		AgentID:       g.PayerAgentID,
		ProviderID:    g.ProviderID,
		ToolID:        g.ToolID,
		RiskClass:     g.RiskClass,
		SideEffecting: g.SideEffecting,
		Currency:      g.Currency,
		AmountCents:   g.AmountCents,
		At:            now,
	}); err != nil {
		return nil, err
	}

	payerWallet, err := e.ledger.GetWallet(ctx, tenantID, g.PayerAgentID, g.Currency)
	if err != nil {
		return nil, err
	}
	if payerWallet.AvailableCents < g.AmountCents {
		return nil, substraterr.New("X402_INSUFFICIENT_BALANCE", "payer available balance is insufficient")
	}

	g.State = Authorized
	if err := e.store.PutGate(ctx, g); err != nil {
		return nil, err
	}
	if _, err := e.chain.Append(ctx, tenantID, StreamID(gateID), EventGateAuthorized, g.PayerAgentID, g); err != nil {
		return nil, err
	}
	return &g, nil
}

// Execute locks the payer's escrow for the gate's amount and moves the gate
// to "executed". bindingRequestSHA256 records the tool-call request hash
// that dispute evidence must later match.
func (e *Engine) Execute(ctx context.Context, tenantID, gateID, bindingRequestSHA256 string) (*Gate, error) {
	g, err := e.loadTransitionable(ctx, tenantID, gateID, Authorized)
	if err != nil {
		return nil, err
	}

	ops := ledger.Move(ledger.OpEscrowLock, tenantID, g.PayerAgentID, ledger.Available, g.PayerAgentID, ledger.EscrowLocked, g.Currency, g.AmountCents)
	if _, err := e.ledger.CommitTx(ctx, tenantID, ops, e.clock.Now()); err != nil {
		return nil, err
	}

	g.State = Executed
	g.BindingRequestSHA256 = bindingRequestSHA256
	if err := e.store.PutGate(ctx, g); err != nil {
		return nil, err
	}
	if _, err := e.chain.Append(ctx, tenantID, StreamID(gateID), EventGateExecuted, g.PayerAgentID, g); err != nil {
		return nil, err
	}
	return &g, nil
}

// Verify applies the tool-call's observed outcome, settling the escrowed
// amount: full release, holdback split, or refund.
func (e *Engine) Verify(ctx context.Context, tenantID, gateID string, p VerifyParams) (*Gate, *Hold, error) {
	g, err := e.loadTransitionable(ctx, tenantID, gateID, Executed)
	if err != nil {
		return nil, nil, err
	}

	switch {
	case p.Status == VerifyGreen && p.HoldbackBps <= 0:
		ops := ledger.Move(ledger.OpEscrowRelease, tenantID, g.PayerAgentID, ledger.EscrowLocked, g.PayeeAgentID, ledger.Available, g.Currency, g.AmountCents)
		if _, err := e.ledger.CommitTx(ctx, tenantID, ops, e.clock.Now()); err != nil {
			return nil, nil, err
		}
		g.State = Released
		if err := e.store.PutGate(ctx, g); err != nil {
			return nil, nil, err
		}
		if _, err := e.chain.Append(ctx, tenantID, StreamID(gateID), EventGateReleased, g.PayeeAgentID, g); err != nil {
			return nil, nil, err
		}
		return &g, nil, nil

	case p.Status == VerifyGreen && p.HoldbackBps > 0:
		heldAmount := g.AmountCents * int64(p.HoldbackBps) / 10000
		releasedAmount := g.AmountCents - heldAmount
		ops := append(
			ledger.Move(ledger.OpEscrowRelease, tenantID, g.PayerAgentID, ledger.EscrowLocked, g.PayeeAgentID, ledger.Available, g.Currency, releasedAmount),
			ledger.Move(ledger.OpHoldbackPlace, tenantID, g.PayerAgentID, ledger.EscrowLocked, g.PayeeAgentID, ledger.Heldback, g.Currency, heldAmount)...,
		)
		if _, err := e.ledger.CommitTx(ctx, tenantID, ops, e.clock.Now()); err != nil {
			return nil, nil, err
		}

		now := e.clock.Now()
		hold := Hold{
			HoldHash:          HoldHash(g.AgreementHash, g.BindingRequestSHA256, g.Currency, g.PayerAgentID, g.PayeeAgentID, heldAmount),
			TenantID:          tenantID,
			GateID:            gateID,
			AgreementHash:     g.AgreementHash,
			ReceiptHash:       g.BindingRequestSHA256,
			PayerAgentID:      g.PayerAgentID,
			PayeeAgentID:      g.PayeeAgentID,
			Currency:          g.Currency,
			HeldAmountCents:   heldAmount,
			TotalAmountCents:  g.AmountCents,
			ChallengeDeadline: now.Add(time.Duration(g.ChallengeWindowMs) * time.Millisecond),
			Status:            HoldHeld,
		}
		if err := e.store.CreateHold(ctx, hold); err != nil {
			return nil, nil, err
		}

		g.State = Held
		if err := e.store.PutGate(ctx, g); err != nil {
			return nil, nil, err
		}
		if _, err := e.chain.Append(ctx, tenantID, StreamID(gateID), EventGateHeld, g.PayeeAgentID, map[string]any{"gate": g, "hold": hold}); err != nil {
			return nil, nil, err
		}
		return &g, &hold, nil

	case p.Status == VerifyRed && p.Auto:
		ops := ledger.Move(ledger.OpEscrowRefund, tenantID, g.PayerAgentID, ledger.EscrowLocked, g.PayerAgentID, ledger.Available, g.Currency, g.AmountCents)
		if _, err := e.ledger.CommitTx(ctx, tenantID, ops, e.clock.Now()); err != nil {
			return nil, nil, err
		}
		g.State = Refunded
		if err := e.store.PutGate(ctx, g); err != nil {
			return nil, nil, err
		}
		if _, err := e.chain.Append(ctx, tenantID, StreamID(gateID), EventGateRefunded, g.PayerAgentID, g); err != nil {
			return nil, nil, err
		}
		return &g, nil, nil

	default:
		return nil, nil, substraterr.New("VALIDATION_INVALID", "unsupported verify(status, auto, holdbackBps) combination")
	}
}

// HoldHash computes a ToolCallHold's identity hash:
// H(agreementHash || receiptHash || heldAmountCents || currency || payer || payee).
func HoldHash(agreementHash, receiptHash, currency, payerAgentID, payeeAgentID string, heldAmountCents int64) string {
	return canon.Hash([]byte(fmt.Sprintf("%s|%s|%d|%s|%s|%s", agreementHash, receiptHash, heldAmountCents, currency, payerAgentID, payeeAgentID)))
}

// RunningTotal adapts Store to authority.RunningTotalSource: the sum over
// all gates referencing a grant that are executed, released, held,
// disputed or closed. Created, authorized and refunded gates are not
// counted.
type RunningTotal struct{ Store Store }

func (r RunningTotal) RunningTotalForGrant(ctx context.Context, tenantID, grantID string) (int64, error) {
	gates, err := r.Store.ListGatesForGrant(ctx, tenantID, grantID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, g := range gates {
		switch g.State {
		case Executed, Released, Held, Disputed, Closed:
			total += g.AmountCents
		}
	}
	return total, nil
}

// Binding adapts Store to x402.BindingSource for internal/holdback.
type Binding struct{ Store Store }

func (b Binding) RequestSHA256ForAgreement(ctx context.Context, tenantID, agreementHash string) (string, bool, error) {
	g, found, err := b.Store.GetGateByAgreementHash(ctx, tenantID, agreementHash)
	if err != nil || !found || g.BindingRequestSHA256 == "" {
		return "", false, err
	}
	return g.BindingRequestSHA256, true, nil
}
