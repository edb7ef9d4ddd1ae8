// Package metrics exposes Prometheus instrumentation for the gate,
// holdback, and ledger pipelines: promauto-registered Vec metrics with one
// Record*/Set* method per concern.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus instrument substrate-server registers.
type Metrics struct {
	GateTransitions   *prometheus.CounterVec
	GateAmountCents   *prometheus.CounterVec
	HoldsOpen         *prometheus.GaugeVec
	HoldbackAdjustments *prometheus.CounterVec
	DisputeCasesOpen  *prometheus.GaugeVec
	MaintenanceSweepDuration prometheus.Histogram
	MaintenanceReleased      prometheus.Counter
	MaintenanceBlocked       prometheus.Counter
	LedgerCommitDuration     prometheus.Histogram
	IdempotencyReplays       prometheus.Counter
}

// New constructs and registers every metric against the default registry.
func New() *Metrics {
	return &Metrics{
		GateTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "substrate_gate_transitions_total",
				Help: "Total x402 gate state transitions.",
			},
			[]string{"tenant_id", "to_state"},
		),
		GateAmountCents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "substrate_gate_amount_cents_total",
				Help: "Total cents moved through gates, by terminal state.",
			},
			[]string{"tenant_id", "currency", "state"},
		),
		HoldsOpen: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "substrate_holds_open",
				Help: "Number of tool-call holds currently awaiting release or dispute.",
			},
			[]string{"tenant_id"},
		),
		HoldbackAdjustments: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "substrate_holdback_adjustments_total",
				Help: "Settlement adjustments applied, by kind.",
			},
			[]string{"tenant_id", "kind"},
		),
		DisputeCasesOpen: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "substrate_dispute_cases_open",
				Help: "Number of arbitration cases currently under review.",
			},
			[]string{"tenant_id"},
		),
		MaintenanceSweepDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "substrate_holdback_maintenance_sweep_seconds",
				Help:    "Duration of each auto-release maintenance sweep.",
				Buckets: prometheus.DefBuckets,
			},
		),
		MaintenanceReleased: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "substrate_holdback_maintenance_released_total",
				Help: "Holds auto-released by maintenance sweeps.",
			},
		),
		MaintenanceBlocked: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "substrate_holdback_maintenance_blocked_total",
				Help: "Holds a maintenance sweep skipped because they were locked or disputed.",
			},
		),
		LedgerCommitDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "substrate_ledger_commit_seconds",
				Help:    "Duration of Ledger.CommitTx calls.",
				Buckets: prometheus.DefBuckets,
			},
		),
		IdempotencyReplays: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "substrate_idempotency_replays_total",
				Help: "Requests served from a stored idempotent response instead of re-executing.",
			},
		),
	}
}

// RecordGateTransition records a gate reaching toState.
func (m *Metrics) RecordGateTransition(tenantID, toState string) {
	m.GateTransitions.WithLabelValues(tenantID, toState).Inc()
}

// RecordSettled records a gate's terminal amount once it leaves escrow.
func (m *Metrics) RecordSettled(tenantID, currency, state string, amountCents int64) {
	m.GateAmountCents.WithLabelValues(tenantID, currency, state).Add(float64(amountCents))
}

// RecordAdjustment records a settlement adjustment of the given kind.
func (m *Metrics) RecordAdjustment(tenantID, kind string) {
	m.HoldbackAdjustments.WithLabelValues(tenantID, kind).Inc()
}

// SetHoldsOpen updates the open-holds gauge for a tenant.
func (m *Metrics) SetHoldsOpen(tenantID string, n int) {
	m.HoldsOpen.WithLabelValues(tenantID).Set(float64(n))
}

// SetDisputeCasesOpen updates the open-cases gauge for a tenant.
func (m *Metrics) SetDisputeCasesOpen(tenantID string, n int) {
	m.DisputeCasesOpen.WithLabelValues(tenantID).Set(float64(n))
}
