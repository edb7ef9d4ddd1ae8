package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nooterra/substrate/internal/agent"
	"github.com/nooterra/substrate/internal/authority"
	"github.com/nooterra/substrate/internal/clock"
	"github.com/nooterra/substrate/internal/holdback"
	"github.com/nooterra/substrate/internal/idempotency"
	"github.com/nooterra/substrate/internal/ledger"
	"github.com/nooterra/substrate/internal/httpapi/stream"
	"github.com/nooterra/substrate/internal/lock"
	"github.com/nooterra/substrate/internal/metrics"
	"github.com/nooterra/substrate/internal/reserve"
	"github.com/nooterra/substrate/internal/x402"
)

// Server wires the core packages onto gorilla/mux. Handlers are thin:
// decode the body, call into the core packages, translate the
// result into a coded error or a 200/201 JSON body. No business logic
// lives here.
type Server struct {
	agents    *agent.Manager
	agentKeys agent.Store
	ledger    *ledger.Ledger
	grants    *authority.Manager
	x402      *x402.Engine
	holdback  *holdback.Engine
	locks     lock.AdvisoryLock
	idem      *idempotency.Checker
	clock     clock.Clock
	reserve   reserve.Adapter
	metrics   *metrics.Metrics
	stream    *stream.Hub
	log       *slog.Logger
}

// Deps collects Server's collaborators.
type Deps struct {
	Agents    *agent.Manager
	AgentKeys agent.Store
	Ledger    *ledger.Ledger
	Grants    *authority.Manager
	X402      *x402.Engine
	Holdback  *holdback.Engine
	Locks     lock.AdvisoryLock
	Idem      *idempotency.Checker
	Clock     clock.Clock
	Reserve   reserve.Adapter
	// Metrics, if set, is fed gate-transition/settlement/adjustment/replay
	// counts and served on GET /metrics.
	Metrics *metrics.Metrics
	// Stream, if set, exposes GET /stream/events as a live websocket tail
	// of every appended eventchain.Event (internal/eventchain.Chain.OnAppend
	// must separately be wired to Stream.Publish by the caller).
	Stream *stream.Hub
	Log    *slog.Logger
}

func New(d Deps) *Server {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	res := d.Reserve
	if res == nil {
		res = reserve.New(log)
	}
	return &Server{
		agents: d.Agents, agentKeys: d.AgentKeys, ledger: d.Ledger, grants: d.Grants,
		x402: d.X402, holdback: d.Holdback, locks: d.Locks, idem: d.Idem, clock: d.Clock,
		reserve: res,
		metrics: d.Metrics,
		stream:  d.Stream,
		log:     log.With("component", "httpapi"),
	}
}

// Router builds the mux.Router exposing the full endpoint surface.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(loggingMiddleware(s.log))
	r.Use(tenantMiddleware(s.log))

	r.HandleFunc("/agents/register", s.handleRegisterAgent).Methods(http.MethodPost)
	r.HandleFunc("/agents/{id}/wallet/credit", s.handleCreditWallet).Methods(http.MethodPost)
	r.HandleFunc("/agents/{id}/wallet", s.handleGetWallet).Methods(http.MethodGet)

	r.HandleFunc("/authority-grants", s.handleIssueGrant).Methods(http.MethodPost)
	r.HandleFunc("/authority-grants", s.handleListGrants).Methods(http.MethodGet)
	r.HandleFunc("/authority-grants/{id}/revoke", s.handleRevokeGrant).Methods(http.MethodPost)

	r.HandleFunc("/x402/gate/create", s.handleGateCreate).Methods(http.MethodPost)
	r.HandleFunc("/x402/gate/authorize-payment", s.handleGateAuthorize).Methods(http.MethodPost)
	r.HandleFunc("/x402/gate/execute", s.handleGateExecute).Methods(http.MethodPost)
	r.HandleFunc("/x402/gate/verify", s.handleGateVerify).Methods(http.MethodPost)
	r.HandleFunc("/x402/gate/agents/{id}/lifecycle", s.handleSetLifecycle).Methods(http.MethodPost)

	r.HandleFunc("/ops/tool-calls/holds/lock", s.handleHoldsLock).Methods(http.MethodPost)
	r.HandleFunc("/ops/maintenance/tool-call-holdback/run", s.handleRunMaintenance).Methods(http.MethodPost)

	r.HandleFunc("/tool-calls/arbitration/open", s.handleDisputeOpen).Methods(http.MethodPost)
	r.HandleFunc("/tool-calls/arbitration/verdict", s.handleVerdictAccept).Methods(http.MethodPost)
	r.HandleFunc("/tool-calls/arbitration/cases", s.handleListCases).Methods(http.MethodGet)
	r.HandleFunc("/tool-calls/arbitration/cases/{id}", s.handleGetCase).Methods(http.MethodGet)

	s.registerWorkOrderRoutes(r)

	if s.stream != nil {
		r.HandleFunc("/stream/events", s.stream.ServeHTTP).Methods(http.MethodGet)
	}
	if s.metrics != nil {
		r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	return r
}

// ListenAndServe starts the HTTP server on the given port.
func (s *Server) ListenAndServe(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.log.Info("listening", "addr", addr)
	return http.ListenAndServe(addr, s.Router())
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
