package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nooterra/substrate/internal/x402"
)

// registerWorkOrderRoutes wires the job-marketplace endpoints
// (task-quotes/task-offers/task-acceptances/work-orders) onto the x402
// gate state machine. There is no separate quote/offer/acceptance data
// model (the gate is the one paid-tool-call primitive), so this layer
// is a naming adapter over the same four gate transitions rather than a
// parallel implementation: quote=create, offer=authorize-payment,
// acceptance=execute, settle=verify.
func (s *Server) registerWorkOrderRoutes(r *mux.Router) {
	r.HandleFunc("/task-quotes", s.handleGateCreate).Methods(http.MethodPost)
	r.HandleFunc("/task-offers", s.handleGateAuthorize).Methods(http.MethodPost)
	r.HandleFunc("/task-acceptances", s.handleGateExecute).Methods(http.MethodPost)
	r.HandleFunc("/work-orders", s.handleGateCreate).Methods(http.MethodPost)
	r.HandleFunc("/work-orders/{id}/accept", s.handleWorkOrderAccept).Methods(http.MethodPost)
	r.HandleFunc("/work-orders/{id}/complete", s.handleWorkOrderComplete).Methods(http.MethodPost)
	r.HandleFunc("/work-orders/{id}/settle", s.handleWorkOrderSettle).Methods(http.MethodPost)
}

func (s *Server) handleWorkOrderAccept(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r)
	gateID := mux.Vars(r)["id"]
	s.idempotent("work-orders/accept", w, r, map[string]string{"gateId": gateID}, func() (int, any, error) {
		g, err := s.x402.AuthorizePayment(r.Context(), tenantID, gateID)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, g, nil
	})
}

type workOrderCompleteRequest struct {
	BindingRequestSHA256 string `json:"bindingRequestSha256"`
}

func (s *Server) handleWorkOrderComplete(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r)
	gateID := mux.Vars(r)["id"]
	var req workOrderCompleteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, httpError{status: http.StatusBadRequest, code: "VALIDATION_INVALID", message: "invalid JSON body"})
		return
	}
	s.idempotent("work-orders/complete", w, r, struct {
		GateID string `json:"gateId"`
		workOrderCompleteRequest
	}{GateID: gateID, workOrderCompleteRequest: req}, func() (int, any, error) {
		g, err := s.x402.Execute(r.Context(), tenantID, gateID, req.BindingRequestSHA256)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, g, nil
	})
}

type workOrderSettleRequest struct {
	Status      string `json:"status"`
	Auto        bool   `json:"auto"`
	HoldbackBps int    `json:"holdbackBps"`
}

func (s *Server) handleWorkOrderSettle(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r)
	gateID := mux.Vars(r)["id"]
	var req workOrderSettleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, httpError{status: http.StatusBadRequest, code: "VALIDATION_INVALID", message: "invalid JSON body"})
		return
	}
	s.idempotent("work-orders/settle", w, r, struct {
		GateID string `json:"gateId"`
		workOrderSettleRequest
	}{GateID: gateID, workOrderSettleRequest: req}, func() (int, any, error) {
		g, hold, err := s.x402.Verify(r.Context(), tenantID, gateID, x402.VerifyParams{
			Status:      x402.VerifyStatus(req.Status),
			Auto:        req.Auto,
			HoldbackBps: req.HoldbackBps,
		})
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, map[string]any{"gate": g, "hold": hold}, nil
	})
}
