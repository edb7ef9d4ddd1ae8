package httpapi

import (
	"net/http"

	"github.com/nooterra/substrate/internal/x402"
)

type createGateRequest struct {
	PayerAgentID      string `json:"payerAgentId"`
	PayeeAgentID      string `json:"payeeAgentId"`
	ProviderID        string `json:"providerId"`
	ToolID            string `json:"toolId"`
	RiskClass         string `json:"riskClass"`
	SideEffecting     bool   `json:"sideEffecting"`
	AmountCents       int64  `json:"amountCents"`
	Currency          string `json:"currency"`
	AuthorityGrantRef string `json:"authorityGrantRef"`
	HoldbackBps       int    `json:"holdbackBps"`
	ChallengeWindowMs int64  `json:"challengeWindowMs"`
}

func (s *Server) handleGateCreate(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r)
	var req createGateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, httpError{status: http.StatusBadRequest, code: "VALIDATION_INVALID", message: "invalid JSON body"})
		return
	}
	s.idempotent("x402/gate/create", w, r, req, func() (int, any, error) {
		g, err := s.x402.Create(r.Context(), x402.CreateParams{
			TenantID:          tenantID,
			PayerAgentID:      req.PayerAgentID,
			PayeeAgentID:      req.PayeeAgentID,
			ProviderID:        req.ProviderID,
			ToolID:            req.ToolID,
			RiskClass:         req.RiskClass,
			SideEffecting:     req.SideEffecting,
			AmountCents:       req.AmountCents,
			Currency:          req.Currency,
			AuthorityGrantRef: req.AuthorityGrantRef,
			HoldbackBps:       req.HoldbackBps,
			ChallengeWindowMs: req.ChallengeWindowMs,
		})
		if err != nil {
			return 0, nil, err
		}
		if s.metrics != nil {
			s.metrics.RecordGateTransition(tenantID, string(g.State))
		}
		return http.StatusCreated, g, nil
	})
}

type gateIDRequest struct {
	GateID string `json:"gateId"`
}

func (s *Server) handleGateAuthorize(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r)
	var req gateIDRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, httpError{status: http.StatusBadRequest, code: "VALIDATION_INVALID", message: "invalid JSON body"})
		return
	}
	s.idempotent("x402/gate/authorize-payment", w, r, req, func() (int, any, error) {
		g, err := s.x402.AuthorizePayment(r.Context(), tenantID, req.GateID)
		if err != nil {
			return 0, nil, err
		}
		if s.metrics != nil {
			s.metrics.RecordGateTransition(tenantID, string(g.State))
		}
		return http.StatusOK, g, nil
	})
}

type executeGateRequest struct {
	GateID               string `json:"gateId"`
	BindingRequestSHA256 string `json:"bindingRequestSha256"`
}

func (s *Server) handleGateExecute(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r)
	var req executeGateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, httpError{status: http.StatusBadRequest, code: "VALIDATION_INVALID", message: "invalid JSON body"})
		return
	}
	s.idempotent("x402/gate/execute", w, r, req, func() (int, any, error) {
		g, err := s.x402.Execute(r.Context(), tenantID, req.GateID, req.BindingRequestSHA256)
		if err != nil {
			return 0, nil, err
		}
		if s.metrics != nil {
			s.metrics.RecordGateTransition(tenantID, string(g.State))
		}
		return http.StatusOK, g, nil
	})
}

type verifyGateRequest struct {
	GateID      string `json:"gateId"`
	Status      string `json:"status"`
	Auto        bool   `json:"auto"`
	HoldbackBps int    `json:"holdbackBps"`
}

func (s *Server) handleGateVerify(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r)
	var req verifyGateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, httpError{status: http.StatusBadRequest, code: "VALIDATION_INVALID", message: "invalid JSON body"})
		return
	}
	s.idempotent("x402/gate/verify", w, r, req, func() (int, any, error) {
		g, hold, err := s.x402.Verify(r.Context(), tenantID, req.GateID, x402.VerifyParams{
			Status:      x402.VerifyStatus(req.Status),
			Auto:        req.Auto,
			HoldbackBps: req.HoldbackBps,
		})
		if err != nil {
			return 0, nil, err
		}
		if s.metrics != nil {
			s.metrics.RecordGateTransition(tenantID, string(g.State))
			s.metrics.RecordSettled(tenantID, g.Currency, string(g.State), g.AmountCents)
		}
		return http.StatusOK, map[string]any{"gate": g, "hold": hold}, nil
	})
}
