package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nooterra/substrate/internal/agent"
	"github.com/nooterra/substrate/internal/ledger"
)

type registerAgentRequest struct {
	AgentID      string   `json:"agentId"`
	DisplayName  string   `json:"displayName"`
	OwnerRef     string   `json:"ownerRef"`
	Capabilities []string `json:"capabilities"`
	PublicKeyPEM string   `json:"publicKeyPem"`
}

func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r)
	var req registerAgentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, httpError{status: http.StatusBadRequest, code: "VALIDATION_INVALID", message: "invalid JSON body"})
		return
	}
	a, err := s.agents.Register(r.Context(), agent.RegisterParams{
		AgentID:      req.AgentID,
		TenantID:     tenantID,
		DisplayName:  req.DisplayName,
		OwnerRef:     req.OwnerRef,
		Capabilities: req.Capabilities,
		PublicKeyPEM: req.PublicKeyPEM,
	}, s.clock.Now())
	if err != nil {
		handleErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

type setLifecycleRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleSetLifecycle(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r)
	agentID := mux.Vars(r)["id"]
	var req setLifecycleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, httpError{status: http.StatusBadRequest, code: "VALIDATION_INVALID", message: "invalid JSON body"})
		return
	}
	a, err := s.agents.SetLifecycle(r.Context(), tenantID, agentID, agent.LifecycleStatus(req.Status))
	if err != nil {
		handleErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type creditWalletRequest struct {
	Currency    string `json:"currency"`
	AmountCents int64  `json:"amountCents"`
}

func (s *Server) handleCreditWallet(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r)
	agentID := mux.Vars(r)["id"]
	var req creditWalletRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, httpError{status: http.StatusBadRequest, code: "VALIDATION_INVALID", message: "invalid JSON body"})
		return
	}
	if req.AmountCents <= 0 || req.Currency == "" {
		writeError(w, httpError{status: http.StatusBadRequest, code: "VALIDATION_INVALID", message: "currency and a positive amountCents are required"})
		return
	}
	s.idempotent("agents/wallet/credit", w, r, struct {
		AgentID string `json:"agentId"`
		creditWalletRequest
	}{AgentID: agentID, creditWalletRequest: req}, func() (int, any, error) {
		// The reserve adapter is consulted, not trusted: its record is an
		// audit-side note that funds were recognized off-box, the ledger
		// commit below is still what actually moves the wallet bucket.
		xfer, err := s.reserve.RecordInbound(r.Context(), tenantID, agentID, req.Currency, req.AmountCents, "wallet-credit")
		if err != nil {
			return 0, nil, err
		}
		op := ledger.Credit(tenantID, agentID, req.Currency, ledger.Available, req.AmountCents)
		receipt, err := s.ledger.CommitTx(r.Context(), tenantID, []ledger.Op{op}, s.clock.Now())
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, struct {
			Receipt        any    `json:"receipt"`
			ReserveTransfer string `json:"reserveTransferId"`
		}{Receipt: receipt, ReserveTransfer: xfer.TransferID}, nil
	})
}

func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r)
	agentID := mux.Vars(r)["id"]
	currency := r.URL.Query().Get("currency")
	if currency == "" {
		writeError(w, httpError{status: http.StatusBadRequest, code: "VALIDATION_REQUIRED", message: "currency query parameter is required"})
		return
	}
	wallet, err := s.ledger.GetWallet(r.Context(), tenantID, agentID, currency)
	if err != nil {
		handleErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}
