package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nooterra/substrate/internal/authority"
)

type issueGrantRequest struct {
	GrantID        string                  `json:"grantId"`
	PrincipalRef   string                  `json:"principalRef"`
	GranteeAgentID string                  `json:"granteeAgentId"`
	Scope          authority.Scope         `json:"scope"`
	SpendEnvelope  authority.SpendEnvelope `json:"spendEnvelope"`
	ChainBinding   authority.ChainBinding  `json:"chainBinding"`
	Validity       authority.Validity      `json:"validity"`
	SignerKeyID    string                  `json:"signerKeyId"`
	Signature      string                  `json:"signature"`
}

func (s *Server) handleIssueGrant(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r)
	var req issueGrantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, httpError{status: http.StatusBadRequest, code: "VALIDATION_INVALID", message: "invalid JSON body"})
		return
	}
	g, err := s.grants.Issue(r.Context(), authority.Grant{
		GrantID:        req.GrantID,
		TenantID:       tenantID,
		PrincipalRef:   req.PrincipalRef,
		GranteeAgentID: req.GranteeAgentID,
		Scope:          req.Scope,
		SpendEnvelope:  req.SpendEnvelope,
		ChainBinding:   req.ChainBinding,
		Validity:       req.Validity,
		Revocation:     authority.Revocation{Revocable: true},
		SignerKeyID:    req.SignerKeyID,
		Signature:      req.Signature,
	})
	if err != nil {
		handleErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (s *Server) handleListGrants(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r)
	grants, err := s.grants.List(r.Context(), tenantID)
	if err != nil {
		handleErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, grants)
}

type revokeGrantRequest struct {
	ReasonCode string `json:"reasonCode"`
}

func (s *Server) handleRevokeGrant(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r)
	grantID := mux.Vars(r)["id"]
	var req revokeGrantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, httpError{status: http.StatusBadRequest, code: "VALIDATION_INVALID", message: "invalid JSON body"})
		return
	}
	g, err := s.grants.Revoke(r.Context(), tenantID, grantID, req.ReasonCode, s.clock.Now())
	if err != nil {
		handleErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}
