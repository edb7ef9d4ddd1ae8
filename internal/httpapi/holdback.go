package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/nooterra/substrate/internal/holdback"
)

func (s *Server) handleDisputeOpen(w http.ResponseWriter, r *http.Request) {
	var env holdback.DisputeOpenEnvelope
	if err := decodeJSON(r, &env); err != nil {
		writeError(w, httpError{status: http.StatusBadRequest, code: "VALIDATION_INVALID", message: "invalid JSON body"})
		return
	}
	env.TenantID = tenantFrom(r)
	s.idempotent("tool-calls/arbitration/open", w, r, env, func() (int, any, error) {
		c, err := s.holdback.OpenDispute(r.Context(), env)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, c, nil
	})
}

func (s *Server) handleVerdictAccept(w http.ResponseWriter, r *http.Request) {
	var v holdback.Verdict
	if err := decodeJSON(r, &v); err != nil {
		writeError(w, httpError{status: http.StatusBadRequest, code: "VALIDATION_INVALID", message: "invalid JSON body"})
		return
	}
	v.TenantID = tenantFrom(r)
	s.idempotent("tool-calls/arbitration/verdict", w, r, v, func() (int, any, error) {
		adj, err := s.holdback.AcceptVerdict(r.Context(), v)
		if err != nil {
			return 0, nil, err
		}
		if s.metrics != nil {
			s.metrics.RecordAdjustment(v.TenantID, string(adj.Kind))
		}
		return http.StatusOK, adj, nil
	})
}

func (s *Server) handleListCases(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r)
	cases, err := s.holdback.ListCases(r.Context(), tenantID)
	if err != nil {
		handleErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cases)
}

func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r)
	caseID := mux.Vars(r)["id"]
	c, err := s.holdback.GetCase(r.Context(), tenantID, caseID)
	if err != nil {
		handleErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleRunMaintenance(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r)
	released, blocked, err := s.holdback.RunMaintenance(r.Context(), s.locks, tenantID)
	if err != nil {
		handleErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"released": released, "blocked": blocked})
}

type holdsLockRequest struct {
	HoldHash  string `json:"holdHash"`
	TTLMillis int64  `json:"ttlMillis"`
}

// handleHoldsLock lets ops tooling take the advisory lock on a single hold,
// independent of the maintenance sweep's own deployment-wide lock. The
// sweep does not consult per-hold locks, so holding one does not stop a
// hold from being auto-released.
func (s *Server) handleHoldsLock(w http.ResponseWriter, r *http.Request) {
	var req holdsLockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, httpError{status: http.StatusBadRequest, code: "VALIDATION_INVALID", message: "invalid JSON body"})
		return
	}
	if req.HoldHash == "" {
		writeError(w, httpError{status: http.StatusBadRequest, code: "VALIDATION_REQUIRED", message: "holdHash is required"})
		return
	}
	ttl := req.TTLMillis
	if ttl <= 0 {
		ttl = holdback.MaintenanceLockTTLMillis
	}
	token, acquired, err := s.locks.TryAcquire(r.Context(), "hold:"+tenantFrom(r)+":"+req.HoldHash, ttl)
	if err != nil {
		handleErr(w, err)
		return
	}
	if !acquired {
		writeError(w, httpError{status: http.StatusConflict, code: "MAINTENANCE_ALREADY_RUNNING", message: "hold is already locked"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "acquired": acquired})
}
