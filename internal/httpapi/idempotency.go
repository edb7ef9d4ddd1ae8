package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/nooterra/substrate/internal/idempotency"
)

// storedEnvelope is the byte form an idempotent response is persisted in:
// the status code plus the marshaled body, so a replay reproduces the
// original response exactly.
type storedEnvelope struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// idempotent wraps a mutation handler with the x-idempotency-key
// replay-or-conflict check. A request without the header runs unchecked.
// A repeated key with the same decoded body replays the stored response
// byte for byte; the same key with a different body fails with
// IDEMPOTENCY_KEY_CONFLICT before run is ever invoked.
func (s *Server) idempotent(route string, w http.ResponseWriter, r *http.Request, body any, run func() (int, any, error)) {
	key := r.Header.Get(HeaderIdempotencyKey)
	if key == "" || s.idem == nil {
		status, out, err := run()
		if err != nil {
			handleErr(w, err)
			return
		}
		writeJSON(w, status, out)
		return
	}

	scope := idempotency.Scope{TenantID: tenantFrom(r), Route: route}
	outcome, err := s.idem.Check(r.Context(), scope, key, body)
	if err != nil {
		handleErr(w, err)
		return
	}
	if outcome.Replay {
		if s.metrics != nil {
			s.metrics.IdempotencyReplays.Inc()
		}
		var env storedEnvelope
		if err := json.Unmarshal(outcome.StoredEnvelope, &env); err != nil {
			handleErr(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(env.Status)
		_, _ = w.Write(env.Body)
		return
	}

	status, out, err := run()
	if err != nil {
		handleErr(w, err)
		return
	}
	bodyBytes, err := json.Marshal(out)
	if err != nil {
		handleErr(w, err)
		return
	}
	envBytes, err := json.Marshal(storedEnvelope{Status: status, Body: bodyBytes})
	if err != nil {
		handleErr(w, err)
		return
	}
	// Only successful responses are recorded; a failed attempt leaves the
	// key unused so the caller can retry with it.
	if err := s.idem.Record(r.Context(), scope, key, body, envBytes); err != nil {
		s.log.Error("idempotency record failed", "route", route, "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(bodyBytes)
}
