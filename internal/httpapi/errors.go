package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nooterra/substrate/internal/substraterr"
)

// httpError is the JSON error envelope every handler writes on failure.
type httpError struct {
	status  int
	code    string
	message string
	details map[string]any
}

func (e httpError) body() map[string]any {
	b := map[string]any{"code": e.code, "message": e.message}
	if e.details != nil {
		b["details"] = e.details
	}
	return b
}

// translateErr maps a core-package error into an httpError via
// substraterr's Code -> HTTPStatus table, so a core-package error's status
// always comes from that table. Handlers pick a status themselves only for
// their own request-decoding and validation failures.
func translateErr(err error) httpError {
	var se *substraterr.Error
	if errors.As(err, &se) {
		return httpError{status: se.HTTPStatus(), code: se.Code, message: se.Message, details: se.Details}
	}
	return httpError{status: http.StatusInternalServerError, code: "INTERNAL", message: err.Error()}
}

func writeError(w http.ResponseWriter, e httpError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.status)
	_ = json.NewEncoder(w).Encode(e.body())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func handleErr(w http.ResponseWriter, err error) {
	writeError(w, translateErr(err))
}
