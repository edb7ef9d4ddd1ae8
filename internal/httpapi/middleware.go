// Package httpapi implements the substrate's HTTP surface on gorilla/mux.
// Tenant context comes from the x-proxy-tenant-id header, the protocol
// version from x-nooterra-protocol, and replay protection from
// x-idempotency-key.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
)

type ctxKey int

const tenantCtxKey ctxKey = iota

// HeaderTenantID is the tenant-scoping header every request must carry.
const HeaderTenantID = "x-proxy-tenant-id"

// HeaderProtocol pins the wire-protocol version a client speaks.
const HeaderProtocol = "x-nooterra-protocol"

// HeaderIdempotencyKey scopes the idempotency replay-or-conflict check.
const HeaderIdempotencyKey = "x-idempotency-key"

// SupportedProtocol is the only protocol version this server accepts; it
// is also the default an absent x-nooterra-protocol header implies.
const SupportedProtocol = "1.0"

// tenantMiddleware resolves x-proxy-tenant-id and rejects requests missing
// it. There is no API-key path here; auth is resolved at an outer
// boundary before a request reaches this server.
func tenantMiddleware(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Prometheus scrapes carry no tenant context.
			if r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}
			tenantID := r.Header.Get(HeaderTenantID)
			if tenantID == "" {
				writeError(w, httpError{status: http.StatusUnauthorized, code: "VALIDATION_REQUIRED", message: "missing " + HeaderTenantID + " header"})
				return
			}
			if protocol := r.Header.Get(HeaderProtocol); protocol != "" && protocol != SupportedProtocol {
				writeError(w, httpError{status: http.StatusBadRequest, code: "VALIDATION_INVALID", message: "unsupported " + HeaderProtocol})
				return
			}
			ctx := context.WithValue(r.Context(), tenantCtxKey, tenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tenantFrom(r *http.Request) string {
	tid, _ := r.Context().Value(tenantCtxKey).(string)
	return tid
}

// loggingMiddleware logs each request at Info with method/path/status.
func loggingMiddleware(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			log.Info("request", "method", r.Method, "path", r.URL.Path, "status", sw.status)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
