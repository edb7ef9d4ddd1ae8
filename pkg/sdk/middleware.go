package sdk

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// GateOptions fixes the payment-gate parameters used for every outbound
// call a WrapHTTPClient-wrapped http.Client makes: one gate per call,
// opened, authorized, and verified automatically around the RoundTrip.
type GateOptions struct {
	PayerAgentID      string
	PayeeAgentID      string
	ProviderID        string
	ToolID            string
	RiskClass         string
	AmountCents       int64
	Currency          string
	AuthorityGrantRef string
}

// WrapHTTPClient returns an http.Client that opens, authorizes, executes,
// and verifies an x402 gate around every outbound request, so a caller's
// existing HTTP tooling pays for tool calls without touching the gate
// API directly.
func WrapHTTPClient(client *Client, opts GateOptions, wrapped *http.Client) *http.Client {
	if wrapped == nil {
		wrapped = http.DefaultClient
	}
	return &http.Client{
		Timeout: wrapped.Timeout,
		Transport: &gatedTransport{
			client:  client,
			opts:    opts,
			wrapped: wrapped.Transport,
		},
	}
}

type gatedTransport struct {
	client  *Client
	opts    GateOptions
	wrapped http.RoundTripper
}

func (t *gatedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	start := time.Now()

	gate, err := t.client.CreateGate(ctx, CreateGateRequest{
		PayerAgentID:      t.opts.PayerAgentID,
		PayeeAgentID:      t.opts.PayeeAgentID,
		ProviderID:        t.opts.ProviderID,
		ToolID:            t.opts.ToolID,
		RiskClass:         t.opts.RiskClass,
		AmountCents:       t.opts.AmountCents,
		Currency:          t.opts.Currency,
		AuthorityGrantRef: t.opts.AuthorityGrantRef,
	})
	if err != nil {
		return nil, err
	}
	if _, err := t.client.AuthorizePayment(ctx, gate.GateID); err != nil {
		return nil, err
	}

	var bodyHash string
	if req.Body != nil {
		body, readErr := io.ReadAll(req.Body)
		req.Body.Close()
		if readErr == nil {
			sum := sha256.Sum256(body)
			bodyHash = hex.EncodeToString(sum[:])
			req.Body = io.NopCloser(bytes.NewReader(body))
		}
	}
	if _, err := t.client.Execute(ctx, gate.GateID, bodyHash); err != nil {
		return nil, err
	}

	transport := t.wrapped
	if transport == nil {
		transport = http.DefaultTransport
	}
	resp, roundTripErr := transport.RoundTrip(req)

	status := "green"
	if roundTripErr != nil || (resp != nil && resp.StatusCode >= 400) {
		status = "red"
	}
	if _, err := t.client.Verify(ctx, VerifyRequest{GateID: gate.GateID, Status: status, Auto: true}); err != nil {
		slog.Warn("substrate-sdk: gate verify failed", "gateId", gate.GateID, "error", err)
	}

	slog.Info("substrate-sdk", "method", req.Method, "path", req.URL.Path, "gateId", gate.GateID, "elapsed", time.Since(start))
	return resp, roundTripErr
}
