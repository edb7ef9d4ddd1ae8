// Package sdk is the thin Go client external collaborators embed to talk
// to a running substrate-server: open an x402 gate before a paid tool
// call, report its outcome, register agents, and read wallets.
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config holds the client configuration.
type Config struct {
	// BaseURL is the substrate-server endpoint, e.g. "http://localhost:8080".
	BaseURL string

	// TenantID is stamped on every request as x-proxy-tenant-id (required).
	TenantID string

	// Timeout bounds each HTTP call (default 30s).
	Timeout time.Duration
}

// Client is a thin wrapper over substrate-server's HTTP API.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient builds a Client for cfg.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{config: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("substrate-sdk: marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("substrate-sdk: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-proxy-tenant-id", c.config.TenantID)
	req.Header.Set("x-nooterra-protocol", "1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("substrate-sdk: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("substrate-sdk: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("substrate-sdk: %s %s: status %d: %s", method, path, resp.StatusCode, string(respBody))
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("substrate-sdk: decode response: %w", err)
	}
	return nil
}

// RegisterAgent registers a new agent under the client's tenant.
func (c *Client) RegisterAgent(ctx context.Context, req RegisterAgentRequest) (*Agent, error) {
	var a Agent
	if err := c.do(ctx, http.MethodPost, "/agents/register", req, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetWallet fetches an agent's wallet in the given currency.
func (c *Client) GetWallet(ctx context.Context, agentID, currency string) (*Wallet, error) {
	var w Wallet
	path := fmt.Sprintf("/agents/%s/wallet?currency=%s", agentID, currency)
	if err := c.do(ctx, http.MethodGet, path, nil, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// CreateGate opens a new payment gate for one paid tool call, the first
// step of every x402-gated interaction.
func (c *Client) CreateGate(ctx context.Context, req CreateGateRequest) (*Gate, error) {
	var g Gate
	if err := c.do(ctx, http.MethodPost, "/x402/gate/create", req, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// AuthorizePayment checks a created gate's authority grant and the payer's
// balance and moves the gate to authorized. It moves no funds; Execute
// locks the escrow.
func (c *Client) AuthorizePayment(ctx context.Context, gateID string) (*Gate, error) {
	var g Gate
	if err := c.do(ctx, http.MethodPost, "/x402/gate/authorize-payment", map[string]string{"gateId": gateID}, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// Execute binds an authorized gate to the tool call request that actually
// ran, by its SHA-256.
func (c *Client) Execute(ctx context.Context, gateID, bindingRequestSHA256 string) (*Gate, error) {
	var g Gate
	body := map[string]string{"gateId": gateID, "bindingRequestSha256": bindingRequestSHA256}
	if err := c.do(ctx, http.MethodPost, "/x402/gate/execute", body, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// Verify reports the tool call's observed outcome, releasing or holding
// back the escrowed funds.
func (c *Client) Verify(ctx context.Context, req VerifyRequest) (*Gate, error) {
	var out struct {
		Gate Gate `json:"gate"`
	}
	if err := c.do(ctx, http.MethodPost, "/x402/gate/verify", req, &out); err != nil {
		return nil, err
	}
	return &out.Gate, nil
}
