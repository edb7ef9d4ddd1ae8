package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/nooterra/substrate/internal/agent"
	"github.com/nooterra/substrate/internal/authority"
	"github.com/nooterra/substrate/internal/clock"
	"github.com/nooterra/substrate/internal/config"
	"github.com/nooterra/substrate/internal/cryptoutil"
	"github.com/nooterra/substrate/internal/eventchain"
	"github.com/nooterra/substrate/internal/holdback"
	"github.com/nooterra/substrate/internal/httpapi"
	"github.com/nooterra/substrate/internal/httpapi/stream"
	"github.com/nooterra/substrate/internal/idempotency"
	"github.com/nooterra/substrate/internal/ledger"
	"github.com/nooterra/substrate/internal/lock"
	"github.com/nooterra/substrate/internal/metrics"
	"github.com/nooterra/substrate/internal/store/memstore"
	"github.com/nooterra/substrate/internal/x402"
)

func main() {
	// Load .env, then the YAML config singleton, before wiring anything
	// else.
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, continuing with process environment")
	}
	cfg := config.Get()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: cfg.IsDevelopment(),
	})).With("service", "substrate-server")
	slog.SetDefault(logger)

	signer, keyID, err := loadOrGenerateSigner(cfg.Signing.PrivateKeySeedHex, logger)
	if err != nil {
		log.Fatalf("substrate-server: signing key: %v", err)
	}

	clk := clock.Real{}

	// Store backend. Postgres wiring (internal/store/pgstore) lands behind
	// cfg.Ledger.Backend == "postgres"; memory is the only backend actually
	// exercised by this entrypoint today.
	store := memstore.New()

	ldg := ledger.New(store)
	chain := eventchain.New(store, signer, clk)
	keyRegistry := eventchain.NewGovernanceKeyRegistry(chain, cfg.EventChain.GovernanceTenantID)
	if _, err := keyRegistry.IssueKey(context.Background(), "bootstrap", keyID); err != nil {
		logger.Warn("governance: initial signer key issuance failed", "error", err)
	}

	agents := agent.NewManager(store)
	agentKeys := agent.AsLifecycleSource(store)
	keyDir := agent.NewKeyDirectory(store, cfg.EventChain.GovernanceTenantID)

	validator := authority.NewValidator(store, x402.RunningTotal{Store: store})
	grants := authority.NewManager(store)

	x402Engine := x402.NewEngine(store, ldg, validator, chain, agentKeys, clk)

	holdbackEngine := holdback.NewEngine(
		store, store, store, store,
		x402.Binding{Store: store},
		agentKeys,
		ldg, chain, keyRegistry, keyDir, clk,
	)

	locks := lock.NewInProcess()
	idem := idempotency.New(store)
	mets := metrics.New()

	streamHub := stream.NewHub()
	go streamHub.Run()
	chain.OnAppend(streamHub.Publish)

	server := httpapi.New(httpapi.Deps{
		Agents:    agents,
		AgentKeys: store,
		Ledger:    ldg,
		Grants:    grants,
		X402:      x402Engine,
		Holdback:  holdbackEngine,
		Locks:     locks,
		Idem:      idem,
		Clock:     clk,
		Metrics:   mets,
		Stream:    streamHub,
		Log:       logger,
	})

	port := 8080
	if p, err := parsePort(cfg.GetPort()); err == nil {
		port = p
	}

	logger.Info("substrate-server starting", "port", port, "env", cfg.Server.Env)
	if err := server.ListenAndServe(port); err != nil {
		log.Fatalf("substrate-server: %v", err)
	}
}

// loadOrGenerateSigner loads the server's Ed25519 signing key from the
// configured hex seed, or generates a fresh one for local/dev runs where
// no seed is configured.
func loadOrGenerateSigner(seedHex string, logger *slog.Logger) (*eventchain.ServerSigner, string, error) {
	var priv ed25519.PrivateKey
	if seedHex != "" {
		seed, err := hex.DecodeString(seedHex)
		if err != nil {
			return nil, "", err
		}
		priv = ed25519.NewKeyFromSeed(seed)
	} else {
		logger.Warn("signing.private_key_seed_hex not set, generating an ephemeral key (events will not verify across restarts)")
		_, generated, err := cryptoutil.GenerateKeyPair()
		if err != nil {
			return nil, "", err
		}
		priv = generated
	}

	signer, err := eventchain.NewServerSigner(priv)
	if err != nil {
		return nil, "", err
	}
	keyID, err := cryptoutil.KeyIDFromPublicKey(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, "", err
	}
	return signer, keyID, nil
}

func parsePort(s string) (int, error) {
	var port int
	_, err := fmt.Sscanf(s, "%d", &port)
	return port, err
}
