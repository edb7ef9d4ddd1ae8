// Package idempotency implements the (scope, key) -> requestHash ->
// responseEnvelope store: a second call with the same key replays its
// stored response if the request hash matches, or fails with
// IDEMPOTENCY_KEY_CONFLICT if it doesn't.
package idempotency

import (
	"context"

	"github.com/nooterra/substrate/internal/canon"
	"github.com/nooterra/substrate/internal/substraterr"
)

// Scope identifies the (tenantId, route) an idempotency key is namespaced to.
type Scope struct {
	TenantID string
	Route    string
}

// Record is one stored idempotent response.
type Record struct {
	Scope            Scope
	Key              string
	RequestHash      string
	ResponseEnvelope []byte
}

// Store persists Records. memstore's implementation backs it with a mutex
// and map; pgstore with a primary key on (tenant_id, route, key).
type Store interface {
	Get(ctx context.Context, scope Scope, key string) (Record, bool, error)
	Put(ctx context.Context, r Record) error
}

// Checker wraps a Store with the replay-or-conflict decision logic.
type Checker struct {
	store Store
}

func New(store Store) *Checker {
	return &Checker{store: store}
}

// Outcome describes what the caller should do with an idempotent request.
type Outcome struct {
	// Replay is true if an existing record matched and the caller should
	// return StoredEnvelope verbatim instead of re-executing the operation.
	Replay         bool
	StoredEnvelope []byte
}

// Check looks up (scope, key). If no record exists, Outcome.Replay is false
// and the caller should proceed and call Record afterward. If a record
// exists with a matching requestHash, Replay is true. A mismatched hash
// returns IDEMPOTENCY_KEY_CONFLICT.
func (c *Checker) Check(ctx context.Context, scope Scope, key string, request any) (Outcome, error) {
	requestHash, err := canon.HashJSON(request)
	if err != nil {
		return Outcome{}, err
	}
	existing, found, err := c.store.Get(ctx, scope, key)
	if err != nil {
		return Outcome{}, err
	}
	if !found {
		return Outcome{}, nil
	}
	if existing.RequestHash != requestHash {
		return Outcome{}, substraterr.New("IDEMPOTENCY_KEY_CONFLICT",
			"idempotency key reused with a different request body")
	}
	return Outcome{Replay: true, StoredEnvelope: existing.ResponseEnvelope}, nil
}

// Record stores responseEnvelope for (scope, key, request) after a fresh
// execution completes.
func (c *Checker) Record(ctx context.Context, scope Scope, key string, request any, responseEnvelope []byte) error {
	requestHash, err := canon.HashJSON(request)
	if err != nil {
		return err
	}
	return c.store.Put(ctx, Record{
		Scope:            scope,
		Key:              key,
		RequestHash:      requestHash,
		ResponseEnvelope: responseEnvelope,
	})
}
