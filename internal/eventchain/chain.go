package eventchain

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nooterra/substrate/internal/canon"
	"github.com/nooterra/substrate/internal/clock"
)

// Signer signs a chain hash under the active server key. Implementations
// resolve "the active server key" themselves (typically backed by the same
// GovernanceKeyRegistry this package exposes).
type Signer interface {
	Sign(payloadHashHex, purpose string, context any) (sigHex, keyID string, err error)
}

// Chain appends events to per-stream logs, serializing writers on the same
// stream while never blocking writers on a different stream.
type Chain struct {
	store  Store
	signer Signer
	clock  clock.Clock

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// onAppend, if set, is notified after every successful Append; the
	// hook internal/httpapi/stream uses to fan a commit out to live
	// websocket subscribers without the chain itself depending on a UI
	// transport.
	onAppend func(tenantID string, ev Event)
}

// New constructs a Chain backed by store, signing appends with signer.
func New(store Store, signer Signer, clk clock.Clock) *Chain {
	return &Chain{
		store:  store,
		signer: signer,
		clock:  clk,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (c *Chain) streamLock(tenantID, streamID string) *sync.Mutex {
	key := tenantID + "/" + streamID
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[key]
	if !ok {
		l = &sync.Mutex{}
		c.locks[key] = l
	}
	return l
}

// Append builds the next event on (tenantID, streamID), computes its chain
// hash over {prev, ...coreFields}, signs the chain hash, and persists it.
// Callers outside the lock never observe a torn chain: the stream's lock is
// held for the full validate-then-commit window.
func (c *Chain) Append(ctx context.Context, tenantID, streamID, eventType, actor string, payload any) (*Event, error) {
	lock := c.streamLock(tenantID, streamID)
	lock.Lock()
	defer lock.Unlock()

	last, hasLast, err := c.store.Last(ctx, tenantID, streamID)
	if err != nil {
		return nil, fmt.Errorf("eventchain: read last event: %w", err)
	}

	var prevChainHash *string
	if hasLast {
		h := last.ChainHash
		prevChainHash = &h
	}

	ev := Event{
		V:             1,
		ID:            uuid.NewString(),
		At:            c.clock.Now(),
		StreamID:      streamID,
		Type:          eventType,
		Actor:         actor,
		Payload:       payload,
		PrevChainHash: prevChainHash,
	}

	obj := map[string]any{
		"prev":     prevChainHash,
		"v":        ev.V,
		"id":       ev.ID,
		"at":       ev.At,
		"streamId": ev.StreamID,
		"type":     ev.Type,
		"actor":    ev.Actor,
		"payload":  ev.Payload,
	}
	chainHash, err := canon.HashJSON(obj)
	if err != nil {
		return nil, fmt.Errorf("eventchain: compute chain hash: %w", err)
	}
	ev.ChainHash = chainHash

	sig, keyID, err := c.signer.Sign(chainHash, SignPurposeAppend, map[string]any{"streamId": streamID})
	if err != nil {
		return nil, fmt.Errorf("eventchain: sign chain hash: %w", err)
	}
	ev.Signature = sig
	ev.SignerKeyID = keyID

	if err := c.store.Append(ctx, tenantID, streamID, ev); err != nil {
		return nil, fmt.Errorf("eventchain: persist append: %w", err)
	}
	if c.onAppend != nil {
		c.onAppend(tenantID, ev)
	}
	return &ev, nil
}

// OnAppend registers fn to be called with every successfully persisted
// event, still inside the stream's lock; fn must not block or call back
// into Append. At most one subscriber is supported; callers needing
// fan-out compose their own multiplexing fn.
func (c *Chain) OnAppend(fn func(tenantID string, ev Event)) {
	c.onAppend = fn
}

// Snapshot returns the current position of a stream.
func (c *Chain) Snapshot(ctx context.Context, tenantID, streamID string) (*Snapshot, error) {
	last, ok, err := c.store.Last(ctx, tenantID, streamID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Snapshot{StreamID: streamID}, nil
	}
	return &Snapshot{StreamID: streamID, LastChainHash: last.ChainHash, LastEventID: last.ID}, nil
}

// Validate re-derives every chain hash on the stream and confirms it links
// to its predecessor, returning an error at the first mismatch.
func (c *Chain) Validate(ctx context.Context, tenantID, streamID string) error {
	events, err := c.store.List(ctx, tenantID, streamID)
	if err != nil {
		return err
	}
	var prev *string
	for i, ev := range events {
		obj := map[string]any{
			"prev":     prev,
			"v":        ev.V,
			"id":       ev.ID,
			"at":       ev.At,
			"streamId": ev.StreamID,
			"type":     ev.Type,
			"actor":    ev.Actor,
			"payload":  ev.Payload,
		}
		want, err := canon.HashJSON(obj)
		if err != nil {
			return err
		}
		if want != ev.ChainHash {
			return fmt.Errorf("eventchain: chain hash mismatch at index %d of stream %s", i, streamID)
		}
		h := ev.ChainHash
		prev = &h
	}
	return nil
}

// List returns every event on a stream in chain order.
func (c *Chain) List(ctx context.Context, tenantID, streamID string) ([]Event, error) {
	return c.store.List(ctx, tenantID, streamID)
}
