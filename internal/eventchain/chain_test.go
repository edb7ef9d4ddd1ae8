package eventchain_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nooterra/substrate/internal/clock"
	"github.com/nooterra/substrate/internal/eventchain"
	"github.com/nooterra/substrate/internal/store/memstore"
)

type stubSigner struct{ calls int }

func (s *stubSigner) Sign(payloadHashHex, purpose string, context any) (string, string, error) {
	s.calls++
	return "sig-" + payloadHashHex[:8], "key-1", nil
}

func TestAppendLinksChainHashes(t *testing.T) {
	store := memstore.New()
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	chain := eventchain.New(store, &stubSigner{}, clk)
	ctx := context.Background()

	first, err := chain.Append(ctx, "tenant-a", "gate:1", "X402_GATE_CREATED", "agent-1", map[string]any{"n": 1})
	require.NoError(t, err)
	assert.Nil(t, first.PrevChainHash)

	second, err := chain.Append(ctx, "tenant-a", "gate:1", "X402_GATE_AUTHORIZED", "agent-1", map[string]any{"n": 2})
	require.NoError(t, err)
	require.NotNil(t, second.PrevChainHash)
	assert.Equal(t, first.ChainHash, *second.PrevChainHash)
}

func TestValidateDetectsTamperedEvent(t *testing.T) {
	store := memstore.New()
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	chain := eventchain.New(store, &stubSigner{}, clk)
	ctx := context.Background()

	_, err := chain.Append(ctx, "tenant-a", "gate:1", "X402_GATE_CREATED", "agent-1", map[string]any{"n": 1})
	require.NoError(t, err)
	_, err = chain.Append(ctx, "tenant-a", "gate:1", "X402_GATE_AUTHORIZED", "agent-1", map[string]any{"n": 2})
	require.NoError(t, err)

	require.NoError(t, chain.Validate(ctx, "tenant-a", "gate:1"))

	events, err := store.List(ctx, "tenant-a", "gate:1")
	require.NoError(t, err)
	events[0].Actor = "attacker"
	require.NoError(t, store.Append(ctx, "tenant-a", "gate:1-tampered", events[0]))

	assert.Error(t, chain.Validate(ctx, "tenant-a", "gate:1-tampered"))
}

func TestOnAppendFiresAfterPersist(t *testing.T) {
	store := memstore.New()
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	chain := eventchain.New(store, &stubSigner{}, clk)
	ctx := context.Background()

	var captured []eventchain.Event
	chain.OnAppend(func(tenantID string, ev eventchain.Event) {
		captured = append(captured, ev)
	})

	_, err := chain.Append(ctx, "tenant-a", "gate:1", "X402_GATE_CREATED", "agent-1", map[string]any{"n": 1})
	require.NoError(t, err)

	require.Len(t, captured, 1)
	assert.Equal(t, "X402_GATE_CREATED", captured[0].Type)
}

func TestSnapshotReflectsLastAppend(t *testing.T) {
	store := memstore.New()
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	chain := eventchain.New(store, &stubSigner{}, clk)
	ctx := context.Background()

	snap, err := chain.Snapshot(ctx, "tenant-a", "gate:1")
	require.NoError(t, err)
	assert.Empty(t, snap.LastChainHash)

	ev, err := chain.Append(ctx, "tenant-a", "gate:1", "X402_GATE_CREATED", "agent-1", nil)
	require.NoError(t, err)

	snap, err = chain.Snapshot(ctx, "tenant-a", "gate:1")
	require.NoError(t, err)
	assert.Equal(t, ev.ChainHash, snap.LastChainHash)
}

func TestAppendIsolatesDifferentStreams(t *testing.T) {
	store := memstore.New()
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	chain := eventchain.New(store, &stubSigner{}, clk)
	ctx := context.Background()

	_, err := chain.Append(ctx, "tenant-a", "gate:1", "X402_GATE_CREATED", "agent-1", nil)
	require.NoError(t, err)
	ev, err := chain.Append(ctx, "tenant-a", "gate:2", "X402_GATE_CREATED", "agent-1", nil)
	require.NoError(t, err)
	assert.Nil(t, ev.PrevChainHash, "a different stream must not chain off gate:1's history")
}
