// SpannerStore is an alternate Store backend behind the exact same
// interface as MemoryStore: a *spanner.Client wrapped behind the
// package's own store abstraction, persisting AgentReputationFacts rows
// for deployments that need the cache durable across instances.
package reputation

import (
	"context"
	"fmt"

	"cloud.google.com/go/spanner"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
)

// SpannerStore persists AgentReputationFacts in a Spanner table named
// AgentReputationFacts, keyed by (TenantId, AgentId).
type SpannerStore struct {
	client *spanner.Client
}

// NewSpannerStore connects to the named Spanner database.
func NewSpannerStore(ctx context.Context, project, instance, database string) (*SpannerStore, error) {
	dbPath := fmt.Sprintf("projects/%s/instances/%s/databases/%s", project, instance, database)
	client, err := spanner.NewClient(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("reputation: new spanner client: %w", err)
	}
	return &SpannerStore{client: client}, nil
}

func (s *SpannerStore) PutFacts(ctx context.Context, f AgentReputationFacts) error {
	mutation := spanner.InsertOrUpdate("AgentReputationFacts",
		[]string{"TenantId", "AgentId", "AutoReleasedCents", "DisputeWinCents", "DisputeLossCents", "DisputeCount", "TrustScore"},
		[]interface{}{f.TenantID, f.AgentID, f.AutoReleasedCents, f.DisputeWinCents, f.DisputeLossCents, int64(f.DisputeCount), f.TrustScore},
	)
	_, err := s.client.Apply(ctx, []*spanner.Mutation{mutation})
	if err != nil {
		return fmt.Errorf("reputation: put facts: %w", err)
	}
	return nil
}

func (s *SpannerStore) GetFacts(ctx context.Context, tenantID, agentID string) (AgentReputationFacts, bool, error) {
	row, err := s.client.Single().ReadRow(ctx, "AgentReputationFacts", spanner.Key{tenantID, agentID},
		[]string{"TenantId", "AgentId", "AutoReleasedCents", "DisputeWinCents", "DisputeLossCents", "DisputeCount", "TrustScore"})
	if err != nil {
		if spanner.ErrCode(err) == codes.NotFound {
			return AgentReputationFacts{}, false, nil
		}
		return AgentReputationFacts{}, false, fmt.Errorf("reputation: get facts: %w", err)
	}
	f, err := scanFactsRow(row)
	if err != nil {
		return AgentReputationFacts{}, false, err
	}
	return f, true, nil
}

func (s *SpannerStore) ListFacts(ctx context.Context, tenantID string) ([]AgentReputationFacts, error) {
	stmt := spanner.Statement{
		SQL:    `SELECT TenantId, AgentId, AutoReleasedCents, DisputeWinCents, DisputeLossCents, DisputeCount, TrustScore FROM AgentReputationFacts WHERE TenantId = @tenantId`,
		Params: map[string]interface{}{"tenantId": tenantID},
	}
	iter := s.client.Single().Query(ctx, stmt)
	defer iter.Stop()

	var out []AgentReputationFacts
	for {
		row, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reputation: list facts: %w", err)
		}
		f, err := scanFactsRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func scanFactsRow(row *spanner.Row) (AgentReputationFacts, error) {
	var f AgentReputationFacts
	var disputeCount int64
	if err := row.Columns(&f.TenantID, &f.AgentID, &f.AutoReleasedCents, &f.DisputeWinCents, &f.DisputeLossCents, &disputeCount, &f.TrustScore); err != nil {
		return AgentReputationFacts{}, fmt.Errorf("reputation: scan facts row: %w", err)
	}
	f.DisputeCount = int(disputeCount)
	return f, nil
}
