package agent

import "context"

// Store persists agents.
type Store interface {
	CreateAgent(ctx context.Context, a Agent) error
	GetAgent(ctx context.Context, tenantID, agentID string) (Agent, bool, error)
	PutAgent(ctx context.Context, a Agent) error
	ListAgents(ctx context.Context, tenantID string) ([]Agent, error)
}

// LifecycleStatus reports an agent's current standing, satisfying the
// narrow interfaces internal/x402 and internal/holdback consult.
func (s storeAdapter) LifecycleStatus(ctx context.Context, tenantID, agentID string) (string, error) {
	a, found, err := s.store.GetAgent(ctx, tenantID, agentID)
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrAgentNotFound
	}
	return string(a.LifecycleStatus), nil
}

type storeAdapter struct{ store Store }

// AsLifecycleSource adapts a Store to the narrow LifecycleStatus lookup
// consumers outside this package depend on.
func AsLifecycleSource(s Store) storeAdapter { return storeAdapter{store: s} }

// ErrAgentNotFound is returned by LifecycleStatus for an unknown agent.
var ErrAgentNotFound = agentNotFoundErr{}

type agentNotFoundErr struct{}

func (agentNotFoundErr) Error() string { return "agent: not found" }
