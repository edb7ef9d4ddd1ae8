package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InProcess implements AdvisoryLock with a map of sync.Mutex-guarded
// holders, for the in-memory store deployment.
type InProcess struct {
	mu      sync.Mutex
	holders map[string]inProcessHolder
}

type inProcessHolder struct {
	token    string
	expireAt time.Time
}

func NewInProcess() *InProcess {
	return &InProcess{holders: make(map[string]inProcessHolder)}
}

func (l *InProcess) TryAcquire(ctx context.Context, name string, ttlMillis int64) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if h, ok := l.holders[name]; ok && now.Before(h.expireAt) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.holders[name] = inProcessHolder{token: token, expireAt: now.Add(time.Duration(ttlMillis) * time.Millisecond)}
	return token, true, nil
}

func (l *InProcess) Release(ctx context.Context, name, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.holders[name]; ok && h.token == token {
		delete(l.holders, name)
	}
	return nil
}
