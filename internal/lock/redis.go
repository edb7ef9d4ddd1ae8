package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript compare-and-deletes: only the holder presenting the token it
// was granted may release the lock, never a stale or foreign caller.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// Redis implements AdvisoryLock over go-redis v9, for the Postgres-backed
// deployment where the maintenance loop may run on more than one process.
type Redis struct {
	rdb    *redis.Client
	script *redis.Script
}

// NewRedis wraps an already-connected *redis.Client.
func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb, script: redis.NewScript(releaseScript)}
}

func (l *Redis) TryAcquire(ctx context.Context, name string, ttlMillis int64) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, lockKey(name), token, time.Duration(ttlMillis)*time.Millisecond).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (l *Redis) Release(ctx context.Context, name, token string) error {
	return l.script.Run(ctx, l.rdb, []string{lockKey(name)}, token).Err()
}

func lockKey(name string) string {
	return "substrate:advisory-lock:" + name
}
