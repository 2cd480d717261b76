package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisLockTTL   = 30 * time.Second
	redisLockRetry = 100 * time.Millisecond
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisDistributedLockManager takes locks with SET NX and a TTL, so a crashed holder
// frees its lock after redisLockTTL.
type RedisDistributedLockManager struct {
	client redis.UniversalClient
	prefix string
	mu     sync.Mutex
	tokens map[int]string
}

func NewRedisDistributedLockManager(client redis.UniversalClient, prefix string) *RedisDistributedLockManager {
	return &RedisDistributedLockManager{
		client: client,
		prefix: prefix,
		tokens: make(map[int]string),
	}
}

func (l *RedisDistributedLockManager) Acquire(ctx context.Context, lockID int) error {
	ticker := time.NewTicker(redisLockRetry)
	defer ticker.Stop()

	for {
		ok, err := l.TryAcquire(ctx, lockID)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to acquire lock: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *RedisDistributedLockManager) TryAcquire(ctx context.Context, lockID int) (bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key(lockID), token, redisLockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if ok {
		l.mu.Lock()
		l.tokens[lockID] = token
		l.mu.Unlock()
	}
	return ok, nil
}

func (l *RedisDistributedLockManager) Release(ctx context.Context, lockID int) error {
	l.mu.Lock()
	token, ok := l.tokens[lockID]
	delete(l.tokens, lockID)
	l.mu.Unlock()
	if !ok {
		return ErrLockNotHeld
	}

	if err := releaseScript.Run(ctx, l.client, []string{l.key(lockID)}, token).Err(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

func (l *RedisDistributedLockManager) key(lockID int) string {
	return fmt.Sprintf("%slock:%d", l.prefix, lockID)
}
