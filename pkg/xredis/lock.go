package xredis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// 只有锁的持有者能续期/释放
var (
	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`)
)

// Lock is a single-holder lease. The engine takes one per WAL directory so
// two processes never append to the same log.
type Lock struct {
	rdb *redis.Client
	key string
	id  string
}

func NewLock(rdb *redis.Client, key string) *Lock {
	return &Lock{rdb: rdb, key: key, id: uuid.NewString()}
}

func (l *Lock) ID() string { return l.id }

// TryAcquire takes the lease or renews it if we already hold it.
func (l *Lock) TryAcquire(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key, l.id, ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	n, err := renewScript.Run(ctx, l.rdb, []string{l.key}, l.id, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (l *Lock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.rdb, []string{l.key}, l.id).Err()
}

// KeepAlive renews the lease every ttl/3 until ctx ends. lost is called
// once if the lease cannot be renewed.
func (l *Lock) KeepAlive(ctx context.Context, ttl time.Duration, lost func(error)) {
	ticker := time.NewTicker(ttl / 3)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ok, err := l.TryAcquire(ctx, ttl)
				if ctx.Err() != nil {
					return
				}
				if err != nil || !ok {
					if err == nil {
						err = redis.Nil
					}
					lost(err)
					return
				}
			}
		}
	}()
}
