package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"ctfex.com/pkg/logger"
	"ctfex.com/pkg/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CachedStore puts a redis read-through cache in front of Balance.
// Apply goes straight to the inner store, then bumps each touched key's
// version and drops the cached value. A loader only writes back if the
// version it saw before reading the inner store is unchanged at EXEC, so a
// read that raced an Apply never re-caches the pre-Apply balance. That one
// racing read may still return the old value to its caller; the inner Apply
// rejects any overdraft built on it.
type CachedStore struct {
	inner  Store
	client *redis.Client
	ttl    time.Duration
	sf     singleflight.Group
}

func NewCachedStore(inner Store, client *redis.Client, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedStore{inner: inner, client: client, ttl: ttl}
}

func (c *CachedStore) Balance(ctx context.Context, owner common.Address, asset common.Hash) (uint64, error) {
	key := balanceCacheKey(owner, asset)
	s, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if v, perr := strconv.ParseUint(s, 10, 64); perr == nil {
			metrics.LedgerCacheTotal.WithLabelValues("hit").Inc()
			return v, nil
		}
		// 缓存脏了就删掉
		_ = c.client.Del(ctx, key).Err()
	case err != redis.Nil:
		metrics.LedgerCacheTotal.WithLabelValues("error").Inc()
		logger.Warn(ctx, "balance cache get failed", zap.String("key", key), zap.Error(err))
	}
	metrics.LedgerCacheTotal.WithLabelValues("miss").Inc()

	// singleflight 防击穿
	v, err, _ := c.sf.Do(key, func() (interface{}, error) {
		ver, verr := c.client.Get(ctx, versionKey(key)).Result()
		bal, err := c.inner.Balance(ctx, owner, asset)
		if err != nil {
			return uint64(0), err
		}
		if verr == nil || verr == redis.Nil {
			c.fill(ctx, key, ver, bal)
		}
		return bal, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(uint64), nil
}

func (c *CachedStore) IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error) {
	return c.inner.IsApprovedForAll(ctx, owner, operator)
}

func (c *CachedStore) Apply(ctx context.Context, deltas []Delta) error {
	if err := c.inner.Apply(ctx, deltas); err != nil {
		return err
	}
	keys := make([]string, 0, len(deltas))
	for _, d := range deltas {
		keys = append(keys, balanceCacheKey(d.Owner, d.Asset))
	}
	c.invalidate(ctx, keys...)
	return nil
}

func (c *CachedStore) Credit(ctx context.Context, owner common.Address, asset common.Hash, amount uint64) error {
	admin, ok := c.inner.(Admin)
	if !ok {
		return fmt.Errorf("ledger: %T does not support credit", c.inner)
	}
	if err := admin.Credit(ctx, owner, asset, amount); err != nil {
		return err
	}
	c.invalidate(ctx, balanceCacheKey(owner, asset))
	return nil
}

func (c *CachedStore) SetApprovalForAll(ctx context.Context, owner, operator common.Address, approved bool) error {
	admin, ok := c.inner.(Admin)
	if !ok {
		return fmt.Errorf("ledger: %T does not support approvals", c.inner)
	}
	return admin.SetApprovalForAll(ctx, owner, operator, approved)
}

// fill 回填缓存, 版本号变过(期间有 Apply)就放弃
func (c *CachedStore) fill(ctx context.Context, key, seen string, bal uint64) {
	vk := versionKey(key)
	err := c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, vk).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if cur != seen {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, strconv.FormatUint(bal, 10), withJitter(c.ttl, 300*time.Millisecond))
			return nil
		})
		return err
	}, vk)
	switch {
	case err == nil:
	case errors.Is(err, errStaleFill), errors.Is(err, redis.TxFailedErr):
		metrics.LedgerCacheTotal.WithLabelValues("stale").Inc()
	default:
		logger.Warn(ctx, "balance cache fill failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *CachedStore) invalidate(ctx context.Context, keys ...string) {
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, k := range keys {
			p.Incr(ctx, versionKey(k))
			p.Expire(ctx, versionKey(k), 2*c.ttl)
		}
		p.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		logger.Warn(ctx, "balance cache invalidate failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

var errStaleFill = errors.New("balance changed while loading")

func balanceCacheKey(owner common.Address, asset common.Hash) string {
	return "ctfex:bal:" + owner.Hex() + ":" + asset.Hex()
}

func versionKey(key string) string { return key + ":ver" }

func withJitter(ttl, jitter time.Duration) time.Duration {
	if ttl <= 0 || jitter <= 0 {
		return ttl
	}
	return ttl + time.Duration(rand.Int63n(int64(jitter)))
}
