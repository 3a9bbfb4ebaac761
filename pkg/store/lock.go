package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	lockKeyPrefix = "storeplane:watch:"
	lockTTL       = 30 * time.Second
)

// WatchLock is a short-lived, per-store ownership lease that keeps two
// replicas from running redundant readiness watchers for the same store.
// Losing the lease is always safe: the watch simply stops and either the
// other replica's loop or the stranded-provisioning sweeper reaches a
// terminal state.
type WatchLock struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewWatchLock creates a WatchLock. A nil rdb disables leasing: every
// acquire and renew call succeeds locally, matching single-replica operation
// without Redis configured.
func NewWatchLock(rdb *redis.Client, logger *slog.Logger) *WatchLock {
	return &WatchLock{rdb: rdb, logger: logger}
}

func lockKey(storeID string) string {
	return lockKeyPrefix + storeID
}

// Acquire attempts to take ownership of storeID's readiness watch.
func (l *WatchLock) Acquire(ctx context.Context, storeID, owner string) bool {
	if l.rdb == nil {
		return true
	}
	ok, err := l.rdb.SetNX(ctx, lockKey(storeID), owner, lockTTL).Result()
	if err != nil {
		l.logger.Warn("acquiring watch lock failed, proceeding unlocked", "store_id", storeID, "error", err)
		return true
	}
	return ok
}

// Renew extends ownership of storeID's lease if this owner still holds it.
func (l *WatchLock) Renew(ctx context.Context, storeID, owner string) bool {
	if l.rdb == nil {
		return true
	}
	val, err := l.rdb.Get(ctx, lockKey(storeID)).Result()
	if err != nil {
		l.logger.Warn("renewing watch lock failed", "store_id", storeID, "error", err)
		return false
	}
	if val != owner {
		return false
	}
	if err := l.rdb.Expire(ctx, lockKey(storeID), lockTTL).Err(); err != nil {
		l.logger.Warn("extending watch lock ttl failed", "store_id", storeID, "error", err)
		return false
	}
	return true
}

// Release gives up ownership of storeID's lease early, e.g. on terminal transition.
func (l *WatchLock) Release(ctx context.Context, storeID, owner string) {
	if l.rdb == nil {
		return
	}
	val, err := l.rdb.Get(ctx, lockKey(storeID)).Result()
	if err != nil {
		return
	}
	if val == owner {
		l.rdb.Del(ctx, lockKey(storeID))
	}
}
