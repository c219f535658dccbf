package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	hierarchyKeyPrefix   = "ledger:accounts:hierarchy"
	hierarchyLoadTimeout = 30 * time.Second
	// InvalidationChannel carries the tenant id whenever its chart changes.
	InvalidationChannel = "ledger.accounts.bump"
)

// HierarchyCache stores the active account list per tenant in Redis. Keys are
// versioned per tenant so a mutation only needs to bump the version.
type HierarchyCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewHierarchyCache builds the cache. A nil client disables caching.
func NewHierarchyCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *HierarchyCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &HierarchyCache{client: client, ttl: ttl, logger: logger}
}

func versionKey(tenantID string) string {
	return hierarchyKeyPrefix + ":" + tenantID + ":version"
}

// Version returns the tenant's current cache version, initialising when missing.
func (c *HierarchyCache) Version(ctx context.Context, tenantID string) (int64, error) {
	ver, err := c.client.Get(ctx, versionKey(tenantID)).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, versionKey(tenantID), 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, versionKey(tenantID)).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Load returns the cached account list or populates it from loader.
// Concurrent misses for the same tenant share one loader call. Redis failures
// degrade to calling loader directly.
func (c *HierarchyCache) Load(ctx context.Context, tenantID string, loader func(context.Context) ([]Account, error)) ([]Account, error) {
	if loader == nil {
		return nil, errors.New("accounts: hierarchy loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}

	ver, err := c.Version(ctx, tenantID)
	if err != nil {
		c.logger.Warn("hierarchy cache version", slog.String("tenant", tenantID), slog.Any("error", err))
		return loader(ctx)
	}
	key := fmt.Sprintf("%s:%s:%d", hierarchyKeyPrefix, tenantID, ver)

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var accounts []Account
		if err := json.Unmarshal(payload, &accounts); err == nil {
			return accounts, nil
		}
		c.logger.Warn("hierarchy cache decode", slog.String("key", key))
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("hierarchy cache get", slog.String("key", key), slog.Any("error", err))
		return loader(ctx)
	}

	// The shared load outlives any single caller; each caller still stops
	// waiting when its own context ends.
	ch := c.group.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hierarchyLoadTimeout)
		defer cancel()
		accounts, err := loader(loadCtx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(accounts)
		if err == nil {
			if err := c.client.Set(loadCtx, key, raw, c.ttl).Err(); err != nil {
				c.logger.Warn("hierarchy cache set", slog.String("key", key), slog.Any("error", err))
			}
		}
		return accounts, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		accounts := res.Val.([]Account)
		out := make([]Account, len(accounts))
		copy(out, accounts)
		return out, nil
	}
}

// Invalidate bumps the tenant version and announces the change.
func (c *HierarchyCache) Invalidate(ctx context.Context, tenantID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, versionKey(tenantID)).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, InvalidationChannel, tenantID+":"+strconv.FormatInt(ver, 10)).Err()
}
