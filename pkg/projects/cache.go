package projects

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	projectKeyPrefix = "project:meta:"
	projectCacheTTL  = 5 * time.Minute
)

// CachedStore wraps a Store with a Redis read-through cache. The open flag
// gates unauthenticated access, so the TTL is kept short: flipping a
// project private takes effect within projectCacheTTL at worst.
type CachedStore struct {
	store *Store
	redis *redis.Client
}

// NewCachedStore creates a Redis cache layer over the project store
func NewCachedStore(store *Store, redisClient *redis.Client) *CachedStore {
	return &CachedStore{
		store: store,
		redis: redisClient,
	}
}

// Get returns mirrored project metadata, cache first
func (c *CachedStore) Get(ctx context.Context, projectID int64) (*Project, error) {
	key := projectKeyPrefix + strconv.FormatInt(projectID, 10)

	if cached, err := c.redis.Get(ctx, key).Result(); err == nil {
		p := &Project{}
		if err := json.Unmarshal([]byte(cached), p); err == nil {
			return p, nil
		}
	}

	p, err := c.store.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(p); err == nil {
		c.redis.Set(ctx, key, data, projectCacheTTL)
	}

	return p, nil
}

// Upsert writes project metadata and invalidates the cache entry
func (c *CachedStore) Upsert(ctx context.Context, p *Project) error {
	if err := c.store.Upsert(ctx, p); err != nil {
		return err
	}
	c.redis.Del(ctx, projectKeyPrefix+strconv.FormatInt(p.ID, 10))
	return nil
}

// ListByTeam delegates to the store; team listings are never cached
func (c *CachedStore) ListByTeam(ctx context.Context, teamID int64) ([]*Project, error) {
	return c.store.ListByTeam(ctx, teamID)
}
