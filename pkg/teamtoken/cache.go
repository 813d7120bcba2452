package teamtoken

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	byTokenKeyPrefix = "teamtoken:by_token:"
	currentKeyPrefix = "teamtoken:current:"

	cacheTTL = 15 * time.Minute
)

// CachedStore wraps a Store with a Redis write-through cache.
//
// Supersession must stay instant: Generate removes the old token's cache
// entry before inserting the replacement, so a superseded token can never
// be served from cache after Generate returns.
type CachedStore struct {
	store *Store
	redis *redis.Client
}

// NewCachedStore creates a Redis-backed cache layer over the store
func NewCachedStore(store *Store, redisClient *redis.Client) *CachedStore {
	return &CachedStore{
		store: store,
		redis: redisClient,
	}
}

// Generate invalidates the team's cached token, inserts the new one, and
// primes the cache with it.
//
// The superseded token is resolved from storage, not from the current: key:
// redis may have evicted that key while the by_token: entry survived, and
// the stale entry must still be removed.
func (c *CachedStore) Generate(ctx context.Context, teamID int64) (string, error) {
	currentKey := currentKeyPrefix + strconv.FormatInt(teamID, 10)

	old, err := c.store.CurrentToken(ctx, teamID)
	switch {
	case err == nil:
		c.redis.Del(ctx, byTokenKeyPrefix+old)
	case errors.Is(err, ErrNoToken):
		// first token for this team, nothing to invalidate
	default:
		return "", err
	}
	c.redis.Del(ctx, currentKey)

	token, err := c.store.Generate(ctx, teamID)
	if err != nil {
		return "", err
	}

	c.redis.Set(ctx, currentKey, token, cacheTTL)
	c.redis.Set(ctx, byTokenKeyPrefix+token, strconv.FormatInt(teamID, 10), cacheTTL)

	return token, nil
}

// Validate resolves a token to a team id, serving from cache when possible
func (c *CachedStore) Validate(ctx context.Context, token string) (int64, error) {
	if err := CheckFormat(token); err != nil {
		return 0, err
	}

	if cached, err := c.redis.Get(ctx, byTokenKeyPrefix+token).Result(); err == nil {
		teamID, parseErr := strconv.ParseInt(cached, 10, 64)
		if parseErr == nil {
			return teamID, nil
		}
	}

	teamID, err := c.store.Validate(ctx, token)
	if err != nil {
		return 0, err
	}

	c.redis.Set(ctx, byTokenKeyPrefix+token, strconv.FormatInt(teamID, 10), cacheTTL)
	c.redis.Set(ctx, currentKeyPrefix+strconv.FormatInt(teamID, 10), token, cacheTTL)

	return teamID, nil
}

// CurrentToken returns the current token for a team, cache first
func (c *CachedStore) CurrentToken(ctx context.Context, teamID int64) (string, error) {
	currentKey := currentKeyPrefix + strconv.FormatInt(teamID, 10)

	if token, err := c.redis.Get(ctx, currentKey).Result(); err == nil && token != "" {
		return token, nil
	}

	token, err := c.store.CurrentToken(ctx, teamID)
	if err != nil {
		return "", err
	}

	c.redis.Set(ctx, currentKey, token, cacheTTL)
	c.redis.Set(ctx, byTokenKeyPrefix+token, strconv.FormatInt(teamID, 10), cacheTTL)

	return token, nil
}

// History returns the team's full token audit trail. The trail is an audit
// surface and is never cached.
func (c *CachedStore) History(ctx context.Context, teamID int64) ([]TeamToken, error) {
	return c.store.History(ctx, teamID)
}

// Healthy reports whether the cache backend is reachable
func (c *CachedStore) Healthy(ctx context.Context) error {
	if err := c.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("team token cache unavailable: %w", err)
	}
	return nil
}

// IsAuthFailure reports whether an error from Validate means the token was
// rejected, as opposed to an infrastructure fault.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrInvalidTokenFormat)
}
