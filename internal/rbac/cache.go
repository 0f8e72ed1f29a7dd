package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/tempora-app/tempora/internal/shared"
)

// DefaultResolutionTTL bounds how long a role/permission edit may keep
// being honored by cached resolutions when explicit invalidation is
// missed.
const DefaultResolutionTTL = 2 * time.Minute

type cachedResolution struct {
	Admin  bool     `json:"admin"`
	Grants []string `json:"grants"`
	Denies []string `json:"denies"`
}

// CacheMetrics receives cache effectiveness signals.
type CacheMetrics interface {
	ResolutionCacheHit()
	ResolutionCacheMiss()
}

// CachedResolver caches resolutions in Redis keyed by
// (tenant, user, impersonation-session-or-direct) with a bounded TTL.
// Mutation paths call the Invalidate methods synchronously so a revoked
// capability stops being honored without waiting out the TTL.
type CachedResolver struct {
	resolver *Resolver
	client   *redis.Client
	ttl      time.Duration
	logger   *slog.Logger
	metrics  CacheMetrics
	group    singleflight.Group
}

// NewCachedResolver constructs a CachedResolver. A zero ttl falls back to
// DefaultResolutionTTL. metrics may be nil.
func NewCachedResolver(resolver *Resolver, client *redis.Client, ttl time.Duration, logger *slog.Logger, metrics CacheMetrics) *CachedResolver {
	if ttl <= 0 {
		ttl = DefaultResolutionTTL
	}
	return &CachedResolver{resolver: resolver, client: client, ttl: ttl, logger: logger, metrics: metrics}
}

// ResolveIdentity returns the effective capability set for the request
// identity. While impersonating, the identity's UserID is already the
// impersonation target, so resolution automatically runs against the
// target's roles.
func (c *CachedResolver) ResolveIdentity(ctx context.Context, identity *shared.Identity) (CapabilitySet, error) {
	if identity == nil {
		return CapabilitySet{}, shared.ErrUnauthenticated
	}
	key := c.key(identity)

	if payload, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var stored cachedResolution
		if err := json.Unmarshal(payload, &stored); err == nil {
			if c.metrics != nil {
				c.metrics.ResolutionCacheHit()
			}
			return NewCapabilitySet(stored.Admin, stored.Grants, stored.Denies), nil
		}
		// Unreadable entry: drop it and resolve fresh.
		_ = c.client.Del(ctx, key).Err()
	} else if !errors.Is(err, redis.Nil) && c.logger != nil {
		c.logger.Warn("resolution cache read", slog.Any("error", err))
	}

	if c.metrics != nil {
		c.metrics.ResolutionCacheMiss()
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		set, err := c.resolver.Resolve(ctx, identity.UserID, identity.TenantID)
		if err != nil {
			return CapabilitySet{}, err
		}
		payload, err := json.Marshal(cachedResolution{Admin: set.IsAdmin(), Grants: set.Grants(), Denies: set.Denies()})
		if err == nil {
			if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil && c.logger != nil {
				c.logger.Warn("resolution cache write", slog.Any("error", err))
			}
		}
		return set, nil
	})
	if err != nil {
		return CapabilitySet{}, err
	}
	return result.(CapabilitySet), nil
}

// InvalidateUser drops every cached resolution for the user in the
// tenant, impersonation-scoped entries included.
func (c *CachedResolver) InvalidateUser(ctx context.Context, tenantID, userID int64) error {
	return c.deleteByPattern(ctx, fmt.Sprintf("authz:caps:%d:%d:*", tenantID, userID))
}

// InvalidateUsers drops cached resolutions for a set of users, used after
// role-level mutations.
func (c *CachedResolver) InvalidateUsers(ctx context.Context, tenantID int64, userIDs []int64) error {
	for _, userID := range userIDs {
		if err := c.InvalidateUser(ctx, tenantID, userID); err != nil {
			return err
		}
	}
	return nil
}

// TTL exposes the configured staleness bound.
func (c *CachedResolver) TTL() time.Duration {
	return c.ttl
}

func (c *CachedResolver) key(identity *shared.Identity) string {
	scope := "direct"
	if identity.Impersonation != nil {
		scope = fmt.Sprintf("imp%d", identity.Impersonation.SessionID)
	}
	return fmt.Sprintf("authz:caps:%d:%d:%s", identity.TenantID, identity.UserID, scope)
}

func (c *CachedResolver) deleteByPattern(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 64).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
