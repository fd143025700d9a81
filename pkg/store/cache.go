// Copyright 2026 The Authors (see AUTHORS file)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/abcxyz/org-event-integrations/pkg/integrations"
	"github.com/abcxyz/pkg/logging"
)

// DefaultCacheTTL is how long cached delivery rules are served.
const DefaultCacheTTL = 5 * time.Minute

// RedisClient is the subset of the redis client used by the cache.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Cached is a read-through cache of delivery rules. All rules of one
// organization integration pair are cached under one key and filtered by
// event type on read, so a change to a catch-all rule needs one
// invalidation. Cache failures fall back to the underlying store.
type Cached struct {
	next   IntegrationDetailsLister
	client RedisClient
	ttl    time.Duration
}

// NewCached wraps a store with a redis cache.
func NewCached(next IntegrationDetailsLister, client RedisClient, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cached{next: next, client: client, ttl: ttl}
}

// NewRedisClient creates a redis client from a redis:// URL.
func NewRedisClient(rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// CacheKey is the key under which the rules of an organization integration
// pair are cached.
func CacheKey(orgID string, t integrations.Type) string {
	return fmt.Sprintf("event-integrations:details:%s:%s", strings.ToLower(orgID), t)
}

// ListDetails implements DetailsReader.
func (c *Cached) ListDetails(ctx context.Context, orgID string, t integrations.Type, eventType *int) ([]*integrations.ConfigurationDetails, error) {
	all, err := c.ListIntegrationDetails(ctx, orgID, t)
	if err != nil {
		return nil, err
	}

	out := make([]*integrations.ConfigurationDetails, 0, len(all))
	for _, d := range all {
		if matchesEventType(d, eventType) {
			out = append(out, d)
		}
	}
	return out, nil
}

// ListIntegrationDetails implements IntegrationDetailsLister.
func (c *Cached) ListIntegrationDetails(ctx context.Context, orgID string, t integrations.Type) ([]*integrations.ConfigurationDetails, error) {
	logger := logging.FromContext(ctx)
	key := CacheKey(orgID, t)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []*integrations.ConfigurationDetails
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		logger.WarnContext(ctx, "discarding undecodable cache entry", "key", key)
	case errors.Is(err, redis.Nil):
	default:
		logger.WarnContext(ctx, "details cache unavailable", "key", key, "error", err)
	}

	details, err := c.next.ListIntegrationDetails(ctx, orgID, t)
	if err != nil {
		return nil, err
	}

	b, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal configuration details: %w", err)
	}
	if err := c.client.Set(ctx, key, b, c.ttl).Err(); err != nil {
		logger.WarnContext(ctx, "failed to populate details cache", "key", key, "error", err)
	}
	return details, nil
}

// Invalidate implements Invalidator.
func (c *Cached) Invalidate(ctx context.Context, orgID string, t integrations.Type) error {
	if err := c.client.Del(ctx, CacheKey(orgID, t)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate details cache: %w", err)
	}
	return nil
}
