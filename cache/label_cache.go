package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Label kinds.
const (
	KindTags      = "tags"
	KindPlaylists = "playlists"
)

// LabelCache caches tag and playlist lists as JSON. A nil client disables it:
// Get always misses and Set/Invalidate do nothing.
type LabelCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLabelCache(client *redis.Client, ttl time.Duration) *LabelCache {
	return &LabelCache{client: client, ttl: ttl}
}

func labelKey(kind string, linkedOnly bool) string {
	return fmt.Sprintf("sessions:labels:%s:linked=%t", kind, linkedOnly)
}

// Get decodes the cached list into dst and reports whether it was present.
func (c *LabelCache) Get(ctx context.Context, kind string, linkedOnly bool, dst interface{}) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	data, err := c.client.Get(ctx, labelKey(kind, linkedOnly)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s from cache: %w", kind, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", kind, err)
	}
	return true, nil
}

func (c *LabelCache) Set(ctx context.Context, kind string, linkedOnly bool, v interface{}) error {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	return c.client.Set(ctx, labelKey(kind, linkedOnly), data, c.ttl).Err()
}

// Invalidate drops both variants of kind. Called after any label or event write.
func (c *LabelCache) Invalidate(ctx context.Context, kinds ...string) error {
	if c == nil || c.client == nil {
		return nil
	}
	keys := make([]string, 0, len(kinds)*2)
	for _, k := range kinds {
		keys = append(keys, labelKey(k, true), labelKey(k, false))
	}
	return c.client.Del(ctx, keys...).Err()
}
