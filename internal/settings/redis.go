package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/therealutkarshpriyadarshi/hdmsp/pkg/models"
)

// JSONCache is the subset of cache.Cache the Redis store needs.
type JSONCache interface {
	GetWithJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetWithJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// RedisStore keeps the record in Redis under Key with no expiry.
type RedisStore struct {
	cache JSONCache
}

// NewRedisStore creates a Redis-backed store
func NewRedisStore(cache JSONCache) *RedisStore {
	return &RedisStore{cache: cache}
}

// Load returns the stored record merged over the defaults.
func (r *RedisStore) Load(ctx context.Context) (models.AppearanceSettings, error) {
	var raw json.RawMessage
	found, err := r.cache.GetWithJSON(ctx, Key, &raw)
	if err != nil {
		return models.DefaultAppearanceSettings(), fmt.Errorf("failed to load settings: %w", err)
	}
	if !found {
		return models.DefaultAppearanceSettings(), nil
	}
	// Merge only fails on undecodable input, which GetWithJSON has
	// already rejected.
	s, _ := Merge(raw)
	return s, nil
}

// Save stores the normalized record.
func (r *RedisStore) Save(ctx context.Context, s models.AppearanceSettings) error {
	if err := r.cache.SetWithJSON(ctx, Key, Normalize(s), 0); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
