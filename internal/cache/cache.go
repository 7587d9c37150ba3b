package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/therealutkarshpriyadarshi/hdmsp/pkg/models"
)

// Cache provides caching functionality using Redis
type Cache struct {
	client *redis.Client
}

// NewCache creates a new cache instance
func NewCache(host string, port int, password string, db int) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Metadata Cache Operations

func metadataKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return "meta:" + hex.EncodeToString(sum[:])
}

// SetMetadata caches the analyze result for url
func (c *Cache) SetMetadata(ctx context.Context, url string, info *models.StreamInfo, ttl time.Duration) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return c.client.Set(ctx, metadataKey(url), data, ttl).Err()
}

// GetMetadata retrieves a cached analyze result. A miss returns nil, nil.
func (c *Cache) GetMetadata(ctx context.Context, url string) (*models.StreamInfo, error) {
	data, err := c.client.Get(ctx, metadataKey(url)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Cache miss
		}
		return nil, fmt.Errorf("failed to get metadata from cache: %w", err)
	}

	var info models.StreamInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return &info, nil
}

// DeleteMetadata removes the cached analyze result for url
func (c *Cache) DeleteMetadata(ctx context.Context, url string) error {
	return c.client.Del(ctx, metadataKey(url)).Err()
}

// Job Progress Operations

// SetJobProgress stores the latest progress event so other processes can
// poll a running download.
func (c *Cache) SetJobProgress(ctx context.Context, evt models.ProgressEvent, ttl time.Duration) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}
	key := fmt.Sprintf("job:progress:%s", evt.JobID)
	return c.client.Set(ctx, key, data, ttl).Err()
}

// GetJobProgress retrieves the latest progress event for a job
func (c *Cache) GetJobProgress(ctx context.Context, jobID string) (*models.ProgressEvent, error) {
	var evt models.ProgressEvent
	found, err := c.GetWithJSON(ctx, fmt.Sprintf("job:progress:%s", jobID), &evt)
	if err != nil || !found {
		return nil, err
	}
	return &evt, nil
}

// Locking Operations

// releaseScript deletes the lock only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// AcquireLock attempts to take lock:<resource> holding token
func (c *Cache) AcquireLock(ctx context.Context, resource, token string, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("lock:%s", resource)
	return c.client.SetNX(ctx, key, token, ttl).Result()
}

// ReleaseLock releases lock:<resource> if token still owns it
func (c *Cache) ReleaseLock(ctx context.Context, resource, token string) error {
	key := fmt.Sprintf("lock:%s", resource)
	return releaseScript.Run(ctx, c.client, []string{key}, token).Err()
}

// LockHolder returns the token holding lock:<resource>, or "" when free
func (c *Cache) LockHolder(ctx context.Context, resource string) (string, error) {
	val, err := c.client.Get(ctx, fmt.Sprintf("lock:%s", resource)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}

// SetWithJSON sets a value with JSON marshaling
func (c *Cache) SetWithJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// GetWithJSON gets a value with JSON unmarshaling. found is false on a miss.
func (c *Cache) GetWithJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil // Cache miss
		}
		return false, fmt.Errorf("failed to get value from cache: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal value: %w", err)
	}

	return true, nil
}

// Ping checks the connection
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
