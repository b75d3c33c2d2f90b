package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisSnapshotStore persists the engine snapshot in a Redis string slot,
// giving the state durability across process restarts. Keys are
// namespaced to prevent collisions with other applications sharing the
// instance.
type RedisSnapshotStore struct {
	client    *redis.Client
	namespace string
	logger    Logger // Optional logger for better observability
}

// NewRedisSnapshotStore creates a Redis snapshot store with the default
// namespace.
func NewRedisSnapshotStore(redisURL string) (*RedisSnapshotStore, error) {
	return NewRedisSnapshotStoreWithNamespace(redisURL, "groupkart")
}

// NewRedisSnapshotStoreWithNamespace creates a Redis snapshot store with a
// custom key namespace.
func NewRedisSnapshotStoreWithNamespace(redisURL, namespace string) (*RedisSnapshotStore, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis URL is required: %w", ErrInvalidConfiguration)
	}
	if namespace == "" {
		namespace = "groupkart"
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", ErrInvalidConfiguration)
	}

	// Production-grade connection settings
	opt.PoolSize = 10
	opt.MinIdleConns = 5
	opt.MaxRetries = 3
	opt.MinRetryBackoff = time.Millisecond * 100
	opt.MaxRetryBackoff = time.Second * 1
	opt.DialTimeout = time.Second * 5
	opt.ReadTimeout = time.Second * 5
	opt.WriteTimeout = time.Second * 5
	opt.PoolTimeout = time.Second * 10

	client := redis.NewClient(opt)

	// Connection verification with retry
	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = client.Ping(ctx).Err()
		cancel()

		if err == nil {
			break
		}

		if i < 2 {
			time.Sleep(time.Duration(i+1) * time.Second)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis after retries: %w", ErrConnectionFailed)
	}

	return &RedisSnapshotStore{
		client:    client,
		namespace: namespace,
		logger:    &NoOpLogger{},
	}, nil
}

// SetLogger configures the logger for this snapshot store.
func (r *RedisSnapshotStore) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// formatKey formats a storage key with the namespace.
func (r *RedisSnapshotStore) formatKey(key string) string {
	return fmt.Sprintf("%s:snapshots:%s", r.namespace, key)
}

// Load retrieves the snapshot stored under key.
func (r *RedisSnapshotStore) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.formatKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			r.logger.Debug("Snapshot slot empty", map[string]interface{}{
				"operation":   "snapshot_load",
				"storage_key": key,
				"redis_key":   r.formatKey(key),
			})
			return nil, fmt.Errorf("snapshot %s: %w", key, ErrSnapshotNotFound)
		}
		r.logger.Error("Failed to load snapshot from Redis", map[string]interface{}{
			"error":       err,
			"error_type":  fmt.Sprintf("%T", err),
			"storage_key": key,
			"redis_key":   r.formatKey(key),
		})
		return nil, fmt.Errorf("failed to load snapshot %s: %w", key, err)
	}

	r.logger.Debug("Snapshot loaded", map[string]interface{}{
		"operation":   "snapshot_load",
		"storage_key": key,
		"data_size":   len(data),
	})
	return data, nil
}

// Save stores a snapshot under key, replacing any previous one. Snapshots
// do not expire; durability is the point.
func (r *RedisSnapshotStore) Save(ctx context.Context, key string, data []byte) error {
	if err := r.client.Set(ctx, r.formatKey(key), data, 0).Err(); err != nil {
		r.logger.Error("Failed to save snapshot to Redis", map[string]interface{}{
			"error":       err,
			"error_type":  fmt.Sprintf("%T", err),
			"storage_key": key,
			"redis_key":   r.formatKey(key),
			"data_size":   len(data),
		})
		return fmt.Errorf("failed to save snapshot %s: %w", key, err)
	}

	r.logger.Debug("Snapshot saved", map[string]interface{}{
		"operation":   "snapshot_save",
		"storage_key": key,
		"data_size":   len(data),
	})
	return nil
}

// Delete removes the snapshot stored under key.
func (r *RedisSnapshotStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.formatKey(key)).Err(); err != nil {
		r.logger.Error("Failed to delete snapshot from Redis", map[string]interface{}{
			"error":       err,
			"error_type":  fmt.Sprintf("%T", err),
			"storage_key": key,
			"redis_key":   r.formatKey(key),
		})
		return fmt.Errorf("failed to delete snapshot %s: %w", key, err)
	}

	r.logger.Debug("Snapshot deleted", map[string]interface{}{
		"operation":   "snapshot_delete",
		"storage_key": key,
	})
	return nil
}

// Close closes the Redis connection.
func (r *RedisSnapshotStore) Close() error {
	err := r.client.Close()
	if err != nil {
		r.logger.Error("Failed to close Redis client", map[string]interface{}{
			"error":      err,
			"error_type": fmt.Sprintf("%T", err),
			"namespace":  r.namespace,
		})
	}
	return err
}

var _ SnapshotStore = (*RedisSnapshotStore)(nil)
