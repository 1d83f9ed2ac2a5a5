package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisRegistry implements Registry using Redis, for deployments where
// several worker processes share one view of key residency.
type RedisRegistry struct {
	client    *redis.Client
	indexKey  string
	recPrefix string
}

// NewRedisRegistry creates a Redis-backed registry under the given namespace.
func NewRedisRegistry(cfg RedisConfig, namespace string) (*RedisRegistry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisRegistry{
		client:    client,
		indexKey:  namespace + ":keys",
		recPrefix: namespace + ":key:",
	}, nil
}

func (r *RedisRegistry) Put(ctx context.Context, rec *Record) error {
	added, err := r.client.SAdd(ctx, r.indexKey, rec.KeyID).Result()
	if err != nil {
		return fmt.Errorf("register key %s: %w", rec.KeyID, err)
	}
	if added == 0 {
		return ErrExists
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", rec.KeyID, err)
	}

	if err := r.client.Set(ctx, r.recPrefix+rec.KeyID, data, 0).Err(); err != nil {
		r.client.SRem(ctx, r.indexKey, rec.KeyID)
		return fmt.Errorf("store record %s: %w", rec.KeyID, err)
	}
	return nil
}

func (r *RedisRegistry) Get(ctx context.Context, keyID string) (*Record, error) {
	data, err := r.client.Get(ctx, r.recPrefix+keyID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load record %s: %w", keyID, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record %s: %w", keyID, err)
	}
	return &rec, nil
}

func (r *RedisRegistry) Delete(ctx context.Context, keyID string) error {
	removed, err := r.client.SRem(ctx, r.indexKey, keyID).Result()
	if err != nil {
		return fmt.Errorf("unregister key %s: %w", keyID, err)
	}
	if removed == 0 {
		return ErrNotFound
	}

	if err := r.client.Del(ctx, r.recPrefix+keyID).Err(); err != nil {
		return fmt.Errorf("delete record %s: %w", keyID, err)
	}
	return nil
}

func (r *RedisRegistry) List(ctx context.Context) ([]string, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return ids, nil
}

func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
