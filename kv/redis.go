package kv

import (
	"errors"
	"fmt"

	"github.com/go-redis/redis/v7"
)

// RedisStore persists values in Redis under "<namespace>:<key>".
type RedisStore struct {
	client    *redis.Client
	namespace string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects and pings the server.
func NewRedisStore(addr, password string, db int, namespace string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping().Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{client: client, namespace: namespace}, nil
}

func (r *RedisStore) key(k string) string {
	return r.namespace + ":" + k
}

func (r *RedisStore) Get(key string) (string, error) {
	v, err := r.client.Get(r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return v, err
}

// Set stores the value without expiry; token lifetime is the provider's concern.
func (r *RedisStore) Set(key, value string) error {
	return r.client.Set(r.key(key), value, 0).Err()
}

func (r *RedisStore) Delete(key string) error {
	return r.client.Del(r.key(key)).Err()
}

// Close closes the connection pool.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
