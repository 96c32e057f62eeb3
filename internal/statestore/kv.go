// ==============================================================================
// KEY-VALUE BACKEND - internal/statestore/kv.go
// ==============================================================================
package statestore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrKeyNotFound is returned by Get when the key does not exist or has expired.
	ErrKeyNotFound = errors.New("key not found")
	// ErrUpdateConflict is returned when an atomic update loses the race too many times.
	ErrUpdateConflict = errors.New("concurrent update conflict")
)

const maxUpdateRetries = 5

// KV is the narrow contract the state store needs from its backing store:
// TTL-bounded writes, an atomic set-if-absent, and an atomic per-key
// read-modify-write. Any store offering those primitives can replace Redis.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	// Update applies fn atomically to the current value of key. fn receives
	// nil when the key is absent; the value fn returns is stored with ttl.
	Update(ctx context.Context, key string, ttl time.Duration, fn func(current []byte) ([]byte, error)) error
}

// RedisKV backs the state store with a shared Redis instance.
type RedisKV struct {
	client *redis.Client
}

func NewRedisKV(addr, password string, db int) (*RedisKV, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}

	return &RedisKV{client: client}, nil
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrKeyNotFound
	}
	return data, err
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisKV) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, value, ttl).Result()
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Update runs an optimistic WATCH transaction so a concurrent full-value
// replacement cannot drop this mutation.
func (r *RedisKV) Update(ctx context.Context, key string, ttl time.Duration, fn func(current []byte) ([]byte, error)) error {
	txn := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			current = nil
		} else if err != nil {
			return err
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := r.client.Watch(ctx, txn, key)
		if err == nil {
			return nil
		}
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
	return ErrUpdateConflict
}

func (r *RedisKV) Close() error {
	return r.client.Close()
}

// Client exposes the underlying Redis client for middleware that works with
// *redis.Client directly (rate limiting).
func (r *RedisKV) Client() *redis.Client {
	return r.client
}
