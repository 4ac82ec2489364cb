// Package idempotency replays stored responses for requests that carry an
// Idempotency-Key header. This is part of the platform layer and contains
// no business logic.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "idem:"

// ErrInFlight is returned when another request holds the key.
var ErrInFlight = errors.New("request with this idempotency key is still in progress")

// Record is a stored response.
type Record struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

// Store keeps lock and response entries in Redis.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a Store. Entries expire after ttl.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// NewRedisClient parses a redis:// or rediss:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Lookup returns the stored record for key, or nil if none exists.
func (s *Store) Lookup(ctx context.Context, key string) (*Record, error) {
	raw, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	return &rec, nil
}

// Acquire takes the in-flight lock for key. It returns ErrInFlight if the
// lock is already held.
func (s *Store) Acquire(ctx context.Context, key string) error {
	ok, err := s.client.SetNX(ctx, keyPrefix+key+":lock", "1", s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrInFlight
	}
	return nil
}

// Release drops the in-flight lock for key.
func (s *Store) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, keyPrefix+key+":lock").Err()
}

// Save stores rec under key.
func (s *Store) Save(ctx context.Context, key string, rec Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, keyPrefix+key, raw, s.ttl).Err()
}
