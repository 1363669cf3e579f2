package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tedxreg/registration/config"
)

const pendingMarker = "pending"

// IdempotencyStore remembers which order an Idempotency-Key produced.
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
}

func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{client: client, ttl: ttl}
}

// Reserve claims key for a new order. When the key is already taken it returns
// the stored order id, or "" while the first request is still in flight.
func (s *IdempotencyStore) Reserve(ctx context.Context, key string) (reserved bool, orderID string, err error) {
	ok, err := s.client.SetNX(ctx, orderKey(key), pendingMarker, s.ttl).Result()
	if err != nil {
		return false, "", err
	}
	if ok {
		return true, "", nil
	}
	orderID, err = s.Lookup(ctx, key)
	return false, orderID, err
}

func (s *IdempotencyStore) Complete(ctx context.Context, key, orderID string) error {
	return s.client.Set(ctx, orderKey(key), orderID, s.ttl).Err()
}

// Lookup returns "" when key is unknown or still pending.
func (s *IdempotencyStore) Lookup(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, orderKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	if v == pendingMarker {
		return "", nil
	}
	return v, nil
}

// Release drops a reservation so a failed attempt can be retried with the same key.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, orderKey(key)).Err()
}

func (s *IdempotencyStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func orderKey(key string) string {
	return "idem:order:" + strings.TrimSpace(key)
}
