// Package tokencache shares Daraja access tokens between service instances.
package tokencache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrJamesThe3rd/stkpush/internal/daraja"
)

var _ daraja.TokenCache = (*Redis)(nil)

type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis scopes the cache entry to consumerKey so different credentials never share a token.
func NewRedis(client *redis.Client, consumerKey string) *Redis {
	return &Redis{client: client, key: Key(consumerKey)}
}

// Key returns the cache key used for consumerKey.
func Key(consumerKey string) string {
	sum := sha256.Sum256([]byte(consumerKey))
	return "daraja:token:" + hex.EncodeToString(sum[:8])
}

func (r *Redis) Get(ctx context.Context) (string, bool, error) {
	val, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("getting token: %w", err)
	}

	return val, val != "", nil
}

func (r *Redis) Set(ctx context.Context, token string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.key, token, ttl).Err(); err != nil {
		return fmt.Errorf("setting token: %w", err)
	}

	return nil
}

func (r *Redis) Delete(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("deleting token: %w", err)
	}

	return nil
}
