package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/frahmantamala/authcore/internal/auth"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "authcore:revoked:"

// minTTL applies to tokens already at or past their expiry.
const minTTL = time.Second

// Denylist stores revoked token ids in redis until the token's own expiry.
type Denylist struct {
	client goredis.UniversalClient
	now    func() time.Time
}

var _ auth.Denylist = (*Denylist)(nil)

func NewDenylist(client goredis.UniversalClient) *Denylist {
	return &Denylist{client: client, now: time.Now}
}

func (d *Denylist) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error) {
	if tokenID == "" {
		return false, fmt.Errorf("revoke: empty token id")
	}
	ttl := expiresAt.Sub(d.now())
	if ttl < minTTL {
		ttl = minTTL
	}
	ok, err := d.client.SetNX(ctx, keyPrefix+tokenID, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis_revoke_failed: %w", err)
	}
	return ok, nil
}

func (d *Denylist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	n, err := d.client.Exists(ctx, keyPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("redis_is_revoked_failed: %w", err)
	}
	return n > 0, nil
}

func (d *Denylist) Release(ctx context.Context, tokenID string) error {
	if tokenID == "" {
		return nil
	}
	if err := d.client.Del(ctx, keyPrefix+tokenID).Err(); err != nil {
		return fmt.Errorf("redis_release_failed: %w", err)
	}
	return nil
}

// NewClient parses a redis URL and verifies connectivity.
func NewClient(ctx context.Context, redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid URL: %w", err)
	}
	opts.DialTimeout = 3 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second

	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping failed: %w", err)
	}
	return client, nil
}
