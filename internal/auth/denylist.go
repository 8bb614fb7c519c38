package auth

import (
	"context"
	"time"
)

// Denylist records revoked token ids until the token would have expired anyway.
type Denylist interface {
	// Revoke reports true when tokenID was not already revoked.
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error)
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	// Release undoes a Revoke whose follow-up work failed.
	Release(ctx context.Context, tokenID string) error
}

// NopDenylist keeps tokens stateless: nothing is ever revoked.
type NopDenylist struct{}

func (NopDenylist) Revoke(context.Context, string, time.Time) (bool, error) { return true, nil }

func (NopDenylist) IsRevoked(context.Context, string) (bool, error) { return false, nil }

func (NopDenylist) Release(context.Context, string) error { return nil }
