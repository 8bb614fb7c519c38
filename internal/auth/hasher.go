package auth

import (
	"context"

	"github.com/frahmantamala/authcore/internal"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

// BcryptHasher hashes passwords with a work factor fixed at construction.
// When maxConcurrent is positive, at most that many bcrypt computations run at
// once; further callers block until a slot frees up.
type BcryptHasher struct {
	cost    int
	slots   *semaphore.Weighted
	metrics *Metrics
}

func NewBcryptHasher(cost, maxConcurrent int, metrics *Metrics) *BcryptHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	h := &BcryptHasher{cost: cost, metrics: metrics}
	if maxConcurrent > 0 {
		h.slots = semaphore.NewWeighted(int64(maxConcurrent))
	}
	return h
}

func (h *BcryptHasher) Cost() int { return h.cost }

func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	defer h.acquire()()
	defer h.metrics.timeHash("hash")()

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", internal.NewHashingError(err)
	}
	return string(hash), nil
}

// Verify never errors: a mismatch and a malformed stored hash both yield false.
func (h *BcryptHasher) Verify(plaintext, hash string) bool {
	if hash == "" {
		return false
	}
	defer h.acquire()()
	defer h.metrics.timeHash("verify")()

	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

func (h *BcryptHasher) acquire() func() {
	if h.slots == nil {
		return func() {}
	}
	// Acquire only fails on a cancelled context.
	_ = h.slots.Acquire(context.Background(), 1)
	return func() { h.slots.Release(1) }
}
