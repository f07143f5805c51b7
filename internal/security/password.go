package security

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// dummyPlain is hashed when the Hasher is built and compared against when a
// login names an unknown email, so both paths cost one bcrypt comparison.
const dummyPlain = "taskhub-dummy-password"

// Hasher hashes and verifies passwords with bcrypt. Work is bounded by a
// weighted semaphore so a burst of logins queues instead of pinning every CPU.
type Hasher struct {
	cost    int
	sem     *semaphore.Weighted
	observe func(op string, d time.Duration)

	dummyHash []byte
}

type HasherOption func(*Hasher)

// WithObserver registers a callback receiving the duration of each hash or
// compare.
func WithObserver(fn func(op string, d time.Duration)) HasherOption {
	return func(h *Hasher) { h.observe = fn }
}

func NewHasher(cost int, concurrency int, opts ...HasherOption) (*Hasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d,%d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}

	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}

	h := &Hasher{
		cost: cost,
		sem:  semaphore.NewWeighted(int64(concurrency)),
	}

	for _, opt := range opts {
		opt(h)
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte(dummyPlain), cost)
	if err != nil {
		return nil, fmt.Errorf("hash dummy password: %w", err)
	}
	h.dummyHash = dummy

	return h, nil
}

// Hash returns the bcrypt hash of plain.
func (h *Hasher) Hash(ctx context.Context, plain string) (string, error) {
	if err := h.acquire(ctx); err != nil {
		return "", err
	}
	defer h.sem.Release(1)

	start := time.Now()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	h.record("hash", start)

	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	return string(hash), nil
}

// Verify reports whether plain matches hash. A mismatch is (false, nil); a
// hash that cannot be parsed is an error.
func (h *Hasher) Verify(ctx context.Context, plain, hash string) (bool, error) {
	if err := h.acquire(ctx); err != nil {
		return false, err
	}
	defer h.sem.Release(1)

	start := time.Now()
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	h.record("verify", start)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("verify password: %w", err)
	}
}

// VerifyDummy spends one comparison against a fixed hash. The result is
// always discarded.
func (h *Hasher) VerifyDummy(ctx context.Context, plain string) {
	_, _ = h.Verify(ctx, plain, string(h.dummyHash))
}

func (h *Hasher) acquire(ctx context.Context) error {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("password worker pool: %w", err)
	}
	return nil
}

func (h *Hasher) record(op string, start time.Time) {
	if h.observe != nil {
		h.observe(op, time.Since(start))
	}
}
