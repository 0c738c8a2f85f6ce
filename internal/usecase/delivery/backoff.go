package delivery

import (
	"math/rand"
	"sync"
	"time"
)

// Backoff tuning. Delays grow exponentially from the base, carry positive
// jitter to spread retry bursts, and are clamped to [min, max].
const (
	backoffBase   = 60 * time.Second
	backoffMin    = 30 * time.Second
	backoffMax    = 600 * time.Second
	jitterFactor  = 0.5
	maxShiftIndex = 16 // 60s << 16 already exceeds the clamp by orders of magnitude
)

// Backoff computes retry delays: clamp(base*2^n + jitter, min, max) where n
// is the zero-indexed retry counter and jitter is uniform in [0, 0.5*base*2^n].
// Safe for concurrent use.
type Backoff struct {
	mu   sync.Mutex
	rand *rand.Rand
}

// NewBackoff returns a Backoff seeded from the current time.
func NewBackoff() *Backoff {
	return NewBackoffWithSource(rand.NewSource(time.Now().UnixNano()))
}

// NewBackoffWithSource returns a Backoff using the given source.
// Deterministic sources are intended for tests.
func NewBackoffWithSource(src rand.Source) *Backoff {
	return &Backoff{rand: rand.New(src)}
}

// Delay returns the wait before retry attempt retryIndex (zero-indexed: the
// first retry after the initial attempt has index 0).
func (b *Backoff) Delay(retryIndex int) time.Duration {
	if retryIndex < 0 {
		retryIndex = 0
	}
	if retryIndex > maxShiftIndex {
		return backoffMax
	}

	raw := backoffBase << uint(retryIndex)

	b.mu.Lock()
	jitter := time.Duration(b.rand.Float64() * jitterFactor * float64(raw))
	b.mu.Unlock()

	delay := raw + jitter
	if delay < backoffMin {
		return backoffMin
	}
	if delay > backoffMax {
		return backoffMax
	}
	return delay
}
