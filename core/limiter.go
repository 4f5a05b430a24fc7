package core

import (
	"fmt"
	"sync"
)

// ModelLimiter enforces a maximum number of model calls per run.
type ModelLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewModelLimiter creates a new limiter with a max number of calls.
// If max == 0, unlimited calls are allowed.
func NewModelLimiter(max int) *ModelLimiter {
	return &ModelLimiter{max: max}
}

// Acquire reserves one call. Once the budget is spent it returns an error
// wrapping ErrModelCallLimit and leaves the counter unchanged.
func (ml *ModelLimiter) Acquire() error {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	if ml.max > 0 && ml.count >= ml.max {
		return fmt.Errorf("%w: %d", ErrModelCallLimit, ml.max)
	}

	ml.count++

	return nil
}

// Count returns the number of calls made.
func (ml *ModelLimiter) Count() int {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	return ml.count
}

// Remaining returns how many calls are left, or -1 when unlimited.
func (ml *ModelLimiter) Remaining() int {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	if ml.max == 0 {
		return -1
	}

	return ml.max - ml.count
}
