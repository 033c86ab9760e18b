package fsm

import "context"

// Attempt calls fn up to maxAttempts times and returns true on the first
// true result without calling fn again. It returns false only if every
// call returned false.
func Attempt(fn func() bool, maxAttempts int) bool {
	for i := 0; i < maxAttempts; i++ {
		if fn() {
			return true
		}
	}
	return false
}

// AttemptCtx is Attempt that also stops early once ctx is done. The attempt
// number (starting at 1) is passed to fn.
func AttemptCtx(ctx context.Context, maxAttempts int, fn func(attempt int) bool) bool {
	for i := 1; i <= maxAttempts; i++ {
		if ctx.Err() != nil {
			return false
		}
		if fn(i) {
			return true
		}
	}
	return false
}
