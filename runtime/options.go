package runtime

import "time"

// RegistryOption configures a Registry at creation time.
type RegistryOption func(*Registry)

// WithAcquireTimeout bounds each engine construction. An attempt that exceeds
// the deadline fails with engine.ErrTimedOut and is cleared for retry.
// Zero means no limit.
func WithAcquireTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.acquireTimeout = d
	}
}
