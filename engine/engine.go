// Package engine defines the uniform contract every language runtime
// implements: execute source text, return output or an error.
package engine

import (
	"context"
	"errors"
	"time"
)

// ErrTimedOut marks an acquisition or execution that exceeded its configured
// deadline. Callers can distinguish it from ordinary failures with errors.Is.
var ErrTimedOut = errors.New("timed out")

// Result holds the output and metadata from one execution.
// Err is nil on success. Execution failures (compile errors, raised
// exceptions, unreachable services) are always reported here, never as a
// panic or a separate error path.
type Result struct {
	Output   string
	Duration time.Duration
	Err      error
}

// Engine executes source text for a single language.
// Implementations must be safe for concurrent Execute calls or serialize
// internally; the same Engine value is shared by every consumer.
type Engine interface {
	// Language returns the identifier this engine executes.
	Language() string

	// Execute runs source and returns its captured output or error.
	// It never panics across this boundary.
	Execute(ctx context.Context, source string) Result
}

// Factory constructs an Engine. Construction may be expensive (downloading an
// interpreter bundle, warming up a remote service); it runs at most once per
// language while its result is cached. A returned error is fatal for that
// attempt only.
type Factory func(ctx context.Context) (Engine, error)
