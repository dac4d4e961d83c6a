// Package orchestrator wires user-initiated run actions to the runtime
// registry and tracks per-language execution state.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/runboxd/runbox/internal/logger"
	"github.com/runboxd/runbox/runtime"
)

// CodeBlock is one runnable snippet extracted from page content. Blocks are
// immutable inputs; the orchestrator never mutates or owns them.
type CodeBlock struct {
	Language string
	Source   string
}

// RunState is the per-language view a renderer consumes.
type RunState struct {
	// Loading is true while the language's engine is being acquired.
	Loading bool
	// Running is true while an execution is in flight.
	Running bool
	// Output holds the last completed run's output.
	Output string
	// Err holds the last completed run's error, nil on success.
	Err error
}

// Orchestrator coordinates runs for the code blocks of one page. It tracks a
// primary language and an optional secondary for comparison mode.
//
// Overlapping runs for the same language are deliberately not deduplicated;
// whichever finishes last owns the displayed state.
type Orchestrator struct {
	registry *runtime.Registry
	blocks   []CodeBlock

	mu        sync.Mutex
	primary   string
	secondary string
	states    map[string]RunState
	onChange  func(language string, s RunState)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSecondary enables comparison mode against a second language.
func WithSecondary(language string) Option {
	return func(o *Orchestrator) {
		o.secondary = language
	}
}

// WithChangeFunc registers the render callback invoked on every state
// transition.
func WithChangeFunc(fn func(language string, s RunState)) Option {
	return func(o *Orchestrator) {
		o.onChange = fn
	}
}

// New creates an Orchestrator for blocks. The primary language defaults to
// the first block's.
func New(registry *runtime.Registry, blocks []CodeBlock, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		blocks:   blocks,
		states:   make(map[string]RunState),
	}
	if len(blocks) > 0 {
		o.primary = blocks[0].Language
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Primary returns the primary language.
func (o *Orchestrator) Primary() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.primary
}

// SetSecondary switches the comparison language at runtime.
func (o *Orchestrator) SetSecondary(language string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.secondary = language
}

// Blocks returns the page's code blocks.
func (o *Orchestrator) Blocks() []CodeBlock {
	return o.blocks
}

// State returns the current view for a language.
func (o *Orchestrator) State(language string) RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.states[language]
}

// RunBlock executes the indexed block under its own language.
func (o *Orchestrator) RunBlock(ctx context.Context, index int) RunState {
	if index < 0 || index >= len(o.blocks) {
		return o.fail("", fmt.Errorf("no code block at index %d", index))
	}
	b := o.blocks[index]
	return o.Run(ctx, b.Language, b.Source)
}

// RunComparison executes the indexed block's source under both the primary
// and secondary languages, returning both states keyed by language.
func (o *Orchestrator) RunComparison(ctx context.Context, index int) map[string]RunState {
	if index < 0 || index >= len(o.blocks) {
		return nil
	}
	source := o.blocks[index].Source

	o.mu.Lock()
	langs := []string{o.primary}
	if o.secondary != "" && o.secondary != o.primary {
		langs = append(langs, o.secondary)
	}
	o.mu.Unlock()

	out := make(map[string]RunState, len(langs))
	for _, lang := range langs {
		out[lang] = o.Run(ctx, lang, source)
	}
	return out
}

// Run acquires the language's engine if needed and executes source. Failures
// never escape as errors: acquisition and execution problems both land in the
// returned state, and the UI worst case is an error panel, not a crash.
func (o *Orchestrator) Run(ctx context.Context, language, source string) RunState {
	runID := uuid.NewString()
	log := logger.G(ctx).WithField("run_id", runID).WithField("language", language)

	if !o.registry.IsReady(language) {
		o.update(language, func(s *RunState) {
			s.Loading = true
		})
		log.Debug("engine not cached, acquiring")
	}

	eng, err := o.registry.Acquire(ctx, language)
	if err != nil {
		log.WithError(err).Warn("acquisition failed")
		return o.fail(language, err)
	}

	o.update(language, func(s *RunState) {
		s.Loading = false
		s.Running = true
	})

	result := eng.Execute(ctx, source)
	log.WithField("duration", result.Duration).Debug("run finished")

	// Output and error replace the previous display atomically.
	return o.update(language, func(s *RunState) {
		s.Running = false
		s.Output = result.Output
		s.Err = result.Err
	})
}

func (o *Orchestrator) fail(language string, err error) RunState {
	return o.update(language, func(s *RunState) {
		s.Loading = false
		s.Running = false
		s.Output = ""
		s.Err = err
	})
}

// update applies fn under the state lock and notifies the renderer outside
// of it.
func (o *Orchestrator) update(language string, fn func(*RunState)) RunState {
	o.mu.Lock()
	s := o.states[language]
	fn(&s)
	o.states[language] = s
	onChange := o.onChange
	o.mu.Unlock()

	if onChange != nil {
		onChange(language, s)
	}
	return s
}
