// Package runtime memoizes one execution engine per language and coordinates
// concurrent acquisition.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/runboxd/runbox/engine"
	"github.com/runboxd/runbox/internal/logger"
)

// ErrUnknownLanguage is returned by Acquire for a language that has no
// registered factory.
var ErrUnknownLanguage = errors.New("unknown language")

// Registry caches at most one engine (or one in-flight construction) per
// language. It is constructed explicitly and shared by reference; there is no
// package-level instance.
type Registry struct {
	mu        sync.Mutex
	factories map[string]engine.Factory
	entries   map[string]*entry
	subs      map[string][]*subscription

	acquireTimeout time.Duration
}

// entry tracks one acquisition attempt. done is closed exactly once, after
// eng/err are set. Failed entries are removed from the registry map before
// done closes, so the map only ever holds pending or ready entries.
type entry struct {
	done chan struct{}
	eng  engine.Engine
	err  error
}

type subscription struct {
	fn      func(engine.Engine)
	removed bool
}

// New creates an empty Registry.
func New(opts ...RegistryOption) *Registry {
	r := &Registry{
		factories: make(map[string]engine.Factory),
		entries:   make(map[string]*entry),
		subs:      make(map[string][]*subscription),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register installs the factory for a language, replacing any previous one.
// Replacing a factory does not evict an already cached engine.
func (r *Registry) Register(language string, f engine.Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[language] = f
}

// Languages returns the registered language identifiers, sorted.
func (r *Registry) Languages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.factories))
	for lang := range r.factories {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

// Acquire returns the cached engine for language, starting construction on
// first use. The pending entry is installed before Acquire ever blocks, so
// concurrent calls share a single construction and resolve to the same
// engine value.
//
// A failed construction clears the cache entry; the error reaches only the
// callers waiting on that attempt, and the next Acquire retries from scratch.
// Cancelling ctx abandons the wait but not the construction: the engine still
// lands in the cache for future consumers.
func (r *Registry) Acquire(ctx context.Context, language string) (engine.Engine, error) {
	r.mu.Lock()
	f, ok := r.factories[language]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownLanguage, language)
	}

	e, ok := r.entries[language]
	if !ok {
		e = &entry{done: make(chan struct{})}
		r.entries[language] = e
		go r.construct(ctx, language, f, e)
	}
	r.mu.Unlock()

	select {
	case <-e.done:
		return e.eng, e.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// construct runs the factory and publishes its outcome. It deliberately does
// not inherit the caller's cancellation: the first caller going away must not
// abort a load that later callers will share.
func (r *Registry) construct(callerCtx context.Context, language string, f engine.Factory, e *entry) {
	log := logger.G(callerCtx).WithField("language", language)

	ctx := context.Background()
	if r.acquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.acquireTimeout)
		defer cancel()
	}

	eng, err := f(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("acquire %s: %w", language, engine.ErrTimedOut)
	}

	var fire []*subscription
	r.mu.Lock()
	if err != nil {
		// Clear the entry so a later Acquire retries instead of replaying
		// this failure. Subscribers are not notified of failures.
		delete(r.entries, language)
		e.err = err
	} else {
		e.eng = eng
		fire = append(fire, r.subs[language]...)
		r.subs[language] = nil
	}
	close(e.done)
	r.mu.Unlock()

	if err != nil {
		log.WithError(err).Warn("engine acquisition failed")
		return
	}

	log.Debug("engine ready")
	for _, s := range fire {
		r.fire(s, eng)
	}
}

// fire invokes one subscriber unless it was unsubscribed between snapshot and
// delivery.
func (r *Registry) fire(s *subscription, eng engine.Engine) {
	r.mu.Lock()
	removed := s.removed
	s.removed = true
	r.mu.Unlock()

	if !removed {
		s.fn(eng)
	}
}

// Subscribe registers fn to be called exactly once when the language's engine
// becomes ready. If it already is, fn runs immediately on the calling
// goroutine. The returned unsubscribe is idempotent and prevents any future
// delivery.
func (r *Registry) Subscribe(language string, fn func(engine.Engine)) (unsubscribe func()) {
	r.mu.Lock()
	if e, ok := r.entries[language]; ok {
		select {
		case <-e.done:
			eng := e.eng
			r.mu.Unlock()
			fn(eng)
			return func() {}
		default:
		}
	}

	s := &subscription{fn: fn}
	r.subs[language] = append(r.subs[language], s)
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if s.removed {
			return
		}
		s.removed = true
		subs := r.subs[language]
		for i, cur := range subs {
			if cur == s {
				r.subs[language] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// IsLoading reports whether an acquisition for language is in flight.
func (r *Registry) IsLoading(language string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[language]
	if !ok {
		return false
	}
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

// IsReady reports whether an engine for language is cached.
func (r *Registry) IsReady(language string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[language]
	if !ok {
		return false
	}
	select {
	case <-e.done:
		return e.err == nil
	default:
		return false
	}
}
