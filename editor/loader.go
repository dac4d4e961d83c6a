// Package editor manages the lazy-loaded text-editing widget: a process-wide
// loader for its engine bundle and a viewport gate that defers constructing
// editor instances until they are about to become visible.
package editor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/runboxd/runbox/cdn"
	"github.com/runboxd/runbox/internal/logger"
)

// State enumerates the loader lifecycle.
type State int

const (
	StateUnstarted State = iota
	StateLoading
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Loader downloads the editor widget engine exactly once per process.
// Construct one and share it; every Gate gets a reference to the same
// Loader. There is no downgrade from ready, and the hardcoded fallback URL
// is attempted at most once per process lifetime.
type Loader struct {
	resolver    *cdn.Resolver
	mirrors     []string
	fallbackURL string
	dir         string

	mu           sync.Mutex
	state        State
	err          error
	path         string
	fallbackUsed bool
	inflight     chan struct{}
	subs         []*loaderSub
}

type loaderSub struct {
	fn      func()
	removed bool
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithResolver overrides the CDN resolver.
func WithResolver(r *cdn.Resolver) LoaderOption {
	return func(l *Loader) {
		l.resolver = r
	}
}

// WithFallbackURL sets the hardcoded URL tried once when every mirror fails.
func WithFallbackURL(url string) LoaderOption {
	return func(l *Loader) {
		l.fallbackURL = url
	}
}

// NewLoader creates a Loader fetching the widget engine bundle from mirrors
// into dir.
func NewLoader(mirrors []string, dir string, opts ...LoaderOption) *Loader {
	l := &Loader{
		resolver: cdn.New(),
		mirrors:  mirrors,
		dir:      dir,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Init loads the widget engine. It is idempotent: the first call performs the
// load, concurrent calls await the same attempt, and calls after success
// return immediately. A failed load is terminal for the process.
func (l *Loader) Init(ctx context.Context) error {
	l.mu.Lock()
	switch l.state {
	case StateReady:
		l.mu.Unlock()
		return nil
	case StateError:
		err := l.err
		l.mu.Unlock()
		return err
	case StateLoading:
		wait := l.inflight
		l.mu.Unlock()
		select {
		case <-wait:
			return l.Err()
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	l.state = StateLoading
	l.inflight = make(chan struct{})
	l.mu.Unlock()

	path, err := l.load(ctx)

	l.mu.Lock()
	var fire []*loaderSub
	if err != nil {
		l.state = StateError
		l.err = err
	} else {
		l.state = StateReady
		l.path = path
		fire = append(fire, l.subs...)
		l.subs = nil
	}
	close(l.inflight)
	l.mu.Unlock()

	if err != nil {
		logger.G(ctx).WithError(err).Error("editor engine load failed")
		return err
	}

	for _, s := range fire {
		l.fireSub(s)
	}
	return nil
}

// load resolves a mirror and downloads the bundle, falling back once to the
// hardcoded URL when the mirror path fails.
func (l *Loader) load(ctx context.Context) (string, error) {
	url, err := l.resolver.Resolve(ctx, l.mirrors)
	if err == nil {
		path := l.destination(url)
		err = l.resolver.Download(ctx, url, path)
		if err == nil {
			return l.verify(path)
		}
	}

	l.mu.Lock()
	canFallback := l.fallbackURL != "" && !l.fallbackUsed
	l.fallbackUsed = true
	l.mu.Unlock()

	if !canFallback {
		return "", fmt.Errorf("load editor engine: %w", err)
	}

	logger.G(ctx).WithError(err).Warn("editor mirrors failed, trying fallback url")
	path := l.destination(l.fallbackURL)
	if fbErr := l.resolver.Download(ctx, l.fallbackURL, path); fbErr != nil {
		return "", fmt.Errorf("load editor engine (fallback): %w", fbErr)
	}
	return l.verify(path)
}

func (l *Loader) destination(url string) string {
	name := filepath.Base(url)
	if name == "." || name == "/" || name == "" {
		name = "editor-engine"
	}
	return filepath.Join(l.dir, name)
}

func (l *Loader) verify(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("editor engine bundle %s is empty", path)
	}
	return path, nil
}

// Subscribe registers fn to run once when the loader reaches ready, or
// immediately if it already has. The returned unsubscribe is idempotent.
func (l *Loader) Subscribe(fn func()) (unsubscribe func()) {
	l.mu.Lock()
	if l.state == StateReady {
		l.mu.Unlock()
		fn()
		return func() {}
	}

	s := &loaderSub{fn: fn}
	l.subs = append(l.subs, s)
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if s.removed {
			return
		}
		s.removed = true
		for i, cur := range l.subs {
			if cur == s {
				l.subs = append(l.subs[:i], l.subs[i+1:]...)
				break
			}
		}
	}
}

func (l *Loader) fireSub(s *loaderSub) {
	l.mu.Lock()
	removed := s.removed
	s.removed = true
	l.mu.Unlock()

	if !removed {
		s.fn()
	}
}

// State returns the current lifecycle state.
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Err returns the terminal load error, if any.
func (l *Loader) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Path returns the downloaded bundle path once ready.
func (l *Loader) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}
