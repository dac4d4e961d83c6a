package editor

import (
	"context"
	"sync"
	"time"
)

// GateState enumerates the viewport gate lifecycle.
type GateState int

const (
	GateOffscreen GateState = iota
	GatePending
	GateMounted
	GateError
)

func (s GateState) String() string {
	switch s {
	case GateOffscreen:
		return "offscreen"
	case GatePending:
		return "pending"
	case GateMounted:
		return "mounted"
	case GateError:
		return "error"
	default:
		return "unknown"
	}
}

// DefaultDebounce is how long a container must stay in the viewport before
// the editor mounts. Scrolling past a block should not cost an editor.
const DefaultDebounce = 200 * time.Millisecond

// Gate defers editor construction until its container has been inside the
// viewport for a debounce interval. Callers feed it Enter/Leave visibility
// events (the intersection-observer side lives with the caller, including any
// lookahead margin).
//
// Once mounted, leaving the viewport never tears the editor down — that
// would lose in-progress edits — it only stops visibility notifications.
// A loader failure is terminal for the gate.
type Gate struct {
	loader   *Loader
	mount    func() error
	debounce time.Duration

	// onVisible, when set, receives visibility changes while mounted.
	onVisible func(visible bool)

	mu        sync.Mutex
	state     GateState
	err       error
	visible   bool
	committed bool
	timer     *time.Timer
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithDebounce overrides the mount debounce interval.
func WithDebounce(d time.Duration) GateOption {
	return func(g *Gate) {
		g.debounce = d
	}
}

// WithVisibilityFunc registers a callback for visibility changes after mount.
func WithVisibilityFunc(fn func(visible bool)) GateOption {
	return func(g *Gate) {
		g.onVisible = fn
	}
}

// NewGate creates a Gate. mount constructs the editor instance; it runs at
// most once, after the loader is ready.
func NewGate(loader *Loader, mount func() error, opts ...GateOption) *Gate {
	g := &Gate{
		loader:   loader,
		mount:    mount,
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Enter records that the container intersected the viewport. From offscreen
// it arms the debounce timer; the editor mounts only if Leave does not arrive
// first.
func (g *Gate) Enter() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.visible = true
	switch g.state {
	case GateOffscreen:
		g.state = GatePending
		g.timer = time.AfterFunc(g.debounce, g.tryMount)
	case GateMounted:
		if g.onVisible != nil {
			go g.onVisible(true)
		}
	}
}

// Leave records that the container left the viewport. A pending mount is
// cancelled; a mounted editor stays mounted.
func (g *Gate) Leave() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.visible = false
	switch g.state {
	case GatePending:
		// Cancellation window closes once the debounce has fired; a mount
		// already underway completes.
		if !g.committed {
			g.timer.Stop()
			g.timer = nil
			g.state = GateOffscreen
		}
	case GateMounted:
		if g.onVisible != nil {
			go g.onVisible(false)
		}
	}
}

// tryMount fires after the debounce. Only a still-pending gate proceeds to
// loading; a race with Leave resolves in Leave's favor because Leave already
// reset the state.
func (g *Gate) tryMount() {
	g.mu.Lock()
	if g.state != GatePending {
		g.mu.Unlock()
		return
	}
	g.committed = true
	g.mu.Unlock()

	err := g.loader.Init(context.Background())
	if err == nil && g.mount != nil {
		err = g.mount()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != GatePending {
		return
	}
	if err != nil {
		g.state = GateError
		g.err = err
		return
	}
	g.state = GateMounted
}

// State returns the current gate state.
func (g *Gate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Err returns the terminal error, if any.
func (g *Gate) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}
