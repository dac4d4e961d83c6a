package runtime_test

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/runboxd/runbox/engine"
)

// stubEngine implements engine.Engine for registry tests without any real
// interpreter behind it.
type stubEngine struct {
	language string
	output   string
}

func (s *stubEngine) Language() string {
	return s.language
}

func (s *stubEngine) Execute(ctx context.Context, source string) engine.Result {
	return engine.Result{Output: s.output}
}

// countingFactory counts constructions and optionally blocks on gate until
// released, so tests can hold an acquisition in flight.
type countingFactory struct {
	language string
	calls    atomic.Int32
	gate     chan struct{}
	fail     atomic.Bool
}

func newCountingFactory(language string) *countingFactory {
	return &countingFactory{language: language}
}

func newBlockingFactory(language string) *countingFactory {
	return &countingFactory{language: language, gate: make(chan struct{})}
}

func (f *countingFactory) factory(ctx context.Context) (engine.Engine, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail.Load() {
		return nil, errors.New("construction failed")
	}
	return &stubEngine{language: f.language, output: "ok"}, nil
}

func (f *countingFactory) release() {
	close(f.gate)
}

// slowFactory sleeps past any configured acquire timeout.
type slowFactory struct {
	delay time.Duration
}

func (f *slowFactory) factory(ctx context.Context) (engine.Engine, error) {
	select {
	case <-time.After(f.delay):
		return &stubEngine{language: "slow"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
