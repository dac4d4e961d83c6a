// Package tengo executes Tengo scripts on the host's own scripting engine.
//
// Unlike the interpreter and remote families, construction is effectively
// free: the engine is the process itself. Print output is captured by
// pointing the engine's sink at a per-run buffer for the duration of the
// evaluation and restoring it afterwards.
package tengo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	tengolib "github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"

	"github.com/runboxd/runbox/engine"
)

// NewFactory returns an engine.Factory for the native scripting engine.
func NewFactory() engine.Factory {
	return func(ctx context.Context) (engine.Engine, error) {
		return newEngine(), nil
	}
}

// Engine evaluates Tengo source synchronously. Executions are serialized
// because the print sink is engine-wide state.
type Engine struct {
	mu      sync.Mutex
	sink    io.Writer
	modules *tengolib.ModuleMap
}

func newEngine() *Engine {
	e := &Engine{sink: io.Discard}

	// Safe stdlib subset only: no os, no exec. fmt is replaced with a
	// capture-aware variant writing to the engine sink.
	mm := stdlib.GetModuleMap("math", "text", "times", "rand", "json", "enum")
	mm.AddBuiltinModule("fmt", e.fmtModule())
	e.modules = mm

	return e
}

// Language returns "tengo".
func (e *Engine) Language() string {
	return "tengo"
}

// Execute redirects the print sink into a buffer, evaluates source, restores
// the sink, and returns the captured output or the evaluation error.
func (e *Engine) Execute(ctx context.Context, source string) engine.Result {
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	var buf bytes.Buffer
	prev := e.sink
	e.sink = &buf
	defer func() { e.sink = prev }()

	script := tengolib.NewScript([]byte(source))
	script.SetImports(e.modules)

	compiled, err := script.Compile()
	if err != nil {
		return engine.Result{Duration: time.Since(start), Err: err}
	}

	if err := compiled.RunContext(ctx); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("execution: %w", engine.ErrTimedOut)
		}
		return engine.Result{Duration: time.Since(start), Err: err}
	}

	return engine.Result{Output: buf.String(), Duration: time.Since(start)}
}

func (e *Engine) fmtModule() map[string]tengolib.Object {
	return map[string]tengolib.Object{
		"print": &tengolib.UserFunction{
			Name:  "print",
			Value: e.printFunc(""),
		},
		"println": &tengolib.UserFunction{
			Name:  "println",
			Value: e.printFunc("\n"),
		},
		"printf": &tengolib.UserFunction{
			Name:  "printf",
			Value: e.printfFunc,
		},
	}
}

func (e *Engine) printFunc(suffix string) tengolib.CallableFunc {
	return func(args ...tengolib.Object) (tengolib.Object, error) {
		for i, arg := range args {
			if i > 0 {
				io.WriteString(e.sink, " ")
			}
			io.WriteString(e.sink, objectText(arg))
		}
		io.WriteString(e.sink, suffix)
		return tengolib.UndefinedValue, nil
	}
}

func (e *Engine) printfFunc(args ...tengolib.Object) (tengolib.Object, error) {
	if len(args) == 0 {
		return nil, tengolib.ErrWrongNumArguments
	}
	format, ok := tengolib.ToString(args[0])
	if !ok {
		return nil, tengolib.ErrInvalidArgumentType{Name: "format", Expected: "string"}
	}

	rest := make([]any, 0, len(args)-1)
	for _, arg := range args[1:] {
		rest = append(rest, tengolib.ToInterface(arg))
	}
	fmt.Fprintf(e.sink, format, rest...)
	return tengolib.UndefinedValue, nil
}

func objectText(o tengolib.Object) string {
	if s, ok := tengolib.ToString(o); ok {
		return s
	}
	return o.String()
}
