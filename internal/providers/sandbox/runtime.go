package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/bridge"
	"github.com/GriffinCanCode/AgentOS/userscripts/internal/domain/dispatch"
)

var (
	ErrInterrupted = errors.New("script interrupted")
	ErrClosed      = errors.New("runtime is closed")
)

// Runtime wraps a goja VM with security controls. A runtime runs one
// script at a time and starts every run from fresh globals.
type Runtime struct {
	vm     *goja.Runtime
	config Config
	mu     sync.Mutex

	console   []LogEntry
	consoleMu sync.Mutex

	timers   map[int64]bool
	nextTime int64
}

// New creates a new sandboxed runtime
func New(config Config) (*Runtime, error) {
	r := &Runtime{config: config}
	if err := r.reset(); err != nil {
		return nil, err
	}
	return r, nil
}

// Run executes an injection: its @require bodies in order, then the script
// body, then every callback its bridge calls queued, one per turn. It stops
// at the first exception, on timeout or when ctx is done.
func (r *Runtime) Run(ctx context.Context, h *bridge.Handle, inj dispatch.Injection) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.vm == nil {
		return nil, ErrClosed
	}

	r.vm.ClearInterrupt()
	start := time.Now()
	result := &Result{ScriptID: inj.Script.ID, Name: inj.Script.Name}

	runCtx := ctx
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	if err := r.bind(runCtx, h); err != nil {
		return nil, fmt.Errorf("failed to bind bridge: %w", err)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-runCtx.Done():
			r.vm.Interrupt(runCtx.Err())
		case <-done:
		}
	}()

	err := r.execute(runCtx, h, inj, result)

	result.Duration = time.Since(start)
	r.consoleMu.Lock()
	result.Console = append([]LogEntry(nil), r.console...)
	r.consoleMu.Unlock()

	if err != nil {
		result.Error = err
		return result, err
	}
	return result, nil
}

func (r *Runtime) execute(ctx context.Context, h *bridge.Handle, inj dispatch.Injection, result *Result) error {
	for _, res := range inj.Resources {
		if _, err := r.vm.RunScript(res.URL, string(res.Body)); err != nil {
			return fmt.Errorf("@require %s: %w", res.URL, classify(err))
		}
	}

	// Userscripts run in their own function scope so a top-level return
	// ends the script.
	code := "(function () {\n" + inj.Script.Code + "\n})();"
	if _, err := r.vm.RunScript(inj.Script.Name+".user.js", code); err != nil {
		return classify(err)
	}

	turns := h.Turns()
	for {
		fn, ok := turns.Next(ctx)
		if !ok {
			break
		}
		result.Turns++
		if err := r.turn(fn); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInterrupted, err)
	}
	return nil
}

// turn runs one queued callback, converting a JavaScript exception thrown
// inside it into an error.
func (r *Runtime) turn(fn func()) (err error) {
	defer func() {
		if p := recover(); p != nil {
			if e, ok := p.(error); ok {
				err = classify(e)
				return
			}
			if v, ok := p.(goja.Value); ok {
				err = fmt.Errorf("uncaught exception: %s", v.String())
				return
			}
			panic(p)
		}
	}()
	fn()
	return nil
}

// call invokes a script callback from a turn, panicking on a throw so
// turn can report it.
func (r *Runtime) call(fn goja.Callable, args ...goja.Value) {
	if fn == nil {
		return
	}
	if _, err := fn(goja.Undefined(), args...); err != nil {
		panic(err)
	}
}

func classify(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok {
			return fmt.Errorf("%w: %w", ErrInterrupted, cause)
		}
		return fmt.Errorf("%w: %v", ErrInterrupted, interrupted.Value())
	}
	return err
}

// reset replaces the VM and installs the base globals
func (r *Runtime) reset() error {
	r.vm = goja.New()
	if r.config.MaxCallStack > 0 {
		r.vm.SetMaxCallStackSize(r.config.MaxCallStack)
	}
	r.consoleMu.Lock()
	r.console = nil
	r.consoleMu.Unlock()
	r.timers = make(map[int64]bool)
	r.nextTime = 0
	return r.setupGlobals()
}

// setupGlobals configures global objects and security
func (r *Runtime) setupGlobals() error {
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := r.vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	if r.config.EnableConsole {
		console := r.vm.NewObject()
		for _, level := range []string{"log", "info", "warn", "error", "debug"} {
			if err := console.Set(level, r.makeConsoleFunc(level, nil)); err != nil {
				return err
			}
		}
		if err := r.vm.Set("console", console); err != nil {
			return err
		}
	}
	return nil
}

// makeConsoleFunc creates a console function. Lines are also forwarded to
// h when it is set.
func (r *Runtime) makeConsoleFunc(level string, h *bridge.Handle) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		msg := strings.Join(parts, " ")

		r.consoleMu.Lock()
		r.console = append(r.console, LogEntry{Level: level, Message: msg, Time: time.Now()})
		r.consoleMu.Unlock()

		if h != nil {
			h.Log(level, msg)
		}
		return goja.Undefined()
	}
}

// Reset clears the runtime state
func (r *Runtime) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.vm == nil {
		return ErrClosed
	}
	return r.reset()
}

// Close releases resources
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.vm = nil
	r.console = nil
	r.timers = nil
	return nil
}
