package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/sandveil/sandveil/internal/domain/sandbox"
)

// globalRef is the VM-side binding the execution wrapper reads the proxy
// from. Hosted code never sees it: the wrapper shadows it immediately.
const globalRef = "__sandveil_global_ref__"

// Runtime hosts one application's scripts in a goja VM whose global
// identifier is bound to the sandbox proxy. One VM per application: the
// virtual global state must persist across Execute calls.
type Runtime struct {
	vm     *goja.Runtime
	sb     *sandbox.Sandbox
	window *goja.Object
	config Config
	mu     sync.Mutex

	// Console output
	console   []LogEntry
	consoleMu sync.Mutex
}

// New creates a runtime bound to a sandbox.
func New(sb *sandbox.Sandbox, config Config) (*Runtime, error) {
	vm := goja.New()

	r := &Runtime{
		vm:      vm,
		sb:      sb,
		config:  config,
		console: []LogEntry{},
	}

	adapter := &globalAdapter{vm: vm, sb: sb}
	r.window = vm.NewDynamicObject(adapter)
	adapter.window = r.window

	if err := r.setupGlobals(); err != nil {
		return nil, err
	}

	return r, nil
}

// Sandbox returns the sandbox this runtime executes against.
func (r *Runtime) Sandbox() *sandbox.Sandbox {
	return r.sb
}

// Execute runs an application script with its global identifiers bound to
// the sandbox proxy, under timeout and cancellation control.
func (r *Runtime) Execute(ctx context.Context, script string) (*Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.vm == nil {
		return nil, fmt.Errorf("runtime closed")
	}

	start := time.Now()
	result := &Result{
		Console: []LogEntry{},
	}

	timeout := r.config.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// The watchdog must be joined before ClearInterrupt: a timer or cancel
	// firing concurrently with RunString returning would otherwise land its
	// Interrupt on the next execution.
	vm := r.vm
	stop := make(chan struct{})
	watched := make(chan struct{})
	go func() {
		defer close(watched)
		select {
		case <-timer.C:
			vm.Interrupt("execution timeout exceeded")
		case <-ctx.Done():
			vm.Interrupt("context cancelled")
		case <-stop:
		}
	}()

	// Clear console
	r.consoleMu.Lock()
	r.console = []LogEntry{}
	r.consoleMu.Unlock()

	val, err := r.vm.RunString(wrap(script))

	close(stop)
	<-watched
	r.vm.ClearInterrupt()

	result.Duration = time.Since(start)

	if err != nil {
		result.Error = err
		return result, err
	}

	result.Value = r.exportValue(val)

	r.consoleMu.Lock()
	result.Console = append([]LogEntry{}, r.console...)
	r.consoleMu.Unlock()

	return result, nil
}

// wrap binds the application's global identifiers to the sandbox proxy, so
// every window/self/globalThis access routes through the traps. The script
// runs through a direct eval so its completion value survives the wrapper.
func wrap(script string) string {
	quoted, err := json.Marshal(script)
	if err != nil {
		quoted = []byte(`""`)
	}
	return "(function(window, self, globalThis) {\n" +
		"return eval(" + string(quoted) + ");\n" +
		"}).call(" + globalRef + ", " + globalRef + ", " + globalRef + ", " + globalRef + ");"
}

// setupGlobals configures host bindings and removes Node-style globals.
func (r *Runtime) setupGlobals() error {
	r.vm.Set(globalRef, r.window)

	r.vm.Set("require", goja.Undefined())
	r.vm.Set("process", goja.Undefined())
	r.vm.Set("module", goja.Undefined())
	r.vm.Set("exports", goja.Undefined())

	if r.config.EnableConsole {
		console := r.vm.NewObject()
		console.Set("log", r.makeConsoleFunc("log"))
		console.Set("warn", r.makeConsoleFunc("warn"))
		console.Set("error", r.makeConsoleFunc("error"))
		console.Set("info", r.makeConsoleFunc("info"))
		r.vm.Set("console", console)
	}

	return nil
}

// makeConsoleFunc creates a console function
func (r *Runtime) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		var msg string
		for i, arg := range call.Arguments {
			if i > 0 {
				msg += " "
			}
			msg += arg.String()
		}

		r.consoleMu.Lock()
		r.console = append(r.console, LogEntry{
			Level:   level,
			Message: msg,
			Time:    time.Now(),
		})
		r.consoleMu.Unlock()

		return goja.Undefined()
	}
}

// exportValue converts goja value to Go value
func (r *Runtime) exportValue(val goja.Value) interface{} {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	return val.Export()
}

// Close releases resources
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.vm = nil
	r.console = nil
	return nil
}
