package effect

import (
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sandveil/sandveil/internal/infrastructure/logging"
	"github.com/sandveil/sandveil/internal/shared/types"
)

// Effect tracks one application's global event registrations and timers so
// they can be bulk-released when the application unmounts, and recorded and
// replayed around singleton-module remounts.
type Effect struct {
	mu  sync.Mutex
	app string

	listeners map[string][]types.Fn
	timers    map[int]*time.Timer
	nextTimer int

	recorded map[string][]types.Fn

	logger *logging.Logger
}

// New creates an effect collaborator for one application.
func New(app string, logger *logging.Logger) *Effect {
	if logger == nil {
		logger = logging.NewDefault()
	}
	logger = logger.ForApp(app)
	return &Effect{
		app:       app,
		listeners: make(map[string][]types.Fn),
		timers:    make(map[int]*time.Timer),
		logger:    logger,
	}
}

// AddListener registers a global event handler on behalf of the application.
func (e *Effect) AddListener(event string, handler types.Fn) {
	if handler == nil {
		return
	}

	e.mu.Lock()
	e.listeners[event] = append(e.listeners[event], handler)
	e.mu.Unlock()
}

// RemoveListener drops one registration of handler for event.
func (e *Effect) RemoveListener(event string, handler types.Fn) {
	if handler == nil {
		return
	}
	target := reflect.ValueOf(handler).Pointer()

	e.mu.Lock()
	defer e.mu.Unlock()

	handlers := e.listeners[event]
	for i, h := range handlers {
		if reflect.ValueOf(h).Pointer() == target {
			e.listeners[event] = append(handlers[:i], handlers[i+1:]...)
			return
		}
	}
}

// Dispatch invokes every handler registered for event and returns how many
// ran. The receiver passed to handlers is nil; global handlers resolve
// their own context.
func (e *Effect) Dispatch(event string, payload types.Value) int {
	e.mu.Lock()
	handlers := append([]types.Fn(nil), e.listeners[event]...)
	e.mu.Unlock()

	for _, h := range handlers {
		h(nil, payload)
	}
	return len(handlers)
}

// SetTimeout schedules fn after d and returns a handle for ClearTimeout.
// Fired timers remove themselves from tracking.
func (e *Effect) SetTimeout(d time.Duration, fn func()) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextTimer++
	handle := e.nextTimer
	e.timers[handle] = time.AfterFunc(d, func() {
		e.mu.Lock()
		delete(e.timers, handle)
		e.mu.Unlock()
		fn()
	})
	return handle
}

// ClearTimeout cancels a pending timer.
func (e *Effect) ClearTimeout(handle int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if timer, ok := e.timers[handle]; ok {
		timer.Stop()
		delete(e.timers, handle)
	}
}

// ListenerCount returns the number of live registrations for event.
func (e *Effect) ListenerCount(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.listeners[event])
}

// TimerCount returns the number of pending timers.
func (e *Effect) TimerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.timers)
}

// Release cancels every pending timer and drops every listener this
// application registered. Immediate and total.
func (e *Effect) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for handle, timer := range e.timers {
		timer.Stop()
		delete(e.timers, handle)
	}
	released := 0
	for event, handlers := range e.listeners {
		released += len(handlers)
		delete(e.listeners, event)
	}

	e.logger.Debug("effects released",
		zap.Int("listeners", released),
	)
	return nil
}

// RecordBeforeMount snapshots the current registrations for a
// singleton-module application before its first mount hook runs.
func (e *Effect) RecordBeforeMount() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.recorded = make(map[string][]types.Fn, len(e.listeners))
	for event, handlers := range e.listeners {
		e.recorded[event] = append([]types.Fn(nil), handlers...)
	}
	return nil
}

// RebuildOnRemount restores the recorded registrations on remount.
func (e *Effect) RebuildOnRemount() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for event, handlers := range e.recorded {
		e.listeners[event] = append([]types.Fn(nil), handlers...)
	}
	return nil
}
