package sandbox

import (
	"fmt"
	"sync"

	"github.com/sandveil/sandveil/internal/domain/global"
)

// Env is the explicit process-wide state shared by every sandbox hosted in
// one process: the real global store, the active-sandbox counter gating the
// shared cross-cutting effects, and the currently-reading application
// tracker.
type Env struct {
	mu      sync.Mutex
	real    *global.Store
	capture Capture
	patcher Patcher

	activeCount int
	currentApp  string
}

// NewEnv creates an environment around a real global store. Capture and
// patcher may be nil, in which case the corresponding shared effect is
// skipped.
func NewEnv(real *global.Store, capture Capture, patcher Patcher) *Env {
	if real == nil {
		real = global.NewStore()
	}
	return &Env{
		real:    real,
		capture: capture,
		patcher: patcher,
	}
}

// Real returns the shared real global store.
func (e *Env) Real() *global.Store {
	return e.real
}

// ActiveCount returns the number of currently active sandboxes.
func (e *Env) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.activeCount
}

// CurrentApp returns the application name recorded by the most recent
// read through any sandbox proxy.
func (e *Env) CurrentApp() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.currentApp
}

// noteRead records the application resolving a global read so nested and
// shared helpers can recover context. Consecutive reads from the same
// application collapse into one notification.
func (e *Env) noteRead(app string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.currentApp == app {
		return
	}
	e.currentApp = app
}

// retain increments the active counter; the 0→1 transition installs the
// shared document capture and prototype patches exactly once.
func (e *Env) retain() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.activeCount++
	if e.activeCount != 1 {
		return nil
	}

	if e.capture != nil {
		if err := e.capture.Install(); err != nil {
			e.activeCount--
			return fmt.Errorf("failed to install document capture: %w", err)
		}
	}
	if e.patcher != nil {
		if err := e.patcher.Install(); err != nil {
			if e.capture != nil {
				_ = e.capture.Remove()
			}
			e.activeCount--
			return fmt.Errorf("failed to install prototype patches: %w", err)
		}
	}
	return nil
}

// release decrements the active counter; the 1→0 transition removes the
// shared effects.
func (e *Env) release() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.activeCount == 0 {
		return nil
	}

	e.activeCount--
	if e.activeCount != 0 {
		return nil
	}

	if e.capture != nil {
		if err := e.capture.Remove(); err != nil {
			return fmt.Errorf("failed to remove document capture: %w", err)
		}
	}
	if e.patcher != nil {
		if err := e.patcher.Remove(); err != nil {
			return fmt.Errorf("failed to remove prototype patches: %w", err)
		}
	}
	return nil
}
