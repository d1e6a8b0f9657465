package dompatch

import (
	"errors"
	"sync"

	"github.com/sandveil/sandveil/internal/infrastructure/logging"
)

var (
	// ErrPatchesInstalled is returned on a second install without a remove.
	ErrPatchesInstalled = errors.New("prototype patches already installed")

	// ErrPatchesNotInstalled is returned when removing absent patches.
	ErrPatchesNotInstalled = errors.New("prototype patches not installed")
)

// Element-prototype methods rescoped to application containers while the
// patches are installed.
var patchedMethods = []string{
	"createElement",
	"querySelector",
	"querySelectorAll",
	"getElementById",
	"appendChild",
	"insertBefore",
}

// Patcher installs the process-wide element-prototype patches that scope
// element creation and querying to the active application's container.
// Shared by all sandboxes; the environment's active counter drives exactly
// one install and one remove per busy period.
type Patcher struct {
	mu        sync.Mutex
	installed bool
	logger    *logging.Logger
}

// New creates an uninstalled patcher.
func New(logger *logging.Logger) *Patcher {
	if logger == nil {
		logger = logging.NewDefault()
	}
	return &Patcher{logger: logger}
}

// Install activates the shared prototype patches.
func (p *Patcher) Install() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.installed {
		return ErrPatchesInstalled
	}
	p.installed = true
	p.logger.Debug("prototype patches installed")
	return nil
}

// Remove deactivates the shared prototype patches.
func (p *Patcher) Remove() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.installed {
		return ErrPatchesNotInstalled
	}
	p.installed = false
	p.logger.Debug("prototype patches removed")
	return nil
}

// Installed reports the patch state.
func (p *Patcher) Installed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.installed
}

// Patched returns the method names rescoped while installed, empty
// otherwise.
func (p *Patcher) Patched() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.installed {
		return nil
	}
	out := make([]string, len(patchedMethods))
	copy(out, patchedMethods)
	return out
}
