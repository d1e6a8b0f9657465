package effect

import (
	"errors"
	"sync"

	"github.com/sandveil/sandveil/internal/infrastructure/logging"
)

var (
	// ErrCaptureInstalled is returned on a second install without a remove.
	ErrCaptureInstalled = errors.New("document capture already installed")

	// ErrCaptureNotInstalled is returned when removing an absent capture.
	ErrCaptureNotInstalled = errors.New("document capture not installed")
)

// Capture is the process-wide document-level listener capture shared by all
// active sandboxes. The environment's active-sandbox counter guarantees
// install/remove pairing; violations here indicate a lifecycle bug, so they
// surface as errors rather than being absorbed.
type Capture struct {
	mu        sync.Mutex
	installed bool
	logger    *logging.Logger
}

// NewCapture creates an uninstalled capture.
func NewCapture(logger *logging.Logger) *Capture {
	if logger == nil {
		logger = logging.NewDefault()
	}
	return &Capture{logger: logger}
}

// Install activates the shared document capture.
func (c *Capture) Install() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.installed {
		return ErrCaptureInstalled
	}
	c.installed = true
	c.logger.Debug("document capture installed")
	return nil
}

// Remove deactivates the shared document capture.
func (c *Capture) Remove() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.installed {
		return ErrCaptureNotInstalled
	}
	c.installed = false
	c.logger.Debug("document capture removed")
	return nil
}

// Installed reports the capture state.
func (c *Capture) Installed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.installed
}
