package sandbox

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sandveil/sandveil/internal/shared/types"
)

// ErrSnapshotNotRecorded is returned when a snapshot rebuild is requested
// before any snapshot was recorded.
var ErrSnapshotNotRecorded = errors.New("umd snapshot rebuild before record")

// Legacy polyfill flag forced off on every start so singleton polyfill
// loaders in other applications re-run their installation.
const legacyPolyfillKey = "_babelPolyfill"

// Start activates interception. Idempotent: starting an active sandbox is a
// no-op. The first sandbox to become active in the environment installs the
// shared document capture and prototype patches.
func (s *Sandbox) Start(baseRoute string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return nil
	}

	if s.router != nil {
		if err := s.router.InitRouteState(s.cfg.Name, s.cfg.URL, s.virtual); err != nil {
			return fmt.Errorf("router init failed for %s: %w", s.cfg.Name, err)
		}
	}

	if err := s.env.retain(); err != nil {
		return err
	}

	// Active only once the router and the shared effects are in place, so a
	// Stop after a failed Start never releases a count it did not retain.
	s.active = true

	s.cfg.BaseRoute = baseRoute
	s.virtual.Set(KeyBaseRoute, baseRoute)

	if v, ok := s.env.real.Get(legacyPolyfillKey); ok {
		if flag, isBool := v.(bool); isBool && flag {
			s.env.real.Set(legacyPolyfillKey, false)
		}
	}

	if s.metrics != nil {
		s.metrics.RecordSandboxStart()
	}
	s.debug("sandbox started", zap.String("base_route", baseRoute))
	return nil
}

// Stop deactivates interception and rolls back every side effect this
// sandbox produced: registered listeners/timers, bus data listeners, keys
// injected into the virtual object, and keys escaped onto the real global.
// Idempotent: stopping an inactive sandbox is a no-op.
func (s *Sandbox) Stop(keepRouteState bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return nil
	}

	if s.effect != nil {
		if err := s.effect.Release(); err != nil {
			return fmt.Errorf("effect release failed for %s: %w", s.cfg.Name, err)
		}
	}
	if s.bus != nil {
		if err := s.bus.ClearDataListener(); err != nil {
			return fmt.Errorf("bus clear failed for %s: %w", s.cfg.Name, err)
		}
	}

	for key := range s.injected {
		s.virtual.Delete(key)
		s.bridge.Forget(key)
	}
	s.injected = make(map[string]struct{})

	for key := range s.escaped {
		s.env.real.Delete(key)
	}
	s.escaped = make(map[string]struct{})

	// Rebound callables may wrap values the rollback just removed.
	s.bound = make(map[string]boundFn)

	if !keepRouteState && s.router != nil {
		if err := s.router.ClearRouteState(s.cfg.Name, s.cfg.URL, s.virtual); err != nil {
			return fmt.Errorf("router clear failed for %s: %w", s.cfg.Name, err)
		}
	}

	if err := s.env.release(); err != nil {
		return err
	}

	s.active = false
	if s.metrics != nil {
		s.metrics.RecordSandboxStop()
	}
	s.debug("sandbox stopped", zap.Bool("keep_route_state", keepRouteState))
	return nil
}

// RecordUmdSnapshot captures the injected state of a singleton-module
// application before its first mount hook runs. Marks the sandbox as
// singleton-mode and snapshots the effect and bus collaborators alongside.
func (s *Sandbox) RecordUmdSnapshot() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.umdMode = true

	if s.effect != nil {
		if err := s.effect.RecordBeforeMount(); err != nil {
			return fmt.Errorf("effect record failed for %s: %w", s.cfg.Name, err)
		}
	}
	if s.bus != nil {
		if err := s.bus.SnapshotRecord(); err != nil {
			return fmt.Errorf("bus snapshot failed for %s: %w", s.cfg.Name, err)
		}
	}

	s.snapshot = make(map[string]types.Value, len(s.injected))
	for key := range s.injected {
		if v, ok := s.virtual.Get(key); ok {
			s.snapshot[key] = v
		}
	}

	if s.metrics != nil {
		s.metrics.SnapshotRecords.Inc()
	}
	s.debug("umd snapshot recorded", zap.Int("keys", len(s.snapshot)))
	return nil
}

// RebuildUmdSnapshot replays the captured key/value pairs back through the
// proxy on remount, so references closed over during the first mount still
// observe consistent state. Requires a prior RecordUmdSnapshot.
func (s *Sandbox) RebuildUmdSnapshot() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshot == nil {
		return ErrSnapshotNotRecorded
	}

	for key, value := range s.snapshot {
		s.setLocked(key, value)
	}

	if s.effect != nil {
		if err := s.effect.RebuildOnRemount(); err != nil {
			return fmt.Errorf("effect rebuild failed for %s: %w", s.cfg.Name, err)
		}
	}
	if s.bus != nil {
		if err := s.bus.SnapshotRebuild(); err != nil {
			return fmt.Errorf("bus rebuild failed for %s: %w", s.cfg.Name, err)
		}
	}

	if s.metrics != nil {
		s.metrics.SnapshotRebuilds.Inc()
	}
	s.debug("umd snapshot rebuilt", zap.Int("keys", len(s.snapshot)))
	return nil
}

// InitRouteState re-runs the router initialization entry point.
func (s *Sandbox) InitRouteState() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.router == nil {
		return nil
	}
	return s.router.InitRouteState(s.cfg.Name, s.cfg.URL, s.virtual)
}

// ClearRouteState re-runs the router state-clearing entry point.
func (s *Sandbox) ClearRouteState() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.router == nil {
		return nil
	}
	return s.router.ClearRouteState(s.cfg.Name, s.cfg.URL, s.virtual)
}
