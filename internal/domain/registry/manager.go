package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sandveil/sandveil/internal/domain/policy"
	"github.com/sandveil/sandveil/internal/domain/sandbox"
	"github.com/sandveil/sandveil/internal/infrastructure/config"
	"github.com/sandveil/sandveil/internal/infrastructure/logging"
	"github.com/sandveil/sandveil/internal/infrastructure/monitoring"
	"github.com/sandveil/sandveil/internal/providers/bus"
	"github.com/sandveil/sandveil/internal/providers/effect"
	"github.com/sandveil/sandveil/internal/providers/router"
	"github.com/sandveil/sandveil/internal/runtime"
	"github.com/sandveil/sandveil/internal/shared/types"
)

var (
	// ErrAppNotFound is returned when no application is registered under a name.
	ErrAppNotFound = errors.New("application not found")

	// ErrAppActive is returned when mounting a name that is already live.
	ErrAppActive = errors.New("application already active")
)

// ScriptLoader fetches application scripts for mounting.
type ScriptLoader interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// MountSpec describes one application mount request.
type MountSpec struct {
	Name       string
	URL        string
	BaseRoute  string
	PublicPath string
	UMD        bool

	// Script is executed at mount when non-empty; otherwise it is fetched
	// from URL when a loader is configured.
	Script string
}

// entry is the per-application unit the manager tracks: the sandbox, its
// VM, and its collaborators. Singleton-mode entries survive unmount so a
// later mount can rebuild from the snapshot without re-running the script.
type entry struct {
	sb        *sandbox.Sandbox
	rt        *runtime.Runtime
	bus       *bus.Center
	effect    *effect.Effect
	createdAt time.Time
}

// Manager owns the application registry. It builds the per-application
// collaborator set, enforces one live sandbox per name, and drives the
// mount/unmount lifecycle.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry

	env     *sandbox.Env
	rules   *config.PluginRules
	loader  ScriptLoader
	rtConf  runtime.Config
	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// NewManager creates an application registry over a shared environment.
func NewManager(env *sandbox.Env, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewDefault()
	}
	return &Manager{
		entries: make(map[string]*entry),
		env:     env,
		rtConf:  runtime.DefaultConfig(),
		logger:  logger,
	}
}

// WithMetrics attaches metrics collection.
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// WithPluginRules attaches per-application classification overrides.
func (m *Manager) WithPluginRules(rules *config.PluginRules) *Manager {
	m.rules = rules
	return m
}

// WithLoader attaches a script loader for URL-based mounts.
func (m *Manager) WithLoader(loader ScriptLoader) *Manager {
	m.loader = loader
	return m
}

// WithRuntimeConfig overrides script execution settings.
func (m *Manager) WithRuntimeConfig(cfg runtime.Config) *Manager {
	m.rtConf = cfg
	return m
}

// Mount registers and starts an application. A stopped singleton-mode
// entry under the same name is restarted from its snapshot instead of
// being rebuilt, and its script is not executed again.
func (m *Manager) Mount(ctx context.Context, spec MountSpec) (types.App, error) {
	if spec.Name == "" {
		return types.App{}, fmt.Errorf("mount: name is required")
	}

	m.mu.Lock()
	if existing, ok := m.entries[spec.Name]; ok {
		if existing.sb.Active() {
			m.mu.Unlock()
			return types.App{}, fmt.Errorf("%w: %s", ErrAppActive, spec.Name)
		}
		app, err := m.remountLocked(existing, spec.BaseRoute)
		m.mu.Unlock()
		return app, err
	}
	m.mu.Unlock()

	script := spec.Script
	if script == "" && spec.URL != "" && m.loader != nil {
		fetched, err := m.loader.Fetch(ctx, spec.URL)
		if err != nil {
			return types.App{}, fmt.Errorf("failed to fetch script for %s: %w", spec.Name, err)
		}
		script = fetched
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Re-check under the lock: a concurrent mount may have won the race
	// while the script was being fetched.
	if existing, ok := m.entries[spec.Name]; ok {
		if existing.sb.Active() {
			return types.App{}, fmt.Errorf("%w: %s", ErrAppActive, spec.Name)
		}
		return m.remountLocked(existing, spec.BaseRoute)
	}

	rules := policyRules(m.rules.ForApp(spec.Name))

	center := bus.New(spec.Name, m.logger)
	if m.metrics != nil {
		center = center.WithMetrics(m.metrics)
	}
	eff := effect.New(spec.Name, m.logger)

	sb := sandbox.New(sandbox.Config{
		Name:       spec.Name,
		URL:        spec.URL,
		PublicPath: spec.PublicPath,
		BaseRoute:  spec.BaseRoute,
		UMD:        spec.UMD,
		Rules:      rules,
	}, m.env, sandbox.Collaborators{
		Router: router.New(m.logger),
		Effect: eff,
		Bus:    center,
	}).WithLogger(m.logger)
	if m.metrics != nil {
		sb = sb.WithMetrics(m.metrics)
	}

	rt, err := runtime.New(sb, m.rtConf)
	if err != nil {
		return types.App{}, fmt.Errorf("failed to create runtime for %s: %w", spec.Name, err)
	}

	if err := sb.Start(spec.BaseRoute); err != nil {
		rt.Close()
		return types.App{}, fmt.Errorf("failed to start %s: %w", spec.Name, err)
	}

	e := &entry{
		sb:        sb,
		rt:        rt,
		bus:       center,
		effect:    eff,
		createdAt: time.Now(),
	}
	m.entries[spec.Name] = e

	if script != "" {
		if _, err := rt.Execute(ctx, script); err != nil {
			sb.Stop(false)
			rt.Close()
			delete(m.entries, spec.Name)
			return types.App{}, fmt.Errorf("script failed for %s: %w", spec.Name, err)
		}
	}

	if spec.UMD {
		if err := sb.RecordUmdSnapshot(); err != nil {
			m.logger.Warn("Snapshot record failed",
				zap.String("app", spec.Name),
				zap.Error(err))
		}
	}

	m.logger.Info("Application mounted",
		zap.String("app", spec.Name),
		zap.String("sandbox_id", string(sb.ID())),
		zap.Bool("umd", spec.UMD))

	return sb.App(), nil
}

// remountLocked restarts a stopped singleton entry from its snapshot.
func (m *Manager) remountLocked(e *entry, baseRoute string) (types.App, error) {
	name := e.sb.Name()

	if err := e.sb.Start(baseRoute); err != nil {
		return types.App{}, fmt.Errorf("failed to restart %s: %w", name, err)
	}
	if err := e.sb.RebuildUmdSnapshot(); err != nil {
		if stopErr := e.sb.Stop(true); stopErr != nil {
			m.logger.Warn("Stop after failed rebuild",
				zap.String("app", name),
				zap.Error(stopErr))
		}
		return types.App{}, fmt.Errorf("failed to rebuild %s: %w", name, err)
	}

	m.logger.Info("Application remounted from snapshot",
		zap.String("app", name))

	return e.sb.App(), nil
}

// Unmount stops an application. Singleton-mode entries are retained in
// stopped form unless destroy is set; everything else is removed.
func (m *Manager) Unmount(name string, keepRouteState, destroy bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAppNotFound, name)
	}

	if err := e.sb.Stop(keepRouteState); err != nil {
		return fmt.Errorf("failed to stop %s: %w", name, err)
	}

	if destroy || !e.sb.UMD() {
		e.rt.Close()
		delete(m.entries, name)
	}

	m.logger.Info("Application unmounted",
		zap.String("app", name),
		zap.Bool("retained", !destroy && e.sb.UMD()))

	return nil
}

// Exec runs a script inside a mounted application's sandbox.
func (m *Manager) Exec(ctx context.Context, name, script string) (*runtime.Result, error) {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAppNotFound, name)
	}
	return e.rt.Execute(ctx, script)
}

// RecordSnapshot captures an application's singleton snapshot on demand.
func (m *Manager) RecordSnapshot(name string) error {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrAppNotFound, name)
	}
	return e.sb.RecordUmdSnapshot()
}

// RebuildSnapshot replays an application's recorded snapshot.
func (m *Manager) RebuildSnapshot(name string) error {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrAppNotFound, name)
	}
	return e.sb.RebuildUmdSnapshot()
}

// Get returns one application summary.
func (m *Manager) Get(name string) (types.App, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[name]
	if !ok {
		return types.App{}, fmt.Errorf("%w: %s", ErrAppNotFound, name)
	}
	app := e.sb.App()
	app.CreatedAt = e.createdAt
	return app, nil
}

// Bus returns an application's event center.
func (m *Manager) Bus(name string) (*bus.Center, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAppNotFound, name)
	}
	return e.bus, nil
}

// List returns all applications sorted by name.
func (m *Manager) List() []types.App {
	m.mu.RLock()
	defer m.mu.RUnlock()

	apps := make([]types.App, 0, len(m.entries))
	for _, e := range m.entries {
		app := e.sb.App()
		app.CreatedAt = e.createdAt
		apps = append(apps, app)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].Name < apps[j].Name })
	return apps
}

// Stats returns registry statistics.
func (m *Manager) Stats() types.Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := types.Stats{TotalApps: len(m.entries)}
	for _, e := range m.entries {
		if e.sb.Active() {
			stats.ActiveApps++
		}
	}
	return stats
}

// Close stops every application and releases all runtimes.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for name, e := range m.entries {
		if err := e.sb.Stop(false); err != nil && firstErr == nil {
			firstErr = err
		}
		e.rt.Close()
		delete(m.entries, name)
	}
	return firstErr
}

// policyRules converts plugin configuration into classifier rules.
func policyRules(plugins []config.PluginRule) []policy.Rule {
	rules := make([]policy.Rule, 0, len(plugins))
	for _, p := range plugins {
		rules = append(rules, policy.Rule{
			ScopeProperties:  p.ScopeProperties,
			EscapeProperties: p.EscapeProperties,
		})
	}
	return rules
}
