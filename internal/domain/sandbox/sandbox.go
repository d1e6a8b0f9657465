package sandbox

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sandveil/sandveil/internal/domain/global"
	"github.com/sandveil/sandveil/internal/domain/policy"
	"github.com/sandveil/sandveil/internal/infrastructure/logging"
	"github.com/sandveil/sandveil/internal/infrastructure/monitoring"
	"github.com/sandveil/sandveil/internal/shared/id"
	"github.com/sandveil/sandveil/internal/shared/types"
)

// Fixed identity fields every virtual global object carries.
const (
	KeyEnvironment = policy.ReservedPrefix + "ENVIRONMENT__"
	KeyAppName     = policy.ReservedPrefix + "NAME__"
	KeyAppURL      = policy.ReservedPrefix + "URL__"
	KeyPublicPath  = policy.ReservedPrefix + "PUBLIC_PATH__"
	KeyBaseRoute   = policy.ReservedPrefix + "BASE_ROUTE__"
	KeyWindow      = policy.ReservedPrefix + "WINDOW__"
)

// Config describes one hosted application instance.
type Config struct {
	Name       string
	URL        string
	PublicPath string
	BaseRoute  string
	UMD        bool
	Rules      []policy.Rule
}

type boundFn struct {
	raw   uintptr
	bound types.Fn
}

// Sandbox virtualizes the global scope for one hosted application. It is
// the application's effective global object: every property operation is
// routed through the six traps, which classify the key and store to either
// the private virtual object or the shared real global store.
type Sandbox struct {
	mu sync.Mutex

	id       id.SandboxID
	instance string
	cfg      Config

	env        *Env
	classifier *policy.Classifier
	virtual    *global.Object
	bridge     *global.Bridge

	router Router
	effect Effect
	bus    DataBus

	injected map[string]struct{}
	escaped  map[string]struct{}
	bound    map[string]boundFn

	active   bool
	umdMode  bool
	snapshot map[string]types.Value

	createdAt time.Time
	logger    *logging.Logger
	metrics   *monitoring.Metrics
}

// New creates an inactive sandbox for the given application. The virtual
// global object is seeded with the fixed identity fields; plugin rules are
// merged into the classifier here, at construction time.
func New(cfg Config, env *Env, deps Collaborators) *Sandbox {
	s := &Sandbox{
		id:         id.NewSandboxID(),
		instance:   uuid.New().String(),
		cfg:        cfg,
		env:        env,
		classifier: policy.New(cfg.Rules...),
		virtual:    global.NewObject(),
		bridge:     global.NewBridge(),
		router:     deps.Router,
		effect:     deps.Effect,
		bus:        deps.Bus,
		injected:   make(map[string]struct{}),
		escaped:    make(map[string]struct{}),
		bound:      make(map[string]boundFn),
		createdAt:  time.Now(),
		logger:     logging.NewDefault(),
	}

	s.virtual.Set(KeyEnvironment, true)
	s.virtual.Set(KeyAppName, cfg.Name)
	s.virtual.Set(KeyAppURL, cfg.URL)
	s.virtual.Set(KeyPublicPath, cfg.PublicPath)
	s.virtual.Set(KeyWindow, s)

	return s
}

// WithLogger replaces the sandbox logger.
func (s *Sandbox) WithLogger(logger *logging.Logger) *Sandbox {
	s.logger = logger
	return s
}

// WithMetrics adds metrics tracking to the sandbox.
func (s *Sandbox) WithMetrics(metrics *monitoring.Metrics) *Sandbox {
	s.metrics = metrics
	return s
}

// ID returns the sandbox instance ID.
func (s *Sandbox) ID() id.SandboxID {
	return s.id
}

// Name returns the application name.
func (s *Sandbox) Name() string {
	return s.cfg.Name
}

// URL returns the application URL.
func (s *Sandbox) URL() string {
	return s.cfg.URL
}

// UMD reports whether singleton-module mode was entered.
func (s *Sandbox) UMD() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.umdMode
}

// Active reports whether interception is currently live.
func (s *Sandbox) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.active
}

// InjectedKeys returns the keys created on the virtual object while active.
func (s *Sandbox) InjectedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return keySet(s.injected)
}

// EscapedKeys returns the keys this sandbox mirrored onto the real global.
func (s *Sandbox) EscapedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return keySet(s.escaped)
}

// App returns an API summary of the sandbox.
func (s *Sandbox) App() types.App {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := types.StateInactive
	if s.active {
		state = types.StateActive
	}

	return types.App{
		ID:           string(s.id),
		Name:         s.cfg.Name,
		URL:          s.cfg.URL,
		BaseRoute:    s.cfg.BaseRoute,
		PublicPath:   s.cfg.PublicPath,
		State:        state,
		UMD:          s.umdMode,
		CreatedAt:    s.createdAt,
		InjectedKeys: keySet(s.injected),
		EscapedKeys:  keySet(s.escaped),
	}
}

func keySet(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s *Sandbox) trap(name string) {
	if s.metrics != nil {
		s.metrics.RecordTrap(name)
	}
}

func (s *Sandbox) debug(msg string, fields ...zap.Field) {
	if s.logger != nil {
		s.logger.Debug(msg, append(fields, zap.String("app", s.cfg.Name))...)
	}
}
