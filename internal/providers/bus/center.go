package bus

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sandveil/sandveil/internal/infrastructure/logging"
	"github.com/sandveil/sandveil/internal/infrastructure/monitoring"
	"github.com/sandveil/sandveil/internal/shared/id"
	"github.com/sandveil/sandveil/internal/shared/types"
)

// ErrNoSnapshot is returned by SnapshotRebuild without a prior record.
var ErrNoSnapshot = errors.New("bus snapshot rebuild before record")

// Event is one data-bus emission.
type Event struct {
	ID   id.BusEventID `json:"id"`
	App  string        `json:"app"`
	Name string        `json:"name"`
	Data types.Value   `json:"data"`
	Time time.Time     `json:"time"`
}

// Handler consumes bus events.
type Handler func(Event)

type snapshotState struct {
	handlers map[string][]Handler
	data     map[string]types.Value
}

// Center is the per-application data bus: named listeners, global
// listeners, a latest-value cache per event name, and fan-out to stream
// subscribers. Snapshot record/rebuild captures and replays the internal
// state around singleton-module remounts.
type Center struct {
	mu  sync.Mutex
	app string

	handlers map[string][]Handler
	global   []Handler
	data     map[string]types.Value

	snapshot *snapshotState

	subscribers map[int]chan Event
	nextSub     int

	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// New creates a data bus for one application.
func New(app string, logger *logging.Logger) *Center {
	if logger == nil {
		logger = logging.NewDefault()
	}
	logger = logger.ForApp(app)
	return &Center{
		app:         app,
		handlers:    make(map[string][]Handler),
		data:        make(map[string]types.Value),
		subscribers: make(map[int]chan Event),
		logger:      logger,
	}
}

// WithMetrics adds metrics tracking to the bus.
func (c *Center) WithMetrics(metrics *monitoring.Metrics) *Center {
	c.metrics = metrics
	return c
}

// App returns the owning application name.
func (c *Center) App() string {
	return c.app
}

// On registers a data listener for name.
func (c *Center) On(name string, h Handler) {
	if h == nil {
		return
	}
	c.mu.Lock()
	c.handlers[name] = append(c.handlers[name], h)
	c.mu.Unlock()
}

// OnGlobal registers a listener for every event on this bus.
func (c *Center) OnGlobal(h Handler) {
	if h == nil {
		return
	}
	c.mu.Lock()
	c.global = append(c.global, h)
	c.mu.Unlock()
}

// Emit publishes an event: caches the latest value for name, invokes named
// and global listeners, and fans out to stream subscribers without
// blocking on slow consumers.
func (c *Center) Emit(name string, data types.Value) Event {
	event := Event{
		ID:   id.NewBusEventID(),
		App:  c.app,
		Name: name,
		Data: data,
		Time: time.Now(),
	}

	c.mu.Lock()
	c.data[name] = data
	named := append([]Handler(nil), c.handlers[name]...)
	global := append([]Handler(nil), c.global...)
	subs := make([]chan Event, 0, len(c.subscribers))
	for _, ch := range c.subscribers {
		subs = append(subs, ch)
	}
	c.mu.Unlock()

	for _, h := range named {
		h(event)
	}
	for _, h := range global {
		h(event)
	}
	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			c.logger.Warn("bus subscriber lagging, event dropped",
				zap.String("event", name),
			)
		}
	}

	if c.metrics != nil {
		c.metrics.RecordBusEvent(c.app)
	}
	return event
}

// Data returns the latest cached value for name.
func (c *Center) Data(name string) (types.Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.data[name]
	return v, ok
}

// Subscribe returns a buffered stream of future events and a cancel
// function. Used by the WebSocket surface.
func (c *Center) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	c.mu.Lock()
	c.nextSub++
	key := c.nextSub
	c.subscribers[key] = ch
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		if _, ok := c.subscribers[key]; ok {
			delete(c.subscribers, key)
			close(ch)
		}
		c.mu.Unlock()
	}
	return ch, cancel
}

// ClearDataListener drops every named listener for this application.
func (c *Center) ClearDataListener() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers = make(map[string][]Handler)
	return nil
}

// ClearGlobalDataListener drops every global listener.
func (c *Center) ClearGlobalDataListener() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.global = nil
	return nil
}

// SnapshotRecord captures listeners and the data cache.
func (c *Center) SnapshotRecord() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := &snapshotState{
		handlers: make(map[string][]Handler, len(c.handlers)),
		data:     make(map[string]types.Value, len(c.data)),
	}
	for name, hs := range c.handlers {
		snap.handlers[name] = append([]Handler(nil), hs...)
	}
	for name, v := range c.data {
		snap.data[name] = v
	}
	c.snapshot = snap
	return nil
}

// SnapshotRebuild replays the captured listeners and data cache.
func (c *Center) SnapshotRebuild() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snapshot == nil {
		return ErrNoSnapshot
	}

	for name, hs := range c.snapshot.handlers {
		c.handlers[name] = append([]Handler(nil), hs...)
	}
	for name, v := range c.snapshot.data {
		c.data[name] = v
	}
	return nil
}
