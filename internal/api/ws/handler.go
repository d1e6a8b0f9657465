package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sandveil/sandveil/internal/domain/registry"
	"github.com/sandveil/sandveil/internal/infrastructure/logging"
	"github.com/sandveil/sandveil/internal/infrastructure/monitoring"
	"github.com/sandveil/sandveil/internal/providers/bus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const subscribeBuffer = 64

// Handler streams an application's data-bus events over WebSocket and
// accepts emissions from the client.
type Handler struct {
	registry *registry.Manager
	metrics  *monitoring.Metrics
	logger   *logging.Logger
}

// NewHandler creates a WebSocket handler over the registry.
func NewHandler(reg *registry.Manager, metrics *monitoring.Metrics, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewDefault()
	}
	return &Handler{
		registry: reg,
		metrics:  metrics,
		logger:   logger,
	}
}

// inbound is a client-to-server frame.
type inbound struct {
	Type string      `json:"type"`
	Name string      `json:"name,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

// conn wraps a websocket connection with serialized writes.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(v interface{}) error {
	payload, err := sonic.Marshal(v)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

// HandleBus upgrades the connection and bridges it to the named
// application's event center.
func (h *Handler) HandleBus(c *gin.Context) {
	name := c.Param("name")

	center, err := h.registry.Bus(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	if h.metrics != nil {
		h.metrics.WSConnections.Inc()
		defer h.metrics.WSConnections.Dec()
	}

	cn := &conn{ws: ws}
	cn.send(map[string]interface{}{
		"type": "system",
		"app":  name,
	})

	events, cancel := center.Subscribe(subscribeBuffer)
	defer cancel()

	done := make(chan struct{})
	go h.readLoop(cn, center, done)

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := cn.send(outboundEvent(ev)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// readLoop consumes client frames until the connection drops. Emit frames
// publish onto the application's bus; pings get a pong.
func (h *Handler) readLoop(cn *conn, center *bus.Center, done chan struct{}) {
	defer close(done)

	for {
		_, raw, err := cn.ws.ReadMessage()
		if err != nil {
			return
		}

		var msg inbound
		if err := sonic.Unmarshal(raw, &msg); err != nil {
			cn.send(map[string]interface{}{
				"type":  "error",
				"error": "malformed frame",
			})
			continue
		}

		switch msg.Type {
		case "emit":
			if msg.Name == "" {
				cn.send(map[string]interface{}{
					"type":  "error",
					"error": "emit requires a name",
				})
				continue
			}
			center.Emit(msg.Name, msg.Data)
		case "ping":
			cn.send(map[string]interface{}{
				"type": "pong",
				"time": time.Now().Unix(),
			})
		default:
			cn.send(map[string]interface{}{
				"type":  "error",
				"error": "unknown frame type",
			})
		}
	}
}

// outboundEvent shapes a bus event for the wire.
func outboundEvent(ev bus.Event) map[string]interface{} {
	return map[string]interface{}{
		"type": "event",
		"id":   string(ev.ID),
		"app":  ev.App,
		"name": ev.Name,
		"data": ev.Data,
		"time": ev.Time.Unix(),
	}
}
