package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/firedesk/firedesk/internal/domain/instance"
	"github.com/firedesk/firedesk/internal/infrastructure/logging"
	"github.com/firedesk/firedesk/internal/infrastructure/monitoring"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Admin surface is origin-restricted by CORS middleware
	},
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// Handler manages WebSocket connections
type Handler struct {
	manager *instance.Manager
	metrics *monitoring.Metrics
	logger  *logging.Logger
}

// NewHandler creates a new WebSocket handler
func NewHandler(manager *instance.Manager, metrics *monitoring.Metrics, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{
		manager: manager,
		metrics: metrics,
		logger:  logger,
	}
}

// HandleConnection upgrades the request and streams state events until
// the client goes away.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	h.logger.Info("client connected",
		zap.String("conn_id", connID),
		zap.String("remote", conn.RemoteAddr().String()),
	)
	defer h.logger.Info("client disconnected", zap.String("conn_id", connID))

	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}

	events, unsubscribe := h.manager.Subscribe()
	defer unsubscribe()

	// Snapshot first so the client never renders from a gap between
	// connect and the first event.
	if err := h.write(conn, gin.H{
		"type":      "snapshot",
		"instances": h.manager.List(),
		"timestamp": time.Now().Unix(),
	}); err != nil {
		return
	}

	// Reader: consumes pings and detects the peer closing. All writes
	// stay on the main loop; the connection allows a single writer.
	done := make(chan struct{})
	pings := make(chan struct{}, 1)
	go func() {
		defer close(done)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg struct {
				Type string `json:"type"`
			}
			if json.Unmarshal(raw, &msg) == nil && msg.Type == "ping" {
				select {
				case pings <- struct{}{}:
				default:
				}
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if h.metrics != nil {
				h.metrics.RecordWSEvent()
			}
			if err := h.write(conn, gin.H{
				"type":           "state",
				"instance_id":    ev.InstanceID,
				"observed_state": ev.State,
				"at":             ev.At,
			}); err != nil {
				return
			}
		case <-pings:
			if err := h.write(conn, gin.H{"type": "pong", "timestamp": time.Now().Unix()}); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *Handler) write(conn *websocket.Conn, data interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(data)
}
