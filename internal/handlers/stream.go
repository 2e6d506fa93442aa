package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"storysage/internal/logging"
	"storysage/internal/metrics"
	"storysage/internal/playback"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	streamBuffer   = 256
	maxClientFrame = 512
)

// Local clients connect from app shells and kiosks on other origins.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamHandler pushes playback events to WebSocket clients
type StreamHandler struct {
	bus     *playback.Bus
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewStreamHandler creates a new stream handler. m may be nil.
func NewStreamHandler(bus *playback.Bus, m *metrics.Metrics, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{bus: bus, metrics: m, logger: logging.OrNop(logger)}
}

// Events handles GET /api/playback/events. Events of the caller's sessions
// are written as JSON text frames; slow clients miss events rather than
// stall playback.
func (h *StreamHandler) Events(w http.ResponseWriter, r *http.Request) {
	userID := ""
	if claims := GetDeviceFromContext(r.Context()); claims != nil {
		userID = claims.Subject
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}

	events, cancel := h.bus.Subscribe(streamBuffer)
	if h.metrics != nil {
		defer h.metrics.StreamClientConnected()()
	}
	h.logger.Debug("event stream connected", zap.String("user_id", userID))

	done := make(chan struct{})
	go h.readPump(conn, done)
	h.writePump(conn, events, userID, done)

	cancel()
	conn.Close()
	h.logger.Debug("event stream disconnected", zap.String("user_id", userID))
}

// writePump forwards events until the client goes away.
func (h *StreamHandler) writePump(conn *websocket.Conn, events <-chan playback.Event, userID string, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case e, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				return
			}
			if userID != "" && e.UserID != userID {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client frames and closes done when the connection ends.
func (h *StreamHandler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(maxClientFrame)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("event stream read error", zap.Error(err))
			}
			return
		}
	}
}
