package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"interviewroom/pkg/types"
)

// Dispatcher receives decoded client events; implemented by the hub
// ARCHITECTURAL DISCOVERY: The handler knows sockets, the dispatcher knows
// sessions; neither imports the other's concerns
type Dispatcher interface {
	Dispatch(ctx context.Context, conn *Connection, ev *types.InboundEvent)
	Disconnect(conn *Connection)
}

// HandlerConfig holds socket-level limits
type HandlerConfig struct {
	ReadLimit        int64
	PingInterval     time.Duration
	PongWait         time.Duration
	HandshakeTimeout time.Duration
	WriteBuffer      int
	WriteTimeout     time.Duration
	AllowedOrigins   []string
}

// DefaultHandlerConfig returns production socket limits
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		ReadLimit:        2 << 20,
		PingInterval:     30 * time.Second,
		PongWait:         60 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		WriteBuffer:      writeBuffer,
		WriteTimeout:     writeTimeout,
	}
}

// Handler upgrades interview room sockets and pumps their events
type Handler struct {
	registry   *Registry
	dispatcher Dispatcher
	cfg        HandlerConfig
	upgrader   websocket.Upgrader
}

// NewHandler creates a new WebSocket handler with dependency injection
func NewHandler(registry *Registry, dispatcher Dispatcher, cfg HandlerConfig) *Handler {
	d := DefaultHandlerConfig()
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = d.ReadLimit
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = d.PingInterval
	}
	if cfg.PongWait <= cfg.PingInterval {
		cfg.PongWait = 2 * cfg.PingInterval
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = d.HandshakeTimeout
	}
	if cfg.WriteBuffer <= 0 {
		cfg.WriteBuffer = d.WriteBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = d.WriteTimeout
	}

	h := &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		cfg:        cfg,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	return h
}

// checkOrigin allows every origin unless an allow-list is configured
func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// HandleWebSocket upgrades the request; identity is established later by a
// join-interview or hr-join event
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnectionWithLimits(conn, h.cfg.WriteBuffer, h.cfg.WriteTimeout)
	log.Printf("WebSocket connected: conn=%s remote=%s", wsConn.ID(), r.RemoteAddr)

	go h.handleConnection(wsConn)
}

// handleConnection runs the heartbeat and the read pump for one socket
// ARCHITECTURAL DISCOVERY: Events from one socket are dispatched in arrival
// order on this goroutine; cross-socket ordering is the session actor's job
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.dispatcher.Disconnect(conn)
		h.registry.UnregisterConnection(conn)
		_ = conn.Close()
		log.Printf("WebSocket closed: conn=%s user=%s", conn.ID(), conn.GetUserID())
	}()

	conn.conn.SetReadLimit(h.cfg.ReadLimit)
	if err := conn.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	go h.heartbeat(conn)

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error: conn=%s: %v", conn.ID(), err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var ev types.InboundEvent
		if err := json.Unmarshal(data, &ev); err != nil || ev.Type == "" {
			h.sendError(conn, types.ErrInvalidPayload)
			continue
		}
		h.dispatcher.Dispatch(conn.ctx, conn, &ev)
	}
}

func (h *Handler) heartbeat(conn *Connection) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
				return
			}
		case <-conn.ctx.Done():
			return
		}
	}
}

func (h *Handler) sendError(conn *Connection, err error) {
	ev := types.NewEvent(types.EventError, types.ErrorPayload{Message: types.ClientMessage(err)})
	if werr := conn.WriteJSON(ev); werr != nil {
		log.Printf("Failed to send error to conn=%s: %v", conn.ID(), werr)
	}
}
