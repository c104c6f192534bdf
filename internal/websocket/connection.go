package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Default write path limits
const (
	writeBuffer  = 100
	writeTimeout = 5 * time.Second
)

// Connection implements the interfaces.Connection interface
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized; session actors,
// the heartbeat and the gateway all write through writeCh
type Connection struct {
	id            string
	conn          *websocket.Conn
	writeCh       chan []byte // FUNCTIONAL DISCOVERY: 100 buffer absorbs a burst of relayed HR audio
	userID        string      // Set on join
	role          string      // Set on join
	sessionID     string      // Interview ID, set on join
	authenticated bool
	writeTimeout  time.Duration
	ctx           context.Context
	cancel        context.CancelFunc
	closeOnce     sync.Once
	mu            sync.RWMutex // Protects join fields
}

// NewConnection creates a new WebSocket connection wrapper with default limits
func NewConnection(conn *websocket.Conn) *Connection {
	return NewConnectionWithLimits(conn, writeBuffer, writeTimeout)
}

// NewConnectionWithLimits sizes the write queue and bounds each socket write
func NewConnectionWithLimits(conn *websocket.Conn, buffer int, timeout time.Duration) *Connection {
	if buffer <= 0 {
		buffer = writeBuffer
	}
	if timeout <= 0 {
		timeout = writeTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:           uuid.New().String(),
		conn:         conn,
		writeCh:      make(chan []byte, buffer),
		writeTimeout: timeout,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

// writeLoop is the single writer for the socket
// TECHNICAL DISCOVERY: writeCh is never closed; exiting cancels the context so
// concurrent WriteJSON callers fail with ErrConnectionClosed instead of
// sending on a closed channel
func (c *Connection) writeLoop() {
	defer c.cancel()

	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON queues v for the writer goroutine
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	timer := time.NewTimer(c.writeTimeout)
	defer timer.Stop()

	select {
	case c.writeCh <- data:
		return nil
	case <-timer.C:
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close stops the writer and closes the socket; safe to call repeatedly
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Done is closed once the connection can no longer write
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// ID identifies this socket in logs
func (c *Connection) ID() string {
	return c.id
}

// CanBind reports whether SetCredentials would accept this identity
func (c *Connection) CanBind(userID, role, sessionID string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.checkBind(userID, role, sessionID)
}

func (c *Connection) checkBind(userID, role, sessionID string) error {
	if c.authenticated && (c.userID != userID || c.role != role || c.sessionID != sessionID) {
		return ErrAlreadyJoined
	}
	return nil
}

// SetCredentials binds the connection to a participant after a join event
func (c *Connection) SetCredentials(userID, role, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkBind(userID, role, sessionID); err != nil {
		return err
	}
	c.userID = userID
	c.role = role
	c.sessionID = sessionID
	c.authenticated = true

	return nil
}

func (c *Connection) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

func (c *Connection) GetUserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Connection) GetRole() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

func (c *Connection) GetSessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}
