package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"photostream-realtime/internal/infrastructure/logger"
)

// ChannelKind names the two realtime purposes a connection can serve.
type ChannelKind string

const (
	KindNotifications  ChannelKind = "notifications"
	KindUploadProgress ChannelKind = "upload-progress"
)

// State is the liveness of a connection's underlying transport.
type State int

const (
	StateOpen State = iota
	StateClosing
	StateClosed
)

var (
	ErrConnectionClosed = errors.New("connection is closed")
	ErrSendBufferFull   = errors.New("send buffer is full")
)

// Connection is a full-duplex, message-oriented channel to one client. The
// registry holds non-owning references; the transport layer owns the
// lifetime.
type Connection interface {
	ID() string
	UserID() string
	Kind() ChannelKind
	UploadID() string
	State() State
	Send(event *Event) error
	Close() error
	Context() context.Context
}

// Meta carries the per-connection facts handed to frame handlers, instead of
// closures capturing mutable outer state.
type Meta struct {
	UserID   string
	Role     string
	Kind     ChannelKind
	UploadID string
}

// FrameHandler receives each inbound text frame from a connection's read
// loop.
type FrameHandler func(conn Connection, frame []byte)

// WebSocketConnection implements Connection over a gorilla websocket.
type WebSocketConnection struct {
	id   string
	meta Meta
	conn *websocket.Conn

	ctx    context.Context
	cancel context.CancelFunc

	state   State
	stateMu sync.RWMutex

	send    chan *Event
	onFrame FrameHandler

	logger logger.Logger

	writeTimeout time.Duration
	pongTimeout  time.Duration
}

func NewWebSocketConnection(
	meta Meta,
	conn *websocket.Conn,
	onFrame FrameHandler,
	log logger.Logger,
) *WebSocketConnection {
	ctx, cancel := context.WithCancel(context.Background())

	c := &WebSocketConnection{
		id:           uuid.NewString(),
		meta:         meta,
		conn:         conn,
		ctx:          ctx,
		cancel:       cancel,
		send:         make(chan *Event, 256),
		onFrame:      onFrame,
		writeTimeout: 10 * time.Second,
		pongTimeout:  60 * time.Second,
	}
	c.logger = log.WithFields(logger.Fields{
		"connection_id": c.id,
		"user_id":       meta.UserID,
		"channel_kind":  string(meta.Kind),
	})

	c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	})

	go c.writePump()
	go c.readPump()

	return c
}

func (c *WebSocketConnection) ID() string        { return c.id }
func (c *WebSocketConnection) UserID() string    { return c.meta.UserID }
func (c *WebSocketConnection) Kind() ChannelKind { return c.meta.Kind }
func (c *WebSocketConnection) UploadID() string  { return c.meta.UploadID }

func (c *WebSocketConnection) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// Send enqueues an event for delivery. It never blocks the caller: a full
// buffer drops the frame, and a stalled transport surfaces later as a write
// deadline error on the pump, which closes the connection.
func (c *WebSocketConnection) Send(event *Event) error {
	if c.State() != StateOpen {
		return ErrConnectionClosed
	}

	select {
	case c.send <- event:
		return nil
	default:
		c.logger.Warnf("Send buffer full, dropping %s event", event.Type)
		return ErrSendBufferFull
	}
}

// Close ends the connection. Safe to call from any goroutine and more than
// once.
func (c *WebSocketConnection) Close() error {
	c.stateMu.Lock()
	if c.state == StateClosed {
		c.stateMu.Unlock()
		return nil
	}
	c.state = StateClosing
	c.stateMu.Unlock()

	c.cancel()

	// WriteControl is safe alongside the write pump.
	c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.writeTimeout),
	)
	err := c.conn.Close()

	c.stateMu.Lock()
	c.state = StateClosed
	c.stateMu.Unlock()

	c.logger.Info("WebSocket connection closed")
	return err
}

func (c *WebSocketConnection) Context() context.Context {
	return c.ctx
}

// writePump serializes all writes to the transport: queued events and
// keep-alive pings.
func (c *WebSocketConnection) writePump() {
	ticker := time.NewTicker(54 * time.Second) // under the pong timeout
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case event := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteJSON(event); err != nil {
				c.logger.Errorf("Failed to write event: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Errorf("Failed to send ping: %v", err)
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// readPump is the per-connection inbound loop; each text frame goes to the
// attached frame handler. Transport errors terminate the loop and close the
// connection.
func (c *WebSocketConnection) readPump() {
	defer c.Close()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
			) {
				c.logger.Errorf("WebSocket error: %v", err)
			}
			return
		}

		if messageType == websocket.TextMessage && c.onFrame != nil {
			c.onFrame(c, data)
		}
	}
}
