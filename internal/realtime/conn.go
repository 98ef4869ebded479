package realtime

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 50 * time.Second
	maxMessageSize = 64 << 10
	sendQueueSize  = 256
)

// Conn is one live transport connection. A single writer goroutine owns all writes to ws;
// everything else hands frames over through the bounded send queue.
type Conn struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}

	mu       sync.Mutex
	state    State
	userID   string
	username string

	closeOnce   sync.Once
	closeCode   int
	closeReason string
	writerDone  chan struct{}
}

func newConn(ws *websocket.Conn) *Conn {
	return &Conn{
		ws:         ws,
		send:       make(chan []byte, sendQueueSize),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
		state:      StateConnecting,
	}
}

// UserID returns the authenticated identity, or "" before authentication.
func (c *Conn) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Username returns the authenticated username.
func (c *Conn) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) transition(to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.canTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.state, to)
	}
	c.state = to
	return nil
}

// authenticate binds the identity and moves Connecting -> Authenticated.
func (c *Conn) authenticate(userID, username string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.canTransition(StateAuthenticated) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.state, StateAuthenticated)
	}
	c.userID, c.username = userID, username
	c.state = StateAuthenticated
	return nil
}

// enqueue hands msg to the writer without blocking. Returns false when the connection is closed
// or its queue is full.
func (c *Conn) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close moves the connection to Closed and tells the writer to send a close frame with code.
// Safe to call more than once and from any goroutine.
func (c *Conn) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		c.closeCode, c.closeReason = code, reason
		c.mu.Unlock()
		close(c.done)
	})
}

// writePump drains the send queue to ws and pings the peer. It owns ws and closes it on exit.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
		close(c.writerDone)
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}
		case <-c.done:
			c.mu.Lock()
			code, reason := c.closeCode, c.closeReason
			c.mu.Unlock()
			_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
			return
		}
	}
}

// readPump reads frames until the peer goes away, passing each decoded envelope to handle.
// Frames that are not valid envelopes get an error event back.
func (c *Conn) readPump(handle func(Envelope)) {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			c.enqueue(errorFrame("malformed frame"))
			continue
		}
		handle(env)
	}
}

// wait blocks until the writer has exited and ws is closed.
func (c *Conn) wait() {
	<-c.writerDone
}
