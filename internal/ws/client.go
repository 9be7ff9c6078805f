package ws

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/taskmgr818/rehab-client/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 20 // processed frames are base64 JPEGs
	sendBufferSize = 256
)

// State is the connection lifecycle state. It is owned by the Client and
// mutated only on socket lifecycle events.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateClosed       State = "closed"
	StateErrored      State = "errored"
)

var (
	// ErrAlreadyConnecting is returned when Connect is called while a
	// previous attempt is still in flight.
	ErrAlreadyConnecting = errors.New("connect already in progress")

	// ErrAlreadyConnected is returned when Connect is called on an open
	// connection. Use Reconnect to cycle it.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrConnection marks a failed or superseded connection attempt.
	ErrConnection = errors.New("connection failed")
)

// Handler receives connection lifecycle events and raw inbound frames.
// OnMessage is called from a single goroutine in strict arrival order.
type Handler interface {
	OnOpened()
	OnClosed()
	OnMessage(raw []byte)
	OnError(err error)
}

// Client manages the one persistent WebSocket connection to the evaluation
// backend. There is no automatic reconnection: connection loss is surfaced
// through the handler and escalated to the user.
type Client struct {
	serverURL string
	handler   Handler
	parentCtx context.Context

	mu         sync.Mutex
	state      State
	conn       *websocket.Conn
	send       chan []byte
	connCancel context.CancelFunc
	dialCancel context.CancelFunc
	attempt    uint64
}

// NewClient creates a new WebSocket client. The provided ctx controls the
// client lifetime; cancelling it closes any open connection.
func NewClient(ctx context.Context, serverURL string, handler Handler) *Client {
	return &Client{
		serverURL: serverURL,
		handler:   handler,
		parentCtx: ctx,
		state:     StateDisconnected,
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect establishes the WebSocket connection. It blocks until the socket
// is open or the dial fails. At most one attempt may be in flight; a
// concurrent call fails with ErrAlreadyConnecting.
func (c *Client) Connect() error {
	c.mu.Lock()
	switch c.state {
	case StateConnecting:
		c.mu.Unlock()
		return ErrAlreadyConnecting
	case StateOpen:
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	dialCtx, dialCancel := context.WithCancel(c.parentCtx)
	c.attempt++
	attempt := c.attempt
	c.state = StateConnecting
	c.dialCancel = dialCancel
	c.mu.Unlock()

	// The ctx covers only the handshake; cancelling it afterwards does not
	// affect an established connection.
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.serverURL, nil)
	dialCancel()

	// Disconnect may have cancelled this attempt while the dial was in
	// flight; in that case the result must not be installed.
	c.mu.Lock()
	current := c.attempt == attempt && c.state == StateConnecting
	if err != nil {
		if current {
			c.state = StateErrored
			c.dialCancel = nil
		}
		c.mu.Unlock()
		return fmt.Errorf("dial %s: %w: %w", c.serverURL, ErrConnection, err)
	}
	if !current {
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("dial %s: %w: attempt superseded", c.serverURL, ErrConnection)
	}

	connCtx, connCancel := context.WithCancel(c.parentCtx)
	send := make(chan []byte, sendBufferSize)
	c.conn = conn
	c.send = send
	c.connCancel = connCancel
	c.dialCancel = nil
	c.state = StateOpen
	c.mu.Unlock()

	log.Printf("[ws] connected to %s", c.serverURL)
	c.handler.OnOpened()

	// Each connection gets its own teardown handler, fired at most once.
	var once sync.Once
	onDisconnect := func(cause error) {
		once.Do(func() {
			connCancel()
			conn.Close()

			c.mu.Lock()
			isCurrentConn := c.conn == conn
			if isCurrentConn {
				c.conn = nil
				c.send = nil
				if cause != nil {
					c.state = StateErrored
				} else {
					c.state = StateClosed
				}
			}
			c.mu.Unlock()

			if isCurrentConn {
				if cause != nil {
					log.Printf("[ws] connection error: %v", cause)
					c.handler.OnError(cause)
				} else {
					log.Printf("[ws] disconnected from server")
				}
				c.handler.OnClosed()
			}
		})
	}

	go c.readPump(conn, onDisconnect)
	go c.writePump(connCtx, conn, send, onDisconnect)

	return nil
}

// Reconnect closes the current connection and establishes a new one.
func (c *Client) Reconnect() error {
	c.Disconnect()
	time.Sleep(100 * time.Millisecond)
	return c.Connect()
}

// Disconnect closes the connection unconditionally. It is idempotent and
// safe to call in any state.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	cancel := c.connCancel
	dialCancel := c.dialCancel
	c.conn = nil
	c.send = nil
	c.connCancel = nil
	c.dialCancel = nil
	if c.state == StateOpen || c.state == StateConnecting {
		c.state = StateClosed
	}
	c.mu.Unlock()

	if dialCancel != nil {
		dialCancel()
	}
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
		c.handler.OnClosed()
	}
}

// Send encodes and queues a command. It reports whether the send was
// accepted: false when the connection is not open or the outbound buffer
// is full. Acceptance does not imply delivery.
func (c *Client) Send(cmd protocol.Command) bool {
	data, err := protocol.Encode(cmd)
	if err != nil {
		log.Printf("[ws] encode failed: %v", err)
		return false
	}

	c.mu.Lock()
	open := c.state == StateOpen
	send := c.send
	c.mu.Unlock()

	if !open || send == nil {
		return false
	}

	select {
	case send <- data:
		return true
	default:
		log.Printf("[ws] send buffer full, dropping %T", cmd)
		return false
	}
}

func (c *Client) readPump(conn *websocket.Conn, onDisconnect func(error)) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				onDisconnect(err)
			} else {
				onDisconnect(nil)
			}
			return
		}
		c.handler.OnMessage(message)
	}
}

func (c *Client) writePump(ctx context.Context, conn *websocket.Conn, send <-chan []byte, onDisconnect func(error)) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-send:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				onDisconnect(nil)
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				onDisconnect(err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				onDisconnect(err)
				return
			}

		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			onDisconnect(nil)
			return
		}
	}
}
