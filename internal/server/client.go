package server

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/graylab/fleetsync/internal/infrastructure/config"
)

// sendBufferSize is the per-client outbound message buffer size.
const sendBufferSize = 256

// Client is one live connection. It starts as an observer; a successful
// devices.connect marks it as a device connection bound to a device id.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.RWMutex
	isDevice bool
	deviceID string
}

// newClient wires a client to the hub. conn may be nil in tests; the
// pumps are only started for real transports.
func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// markDevice records a successful device authentication on this
// connection.
func (c *Client) markDevice(deviceID string) {
	c.mu.Lock()
	c.isDevice = true
	c.deviceID = deviceID
	c.mu.Unlock()
}

// IsDevice reports whether this connection authenticated as a device.
func (c *Client) IsDevice() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isDevice
}

// DeviceID returns the authenticated device id, or "" for observers.
func (c *Client) DeviceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deviceID
}

// trySend attempts to hand data to the client's write pump. Delivery is
// best-effort: a full buffer (slow client) or a closed channel (client
// went away mid-broadcast) drops the message, never blocks or retries.
func (c *Client) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
		// Client buffer full, skip
	}
}

// sendEnvelope marshals and queues one envelope for this client.
func (c *Client) sendEnvelope(id int64, msgType string, data any) {
	raw, err := encodeEnvelope(id, msgType, data)
	if err != nil {
		c.hub.logger.Error("failed to marshal envelope", "type", msgType, "error", err)
		return
	}
	c.trySend(raw)
}

// readPump reads messages from the WebSocket connection and feeds them to
// the router one at a time, preserving per-connection ordering. It owns
// connection teardown: on exit the server is told so a device connection
// gets marked disconnected.
func (c *Client) readPump(s *Server) {
	defer func() {
		s.dropClient(c)
		c.conn.Close()
	}()

	cfg := s.wsCfg
	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client message resets the read deadline, keeping quiet
		// device firmware alive between value changes.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		s.handleMessage(c, message)
	}
}

// writePump writes queued messages to the WebSocket connection and pings
// on an interval.
func (c *Client) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
