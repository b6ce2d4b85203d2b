package editor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB

	// Outbound buffer per connection; a subscriber that falls this far
	// behind is dropped by the hub.
	sendBufferSize = 256
)

// Client is one authenticated duplex connection. Inbound frames are handled
// sequentially on the read pump goroutine; outbound frames flow through the
// buffered send channel, so each connection observes server sends in order.
type Client struct {
	id      string
	userID  string
	service *Service
	conn    *websocket.Conn
	send    chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func newClient(service *Service, conn *websocket.Conn, connID, userID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		id:      connID,
		userID:  userID,
		service: service,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// readPump pumps messages from the websocket connection into the session
// handlers.
func (c *Client) readPump() {
	defer func() {
		c.service.disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.WithError(err).WithField("conn", c.id).Warn("websocket read error")
			}
			return
		}
		c.processMessage(message)
	}
}

// writePump pumps frames from the send channel to the websocket connection
// and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processMessage decodes and dispatches one inbound frame.
func (c *Client) processMessage(message []byte) {
	c.service.metrics.MessagesReceived.Inc()

	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		log.WithError(err).WithField("conn", c.id).Debug("unmarshaling client message")
		c.sendError("invalid message format")
		return
	}

	switch msg.Type {
	case MsgJoinDoc:
		c.handleJoin(msg)
	case MsgSendOp:
		c.handleSendOp(msg)
	case MsgCursorUpdate:
		c.handleCursorUpdate(msg)
	case MsgLeaveDoc:
		c.handleLeave(msg)
	default:
		log.WithFields(log.Fields{
			"conn": c.id,
			"type": msg.Type,
		}).Debug("unknown message type")
		c.sendError("unknown event: " + msg.Type)
	}
}

// enqueue offers a marshaled frame to the send channel without blocking and
// reports whether it was accepted.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		c.service.metrics.MessagesSent.Inc()
		return true
	default:
		return false
	}
}

// sendMessage marshals and enqueues a frame for this connection only.
func (c *Client) sendMessage(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.WithError(err).WithField("type", msg.Type).Error("marshaling server message")
		return
	}
	if !c.enqueue(data) {
		log.WithField("conn", c.id).Warn("send buffer full, dropping connection")
		c.closeSlow()
	}
}

// sendError reports a terminal protocol failure to this connection only.
func (c *Client) sendError(message string) {
	c.sendMessage(ServerMessage{Type: MsgError, Message: message})
}

// closeSend closes the send channel exactly once; the write pump then
// finishes the websocket close handshake.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// closeSlow tears down a connection that cannot keep up. The read pump's
// deferred disconnect performs room cleanup.
func (c *Client) closeSlow() {
	c.service.metrics.SlowClientsDropped.Inc()
	c.closeSend()
	c.conn.Close()
}
