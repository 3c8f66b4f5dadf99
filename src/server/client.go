package server

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
)

// errSendBufferFull is reported when a subscriber cannot keep up.
var errSendBufferFull = errors.New("send buffer full")

// -----------------------------------------------------------------------------
// Client Structure
// -----------------------------------------------------------------------------

// Client is the WebSocket transport behind one subscriber handle.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan interface{}
	id   uuid.UUID

	closeOnce sync.Once
}

// -----------------------------------------------------------------------------

// Send enqueues a message without blocking. A full buffer means the
// client is too slow to keep up; the hub treats that as a send failure
// and prunes the subscriber so fan-out never stalls.
func (c *Client) Send(message interface{}) error {
	select {
	case c.send <- message:
		return nil
	default:
		return errSendBufferFull
	}
}

// -----------------------------------------------------------------------------

// Close shuts the outbound pump down. Called by the hub on removal;
// repeated calls are a no-op.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.send)
	})
	return nil
}

// -----------------------------------------------------------------------------
// readPump - handles incoming frames from the client.
// Acts as a watchdog for the connection.
// -----------------------------------------------------------------------------

func (c *Client) readPump() {
	defer func() {
		c.hub.Unsubscribe(c.id)
		c.conn.Close()
		c.hub.Logger.Info("Client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// Subscribers send nothing meaningful; reads only surface
	// disconnects and keep the pong handler serviced.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.Logger.Info("WebSocket error: %v", err)
			}
			break
		}
	}
}

// -----------------------------------------------------------------------------
// writePump - sends messages to the client
// -----------------------------------------------------------------------------

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
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.hub.Logger.Info("Write error: %v", err)
				c.hub.Unsubscribe(c.id)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.Unsubscribe(c.id)
				return
			}
		}
	}
}
