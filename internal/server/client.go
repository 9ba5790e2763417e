// ABOUTME: Per-connection WebSocket writer
// ABOUTME: Queues outbound frames and drains them on a dedicated goroutine
package server

import (
	"sync"
	"time"

	"github.com/Deploy-u/Audio-Recording-System/internal/broadcast"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Client is the send side of one WebSocket connection. It implements
// broadcast.Peer: Send never blocks, a full queue drops the frame.
type Client struct {
	id     string
	remote string
	conn   *websocket.Conn

	sendChan     chan broadcast.Frame
	writeTimeout time.Duration
	pingInterval time.Duration
	logger       zerolog.Logger

	mu       sync.RWMutex
	closed   bool
	stopOnce sync.Once
	done     chan struct{}
	finished chan struct{}
}

func newClient(id, remote string, conn *websocket.Conn, config Config, logger zerolog.Logger) *Client {
	return &Client{
		id:           id,
		remote:       remote,
		conn:         conn,
		sendChan:     make(chan broadcast.Frame, config.SendBuffer),
		writeTimeout: config.WriteTimeout,
		pingInterval: config.PingInterval,
		logger:       logger,
		done:         make(chan struct{}),
		finished:     make(chan struct{}),
	}
}

// ID returns the connection id
func (c *Client) ID() string {
	return c.id
}

// Remote returns the peer's network address
func (c *Client) Remote() string {
	return c.remote
}

// Send queues a frame for delivery. It reports false if the connection is
// closing or the queue is full.
func (c *Client) Send(f broadcast.Frame) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return false
	}

	select {
	case c.sendChan <- f:
		return true
	default:
		return false
	}
}

// run drains the send queue and keeps the connection alive with pings.
// It must be started exactly once per client.
func (c *Client) run() {
	defer close(c.finished)
	defer c.stop()

	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case f := <-c.sendChan:
			msgType := websocket.BinaryMessage
			if f.Kind == broadcast.Text {
				msgType = websocket.TextMessage
			}

			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(msgType, f.Data); err != nil {
				// The read loop notices the closed socket and cleans up
				c.logger.Debug().Err(err).Str("kind", f.Kind.String()).Msg("observer write failed")
				_ = c.conn.Close()
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(c.writeTimeout)); err != nil {
				c.logger.Debug().Err(err).Msg("ping failed")
				_ = c.conn.Close()
				return
			}
		}
	}
}

// stop rejects further sends and signals the writer to exit
func (c *Client) stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	})
}

// close stops the writer and waits for it to exit
func (c *Client) close() {
	c.stop()
	<-c.finished
}

// closeWithReason sends a close frame; safe to call alongside the writer
func (c *Client) closeWithReason(code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout)); err != nil {
		c.logger.Debug().Err(err).Msg("error sending close frame")
	}
}
