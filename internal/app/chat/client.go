/*
Package chat contains the core logic for accepting TCP connections, driving
the per-connection worker, and delivering frames.

This file defines the Client struct, representing one live connection. It
manages the connection's lifecycle and its two loops: ReadPump frames and
dispatches request lines, WritePump serializes outbound frames so a push
initiated by another worker never interleaves mid-frame with a response.
*/
package chat

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"linechat/internal/pkg/framing"
	"linechat/internal/pkg/logx"
)

const (
	// timeout for writing one frame to the connection.
	writeWait = 10 * time.Second

	// capacity of the outbound frame queue.
	sendQueueSize = 256
)

// LineHandler dispatches one framed request line. The return value reports
// whether the connection should terminate (DISCONNECT semantics).
type LineHandler interface {
	HandleLine(c *Client, line string) (stop bool)

	// Disconnected runs once when a client's worker terminates; it releases
	// any sessions bound to the connection.
	Disconnected(c *Client)
}

// Client represents one accepted TCP connection and its worker state.
type Client struct {
	// underlying TCP connection.
	conn net.Conn

	// outbound frame queue consumed by WritePump.
	send chan string

	// guards closed; Push and shutdown race from different workers.
	mu     sync.Mutex
	closed bool

	// structured logger with connection context.
	logger zerolog.Logger
}

// NewClient constructs a Client over an accepted connection.
func NewClient(conn net.Conn) *Client {
	clientLogger := logx.Logger().With().
		Str("component", "client").
		Str("remote_addr", conn.RemoteAddr().String()).
		Logger()

	return &Client{
		conn:   conn,
		send:   make(chan string, sendQueueSize),
		logger: clientLogger,
	}
}

// RemoteAddr returns the peer address for logging.
func (c *Client) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Push enqueues one complete protocol frame (terminator included) for
// delivery and reports whether it was accepted. It never blocks: a closed
// connection or a full queue drops the frame, which is the best-effort
// contract for pushes.
func (c *Client) Push(frame string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- frame:
		return true
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send queue full, dropping frame")
		return false
	}
}

// shutdown marks the client closed and seals the send queue so WritePump
// drains what is queued and then closes the stream. Safe to call once.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ReadPump drives the connection worker: it frames request lines, hands each
// to the handler, and performs cleanup when the stream ends.
//
// The worker terminates on: clean end-of-stream, a transport error, an
// oversize line (closed with no response), an unrecoverable write error
// observed by WritePump, or the handler requesting termination.
func (c *Client) ReadPump(handler LineHandler) {
	defer func() {
		c.shutdown()
		handler.Disconnected(c)
	}()

	framer := framing.NewLineFramer(c.conn)

	for {
		line, err := framer.ReadLine()
		if err != nil {
			switch {
			case err == io.EOF:
				c.logger.Info().Msg("Client closed connection")
			case errors.Is(err, framing.ErrLineTooLong):
				c.logger.Warn().Msg("Client sent oversize line, closing connection")
			default:
				c.logger.Info().Err(err).Msg("Transport error, closing connection")
			}
			return
		}

		if line == "" {
			continue
		}

		if stop := handler.HandleLine(c, line); stop {
			return
		}
	}
}

// WritePump writes frames from the send queue to the connection. It owns
// all writes on the stream, so every frame goes out whole. The stream is
// closed once the queue is sealed and drained.
func (c *Client) WritePump() {
	defer func() {
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for frame := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			c.logger.Info().Err(err).Msg("Failed to set write deadline")
			return
		}

		if _, err := c.conn.Write([]byte(frame)); err != nil {
			c.logger.Info().Err(err).Msg("Error writing frame")
			return
		}
	}
}
