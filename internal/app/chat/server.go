/*
Package chat contains the core logic for accepting TCP connections, driving
the per-connection worker, and delivering frames.

This file defines the Server struct: the TCP accept loop that spawns one
Client per connection, tracks live connections, and tears everything down on
shutdown.
*/
package chat

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"linechat/internal/pkg/logx"
)

// Server accepts TCP connections and runs one worker per connection.
type Server struct {
	addr     string
	handler  LineHandler
	listener net.Listener

	// clients tracks live connections for shutdown.
	clients map[*Client]struct{}

	// mu protects concurrent access to the clients map.
	mu sync.Mutex

	// wg tracks live connection workers.
	wg sync.WaitGroup

	// structured logger with Server context.
	logger zerolog.Logger
}

// NewServer constructs a Server listening on addr, dispatching lines to
// handler.
func NewServer(addr string, handler LineHandler) *Server {
	return &Server{
		addr:    addr,
		handler: handler,
		clients: make(map[*Client]struct{}),
		logger:  logx.Component("server"),
	}
}

// Listen binds the TCP listener. It is separate from Serve so startup can
// fail fast (exit status 1) before the accept loop runs.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.listener = listener
	s.logger.Info().Str("addr", listener.Addr().String()).Msg("Server listening")
	return nil
}

// Addr returns the bound listener address. Valid after Listen.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Serve runs the accept loop until the listener is closed. Each accepted
// connection gets its own Client with a read worker and a write pump.
func (s *Server) Serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				s.logger.Info().Msg("Listener closed, accept loop stopping")
				return
			}
			s.logger.Warn().Err(err).Msg("Error accepting connection")
			continue
		}

		client := NewClient(conn)
		s.logger.Info().Str("remote_addr", client.RemoteAddr()).Msg("Client connected")

		s.mu.Lock()
		s.clients[client] = struct{}{}
		s.mu.Unlock()

		go client.WritePump()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			client.ReadPump(s.handler)

			s.mu.Lock()
			delete(s.clients, client)
			s.mu.Unlock()
		}()
	}
}

// Shutdown closes the listener, closes every live connection, and waits for
// the workers to finish.
func (s *Server) Shutdown() {
	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for client := range s.clients {
		client.conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().Msg("Server shutdown complete.")
}
