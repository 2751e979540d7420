package chatserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"roomrelay/internal/registry"
)

// Server accepts connections on a listener and runs one driver per
// connection until Shutdown is called or the listener is closed.
type Server struct {
	logger        *zap.Logger
	reg           *registry.Registry
	metrics       Metrics
	maxFrameBytes int

	listenerMu sync.Mutex
	listener   net.Listener

	clientsWG sync.WaitGroup
}

// NewServer builds a Server. metrics may be nil.
func NewServer(logger *zap.Logger, reg *registry.Registry, metrics Metrics, maxFrameBytes int) *Server {
	return &Server{logger: logger, reg: reg, metrics: metrics, maxFrameBytes: maxFrameBytes}
}

// Serve accepts connections from ln until it is closed, spawning one
// driver goroutine per accepted connection. ctx is consulted only when
// Accept fails: an accept error after ctx is done is reported as a clean
// stop rather than an error. It returns once
// the accept loop stops; it does not wait for in-flight connections to
// finish — call Shutdown for that.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.listenerMu.Lock()
	s.listener = ln
	s.listenerMu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("accept connection: %w", err)
			}
		}

		s.clientsWG.Add(1)
		go func(c net.Conn) {
			defer s.clientsWG.Done()
			d := newDriver(s.logger, s.reg, s.metrics, c, s.maxFrameBytes)
			d.run()
		}(conn)
	}
}

// Shutdown closes the listener and waits (bounded by ctx) for in-flight
// connections to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.listenerMu.Lock()
	ln := s.listener
	s.listener = nil
	s.listenerMu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.clientsWG.Wait()
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out waiting for connections: %w", ctx.Err())
	case <-done:
		return nil
	}
}

// Healthy reports whether the server is still bound to a listener, for
// the metrics endpoint's /healthz check.
func (s *Server) Healthy() bool {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	return s.listener != nil
}
