package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"banishd/internal/engine"
	"banishd/internal/logging"
)

// Daemon is the surface the control socket exposes. The engine
// implements it.
type Daemon interface {
	Status() engine.Status
	Pause() error
	Resume() error
	Reveal() error
}

// writeTimeout bounds a single reply write so a stuck client cannot
// pin a handler goroutine.
const writeTimeout = 10 * time.Second

// Server answers control requests on a unix socket.
type Server struct {
	socketPath string
	daemon     Daemon
	log        *logging.Logger

	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer creates a control server for the daemon.
func NewServer(socketPath string, daemon Daemon, log *logging.Logger) *Server {
	return &Server{socketPath: socketPath, daemon: daemon, log: log}
}

// Start listens on the socket and serves until the context is
// cancelled. A stale socket from a previous run is removed first.
func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	if err := removeStaleSocket(s.socketPath); err != nil {
		return err
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on control socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("chmod control socket: %w", err)
	}
	s.listener = ln
	s.log.Info("control socket listening", "path", s.socketPath)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return
				}
				s.log.Warn("control socket accept failed", "err", err)
				continue
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.serveConn(ctx, conn)
			}()
		}
	}()
	return nil
}

// Wait blocks until all connections have drained after cancellation,
// then removes the socket.
func (s *Server) Wait() {
	s.wg.Wait()
	os.Remove(s.socketPath)
}

// removeStaleSocket deletes a leftover socket file, but refuses to if
// another daemon is still answering on it.
func removeStaleSocket(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	conn, err := net.DialTimeout("unix", path, time.Second)
	if err == nil {
		conn.Close()
		return fmt.Errorf("another instance is already listening on %s", path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	return nil
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	// An idle client blocks ReadMessage; close the connection on
	// shutdown so Wait can drain.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		req, err := ReadMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				s.log.Debug("control connection read failed", "err", err)
			}
			return
		}

		resp := s.handle(req)
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := WriteMessage(conn, resp); err != nil {
			s.log.Debug("control connection write failed", "err", err)
			return
		}
	}
}

// handle dispatches one request. Every command is serialized onto the
// engine's own loop, so visibility state stays single-owner.
func (s *Server) handle(req *Message) *Message {
	switch req.Type {
	case MsgPing:
		return &Message{Type: MsgPong}
	case MsgStatus:
		m, err := NewMessage(MsgStatusResp, s.daemon.Status())
		if err != nil {
			return NewError(err)
		}
		return m
	case MsgPause:
		if err := s.daemon.Pause(); err != nil {
			return NewError(err)
		}
		return &Message{Type: MsgOK}
	case MsgResume:
		if err := s.daemon.Resume(); err != nil {
			return NewError(err)
		}
		return &Message{Type: MsgOK}
	case MsgShow:
		if err := s.daemon.Reveal(); err != nil {
			return NewError(err)
		}
		return &Message{Type: MsgOK}
	}
	return NewError(fmt.Errorf("unknown request type %s", req.Type))
}
