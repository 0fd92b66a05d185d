package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"sync"
	"time"

	gwerrors "github.com/ajitpratap0/mcp-gateway-go/pkg/errors"
	"github.com/ajitpratap0/mcp-gateway-go/pkg/logging"
)

// maxRequestLine bounds one control request. Control commands are tiny;
// anything larger is garbage.
const maxRequestLine = 64 * 1024

// Handlers are supplied by the owning gateway. Reload must be safe to run
// concurrently with in-flight primary-channel traffic; Stop triggers the
// gateway's shutdown sequence and must not block the responding connection.
type Handlers struct {
	Reload func(ctx context.Context) ReloadResult
	Stop   func()
	Status func() StatusPayload
}

// Server listens on the control socket. Each inbound connection carries one
// request and receives one response; connections are handled independently
// and concurrently.
type Server struct {
	path     string
	handlers Handlers
	logger   logging.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithServerLogger sets the logger
func WithServerLogger(logger logging.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a control channel server bound to the given socket path.
func NewServer(path string, handlers Handlers, opts ...ServerOption) *Server {
	s := &Server{
		path:     path,
		handlers: handlers,
		logger:   logging.New(nil, nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds the socket and begins accepting connections. A stale socket
// file from a previous run is removed before binding.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return gwerrors.ControlError("start", errors.New("already started"))
	}

	// A crashed predecessor leaves the file behind; Listen would fail on it.
	_ = os.Remove(s.path)

	listener, err := net.Listen("unix", s.path)
	if err != nil {
		return gwerrors.ControlError("listen", err)
	}
	s.listener = listener
	s.conns = make(map[net.Conn]struct{})
	s.closed = false

	s.wg.Add(1)
	go s.acceptLoop(listener)

	s.logger.Info("control channel listening", logging.String("socket", s.path))
	return nil
}

func (s *Server) acceptLoop(listener net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				s.logger.Warn("control accept failed", logging.ErrorField(err))
			}
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.forget(conn)
			s.handleConn(conn)
		}()
	}
}

// handleConn reads one request line, invokes the matching handler, writes
// one response line, and closes. Handler panics are reported to the caller
// only; the gateway keeps running.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	// A caller that connects and then goes silent must not pin the
	// connection open; Close waits on every in-flight one.
	_ = conn.SetDeadline(time.Now().Add(DefaultTimeout))

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), maxRequestLine)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil && !s.isClosed() {
			s.logger.Warn("control read failed", logging.ErrorField(err))
		}
		return
	}

	var msg Message
	if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
		s.respond(conn, "", &Response{Type: ResponseError, Message: "malformed control request"})
		return
	}
	if msg.Kind != KindRequest || msg.Command == nil {
		s.respond(conn, msg.ID, &Response{Type: ResponseError, Message: "expected a request with a command"})
		return
	}

	s.logger.Debug("control command received",
		logging.String("command", string(msg.Command.Type)),
		logging.String("id", msg.ID))

	response := s.dispatch(msg.Command.Type)
	s.respond(conn, msg.ID, response)

	// Stop is invoked after the response is flushed so the caller has the
	// best chance of reading it before the process exits.
	if msg.Command.Type == CommandStop && response.Type == ResponseOK && s.handlers.Stop != nil {
		s.handlers.Stop()
	}
}

func (s *Server) dispatch(command CommandType) (response *Response) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("control handler panicked", logging.Any("panic", r))
			response = &Response{Type: ResponseError, Message: "internal handler failure"}
		}
	}()

	switch command {
	case CommandReload:
		if s.handlers.Reload == nil {
			return &Response{Type: ResponseError, Message: "reload not supported"}
		}
		result := s.handlers.Reload(context.Background())
		return &Response{Type: ResponseOK, Reload: &result}

	case CommandStop:
		if s.handlers.Stop == nil {
			return &Response{Type: ResponseError, Message: "stop not supported"}
		}
		return &Response{Type: ResponseOK}

	case CommandStatus:
		if s.handlers.Status == nil {
			return &Response{Type: ResponseError, Message: "status not supported"}
		}
		status := s.handlers.Status()
		return &Response{Type: ResponseStatus, Status: &status}

	default:
		return &Response{Type: ResponseError, Message: "unknown command: " + string(command)}
	}
}

func (s *Server) respond(conn net.Conn, id string, response *Response) {
	msg := Message{ID: id, Kind: KindResponse, Response: response}
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("control response marshal failed", logging.ErrorField(err))
		return
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		s.logger.Warn("control response write failed", logging.ErrorField(err))
	}
}

func (s *Server) forget(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops accepting connections, closes in-flight ones, waits for their
// handlers, and removes the socket file.
func (s *Server) Close() error {
	s.mu.Lock()
	listener := s.listener
	s.listener = nil
	s.closed = true
	open := make([]net.Conn, 0, len(s.conns))
	for conn := range s.conns {
		open = append(open, conn)
	}
	s.mu.Unlock()

	if listener == nil {
		return nil
	}
	err := listener.Close()
	for _, conn := range open {
		_ = conn.Close()
	}
	s.wg.Wait()
	_ = os.Remove(s.path)
	if err != nil {
		return gwerrors.ControlError("close", err)
	}
	return nil
}
