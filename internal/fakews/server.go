// Package fakews provides a fake websocket endpoint for integration tests.
// It records every frame it receives and can inject connection failures.
//
// The WebSocket server is implemented using the `gws` library.
package fakews

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/lxzan/gws"
)

// FailureType represents the type of failure to inject when the next frame
// arrives.
type FailureType string

const (
	// FailureNone indicates no failure injection
	FailureNone FailureType = "none"
	// FailureDropConnection immediately closes the underlying network connection
	FailureDropConnection FailureType = "drop_connection"
	// FailureWebSocketClose sends a close frame with the configured code/reason
	FailureWebSocketClose FailureType = "websocket_close"
)

type FailureConfig struct {
	Type FailureType
	// CloseCode is the WebSocket close code for FailureWebSocketClose
	CloseCode uint16
	// CloseReason is the WebSocket close reason for FailureWebSocketClose
	CloseReason string
}

// Frame is a message received from a client.
type Frame struct {
	ConnID string
	Opcode gws.Opcode
	Data   []byte
}

func (f Frame) Text() string {
	return string(f.Data)
}

type Server struct {
	addr       string
	listener   net.Listener
	upgrader   *gws.Upgrader
	httpServer *http.Server
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}

	mu          sync.RWMutex
	connections map[*gws.Conn]string
	received    []Frame
	opened      int
	failure     *FailureConfig
	reply       func(f Frame) []byte
}

// Handler implements the gws.Event interface for server connections
type Handler struct {
	server *Server
}

// NewServer creates a new fake endpoint.
// Use "127.0.0.1:0" to bind to a random available port.
func NewServer(addr string) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:        addr,
		ctx:         ctx,
		cancel:      cancel,
		connections: make(map[*gws.Conn]string),
		done:        make(chan struct{}),
	}
	s.upgrader = gws.NewUpgrader(&Handler{server: s}, &gws.ServerOption{})
	s.httpServer = &http.Server{
		Handler:           http.HandlerFunc(s.serveHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	socket, err := s.upgrader.Upgrade(w, r)
	if err != nil {
		return
	}
	go socket.ReadLoop()
}

func (s *Server) Start() error {
	var lc net.ListenConfig
	listener, err := lc.Listen(s.ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("fakews: failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener

	go func() {
		defer close(s.done)
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("fakews: server error: %v", err)
		}
	}()
	return nil
}

// Stop closes the listener and every open connection. It returns once the
// accept loop has exited.
func (s *Server) Stop() error {
	s.cancel()
	if s.listener == nil {
		return nil
	}
	err := s.httpServer.Close()
	s.DropAll()
	<-s.done
	return err
}

// Address returns the actual address the server is listening on.
// This is useful when using "127.0.0.1:0" to get the assigned port.
func (s *Server) Address() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (s *Server) URL() string {
	return "ws://" + s.Address()
}

// SetFailure arms a failure that is applied when the next frame arrives.
func (s *Server) SetFailure(f FailureConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = &f
}

// SetReply installs a function called for every received frame. A non-nil
// return value is written back to the sender as a text frame.
func (s *Server) SetReply(fn func(f Frame) []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reply = fn
}

func (s *Server) Received() []Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Frame(nil), s.received...)
}

// Texts returns the payload of every received frame.
func (s *Server) Texts() []string {
	frames := s.Received()
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.Text()
	}
	return out
}

// Connections returns the number of currently open connections.
func (s *Server) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

// Opened returns the number of connections accepted since start.
func (s *Server) Opened() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opened
}

// Broadcast writes data to every open connection.
func (s *Server) Broadcast(opcode gws.Opcode, data []byte) {
	for _, socket := range s.sockets() {
		if err := socket.WriteMessage(opcode, data); err != nil {
			log.Printf("fakews: broadcast failed: %v", err)
		}
	}
}

// DropAll closes every connection without a close frame.
func (s *Server) DropAll() {
	for _, socket := range s.sockets() {
		_ = socket.NetConn().Close()
	}
}

// CloseAll sends a close frame with code and reason to every connection.
func (s *Server) CloseAll(code uint16, reason string) {
	for _, socket := range s.sockets() {
		socket.WriteClose(code, []byte(reason))
	}
}

func (s *Server) sockets() []*gws.Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*gws.Conn, 0, len(s.connections))
	for socket := range s.connections {
		out = append(out, socket)
	}
	return out
}

func (h *Handler) OnOpen(socket *gws.Conn) {
	id, err := uuid.NewV4()
	if err != nil {
		log.Printf("fakews: failed to generate connection id: %v", err)
	}

	h.server.mu.Lock()
	h.server.connections[socket] = id.String()
	h.server.opened++
	h.server.mu.Unlock()
}

func (h *Handler) OnClose(socket *gws.Conn, err error) {
	h.server.mu.Lock()
	delete(h.server.connections, socket)
	h.server.mu.Unlock()
}

func (h *Handler) OnPing(socket *gws.Conn, payload []byte) {
	_ = socket.WritePong(payload)
}

func (h *Handler) OnPong(socket *gws.Conn, payload []byte) {
}

func (h *Handler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()

	s := h.server
	s.mu.Lock()
	frame := Frame{
		ConnID: s.connections[socket],
		Opcode: message.Opcode,
		Data:   append([]byte(nil), message.Bytes()...),
	}
	failure := s.failure
	s.failure = nil
	if failure == nil || failure.Type == FailureNone {
		s.received = append(s.received, frame)
	}
	reply := s.reply
	s.mu.Unlock()

	if failure != nil {
		switch failure.Type {
		case FailureDropConnection:
			_ = socket.NetConn().Close()
			return
		case FailureWebSocketClose:
			socket.WriteClose(failure.CloseCode, []byte(failure.CloseReason))
			return
		}
	}

	if reply != nil {
		if out := reply(frame); out != nil {
			if err := socket.WriteMessage(gws.OpcodeText, out); err != nil {
				log.Printf("fakews: reply failed: %v", err)
			}
		}
	}
}
