// Package gws implements transport.Dialer on top of lxzan/gws, whose
// event-driven handler maps directly onto transport.Handler.
package gws

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/captionrelay/wspub/pkg/logger"
	"github.com/captionrelay/wspub/pkg/transport"
	"github.com/lxzan/gws"
)

const DefaultHandshakeTimeout = 10 * time.Second

type Dialer struct {
	// Header is sent with the handshake request.
	Header            http.Header
	HandshakeTimeout  time.Duration
	PermessageDeflate bool

	logger logger.Logger
}

func New(log logger.Logger) *Dialer {
	if log == nil {
		log = logger.Nop()
	}
	return &Dialer{
		HandshakeTimeout:  DefaultHandshakeTimeout,
		PermessageDeflate: true,
		logger:            log,
	}
}

func (d *Dialer) Dial(rawURL string, h transport.Handler) (transport.Handle, error) {
	u, err := transport.ValidateURL(rawURL)
	if err != nil {
		return nil, &transport.Error{Op: "dial", Err: err}
	}

	c := &GwsConnection{handler: h, logger: d.logger, state: transport.Connecting}
	if c.logger == nil {
		c.logger = logger.Nop()
	}
	option := &gws.ClientOption{
		Addr:             u.String(),
		RequestHeader:    d.Header,
		HandshakeTimeout: d.HandshakeTimeout,
		PermessageDeflate: gws.PermessageDeflate{
			Enabled: d.PermessageDeflate,
		},
	}
	go c.dial(option)
	return c, nil
}

// GwsConnection is a single websocket connection.
type GwsConnection struct {
	handler transport.Handler
	logger  logger.Logger

	connLock sync.Mutex
	state    transport.ReadyState
	conn     *gws.Conn

	finishOnce sync.Once
}

var _ gws.Event = (*websocketHandler)(nil)

type websocketHandler struct {
	conn *GwsConnection
}

func (h *websocketHandler) OnOpen(socket *gws.Conn) {
	c := h.conn
	c.connLock.Lock()
	if c.state != transport.Connecting {
		c.connLock.Unlock()
		return
	}
	c.state = transport.Open
	c.connLock.Unlock()

	c.handler.OnOpen()
}

func (h *websocketHandler) OnClose(socket *gws.Conn, err error) {
	c := h.conn
	if c.closeRequested() {
		c.finish(transport.CloseNormal, "")
		return
	}

	var closeErr *gws.CloseError
	if errors.As(err, &closeErr) {
		c.logger.Debug("gws: peer closed connection", "code", closeErr.Code, "reason", string(closeErr.Reason))
		c.finish(int(closeErr.Code), string(closeErr.Reason))
		return
	}

	if err == nil {
		err = errors.New("connection lost")
	}
	c.logger.Debug("gws: read failed", "error", err)
	c.handler.OnError(&transport.Error{Op: "read", Err: err})
	c.finish(transport.CloseAbnormal, err.Error())
}

func (h *websocketHandler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()

	kind := transport.Text
	if message.Opcode == gws.OpcodeBinary {
		kind = transport.Binary
	}
	// The buffer is recycled by message.Close.
	data := append([]byte(nil), message.Bytes()...)
	h.conn.handler.OnMessage(kind, data)
}

func (h *websocketHandler) OnPing(socket *gws.Conn, payload []byte) {
	_ = socket.WritePong(payload)
}

func (h *websocketHandler) OnPong(socket *gws.Conn, payload []byte) {
}

func (c *GwsConnection) ReadyState() transport.ReadyState {
	c.connLock.Lock()
	defer c.connLock.Unlock()
	return c.state
}

func (c *GwsConnection) Send(kind transport.MessageKind, data []byte) error {
	c.connLock.Lock()
	conn := c.conn
	open := c.state == transport.Open
	c.connLock.Unlock()
	if !open || conn == nil {
		return &transport.Error{Op: "send", Err: transport.ErrHandleClosed}
	}

	opcode := gws.OpcodeText
	if kind == transport.Binary {
		opcode = gws.OpcodeBinary
	}
	if err := conn.WriteMessage(opcode, data); err != nil {
		return &transport.Error{Op: "send", Err: err}
	}
	return nil
}

// Close sends a close frame when the connection is open. The OnClose event
// follows from the read loop, or from the dial goroutine when the
// handshake is still in flight.
func (c *GwsConnection) Close() error {
	c.connLock.Lock()
	if c.state == transport.Closing || c.state == transport.Closed {
		c.connLock.Unlock()
		return nil
	}
	c.state = transport.Closing
	conn := c.conn
	c.connLock.Unlock()

	if conn == nil {
		return nil
	}
	// WriteClose closes the net.Conn itself, whether or not the close frame
	// made it out.
	err := conn.WriteClose(transport.CloseNormal, nil)
	if err != nil && !errors.Is(err, gws.ErrConnClosed) {
		c.logger.Debug("gws: failed to write close message", "error", err)
	}
	return nil
}

func (c *GwsConnection) dial(option *gws.ClientOption) {
	handler := &websocketHandler{conn: c}
	conn, res, err := gws.NewClient(handler, option)
	if res != nil && res.Body != nil {
		res.Body.Close()
	}
	if err != nil {
		if c.closeRequested() {
			c.finish(transport.CloseNormal, "")
			return
		}
		c.logger.Debug("gws: dial failed", "url", option.Addr, "error", err)
		c.handler.OnError(&transport.Error{Op: "dial", Err: err})
		c.finish(transport.CloseAbnormal, err.Error())
		return
	}

	c.connLock.Lock()
	if c.state != transport.Connecting {
		c.connLock.Unlock()
		conn.NetConn().Close()
		c.finish(transport.CloseNormal, "")
		return
	}
	c.conn = conn
	c.connLock.Unlock()

	// ReadLoop calls OnOpen first and OnClose when it returns.
	conn.ReadLoop()
}

func (c *GwsConnection) closeRequested() bool {
	c.connLock.Lock()
	defer c.connLock.Unlock()
	return c.state == transport.Closing
}

func (c *GwsConnection) finish(code int, reason string) {
	c.finishOnce.Do(func() {
		c.connLock.Lock()
		c.state = transport.Closed
		c.connLock.Unlock()

		c.handler.OnClose(code, reason)
	})
}
