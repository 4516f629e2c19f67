// Package gorillaws implements transport.Dialer on top of gorilla/websocket.
//
// Each handle owns two goroutines at most: one that completes the handshake
// and then reads frames until the connection dies. Writes happen on the
// caller's goroutine.
package gorillaws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/captionrelay/wspub/pkg/logger"
	"github.com/captionrelay/wspub/pkg/transport"

	gorilla "github.com/gorilla/websocket"
)

// DefaultDialer is the gorilla dialer used when Dialer.Dialer is nil.
//
// It uses the default gorilla dialer as of gorilla/websocket v1.5.0 with
// EnableCompression set to true.
var DefaultDialer = &gorilla.Dialer{
	Proxy:             gorilla.DefaultDialer.Proxy,
	HandshakeTimeout:  gorilla.DefaultDialer.HandshakeTimeout,
	EnableCompression: true,
}

const (
	DefaultWriteTimeout = 10 * time.Second
	closeGracePeriod    = time.Second
)

type Dialer struct {
	// Dialer performs the handshake. DefaultDialer is used when nil.
	Dialer *gorilla.Dialer
	// Header is sent with the handshake request.
	Header http.Header
	// WriteTimeout bounds every frame write. Zero disables the deadline.
	WriteTimeout time.Duration

	logger logger.Logger
}

func New(log logger.Logger) *Dialer {
	if log == nil {
		log = logger.Nop()
	}
	return &Dialer{WriteTimeout: DefaultWriteTimeout, logger: log}
}

// Dial validates rawURL and starts the handshake in the background.
func (d *Dialer) Dial(rawURL string, h transport.Handler) (transport.Handle, error) {
	u, err := transport.ValidateURL(rawURL)
	if err != nil {
		return nil, &transport.Error{Op: "dial", Err: err}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		handler:      h,
		logger:       d.logger,
		writeTimeout: d.WriteTimeout,
		cancelDial:   cancel,
	}
	if c.logger == nil {
		c.logger = logger.Nop()
	}
	c.state = transport.Connecting

	dialer := d.Dialer
	if dialer == nil {
		dialer = DefaultDialer
	}
	go c.dial(ctx, dialer, u.String(), d.Header)
	return c, nil
}

// Connection is a single websocket connection.
type Connection struct {
	handler      transport.Handler
	logger       logger.Logger
	writeTimeout time.Duration
	cancelDial   context.CancelFunc

	// stateMu guards state and conn. It is never held while calling the
	// handler.
	stateMu sync.Mutex
	state   transport.ReadyState
	conn    *gorilla.Conn

	// connLock serializes writers; gorilla allows one concurrent writer.
	connLock sync.Mutex

	finishOnce sync.Once
}

func (c *Connection) ReadyState() transport.ReadyState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Connection) Send(kind transport.MessageKind, data []byte) error {
	c.stateMu.Lock()
	conn := c.conn
	open := c.state == transport.Open
	c.stateMu.Unlock()
	if !open || conn == nil {
		return &transport.Error{Op: "send", Err: transport.ErrHandleClosed}
	}

	messageType := gorilla.TextMessage
	if kind == transport.Binary {
		messageType = gorilla.BinaryMessage
	}

	c.connLock.Lock()
	defer c.connLock.Unlock()

	if c.writeTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return &transport.Error{Op: "send", Err: err}
		}
	}
	if err := conn.WriteMessage(messageType, data); err != nil {
		return &transport.Error{Op: "send", Err: err}
	}
	return nil
}

// Close sends a close frame when the connection is open and tears it down.
// The OnClose event is delivered from the read goroutine.
func (c *Connection) Close() error {
	c.stateMu.Lock()
	if c.state == transport.Closing || c.state == transport.Closed {
		c.stateMu.Unlock()
		return nil
	}
	c.state = transport.Closing
	conn := c.conn
	c.stateMu.Unlock()

	if conn == nil {
		// Still dialing: cancelling makes the dial goroutine finish.
		c.cancelDial()
		return nil
	}

	msg := gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, "")
	if err := conn.WriteControl(gorilla.CloseMessage, msg, time.Now().Add(closeGracePeriod)); err != nil {
		// We still close locally so nothing leaks, although the peer
		// will not see a clean close.
		c.logger.Debug("gorillaws: failed to write close message", "error", err)
	}
	return conn.Close()
}

func (c *Connection) dial(ctx context.Context, dialer *gorilla.Dialer, url string, header http.Header) {
	defer c.cancelDial()

	conn, res, err := dialer.DialContext(ctx, url, header)
	if res != nil && res.Body != nil {
		res.Body.Close()
	}
	if err != nil {
		if c.closeRequested() {
			c.finish(transport.CloseNormal, "")
			return
		}
		c.logger.Debug("gorillaws: dial failed", "url", url, "error", err)
		c.handler.OnError(&transport.Error{Op: "dial", Err: err})
		c.finish(transport.CloseAbnormal, err.Error())
		return
	}

	c.stateMu.Lock()
	if c.state != transport.Connecting {
		c.stateMu.Unlock()
		conn.Close()
		c.finish(transport.CloseNormal, "")
		return
	}
	c.conn = conn
	c.state = transport.Open
	c.stateMu.Unlock()

	c.handler.OnOpen()
	c.readLoop(conn)
}

func (c *Connection) readLoop(conn *gorilla.Conn) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		kind := transport.Text
		if messageType == gorilla.BinaryMessage {
			kind = transport.Binary
		}
		c.handler.OnMessage(kind, data)
	}
}

func (c *Connection) handleReadError(err error) {
	if c.closeRequested() {
		c.finish(transport.CloseNormal, "")
		return
	}

	var closeErr *gorilla.CloseError
	if errors.As(err, &closeErr) && closeErr.Code != gorilla.CloseAbnormalClosure {
		c.logger.Debug("gorillaws: peer closed connection", "code", closeErr.Code, "reason", closeErr.Text)
		c.finish(closeErr.Code, closeErr.Text)
		return
	}

	c.logger.Debug("gorillaws: read failed", "error", err)
	c.handler.OnError(&transport.Error{Op: "read", Err: err})
	c.finish(transport.CloseAbnormal, err.Error())
}

func (c *Connection) closeRequested() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state == transport.Closing
}

// finish marks the connection dead and delivers the single OnClose event.
func (c *Connection) finish(code int, reason string) {
	c.finishOnce.Do(func() {
		c.stateMu.Lock()
		conn := c.conn
		c.state = transport.Closed
		c.stateMu.Unlock()

		if conn != nil {
			conn.Close()
		}
		c.handler.OnClose(code, reason)
	})
}
