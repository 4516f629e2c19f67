// Package transport defines the contract between a Publisher and the
// websocket implementation that carries its frames.
//
// A Dialer returns a Handle immediately and completes the handshake in the
// background. Progress is reported through the Handler passed to Dial:
// OnOpen once the handle is usable, OnMessage for every inbound frame,
// OnError for failures, and exactly one OnClose once the handle is dead.
// Implementations never call Handler methods synchronously from Send or Close.
package transport

import (
	"errors"
	"fmt"
	"net/url"
)

// Close codes used by the implementations when the peer did not supply one.
const (
	CloseNormal   = 1000
	CloseAbnormal = 1006
)

var (
	// ErrHandleClosed is returned by Send when the handle is not open.
	ErrHandleClosed = errors.New("transport: handle is not open")
	// ErrInvalidURL is returned by Dial for URLs that are not ws:// or wss://.
	ErrInvalidURL = errors.New("transport: invalid websocket url")
)

type MessageKind int

const (
	Text MessageKind = iota + 1
	Binary
)

func (k MessageKind) String() string {
	switch k {
	case Text:
		return "text"
	case Binary:
		return "binary"
	default:
		return fmt.Sprintf("MessageKind(%d)", int(k))
	}
}

// ReadyState mirrors the four readiness states of a websocket.
type ReadyState int32

const (
	Connecting ReadyState = iota
	Open
	Closing
	Closed
)

func (s ReadyState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("ReadyState(%d)", int32(s))
	}
}

type Handler interface {
	OnOpen()
	OnMessage(kind MessageKind, data []byte)
	OnError(err error)
	OnClose(code int, reason string)
}

type Handle interface {
	ReadyState() ReadyState
	Send(kind MessageKind, data []byte) error
	Close() error
}

type Dialer interface {
	Dial(url string, h Handler) (Handle, error)
}

// DialerFunc adapts a plain function to the Dialer interface.
type DialerFunc func(url string, h Handler) (Handle, error)

func (f DialerFunc) Dial(url string, h Handler) (Handle, error) {
	return f(url, h)
}

// Error records the transport operation that failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": unknown error"
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ValidateURL parses raw and checks that it names a websocket endpoint.
func ValidateURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty url", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return u, nil
}
