// Package faketransport is an in-memory transport driven explicitly by
// tests. Nothing happens on its own: tests call Open, Fail, Drop,
// FinishClose and Receive to produce the events a real websocket would.
package faketransport

import (
	"errors"
	"sync"

	"github.com/captionrelay/wspub/pkg/transport"
)

// ErrDialRefused is a convenient dial failure for tests.
var ErrDialRefused = errors.New("faketransport: connection refused")

// Frame is one record written through Send.
type Frame struct {
	Kind transport.MessageKind
	Data []byte
}

// Dialer hands out Handles and remembers every one of them.
type Dialer struct {
	mu      sync.Mutex
	handles []*Handle
	urls    []string
	failErr error
	failN   int
}

func NewDialer() *Dialer {
	return &Dialer{}
}

// FailNext makes the next n Dial calls return err. A negative n fails every
// call until FailNext is called again.
func (d *Dialer) FailNext(n int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failN = n
	d.failErr = err
}

func (d *Dialer) Dial(url string, h transport.Handler) (transport.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.urls = append(d.urls, url)
	if d.failN != 0 {
		if d.failN > 0 {
			d.failN--
		}
		return nil, &transport.Error{Op: "dial", Err: d.failErr}
	}

	handle := &Handle{url: url, handler: h, state: transport.Connecting}
	d.handles = append(d.handles, handle)
	return handle, nil
}

// Dials returns the number of Dial calls, failed ones included.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *Dialer) Handles() []*Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Handle(nil), d.handles...)
}

// Last returns the most recently created handle, or nil.
func (d *Dialer) Last() *Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.handles) == 0 {
		return nil
	}
	return d.handles[len(d.handles)-1]
}

// Handle is a scripted connection.
type Handle struct {
	mu         sync.Mutex
	url        string
	handler    transport.Handler
	state      transport.ReadyState
	sent       []Frame
	sendHook   func(n int, data []byte) error
	closeCalls int
}

func (h *Handle) URL() string {
	return h.url
}

func (h *Handle) ReadyState() transport.ReadyState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handle) Send(kind transport.MessageKind, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != transport.Open {
		return &transport.Error{Op: "send", Err: transport.ErrHandleClosed}
	}
	if h.sendHook != nil {
		if err := h.sendHook(len(h.sent)+1, data); err != nil {
			return &transport.Error{Op: "send", Err: err}
		}
	}
	h.sent = append(h.sent, Frame{Kind: kind, Data: append([]byte(nil), data...)})
	return nil
}

// Close moves the handle to Closing. The close event is only delivered by
// FinishClose.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closeCalls++
	if h.state == transport.Connecting || h.state == transport.Open {
		h.state = transport.Closing
	}
	return nil
}

// FailSends installs a hook consulted before every send. n counts
// successful and failed sends on this handle, starting at one.
func (h *Handle) FailSends(hook func(n int, data []byte) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sendHook = hook
}

// Open completes the handshake.
func (h *Handle) Open() {
	h.mu.Lock()
	h.state = transport.Open
	h.mu.Unlock()
	h.handler.OnOpen()
}

func (h *Handle) Receive(kind transport.MessageKind, data []byte) {
	h.handler.OnMessage(kind, data)
}

// Fail reports a transport error without closing.
func (h *Handle) Fail(err error) {
	h.handler.OnError(err)
}

// Drop closes the handle from the remote side.
func (h *Handle) Drop(code int, reason string) {
	h.mu.Lock()
	h.state = transport.Closed
	h.mu.Unlock()
	h.handler.OnClose(code, reason)
}

// FinishClose delivers the close event for a locally requested Close.
func (h *Handle) FinishClose() {
	h.Drop(transport.CloseNormal, "")
}

func (h *Handle) Sent() []Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Frame(nil), h.sent...)
}

// SentStrings returns the payload of every sent frame as a string.
func (h *Handle) SentStrings() []string {
	frames := h.Sent()
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = string(f.Data)
	}
	return out
}

func (h *Handle) CloseCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closeCalls
}
