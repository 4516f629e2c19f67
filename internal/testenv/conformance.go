package testenv

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/captionrelay/wspub/pkg/transport"
	"github.com/lxzan/gws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 3 * time.Second

type Message struct {
	Kind transport.MessageKind
	Data string
}

type Close struct {
	Code   int
	Reason string
}

// Recorder is a transport.Handler that forwards every event to a channel.
type Recorder struct {
	Opened   chan struct{}
	Messages chan Message
	Errors   chan error
	Closed   chan Close

	opens  atomic.Int32
	closes atomic.Int32
}

func NewRecorder() *Recorder {
	return &Recorder{
		Opened:   make(chan struct{}, 4),
		Messages: make(chan Message, 64),
		Errors:   make(chan error, 4),
		Closed:   make(chan Close, 4),
	}
}

func (r *Recorder) OnOpen() {
	r.opens.Add(1)
	r.Opened <- struct{}{}
}

func (r *Recorder) OnMessage(kind transport.MessageKind, data []byte) {
	r.Messages <- Message{Kind: kind, Data: string(data)}
}

func (r *Recorder) OnError(err error) {
	r.Errors <- err
}

func (r *Recorder) OnClose(code int, reason string) {
	r.closes.Add(1)
	r.Closed <- Close{Code: code, Reason: reason}
}

func (r *Recorder) WaitOpen(t testing.TB) {
	t.Helper()
	select {
	case <-r.Opened:
	case err := <-r.Errors:
		t.Fatalf("expected open, got error: %v", err)
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for open")
	}
}

func (r *Recorder) WaitClose(t testing.TB) Close {
	t.Helper()
	select {
	case c := <-r.Closed:
		return c
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for close")
		return Close{}
	}
}

func (r *Recorder) WaitMessage(t testing.TB) Message {
	t.Helper()
	select {
	case m := <-r.Messages:
		return m
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

// RunTransportConformance checks the contract every transport.Dialer must
// honour against a fake endpoint.
func RunTransportConformance(t *testing.T, newDialer func() transport.Dialer) {
	t.Run("invalid url fails synchronously", func(t *testing.T) {
		h, err := newDialer().Dial("http://127.0.0.1:1", NewRecorder())
		require.Error(t, err)
		assert.Nil(t, h)
		assert.ErrorIs(t, err, transport.ErrInvalidURL)
	})

	t.Run("send receive and close", func(t *testing.T) {
		srv := MustServer(t)
		rec := NewRecorder()

		h, err := newDialer().Dial(srv.URL(), rec)
		require.NoError(t, err)
		rec.WaitOpen(t)
		assert.Equal(t, transport.Open, h.ReadyState())

		require.NoError(t, h.Send(transport.Text, []byte(`{"join":"r1"}`)))
		require.NoError(t, h.Send(transport.Binary, []byte{0xa0}))
		require.Eventually(t, func() bool { return len(srv.Received()) == 2 }, waitTimeout, 10*time.Millisecond)
		frames := srv.Received()
		assert.Equal(t, `{"join":"r1"}`, frames[0].Text())
		assert.Equal(t, gws.OpcodeText, frames[0].Opcode)
		assert.Equal(t, gws.OpcodeBinary, frames[1].Opcode)

		srv.Broadcast(gws.OpcodeText, []byte(`{"type":"ack"}`))
		assert.Equal(t, Message{Kind: transport.Text, Data: `{"type":"ack"}`}, rec.WaitMessage(t))

		require.NoError(t, h.Close())
		assert.Equal(t, transport.CloseNormal, rec.WaitClose(t).Code)
		assert.Equal(t, transport.Closed, h.ReadyState())
		require.NoError(t, h.Close())

		err = h.Send(transport.Text, []byte(`{}`))
		assert.ErrorIs(t, err, transport.ErrHandleClosed)
		assert.Empty(t, rec.Errors)
		assert.EqualValues(t, 1, rec.closes.Load())
	})

	t.Run("unreachable endpoint", func(t *testing.T) {
		srv := MustServer(t)
		url := srv.URL()
		require.NoError(t, srv.Stop())

		rec := NewRecorder()
		h, err := newDialer().Dial(url, rec)
		require.NoError(t, err)

		select {
		case err := <-rec.Errors:
			assert.Error(t, err)
		case <-time.After(waitTimeout):
			t.Fatal("timed out waiting for dial error")
		}
		assert.Equal(t, transport.CloseAbnormal, rec.WaitClose(t).Code)
		assert.Equal(t, transport.Closed, h.ReadyState())
		assert.Zero(t, rec.opens.Load())
	})

	t.Run("peer drops connection", func(t *testing.T) {
		srv := MustServer(t)
		rec := NewRecorder()
		h, err := newDialer().Dial(srv.URL(), rec)
		require.NoError(t, err)
		rec.WaitOpen(t)

		srv.DropAll()

		assert.Equal(t, transport.CloseAbnormal, rec.WaitClose(t).Code)
		assert.Len(t, rec.Errors, 1)
		assert.Equal(t, transport.Closed, h.ReadyState())
	})

	t.Run("peer sends close frame", func(t *testing.T) {
		srv := MustServer(t)
		rec := NewRecorder()
		_, err := newDialer().Dial(srv.URL(), rec)
		require.NoError(t, err)
		rec.WaitOpen(t)

		srv.CloseAll(4001, "kicked")

		assert.Equal(t, Close{Code: 4001, Reason: "kicked"}, rec.WaitClose(t))
		assert.Empty(t, rec.Errors)
	})

	t.Run("close while dialing", func(t *testing.T) {
		srv := MustServer(t)
		rec := NewRecorder()
		h, err := newDialer().Dial(srv.URL(), rec)
		require.NoError(t, err)

		require.NoError(t, h.Close())

		assert.Equal(t, transport.CloseNormal, rec.WaitClose(t).Code)
		assert.Empty(t, rec.Errors)
		assert.Equal(t, transport.Closed, h.ReadyState())
	})
}
