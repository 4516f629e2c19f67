package wspub

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/captionrelay/wspub/internal/rand"
	"github.com/captionrelay/wspub/pkg/clock"
	"github.com/captionrelay/wspub/pkg/codec"
	"github.com/captionrelay/wspub/pkg/logger"
	"github.com/captionrelay/wspub/pkg/queue"
	"github.com/captionrelay/wspub/pkg/transport"
)

const instanceIDLength = 12

// Publisher pushes structured records to a websocket endpoint, buffering
// them while the connection is down and reconnecting with backoff.
//
// All methods are safe for concurrent use. A Publisher never returns
// transport failures to its caller; they are reported through
// Config.OnError and the Snapshot.
type Publisher struct {
	cfg     Config
	id      string
	backoff Backoff
	dialer  transport.Dialer
	codec   codec.Codec
	clock   clock.Clock
	logger  logger.Logger

	mu sync.Mutex

	room        string
	joinPayload any
	state       State
	handle      transport.Handle
	listener    *listener
	queue       *queue.Ring[any]
	reconnect   *reconnectTimer
	manualClose bool

	retryCount       int
	droppedCount     uint64
	blockedSuspected bool
	lastError        string
	lastErrorAt      time.Time
	firstAttemptAt   time.Time
	connectedAt      time.Time
	lastSendAt       time.Time
	lastFlushAt      time.Time
	reconnectAt      time.Time

	outbox      []notification
	dispatching bool
}

type reconnectTimer struct {
	timer clock.Timer
}

// New returns an idle Publisher. It does not dial until Connect or Publish
// is called.
func New(cfg Config) *Publisher {
	cfg = cfg.withDefaults()

	p := &Publisher{
		cfg:     cfg,
		id:      rand.ID(instanceIDLength),
		backoff: Backoff{Base: cfg.BaseDelay, Max: cfg.MaxDelay},
		dialer:  cfg.Dialer,
		codec:   cfg.Codec,
		clock:   cfg.Clock,
		logger:  cfg.Logger,
		room:    cfg.Room,
		state:   StateIdle,
		queue:   queue.New[any](cfg.MaxQueue),
	}
	if cfg.JoinPayload != nil {
		if IsStructured(cfg.JoinPayload) {
			p.joinPayload = cfg.JoinPayload
		} else {
			p.logger.Warn("wspub: ignoring join payload", "id", p.id, "err", ErrInvalidPayload, "type", fmt.Sprintf("%T", cfg.JoinPayload))
		}
	}
	return p
}

// Connect (re)starts the connection. Any existing connection is dropped and
// a pending reconnect is cancelled. Dial failures are reported through
// OnError and retried with backoff.
func (p *Publisher) Connect() {
	p.mu.Lock()
	p.connectLocked()
	p.unlockAndDispatch()
}

// Disconnect closes the connection and stops reconnecting until the next
// Connect. Queued records are kept. Calling it repeatedly is harmless.
func (p *Publisher) Disconnect() {
	p.mu.Lock()
	p.manualClose = true
	p.firstAttemptAt = time.Time{}
	p.blockedSuspected = false
	p.cancelReconnectLocked()
	p.detachLocked()
	p.logger.Info("wspub: disconnected", "id", p.id, "queue_length", p.queue.Len())
	p.setStateLocked(StateClosed)
	p.unlockAndDispatch()
}

// Publish sends payload immediately when the connection is open and
// reports true. Otherwise the record is queued, a connection is started if
// none is in progress, and Publish reports false. Payloads that are not
// structured records are rejected without side effects.
func (p *Publisher) Publish(payload any) bool {
	if !IsStructured(payload) {
		p.logger.Debug("wspub: rejected payload", "id", p.id, "err", ErrInvalidPayload, "type", fmt.Sprintf("%T", payload))
		return false
	}

	p.mu.Lock()
	sent := p.sendLocked(payload)
	p.unlockAndDispatch()
	return sent
}

// Flush sends queued records in order while the connection is open. It
// stops at the first failure, leaving that record at the head of the queue.
func (p *Publisher) Flush() {
	p.mu.Lock()
	p.flushLocked()
	p.unlockAndDispatch()
}

// SetRoom changes the room announced by the default join record on the
// next successful open. An empty room suppresses the default join.
func (p *Publisher) SetRoom(room string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.room != room {
		p.logger.Debug("wspub: room changed", "id", p.id, "room", room)
	}
	p.room = room
}

func (p *Publisher) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// IsOpen reports whether the current connection is fully open.
func (p *Publisher) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handle != nil && p.handle.ReadyState() == transport.Open
}

func (p *Publisher) connectLocked() {
	p.manualClose = false
	p.blockedSuspected = false
	if p.firstAttemptAt.IsZero() {
		p.firstAttemptAt = p.clock.Now()
	}
	p.cancelReconnectLocked()
	p.detachLocked()
	p.setStateLocked(StateConnecting)

	p.logger.Debug("wspub: dialing", "id", p.id, "url", p.cfg.URL, "retry", p.retryCount)
	l := &listener{p: p}
	h, err := p.dialer.Dial(p.cfg.URL, l)
	if err != nil {
		p.recordErrorLocked("dial", err)
		p.checkBlockedLocked()
		p.scheduleReconnectLocked()
		return
	}
	p.handle = h
	p.listener = l
}

// detachLocked forgets the current handle so its remaining events are
// ignored, then asks it to close.
func (p *Publisher) detachLocked() {
	h := p.handle
	p.handle = nil
	p.listener = nil
	if h == nil {
		return
	}
	if err := h.Close(); err != nil {
		p.logger.Debug("wspub: closing detached handle failed", "id", p.id, "err", err)
	}
}

func (p *Publisher) sendLocked(payload any) bool {
	h := p.handle
	if h == nil || h.ReadyState() == transport.Closed {
		p.enqueueLocked(payload)
		if !p.manualClose && p.reconnect == nil {
			p.connectLocked()
		}
		return false
	}
	if h.ReadyState() != transport.Open {
		p.enqueueLocked(payload)
		return false
	}

	if err := p.writeLocked(h, payload); err != nil {
		var encErr *EncodeError
		if errors.As(err, &encErr) {
			p.recordErrorLocked("encode", err)
			p.enqueueLocked(payload)
			return false
		}
		p.recordErrorLocked("send", err)
		p.enqueueLocked(payload)
		if err := h.Close(); err != nil {
			p.logger.Debug("wspub: closing handle after send failure", "id", p.id, "err", err)
		}
		return false
	}
	p.lastSendAt = p.clock.Now()
	p.statsLocked()
	return true
}

func (p *Publisher) flushLocked() {
	h := p.handle
	if h == nil || h.ReadyState() != transport.Open || p.queue.Len() == 0 {
		return
	}

	sent := 0
	for p.queue.Len() > 0 {
		item, _ := p.queue.Peek()
		if err := p.writeLocked(h, item); err != nil {
			// A record the codec rejects blocks the head but leaves the
			// connection usable.
			var encErr *EncodeError
			if errors.As(err, &encErr) {
				p.recordErrorLocked("encode", err)
				break
			}
			p.recordErrorLocked("flush", err)
			if err := h.Close(); err != nil {
				p.logger.Debug("wspub: closing handle after flush failure", "id", p.id, "err", err)
			}
			break
		}
		p.queue.Pop()
		p.lastFlushAt = p.clock.Now()
		sent++
	}
	p.logger.Debug("wspub: flushed", "id", p.id, "sent", sent, "queue_length", p.queue.Len())
	p.statsLocked()
}

func (p *Publisher) writeLocked(h transport.Handle, payload any) error {
	data, err := p.codec.Marshal(payload)
	if err != nil {
		return &EncodeError{Codec: p.codec.Name(), Err: err}
	}
	return h.Send(p.codec.Kind(), data)
}

func (p *Publisher) enqueueLocked(payload any) {
	if p.queue.Push(payload) {
		p.droppedCount++
		p.logger.Warn("wspub: queue full, dropped oldest record", "id", p.id, "dropped_count", p.droppedCount)
	}
	p.logger.Debug("wspub: queued record", "id", p.id, "reason", ErrNotOpen, "queue_length", p.queue.Len())
	p.statsLocked()
}

func (p *Publisher) joinRecordLocked() any {
	if p.joinPayload != nil {
		return p.joinPayload
	}
	if p.room == "" {
		return nil
	}
	return map[string]string{"join": p.room}
}

func (p *Publisher) scheduleReconnectLocked() {
	if p.manualClose || p.reconnect != nil {
		return
	}

	delay := p.backoff.Delay(p.retryCount)
	p.reconnectAt = p.clock.Now().Add(delay)
	p.logger.Warn("wspub: reconnect scheduled", "id", p.id, "delay", delay, "retry", p.retryCount)
	p.setStateLocked(StateReconnecting)

	rt := &reconnectTimer{}
	rt.timer = p.clock.AfterFunc(delay, func() { p.fireReconnect(rt) })
	p.reconnect = rt
}

func (p *Publisher) fireReconnect(rt *reconnectTimer) {
	p.mu.Lock()
	if p.reconnect != rt {
		p.mu.Unlock()
		return
	}
	p.reconnect = nil
	p.reconnectAt = time.Time{}
	p.retryCount++
	p.connectLocked()
	p.unlockAndDispatch()
}

func (p *Publisher) cancelReconnectLocked() {
	if p.reconnect != nil {
		p.reconnect.timer.Stop()
		p.reconnect = nil
	}
	p.reconnectAt = time.Time{}
}

// checkBlockedLocked flags the endpoint as probably blocked once failures
// have persisted for BlockedAfter across at least BlockedRetryThreshold
// retries.
func (p *Publisher) checkBlockedLocked() {
	if p.firstAttemptAt.IsZero() {
		return
	}
	elapsed := p.clock.Now().Sub(p.firstAttemptAt)
	if elapsed < p.cfg.BlockedAfter || p.retryCount < p.cfg.BlockedRetryThreshold {
		return
	}
	if !p.blockedSuspected {
		p.logger.Warn("wspub: endpoint may be blocked", "id", p.id, "url", p.cfg.URL, "elapsed", elapsed, "retry", p.retryCount)
	}
	p.blockedSuspected = true
}

// recordErrorLocked stores err as the last error and queues an OnError
// notification. op names where the failure happened.
func (p *Publisher) recordErrorLocked(op string, err any) {
	p.lastError = NormalizeError(err)
	p.lastErrorAt = p.clock.Now()
	p.logger.Error("wspub: error recorded", "id", p.id, "op", op, "err", p.lastError)
	p.outbox = append(p.outbox, notification{kind: notifyError, message: p.lastError, snapshot: p.snapshotLocked()})
	p.statsLocked()
}

func (p *Publisher) setStateLocked(next State) {
	if !p.state.canTransitionTo(next) {
		p.logger.Error("BUG: unexpected state transition", "id", p.id, "from", p.state, "to", next)
	}
	p.state = next
	p.logger.Debug("wspub: state transitioned", "id", p.id, "new_state", next)
	p.outbox = append(p.outbox, notification{kind: notifyState, state: next, snapshot: p.snapshotLocked()})
	p.statsLocked()
}

func (p *Publisher) statsLocked() {
	p.outbox = append(p.outbox, notification{kind: notifyStats, snapshot: p.snapshotLocked()})
}

func (p *Publisher) snapshotLocked() Snapshot {
	return Snapshot{
		ID:               p.id,
		URL:              p.cfg.URL,
		Room:             p.room,
		State:            p.state,
		RetryCount:       p.retryCount,
		QueueLength:      p.queue.Len(),
		DroppedCount:     p.droppedCount,
		BlockedSuspected: p.blockedSuspected,
		LastError:        p.lastError,
		LastErrorAt:      p.lastErrorAt,
		FirstAttemptAt:   p.firstAttemptAt,
		ConnectedAt:      p.connectedAt,
		LastSendAt:       p.lastSendAt,
		LastFlushAt:      p.lastFlushAt,
		ReconnectAt:      p.reconnectAt,
	}
}

// listener receives the events of one handle. Events arriving after the
// handle was replaced or detached are ignored.
type listener struct {
	p       *Publisher
	errored bool
}

var _ transport.Handler = (*listener)(nil)

func (l *listener) OnOpen() {
	p := l.p
	p.mu.Lock()
	if p.listener != l {
		p.mu.Unlock()
		return
	}

	p.connectedAt = p.clock.Now()
	p.firstAttemptAt = time.Time{}
	p.retryCount = 0
	p.blockedSuspected = false
	p.logger.Info("wspub: connected", "id", p.id, "url", p.cfg.URL, "room", p.room, "queue_length", p.queue.Len())
	p.setStateLocked(StateConnected)

	if join := p.joinRecordLocked(); join != nil {
		p.sendLocked(join)
	}
	p.flushLocked()
	p.unlockAndDispatch()
}

func (l *listener) OnMessage(kind transport.MessageKind, data []byte) {
	p := l.p
	p.mu.Lock()
	if p.listener != l {
		p.mu.Unlock()
		return
	}
	msg := Message{Kind: kind, Data: data, ReceivedAt: p.clock.Now()}
	p.outbox = append(p.outbox, notification{kind: notifyMessage, msg: msg, snapshot: p.snapshotLocked()})
	p.unlockAndDispatch()
}

func (l *listener) OnError(err error) {
	p := l.p
	p.mu.Lock()
	if p.listener != l {
		p.mu.Unlock()
		return
	}
	l.errored = true
	p.recordErrorLocked("transport", err)
	p.setStateLocked(StateError)
	p.checkBlockedLocked()
	if err := p.handle.Close(); err != nil {
		p.logger.Debug("wspub: closing handle after error", "id", p.id, "err", err)
	}
	p.unlockAndDispatch()
}

func (l *listener) OnClose(code int, reason string) {
	p := l.p
	p.mu.Lock()
	if p.listener != l {
		p.mu.Unlock()
		return
	}

	if p.manualClose {
		p.setStateLocked(StateClosed)
		p.unlockAndDispatch()
		return
	}

	p.logger.Info("wspub: connection closed", "id", p.id, "code", code, "reason", reason)
	if code != transport.CloseNormal && !l.errored {
		p.recordErrorLocked("close", closeError(code, reason))
	}
	p.checkBlockedLocked()
	p.scheduleReconnectLocked()
	p.unlockAndDispatch()
}

func closeError(code int, reason string) string {
	if reason == "" {
		return fmt.Sprintf("connection closed abnormally (code %d)", code)
	}
	return fmt.Sprintf("connection closed abnormally (code %d): %s", code, reason)
}
