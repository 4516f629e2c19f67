package wspub

type notificationKind int

const (
	notifyState notificationKind = iota
	notifyStats
	notifyError
	notifyMessage
)

type notification struct {
	kind     notificationKind
	state    State
	message  string
	msg      Message
	snapshot Snapshot
}

// unlockAndDispatch releases p.mu and delivers queued notifications in
// order. Only one goroutine delivers at a time; notifications produced by a
// callback, or by another goroutine meanwhile, are delivered by the same
// loop after the current one returns.
func (p *Publisher) unlockAndDispatch() {
	if p.dispatching {
		p.mu.Unlock()
		return
	}
	p.dispatching = true
	for len(p.outbox) > 0 {
		n := p.outbox[0]
		p.outbox[0] = notification{}
		p.outbox = p.outbox[1:]
		p.mu.Unlock()

		p.deliver(n)

		p.mu.Lock()
	}
	p.outbox = nil
	p.dispatching = false
	p.mu.Unlock()
}

// deliver invokes the callback for n. A panicking callback is recovered and
// logged; the remaining notifications are still delivered.
func (p *Publisher) deliver(n notification) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("wspub: observer panicked", "id", p.id, "panic", r)
		}
	}()

	switch n.kind {
	case notifyState:
		if p.cfg.OnStateChange != nil {
			p.cfg.OnStateChange(n.state, n.snapshot)
		}
	case notifyStats:
		if p.cfg.OnStats != nil {
			p.cfg.OnStats(n.snapshot)
		}
	case notifyError:
		if p.cfg.OnError != nil {
			p.cfg.OnError(n.message, n.snapshot)
		}
	case notifyMessage:
		if p.cfg.OnMessage != nil {
			p.cfg.OnMessage(n.msg, n.snapshot)
		}
	}
}
