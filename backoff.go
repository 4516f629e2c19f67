package wspub

import "time"

// Backoff computes reconnect delays. The first attempt after a failure runs
// immediately; later attempts double from Base until they reach Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before reconnect attempt number retry.
func (b Backoff) Delay(retry int) time.Duration {
	if retry <= 0 || b.Base <= 0 {
		return 0
	}
	limit := b.Max
	if limit < b.Base {
		limit = b.Base
	}
	d := b.Base
	for i := 1; i < retry; i++ {
		if d > limit/2 {
			return limit
		}
		d *= 2
	}
	return min(d, limit)
}
