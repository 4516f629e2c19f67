package wspub

import "time"

// Snapshot is a point-in-time view of a Publisher. Zero times mean the event
// has not happened (or, for ReconnectAt, that no reconnect is pending).
type Snapshot struct {
	ID               string    `json:"id"`
	URL              string    `json:"url"`
	Room             string    `json:"room"`
	State            State     `json:"state"`
	RetryCount       int       `json:"retryCount"`
	QueueLength      int       `json:"queueLength"`
	DroppedCount     uint64    `json:"droppedCount"`
	BlockedSuspected bool      `json:"blockedSuspected"`
	LastError        string    `json:"lastError,omitempty"`
	LastErrorAt      time.Time `json:"lastErrorAt"`
	FirstAttemptAt   time.Time `json:"firstAttemptAt"`
	ConnectedAt      time.Time `json:"connectedAt"`
	LastSendAt       time.Time `json:"lastSendAt"`
	LastFlushAt      time.Time `json:"lastFlushAt"`
	ReconnectAt      time.Time `json:"reconnectAt"`
}

func (s Snapshot) ReconnectPending() bool {
	return !s.ReconnectAt.IsZero()
}

func (s Snapshot) Connected() bool {
	return s.State == StateConnected
}
