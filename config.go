package wspub

import (
	"log/slog"
	"os"
	"time"

	"github.com/captionrelay/wspub/pkg/clock"
	"github.com/captionrelay/wspub/pkg/codec"
	"github.com/captionrelay/wspub/pkg/logger"
	"github.com/captionrelay/wspub/pkg/transport"
	"github.com/captionrelay/wspub/pkg/transport/gorillaws"
)

// DefaultURL is the endpoint used when Config.URL is empty.
const DefaultURL = "wss://api.caption.ninja:443"

const (
	DefaultMaxQueue              = 200
	MaxQueueLimit                = 100000
	DefaultBaseDelay             = time.Second
	DefaultMaxDelay              = 30 * time.Second
	DefaultBlockedAfter          = 20 * time.Second
	DefaultBlockedRetryThreshold = 4
)

// Config configures a Publisher. Zero and negative numeric fields select the
// documented defaults, so a zero delay cannot be configured.
type Config struct {
	URL  string
	Room string

	// MaxQueue bounds the number of records buffered while disconnected.
	// It is clamped to [1, MaxQueueLimit].
	MaxQueue int

	BaseDelay time.Duration
	// MaxDelay is raised to BaseDelay when smaller.
	MaxDelay time.Duration

	// BlockedAfter and BlockedRetryThreshold tune the blocked-endpoint
	// heuristic reported in Snapshot.BlockedSuspected.
	BlockedAfter          time.Duration
	BlockedRetryThreshold int

	// JoinPayload replaces the default {"join": Room} record sent on every
	// successful open. It must be a structured record.
	JoinPayload any

	OnStateChange func(State, Snapshot)
	OnStats       func(Snapshot)
	OnError       func(string, Snapshot)
	OnMessage     func(Message, Snapshot)

	Dialer transport.Dialer
	Codec  codec.Codec
	Clock  clock.Clock
	Logger logger.Logger
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.MaxQueue <= 0 {
		c.MaxQueue = DefaultMaxQueue
	}
	if c.MaxQueue > MaxQueueLimit {
		c.MaxQueue = MaxQueueLimit
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
	if c.BlockedAfter <= 0 {
		c.BlockedAfter = DefaultBlockedAfter
	}
	if c.BlockedRetryThreshold <= 0 {
		c.BlockedRetryThreshold = DefaultBlockedRetryThreshold
	}
	if c.Logger == nil {
		c.Logger = logger.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if c.Dialer == nil {
		c.Dialer = gorillaws.New(c.Logger)
	}
	if c.Codec == nil {
		c.Codec = codec.JSON()
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	return c
}
