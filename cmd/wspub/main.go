// Command wspub publishes newline-delimited JSON records from stdin to a
// websocket endpoint, reconnecting and buffering as needed.
//
//	echo '{"msg":"hello"}' | wspub -url ws://127.0.0.1:8080 -room demo
package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/captionrelay/wspub"
	"github.com/captionrelay/wspub/pkg/config"
	"github.com/captionrelay/wspub/pkg/logger"
	"github.com/captionrelay/wspub/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	maxLineSize         = 1 << 20
	defaultDrainTimeout = 5 * time.Second
	drainPollInterval   = 50 * time.Millisecond
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

type options struct {
	configPath   string
	url          string
	room         string
	transport    string
	codec        string
	metricsAddr  string
	logFormat    string
	verbose      bool
	drainTimeout time.Duration
}

func parseFlags(args []string, stderr io.Writer) (*options, map[string]bool, error) {
	opts := &options{}
	fs := flag.NewFlagSet("wspub", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "path to YAML config file (watched for changes)")
	fs.StringVar(&opts.url, "url", "", "websocket endpoint (ws:// or wss://)")
	fs.StringVar(&opts.room, "room", "", "room announced on every open")
	fs.StringVar(&opts.transport, "transport", "", "websocket client: gorilla | gws")
	fs.StringVar(&opts.codec, "codec", "", "frame encoding: json | cbor")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on host:port")
	fs.StringVar(&opts.logFormat, "log-format", "", "log format: text | json | zerolog")
	fs.BoolVar(&opts.verbose, "verbose", false, "enable debug logging")
	fs.DurationVar(&opts.drainTimeout, "drain-timeout", defaultDrainTimeout, "how long to wait for queued records on exit")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return opts, set, nil
}

// loadConfig resolves the file (or defaults plus environment) and applies
// explicitly set flags on top.
func loadConfig(opts *options, set map[string]bool) (*config.File, error) {
	var (
		cfg *config.File
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.Load(opts.configPath)
	} else {
		cfg, err = config.Parse(nil)
	}
	if err != nil {
		return nil, err
	}
	applyFlags(cfg, opts, set)
	return cfg, nil
}

func applyFlags(cfg *config.File, opts *options, set map[string]bool) {
	if set["url"] {
		cfg.URL = opts.url
	}
	if set["room"] {
		cfg.Room = opts.room
	}
	if set["transport"] {
		cfg.Transport = opts.transport
	}
	if set["codec"] {
		cfg.Codec = opts.codec
	}
	if set["metrics-addr"] {
		cfg.Metrics.Addr = opts.metricsAddr
	}
	if set["log-format"] {
		cfg.Log.Format = opts.logFormat
	}
	if set["verbose"] {
		cfg.Log.Verbose = opts.verbose
	}
}

// console serializes writes from publisher callbacks, which may run on
// transport goroutines.
type console struct {
	mu sync.Mutex
	w  io.Writer
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts, set, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := loadConfig(opts, set)
	if err != nil {
		fmt.Fprintf(stderr, "wspub: %v\n", err)
		return 1
	}

	log, err := logger.ForFormat(cfg.Log.Format, stderr, cfg.Log.Verbose)
	if err != nil {
		fmt.Fprintf(stderr, "wspub: %v\n", err)
		return 1
	}

	pcfg, err := cfg.PublisherConfig(log)
	if err != nil {
		log.Error("wspub: invalid configuration", "err", err)
		return 1
	}

	out := &console{w: stdout}
	var observer *metrics.Observer
	registry := prometheus.NewRegistry()
	if cfg.Metrics.Addr != "" {
		observer, err = metrics.NewObserver(registry, nil)
		if err != nil {
			log.Error("wspub: failed to register metrics", "err", err)
			return 1
		}
	}

	pcfg.OnStateChange = func(s wspub.State, snap wspub.Snapshot) {
		if observer != nil {
			observer.OnStateChange(s, snap)
		}
		out.printf("state %s retry=%d queue=%d\n", s, snap.RetryCount, snap.QueueLength)
	}
	pcfg.OnError = func(msg string, snap wspub.Snapshot) {
		if observer != nil {
			observer.OnError(msg, snap)
		}
		if snap.BlockedSuspected {
			out.printf("error %s (endpoint may be blocked)\n", msg)
			return
		}
		out.printf("error %s\n", msg)
	}
	pcfg.OnMessage = func(m wspub.Message, _ wspub.Snapshot) {
		if typ, ok := m.Field("type"); ok {
			out.printf("message type=%s %s\n", typ, m.Text())
			return
		}
		out.printf("message %s\n", m.Text())
	}

	publisher := wspub.New(pcfg)

	if cfg.Metrics.Addr != "" {
		registry.MustRegister(
			metrics.NewCollector(publisher, nil),
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		server := metrics.NewServer(cfg.Metrics.Addr, cfg.Metrics.Path, registry, log)
		server.HandleSnapshot(publisher)
		go func() {
			if err := server.Start(); err != nil {
				log.Error("wspub: metrics server stopped", "err", err)
			}
		}()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Stop(stopCtx)
		}()
	}

	if opts.configPath != "" {
		watchCtx, cancelWatch := context.WithCancel(ctx)
		defer cancelWatch()
		go func() {
			err := config.Watch(watchCtx, opts.configPath, log, func(updated *config.File) {
				applyFlags(updated, opts, set)
				publisher.SetRoom(updated.Room)
			})
			if err != nil {
				log.Error("wspub: config watcher stopped", "err", err)
			}
		}()
	}

	publisher.Connect()
	published, rejected := pump(ctx, stdin, publisher, log)

	if ctx.Err() == nil {
		drain(ctx, publisher, opts.drainTimeout)
	}
	publisher.Flush()
	snap := publisher.Snapshot()
	publisher.Disconnect()

	log.Info("wspub: done", "published", published, "rejected", rejected,
		"queue_length", snap.QueueLength, "dropped_count", snap.DroppedCount)
	if snap.QueueLength > 0 {
		return 1
	}
	return 0
}

// pump publishes every non-empty stdin line until EOF or cancellation.
func pump(ctx context.Context, stdin io.Reader, p *wspub.Publisher, log logger.Logger) (published, rejected int) {
	lines := make(chan []byte)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			select {
			case lines <- append([]byte(nil), line...):
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Error("wspub: failed to read input", "err", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return published, rejected
		case line, ok := <-lines:
			if !ok {
				return published, rejected
			}
			payload := wspub.RawPayload(line)
			if !wspub.IsStructured(payload) {
				rejected++
				log.Warn("wspub: skipping line that is not a JSON object or array", "line", string(line))
				continue
			}
			p.Publish(payload)
			published++
		}
	}
}

// drain waits for the queue to empty while connected, up to timeout.
func drain(ctx context.Context, p *wspub.Publisher, timeout time.Duration) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()

	for {
		snap := p.Snapshot()
		if snap.QueueLength == 0 {
			return
		}
		if snap.Connected() {
			p.Flush()
		}
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-ticker.C:
		}
	}
}
