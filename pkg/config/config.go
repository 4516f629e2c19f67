package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/captionrelay/wspub"
	"github.com/captionrelay/wspub/pkg/codec"
	"github.com/captionrelay/wspub/pkg/logger"
	"github.com/captionrelay/wspub/pkg/transport"
	"github.com/captionrelay/wspub/pkg/transport/gorillaws"
	"github.com/captionrelay/wspub/pkg/transport/gws"
	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultTransport   = "gorilla"
	DefaultCodec       = "json"
	DefaultLogFormat   = "text"
	DefaultMetricsPath = "/metrics"
)

// Environment variables that override file values.
const (
	EnvURL       = "WSPUB_URL"
	EnvRoom      = "WSPUB_ROOM"
	EnvTransport = "WSPUB_TRANSPORT"
	EnvCodec     = "WSPUB_CODEC"
)

var ErrNoURL = errors.New("config: url is required")

// File is the top-level configuration. Fields map 1:1 to the YAML keys.
type File struct {
	URL  string `yaml:"url"`
	Room string `yaml:"room"`

	MaxQueue              int           `yaml:"max_queue"`
	BaseDelay             time.Duration `yaml:"base_delay"`
	MaxDelay              time.Duration `yaml:"max_delay"`
	BlockedAfter          time.Duration `yaml:"blocked_after"`
	BlockedRetryThreshold int           `yaml:"blocked_retry_threshold"`

	// JoinPayload replaces the default {"join": room} handshake record.
	JoinPayload map[string]any `yaml:"join_payload"`

	// Transport is one of: gorilla | gws.
	Transport string `yaml:"transport"`
	// Codec is one of: json | cbor.
	Codec string `yaml:"codec"`
	// Headers are sent with the websocket handshake.
	Headers map[string]string `yaml:"headers"`

	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

type MetricsConfig struct {
	// Addr enables the Prometheus endpoint when non-empty (host:port).
	Addr string `yaml:"addr"`
	Path string `yaml:"path"`
}

type LogConfig struct {
	// Format is one of: text | json | zerolog.
	Format  string `yaml:"format"`
	Verbose bool   `yaml:"verbose"`
}

// GetEnvOrDefault returns the value of the environment variable key, or
// defaultValue when it is unset or empty.
func GetEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML data, applies environment overrides and validates the
// result.
func Parse(data []byte) (*File, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Defaults returns a File pre-populated with default values.
func Defaults() *File {
	return &File{
		URL:                   wspub.DefaultURL,
		MaxQueue:              wspub.DefaultMaxQueue,
		BaseDelay:             wspub.DefaultBaseDelay,
		MaxDelay:              wspub.DefaultMaxDelay,
		BlockedAfter:          wspub.DefaultBlockedAfter,
		BlockedRetryThreshold: wspub.DefaultBlockedRetryThreshold,
		Transport:             DefaultTransport,
		Codec:                 DefaultCodec,
		Metrics:               MetricsConfig{Path: DefaultMetricsPath},
		Log:                   LogConfig{Format: DefaultLogFormat},
	}
}

func applyEnv(cfg *File) {
	cfg.URL = GetEnvOrDefault(EnvURL, cfg.URL)
	cfg.Room = GetEnvOrDefault(EnvRoom, cfg.Room)
	cfg.Transport = GetEnvOrDefault(EnvTransport, cfg.Transport)
	cfg.Codec = GetEnvOrDefault(EnvCodec, cfg.Codec)
}

// validate checks required fields and structural constraints.
func validate(cfg *File) error {
	if cfg.URL == "" {
		return ErrNoURL
	}
	if _, err := transport.ValidateURL(cfg.URL); err != nil {
		return fmt.Errorf("url: %w", err)
	}
	if cfg.MaxQueue < 0 {
		return fmt.Errorf("max_queue must not be negative")
	}
	if cfg.BaseDelay < 0 || cfg.MaxDelay < 0 || cfg.BlockedAfter < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	if cfg.BlockedRetryThreshold < 0 {
		return fmt.Errorf("blocked_retry_threshold must not be negative")
	}
	switch cfg.Transport {
	case "gorilla", "gws":
	default:
		return fmt.Errorf("unknown transport %q", cfg.Transport)
	}
	if _, err := codec.ByName(cfg.Codec); err != nil {
		return err
	}
	switch cfg.Log.Format {
	case "text", "json", "zerolog":
	default:
		return fmt.Errorf("log.format: unknown format %q", cfg.Log.Format)
	}
	return nil
}

// NewDialer returns the transport named by name ("gorilla" or "gws").
func NewDialer(name string, headers map[string]string, log logger.Logger) (transport.Dialer, error) {
	var header http.Header
	if len(headers) > 0 {
		header = make(http.Header, len(headers))
		for k, v := range headers {
			header.Set(k, v)
		}
	}

	switch name {
	case "", "gorilla":
		d := gorillaws.New(log)
		d.Header = header
		return d, nil
	case "gws":
		d := gws.New(log)
		d.Header = header
		return d, nil
	default:
		return nil, fmt.Errorf("config: unknown transport %q", name)
	}
}

// PublisherConfig converts the file into a wspub.Config. Callbacks are left
// for the caller to fill in.
func (f *File) PublisherConfig(log logger.Logger) (wspub.Config, error) {
	dialer, err := NewDialer(f.Transport, f.Headers, log)
	if err != nil {
		return wspub.Config{}, err
	}
	c, err := codec.ByName(f.Codec)
	if err != nil {
		return wspub.Config{}, err
	}

	cfg := wspub.Config{
		URL:                   f.URL,
		Room:                  f.Room,
		MaxQueue:              f.MaxQueue,
		BaseDelay:             f.BaseDelay,
		MaxDelay:              f.MaxDelay,
		BlockedAfter:          f.BlockedAfter,
		BlockedRetryThreshold: f.BlockedRetryThreshold,
		Dialer:                dialer,
		Codec:                 c,
		Logger:                log,
	}
	if len(f.JoinPayload) > 0 {
		cfg.JoinPayload = f.JoinPayload
	}
	return cfg, nil
}
