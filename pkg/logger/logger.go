// Package logger is the logging surface used throughout wspub. Any value
// with leveled, key/value style methods satisfies Logger; New wraps a
// log/slog handler and NewBuild assembles a zerolog-backed logger.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	wslog "github.com/captionrelay/wspub/pkg/logger/slog"
	"github.com/rs/zerolog"
)

const (
	permission = 0664
)

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// New returns a Logger that writes through h.
func New(h slog.Handler) Logger {
	return wslog.New(h)
}

type nop struct{}

func (nop) Debug(string, ...any) {}
func (nop) Info(string, ...any)  {}
func (nop) Warn(string, ...any)  {}
func (nop) Error(string, ...any) {}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return nop{}
}

type LogBuild struct {
	writer io.Writer
	path   string
	level  zerolog.Level
}

// LogData is a zerolog-backed Logger. Close releases the log file when the
// builder was given a path.
type LogData struct {
	LogFile *os.File
	Logger  zerolog.Logger
}

func NewBuild() *LogBuild {
	return &LogBuild{level: zerolog.DebugLevel}
}

func (build *LogBuild) FromPath(path string) *LogBuild {
	build.path = path
	return build
}

func (build *LogBuild) FromBuffer(w io.Writer) *LogBuild {
	build.writer = w
	return build
}

func (build *LogBuild) WithLevel(level zerolog.Level) *LogBuild {
	build.level = level
	return build
}

// Make opens the destination and returns the logger. A path takes
// precedence over a buffer; with neither, records go to stdout.
func (build *LogBuild) Make() (logData *LogData, err error) {
	logData = new(LogData)
	var writer io.Writer = os.Stdout
	if build.writer != nil {
		writer = build.writer
	}
	if build.path != "" {
		logData.LogFile, err = os.OpenFile(build.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, permission)
		if err != nil {
			return nil, err
		}
		writer = zerolog.SyncWriter(logData.LogFile)
	}
	logData.Logger = zerolog.New(writer).Level(build.level).With().Timestamp().Logger()
	return logData, nil
}

func (data *LogData) Debug(msg string, args ...any) {
	data.emit(data.Logger.Debug(), msg, args)
}

func (data *LogData) Info(msg string, args ...any) {
	data.emit(data.Logger.Info(), msg, args)
}

func (data *LogData) Warn(msg string, args ...any) {
	data.emit(data.Logger.Warn(), msg, args)
}

func (data *LogData) Error(msg string, args ...any) {
	data.emit(data.Logger.Error(), msg, args)
}

func (data *LogData) Close() error {
	if data.LogFile == nil {
		return nil
	}
	return data.LogFile.Close()
}

func (data *LogData) emit(e *zerolog.Event, msg string, args []any) {
	if e == nil {
		return
	}
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = "!BADKEY"
		}
		switch v := args[i+1].(type) {
		case error:
			e = e.AnErr(key, v)
		default:
			e = e.Interface(key, v)
		}
	}
	if len(args)%2 == 1 {
		e = e.Interface("!BADKEY", args[len(args)-1])
	}
	e.Msg(msg)
}

var _ Logger = (*LogData)(nil)

// ErrUnknownFormat is returned by ForFormat for unsupported names.
var ErrUnknownFormat = errors.New("logger: unknown format")

// ForFormat builds a Logger writing to w in the named format: "text" and
// "json" use log/slog handlers, "zerolog" uses the zerolog builder.
func ForFormat(format string, w io.Writer, verbose bool) (Logger, error) {
	level := slog.LevelInfo
	zlevel := zerolog.InfoLevel
	if verbose {
		level = slog.LevelDebug
		zlevel = zerolog.DebugLevel
	}
	opts := &slog.HandlerOptions{Level: level}

	switch format {
	case "", "text":
		return New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return New(slog.NewJSONHandler(w, opts)), nil
	case "zerolog":
		data, err := NewBuild().FromBuffer(w).WithLevel(zlevel).Make()
		if err != nil {
			return nil, err
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}
