package slog_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	rawslog "log/slog"

	"github.com/captionrelay/wspub/pkg/logger/slog"
	"github.com/stretchr/testify/require"
)

type testMethod struct {
	fn    func(msg string, args ...any)
	level rawslog.Level
}

type testLogJSON struct {
	Level string `json:"level"`
	Msg   string `json:"msg"`
	Room  string `json:"room"`
	ID    string `json:"id"`
}

func TestLogger(t *testing.T) {
	buffer := bytes.NewBuffer([]byte{})

	// level needs to be set to debug for log all
	handler := rawslog.NewJSONHandler(buffer, &rawslog.HandlerOptions{Level: rawslog.LevelDebug})
	logger := slog.New(handler).With("id", "pub-1")

	testMethods := []testMethod{
		{fn: logger.Error, level: rawslog.LevelError},
		{fn: logger.Warn, level: rawslog.LevelWarn},
		{fn: logger.Info, level: rawslog.LevelInfo},
		{fn: logger.Debug, level: rawslog.LevelDebug},
	}

	for _, v := range testMethods {
		t.Run(fmt.Sprintf("testing %s", v.level.String()), func(t *testing.T) {
			buffer.Reset()
			v.fn("wspub: connected", "room", "r1")

			var line testLogJSON
			require.NoError(t, json.Unmarshal(buffer.Bytes(), &line))
			require.Equal(t, v.level.String(), line.Level)
			require.Equal(t, "wspub: connected", line.Msg)
			require.Equal(t, "r1", line.Room)
			require.Equal(t, "pub-1", line.ID)
		})
	}
}

func TestLevelFiltering(t *testing.T) {
	buffer := bytes.NewBuffer([]byte{})
	handler := rawslog.NewJSONHandler(buffer, &rawslog.HandlerOptions{Level: rawslog.LevelWarn})
	logger := slog.New(handler)

	logger.Debug("hidden")
	logger.Info("hidden")
	require.Zero(t, buffer.Len())

	logger.Warn("shown")
	require.Contains(t, buffer.String(), "shown")
}
