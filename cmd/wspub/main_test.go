package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/captionrelay/wspub/internal/testenv"
	"github.com/captionrelay/wspub/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunPublishesStdin(t *testing.T) {
	srv := testenv.MustServer(t)

	stdin := strings.NewReader("{\"msg\":\"one\"}\n\nnot json\n[1,2]\n")
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{
		"-url", srv.URL(),
		"-room", "demo",
		"-transport", testenv.TransportName(),
	}, stdin, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	assert.Eventually(t, func() bool {
		return len(srv.Texts()) == 3
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{`{"join":"demo"}`, `{"msg":"one"}`, `[1,2]`}, srv.Texts())

	assert.Contains(t, stdout.String(), "state connecting")
	assert.Contains(t, stdout.String(), "state connected")
	assert.Contains(t, stdout.String(), "state closed")
	assert.Contains(t, stderr.String(), "skipping line")
}

func TestRunUsesConfigFile(t *testing.T) {
	srv := testenv.MustServer(t)

	path := filepath.Join(t.TempDir(), "wspub.yaml")
	require.NoError(t, os.WriteFile(path, []byte("url: "+srv.URL()+"\nroom: from-file\nlog:\n  format: json\n"), 0o600))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-config", path, "-room", "from-flag"},
		strings.NewReader(`{"n":1}`+"\n"), &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	assert.Eventually(t, func() bool {
		return len(srv.Texts()) == 2
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, `{"join":"from-flag"}`, srv.Texts()[0])
	// JSON log lines.
	assert.Contains(t, stderr.String(), `"msg":"wspub: done"`)
}

func TestRunInvalidArguments(t *testing.T) {
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{"-no-such-flag"}, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, 2, code)

	stderr.Reset()
	code = run(context.Background(), []string{"-config", filepath.Join(t.TempDir(), "missing.yaml")}, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "config: read file")

	stderr.Reset()
	code = run(context.Background(), []string{"-codec", "xml"}, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, 1, code)

	stderr.Reset()
	code = run(context.Background(), []string{"-log-format", "xml"}, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, 1, code)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout, stderr bytes.Buffer
	// Nothing listens on port 1.
	code := run(ctx, []string{"-url", "ws://127.0.0.1:1", "-drain-timeout", "10ms"},
		strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), "state closed")
}

func TestApplyFlags(t *testing.T) {
	cfg := config.Defaults()
	opts := &options{url: "ws://x", room: "r", transport: "gws", codec: "cbor", metricsAddr: ":9", logFormat: "json", verbose: true}

	applyFlags(cfg, opts, map[string]bool{"room": true, "codec": true})
	assert.Equal(t, "r", cfg.Room)
	assert.Equal(t, "cbor", cfg.Codec)
	assert.Equal(t, config.DefaultTransport, cfg.Transport)
	assert.NotEqual(t, "ws://x", cfg.URL)
	assert.False(t, cfg.Log.Verbose)

	applyFlags(cfg, opts, map[string]bool{"url": true, "transport": true, "metrics-addr": true, "log-format": true, "verbose": true})
	assert.Equal(t, "ws://x", cfg.URL)
	assert.Equal(t, "gws", cfg.Transport)
	assert.Equal(t, ":9", cfg.Metrics.Addr)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Log.Verbose)
}
