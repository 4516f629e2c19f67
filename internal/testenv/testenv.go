// Package testenv selects the transport used by integration tests.
//
// Tests run against gorilla/websocket by default. Setting
// WSPUB_TEST_TRANSPORT=gws runs the same tests against lxzan/gws.
package testenv

import (
	"os"
	"testing"

	"github.com/captionrelay/wspub/internal/fakews"
	"github.com/captionrelay/wspub/pkg/logger"
	"github.com/captionrelay/wspub/pkg/transport"
	"github.com/captionrelay/wspub/pkg/transport/gorillaws"
	"github.com/captionrelay/wspub/pkg/transport/gws"
)

// EnvTransport names the transport implementation under test.
// If set to "gws", it uses the gws package; otherwise, it defaults to the
// gorillaws package.
const EnvTransport = "WSPUB_TEST_TRANSPORT"

var useGWS = os.Getenv(EnvTransport) == "gws"

// TransportName reports the implementation selected by the environment.
func TransportName() string {
	if useGWS {
		return "gws"
	}
	return "gorilla"
}

func Dialer(log logger.Logger) transport.Dialer {
	if useGWS {
		return gws.New(log)
	}
	return gorillaws.New(log)
}

// MustServer starts a fake endpoint on a random local port and stops it
// when the test ends.
func MustServer(t testing.TB) *fakews.Server {
	t.Helper()

	srv := fakews.NewServer("127.0.0.1:0")
	if err := srv.Start(); err != nil {
		t.Fatalf("failed to start fake endpoint: %v", err)
	}
	t.Cleanup(func() {
		_ = srv.Stop()
	})
	return srv
}
