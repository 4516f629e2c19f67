package wspub_test

import (
	"fmt"
	"time"

	"github.com/captionrelay/wspub"
	"github.com/captionrelay/wspub/internal/faketransport"
	"github.com/captionrelay/wspub/internal/testlog"
	"github.com/captionrelay/wspub/pkg/clock"
	"github.com/captionrelay/wspub/pkg/logger"
)

func Example() {
	dialer := faketransport.NewDialer()
	p := wspub.New(wspub.Config{
		URL:    "ws://relay.test/socket",
		Room:   "r1",
		Dialer: dialer,
		Clock:  clock.NewFake(time.Unix(0, 0)),
		Logger: logger.Nop(),
		OnStateChange: func(s wspub.State, snap wspub.Snapshot) {
			fmt.Printf("state=%s queue=%d\n", s, snap.QueueLength)
		},
	})

	// Not connected yet: the record is queued and a connection starts.
	fmt.Println(p.Publish(map[string]string{"msg": "hello"}))

	dialer.Last().Open()
	fmt.Println(p.Publish(map[string]string{"msg": "world"}))

	for _, frame := range dialer.Last().SentStrings() {
		fmt.Println(frame)
	}
	p.Disconnect()

	// Output:
	// state=connecting queue=1
	// false
	// state=connected queue=1
	// true
	// {"join":"r1"}
	// {"msg":"hello"}
	// {"msg":"world"}
	// state=closed queue=0
}

func ExamplePublisher_reconnect() {
	dialer := faketransport.NewDialer()
	dialer.FailNext(1, faketransport.ErrDialRefused)
	clk := clock.NewFake(time.Unix(0, 0))

	p := wspub.New(wspub.Config{
		URL:    "ws://relay.test/socket",
		Room:   "r1",
		Dialer: dialer,
		Clock:  clk,
		Logger: logger.New(testlog.New(testlog.WithIgnoreDebug(), testlog.WithIgnoreKeys("id"))),
	})

	p.Connect()
	clk.Advance(0)
	fmt.Println("retry:", p.Snapshot().RetryCount)

	dialer.Last().Open()
	fmt.Println("retry:", p.Snapshot().RetryCount)
	p.Disconnect()

	// Output:
	// [0] ERROR: wspub: error recorded op=dial, err=faketransport: connection refused
	// [1] WARN: wspub: reconnect scheduled delay=0s, retry=0
	// retry: 1
	// [2] INFO: wspub: connected url=ws://relay.test/socket, room=r1, queue_length=0
	// retry: 0
	// [3] INFO: wspub: disconnected queue_length=0
}

func ExampleMessage_Field() {
	m := wspub.Message{Data: []byte(`{"type":"ack","meta":{"seq":7}}`)}

	typ, _ := m.Field("type")
	seq, _ := m.Field("meta", "seq")
	_, ok := m.Field("missing")
	fmt.Println(typ, seq, ok)

	// Output:
	// ack 7 false
}

func ExampleBackoff_Delay() {
	b := wspub.Backoff{Base: time.Second, Max: 30 * time.Second}
	for retry := 0; retry <= 6; retry++ {
		fmt.Print(b.Delay(retry), " ")
	}
	fmt.Println()

	// Output:
	// 0s 1s 2s 4s 8s 16s 30s
}
