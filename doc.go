// Package wspub implements a resilient, publish-only websocket client.
//
// A [Publisher] pushes structured records to a single endpoint. It keeps the
// connection alive across failures, buffering records in a bounded queue
// while the connection is down and flushing them in order once it reopens.
//
// # Connection lifecycle
//
// A Publisher starts in [StateIdle] and only dials when [Publisher.Connect]
// or [Publisher.Publish] asks it to. Transport errors and unexpected closes
// move it through [StateError] and [StateReconnecting]; reconnect attempts
// follow an exponential backoff capped at [Config.MaxDelay]. Only
// [Publisher.Disconnect] reaches [StateClosed], and a later Connect
// re-enters the lifecycle.
//
// When the endpoint accepts the handshake, the Publisher sends the join
// record ({"join": room} by default, or [Config.JoinPayload]) before
// draining the queue.
//
// # Telemetry
//
// Every state change, queue mutation, error and inbound frame is reported
// through the callbacks in [Config], each paired with a [Snapshot] taken at
// the moment the event happened. Callbacks are delivered one at a time in
// the order the events occurred and may call back into the Publisher.
//
// # Transports
//
// The websocket implementation is pluggable through [transport.Dialer]. The
// default dials with gorilla/websocket; [github.com/captionrelay/wspub/pkg/transport/gws]
// provides an event-driven alternative.
package wspub
