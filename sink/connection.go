// Package sink provides per-connection event buffers bridging the fanout
// worker to transport handlers.
package sink

import (
	"context"

	"staffroom/domain/event"
)

// Connection buffers room events for one subscribed participant.
// The websocket handler drains Events and pushes each one onto the wire.
type Connection struct {
	Events chan event.DomainEvent
}

func NewConnection(bufferSize int) *Connection {
	return &Connection{Events: make(chan event.DomainEvent, bufferSize)}
}

// Consume is called by the fanout worker. It never blocks: a full buffer
// means the client is too slow or gone, so the event is dropped and the
// reconnect replay recovers it, which keeps at-least-once semantics at the
// room level.
func (c *Connection) Consume(_ context.Context, e event.DomainEvent) error {
	select {
	case c.Events <- e:
	default:
	}
	return nil
}
