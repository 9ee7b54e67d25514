package workers

import (
	"context"
	"log/slog"
	"time"

	"staffroom/contract"
	"staffroom/domain/event"
)

// EventFanout broadcasts room events to every subscribed participant sink
// plus the permanent in-process sinks (search index, projections).
//
// It provides at-least-once, best-effort fan-out with no ordering guarantee
// across event kinds. Events carry snapshots, so consumers converge anyway.
//
// EventFanout is safe for concurrent use by multiple goroutines.
type EventFanout struct {
	log         *slog.Logger
	permanent   []contract.EventSink
	registry    contract.IRegistry
	events      chan event.DomainEvent
	sinkTimeout time.Duration
}

func NewEventFanout(log *slog.Logger, permanent []contract.EventSink,
	registry contract.IRegistry, events chan event.DomainEvent,
	sinkTimeout time.Duration) *EventFanout {
	return &EventFanout{
		log:         log,
		permanent:   permanent,
		registry:    registry,
		events:      events,
		sinkTimeout: sinkTimeout,
	}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping fanout")
			return nil
		case evt, ok := <-w.events:
			if !ok {
				return nil
			}
			w.Fanout(ctx, evt)
		}
	}
}

// Fanout delivers one event to each sink. A slow or failing sink only loses
// its own delivery; the reconnect replay will catch it up.
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	registered := w.registry.Sinks()
	sinks := make([]contract.EventSink, 0, len(w.permanent)+len(registered))
	sinks = append(sinks, w.permanent...)
	sinks = append(sinks, registered...)
	for _, sink := range sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		if err := sink.Consume(sinkCtx, evt); err != nil {
			w.log.Warn("sink rejected event", "kind", evt.Kind(), "error", err)
		}
		cancel()
	}
}
