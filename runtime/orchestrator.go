package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"staffroom/contract"
	"staffroom/domain/event"
	"staffroom/runtime/workers"
)

// Orchestrator is the room context object: it owns the broadcast pipeline
// (event channel, fanout worker, supervision) and the membership registry.
// It holds no durable state; the message repository stays the single source
// of truth.
type Orchestrator struct {
	mu             sync.Mutex
	log            *slog.Logger
	supervisor     contract.ISupervisor
	registry       contract.IRegistry
	events         chan event.DomainEvent
	permanentSinks []contract.EventSink
	sinkTimeout    time.Duration
	healthInterval time.Duration
}

func NewOrchestrator(log *slog.Logger, supervisor *workers.Supervisor,
	registry contract.IRegistry, bufferSize int,
	sinkTimeout, healthInterval time.Duration) *Orchestrator {
	return &Orchestrator{
		log:            log,
		supervisor:     supervisor,
		registry:       registry,
		events:         make(chan event.DomainEvent, bufferSize),
		sinkTimeout:    sinkTimeout,
		healthInterval: healthInterval,
	}
}

// AddSinks registers permanent in-process sinks (index, projections) that
// receive every event alongside the connected participants.
func (o *Orchestrator) AddSinks(sinks ...contract.EventSink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.permanentSinks = append(o.permanentSinks, sinks...)
}

// Publish queues an event for fan-out. Mutations are already durable when
// this is called, so a dropped event only delays convergence until the next
// reconnect replay.
func (o *Orchestrator) Publish(evt event.DomainEvent) {
	select {
	case o.events <- evt:
	default:
		o.log.Warn(fmt.Sprintf("Event channel full, dropping %s", evt.Kind()))
	}
}

// Join subscribes one of a participant's connections to the room broadcast.
func (o *Orchestrator) Join(connectionID, participantID string, sink contract.EventSink) {
	o.registry.Subscribe(connectionID, participantID, sink)
}

// Leave disconnects one connection.
func (o *Orchestrator) Leave(connectionID string) {
	o.registry.Unsubscribe(connectionID)
}

func (o *Orchestrator) Members() []string {
	return o.registry.Members()
}

// Start wires the fanout and health workers under the supervisor and blocks
// until the context is canceled.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	fanout := workers.NewEventFanout(o.log, o.permanentSinks, o.registry, o.events, o.sinkTimeout)
	health := workers.NewHealthWorker(o.log, o.healthInterval)
	o.supervisor.Add(fanout, health)
	o.mu.Unlock()

	o.log.Info("Starting orchestrator and all supervised workers")
	o.supervisor.Run(ctx)
	return nil
}

// Stop initiates a graceful shutdown by canceling the supervision context.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}
