package workers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"staffroom/contract"
	"staffroom/domain/event"
	"staffroom/mocks"
)

func TestEventFanout_Delivers_To_All_Sinks(t *testing.T) {
	req := require.New(t)
	log := slog.Default()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRegistry := mocks.NewMockIRegistry(ctrl)
	permanentSink := mocks.NewMockEventSink(ctrl)
	connectionSink := mocks.NewMockEventSink(ctrl)

	// Given one permanent sink and two connected devices
	mockRegistry.EXPECT().Sinks().
		Return([]contract.EventSink{connectionSink, connectionSink}).
		Times(1)

	evt := event.RoomCleared{At: time.Now().UTC()}
	delivered := 0
	permanentSink.EXPECT().Consume(gomock.Any(), evt).
		DoAndReturn(func(_ context.Context, _ event.DomainEvent) error {
			delivered++
			return nil
		}).Times(1)
	connectionSink.EXPECT().Consume(gomock.Any(), evt).
		DoAndReturn(func(_ context.Context, _ event.DomainEvent) error {
			delivered++
			return nil
		}).Times(2)

	fanout := NewEventFanout(log, []contract.EventSink{permanentSink},
		mockRegistry, nil, time.Second)

	// When one event is fanned out
	fanout.Fanout(context.Background(), evt)

	// Then every sink received it exactly once per subscription
	req.Equal(3, delivered)
}

func TestEventFanout_Leaves_Permanent_Backing_Untouched(t *testing.T) {
	req := require.New(t)
	log := slog.Default()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRegistry := mocks.NewMockIRegistry(ctrl)
	permanentSink := mocks.NewMockEventSink(ctrl)
	connectionSink := mocks.NewMockEventSink(ctrl)
	bystander := mocks.NewMockEventSink(ctrl)

	// Given a permanent slice with spare capacity shared with the caller
	backing := make([]contract.EventSink, 2)
	backing[0] = permanentSink
	backing[1] = bystander

	mockRegistry.EXPECT().Sinks().
		Return([]contract.EventSink{connectionSink}).
		Times(1)

	evt := event.RoomCleared{At: time.Now().UTC()}
	permanentSink.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(1)
	connectionSink.EXPECT().Consume(gomock.Any(), evt).Return(nil).Times(1)

	fanout := NewEventFanout(log, backing[:1], mockRegistry, nil, time.Second)
	fanout.Fanout(context.Background(), evt)

	// Then the caller's slice was not clobbered and the bystander never
	// received anything
	req.Same(bystander, backing[1])
}

func TestEventFanout_Slow_Sink_Only_Loses_Its_Own_Delivery(t *testing.T) {
	req := require.New(t)
	log := slog.Default()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRegistry := mocks.NewMockIRegistry(ctrl)
	slowSink := mocks.NewMockEventSink(ctrl)
	healthySink := mocks.NewMockEventSink(ctrl)

	mockRegistry.EXPECT().Sinks().
		Return([]contract.EventSink{healthySink}).
		Times(1)

	// Given a sink that blocks until the per-sink timeout fires
	slowSink.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ event.DomainEvent) error {
			<-ctx.Done()
			return ctx.Err()
		}).Times(1)

	received := false
	healthySink.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ event.DomainEvent) error {
			received = true
			return nil
		}).Times(1)

	fanout := NewEventFanout(log, []contract.EventSink{slowSink},
		mockRegistry, nil, 20*time.Millisecond)

	fanout.Fanout(context.Background(), event.RoomCleared{At: time.Now().UTC()})

	// Then the healthy sink still got the event
	req.True(received)
}

func TestEventFanout_Run_Drains_Channel_Until_Canceled(t *testing.T) {
	req := require.New(t)
	log := slog.Default()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRegistry := mocks.NewMockIRegistry(ctrl)
	sink := mocks.NewMockEventSink(ctrl)
	mockRegistry.EXPECT().Sinks().Return(nil).AnyTimes()

	consumed := make(chan struct{}, 2)
	sink.EXPECT().Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ event.DomainEvent) error {
			consumed <- struct{}{}
			return nil
		}).Times(2)

	events := make(chan event.DomainEvent, 2)
	fanout := NewEventFanout(log, []contract.EventSink{sink}, mockRegistry, events, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		req.NoError(fanout.Run(ctx))
		close(done)
	}()

	events <- event.RoomCleared{At: time.Now().UTC()}
	events <- event.RoomCleared{At: time.Now().UTC()}

	for i := 0; i < 2; i++ {
		select {
		case <-consumed:
		case <-time.After(time.Second):
			req.Fail("event was not fanned out in time")
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		req.Fail("fanout worker did not stop on cancellation")
	}
}
