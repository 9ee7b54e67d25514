package search

import (
	"context"
	"log/slog"

	"staffroom/domain/event"
)

// Sink keeps the full-text index in sync with the room event stream.
type Sink struct {
	index *Index
	log   *slog.Logger
}

func NewSink(index *Index, log *slog.Logger) *Sink {
	return &Sink{index: index, log: log}
}

func (s *Sink) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessageCreated:
		return s.index.Add(evt.Message.ID, evt.Message.AuthorID, evt.Message.Body)
	case event.MessageRedacted:
		return s.index.Delete(evt.MessageID)
	case event.RoomCleared:
		return s.index.DeleteAll(evt.Purged)
	default:
		return nil
	}
}
