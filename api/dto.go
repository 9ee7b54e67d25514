package api

import (
	"time"

	"github.com/samber/lo"

	"staffroom/domain"
	"staffroom/domain/event"
)

type PostMessageRequest struct {
	Body          string `json:"body" validate:"required"`
	ProvisionalID string `json:"provisional_id" validate:"max=64"`
}

type MessageResponse struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
	SeenBy     []string  `json:"seen_by"`
	Deleted    bool      `json:"deleted"`
	Receipt    string    `json:"receipt"`
}

type MembersResponse struct {
	Members []string `json:"members"`
}

// RoomEvent is the websocket envelope. Type selects which fields are set;
// every event is self-contained so clients may apply it twice or out of
// order with events of another kind.
type RoomEvent struct {
	Type          event.Kind       `json:"type"`
	Message       *MessageResponse `json:"message,omitempty"`
	ProvisionalID string           `json:"provisional_id,omitempty"`
	MessageID     string           `json:"message_id,omitempty"`
	SeenBy        []string         `json:"seen_by,omitempty"`
	Body          string           `json:"body,omitempty"`
}

func toMessageResponse(msg domain.Message, viewerID string) MessageResponse {
	return MessageResponse{
		ID:         msg.ID.String(),
		AuthorID:   msg.AuthorID,
		AuthorName: msg.AuthorName,
		Body:       msg.Body,
		CreatedAt:  msg.CreatedAt,
		SeenBy:     msg.SeenBy.List(),
		Deleted:    msg.Deleted,
		Receipt:    string(domain.ReceiptStateFor(msg, viewerID)),
	}
}

func toMessageResponses(messages []domain.Message, viewerID string) []MessageResponse {
	return lo.Map(messages, func(msg domain.Message, _ int) MessageResponse {
		return toMessageResponse(msg, viewerID)
	})
}

func toRoomEvent(e event.DomainEvent, viewerID string) RoomEvent {
	switch evt := e.(type) {
	case event.MessageCreated:
		resp := toMessageResponse(evt.Message, viewerID)
		return RoomEvent{
			Type:          event.KindMessageCreated,
			Message:       &resp,
			ProvisionalID: evt.ProvisionalID,
		}
	case event.ReceiptsUpdated:
		return RoomEvent{
			Type:      event.KindReceiptsUpdated,
			MessageID: evt.MessageID.String(),
			SeenBy:    evt.SeenBy,
		}
	case event.MessageRedacted:
		return RoomEvent{
			Type:      event.KindMessageRedacted,
			MessageID: evt.MessageID.String(),
			Body:      evt.Body,
		}
	case event.RoomCleared:
		return RoomEvent{Type: event.KindRoomCleared}
	default:
		return RoomEvent{Type: e.Kind()}
	}
}
