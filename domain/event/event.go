// Package event defines the domain events fanned out to every room
// subscriber. Events carry full snapshots (never deltas that depend on
// ordering) so that duplicate or out-of-order delivery converges.
package event

import (
	"time"

	"github.com/google/uuid"

	"staffroom/domain"
)

type Kind string

const (
	KindMessageCreated  Kind = "message_created"
	KindReceiptsUpdated Kind = "receipts_updated"
	KindMessageRedacted Kind = "message_redacted"
	KindRoomCleared     Kind = "room_cleared"
)

type DomainEvent interface {
	Kind() Kind
}

// MessageCreated confirms an appended message. ProvisionalID is the
// client-generated id from the originating PostMessageCommand; together with
// the author id it lets the sender drop its optimistic pending render.
type MessageCreated struct {
	Message       domain.Message
	ProvisionalID string
}

func (MessageCreated) Kind() Kind { return KindMessageCreated }

// ReceiptsUpdated carries the complete SeenBy snapshot of one message.
// Applying it twice, or after a later snapshot, is harmless: clients keep
// the union.
type ReceiptsUpdated struct {
	MessageID uuid.UUID
	SeenBy    []string
}

func (ReceiptsUpdated) Kind() Kind { return KindReceiptsUpdated }

// MessageRedacted marks a message as deleted and carries the placeholder
// body every client must display from now on.
type MessageRedacted struct {
	MessageID uuid.UUID
	Body      string
}

func (MessageRedacted) Kind() Kind { return KindMessageRedacted }

// RoomCleared resets the whole room regardless of any per-message state.
// Purged lists the destroyed ids for in-process consumers (e.g. the search
// index); clients only need the event itself.
type RoomCleared struct {
	At     time.Time
	Purged []uuid.UUID
}

func (RoomCleared) Kind() Kind { return KindRoomCleared }
