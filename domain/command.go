package domain

import (
	"github.com/google/uuid"
)

// PostMessageCommand is a sending intent. The server assigns the canonical
// id and timestamp; ProvisionalID is the client-local identifier echoed
// back in the confirmation so optimistic renders can be reconciled.
type PostMessageCommand struct {
	Author        Participant
	ProvisionalID string
	Body          string
}

// MarkReadCommand acknowledges every message the participant has not seen yet.
type MarkReadCommand struct {
	ParticipantID string
}

// RedactCommand asks for a single message body to be replaced by the
// placeholder. Subject to the privileged role and the seen precondition.
type RedactCommand struct {
	Actor     Participant
	MessageID uuid.UUID
}

// ClearCommand wipes the whole room history. Privileged only.
type ClearCommand struct {
	Actor Participant
}
