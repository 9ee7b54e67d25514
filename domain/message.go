// Package domain contains core concepts of the staff room chat.
// Messages are server-ordered, receipts are set-union merges, redaction is a
// one-way transition.
package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// RedactedPlaceholder replaces the body of a redacted message everywhere:
// in the store, on the wire and in every client view.
const RedactedPlaceholder = "This message was deleted"

// Message is a single entry of the room history. ID and CreatedAt are
// assigned by the server and immutable; Body mutates exactly once, through
// Redact.
type Message struct {
	ID         uuid.UUID
	AuthorID   string
	AuthorName string
	Body       string
	CreatedAt  time.Time
	SeenBy     SeenSet
	Deleted    bool
}

// Redact flips the message into its absorbing redacted state.
// Returns false when the message was already redacted.
func (m *Message) Redact() bool {
	if m.Deleted {
		return false
	}
	m.Deleted = true
	m.Body = RedactedPlaceholder
	return true
}

// SeenSet is the set of participant ids that acknowledged a message.
// It only grows; merging is union, so applying the same acknowledgement
// twice, or two acknowledgements in either order, converges.
type SeenSet map[string]struct{}

func NewSeenSet(participants ...string) SeenSet {
	s := make(SeenSet, len(participants))
	for _, p := range participants {
		s[p] = struct{}{}
	}
	return s
}

// Add unions a participant into the set. Returns false when the participant
// was already present, which lets callers skip redundant persistence and
// broadcasts.
func (s SeenSet) Add(participantID string) bool {
	if _, ok := s[participantID]; ok {
		return false
	}
	s[participantID] = struct{}{}
	return true
}

func (s SeenSet) Has(participantID string) bool {
	_, ok := s[participantID]
	return ok
}

// List returns the members in a stable order for wire snapshots.
func (s SeenSet) List() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (s SeenSet) Clone() SeenSet {
	out := make(SeenSet, len(s))
	for p := range s {
		out[p] = struct{}{}
	}
	return out
}
