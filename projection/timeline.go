// Package projection builds a local view of the room from observed events
// and history snapshots. Application is commutative and idempotent: any
// interleaving of duplicated events and replays converges to the same view.
package projection

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"staffroom/domain"
	"staffroom/domain/event"
)

// EntryState tags a timeline entry as optimistic or server-confirmed.
type EntryState string

const (
	// Pending is an optimistic local render awaiting its confirmation.
	Pending EntryState = "pending"
	// Confirmed carries the canonical server-assigned message.
	Confirmed EntryState = "confirmed"
)

// Entry is one row of the rendered timeline.
type Entry struct {
	State         EntryState
	ProvisionalID string
	Message       domain.Message
}

// Timeline is the per-client room view. The connect sequence is: subscribe
// and start buffering, fetch history, load it, then replay the buffer;
// events observed while fetching are applied on top without loss because
// application tolerates duplicates.
type Timeline struct {
	viewerID string

	mu        sync.Mutex
	confirmed map[uuid.UUID]domain.Message
	pending   map[string]string // provisional id -> optimistic body

	// Receipts and redactions observed before their message. Kept aside
	// and merged on arrival so cross-kind reordering still converges.
	earlyReceipts   map[uuid.UUID]domain.SeenSet
	earlyRedactions map[uuid.UUID]struct{}

	buffering bool
	buffer    []event.DomainEvent
}

func NewTimeline(viewerID string) *Timeline {
	return &Timeline{
		viewerID:        viewerID,
		confirmed:       make(map[uuid.UUID]domain.Message),
		pending:         make(map[string]string),
		earlyReceipts:   make(map[uuid.UUID]domain.SeenSet),
		earlyRedactions: make(map[uuid.UUID]struct{}),
	}
}

// StartBuffering queues incoming events instead of applying them; called
// right after subscribing, before the history fetch.
func (t *Timeline) StartBuffering() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buffering = true
}

// LoadHistory merges an authoritative history snapshot and replays any
// events buffered since the subscription. Loading the same history twice
// produces the same view as loading it once.
func (t *Timeline) LoadHistory(messages []domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, msg := range messages {
		t.upsert(msg)
	}
	buffered := t.buffer
	t.buffer = nil
	t.buffering = false
	for _, evt := range buffered {
		t.apply(evt)
	}
}

// AddPending registers an optimistic local render before the server
// confirms the message.
func (t *Timeline) AddPending(provisionalID, body string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[provisionalID] = body
}

// Apply folds one room event into the view.
func (t *Timeline) Apply(evt event.DomainEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.buffering {
		t.buffer = append(t.buffer, evt)
		return
	}
	t.apply(evt)
}

func (t *Timeline) apply(e event.DomainEvent) {
	switch evt := e.(type) {
	case event.MessageCreated:
		// Reconciliation is keyed on (author id, provisional id), never on
		// content equality.
		if evt.Message.AuthorID == t.viewerID && evt.ProvisionalID != "" {
			delete(t.pending, evt.ProvisionalID)
		}
		t.upsert(evt.Message)
	case event.ReceiptsUpdated:
		msg, ok := t.confirmed[evt.MessageID]
		if !ok {
			set := t.earlyReceipts[evt.MessageID]
			if set == nil {
				set = domain.NewSeenSet()
				t.earlyReceipts[evt.MessageID] = set
			}
			for _, p := range evt.SeenBy {
				set.Add(p)
			}
			return
		}
		for _, p := range evt.SeenBy {
			msg.SeenBy.Add(p)
		}
		t.confirmed[evt.MessageID] = msg
	case event.MessageRedacted:
		msg, ok := t.confirmed[evt.MessageID]
		if !ok {
			t.earlyRedactions[evt.MessageID] = struct{}{}
			return
		}
		msg.Redact()
		t.confirmed[evt.MessageID] = msg
	case event.RoomCleared:
		t.confirmed = make(map[uuid.UUID]domain.Message)
		t.pending = make(map[string]string)
		t.earlyReceipts = make(map[uuid.UUID]domain.SeenSet)
		t.earlyRedactions = make(map[uuid.UUID]struct{})
	}
}

// upsert merges a message snapshot with anything already known. SeenBy is
// unioned and Deleted is sticky, so older snapshots never roll the entry
// back.
func (t *Timeline) upsert(msg domain.Message) {
	merged := msg
	merged.SeenBy = msg.SeenBy.Clone()

	if existing, ok := t.confirmed[msg.ID]; ok {
		for p := range existing.SeenBy {
			merged.SeenBy.Add(p)
		}
		if existing.Deleted {
			merged.Redact()
		}
	}
	if set, ok := t.earlyReceipts[msg.ID]; ok {
		for p := range set {
			merged.SeenBy.Add(p)
		}
		delete(t.earlyReceipts, msg.ID)
	}
	if _, ok := t.earlyRedactions[msg.ID]; ok {
		merged.Redact()
		delete(t.earlyRedactions, msg.ID)
	}
	t.confirmed[msg.ID] = merged
}

// Entries returns the rendered timeline: confirmed messages in canonical
// order, then pending optimistic entries.
func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	confirmed := make([]domain.Message, 0, len(t.confirmed))
	for _, msg := range t.confirmed {
		confirmed = append(confirmed, msg)
	}
	sort.Slice(confirmed, func(i, j int) bool {
		if !confirmed[i].CreatedAt.Equal(confirmed[j].CreatedAt) {
			return confirmed[i].CreatedAt.Before(confirmed[j].CreatedAt)
		}
		return confirmed[i].ID.String() < confirmed[j].ID.String()
	})

	entries := make([]Entry, 0, len(confirmed)+len(t.pending))
	for _, msg := range confirmed {
		entries = append(entries, Entry{State: Confirmed, Message: msg})
	}

	provisionals := make([]string, 0, len(t.pending))
	for pid := range t.pending {
		provisionals = append(provisionals, pid)
	}
	sort.Strings(provisionals)
	for _, pid := range provisionals {
		entries = append(entries, Entry{
			State:         Pending,
			ProvisionalID: pid,
			Message: domain.Message{
				AuthorID: t.viewerID,
				Body:     t.pending[pid],
				SeenBy:   domain.NewSeenSet(),
			},
		})
	}
	return entries
}

// ReceiptState derives the tick state of an entry for this viewer.
func (t *Timeline) ReceiptState(entry Entry) domain.ReceiptState {
	if entry.State == Pending {
		return domain.ReceiptUnseen
	}
	return domain.ReceiptStateFor(entry.Message, t.viewerID)
}
