package projection

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"staffroom/domain"
	"staffroom/domain/event"
)

func confirmedMessage(author, body string, at time.Time) domain.Message {
	return domain.Message{
		ID:         uuid.New(),
		AuthorID:   author,
		AuthorName: author,
		Body:       body,
		CreatedAt:  at,
		SeenBy:     domain.NewSeenSet(),
	}
}

func TestTimeline_Orders_Confirmed_Messages(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("alice")
	now := time.Now().UTC()

	first := confirmedMessage("alice", "first", now)
	second := confirmedMessage("bob", "second", now.Add(time.Second))

	// Events arrive newest first
	timeline.Apply(event.MessageCreated{Message: second})
	timeline.Apply(event.MessageCreated{Message: first})

	entries := timeline.Entries()
	req.Len(entries, 2)
	req.Equal("first", entries[0].Message.Body)
	req.Equal("second", entries[1].Message.Body)
}

func TestTimeline_Duplicate_Events_Converge(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("alice")
	msg := confirmedMessage("alice", "hello", time.Now().UTC())

	created := event.MessageCreated{Message: msg}
	receipts := event.ReceiptsUpdated{MessageID: msg.ID, SeenBy: []string{"bob"}}

	// At-least-once delivery: everything shows up twice
	timeline.Apply(created)
	timeline.Apply(receipts)
	timeline.Apply(created)
	timeline.Apply(receipts)

	entries := timeline.Entries()
	req.Len(entries, 1)
	req.Equal([]string{"bob"}, entries[0].Message.SeenBy.List())
	req.Equal(domain.ReceiptSeenByOthers, timeline.ReceiptState(entries[0]))
}

func TestTimeline_Receipts_Before_Message_Converge(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("alice")
	msg := confirmedMessage("alice", "hello", time.Now().UTC())

	// Cross-kind reordering: the receipt lands first
	timeline.Apply(event.ReceiptsUpdated{MessageID: msg.ID, SeenBy: []string{"bob"}})
	timeline.Apply(event.MessageCreated{Message: msg})

	entries := timeline.Entries()
	req.Len(entries, 1)
	req.True(entries[0].Message.SeenBy.Has("bob"))
}

func TestTimeline_Redaction_Before_Message_Converges(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("alice")
	msg := confirmedMessage("bob", "secret", time.Now().UTC())

	timeline.Apply(event.MessageRedacted{MessageID: msg.ID, Body: domain.RedactedPlaceholder})
	timeline.Apply(event.MessageCreated{Message: msg})

	entries := timeline.Entries()
	req.Len(entries, 1)
	req.True(entries[0].Message.Deleted)
	req.Equal(domain.RedactedPlaceholder, entries[0].Message.Body)
}

func TestTimeline_Old_Snapshot_Never_Rolls_Back(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("alice")
	msg := confirmedMessage("alice", "hello", time.Now().UTC())

	timeline.Apply(event.MessageCreated{Message: msg})
	timeline.Apply(event.ReceiptsUpdated{MessageID: msg.ID, SeenBy: []string{"bob"}})

	// A stale history snapshot without the receipt arrives afterwards
	stale := msg
	stale.SeenBy = domain.NewSeenSet()
	timeline.LoadHistory([]domain.Message{stale})

	entries := timeline.Entries()
	req.Len(entries, 1)
	req.True(entries[0].Message.SeenBy.Has("bob"))
}

func TestTimeline_Provisional_Reconciliation(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("alice")

	timeline.AddPending("prov-1", "hello room")

	entries := timeline.Entries()
	req.Len(entries, 1)
	req.Equal(Pending, entries[0].State)
	req.Equal(domain.ReceiptUnseen, timeline.ReceiptState(entries[0]))

	// When the confirmation comes back with the provisional id
	msg := confirmedMessage("alice", "hello room", time.Now().UTC())
	timeline.Apply(event.MessageCreated{Message: msg, ProvisionalID: "prov-1"})

	// Then the optimistic entry is replaced, not duplicated
	entries = timeline.Entries()
	req.Len(entries, 1)
	req.Equal(Confirmed, entries[0].State)
	req.Equal(msg.ID, entries[0].Message.ID)
}

func TestTimeline_Foreign_Provisional_Is_Ignored(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("alice")

	timeline.AddPending("prov-1", "hello")

	// Another participant's confirmation happens to reuse the same
	// provisional id; reconciliation is keyed on the author too.
	msg := confirmedMessage("bob", "hello", time.Now().UTC())
	timeline.Apply(event.MessageCreated{Message: msg, ProvisionalID: "prov-1"})

	entries := timeline.Entries()
	req.Len(entries, 2)
	req.Equal(Confirmed, entries[0].State)
	req.Equal(Pending, entries[1].State)
}

func TestTimeline_Buffered_Events_Replay_After_History(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("alice")
	now := time.Now().UTC()

	old := confirmedMessage("bob", "already there", now)
	during := confirmedMessage("clara", "posted during fetch", now.Add(time.Second))

	// Subscribe first, then fetch: the event observed in the gap buffers
	timeline.StartBuffering()
	timeline.Apply(event.MessageCreated{Message: during})

	req.Empty(timeline.Entries())

	timeline.LoadHistory([]domain.Message{old})

	entries := timeline.Entries()
	req.Len(entries, 2)
	req.Equal("already there", entries[0].Message.Body)
	req.Equal("posted during fetch", entries[1].Message.Body)
}

func TestTimeline_History_Overlapping_Buffer_Converges(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("alice")
	msg := confirmedMessage("bob", "hello", time.Now().UTC())

	// The same message arrives both as a buffered event and in the snapshot
	timeline.StartBuffering()
	timeline.Apply(event.MessageCreated{Message: msg})
	timeline.LoadHistory([]domain.Message{msg})

	req.Len(timeline.Entries(), 1)
}

func TestTimeline_RoomCleared_Resets_Everything(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline("alice")
	msg := confirmedMessage("bob", "hello", time.Now().UTC())

	timeline.Apply(event.MessageCreated{Message: msg})
	timeline.AddPending("prov-1", "in flight")
	timeline.Apply(event.ReceiptsUpdated{MessageID: uuid.New(), SeenBy: []string{"bob"}})

	timeline.Apply(event.RoomCleared{At: time.Now().UTC()})

	req.Empty(timeline.Entries())

	// And a fresh message after the clear renders normally
	fresh := confirmedMessage("clara", "new era", time.Now().UTC())
	timeline.Apply(event.MessageCreated{Message: fresh})
	req.Len(timeline.Entries(), 1)
}
