//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"
	"github.com/google/uuid"

	"staffroom/contract"
	"staffroom/domain"
	"staffroom/domain/event"
	"staffroom/errors"
	"staffroom/moderation"
	"staffroom/repositories"
	"staffroom/search"
)

type IChatService interface {
	Post(ctx context.Context, cmd domain.PostMessageCommand) (domain.Message, error)
	History(sinceID *uuid.UUID) ([]domain.Message, error)
	MarkRead(cmd domain.MarkReadCommand) ([]domain.Message, error)
	Redact(cmd domain.RedactCommand) (domain.Message, error)
	ClearAll(cmd domain.ClearCommand) error
	Search(ctx context.Context, query string, limit int) ([]domain.Message, error)
	Join(connectionID, participantID string, sink contract.EventSink)
	Leave(connectionID string)
	Members() []string
}

// Broadcaster is the slice of the orchestrator the service needs: publish
// events, manage membership.
type Broadcaster interface {
	Publish(evt event.DomainEvent)
	Join(connectionID, participantID string, sink contract.EventSink)
	Leave(connectionID string)
	Members() []string
}

// ChatService implements every room operation. Mutations follow the same
// shape: validate, persist through the repository (the serialized write
// path), then publish the event. Errors are rejected before any broadcast,
// so a failed operation never partially propagates to other participants.
type ChatService struct {
	repo        repositories.IMessageRepository
	broadcaster Broadcaster
	guard       RedactionGuard
	moderator   moderation.Moderator
	index       *search.Index
	log         *slog.Logger
	maxBodyLen  int
}

func NewChatService(repo repositories.IMessageRepository, broadcaster Broadcaster,
	guard RedactionGuard, moderator moderation.Moderator, index *search.Index,
	log *slog.Logger, maxBodyLen int) *ChatService {
	return &ChatService{
		repo:        repo,
		broadcaster: broadcaster,
		guard:       guard,
		moderator:   moderator,
		index:       index,
		log:         log,
		maxBodyLen:  maxBodyLen,
	}
}

// Post appends a message and confirms it synchronously: the caller gets the
// canonical message back while the broadcast reaches everyone else (and the
// sender's own subscription, which reconciles via the provisional id).
func (s *ChatService) Post(_ context.Context, cmd domain.PostMessageCommand) (domain.Message, error) {
	body := strings.TrimSpace(cmd.Body)
	if body == "" {
		return domain.Message{}, fmt.Errorf("%w: empty body", errors.ErrValidation)
	}
	if utf8.RuneCountInString(body) > s.maxBodyLen {
		return domain.Message{}, fmt.Errorf("%w: body exceeds %d characters", errors.ErrValidation, s.maxBodyLen)
	}

	sanitized, found := s.moderator.Censor(body)
	if len(found) > 0 {
		info := whatlanggo.Detect(body)
		s.log.Warn("censored words in message",
			"author", cmd.Author.ID,
			"words", len(found),
			"lang", info.Lang.Iso6391())
	}

	msg, err := s.repo.Append(cmd.Author, sanitized)
	if err != nil {
		return domain.Message{}, err
	}
	s.broadcaster.Publish(event.MessageCreated{Message: msg, ProvisionalID: cmd.ProvisionalID})
	return msg, nil
}

// History returns the ordered room history, or the suffix after sinceID.
func (s *ChatService) History(sinceID *uuid.UUID) ([]domain.Message, error) {
	return s.repo.List(sinceID)
}

// MarkRead acknowledges every message the participant has not seen yet.
// Own messages are excluded: a receipt records a recipient, not the author.
// Repeating the call changes nothing and broadcasts nothing.
func (s *ChatService) MarkRead(cmd domain.MarkReadCommand) ([]domain.Message, error) {
	all, err := s.repo.List(nil)
	if err != nil {
		return nil, err
	}

	var unread []uuid.UUID
	for _, msg := range all {
		if msg.AuthorID == cmd.ParticipantID || msg.SeenBy.Has(cmd.ParticipantID) {
			continue
		}
		unread = append(unread, msg.ID)
	}
	if len(unread) == 0 {
		return nil, nil
	}

	updated, err := s.repo.MarkSeen(unread, cmd.ParticipantID)
	if err != nil {
		return nil, err
	}
	for _, msg := range updated {
		s.broadcaster.Publish(event.ReceiptsUpdated{MessageID: msg.ID, SeenBy: msg.SeenBy.List()})
	}
	return updated, nil
}

// Redact replaces one message body with the placeholder, subject to the
// guard. The role check comes first, unconditionally: an unprivileged actor
// is refused even when the target is purged or already redacted. After that,
// an unknown id means the message was already purged and the request is
// resolved as a no-op; redacting twice is also a no-op and never errors.
func (s *ChatService) Redact(cmd domain.RedactCommand) (domain.Message, error) {
	if err := s.guard.CheckRole(cmd.Actor); err != nil {
		return domain.Message{}, err
	}

	target, err := s.repo.Get(cmd.MessageID)
	if stderrors.Is(err, errors.ErrNotFound) {
		s.log.Debug("redact on purged message, already resolved", "id", cmd.MessageID)
		return domain.Message{}, nil
	}
	if err != nil {
		return domain.Message{}, err
	}

	if target.Deleted {
		return target, nil
	}
	if err := s.guard.CheckRedact(cmd.Actor, target); err != nil {
		return domain.Message{}, err
	}

	updated, err := s.repo.Redact(cmd.MessageID)
	if stderrors.Is(err, errors.ErrAlreadyRedacted) {
		return updated, nil
	}
	if stderrors.Is(err, errors.ErrNotFound) {
		// A clear slipped in between the lookup and the write: the purge
		// already resolved the request.
		s.log.Debug("message purged mid-redaction, already resolved", "id", cmd.MessageID)
		return domain.Message{}, nil
	}
	if err != nil {
		return domain.Message{}, err
	}
	s.broadcaster.Publish(event.MessageRedacted{MessageID: updated.ID, Body: updated.Body})
	return updated, nil
}

// ClearAll wipes the room atomically with respect to broadcast: the single
// RoomCleared event is published only after the purge committed, so no
// subscriber observes a partially cleared room.
func (s *ChatService) ClearAll(cmd domain.ClearCommand) error {
	if err := s.guard.CheckClear(cmd.Actor); err != nil {
		return err
	}
	purged, err := s.repo.ClearAll()
	if err != nil {
		return err
	}
	s.broadcaster.Publish(event.RoomCleared{At: time.Now().UTC(), Purged: purged})
	return nil
}

// Search resolves a full-text query into current message rows. Ids whose
// row vanished between index lookup and fetch (a racing clear) are skipped.
func (s *ChatService) Search(ctx context.Context, query string, limit int) ([]domain.Message, error) {
	ids, err := s.index.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	var messages []domain.Message
	for _, id := range ids {
		msg, err := s.repo.Get(id)
		if stderrors.Is(err, errors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *ChatService) Join(connectionID, participantID string, sink contract.EventSink) {
	s.broadcaster.Join(connectionID, participantID, sink)
}

func (s *ChatService) Leave(connectionID string) {
	s.broadcaster.Leave(connectionID)
}

func (s *ChatService) Members() []string {
	return s.broadcaster.Members()
}
