//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	apperrors "staffroom/errors"

	"staffroom/domain"
)

const (
	msgPrefix = "msg:"
	idxPrefix = "idx:"
)

type IMessageRepository interface {
	Append(author domain.Participant, body string) (domain.Message, error)
	Get(id uuid.UUID) (domain.Message, error)
	List(sinceID *uuid.UUID) ([]domain.Message, error)
	MarkSeen(ids []uuid.UUID, participantID string) ([]domain.Message, error)
	Redact(id uuid.UUID) (domain.Message, error)
	ClearAll() ([]uuid.UUID, error)
}

// MessageRepository is the sole source of truth for the room history.
// All mutations take the write mutex, which serializes read-modify-write
// cycles on SeenBy under concurrent mark-read calls from multiple devices.
type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
	mu  sync.Mutex
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log}
}

// storedMessage is the JSON value persisted in badger. It doubles as the
// canonical encoding of a message row, shared with nothing: wire DTOs live
// in the api package.
type storedMessage struct {
	ID         string   `json:"id"`
	AuthorID   string   `json:"author_id"`
	AuthorName string   `json:"author_name"`
	Body       string   `json:"body"`
	CreatedAt  int64    `json:"created_at"`
	SeenBy     []string `json:"seen_by"`
	Deleted    bool     `json:"deleted"`
}

// primaryKey is formatted as "msg:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Keep the UUID as a collision disconnector if two messages are
//     assigned the same nanosecond.
func primaryKey(id uuid.UUID, at time.Time) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s", msgPrefix, at.UnixNano(), id))
}

func indexKey(id uuid.UUID) []byte {
	return []byte(idxPrefix + id.String())
}

// Append assigns the canonical id and timestamp, initializes an empty seen
// set, and persists the row together with its id index entry.
func (m *MessageRepository) Append(author domain.Participant, body string) (domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg := domain.Message{
		ID:         uuid.New(),
		AuthorID:   author.ID,
		AuthorName: author.Name,
		Body:       body,
		CreatedAt:  time.Now().UTC(),
		SeenBy:     domain.NewSeenSet(),
	}
	key := primaryKey(msg.ID, msg.CreatedAt)
	value, err := json.Marshal(fromMessage(msg))
	if err != nil {
		return domain.Message{}, err
	}
	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, value); err != nil {
			return err
		}
		return txn.Set(indexKey(msg.ID), key)
	})
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

func (m *MessageRepository) Get(id uuid.UUID) (domain.Message, error) {
	var msg domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		var err error
		msg, _, err = getByID(txn, id)
		return err
	})
	return msg, err
}

// List returns the full ordered history, or the suffix strictly after
// sinceID. An unknown sinceID (e.g. purged by a clear) falls back to the
// full history, which is the authoritative state a reconnecting client
// should converge to.
func (m *MessageRepository) List(sinceID *uuid.UUID) ([]domain.Message, error) {
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		var after []byte
		if sinceID != nil {
			item, err := txn.Get(indexKey(*sinceID))
			switch err {
			case nil:
				after, err = item.ValueCopy(nil)
				if err != nil {
					return err
				}
			case badger.ErrKeyNotFound:
				m.log.Debug("since id unknown, replaying full history", "id", sinceID)
			default:
				return err
			}
		}

		prefix := []byte(msgPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		it.Seek(prefix)
		if after != nil {
			it.Seek(after)
			if it.ValidForPrefix(prefix) {
				it.Next()
			}
		}
		for ; it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				msg, err := decodeMessage(value)
				if err != nil {
					return err
				}
				messages = append(messages, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return messages, err
}

// MarkSeen unions the participant into each message's seen set and returns
// the messages that actually changed. Unknown ids are skipped: a mark-read
// racing with a clear is already resolved. Repeating the call is a no-op.
func (m *MessageRepository) MarkSeen(ids []uuid.UUID, participantID string) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var updated []domain.Message
	err := m.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			msg, key, err := getByID(txn, id)
			if err == apperrors.ErrNotFound {
				m.log.Debug("mark seen on purged message, skipping", "id", id)
				continue
			}
			if err != nil {
				return err
			}
			if !msg.SeenBy.Add(participantID) {
				continue
			}
			value, err := json.Marshal(fromMessage(msg))
			if err != nil {
				return err
			}
			if err := txn.Set(key, value); err != nil {
				return err
			}
			updated = append(updated, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Redact flips the row into its redacted state. Redacting twice returns the
// current row with ErrAlreadyRedacted; the caller decides that it is a
// no-op success.
func (m *MessageRepository) Redact(id uuid.UUID) (domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var msg domain.Message
	err := m.db.Update(func(txn *badger.Txn) error {
		var key []byte
		var err error
		msg, key, err = getByID(txn, id)
		if err != nil {
			return err
		}
		if !msg.Redact() {
			return apperrors.ErrAlreadyRedacted
		}
		value, err := json.Marshal(fromMessage(msg))
		if err != nil {
			return err
		}
		return txn.Set(key, value)
	})
	return msg, err
}

// ClearAll purges every message and index entry and returns the purged ids
// so downstream indexes can drop them too.
func (m *MessageRepository) ClearAll() ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []uuid.UUID
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(idxPrefix)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id, err := uuid.Parse(string(it.Item().Key()[len(idxPrefix):]))
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := m.db.DropPrefix([]byte(msgPrefix), []byte(idxPrefix)); err != nil {
		return nil, err
	}
	return ids, nil
}

func getByID(txn *badger.Txn, id uuid.UUID) (domain.Message, []byte, error) {
	item, err := txn.Get(indexKey(id))
	if err == badger.ErrKeyNotFound {
		return domain.Message{}, nil, apperrors.ErrNotFound
	}
	if err != nil {
		return domain.Message{}, nil, err
	}
	key, err := item.ValueCopy(nil)
	if err != nil {
		return domain.Message{}, nil, err
	}
	item, err = txn.Get(key)
	if err == badger.ErrKeyNotFound {
		// Index entry without a row: treat as purged.
		return domain.Message{}, nil, apperrors.ErrNotFound
	}
	if err != nil {
		return domain.Message{}, nil, err
	}
	var msg domain.Message
	err = item.Value(func(value []byte) error {
		var decodeErr error
		msg, decodeErr = decodeMessage(value)
		return decodeErr
	})
	return msg, key, err
}

func decodeMessage(value []byte) (domain.Message, error) {
	var stored storedMessage
	if err := json.Unmarshal(value, &stored); err != nil {
		return domain.Message{}, err
	}
	return toMessage(stored)
}

func fromMessage(msg domain.Message) storedMessage {
	return storedMessage{
		ID:         msg.ID.String(),
		AuthorID:   msg.AuthorID,
		AuthorName: msg.AuthorName,
		Body:       msg.Body,
		CreatedAt:  msg.CreatedAt.UnixNano(),
		SeenBy:     msg.SeenBy.List(),
		Deleted:    msg.Deleted,
	}
}

func toMessage(stored storedMessage) (domain.Message, error) {
	parsedID, err := uuid.Parse(stored.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:         parsedID,
		AuthorID:   stored.AuthorID,
		AuthorName: stored.AuthorName,
		Body:       stored.Body,
		CreatedAt:  time.Unix(0, stored.CreatedAt).UTC(),
		SeenBy:     domain.NewSeenSet(stored.SeenBy...),
		Deleted:    stored.Deleted,
	}, nil
}
