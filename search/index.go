// Package search maintains a full-text index of the room history.
// The index is fed by domain events, so it stays eventually consistent with
// the store without sitting on the mutation path.
package search

import (
	"context"
	"log/slog"
	"sync"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
)

const (
	fieldBody   = "body"
	fieldAuthor = "author"
)

type Index struct {
	writer *bluge.Writer
	log    *slog.Logger
	mu     sync.Mutex
}

func NewIndex(writer *bluge.Writer, log *slog.Logger) *Index {
	return &Index{writer: writer, log: log}
}

// Add indexes one message body under its canonical id. Re-indexing the same
// id replaces the previous document, so duplicate events are harmless.
func (i *Index) Add(id uuid.UUID, authorID, body string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	doc := bluge.NewDocument(id.String()).
		AddField(bluge.NewTextField(fieldBody, body).StoreValue()).
		AddField(bluge.NewKeywordField(fieldAuthor, authorID).StoreValue())
	return i.writer.Update(doc.ID(), doc)
}

// Delete drops one document. Used for redactions: a placeholder body is not
// searchable content.
func (i *Index) Delete(id uuid.UUID) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.writer.Delete(bluge.Identifier(id.String()))
}

// DeleteAll drops the given documents; called with the purged ids after a
// room clear.
func (i *Index) DeleteAll(ids []uuid.UUID) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	batch := bluge.NewBatch()
	for _, id := range ids {
		batch.Delete(bluge.Identifier(id.String()))
	}
	return i.writer.Batch(batch)
}

// Search runs a match query over message bodies and returns matching
// message ids, best first.
func (i *Index) Search(ctx context.Context, query string, limit int) ([]uuid.UUID, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			i.log.Warn("failed to close index reader", "error", err)
		}
	}()

	match := bluge.NewMatchQuery(query).SetField(fieldBody)
	request := bluge.NewTopNSearch(limit, match)
	iterator, err := reader.Search(ctx, request)
	if err != nil {
		return nil, err
	}

	var ids []uuid.UUID
	for {
		next, err := iterator.Next()
		if err != nil {
			return nil, err
		}
		if next == nil {
			break
		}
		err = next.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				if id, parseErr := uuid.Parse(string(value)); parseErr == nil {
					ids = append(ids, id)
				}
			}
			return true
		})
		if err != nil {
			return nil, err
		}
	}
	return ids, nil
}
