package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"staffroom/auth"
	"staffroom/contract"
	"staffroom/domain/event"
	"staffroom/moderation"
	"staffroom/repositories"
	"staffroom/search"
	"staffroom/services"
)

type silentBroadcaster struct{}

func (silentBroadcaster) Publish(_ event.DomainEvent)            {}
func (silentBroadcaster) Join(_, _ string, _ contract.EventSink) {}
func (silentBroadcaster) Leave(_ string)                         {}
func (silentBroadcaster) Members() []string                      { return []string{"alice", "bob"} }

type roomFixture struct {
	router     http.Handler
	index      *search.Index
	aliceToken string
	bobToken   string
	adminToken string
}

func newRoomFixture(t *testing.T) *roomFixture {
	t.Helper()
	req := require.New(t)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	req.NoError(err)
	t.Cleanup(func() { _ = writer.Close() })

	moderator, err := moderation.NewModerator([]string{"badger"}, '*')
	req.NoError(err)

	index := search.NewIndex(writer, slog.Default())
	service := services.NewChatService(
		repositories.NewMessageRepository(db, slog.Default()),
		silentBroadcaster{},
		services.NewRedactionGuard(),
		moderator,
		index,
		slog.Default(),
		500,
	)

	issuer := auth.NewTokenIssuer("test-secret", time.Hour)
	aliceToken, err := issuer.Generate("alice", "Alice", false)
	req.NoError(err)
	bobToken, err := issuer.Generate("bob", "Bob", false)
	req.NoError(err)
	adminToken, err := issuer.Generate("root", "Root", true)
	req.NoError(err)

	server := NewServer(slog.Default(), service, 16)
	return &roomFixture{
		router:     server.Router(issuer),
		index:      index,
		aliceToken: aliceToken,
		bobToken:   bobToken,
		adminToken: adminToken,
	}
}

func (f *roomFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	request := httptest.NewRequest(method, path, &buf)
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	f.router.ServeHTTP(recorder, request)
	return recorder
}

func decodeMessage(t *testing.T, recorder *httptest.ResponseRecorder) MessageResponse {
	t.Helper()
	var msg MessageResponse
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&msg))
	return msg
}

func decodeMessages(t *testing.T, recorder *httptest.ResponseRecorder) []MessageResponse {
	t.Helper()
	var messages []MessageResponse
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&messages))
	return messages
}

func TestAPI_Post_Read_Receipt_Flow(t *testing.T) {
	req := require.New(t)
	fixture := newRoomFixture(t)

	// Alice posts a message
	recorder := fixture.do(t, http.MethodPost, "/api/messages", fixture.aliceToken,
		PostMessageRequest{Body: "morning everyone", ProvisionalID: "prov-1"})
	req.Equal(http.StatusCreated, recorder.Code)

	posted := decodeMessage(t, recorder)
	req.NotEmpty(posted.ID)
	req.Equal("alice", posted.AuthorID)
	req.Equal("unseen", posted.Receipt)
	req.Empty(posted.SeenBy)

	// Bob fetches the history and sees it without ticks
	recorder = fixture.do(t, http.MethodGet, "/api/messages", fixture.bobToken, nil)
	req.Equal(http.StatusOK, recorder.Code)
	history := decodeMessages(t, recorder)
	req.Len(history, 1)
	req.Equal("none", history[0].Receipt)

	// Bob marks the room read
	recorder = fixture.do(t, http.MethodPost, "/api/messages/read", fixture.bobToken, nil)
	req.Equal(http.StatusOK, recorder.Code)
	updated := decodeMessages(t, recorder)
	req.Len(updated, 1)
	req.Equal([]string{"bob"}, updated[0].SeenBy)

	// Alice now sees the double tick
	recorder = fixture.do(t, http.MethodGet, "/api/messages", fixture.aliceToken, nil)
	req.Equal(http.StatusOK, recorder.Code)
	history = decodeMessages(t, recorder)
	req.Equal("seen", history[0].Receipt)

	// Marking read again is a visible no-op
	recorder = fixture.do(t, http.MethodPost, "/api/messages/read", fixture.bobToken, nil)
	req.Equal(http.StatusOK, recorder.Code)
	req.Empty(decodeMessages(t, recorder))
}

func TestAPI_Post_Validation(t *testing.T) {
	req := require.New(t)
	fixture := newRoomFixture(t)

	recorder := fixture.do(t, http.MethodPost, "/api/messages", fixture.aliceToken,
		PostMessageRequest{Body: ""})
	req.Equal(http.StatusBadRequest, recorder.Code)

	recorder = fixture.do(t, http.MethodPost, "/api/messages", "", PostMessageRequest{Body: "hi"})
	req.Equal(http.StatusUnauthorized, recorder.Code)
}

func TestAPI_History_Since_ID(t *testing.T) {
	req := require.New(t)
	fixture := newRoomFixture(t)

	first := decodeMessage(t, fixture.do(t, http.MethodPost, "/api/messages", fixture.aliceToken,
		PostMessageRequest{Body: "one"}))
	second := decodeMessage(t, fixture.do(t, http.MethodPost, "/api/messages", fixture.aliceToken,
		PostMessageRequest{Body: "two"}))

	recorder := fixture.do(t, http.MethodGet, "/api/messages?since_id="+first.ID, fixture.bobToken, nil)
	req.Equal(http.StatusOK, recorder.Code)
	suffix := decodeMessages(t, recorder)
	req.Len(suffix, 1)
	req.Equal(second.ID, suffix[0].ID)

	// An unknown since_id replays the full history
	recorder = fixture.do(t, http.MethodGet, "/api/messages?since_id="+uuid.NewString(), fixture.bobToken, nil)
	req.Equal(http.StatusOK, recorder.Code)
	req.Len(decodeMessages(t, recorder), 2)

	// A malformed one is rejected
	recorder = fixture.do(t, http.MethodGet, "/api/messages?since_id=not-a-uuid", fixture.bobToken, nil)
	req.Equal(http.StatusBadRequest, recorder.Code)
}

func TestAPI_Redact_Status_Codes(t *testing.T) {
	req := require.New(t)
	fixture := newRoomFixture(t)

	posted := decodeMessage(t, fixture.do(t, http.MethodPost, "/api/messages", fixture.aliceToken,
		PostMessageRequest{Body: "mistake"}))

	// Unacknowledged: precondition failed even for the privileged actor
	recorder := fixture.do(t, http.MethodDelete, "/api/messages/"+posted.ID, fixture.adminToken, nil)
	req.Equal(http.StatusConflict, recorder.Code)

	fixture.do(t, http.MethodPost, "/api/messages/read", fixture.bobToken, nil)

	// Unprivileged actor: forbidden
	recorder = fixture.do(t, http.MethodDelete, "/api/messages/"+posted.ID, fixture.bobToken, nil)
	req.Equal(http.StatusForbidden, recorder.Code)

	// Privileged actor after acknowledgement: redacted
	recorder = fixture.do(t, http.MethodDelete, "/api/messages/"+posted.ID, fixture.adminToken, nil)
	req.Equal(http.StatusOK, recorder.Code)
	redacted := decodeMessage(t, recorder)
	req.True(redacted.Deleted)
	req.Equal("This message was deleted", redacted.Body)

	// Redacting again is a no-op success
	recorder = fixture.do(t, http.MethodDelete, "/api/messages/"+posted.ID, fixture.adminToken, nil)
	req.Equal(http.StatusOK, recorder.Code)

	// An already-redacted target does not soften the role check
	recorder = fixture.do(t, http.MethodDelete, "/api/messages/"+posted.ID, fixture.bobToken, nil)
	req.Equal(http.StatusForbidden, recorder.Code)

	// Unknown id resolves silently for the privileged actor only
	recorder = fixture.do(t, http.MethodDelete, "/api/messages/"+uuid.NewString(), fixture.adminToken, nil)
	req.Equal(http.StatusNoContent, recorder.Code)
	recorder = fixture.do(t, http.MethodDelete, "/api/messages/"+uuid.NewString(), fixture.bobToken, nil)
	req.Equal(http.StatusForbidden, recorder.Code)
}

func TestAPI_ClearAll(t *testing.T) {
	req := require.New(t)
	fixture := newRoomFixture(t)

	fixture.do(t, http.MethodPost, "/api/messages", fixture.aliceToken, PostMessageRequest{Body: "one"})
	fixture.do(t, http.MethodPost, "/api/messages", fixture.bobToken, PostMessageRequest{Body: "two"})

	recorder := fixture.do(t, http.MethodDelete, "/api/messages", fixture.aliceToken, nil)
	req.Equal(http.StatusForbidden, recorder.Code)

	recorder = fixture.do(t, http.MethodDelete, "/api/messages", fixture.adminToken, nil)
	req.Equal(http.StatusNoContent, recorder.Code)

	recorder = fixture.do(t, http.MethodGet, "/api/messages", fixture.aliceToken, nil)
	req.Equal(http.StatusOK, recorder.Code)
	req.Empty(decodeMessages(t, recorder))
}

func TestAPI_Search(t *testing.T) {
	req := require.New(t)
	fixture := newRoomFixture(t)

	posted := decodeMessage(t, fixture.do(t, http.MethodPost, "/api/messages", fixture.aliceToken,
		PostMessageRequest{Body: "the deadline moved to friday"}))
	fixture.do(t, http.MethodPost, "/api/messages", fixture.bobToken, PostMessageRequest{Body: "lunch at noon"})

	// In production the fanout feeds the index; do it directly here
	id, err := uuid.Parse(posted.ID)
	req.NoError(err)
	req.NoError(fixture.index.Add(id, "alice", "the deadline moved to friday"))

	recorder := fixture.do(t, http.MethodGet, "/api/messages/search?q=deadline", fixture.bobToken, nil)
	req.Equal(http.StatusOK, recorder.Code)
	results := decodeMessages(t, recorder)
	req.Len(results, 1)
	req.Equal(posted.ID, results[0].ID)

	recorder = fixture.do(t, http.MethodGet, "/api/messages/search", fixture.bobToken, nil)
	req.Equal(http.StatusBadRequest, recorder.Code)
}

func TestAPI_Members_And_Health(t *testing.T) {
	req := require.New(t)
	fixture := newRoomFixture(t)

	recorder := fixture.do(t, http.MethodGet, "/api/room/members", fixture.aliceToken, nil)
	req.Equal(http.StatusOK, recorder.Code)
	var members MembersResponse
	req.NoError(json.NewDecoder(recorder.Body).Decode(&members))
	req.Equal([]string{"alice", "bob"}, members.Members)

	recorder = fixture.do(t, http.MethodGet, "/healthz", "", nil)
	req.Equal(http.StatusOK, recorder.Code)
	req.Equal("application/json", recorder.Header().Get("Content-Type"))
}

func TestAPI_Censors_Posted_Bodies(t *testing.T) {
	req := require.New(t)
	fixture := newRoomFixture(t)

	posted := decodeMessage(t, fixture.do(t, http.MethodPost, "/api/messages", fixture.aliceToken,
		PostMessageRequest{Body: fmt.Sprintf("a %s appears", "badger")}))
	req.Equal("a ****** appears", posted.Body)
}
