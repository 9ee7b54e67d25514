package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/logs"

	"staffroom/domain"
	"staffroom/domain/event"
	"staffroom/projection"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddr string `envconfig:"STAFFROOM_ADDR" default:"localhost:8080"`
	Token      string `envconfig:"STAFFROOM_TOKEN" required:"true"`
	// STAFFROOM_COLOURS enables colorized output for better readability
	Colours  bool   `envconfig:"STAFFROOM_COLOURS" default:"true"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`
}

func main() {
	// The main function manages the OS exit code based on run()'s return.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run handles the client lifecycle: subscribe to the event stream first,
// then fetch history, then replay. The timeline buffers everything received
// during the fetch, so nothing posted in the gap is lost.
func run() (int, error) {
	// 1. Load configuration from environment variables.
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	log := logs.GetLoggerFromString(config.LogLevel)

	viewerID, err := viewerFromToken(config.Token)
	if err != nil {
		return exitConfig, err
	}

	// 2. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := &roomClient{
		baseURL:  fmt.Sprintf("http://%s", config.ServerAddr),
		token:    config.Token,
		http:     &http.Client{Timeout: 10 * time.Second},
		colours:  config.Colours,
		timeline: projection.NewTimeline(viewerID),
	}

	// 3. Subscribe before fetching history.
	wsURL := url.URL{
		Scheme:   "ws",
		Host:     config.ServerAddr,
		Path:     "/api/room/ws",
		RawQuery: url.Values{"token": {config.Token}}.Encode(),
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to server at %s: %w", config.ServerAddr, err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.Close()
	}()

	client.timeline.StartBuffering()

	events := make(chan event.DomainEvent, 64)
	go func() {
		defer close(events)
		for {
			var envelope roomEvent
			if err := conn.ReadJSON(&envelope); err != nil {
				return
			}
			if evt, ok := envelope.toDomainEvent(); ok {
				events <- evt
			}
		}
	}()

	// 4. Fetch history and replay the buffer on top of it.
	history, err := client.fetchHistory()
	if err != nil {
		return exitRuntime, err
	}
	client.timeline.LoadHistory(history)
	client.render()

	log.Info(fmt.Sprintf(">>> Connected to %s as %s (Ctrl+C to quit)", config.ServerAddr, viewerID))

	// 5. Input loop: plain lines are posted, slash commands do the rest.
	input := make(chan string)
	go func() {
		defer close(input)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			input <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping client...")
			return exitOK, nil
		case evt, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return exitOK, nil
				}
				return exitRuntime, fmt.Errorf("event stream closed by server")
			}
			client.timeline.Apply(evt)
			client.render()
		case line, ok := <-input:
			if !ok {
				return exitOK, nil
			}
			if err := client.handleInput(line); err != nil {
				log.Warn("command failed", "error", err)
			}
			client.render()
		}
	}
}

type roomClient struct {
	baseURL  string
	token    string
	http     *http.Client
	colours  bool
	timeline *projection.Timeline
}

func (c *roomClient) handleInput(line string) error {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return nil
	case line == "/read":
		return c.call(http.MethodPost, "/api/messages/read", nil)
	case line == "/clear":
		return c.call(http.MethodDelete, "/api/messages", nil)
	case strings.HasPrefix(line, "/redact "):
		id := strings.TrimSpace(strings.TrimPrefix(line, "/redact "))
		return c.call(http.MethodDelete, "/api/messages/"+id, nil)
	case strings.HasPrefix(line, "/"):
		return fmt.Errorf("unknown command %q", line)
	default:
		return c.post(line)
	}
}

// post renders the message optimistically and reconciles it once the
// matching created event comes back over the stream.
func (c *roomClient) post(body string) error {
	provisionalID := uuid.NewString()
	c.timeline.AddPending(provisionalID, body)

	payload, err := json.Marshal(map[string]string{
		"body":           body,
		"provisional_id": provisionalID,
	})
	if err != nil {
		return err
	}
	return c.call(http.MethodPost, "/api/messages", payload)
}

func (c *roomClient) fetchHistory() ([]domain.Message, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/api/messages", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("history fetch failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("history fetch failed: %s: %s", resp.Status, body)
	}

	var rows []messagePayload
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(rows))
	for _, row := range rows {
		msg, err := row.toMessage()
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (c *roomClient) call(method, path string, payload []byte) error {
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, body)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// render repaints the whole timeline. Confirmed messages come first in
// canonical order, pending optimistic entries last.
func (c *roomClient) render() {
	fmt.Print("\033[H\033[2J")
	for _, entry := range c.timeline.Entries() {
		line := fmt.Sprintf("[%s] %s: %s %s",
			entry.Message.CreatedAt.Local().Format(time.TimeOnly),
			entry.Message.AuthorName,
			entry.Message.Body,
			tick(c.timeline.ReceiptState(entry)),
		)
		if entry.State == projection.Pending {
			line = fmt.Sprintf("[--:--:--] (sending) %s", entry.Message.Body)
			if c.colours {
				line = color.New(color.FgGray).Render(line)
			}
		} else if c.colours && entry.Message.Deleted {
			line = color.New(color.FgRed).Render(line)
		}
		fmt.Println(line)
	}
	fmt.Print("> ")
}

func tick(state domain.ReceiptState) string {
	switch state {
	case domain.ReceiptUnseen:
		return "✓"
	case domain.ReceiptSeenByOthers:
		return "✓✓"
	default:
		return ""
	}
}

// viewerFromToken extracts the participant id without verifying the
// signature; the server is the one that checks it.
func viewerFromToken(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("STAFFROOM_TOKEN is not a JWT")
	}
	raw, err := decodeSegment(parts[1])
	if err != nil {
		return "", fmt.Errorf("STAFFROOM_TOKEN claims are unreadable: %w", err)
	}
	var claims struct {
		ParticipantID string `json:"participant_id"`
	}
	if err := json.Unmarshal(raw, &claims); err != nil {
		return "", err
	}
	if claims.ParticipantID == "" {
		return "", fmt.Errorf("STAFFROOM_TOKEN has no participant_id claim")
	}
	return claims.ParticipantID, nil
}

func decodeSegment(segment string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(segment, "="))
}

// messagePayload mirrors the REST message representation.
type messagePayload struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
	SeenBy     []string  `json:"seen_by"`
	Deleted    bool      `json:"deleted"`
}

func (p messagePayload) toMessage() (domain.Message, error) {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("bad message id %q: %w", p.ID, err)
	}
	return domain.Message{
		ID:         id,
		AuthorID:   p.AuthorID,
		AuthorName: p.AuthorName,
		Body:       p.Body,
		CreatedAt:  p.CreatedAt,
		SeenBy:     domain.NewSeenSet(p.SeenBy...),
		Deleted:    p.Deleted,
	}, nil
}

// roomEvent mirrors the websocket envelope.
type roomEvent struct {
	Type          event.Kind      `json:"type"`
	Message       *messagePayload `json:"message"`
	ProvisionalID string          `json:"provisional_id"`
	MessageID     string          `json:"message_id"`
	SeenBy        []string        `json:"seen_by"`
	Body          string          `json:"body"`
}

func (e roomEvent) toDomainEvent() (event.DomainEvent, bool) {
	switch e.Type {
	case event.KindMessageCreated:
		if e.Message == nil {
			return nil, false
		}
		msg, err := e.Message.toMessage()
		if err != nil {
			return nil, false
		}
		return event.MessageCreated{Message: msg, ProvisionalID: e.ProvisionalID}, true
	case event.KindReceiptsUpdated:
		id, err := uuid.Parse(e.MessageID)
		if err != nil {
			return nil, false
		}
		return event.ReceiptsUpdated{MessageID: id, SeenBy: e.SeenBy}, true
	case event.KindMessageRedacted:
		id, err := uuid.Parse(e.MessageID)
		if err != nil {
			return nil, false
		}
		return event.MessageRedacted{MessageID: id, Body: e.Body}, true
	case event.KindRoomCleared:
		return event.RoomCleared{At: time.Now().UTC()}, true
	default:
		return nil, false
	}
}
