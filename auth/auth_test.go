package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"staffroom/domain"
)

const testSecret = "test-secret"

func TestTokenIssuer_Generate_And_Validate(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer(testSecret, time.Hour)

	token, err := issuer.Generate("alice", "Alice", true)
	req.NoError(err)
	req.NotEmpty(token)

	claims, err := issuer.Validate(token)
	req.NoError(err)
	req.Equal("alice", claims.ParticipantID)
	req.Equal("Alice", claims.Name)
	req.True(claims.Privileged)
	req.Equal("staffroom", claims.Issuer)
}

func TestTokenIssuer_Rejects_Wrong_Secret(t *testing.T) {
	req := require.New(t)

	token, err := NewTokenIssuer(testSecret, time.Hour).Generate("alice", "Alice", false)
	req.NoError(err)

	_, err = NewTokenIssuer("another-secret", time.Hour).Validate(token)
	req.Error(err)
}

func TestTokenIssuer_Rejects_Expired_Token(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer(testSecret, -time.Minute)

	token, err := issuer.Generate("alice", "Alice", false)
	req.NoError(err)

	_, err = issuer.Validate(token)
	req.Error(err)
}

func TestMiddleware_Injects_Participant(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer(testSecret, time.Hour)

	token, err := issuer.Generate("alice", "Alice", true)
	req.NoError(err)

	var got domain.Participant
	handler := Middleware(issuer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := ParticipantFrom(r.Context())
		req.True(ok)
		got = p
	}))

	// Bearer header
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
	request.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(recorder, request)
	req.Equal(http.StatusOK, recorder.Code)
	req.Equal(domain.Participant{ID: "alice", Name: "Alice", Privileged: true}, got)

	// Query parameter fallback used by websocket upgrades
	recorder = httptest.NewRecorder()
	request = httptest.NewRequest(http.MethodGet, "/api/room/ws?token="+token, nil)
	handler.ServeHTTP(recorder, request)
	req.Equal(http.StatusOK, recorder.Code)
	req.Equal("alice", got.ID)
}

func TestMiddleware_Rejects_Bad_Tokens(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenIssuer(testSecret, time.Hour)

	handler := Middleware(issuer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req.Fail("handler should not run without a valid token")
	}))

	tests := []struct {
		name  string
		setup func(r *http.Request)
	}{
		{"Missing token", func(r *http.Request) {}},
		{"Garbage token", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer not-a-jwt")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			request := httptest.NewRequest(http.MethodGet, "/api/messages", nil)
			tt.setup(request)
			handler.ServeHTTP(recorder, request)
			req.Equal(http.StatusUnauthorized, recorder.Code)
		})
	}
}
