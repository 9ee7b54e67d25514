package auth

import (
	"context"
	"net/http"
	"strings"

	"staffroom/domain"
)

type contextKey string

const participantKey contextKey = "participant"

// Middleware validates the bearer token and injects the authenticated
// participant into the request context for downstream handlers.
// Websocket upgrades from browsers cannot set headers, so a token query
// parameter is accepted as a fallback.
func Middleware(issuer TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if tokenStr == "" {
				tokenStr = r.URL.Query().Get("token")
			}
			if tokenStr == "" {
				http.Error(w, "authorization token is missing", http.StatusUnauthorized)
				return
			}

			claims, err := issuer.Validate(tokenStr)
			if err != nil {
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}

			participant := domain.Participant{
				ID:         claims.ParticipantID,
				Name:       claims.Name,
				Privileged: claims.Privileged,
			}
			next.ServeHTTP(w, r.WithContext(WithParticipant(r.Context(), participant)))
		})
	}
}

func WithParticipant(ctx context.Context, p domain.Participant) context.Context {
	return context.WithValue(ctx, participantKey, p)
}

// ParticipantFrom extracts the authenticated participant injected by
// Middleware. The boolean is false on unauthenticated contexts, which only
// happens on mis-wired routes.
func ParticipantFrom(ctx context.Context) (domain.Participant, bool) {
	p, ok := ctx.Value(participantKey).(domain.Participant)
	return p, ok
}
