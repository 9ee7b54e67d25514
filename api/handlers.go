package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"staffroom/auth"
	"staffroom/domain"
	"staffroom/errors"
)

const defaultSearchLimit = 20

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	participant, ok := auth.ParticipantFrom(r.Context())
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "no participant in context")
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := s.chatService.Post(r.Context(), domain.PostMessageCommand{
		Author:        participant,
		ProvisionalID: req.ProvisionalID,
		Body:          req.Body,
	})
	if err != nil {
		s.respondError(w, errors.MapToHTTPStatus(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, toMessageResponse(msg, participant.ID))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	participant, ok := auth.ParticipantFrom(r.Context())
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "no participant in context")
		return
	}

	var sinceID *uuid.UUID
	if raw := r.URL.Query().Get("since_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "since_id must be a UUID")
			return
		}
		sinceID = &id
	}

	messages, err := s.chatService.History(sinceID)
	if err != nil {
		s.respondError(w, errors.MapToHTTPStatus(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, toMessageResponses(messages, participant.ID))
}

// handleMarkRead acknowledges every message the caller has not seen yet.
// The endpoint takes no body and is idempotent.
func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	participant, ok := auth.ParticipantFrom(r.Context())
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "no participant in context")
		return
	}

	updated, err := s.chatService.MarkRead(domain.MarkReadCommand{ParticipantID: participant.ID})
	if err != nil {
		s.respondError(w, errors.MapToHTTPStatus(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, toMessageResponses(updated, participant.ID))
}

func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	participant, ok := auth.ParticipantFrom(r.Context())
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "no participant in context")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "message id must be a UUID")
		return
	}

	msg, err := s.chatService.Redact(domain.RedactCommand{Actor: participant, MessageID: id})
	if err != nil {
		s.respondError(w, errors.MapToHTTPStatus(err), err.Error())
		return
	}
	if msg.ID == uuid.Nil {
		// Purged before the request arrived: already resolved.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.respondJSON(w, http.StatusOK, toMessageResponse(msg, participant.ID))
}

func (s *Server) handleClearAll(w http.ResponseWriter, r *http.Request) {
	participant, ok := auth.ParticipantFrom(r.Context())
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "no participant in context")
		return
	}

	if err := s.chatService.ClearAll(domain.ClearCommand{Actor: participant}); err != nil {
		s.respondError(w, errors.MapToHTTPStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	participant, ok := auth.ParticipantFrom(r.Context())
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "no participant in context")
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		s.respondError(w, http.StatusBadRequest, "q query parameter is required")
		return
	}
	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	messages, err := s.chatService.Search(r.Context(), query, limit)
	if err != nil {
		s.respondError(w, errors.MapToHTTPStatus(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, toMessageResponses(messages, participant.ID))
}

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.ParticipantFrom(r.Context()); !ok {
		s.respondError(w, http.StatusUnauthorized, "no participant in context")
		return
	}
	s.respondJSON(w, http.StatusOK, MembersResponse{Members: s.chatService.Members()})
}
