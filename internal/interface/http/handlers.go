package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/soyle-hub/soyle-practice-hub/internal/application/command"
	"github.com/soyle-hub/soyle-practice-hub/internal/application/query"
	"github.com/soyle-hub/soyle-practice-hub/internal/domain/session"
	"github.com/soyle-hub/soyle-practice-hub/internal/domain/shared"
	"github.com/soyle-hub/soyle-practice-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST / RESPONSE TYPES
// ══════════════════════════════════════════════════════════════════════════════

// startSessionRequest is the body of POST /sessions.
type startSessionRequest struct {
	LearnerID string `json:"learner_id"`
	MentorID  string `json:"mentor_id,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Topic     string `json:"topic,omitempty"`
	Scenario  string `json:"scenario,omitempty"`
}

// sendTurnRequest is the body of POST /sessions/{id}/turns.
type sendTurnRequest struct {
	Text string `json:"text"`
}

type startSessionResponse struct {
	SessionID string `json:"session_id"`
	StartedAt string `json:"started_at"`
}

type sendTurnResponse struct {
	AssistantText string `json:"assistant_text"`
	Degraded      bool   `json:"degraded"`
	TurnCount     int    `json:"turn_count"`
}

type finalizeResponse struct {
	Report           session.Report `json:"report"`
	AlreadyCompleted bool           `json:"already_completed"`
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleStartSession handles POST /api/v1/sessions.
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_json", "Request body must be valid JSON")
		return
	}

	result, err := s.deps.StartSessionHandler.Handle(r.Context(), command.StartSessionCommand{
		LearnerID: req.LearnerID,
		MentorID:  req.MentorID,
		Kind:      session.Kind(req.Kind),
		Topic:     req.Topic,
		Scenario:  req.Scenario,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, startSessionResponse{
		SessionID: result.SessionID.String(),
		StartedAt: result.StartedAt,
	})
}

// handleSendTurn handles POST /api/v1/sessions/{id}/turns. Provider outages do
// not surface here: the command already substituted the fallback reply and the
// response carries the degraded flag instead of an error status.
func (s *Server) handleSendTurn(w http.ResponseWriter, r *http.Request) {
	var req sendTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_json", "Request body must be valid JSON")
		return
	}

	result, err := s.deps.SendTurnHandler.Handle(r.Context(), command.SendTurnCommand{
		SessionID: session.ID(chi.URLParam(r, "id")),
		Text:      req.Text,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sendTurnResponse{
		AssistantText: result.AssistantText,
		Degraded:      result.Degraded,
		TurnCount:     result.TurnCount,
	})
}

// handleFinalizeSession handles POST /api/v1/sessions/{id}/finalize. Repeat
// calls return the stored report with 200, never a conflict.
func (s *Server) handleFinalizeSession(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.FinalizeSessionHandler.Handle(r.Context(), command.FinalizeSessionCommand{
		SessionID: session.ID(chi.URLParam(r, "id")),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, finalizeResponse{
		Report:           result.Report,
		AlreadyCompleted: result.AlreadyCompleted,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// AUDIO HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleAttachAudio handles PUT /api/v1/sessions/{id}/audio. The body is the
// raw recording; the optional ?filename= query names it.
func (s *Server) handleAttachAudio(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "Audio recording exceeds the size limit")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "invalid_body", "Failed to read request body")
		return
	}

	err = s.deps.AttachAudioHandler.Handle(r.Context(), command.AttachAudioCommand{
		SessionID: session.ID(chi.URLParam(r, "id")),
		Data:      data,
		Filename:  r.URL.Query().Get("filename"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleGetAudio handles GET /api/v1/sessions/{id}/audio. Responds with the
// raw bytes, not the JSON envelope.
func (s *Server) handleGetAudio(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.GetAudioHandler.Handle(r.Context(), query.GetAudioQuery{
		SessionID: session.ID(chi.URLParam(r, "id")),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

// ══════════════════════════════════════════════════════════════════════════════
// MENTOR HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleListMentorSessions handles GET /api/v1/mentors/{id}/sessions.
func (s *Server) handleListMentorSessions(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.ListMentorSessionsHandler.Handle(r.Context(), query.ListMentorSessionsQuery{
		MentorID: chi.URLParam(r, "id"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeDomainError maps a domain error to an HTTP status. Ordering matters:
// validation before not-found, since some wrapped errors carry both kinds of
// context.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case shared.IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case shared.IsConflict(err):
		writeJSONError(w, http.StatusConflict, "conflict", err.Error())
	case shared.IsServiceUnavailable(err):
		writeJSONError(w, http.StatusServiceUnavailable, "service_unavailable", "A downstream dependency is unavailable")
	default:
		s.logger.Error("request failed",
			logger.String("path", r.URL.Path),
			logger.Err(err),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "An internal error occurred")
	}
}
