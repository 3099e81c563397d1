package query

import (
	"context"

	"github.com/soyle-hub/soyle-practice-hub/internal/domain/session"
	"github.com/soyle-hub/soyle-practice-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET AUDIO QUERY
// ══════════════════════════════════════════════════════════════════════════════

// GetAudioQuery contains the query parameters.
type GetAudioQuery struct {
	// SessionID identifies the session whose recording is fetched.
	SessionID session.ID
}

// Validate validates the query.
func (q GetAudioQuery) Validate() error {
	if !q.SessionID.IsValid() {
		return shared.NewDomainError("session", "FetchAudio", shared.ErrInvalidID, "session id is required")
	}
	return nil
}

// GetAudioResult contains the stored recording.
type GetAudioResult struct {
	// Data is the raw audio payload as uploaded.
	Data []byte

	// Filename is the name the recording was stored under.
	Filename string
}

// GetAudioHandler handles GetAudioQuery.
type GetAudioHandler struct {
	sessions session.Repository
}

// NewGetAudioHandler creates a GetAudioHandler.
func NewGetAudioHandler(sessions session.Repository) *GetAudioHandler {
	return &GetAudioHandler{sessions: sessions}
}

// Handle fetches the recording. A session without audio yields
// shared.ErrAudioNotFound.
func (h *GetAudioHandler) Handle(ctx context.Context, q GetAudioQuery) (*GetAudioResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	data, filename, err := h.sessions.GetAudio(ctx, q.SessionID)
	if err != nil {
		return nil, err
	}

	return &GetAudioResult{Data: data, Filename: filename}, nil
}
