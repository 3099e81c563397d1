package command

import (
	"context"
	"log/slog"

	"github.com/soyle-hub/soyle-practice-hub/internal/domain/session"
	"github.com/soyle-hub/soyle-practice-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ATTACH AUDIO COMMAND
// Stores a recording alongside a session. Audio is independent of the
// conversation transcript, so this does not take the per-session lock and may
// run while turns are being exchanged or after completion.
// ══════════════════════════════════════════════════════════════════════════════

// maxAudioBytes caps uploads at 25 MiB, matching the HTTP body limit.
const maxAudioBytes = 25 << 20

// AttachAudioCommand contains the audio blob to store.
type AttachAudioCommand struct {
	// SessionID identifies the session the recording belongs to.
	SessionID session.ID

	// Data is the raw audio payload. Required, non-empty.
	Data []byte

	// Filename is the client-provided name, used for download headers.
	Filename string
}

// Validate validates the command.
func (c AttachAudioCommand) Validate() error {
	if !c.SessionID.IsValid() {
		return shared.NewDomainError("session", "AttachAudio", shared.ErrInvalidID, "session id is required")
	}
	if len(c.Data) == 0 {
		return shared.NewDomainError("session", "AttachAudio", shared.ErrEmptyValue, "audio payload is empty")
	}
	if len(c.Data) > maxAudioBytes {
		return shared.NewDomainError("session", "AttachAudio", shared.ErrInvalidInput, "audio payload exceeds size limit")
	}
	return nil
}

// AttachAudioHandler handles AttachAudioCommand.
type AttachAudioHandler struct {
	sessions session.Repository
	logger   *slog.Logger
}

// NewAttachAudioHandler creates an AttachAudioHandler.
func NewAttachAudioHandler(sessions session.Repository, logger *slog.Logger) *AttachAudioHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttachAudioHandler{sessions: sessions, logger: logger}
}

// Handle stores the audio blob. Re-attaching replaces the previous recording.
func (h *AttachAudioHandler) Handle(ctx context.Context, cmd AttachAudioCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	filename := cmd.Filename
	if filename == "" {
		filename = cmd.SessionID.String() + ".ogg"
	}

	if err := h.sessions.AttachAudio(ctx, cmd.SessionID, cmd.Data, filename); err != nil {
		if shared.IsNotFound(err) {
			return err
		}
		return shared.WrapError("session", "AttachAudio", shared.ErrOperationFailed, "failed to store audio", err)
	}

	h.logger.Info("audio attached",
		"session_id", cmd.SessionID.String(),
		"filename", filename,
		"size_bytes", len(cmd.Data),
	)
	return nil
}
