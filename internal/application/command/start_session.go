// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"log/slog"

	"github.com/soyle-hub/soyle-practice-hub/internal/domain/session"
	"github.com/soyle-hub/soyle-practice-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// START SESSION COMMAND
// Creates a new active practice session with an empty transcript and announces
// it to interested mentors (best-effort, never blocking the caller).
// ══════════════════════════════════════════════════════════════════════════════

// StartSessionCommand contains the data to start a practice session.
type StartSessionCommand struct {
	// LearnerID is the id of the learner starting the session. Required.
	LearnerID string

	// MentorID optionally pins a mentor to the session (with-mentor kind).
	MentorID string

	// Kind is the session kind; derived from MentorID when empty.
	Kind session.Kind

	// Topic keeps the conversation on a subject (e.g. "travel").
	Topic string

	// Scenario is an optional roleplay framing for the model.
	Scenario string
}

// Validate validates the command.
func (c StartSessionCommand) Validate() error {
	if c.LearnerID == "" {
		return shared.ErrEmptyLearnerID
	}
	if c.Kind != "" && !c.Kind.IsValid() {
		return shared.NewDomainError("session", "Start", shared.ErrInvalidInput, "unknown session kind: "+string(c.Kind))
	}
	return nil
}

// StartSessionResult contains the result of starting a session.
type StartSessionResult struct {
	// SessionID is the id of the created session.
	SessionID session.ID

	// StartedAt is the session start timestamp.
	StartedAt string
}

// StartSessionHandler handles StartSessionCommand.
type StartSessionHandler struct {
	sessions session.Repository
	bus      shared.EventPublisher
	logger   *slog.Logger
}

// NewStartSessionHandler creates a StartSessionHandler.
func NewStartSessionHandler(sessions session.Repository, bus shared.EventPublisher, logger *slog.Logger) *StartSessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StartSessionHandler{sessions: sessions, bus: bus, logger: logger}
}

// Handle creates the session and publishes the session.started event.
func (h *StartSessionHandler) Handle(ctx context.Context, cmd StartSessionCommand) (*StartSessionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	sess, err := session.New(cmd.LearnerID, cmd.MentorID, cmd.Kind, cmd.Topic, cmd.Scenario)
	if err != nil {
		return nil, err
	}

	if err := h.sessions.Create(ctx, sess); err != nil {
		return nil, shared.WrapError("session", "Start", shared.ErrOperationFailed, "failed to persist session", err)
	}

	h.logger.Info("session started",
		"session_id", sess.ID.String(),
		"learner_id", sess.LearnerID,
		"kind", string(sess.Kind),
		"topic", sess.Topic,
	)

	// Fanout is decoupled: a bus failure must not fail the start.
	if h.bus != nil {
		event := shared.NewSessionStartedEvent(sess.ID.String(), sess.LearnerID, sess.MentorID, string(sess.Kind), sess.Topic)
		if err := h.bus.Publish(event); err != nil {
			h.logger.Warn("failed to publish session.started", "session_id", sess.ID.String(), "error", err)
		}
	}

	return &StartSessionResult{
		SessionID: sess.ID,
		StartedAt: sess.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
	}, nil
}
