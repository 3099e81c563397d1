package command

import (
	"context"
	"log/slog"
	"strings"

	"github.com/soyle-hub/soyle-practice-hub/internal/application/conversation"
	"github.com/soyle-hub/soyle-practice-hub/internal/domain/session"
	"github.com/soyle-hub/soyle-practice-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SEND TURN COMMAND
// Exchanges one conversational turn: the learner's text goes to the
// orchestrator, and both sides of the exchange are appended atomically.
// ══════════════════════════════════════════════════════════════════════════════

// SendTurnCommand contains the data for one conversational exchange.
type SendTurnCommand struct {
	// SessionID identifies the active session.
	SessionID session.ID

	// Text is the learner's utterance. Required, non-empty.
	Text string
}

// Validate validates the command.
func (c SendTurnCommand) Validate() error {
	if !c.SessionID.IsValid() {
		return shared.NewDomainError("session", "SendTurn", shared.ErrInvalidID, "session id is required")
	}
	if strings.TrimSpace(c.Text) == "" {
		return shared.ErrEmptyTurnText
	}
	return nil
}

// SendTurnResult contains the result of an exchange.
type SendTurnResult struct {
	// AssistantText is what the learner sees: the generated reply, or the
	// fallback apology when the provider was unavailable.
	AssistantText string

	// Degraded is true when the fallback text was substituted.
	Degraded bool

	// TurnCount is the transcript length after the exchange.
	TurnCount int
}

// SendTurnHandler handles SendTurnCommand.
type SendTurnHandler struct {
	sessions     session.Repository
	orchestrator *conversation.Orchestrator
	locks        *SessionLocks
	logger       *slog.Logger
}

// NewSendTurnHandler creates a SendTurnHandler.
func NewSendTurnHandler(sessions session.Repository, orchestrator *conversation.Orchestrator, locks *SessionLocks, logger *slog.Logger) *SendTurnHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SendTurnHandler{sessions: sessions, orchestrator: orchestrator, locks: locks, logger: logger}
}

// Handle performs one exchange. Provider failures never surface as errors:
// the learner receives the fallback reply and the transcript still records
// both sides of what the learner actually saw.
func (h *SendTurnHandler) Handle(ctx context.Context, cmd SendTurnCommand) (*SendTurnResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	unlock := h.locks.Lock(cmd.SessionID)
	defer unlock()

	sess, err := h.sessions.GetByID(ctx, cmd.SessionID)
	if err != nil {
		return nil, err
	}
	if !sess.IsActive() {
		return nil, shared.ErrSessionCompleted
	}

	assistantText, degraded := h.orchestrator.Reply(ctx, sess, cmd.Text)

	userTurn := session.NewUserTurn(cmd.Text)
	assistantTurn := session.NewAssistantTurn(assistantText)
	if err := h.sessions.AppendExchange(ctx, cmd.SessionID, userTurn, assistantTurn); err != nil {
		// The append is both-or-neither; on failure the transcript is
		// unchanged and the caller gets a hard error.
		return nil, shared.WrapError("session", "SendTurn", shared.ErrOperationFailed, "failed to append exchange", err)
	}

	if degraded {
		h.logger.Warn("exchange recorded with fallback reply", "session_id", cmd.SessionID.String())
	}

	return &SendTurnResult{
		AssistantText: assistantText,
		Degraded:      degraded,
		TurnCount:     sess.TurnCount() + 2,
	}, nil
}
