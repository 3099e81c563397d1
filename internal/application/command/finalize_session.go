package command

import (
	"context"
	"log/slog"
	"time"

	"github.com/soyle-hub/soyle-practice-hub/internal/application/analysis"
	"github.com/soyle-hub/soyle-practice-hub/internal/application/conversation"
	"github.com/soyle-hub/soyle-practice-hub/internal/domain/session"
	"github.com/soyle-hub/soyle-practice-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// FINALIZE SESSION COMMAND
// Idempotent completion: the first caller to observe an active session runs
// the whole-transcript analysis and flips the completed flag; everyone else
// gets the stored report back without touching the provider.
// ══════════════════════════════════════════════════════════════════════════════

// analysisUnavailableFeedback is the report feedback used when the provider
// could not produce an analysis at all.
const analysisUnavailableFeedback = "We could not grade this session automatically. Your transcript has been saved."

// FinalizeSessionCommand identifies the session to finalize.
type FinalizeSessionCommand struct {
	// SessionID identifies the session.
	SessionID session.ID
}

// Validate validates the command.
func (c FinalizeSessionCommand) Validate() error {
	if !c.SessionID.IsValid() {
		return shared.NewDomainError("session", "Finalize", shared.ErrInvalidID, "session id is required")
	}
	return nil
}

// FinalizeSessionResult contains the finalization outcome.
type FinalizeSessionResult struct {
	// Report is the stored score report.
	Report session.Report

	// AlreadyCompleted is true when the session had been finalized before
	// this call; in that case no provider call was made.
	AlreadyCompleted bool
}

// FinalizeSessionHandler handles FinalizeSessionCommand.
type FinalizeSessionHandler struct {
	sessions     session.Repository
	orchestrator *conversation.Orchestrator
	bus          shared.EventPublisher
	locks        *SessionLocks
	logger       *slog.Logger
}

// NewFinalizeSessionHandler creates a FinalizeSessionHandler.
func NewFinalizeSessionHandler(sessions session.Repository, orchestrator *conversation.Orchestrator, bus shared.EventPublisher, locks *SessionLocks, logger *slog.Logger) *FinalizeSessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FinalizeSessionHandler{
		sessions:     sessions,
		orchestrator: orchestrator,
		bus:          bus,
		locks:        locks,
		logger:       logger,
	}
}

// Handle finalizes the session.
//
// The completed flag is the fence: it is checked before any mutation, and the
// repository's Finalize re-checks it inside the same transaction that writes
// the report, so concurrent callers cannot double-invoke the provider or
// interleave report writes.
func (h *FinalizeSessionHandler) Handle(ctx context.Context, cmd FinalizeSessionCommand) (*FinalizeSessionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	unlock := h.locks.Lock(cmd.SessionID)
	defer unlock()

	sess, err := h.sessions.GetByID(ctx, cmd.SessionID)
	if err != nil {
		return nil, err
	}

	// Fast path: already completed, return the stored report untouched.
	if sess.Completed && sess.Report != nil {
		return &FinalizeSessionResult{Report: *sess.Report, AlreadyCompleted: true}, nil
	}

	report := h.buildReport(ctx, sess)

	outcome, err := h.sessions.Finalize(ctx, cmd.SessionID, report, time.Now().UTC())
	if err != nil {
		return nil, shared.WrapError("session", "Finalize", shared.ErrOperationFailed, "failed to persist report", err)
	}

	if outcome.AlreadyCompleted {
		// Lost a cross-process race; the stored report wins.
		return &FinalizeSessionResult{Report: outcome.Report, AlreadyCompleted: true}, nil
	}

	h.logger.Info("session finalized",
		"session_id", cmd.SessionID.String(),
		"learner_id", sess.LearnerID,
		"overall_score", outcome.Report.OverallScore,
		"degraded", outcome.Report.Degraded,
	)

	if h.bus != nil {
		event := shared.NewSessionCompletedEvent(
			sess.ID.String(), sess.LearnerID, sess.MentorID, sess.Topic,
			outcome.Report.OverallScore, sess.TurnCount(), outcome.Report.Degraded,
		)
		if err := h.bus.Publish(event); err != nil {
			h.logger.Warn("failed to publish session.completed", "session_id", cmd.SessionID.String(), "error", err)
		}
	}

	return &FinalizeSessionResult{Report: outcome.Report}, nil
}

// buildReport runs the whole-transcript analysis and extraction. Provider
// failures degrade the report rather than failing finalization.
func (h *FinalizeSessionHandler) buildReport(ctx context.Context, sess *session.Session) session.Report {
	analysisText, err := h.orchestrator.Analyze(ctx, sess)
	if err != nil {
		h.logger.Warn("analysis call failed, storing degraded report",
			"session_id", sess.ID.String(),
			"error", err,
		)
		report := session.DegradedReport("")
		report.Feedback = analysisUnavailableFeedback
		return report
	}

	report := analysis.ExtractReport(analysisText)
	if report.Degraded {
		h.logger.Warn("analysis text did not contain structured scores",
			"session_id", sess.ID.String(),
		)
	}
	return report
}
