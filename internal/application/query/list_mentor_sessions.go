// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"log/slog"

	"github.com/soyle-hub/soyle-practice-hub/internal/domain/session"
	"github.com/soyle-hub/soyle-practice-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST MENTOR SESSIONS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// SummaryCache is a read-through cache over mentor session listings. A cache
// failure is never surfaced: the query falls back to the repository.
type SummaryCache interface {
	GetMentorSessions(ctx context.Context, mentorID string) ([]session.Summary, bool, error)
	SetMentorSessions(ctx context.Context, mentorID string, summaries []session.Summary) error
}

// ListMentorSessionsQuery contains the query parameters.
type ListMentorSessionsQuery struct {
	// MentorID identifies the mentor whose visible sessions are listed.
	MentorID string
}

// Validate validates the query.
func (q ListMentorSessionsQuery) Validate() error {
	if q.MentorID == "" {
		return shared.NewDomainError("session", "ListForMentor", shared.ErrEmptyValue, "mentor id is required")
	}
	return nil
}

// ListMentorSessionsResult contains the listing.
type ListMentorSessionsResult struct {
	// Sessions are summaries ordered most-recent-first.
	Sessions []session.Summary `json:"sessions"`

	// Total is the number of sessions in the listing.
	Total int `json:"total"`
}

// ListMentorSessionsHandler handles ListMentorSessionsQuery.
type ListMentorSessionsHandler struct {
	sessions session.Repository
	cache    SummaryCache
	logger   *slog.Logger
}

// NewListMentorSessionsHandler creates a ListMentorSessionsHandler. The cache
// is optional.
func NewListMentorSessionsHandler(sessions session.Repository, cache SummaryCache, logger *slog.Logger) *ListMentorSessionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ListMentorSessionsHandler{sessions: sessions, cache: cache, logger: logger}
}

// Handle lists the sessions a mentor may see: sessions pinned to the mentor
// plus sessions of learners linked to them. An unknown mentor produces an
// empty listing, not an error.
func (h *ListMentorSessionsHandler) Handle(ctx context.Context, q ListMentorSessionsQuery) (*ListMentorSessionsResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	if h.cache != nil {
		if summaries, hit, err := h.cache.GetMentorSessions(ctx, q.MentorID); err != nil {
			h.logger.Warn("summary cache read failed", "mentor_id", q.MentorID, "error", err)
		} else if hit {
			return &ListMentorSessionsResult{Sessions: summaries, Total: len(summaries)}, nil
		}
	}

	summaries, err := h.sessions.ListForMentor(ctx, q.MentorID)
	if err != nil {
		return nil, shared.WrapError("session", "ListForMentor", shared.ErrOperationFailed, "failed to list sessions", err)
	}
	if summaries == nil {
		summaries = []session.Summary{}
	}

	if h.cache != nil {
		if err := h.cache.SetMentorSessions(ctx, q.MentorID, summaries); err != nil {
			h.logger.Warn("summary cache write failed", "mentor_id", q.MentorID, "error", err)
		}
	}

	return &ListMentorSessionsResult{Sessions: summaries, Total: len(summaries)}, nil
}
