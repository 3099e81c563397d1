// Package session содержит доменную модель разговорной практики Soyle Hub.
// Сессия — это многоходовой диалог ученика с генеративной моделью,
// который завершается структурированным отчётом об оценках.
package session

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soyle-hub/soyle-practice-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// ID представляет уникальный идентификатор сессии.
type ID string

// IsValid проверяет, что ID не пустой.
func (id ID) IsValid() bool {
	return len(id) > 0
}

// String возвращает строковое представление ID.
func (id ID) String() string {
	return string(id)
}

// NewID generates a new session ID.
func NewID() ID {
	return ID(uuid.New().String())
}

// Kind определяет тип практической сессии.
type Kind string

const (
	// KindAIOnly - сессия только с генеративной моделью.
	KindAIOnly Kind = "ai-only"

	// KindWithMentor - сессия, закреплённая за ментором.
	KindWithMentor Kind = "with-mentor"
)

// IsValid проверяет, что тип сессии корректен.
func (k Kind) IsValid() bool {
	switch k {
	case KindAIOnly, KindWithMentor:
		return true
	default:
		return false
	}
}

// Role identifies which side of the conversation produced a turn.
type Role string

const (
	// RoleUser - реплика ученика.
	RoleUser Role = "user"

	// RoleAssistant - реплика модели.
	RoleAssistant Role = "assistant"
)

// IsValid проверяет, что роль корректна.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ══════════════════════════════════════════════════════════════════════════════
// TURN
// ══════════════════════════════════════════════════════════════════════════════

// Turn is a single utterance in a session transcript. The transcript is
// append-only; Seq reflects insertion order, which is the conversation order.
type Turn struct {
	Role      Role
	Content   string
	CreatedAt time.Time
	Seq       int
}

// NewUserTurn creates a learner turn.
func NewUserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content, CreatedAt: time.Now().UTC()}
}

// NewAssistantTurn creates a model turn.
func NewAssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content, CreatedAt: time.Now().UTC()}
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION
// ══════════════════════════════════════════════════════════════════════════════

// Session is the aggregate root of a speaking-practice conversation.
//
// Lifecycle: a session is created active and incomplete; turns may only be
// appended while it is active; Completed is a one-way flag and once it is set
// the report is immutable.
type Session struct {
	ID        ID
	LearnerID string
	MentorID  string // optional; set for with-mentor sessions
	Kind      Kind
	Topic     string
	Scenario  string

	StartedAt time.Time
	EndedAt   *time.Time
	Completed bool

	Transcript []Turn

	Report *Report // populated only at completion

	AudioFilename string // set when an audio blob is attached
}

// New creates a new active session for a learner.
func New(learnerID, mentorID string, kind Kind, topic, scenario string) (*Session, error) {
	if strings.TrimSpace(learnerID) == "" {
		return nil, shared.ErrEmptyLearnerID
	}
	if kind == "" {
		kind = KindAIOnly
		if mentorID != "" {
			kind = KindWithMentor
		}
	}
	if !kind.IsValid() {
		return nil, shared.NewDomainError("session", "Start", shared.ErrInvalidInput, "unknown session kind: "+string(kind))
	}

	return &Session{
		ID:         NewID(),
		LearnerID:  learnerID,
		MentorID:   mentorID,
		Kind:       kind,
		Topic:      topic,
		Scenario:   scenario,
		StartedAt:  time.Now().UTC(),
		Completed:  false,
		Transcript: []Turn{},
	}, nil
}

// IsActive reports whether turns may still be appended.
func (s *Session) IsActive() bool {
	return !s.Completed
}

// TurnCount returns the number of turns in the transcript.
func (s *Session) TurnCount() int {
	return len(s.Transcript)
}

// LastTurns returns a read-time view of at most n trailing turns. The stored
// transcript is never truncated; this is only a context window for model calls.
func (s *Session) LastTurns(n int) []Turn {
	if n <= 0 || len(s.Transcript) <= n {
		return s.Transcript
	}
	return s.Transcript[len(s.Transcript)-n:]
}

// Complete transitions the session to its terminal state with the given
// report. It is a domain-level guard only: the persistent check-and-set of
// the completed flag is the repository's responsibility.
func (s *Session) Complete(report Report, endedAt time.Time) error {
	if s.Completed {
		return shared.ErrSessionCompleted
	}
	r := report
	s.Report = &r
	s.EndedAt = &endedAt
	s.Completed = true
	return nil
}

// Duration returns the session length, or the elapsed time so far for an
// active session.
func (s *Session) Duration() time.Duration {
	if s.EndedAt != nil {
		return s.EndedAt.Sub(s.StartedAt)
	}
	return time.Since(s.StartedAt)
}

// ══════════════════════════════════════════════════════════════════════════════
// SUMMARY (read-side projection)
// ══════════════════════════════════════════════════════════════════════════════

// Summary is a read-only projection of a session for mentor listings.
type Summary struct {
	ID           ID         `json:"id"`
	LearnerID    string     `json:"learner_id"`
	LearnerName  string     `json:"learner_name,omitempty"`
	Kind         Kind       `json:"kind"`
	Topic        string     `json:"topic,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	Completed    bool       `json:"completed"`
	TurnCount    int        `json:"turn_count"`
	OverallScore int        `json:"overall_score"`
}
