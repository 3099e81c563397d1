package session

import (
	"context"
	"time"
)

// FinalizeOutcome is the result of the atomic finalize check-and-set.
type FinalizeOutcome struct {
	// Report is the report now stored for the session. When the session was
	// already completed this is the previously stored report, untouched.
	Report Report

	// AlreadyCompleted is true when another finalize won the race and the
	// provided report was discarded.
	AlreadyCompleted bool
}

// Repository is the persistence contract for sessions and their transcripts.
// It exclusively owns persisted Session/Turn records; callers receive copies
// and never hold cross-call mutable references.
type Repository interface {
	// Create persists a new active session with an empty transcript.
	Create(ctx context.Context, s *Session) error

	// GetByID loads a session including its full transcript in conversation
	// order. Returns shared.ErrSessionNotFound for unknown ids.
	GetByID(ctx context.Context, id ID) (*Session, error)

	// AppendExchange appends one user turn and its paired assistant turn as a
	// single atomic update: either both turns are stored or neither is. It
	// fails with shared.ErrSessionCompleted if the session is no longer
	// active, and shared.ErrSessionNotFound for unknown ids.
	AppendExchange(ctx context.Context, id ID, userTurn, assistantTurn Turn) error

	// Finalize performs the atomic "read completed flag, write report + flag"
	// transition. The check and the set happen under the same transaction so
	// concurrent finalize attempts cannot both win; the loser receives the
	// stored report with AlreadyCompleted set.
	Finalize(ctx context.Context, id ID, report Report, endedAt time.Time) (*FinalizeOutcome, error)

	// AttachAudio stores the raw audio blob for a session. Independent of the
	// conversation transcript; callers do not hold the session lock.
	AttachAudio(ctx context.Context, id ID, data []byte, filename string) error

	// GetAudio returns the stored audio blob and filename, or
	// shared.ErrAudioNotFound when none was attached.
	GetAudio(ctx context.Context, id ID) ([]byte, string, error)

	// ListForMentor returns summaries of sessions visible to a mentor: those
	// pinned to the mentor plus sessions of learners linked to them.
	ListForMentor(ctx context.Context, mentorID string) ([]Summary, error)
}
