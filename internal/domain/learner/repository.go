package learner

import (
	"context"
)

// Directory resolves user identities for the session pipeline. It is the
// read-side contract over whatever identity service owns accounts.
type Directory interface {
	// GetUser returns the directory entry for a user id. Returns
	// shared.ErrLearnerNotFound for unknown ids.
	GetUser(ctx context.Context, id string) (*User, error)

	// MentorsForLearner returns the mentors interested in a learner. An
	// unknown learner yields an empty set, not an error: notification fanout
	// is best-effort and must not fail the triggering operation.
	MentorsForLearner(ctx context.Context, learnerID string) ([]*User, error)
}

// Repository is the full persistence contract for directory entries, used by
// seeding and administrative flows.
type Repository interface {
	Directory

	// Create persists a new directory entry.
	Create(ctx context.Context, u *User) error

	// LinkMentor records a mentor's interest in a learner. Linking the same
	// pair twice is a no-op.
	LinkMentor(ctx context.Context, mentorID, learnerID string) error
}
