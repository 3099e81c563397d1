package postgres

import (
	"context"
	"fmt"

	"github.com/soyle-hub/soyle-practice-hub/internal/domain/learner"
	"github.com/soyle-hub/soyle-practice-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEARNER REPOSITORY (user directory)
// ══════════════════════════════════════════════════════════════════════════════

// LearnerRepository implements learner.Repository on PostgreSQL.
type LearnerRepository struct {
	conn *Connection
}

// NewLearnerRepository creates a LearnerRepository.
func NewLearnerRepository(conn *Connection) *LearnerRepository {
	return &LearnerRepository{conn: conn}
}

// GetUser returns the directory entry for a user id.
func (r *LearnerRepository) GetUser(ctx context.Context, id string) (*learner.User, error) {
	query := `
		SELECT id, display_name, role, telegram_chat_id, created_at
		FROM users
		WHERE id = $1
	`

	var u learner.User
	var role string
	err := r.conn.QueryRow(ctx, query, id).Scan(&u.ID, &u.DisplayName, &role, &u.TelegramChatID, &u.CreatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrLearnerNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	u.Role = learner.UserRole(role)
	return &u, nil
}

// MentorsForLearner returns the mentors linked to a learner. An unknown
// learner yields an empty set.
func (r *LearnerRepository) MentorsForLearner(ctx context.Context, learnerID string) ([]*learner.User, error) {
	query := `
		SELECT u.id, u.display_name, u.role, u.telegram_chat_id, u.created_at
		FROM mentor_links ml
		JOIN users u ON u.id = ml.mentor_id
		WHERE ml.learner_id = $1
		ORDER BY ml.created_at
	`

	rows, err := r.conn.Query(ctx, query, learnerID)
	if err != nil {
		return nil, fmt.Errorf("select mentors: %w", err)
	}
	defer rows.Close()

	var mentors []*learner.User
	for rows.Next() {
		var u learner.User
		var role string
		if err := rows.Scan(&u.ID, &u.DisplayName, &role, &u.TelegramChatID, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan mentor: %w", err)
		}
		u.Role = learner.UserRole(role)
		mentors = append(mentors, &u)
	}
	return mentors, rows.Err()
}

// Create persists a new directory entry.
func (r *LearnerRepository) Create(ctx context.Context, u *learner.User) error {
	query := `
		INSERT INTO users (id, display_name, role, telegram_chat_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.conn.Exec(ctx, query, u.ID, u.DisplayName, string(u.Role), u.TelegramChatID, u.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.WrapError("learner", "Create", shared.ErrAlreadyExists, "user already exists", err)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// LinkMentor records a mentor's interest in a learner. Linking the same pair
// twice is a no-op.
func (r *LearnerRepository) LinkMentor(ctx context.Context, mentorID, learnerID string) error {
	query := `
		INSERT INTO mentor_links (mentor_id, learner_id)
		VALUES ($1, $2)
		ON CONFLICT (mentor_id, learner_id) DO NOTHING
	`
	_, err := r.conn.Exec(ctx, query, mentorID, learnerID)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.WrapError("learner", "LinkMentor", shared.ErrNotFound, "mentor or learner does not exist", err)
		}
		return fmt.Errorf("insert mentor link: %w", err)
	}
	return nil
}
