// Package learner models the user directory the session pipeline depends on.
//
// Identity and authentication live in an external service; this package only
// carries what the core needs: display names for users and the set of mentors
// interested in a given learner.
package learner

import (
	"time"
)

// UserRole distinguishes learners from mentors in the directory.
type UserRole string

const (
	RoleLearner UserRole = "learner"
	RoleMentor  UserRole = "mentor"
)

// User is a directory entry for a learner or mentor.
type User struct {
	ID          string
	DisplayName string
	Role        UserRole

	// TelegramChatID is the delivery address for notifications. Zero means
	// the user cannot be reached over Telegram.
	TelegramChatID int64

	CreatedAt time.Time
}

// CanReceiveNotifications reports whether the user has a delivery address.
func (u *User) CanReceiveNotifications() bool {
	return u.TelegramChatID > 0
}

// MentorLink связывает ментора с учеником. Один ученик может иметь несколько
// заинтересованных менторов; пара (mentor, learner) уникальна.
type MentorLink struct {
	MentorID  string
	LearnerID string
	CreatedAt time.Time
}
