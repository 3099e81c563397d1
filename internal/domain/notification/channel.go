// Package notification содержит доменную модель уведомлений Soyle Hub.
// Уведомления информируют менторов о жизненном цикле сессий их учеников.
// Философия: доставка строго best-effort — сбой у одного получателя никогда
// не влияет ни на других получателей, ни на вызвавшую операцию.
package notification

import (
	"context"
	"time"
)

// Kind определяет тип уведомления о сессии.
type Kind string

const (
	// KindSessionStarted - ученик начал разговорную сессию.
	KindSessionStarted Kind = "session_started"

	// KindSessionCompleted - сессия завершена, отчёт готов.
	KindSessionCompleted Kind = "session_completed"
)

// IsValid проверяет, что тип уведомления корректен.
func (k Kind) IsValid() bool {
	return k == KindSessionStarted || k == KindSessionCompleted
}

// Recipient is a resolved delivery target.
type Recipient struct {
	UserID         string
	DisplayName    string
	TelegramChatID int64
}

// Payload is one session-lifecycle event rendered for delivery.
type Payload struct {
	Kind        Kind
	SessionID   string
	LearnerID   string
	LearnerName string
	Topic       string

	// OverallScore is set only for session_completed payloads.
	OverallScore int
	Degraded     bool

	OccurredAt time.Time
}

// Channel delivers a payload to a single recipient. Implementations must not
// retry forever; a failed delivery is returned as an error and the caller
// decides what to log. Idempotency is not required — duplicates are
// acceptable, isolation between recipients is the only hard guarantee.
type Channel interface {
	Deliver(ctx context.Context, recipient Recipient, payload Payload) error
}
