// Package eventhandler wires domain events to their side effects.
//
// Fanout is strictly best-effort: a delivery failure for one mentor is logged
// and never affects other recipients or the operation that emitted the event.
package eventhandler

import (
	"context"
	"log/slog"
	"time"

	"github.com/soyle-hub/soyle-practice-hub/internal/domain/learner"
	"github.com/soyle-hub/soyle-practice-hub/internal/domain/notification"
	"github.com/soyle-hub/soyle-practice-hub/internal/domain/shared"
)

// deliverTimeout bounds a single recipient delivery so one slow channel call
// cannot stall the rest of the fanout.
const deliverTimeout = 10 * time.Second

// SessionFanout subscribes to session lifecycle events and notifies the
// mentors interested in the learner.
type SessionFanout struct {
	directory learner.Directory
	channel   notification.Channel
	logger    *slog.Logger
}

// NewSessionFanout creates a SessionFanout.
func NewSessionFanout(directory learner.Directory, channel notification.Channel, logger *slog.Logger) *SessionFanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionFanout{directory: directory, channel: channel, logger: logger}
}

// Register subscribes the fanout to the session lifecycle events.
func (f *SessionFanout) Register(bus shared.EventSubscriber) error {
	if err := bus.Subscribe(shared.EventSessionStarted, f.HandleSessionStarted); err != nil {
		return err
	}
	return bus.Subscribe(shared.EventSessionCompleted, f.HandleSessionCompleted)
}

// HandleSessionStarted notifies mentors that a learner began practicing.
func (f *SessionFanout) HandleSessionStarted(event shared.Event) error {
	started, ok := event.(shared.SessionStartedEvent)
	if !ok {
		f.logger.Error("unexpected event payload", "type", string(event.EventType()))
		return nil
	}

	payload := notification.Payload{
		Kind:       notification.KindSessionStarted,
		SessionID:  started.SessionID,
		LearnerID:  started.LearnerID,
		Topic:      started.Topic,
		OccurredAt: event.OccurredAt(),
	}
	f.fanout(started.LearnerID, started.MentorID, payload)
	return nil
}

// HandleSessionCompleted notifies mentors that a report is ready.
func (f *SessionFanout) HandleSessionCompleted(event shared.Event) error {
	completed, ok := event.(shared.SessionCompletedEvent)
	if !ok {
		f.logger.Error("unexpected event payload", "type", string(event.EventType()))
		return nil
	}

	payload := notification.Payload{
		Kind:         notification.KindSessionCompleted,
		SessionID:    completed.SessionID,
		LearnerID:    completed.LearnerID,
		Topic:        completed.Topic,
		OverallScore: completed.OverallScore,
		Degraded:     completed.Degraded,
		OccurredAt:   event.OccurredAt(),
	}
	f.fanout(completed.LearnerID, completed.MentorID, payload)
	return nil
}

// fanout resolves recipients and delivers to each in isolation.
func (f *SessionFanout) fanout(learnerID, pinnedMentorID string, payload notification.Payload) {
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	recipients := f.resolveRecipients(ctx, learnerID, pinnedMentorID)
	if len(recipients) == 0 {
		return
	}

	if entry, err := f.directory.GetUser(ctx, learnerID); err == nil {
		payload.LearnerName = entry.DisplayName
	}

	for _, recipient := range recipients {
		if err := f.channel.Deliver(ctx, recipient, payload); err != nil {
			f.logger.Warn("notification delivery failed",
				"session_id", payload.SessionID,
				"recipient", recipient.UserID,
				"kind", string(payload.Kind),
				"error", err,
			)
			continue
		}
		f.logger.Debug("notification delivered",
			"session_id", payload.SessionID,
			"recipient", recipient.UserID,
			"kind", string(payload.Kind),
		)
	}
}

// resolveRecipients collects the linked mentors plus the pinned mentor,
// deduplicated, dropping anyone without a delivery address. Resolution
// failures shrink the set instead of failing the fanout.
func (f *SessionFanout) resolveRecipients(ctx context.Context, learnerID, pinnedMentorID string) []notification.Recipient {
	seen := make(map[string]struct{})
	var recipients []notification.Recipient

	add := func(u *learner.User) {
		if u == nil || !u.CanReceiveNotifications() {
			return
		}
		if _, dup := seen[u.ID]; dup {
			return
		}
		seen[u.ID] = struct{}{}
		recipients = append(recipients, notification.Recipient{
			UserID:         u.ID,
			DisplayName:    u.DisplayName,
			TelegramChatID: u.TelegramChatID,
		})
	}

	mentors, err := f.directory.MentorsForLearner(ctx, learnerID)
	if err != nil {
		f.logger.Warn("mentor resolution failed", "learner_id", learnerID, "error", err)
	}
	for _, mentor := range mentors {
		add(mentor)
	}

	if pinnedMentorID != "" {
		pinned, err := f.directory.GetUser(ctx, pinnedMentorID)
		if err != nil {
			f.logger.Warn("pinned mentor resolution failed", "mentor_id", pinnedMentorID, "error", err)
		} else {
			add(pinned)
		}
	}

	return recipients
}
