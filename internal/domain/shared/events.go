// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven architecture.
// Each event represents something significant that happened in the domain.
const (
	// Session lifecycle events
	EventSessionStarted   EventType = "session.started"
	EventSessionCompleted EventType = "session.completed"

	// Notification events
	EventNotificationSent   EventType = "notification.sent"
	EventNotificationFailed EventType = "notification.failed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
	Version     int       `json:"version"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Session Events
// ═══════════════════════════════════════════════════════════════════════════

// SessionStartedEvent is emitted when a learner starts a practice session.
type SessionStartedEvent struct {
	BaseEvent
	SessionID string `json:"session_id"`
	LearnerID string `json:"learner_id"`
	MentorID  string `json:"mentor_id,omitempty"`
	Kind      string `json:"kind"`
	Topic     string `json:"topic,omitempty"`
}

// Payload implements Event interface.
func (e SessionStartedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"session_id": e.SessionID,
		"learner_id": e.LearnerID,
		"mentor_id":  e.MentorID,
		"kind":       e.Kind,
		"topic":      e.Topic,
	}
}

// NewSessionStartedEvent creates a new SessionStartedEvent.
func NewSessionStartedEvent(sessionID, learnerID, mentorID, kind, topic string) SessionStartedEvent {
	return SessionStartedEvent{
		BaseEvent: NewBaseEvent(EventSessionStarted, sessionID),
		SessionID: sessionID,
		LearnerID: learnerID,
		MentorID:  mentorID,
		Kind:      kind,
		Topic:     topic,
	}
}

// SessionCompletedEvent is emitted when a practice session is finalized and
// its score report has been persisted.
type SessionCompletedEvent struct {
	BaseEvent
	SessionID    string `json:"session_id"`
	LearnerID    string `json:"learner_id"`
	MentorID     string `json:"mentor_id,omitempty"`
	Topic        string `json:"topic,omitempty"`
	OverallScore int    `json:"overall_score"`
	TurnCount    int    `json:"turn_count"`
	Degraded     bool   `json:"degraded"`
}

// Payload implements Event interface.
func (e SessionCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"session_id":    e.SessionID,
		"learner_id":    e.LearnerID,
		"mentor_id":     e.MentorID,
		"topic":         e.Topic,
		"overall_score": e.OverallScore,
		"turn_count":    e.TurnCount,
		"degraded":      e.Degraded,
	}
}

// NewSessionCompletedEvent creates a new SessionCompletedEvent.
func NewSessionCompletedEvent(sessionID, learnerID, mentorID, topic string, overallScore, turnCount int, degraded bool) SessionCompletedEvent {
	return SessionCompletedEvent{
		BaseEvent:    NewBaseEvent(EventSessionCompleted, sessionID),
		SessionID:    sessionID,
		LearnerID:    learnerID,
		MentorID:     mentorID,
		Topic:        topic,
		OverallScore: overallScore,
		TurnCount:    turnCount,
		Degraded:     degraded,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Bus Contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
