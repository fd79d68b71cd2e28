// Package events carries learning activity: a persisted activity log, an
// in-process fan-out hub, and a websocket stream per student.
package events

import (
	"context"
	"log/slog"
	"time"
)

// Event types.
const (
	TypeContentSeen         = "content_seen"
	TypeTopicMastered       = "topic_mastered"
	TypeAttemptStarted      = "attempt_started"
	TypeAssessmentSubmitted = "assessment_submitted"
	TypePracticeStarted     = "practice_started"
	TypePracticeSubmitted   = "practice_submitted"
	TypeRemediationAssigned = "remediation_assigned"
	TypeTopicOpened         = "topic_temporarily_opened"
	TypeFeedbackPosted      = "feedback_posted"
)

// Event is a learning activity for one student.
type Event struct {
	StudentID string         `json:"student_id"`
	TopicID   string         `json:"topic_id,omitempty"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Publisher accepts events. Publishing never fails the caller.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

// Bus persists events through a Logger and fans them out through a Hub.
type Bus struct {
	logger Logger
	hub    *Hub
}

// NewBus creates a bus. A nil logger or hub is skipped.
func NewBus(logger Logger, hub *Hub) *Bus {
	return &Bus{logger: logger, hub: hub}
}

func (b *Bus) Publish(ctx context.Context, e Event) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if b.logger != nil {
		if err := b.logger.LogEvent(ctx, e); err != nil {
			slog.Warn("event log failed", "type", e.Type, "student_id", e.StudentID, "error", err)
		}
	}
	if b.hub != nil {
		b.hub.Publish(e)
	}
}
