// Package portal ties the stores together into the operations the HTTP API
// serves: learning paths, dashboards, content tracking, topic scheduling and
// teacher reports.
package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pathgen/page/internal/assessment"
	"github.com/pathgen/page/internal/curriculum"
	"github.com/pathgen/page/internal/events"
	"github.com/pathgen/page/internal/feedback"
	"github.com/pathgen/page/internal/progress"
	"github.com/pathgen/page/internal/schedule"
)

const defaultTempOpenDays = 3

// ErrInvalidInput is returned when a request is well-formed but its values
// are not acceptable.
var ErrInvalidInput = errors.New("invalid input")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Config holds dependencies for the portal service.
type Config struct {
	Topics       curriculum.Store
	Students     progress.Store
	Overrides    schedule.OverrideStore
	Assessments  *assessment.Service
	Feedback     feedback.Store
	Publisher    events.Publisher
	Now          func() time.Time // defaults to time.Now
	TempOpenDays int              // default 3
}

// Service implements the portal operations.
type Service struct {
	topics       curriculum.Store
	students     progress.Store
	overrides    schedule.OverrideStore
	assessments  *assessment.Service
	feedback     feedback.Store
	publisher    events.Publisher
	now          func() time.Time
	tempOpenDays int
}

// New creates a portal service. Missing stores default to in-memory ones.
func New(cfg Config) *Service {
	s := &Service{
		topics:       cfg.Topics,
		students:     cfg.Students,
		overrides:    cfg.Overrides,
		assessments:  cfg.Assessments,
		feedback:     cfg.Feedback,
		publisher:    cfg.Publisher,
		now:          cfg.Now,
		tempOpenDays: cfg.TempOpenDays,
	}
	if s.topics == nil {
		s.topics = curriculum.NewMemoryStore()
	}
	if s.students == nil {
		s.students = progress.NewMemoryStore()
	}
	if s.overrides == nil {
		s.overrides = schedule.NewMemoryOverrideStore()
	}
	if s.publisher == nil {
		s.publisher = events.Nop{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.assessments == nil {
		s.assessments = assessment.NewService(assessment.ServiceConfig{
			Students:  s.students,
			Publisher: s.publisher,
			Now:       s.now,
		})
	}
	if s.feedback == nil {
		s.feedback = feedback.NewMemoryStore()
	}
	if s.tempOpenDays <= 0 {
		s.tempOpenDays = defaultTempOpenDays
	}
	return s
}

// Now returns the server's current time.
func (s *Service) Now() time.Time {
	return s.now()
}

// Topics returns the topic store.
func (s *Service) Topics() curriculum.Store { return s.topics }

// Students returns the student store.
func (s *Service) Students() progress.Store { return s.students }

// Assessments returns the assessment service.
func (s *Service) Assessments() *assessment.Service { return s.assessments }

// PutTopic validates and upserts a topic. Writes that would close a
// prerequisite cycle fail with curriculum.ErrCycle.
func (s *Service) PutTopic(ctx context.Context, t curriculum.Topic) (curriculum.Topic, error) {
	t.Normalize()
	if t.ID == "" {
		return curriculum.Topic{}, invalid("topic id is required")
	}
	if err := checkWindow(t.OpenAt, t.CloseAt); err != nil {
		return curriculum.Topic{}, err
	}
	return s.topics.PutTopic(ctx, t)
}

// ScheduleUpdate changes a topic's schedule. Nil fields are left as they are.
type ScheduleUpdate struct {
	OpenAt     *string `json:"open_at"`
	CloseAt    *string `json:"close_at"`
	ManualLock *bool   `json:"manual_lock"`
}

// UpdateSchedule applies u to the topic.
func (s *Service) UpdateSchedule(ctx context.Context, topicID string, u ScheduleUpdate) (curriculum.Topic, error) {
	t, err := s.topics.GetTopic(ctx, topicID)
	if err != nil {
		return curriculum.Topic{}, err
	}
	if u.OpenAt != nil {
		t.OpenAt = *u.OpenAt
	}
	if u.CloseAt != nil {
		t.CloseAt = *u.CloseAt
	}
	if u.ManualLock != nil {
		t.ManualLock = *u.ManualLock
	}
	return s.PutTopic(ctx, t)
}

func checkWindow(openAt, closeAt string) error {
	open, okOpen := schedule.ParseTimestamp(openAt)
	if openAt != "" && !okOpen {
		return invalid("open_at %q is not a timestamp", openAt)
	}
	closing, okClose := schedule.ParseTimestamp(closeAt)
	if closeAt != "" && !okClose {
		return invalid("close_at %q is not a timestamp", closeAt)
	}
	if okOpen && okClose && !open.Before(closing) {
		return invalid("open_at must be before close_at")
	}
	return nil
}

// DeleteTopic removes a topic with its contents, overrides, assessment,
// practice bank and every student's state for it.
func (s *Service) DeleteTopic(ctx context.Context, topicID string) error {
	if err := s.topics.DeleteTopic(ctx, topicID); err != nil {
		return err
	}
	if err := s.overrides.DeleteTopicOverrides(ctx, topicID); err != nil {
		return fmt.Errorf("delete overrides: %w", err)
	}
	if err := s.assessments.Store().DeleteTopic(ctx, topicID); err != nil {
		return fmt.Errorf("delete assessment: %w", err)
	}
	if err := s.students.ForgetTopic(ctx, topicID); err != nil {
		return fmt.Errorf("forget topic: %w", err)
	}
	slog.Info("topic deleted", "topic_id", topicID)
	return nil
}

// Graph builds the prerequisite graph of all stored topics.
func (s *Service) Graph(ctx context.Context) (*curriculum.Graph, error) {
	topics, err := s.topics.ListTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	return curriculum.BuildGraph(topics), nil
}

// Recommend suggests up to limit topics for the student to study next.
func (s *Service) Recommend(ctx context.Context, studentID string, limit int) ([]string, error) {
	g, err := s.Graph(ctx)
	if err != nil {
		return nil, err
	}
	var mastered []string
	st, err := s.students.GetStudent(ctx, studentID)
	switch {
	case err == nil:
		mastered = st.Mastered
	case !errors.Is(err, progress.ErrStudentNotFound):
		return nil, fmt.Errorf("load student: %w", err)
	}
	recs, err := g.RecommendNext(mastered, limit)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []string{}
	}
	return recs, nil
}

// SaveStudent upserts a student's profile fields.
func (s *Service) SaveStudent(ctx context.Context, st progress.Student) (progress.Student, error) {
	if st.ID == "" {
		return progress.Student{}, invalid("student id is required")
	}
	if st.Score < 0 || st.Final < 0 {
		return progress.Student{}, invalid("score and final must not be negative")
	}
	return s.students.PutStudent(ctx, st)
}

// PostFeedback stores a message and notifies the student.
func (s *Service) PostFeedback(ctx context.Context, f feedback.Feedback) (feedback.Feedback, error) {
	if err := f.Normalize(); err != nil {
		return feedback.Feedback{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	saved, err := s.feedback.Add(ctx, f)
	if err != nil {
		return feedback.Feedback{}, fmt.Errorf("save feedback: %w", err)
	}
	s.publisher.Publish(ctx, events.Event{
		StudentID: saved.StudentID,
		TopicID:   saved.TopicID,
		Type:      events.TypeFeedbackPosted,
		Data:      map[string]any{"id": saved.ID, "from": saved.From},
	})
	return saved, nil
}

// ListFeedback returns messages newest first. An empty studentID lists all.
func (s *Service) ListFeedback(ctx context.Context, studentID string) ([]feedback.Feedback, error) {
	return s.feedback.List(ctx, studentID)
}
