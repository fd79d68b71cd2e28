package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/pathgen/page/internal/curriculum"
	"github.com/pathgen/page/internal/events"
	"github.com/pathgen/page/internal/progress"
)

// Contents lists a topic's contents. When studentID is set and that student
// is pinned to an attempt on the topic, the request fails with
// assessment.ErrPinned.
func (s *Service) Contents(ctx context.Context, topicID, studentID string) ([]curriculum.Content, error) {
	if err := s.assessments.Pinned(ctx, studentID, topicID); err != nil {
		return nil, err
	}
	return s.topics.ListContents(ctx, topicID)
}

// SaveContent validates and upserts a content item.
func (s *Service) SaveContent(ctx context.Context, c curriculum.Content) (curriculum.Content, error) {
	if err := c.Normalize(); err != nil {
		return curriculum.Content{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.topics.PutContent(ctx, c)
}

// SeenResult is the student's state after viewing content.
type SeenResult struct {
	ContentSeen []string `json:"content_seen"`
	Mastered    []string `json:"mastered"`
	// MasteredTopic is set when this view completed a topic.
	MasteredTopic string `json:"mastered_topic,omitempty"`
}

// MarkContentSeen records that the student viewed a content item. Once every
// content of a topic is seen the topic becomes mastered. Unknown content ids
// are still recorded.
func (s *Service) MarkContentSeen(ctx context.Context, studentID, contentID string) (SeenResult, error) {
	if contentID == "" {
		return SeenResult{}, invalid("content_id is required")
	}
	if _, err := s.students.GetStudent(ctx, studentID); err != nil {
		return SeenResult{}, err
	}

	var topicContents []curriculum.Content
	c, err := s.topics.GetContent(ctx, contentID)
	switch {
	case err == nil:
		if err := s.assessments.Pinned(ctx, studentID, c.TopicID); err != nil {
			return SeenResult{}, err
		}
		topicContents, err = s.topics.ListContents(ctx, c.TopicID)
		if err != nil {
			return SeenResult{}, fmt.Errorf("list contents: %w", err)
		}
	case !errors.Is(err, curriculum.ErrContentNotFound):
		return SeenResult{}, fmt.Errorf("load content: %w", err)
	}

	var newlySeen, newlyMastered bool
	st, err := s.students.UpdateStudent(ctx, studentID, func(st *progress.Student) error {
		newlySeen = st.MarkSeen(contentID)
		if len(topicContents) == 0 || st.HasMastered(c.TopicID) {
			return nil
		}
		for _, tc := range topicContents {
			if !st.HasSeen(tc.ID) {
				return nil
			}
		}
		newlyMastered = st.AddMastered(c.TopicID)
		return nil
	})
	if err != nil {
		return SeenResult{}, fmt.Errorf("update student: %w", err)
	}

	res := SeenResult{ContentSeen: st.ContentSeen, Mastered: st.Mastered}
	if newlySeen {
		s.publisher.Publish(ctx, events.Event{
			StudentID: studentID,
			TopicID:   c.TopicID,
			Type:      events.TypeContentSeen,
			Data:      map[string]any{"content_id": contentID},
		})
	}
	if newlyMastered {
		res.MasteredTopic = c.TopicID
		slog.Info("topic mastered from content", "student_id", studentID, "topic_id", c.TopicID)
		s.publisher.Publish(ctx, events.Event{
			StudentID: studentID,
			TopicID:   c.TopicID,
			Type:      events.TypeTopicMastered,
			Data:      map[string]any{"source": "content"},
		})
	}
	return res, nil
}

// MarkMastered adds a topic to the student's mastered list.
func (s *Service) MarkMastered(ctx context.Context, studentID, topicID string) (progress.Student, error) {
	if studentID == "" || topicID == "" {
		return progress.Student{}, invalid("student id and topic_id are required")
	}
	if _, err := s.topics.GetTopic(ctx, topicID); err != nil {
		return progress.Student{}, err
	}
	var changed bool
	st, err := s.students.UpdateStudent(ctx, studentID, func(st *progress.Student) error {
		changed = st.AddMastered(topicID)
		return nil
	})
	if err != nil {
		return progress.Student{}, fmt.Errorf("update student: %w", err)
	}
	if changed {
		s.publisher.Publish(ctx, events.Event{
			StudentID: studentID,
			TopicID:   topicID,
			Type:      events.TypeTopicMastered,
			Data:      map[string]any{"source": "teacher"},
		})
	}
	return st, nil
}

// BulkUpload applies a scores CSV. Rejected rows are reported alongside the
// updated student ids.
func (s *Service) BulkUpload(ctx context.Context, r io.Reader) (progress.BulkResult, error) {
	rows, rowErrs, err := progress.ParseScoresCSV(r)
	if err != nil {
		return progress.BulkResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	res, err := progress.ApplyScores(ctx, s.students, rows)
	if err != nil {
		return res, err
	}
	res.Errors = append(res.Errors, rowErrs...)
	slog.Info("bulk upload applied", "rows", len(rows), "students", len(res.Updated), "rejected", len(rowErrs))
	return res, nil
}
