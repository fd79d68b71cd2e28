package portal

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pathgen/page/internal/curriculum"
	"github.com/pathgen/page/internal/events"
	"github.com/pathgen/page/internal/progress"
	"github.com/pathgen/page/internal/schedule"
	"github.com/pathgen/page/internal/status"
)

// PathTopic is the short topic form used in a learning path.
type PathTopic struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Cluster       string   `json:"cluster"`
	Prerequisites []string `json:"prerequisites"`
}

func pathTopic(t curriculum.Topic) PathTopic {
	cluster := t.Cluster
	if cluster == "" {
		cluster = "Uncategorized"
	}
	prereqs := t.Prerequisites
	if prereqs == nil {
		prereqs = []string{}
	}
	return PathTopic{
		ID:            t.ID,
		Title:         t.Name,
		Description:   t.Description,
		Cluster:       cluster,
		Prerequisites: prereqs,
	}
}

// Path is a student's learning path.
type Path struct {
	StudentID      string      `json:"student_id"`
	MasteredIDs    []string    `json:"mastered_ids"`
	Mastered       []PathTopic `json:"mastered"`
	RecommendedIDs []string    `json:"recommended_ids"`
	Recommended    []PathTopic `json:"recommended"`
	InProgress     []string    `json:"inProgress"`
	Upcoming       []string    `json:"upcoming"`
}

// MasteredIDs returns the student's mastered list. When it is empty, topics
// whose recorded score reaches half of their final count as mastered.
func MasteredIDs(st progress.Student) []string {
	if len(st.Mastered) > 0 {
		return append([]string{}, st.Mastered...)
	}
	out := []string{}
	for topicID, score := range st.Scores {
		final, ok := st.Finals[topicID]
		if !ok {
			final = st.Final
		}
		if final > 0 && score >= final*0.5 {
			out = append(out, topicID)
		}
	}
	sort.Strings(out)
	return out
}

// Path computes the student's learning path. The recommended set holds the
// unmastered topics with at least one prerequisite, all mastered.
func (s *Service) Path(ctx context.Context, studentID string) (Path, error) {
	st, err := s.students.GetStudent(ctx, studentID)
	if err != nil {
		return Path{}, err
	}
	topics, err := s.topics.ListTopics(ctx)
	if err != nil {
		return Path{}, fmt.Errorf("list topics: %w", err)
	}
	return buildPath(st, topics), nil
}

func buildPath(st progress.Student, topics []curriculum.Topic) Path {
	byID := make(map[string]curriculum.Topic, len(topics))
	for _, t := range topics {
		byID[t.ID] = t
	}

	p := Path{
		StudentID:      st.ID,
		MasteredIDs:    MasteredIDs(st),
		Mastered:       []PathTopic{},
		RecommendedIDs: []string{},
		Recommended:    []PathTopic{},
		InProgress:     append([]string{}, st.InProgress...),
		Upcoming:       append([]string{}, st.Upcoming...),
	}
	for _, id := range p.MasteredIDs {
		if t, ok := byID[id]; ok {
			p.Mastered = append(p.Mastered, pathTopic(t))
		}
	}
	recommended := status.ServerRecommended(topics, status.NewSet(p.MasteredIDs...))
	for _, t := range topics {
		if recommended[t.ID] {
			p.RecommendedIDs = append(p.RecommendedIDs, t.ID)
			p.Recommended = append(p.Recommended, pathTopic(t))
		}
	}
	return p
}

// Dashboard resolves every topic for the student at server time.
func (s *Service) Dashboard(ctx context.Context, studentID string) (status.Board, error) {
	st, err := s.students.GetStudent(ctx, studentID)
	if err != nil {
		return status.Board{}, err
	}
	topics, err := s.topics.ListTopics(ctx)
	if err != nil {
		return status.Board{}, fmt.Errorf("list topics: %w", err)
	}
	contents, err := s.topics.ListContents(ctx, "")
	if err != nil {
		return status.Board{}, fmt.Errorf("list contents: %w", err)
	}
	overrides, err := s.overrides.ListOverrides(ctx, studentID)
	if err != nil {
		return status.Board{}, fmt.Errorf("list overrides: %w", err)
	}

	st.Mastered = MasteredIDs(st)
	path := buildPath(st, topics)
	return status.BuildBoard(status.View{
		Topics:      topics,
		Contents:    contents,
		Student:     st,
		Overrides:   overrides,
		Recommended: path.RecommendedIDs,
	}, s.now()), nil
}

// OverrideList is a student's overrides stamped with the server clock, so
// clients can measure their skew.
type OverrideList struct {
	ServerTimeUTC string                    `json:"server_time_utc"`
	Overrides     []schedule.OverrideRecord `json:"overrides"`
}

// Overrides returns the student's temporary-open overrides.
func (s *Service) Overrides(ctx context.Context, studentID string) (OverrideList, error) {
	list, err := s.overrides.ListOverrides(ctx, studentID)
	if err != nil {
		return OverrideList{}, fmt.Errorf("list overrides: %w", err)
	}
	out := OverrideList{Overrides: make([]schedule.OverrideRecord, 0, len(list))}
	for _, o := range list {
		rec := schedule.OverrideRecord{StudentID: o.StudentID, TopicID: o.TopicID, CreatedBy: o.CreatedBy}
		if o.TempOpenUntil != nil {
			rec.TempOpenUntil = o.TempOpenUntil.UTC().Format(time.RFC3339Nano)
		}
		out.Overrides = append(out.Overrides, rec)
	}
	// Stamped after the read.
	out.ServerTimeUTC = s.now().UTC().Format(time.RFC3339Nano)
	return out, nil
}

// OpenRequest opens a topic for one student. Until wins over Days; with
// neither the default window applies.
type OpenRequest struct {
	TopicID   string
	StudentID string
	Until     time.Time
	Days      int
	CreatedBy string
}

func (s *Service) openUntil(until time.Time, days int) (time.Time, error) {
	now := s.now()
	if until.IsZero() {
		if days < 0 {
			return time.Time{}, invalid("days must be positive")
		}
		if days == 0 {
			days = s.tempOpenDays
		}
		until = now.AddDate(0, 0, days)
	}
	if !until.After(now) {
		return time.Time{}, invalid("until must be in the future")
	}
	return until, nil
}

// OpenTopic temporarily opens a topic for one student.
func (s *Service) OpenTopic(ctx context.Context, req OpenRequest) (schedule.Override, error) {
	if req.StudentID == "" {
		return schedule.Override{}, invalid("student_id is required")
	}
	if _, err := s.topics.GetTopic(ctx, req.TopicID); err != nil {
		return schedule.Override{}, err
	}
	until, err := s.openUntil(req.Until, req.Days)
	if err != nil {
		return schedule.Override{}, err
	}
	return s.open(ctx, req.TopicID, req.StudentID, until, req.CreatedBy)
}

func (s *Service) open(ctx context.Context, topicID, studentID string, until time.Time, createdBy string) (schedule.Override, error) {
	o := schedule.Override{
		StudentID:     studentID,
		TopicID:       topicID,
		TempOpenUntil: &until,
		CreatedBy:     createdBy,
		CreatedAt:     s.now(),
	}
	if err := s.overrides.PutOverride(ctx, o); err != nil {
		return schedule.Override{}, fmt.Errorf("save override: %w", err)
	}
	s.publisher.Publish(ctx, events.Event{
		StudentID: studentID,
		TopicID:   topicID,
		Type:      events.TypeTopicOpened,
		Data:      map[string]any{"until": until.UTC().Format(time.RFC3339)},
	})
	return o, nil
}

// ClassOpen reports a class-wide temporary open.
type ClassOpen struct {
	TopicID  string    `json:"topic_id"`
	Until    time.Time `json:"until"`
	Students int       `json:"students"`
}

// OpenTopicForClass temporarily opens a topic for every student.
func (s *Service) OpenTopicForClass(ctx context.Context, topicID string, days int, createdBy string) (ClassOpen, error) {
	if _, err := s.topics.GetTopic(ctx, topicID); err != nil {
		return ClassOpen{}, err
	}
	until, err := s.openUntil(time.Time{}, days)
	if err != nil {
		return ClassOpen{}, err
	}
	students, err := s.students.ListStudents(ctx)
	if err != nil {
		return ClassOpen{}, fmt.Errorf("list students: %w", err)
	}
	res := ClassOpen{TopicID: topicID, Until: until}
	for _, st := range students {
		if _, err := s.open(ctx, topicID, st.ID, until, createdBy); err != nil {
			return res, err
		}
		res.Students++
	}
	return res, nil
}
