// Package progress stores per-student learning state: mastered topics, seen
// content, attempt counters and teacher-entered scores.
package progress

import (
	"slices"
	"time"
)

// TopicProgress tracks assessment attempts and remedial practice for one
// student on one topic.
type TopicProgress struct {
	Attempts                  int  `json:"attempts"`
	ExtraAttempts             int  `json:"extraAttempts"`
	Locked                    bool `json:"locked"`
	Completed                 bool `json:"completed"`
	Passed                    bool `json:"passed"`
	BestScore                 int  `json:"bestScore"`
	PracticeSessionsCompleted int  `json:"practiceSessionsCompleted"`
	PracticePasses            int  `json:"practicePasses"`
	PracticeComplete          bool `json:"practiceComplete"`
}

// Student is a student's record.
type Student struct {
	ID            string                   `json:"id"`
	Name          string                   `json:"name"`
	Score         float64                  `json:"score"`
	Final         float64                  `json:"final"`
	Scores        map[string]float64       `json:"scores"`
	Finals        map[string]float64       `json:"finals"`
	Mastered      []string                 `json:"mastered"`
	InProgress    []string                 `json:"in_progress"`
	Upcoming      []string                 `json:"upcoming"`
	ContentSeen   []string                 `json:"content_seen"`
	TopicProgress map[string]TopicProgress `json:"topic_progress"`
	UpdatedAt     time.Time                `json:"updated_at,omitzero"`
}

// NewStudent returns an empty record with defaults applied.
func NewStudent(id, name string) Student {
	s := Student{ID: id, Name: name}
	s.fill()
	return s
}

// fill replaces nil collections and a zero final with defaults.
func (s *Student) fill() {
	if s.Final == 0 {
		s.Final = 100
	}
	if s.Scores == nil {
		s.Scores = map[string]float64{}
	}
	if s.Finals == nil {
		s.Finals = map[string]float64{}
	}
	if s.Mastered == nil {
		s.Mastered = []string{}
	}
	if s.InProgress == nil {
		s.InProgress = []string{}
	}
	if s.Upcoming == nil {
		s.Upcoming = []string{}
	}
	if s.ContentSeen == nil {
		s.ContentSeen = []string{}
	}
	if s.TopicProgress == nil {
		s.TopicProgress = map[string]TopicProgress{}
	}
}

// ListStatus is PASS when score is at least half of final.
func (s Student) ListStatus() string {
	if s.Score >= s.Final*0.5 {
		return "PASS"
	}
	return "FAIL"
}

// HasMastered reports whether topicID is mastered.
func (s Student) HasMastered(topicID string) bool {
	return slices.Contains(s.Mastered, topicID)
}

// HasSeen reports whether contentID was viewed.
func (s Student) HasSeen(contentID string) bool {
	return slices.Contains(s.ContentSeen, contentID)
}

// AddMastered appends topicID once and drops it from in-progress. It
// reports whether the set changed.
func (s *Student) AddMastered(topicID string) bool {
	s.InProgress = slices.DeleteFunc(s.InProgress, func(id string) bool { return id == topicID })
	if s.HasMastered(topicID) {
		return false
	}
	s.Mastered = append(s.Mastered, topicID)
	return true
}

// MarkSeen appends contentID once and reports whether it was new.
func (s *Student) MarkSeen(contentID string) bool {
	if s.HasSeen(contentID) {
		return false
	}
	s.ContentSeen = append(s.ContentSeen, contentID)
	return true
}

// Progress returns the progress for topicID, zero if none.
func (s Student) Progress(topicID string) TopicProgress {
	return s.TopicProgress[topicID]
}

// SetProgress stores tp for topicID.
func (s *Student) SetProgress(topicID string, tp TopicProgress) {
	if s.TopicProgress == nil {
		s.TopicProgress = map[string]TopicProgress{}
	}
	s.TopicProgress[topicID] = tp
}

// Clone returns a deep copy.
func (s Student) Clone() Student {
	c := s
	c.Scores = cloneMap(s.Scores)
	c.Finals = cloneMap(s.Finals)
	c.Mastered = slices.Clone(s.Mastered)
	c.InProgress = slices.Clone(s.InProgress)
	c.Upcoming = slices.Clone(s.Upcoming)
	c.ContentSeen = slices.Clone(s.ContentSeen)
	c.TopicProgress = cloneMap(s.TopicProgress)
	c.fill()
	return c
}

func cloneMap[V any](m map[string]V) map[string]V {
	if m == nil {
		return nil
	}
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
