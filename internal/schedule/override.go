package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Override temporarily opens a topic for one student.
type Override struct {
	StudentID     string     `json:"student_id"`
	TopicID       string     `json:"topic_id"`
	TempOpenUntil *time.Time `json:"temp_open_until"`
	CreatedBy     string     `json:"created_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Active reports whether the override is open at now.
func (o Override) Active(now time.Time) bool {
	return o.TempOpenUntil != nil && now.Before(*o.TempOpenUntil)
}

// OverrideRecord is the wire shape of an override as served over HTTP, with
// the deadline left unparsed.
type OverrideRecord struct {
	StudentID     string `json:"student_id"`
	TopicID       string `json:"topic_id"`
	TempOpenUntil string `json:"temp_open_until"`
	CreatedBy     string `json:"created_by,omitempty"`
}

// ParseOverrides converts wire records, skipping malformed ones. A record
// with no deadline is kept but never active.
func ParseOverrides(records []OverrideRecord, logger *slog.Logger) []Override {
	if logger == nil {
		logger = slog.Default()
	}
	out := make([]Override, 0, len(records))
	for _, r := range records {
		if r.TopicID == "" {
			logger.Warn("skipping override without topic", "student_id", r.StudentID)
			continue
		}
		o := Override{StudentID: r.StudentID, TopicID: r.TopicID, CreatedBy: r.CreatedBy}
		if r.TempOpenUntil != "" {
			t, ok := ParseTimestamp(r.TempOpenUntil)
			if !ok {
				logger.Warn("skipping override with invalid deadline",
					"student_id", r.StudentID,
					"topic_id", r.TopicID,
					"temp_open_until", r.TempOpenUntil,
				)
				continue
			}
			o.TempOpenUntil = &t
		}
		out = append(out, o)
	}
	return out
}

// ActiveByTopic indexes the overrides open at now by topic id, keeping the
// latest deadline per topic.
func ActiveByTopic(overrides []Override, now time.Time) map[string]time.Time {
	active := make(map[string]time.Time)
	for _, o := range overrides {
		if !o.Active(now) {
			continue
		}
		if cur, ok := active[o.TopicID]; !ok || o.TempOpenUntil.After(cur) {
			active[o.TopicID] = *o.TempOpenUntil
		}
	}
	return active
}

// OverrideStore persists temporary-open overrides.
type OverrideStore interface {
	PutOverride(ctx context.Context, o Override) error
	ListOverrides(ctx context.Context, studentID string) ([]Override, error)
	DeleteTopicOverrides(ctx context.Context, topicID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// MemoryOverrideStore is an in-memory OverrideStore.
type MemoryOverrideStore struct {
	mu        sync.RWMutex
	overrides map[string]map[string]Override // student -> topic -> override
}

// NewMemoryOverrideStore creates an empty in-memory override store.
func NewMemoryOverrideStore() *MemoryOverrideStore {
	return &MemoryOverrideStore{overrides: make(map[string]map[string]Override)}
}

func (s *MemoryOverrideStore) PutOverride(_ context.Context, o Override) error {
	if o.StudentID == "" || o.TopicID == "" {
		return fmt.Errorf("student_id and topic_id are required")
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	byTopic, ok := s.overrides[o.StudentID]
	if !ok {
		byTopic = make(map[string]Override)
		s.overrides[o.StudentID] = byTopic
	}
	byTopic[o.TopicID] = o
	return nil
}

func (s *MemoryOverrideStore) ListOverrides(_ context.Context, studentID string) ([]Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Override, 0, len(s.overrides[studentID]))
	for _, o := range s.overrides[studentID] {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TopicID < out[j].TopicID })
	return out, nil
}

func (s *MemoryOverrideStore) DeleteTopicOverrides(_ context.Context, topicID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, byTopic := range s.overrides {
		delete(byTopic, topicID)
	}
	return nil
}

func (s *MemoryOverrideStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for student, byTopic := range s.overrides {
		for topic, o := range byTopic {
			if !o.Active(now) {
				delete(byTopic, topic)
				removed++
			}
		}
		if len(byTopic) == 0 {
			delete(s.overrides, student)
		}
	}
	return removed, nil
}
