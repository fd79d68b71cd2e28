package progress

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrStudentNotFound is returned when a student id is unknown.
var ErrStudentNotFound = errors.New("student not found")

// Store persists student records.
type Store interface {
	ListStudents(ctx context.Context) ([]Student, error)
	GetStudent(ctx context.Context, id string) (Student, error)
	// PutStudent upserts the profile fields (name, score, final). Learning
	// state of an existing student is preserved.
	PutStudent(ctx context.Context, s Student) (Student, error)
	// UpdateStudent runs fn on the current record under a per-student lock
	// and persists the result. A missing student starts as an empty record.
	// If fn returns an error nothing is written.
	UpdateStudent(ctx context.Context, id string, fn func(*Student) error) (Student, error)
	// ForgetTopic removes a topic from every student's learning state.
	ForgetTopic(ctx context.Context, topicID string) error
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu       sync.RWMutex
	students map[string]Student
}

// NewMemoryStore creates an empty in-memory student store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{students: make(map[string]Student)}
}

func (m *MemoryStore) ListStudents(_ context.Context) ([]Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Student, 0, len(m.students))
	for _, s := range m.students {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) GetStudent(_ context.Context, id string) (Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return Student{}, fmt.Errorf("%w: %s", ErrStudentNotFound, id)
	}
	return s.Clone(), nil
}

func (m *MemoryStore) PutStudent(_ context.Context, s Student) (Student, error) {
	if s.ID == "" {
		return Student{}, fmt.Errorf("student id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.students[s.ID]
	if !ok {
		cur = NewStudent(s.ID, "")
	}
	cur.Name = s.Name
	cur.Score = s.Score
	if s.Final != 0 {
		cur.Final = s.Final
	}
	cur.UpdatedAt = time.Now()
	m.students[s.ID] = cur
	return cur.Clone(), nil
}

func (m *MemoryStore) UpdateStudent(_ context.Context, id string, fn func(*Student) error) (Student, error) {
	if id == "" {
		return Student{}, fmt.Errorf("student id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.students[id]
	if !ok {
		cur = NewStudent(id, "")
	}
	next := cur.Clone()
	if err := fn(&next); err != nil {
		return Student{}, err
	}
	next.ID = id
	next.fill()
	next.UpdatedAt = time.Now()
	m.students[id] = next
	return next.Clone(), nil
}

func (m *MemoryStore) ForgetTopic(_ context.Context, topicID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.students {
		forget(&s, topicID)
		m.students[id] = s
	}
	return nil
}

func forget(s *Student, topicID string) {
	drop := func(ids []string) []string {
		out := make([]string, 0, len(ids))
		for _, v := range ids {
			if v != topicID {
				out = append(out, v)
			}
		}
		return out
	}
	s.Mastered = drop(s.Mastered)
	s.InProgress = drop(s.InProgress)
	s.Upcoming = drop(s.Upcoming)
	delete(s.TopicProgress, topicID)
	delete(s.Scores, topicID)
	delete(s.Finals, topicID)
}
