package assessment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// AttemptFilter selects attempts. Empty fields match everything.
type AttemptFilter struct {
	StudentID string
	TopicID   string
}

func (f AttemptFilter) match(a Attempt) bool {
	return (f.StudentID == "" || a.StudentID == f.StudentID) &&
		(f.TopicID == "" || a.TopicID == f.TopicID)
}

// Store persists assessments, practice banks, attempts and sessions.
type Store interface {
	ListAssessments(ctx context.Context) ([]Assessment, error)
	GetAssessment(ctx context.Context, topicID string) (Assessment, error)
	PutAssessment(ctx context.Context, a Assessment) (Assessment, error)
	GetPracticeBank(ctx context.Context, topicID string) (PracticeBank, error)
	PutPracticeBank(ctx context.Context, b PracticeBank) (PracticeBank, error)
	// DeleteTopic removes the topic's assessment, bank and open sessions.
	// Recorded attempts are kept for reporting.
	DeleteTopic(ctx context.Context, topicID string) error

	RecordAttempt(ctx context.Context, a Attempt) error
	// ListAttempts returns attempts ordered by topic, then attempt number.
	ListAttempts(ctx context.Context, f AttemptFilter) ([]Attempt, error)

	// OpenSession stores s unless a session is already open for the same
	// student and topic, in which case the existing one is returned with
	// created=false.
	OpenSession(ctx context.Context, s Session) (sess Session, created bool, err error)
	GetSession(ctx context.Context, studentID, topicID string) (Session, error)
	// ListSessions returns the open sessions of a student.
	ListSessions(ctx context.Context, studentID string) ([]Session, error)
	SaveDraft(ctx context.Context, studentID, topicID string, draft []Response) error
	CloseSession(ctx context.Context, studentID, topicID string) error

	CreatePracticeSession(ctx context.Context, ps PracticeSession) error
	GetPracticeSession(ctx context.Context, id string) (PracticeSession, error)
	// CompletePracticeSession marks the session submitted. It fails with
	// ErrSessionClosed if it already was.
	CompletePracticeSession(ctx context.Context, id string, score int, passed bool, at time.Time) error
}

func sortAttempts(out []Attempt) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].TopicID != out[j].TopicID {
			return out[i].TopicID < out[j].TopicID
		}
		if out[i].StudentID != out[j].StudentID {
			return out[i].StudentID < out[j].StudentID
		}
		return out[i].AttemptNumber < out[j].AttemptNumber
	})
}

type sessionKey struct{ student, topic string }

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu          sync.RWMutex
	assessments map[string]Assessment
	banks       map[string]PracticeBank
	attempts    []Attempt
	sessions    map[sessionKey]Session
	practice    map[string]PracticeSession
}

// NewMemoryStore creates an empty in-memory assessment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assessments: make(map[string]Assessment),
		banks:       make(map[string]PracticeBank),
		sessions:    make(map[sessionKey]Session),
		practice:    make(map[string]PracticeSession),
	}
}

func (m *MemoryStore) ListAssessments(_ context.Context) ([]Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Assessment, 0, len(m.assessments))
	for _, a := range m.assessments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TopicID < out[j].TopicID })
	return out, nil
}

func (m *MemoryStore) GetAssessment(_ context.Context, topicID string) (Assessment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.assessments[topicID]
	if !ok {
		return Assessment{}, fmt.Errorf("%w: %s", ErrNoAssessment, topicID)
	}
	return a, nil
}

func (m *MemoryStore) PutAssessment(_ context.Context, a Assessment) (Assessment, error) {
	if err := a.Normalize(); err != nil {
		return Assessment{}, err
	}
	a.UpdatedAt = time.Now()
	m.mu.Lock()
	m.assessments[a.TopicID] = a
	m.mu.Unlock()
	return a, nil
}

func (m *MemoryStore) GetPracticeBank(_ context.Context, topicID string) (PracticeBank, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.banks[topicID]
	if !ok {
		return PracticeBank{}, fmt.Errorf("%w: %s", ErrNoPracticeBank, topicID)
	}
	return b, nil
}

func (m *MemoryStore) PutPracticeBank(_ context.Context, b PracticeBank) (PracticeBank, error) {
	if err := b.Normalize(); err != nil {
		return PracticeBank{}, err
	}
	b.UpdatedAt = time.Now()
	m.mu.Lock()
	m.banks[b.TopicID] = b
	m.mu.Unlock()
	return b, nil
}

func (m *MemoryStore) DeleteTopic(_ context.Context, topicID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.assessments, topicID)
	delete(m.banks, topicID)
	for k := range m.sessions {
		if k.topic == topicID {
			delete(m.sessions, k)
		}
	}
	return nil
}

func (m *MemoryStore) RecordAttempt(_ context.Context, a Attempt) error {
	if a.ID == "" || a.StudentID == "" || a.TopicID == "" {
		return fmt.Errorf("attempt id, student_id and topic_id are required")
	}
	m.mu.Lock()
	m.attempts = append(m.attempts, a)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) ListAttempts(_ context.Context, f AttemptFilter) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Attempt{}
	for _, a := range m.attempts {
		if f.match(a) {
			out = append(out, a)
		}
	}
	sortAttempts(out)
	return out, nil
}

func (m *MemoryStore) OpenSession(_ context.Context, s Session) (Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := sessionKey{s.StudentID, s.TopicID}
	if cur, ok := m.sessions[k]; ok {
		return cur, false, nil
	}
	if s.Draft == nil {
		s.Draft = []Response{}
	}
	m.sessions[k] = s
	return s, true, nil
}

func (m *MemoryStore) GetSession(_ context.Context, studentID, topicID string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionKey{studentID, topicID}]
	if !ok {
		return Session{}, ErrNoSession
	}
	return s, nil
}

func (m *MemoryStore) ListSessions(_ context.Context, studentID string) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Session{}
	for k, s := range m.sessions {
		if k.student == studentID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TopicID < out[j].TopicID })
	return out, nil
}

func (m *MemoryStore) SaveDraft(_ context.Context, studentID, topicID string, draft []Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := sessionKey{studentID, topicID}
	s, ok := m.sessions[k]
	if !ok {
		return ErrNoSession
	}
	s.Draft = append([]Response(nil), draft...)
	m.sessions[k] = s
	return nil
}

func (m *MemoryStore) CloseSession(_ context.Context, studentID, topicID string) error {
	m.mu.Lock()
	delete(m.sessions, sessionKey{studentID, topicID})
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) CreatePracticeSession(_ context.Context, ps PracticeSession) error {
	if ps.ID == "" {
		return fmt.Errorf("practice session id is required")
	}
	m.mu.Lock()
	m.practice[ps.ID] = ps
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) GetPracticeSession(_ context.Context, id string) (PracticeSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ps, ok := m.practice[id]
	if !ok {
		return PracticeSession{}, fmt.Errorf("%w: %s", ErrNoPracticeSession, id)
	}
	return ps, nil
}

func (m *MemoryStore) CompletePracticeSession(_ context.Context, id string, score int, passed bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ps, ok := m.practice[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoPracticeSession, id)
	}
	if ps.SubmittedAt != nil {
		return ErrSessionClosed
	}
	ps.SubmittedAt = &at
	ps.Score = score
	ps.Passed = passed
	m.practice[id] = ps
	return nil
}
