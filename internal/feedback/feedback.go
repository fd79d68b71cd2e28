// Package feedback stores messages between teachers and students.
package feedback

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pathgen/page/internal/platform/htmlsanitize"
)

// Senders.
const (
	FromTeacher = "teacher"
	FromStudent = "student"
)

// Feedback is one message. Message holds sanitized HTML.
type Feedback struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	TopicID   string    `json:"topic_id,omitempty"`
	Message   string    `json:"message"`
	From      string    `json:"from"`
	CreatedAt time.Time `json:"created_at"`
}

// Normalize sanitizes the message and checks required fields.
func (f *Feedback) Normalize() error {
	f.StudentID = strings.TrimSpace(f.StudentID)
	f.TopicID = strings.TrimSpace(f.TopicID)
	f.Message = htmlsanitize.Sanitize(f.Message)
	if f.From == "" {
		f.From = FromTeacher
	}
	if f.StudentID == "" {
		return fmt.Errorf("student_id is required")
	}
	if f.Message == "" {
		return fmt.Errorf("message is required")
	}
	if f.From != FromTeacher && f.From != FromStudent {
		return fmt.Errorf("from must be %q or %q", FromTeacher, FromStudent)
	}
	return nil
}

// Store persists feedback.
type Store interface {
	Add(ctx context.Context, f Feedback) (Feedback, error)
	// List returns feedback newest first. An empty studentID lists all.
	List(ctx context.Context, studentID string) ([]Feedback, error)
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu    sync.RWMutex
	items []Feedback
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Add(_ context.Context, f Feedback) (Feedback, error) {
	if err := f.Normalize(); err != nil {
		return Feedback{}, err
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	m.mu.Lock()
	m.items = append(m.items, f)
	m.mu.Unlock()
	return f, nil
}

func (m *MemoryStore) List(_ context.Context, studentID string) ([]Feedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Feedback{}
	for _, f := range m.items {
		if studentID == "" || f.StudentID == studentID {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
