package curriculum

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrTopicNotFound is returned when a topic id is unknown.
	ErrTopicNotFound = errors.New("topic not found")
	// ErrContentNotFound is returned when a content id is unknown.
	ErrContentNotFound = errors.New("content not found")
)

// Store persists topics and their contents.
type Store interface {
	ListTopics(ctx context.Context) ([]Topic, error)
	GetTopic(ctx context.Context, id string) (Topic, error)
	// PutTopic upserts a topic. It refuses writes that would make the
	// prerequisite graph cyclic.
	PutTopic(ctx context.Context, t Topic) (Topic, error)
	// DeleteTopic removes a topic and all of its contents.
	DeleteTopic(ctx context.Context, id string) error

	ListContents(ctx context.Context, topicID string) ([]Content, error)
	GetContent(ctx context.Context, id string) (Content, error)
	PutContent(ctx context.Context, c Content) (Content, error)
	DeleteContent(ctx context.Context, id string) error
}

// CheckAcyclic verifies that replacing (or adding) t in topics keeps the
// prerequisite graph acyclic.
func CheckAcyclic(topics []Topic, t Topic) error {
	next := make([]Topic, 0, len(topics)+1)
	for _, existing := range topics {
		if existing.ID != t.ID {
			next = append(next, existing)
		}
	}
	next = append(next, t)
	return BuildGraph(next).Validate()
}

// SortTopics orders topics by name, then id.
func SortTopics(topics []Topic) {
	sort.Slice(topics, func(i, j int) bool {
		if topics[i].Name != topics[j].Name {
			return topics[i].Name < topics[j].Name
		}
		return topics[i].ID < topics[j].ID
	})
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu       sync.RWMutex
	topics   map[string]Topic
	contents map[string]Content
}

// NewMemoryStore creates an empty in-memory curriculum store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		topics:   make(map[string]Topic),
		contents: make(map[string]Content),
	}
}

func (s *MemoryStore) ListTopics(_ context.Context) ([]Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.topicList(), nil
}

func (s *MemoryStore) topicList() []Topic {
	out := make([]Topic, 0, len(s.topics))
	for _, t := range s.topics {
		out = append(out, t)
	}
	SortTopics(out)
	return out
}

func (s *MemoryStore) GetTopic(_ context.Context, id string) (Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.topics[id]
	if !ok {
		return Topic{}, fmt.Errorf("%w: %s", ErrTopicNotFound, id)
	}
	return t, nil
}

func (s *MemoryStore) PutTopic(_ context.Context, t Topic) (Topic, error) {
	t.Normalize()
	if t.ID == "" {
		return Topic{}, fmt.Errorf("topic id is required")
	}
	t.UpdatedAt = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := CheckAcyclic(s.topicList(), t); err != nil {
		return Topic{}, err
	}
	s.topics[t.ID] = t
	return t, nil
}

func (s *MemoryStore) DeleteTopic(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.topics[id]; !ok {
		return fmt.Errorf("%w: %s", ErrTopicNotFound, id)
	}
	delete(s.topics, id)
	for cid, c := range s.contents {
		if c.TopicID == id {
			delete(s.contents, cid)
		}
	}
	return nil
}

func (s *MemoryStore) ListContents(_ context.Context, topicID string) ([]Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Content{}
	for _, c := range s.contents {
		if topicID == "" || c.TopicID == topicID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) GetContent(_ context.Context, id string) (Content, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contents[id]
	if !ok {
		return Content{}, fmt.Errorf("%w: %s", ErrContentNotFound, id)
	}
	return c, nil
}

func (s *MemoryStore) PutContent(_ context.Context, c Content) (Content, error) {
	if err := c.Normalize(); err != nil {
		return Content{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.topics[c.TopicID]; !ok {
		return Content{}, fmt.Errorf("%w: %s", ErrTopicNotFound, c.TopicID)
	}

	now := time.Now()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if prev, ok := s.contents[c.ID]; ok {
		c.CreatedAt = prev.CreatedAt
	} else if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.contents[c.ID] = c
	return c, nil
}

func (s *MemoryStore) DeleteContent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contents[id]; !ok {
		return fmt.Errorf("%w: %s", ErrContentNotFound, id)
	}
	delete(s.contents, id)
	return nil
}
