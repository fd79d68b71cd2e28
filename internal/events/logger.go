package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// Logger persists events.
type Logger interface {
	LogEvent(ctx context.Context, e Event) error
	ListEvents(ctx context.Context, studentID string, limit int) ([]Event, error)
}

func validate(e Event) error {
	if e.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if e.StudentID == "" {
		return fmt.Errorf("student_id is required")
	}
	return nil
}

// MemoryLogger keeps events in memory.
type MemoryLogger struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{events: []Event{}}
}

func (l *MemoryLogger) LogEvent(_ context.Context, e Event) error {
	if err := validate(e); err != nil {
		return err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
	return nil
}

// ListEvents returns the newest events for studentID first. An empty
// studentID lists every student.
func (l *MemoryLogger) ListEvents(_ context.Context, studentID string, limit int) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := []Event{}
	for i := len(l.events) - 1; i >= 0; i-- {
		if studentID != "" && l.events[i].StudentID != studentID {
			continue
		}
		out = append(out, l.events[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// PostgresLogger inserts events into the activity_events table.
type PostgresLogger struct {
	pool *pgxpool.Pool
}

func NewPostgresLogger(pool *pgxpool.Pool) *PostgresLogger {
	return &PostgresLogger{pool: pool}
}

func (l *PostgresLogger) LogEvent(ctx context.Context, e Event) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("event logger pool is nil")
	}
	if err := validate(e); err != nil {
		return err
	}

	payload := e.Data
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := l.pool.Exec(ctx,
		`INSERT INTO activity_events (student_id, topic_id, event_type, data, created_at)
		 VALUES ($1, $2, $3, $4::jsonb, $5)`,
		e.StudentID, e.TopicID, e.Type, string(data), createdAt,
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	slog.Debug("event logged", "type", e.Type, "student_id", e.StudentID, "topic_id", e.TopicID)
	return nil
}

func (l *PostgresLogger) ListEvents(ctx context.Context, studentID string, limit int) ([]Event, error) {
	if l == nil || l.pool == nil {
		return nil, fmt.Errorf("event logger pool is nil")
	}
	if limit <= 0 {
		limit = 100
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := l.pool.Query(ctx,
		`SELECT student_id, topic_id, event_type, data, created_at
		 FROM activity_events
		 WHERE $1 = '' OR student_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		studentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		var e Event
		var data []byte
		if err := rows.Scan(&e.StudentID, &e.TopicID, &e.Type, &data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &e.Data); err != nil {
				return nil, fmt.Errorf("decode event data: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}
