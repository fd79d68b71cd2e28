package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Add(ctx context.Context, f Feedback) (Feedback, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if err := f.Normalize(); err != nil {
		return Feedback{}, err
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO feedback (id, student_id, topic_id, message, sender)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		f.ID, f.StudentID, f.TopicID, f.Message, f.From,
	).Scan(&f.CreatedAt)
	if err != nil {
		return Feedback{}, fmt.Errorf("insert feedback: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) List(ctx context.Context, studentID string) ([]Feedback, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id, student_id, topic_id, message, sender, created_at
		 FROM feedback
		 WHERE $1::text = '' OR student_id = $1
		 ORDER BY created_at DESC, id`,
		studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("query feedback: %w", err)
	}
	defer rows.Close()

	out := []Feedback{}
	for rows.Next() {
		var f Feedback
		if err := rows.Scan(&f.ID, &f.StudentID, &f.TopicID, &f.Message, &f.From, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feedback: %w", err)
	}
	return out, nil
}
