package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresOverrideStore is a PostgreSQL-backed OverrideStore.
type PostgresOverrideStore struct {
	pool *pgxpool.Pool
}

// NewPostgresOverrideStore creates an override store over pool.
func NewPostgresOverrideStore(pool *pgxpool.Pool) (*PostgresOverrideStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresOverrideStore{pool: pool}, nil
}

func (s *PostgresOverrideStore) PutOverride(ctx context.Context, o Override) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if o.StudentID == "" || o.TopicID == "" {
		return fmt.Errorf("student_id and topic_id are required")
	}
	createdAt := o.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO overrides (student_id, topic_id, temp_open_until, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (student_id, topic_id) DO UPDATE
		 SET temp_open_until = EXCLUDED.temp_open_until,
		     created_by = EXCLUDED.created_by,
		     created_at = EXCLUDED.created_at`,
		o.StudentID, o.TopicID, o.TempOpenUntil, o.CreatedBy, createdAt,
	)
	if err != nil {
		return fmt.Errorf("put override: %w", err)
	}
	return nil
}

func (s *PostgresOverrideStore) ListOverrides(ctx context.Context, studentID string) ([]Override, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT student_id, topic_id, temp_open_until, created_by, created_at
		 FROM overrides
		 WHERE student_id = $1
		 ORDER BY topic_id`,
		studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("query overrides: %w", err)
	}
	defer rows.Close()

	out := []Override{}
	for rows.Next() {
		var o Override
		if err := rows.Scan(&o.StudentID, &o.TopicID, &o.TempOpenUntil, &o.CreatedBy, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate overrides: %w", err)
	}
	return out, nil
}

func (s *PostgresOverrideStore) DeleteTopicOverrides(ctx context.Context, topicID string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := s.pool.Exec(ctx, `DELETE FROM overrides WHERE topic_id = $1`, topicID); err != nil {
		return fmt.Errorf("delete topic overrides: %w", err)
	}
	return nil
}

func (s *PostgresOverrideStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`DELETE FROM overrides WHERE temp_open_until IS NULL OR temp_open_until <= $1`, now,
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired overrides: %w", err)
	}
	return int(cmd.RowsAffected()), nil
}
