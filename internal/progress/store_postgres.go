package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pathgen/page/internal/platform/database"
)

const dbTimeout = 5 * time.Second

const studentColumns = `id, name, score, final, scores, finals, mastered, in_progress, upcoming, content_seen, topic_progress, updated_at`

// PostgresStore is a PostgreSQL-backed Store. UpdateStudent holds a row lock
// (SELECT ... FOR UPDATE) for the duration of fn.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a student store over pool.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func scanStudent(row pgx.Row) (Student, error) {
	var s Student
	var scores, finals, progress []byte
	if err := row.Scan(&s.ID, &s.Name, &s.Score, &s.Final, &scores, &finals,
		&s.Mastered, &s.InProgress, &s.Upcoming, &s.ContentSeen, &progress, &s.UpdatedAt); err != nil {
		return Student{}, err
	}
	if err := json.Unmarshal(scores, &s.Scores); err != nil {
		return Student{}, fmt.Errorf("decode scores: %w", err)
	}
	if err := json.Unmarshal(finals, &s.Finals); err != nil {
		return Student{}, fmt.Errorf("decode finals: %w", err)
	}
	if err := json.Unmarshal(progress, &s.TopicProgress); err != nil {
		return Student{}, fmt.Errorf("decode topic_progress: %w", err)
	}
	s.fill()
	return s, nil
}

func (p *PostgresStore) ListStudents(ctx context.Context) ([]Student, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := p.pool.Query(ctx, `SELECT `+studentColumns+` FROM students ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	out := []Student{}
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate students: %w", err)
	}
	return out, nil
}

func (p *PostgresStore) GetStudent(ctx context.Context, id string) (Student, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	s, err := scanStudent(p.pool.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Student{}, fmt.Errorf("%w: %s", ErrStudentNotFound, id)
	}
	if err != nil {
		return Student{}, fmt.Errorf("get student: %w", err)
	}
	return s, nil
}

func (p *PostgresStore) PutStudent(ctx context.Context, s Student) (Student, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if s.ID == "" {
		return Student{}, fmt.Errorf("student id is required")
	}
	final := s.Final
	if final == 0 {
		final = 100
	}

	out, err := scanStudent(p.pool.QueryRow(ctx,
		`INSERT INTO students (id, name, score, final)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		 SET name = EXCLUDED.name,
		     score = EXCLUDED.score,
		     final = EXCLUDED.final,
		     updated_at = NOW()
		 RETURNING `+studentColumns,
		s.ID, s.Name, s.Score, final,
	))
	if err != nil {
		return Student{}, fmt.Errorf("put student: %w", err)
	}
	return out, nil
}

func (p *PostgresStore) UpdateStudent(ctx context.Context, id string, fn func(*Student) error) (Student, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if id == "" {
		return Student{}, fmt.Errorf("student id is required")
	}

	var out Student
	err := database.WithinTx(ctx, p.pool, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO students (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, id); err != nil {
			return fmt.Errorf("ensure student: %w", err)
		}
		cur, err := scanStudent(tx.QueryRow(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return fmt.Errorf("lock student: %w", err)
		}

		if err := fn(&cur); err != nil {
			return err
		}
		cur.ID = id
		cur.fill()

		scores, err := json.Marshal(cur.Scores)
		if err != nil {
			return fmt.Errorf("encode scores: %w", err)
		}
		finals, err := json.Marshal(cur.Finals)
		if err != nil {
			return fmt.Errorf("encode finals: %w", err)
		}
		progress, err := json.Marshal(cur.TopicProgress)
		if err != nil {
			return fmt.Errorf("encode topic_progress: %w", err)
		}

		out, err = scanStudent(tx.QueryRow(ctx,
			`UPDATE students
			 SET name = $2, score = $3, final = $4, scores = $5, finals = $6,
			     mastered = $7, in_progress = $8, upcoming = $9, content_seen = $10,
			     topic_progress = $11, updated_at = NOW()
			 WHERE id = $1
			 RETURNING `+studentColumns,
			id, cur.Name, cur.Score, cur.Final, scores, finals,
			cur.Mastered, cur.InProgress, cur.Upcoming, cur.ContentSeen, progress,
		))
		if err != nil {
			return fmt.Errorf("write student: %w", err)
		}
		return nil
	})
	if err != nil {
		return Student{}, err
	}
	return out, nil
}

func (p *PostgresStore) ForgetTopic(ctx context.Context, topicID string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := p.pool.Exec(ctx,
		`UPDATE students
		 SET mastered = array_remove(mastered, $1::text),
		     in_progress = array_remove(in_progress, $1::text),
		     upcoming = array_remove(upcoming, $1::text),
		     topic_progress = topic_progress - $1::text,
		     scores = scores - $1::text,
		     finals = finals - $1::text,
		     updated_at = NOW()
		 WHERE $1::text = ANY(mastered) OR $1::text = ANY(in_progress) OR $1::text = ANY(upcoming)
		    OR topic_progress ? $1::text OR scores ? $1::text OR finals ? $1::text`,
		topicID,
	)
	if err != nil {
		return fmt.Errorf("forget topic: %w", err)
	}
	return nil
}
