package assessment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates an assessment store over pool.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func scanAssessment(row pgx.Row) (Assessment, error) {
	var a Assessment
	var questions []byte
	if err := row.Scan(&a.TopicID, &a.Title, &a.Instructions, &a.PassingScore, &a.TimeLimitMinutes, &questions, &a.UpdatedAt); err != nil {
		return Assessment{}, err
	}
	if err := json.Unmarshal(questions, &a.Questions); err != nil {
		return Assessment{}, fmt.Errorf("decode questions: %w", err)
	}
	return a, nil
}

const assessmentColumns = `topic_id, title, instructions, passing_score, time_limit_minutes, questions, updated_at`

func (s *PostgresStore) ListAssessments(ctx context.Context) ([]Assessment, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT `+assessmentColumns+` FROM assessments ORDER BY topic_id`)
	if err != nil {
		return nil, fmt.Errorf("query assessments: %w", err)
	}
	defer rows.Close()

	out := []Assessment{}
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assessments: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetAssessment(ctx context.Context, topicID string) (Assessment, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	a, err := scanAssessment(s.pool.QueryRow(ctx, `SELECT `+assessmentColumns+` FROM assessments WHERE topic_id = $1`, topicID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Assessment{}, fmt.Errorf("%w: %s", ErrNoAssessment, topicID)
	}
	if err != nil {
		return Assessment{}, fmt.Errorf("get assessment: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) PutAssessment(ctx context.Context, a Assessment) (Assessment, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if err := a.Normalize(); err != nil {
		return Assessment{}, err
	}
	questions, err := json.Marshal(a.Questions)
	if err != nil {
		return Assessment{}, fmt.Errorf("encode questions: %w", err)
	}

	out, err := scanAssessment(s.pool.QueryRow(ctx,
		`INSERT INTO assessments (topic_id, title, instructions, passing_score, time_limit_minutes, questions, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 ON CONFLICT (topic_id) DO UPDATE
		 SET title = EXCLUDED.title,
		     instructions = EXCLUDED.instructions,
		     passing_score = EXCLUDED.passing_score,
		     time_limit_minutes = EXCLUDED.time_limit_minutes,
		     questions = EXCLUDED.questions,
		     updated_at = NOW()
		 RETURNING `+assessmentColumns,
		a.TopicID, a.Title, a.Instructions, a.PassingScore, a.TimeLimitMinutes, questions,
	))
	if err != nil {
		return Assessment{}, fmt.Errorf("put assessment: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetPracticeBank(ctx context.Context, topicID string) (PracticeBank, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var b PracticeBank
	var questions []byte
	err := s.pool.QueryRow(ctx,
		`SELECT topic_id, passing_score, questions, updated_at FROM practice_banks WHERE topic_id = $1`, topicID,
	).Scan(&b.TopicID, &b.PassingScore, &questions, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PracticeBank{}, fmt.Errorf("%w: %s", ErrNoPracticeBank, topicID)
	}
	if err != nil {
		return PracticeBank{}, fmt.Errorf("get practice bank: %w", err)
	}
	if err := json.Unmarshal(questions, &b.Questions); err != nil {
		return PracticeBank{}, fmt.Errorf("decode questions: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) PutPracticeBank(ctx context.Context, b PracticeBank) (PracticeBank, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if err := b.Normalize(); err != nil {
		return PracticeBank{}, err
	}
	questions, err := json.Marshal(b.Questions)
	if err != nil {
		return PracticeBank{}, fmt.Errorf("encode questions: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO practice_banks (topic_id, passing_score, questions, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (topic_id) DO UPDATE
		 SET passing_score = EXCLUDED.passing_score,
		     questions = EXCLUDED.questions,
		     updated_at = NOW()
		 RETURNING updated_at`,
		b.TopicID, b.PassingScore, questions,
	).Scan(&b.UpdatedAt)
	if err != nil {
		return PracticeBank{}, fmt.Errorf("put practice bank: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) DeleteTopic(ctx context.Context, topicID string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM assessments WHERE topic_id = $1`, topicID)
	batch.Queue(`DELETE FROM practice_banks WHERE topic_id = $1`, topicID)
	batch.Queue(`DELETE FROM attempt_sessions WHERE topic_id = $1`, topicID)
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("delete topic assessments: %w", err)
	}
	return nil
}

func (s *PostgresStore) RecordAttempt(ctx context.Context, a Attempt) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if a.ID == "" || a.StudentID == "" || a.TopicID == "" {
		return fmt.Errorf("attempt id, student_id and topic_id are required")
	}
	items, err := json.Marshal(a.Items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO attempts (id, student_id, topic_id, attempt_number, score, passed, earned_points, total_points, items, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.StudentID, a.TopicID, a.AttemptNumber, a.Score, a.Passed, a.EarnedPoints, a.TotalPoints, items, a.SubmittedAt,
	); err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAttempts(ctx context.Context, f AttemptFilter) ([]Attempt, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id, student_id, topic_id, attempt_number, score, passed, earned_points, total_points, items, submitted_at
		 FROM attempts
		 WHERE ($1::text = '' OR student_id = $1) AND ($2::text = '' OR topic_id = $2)
		 ORDER BY topic_id, student_id, attempt_number`,
		f.StudentID, f.TopicID,
	)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	out := []Attempt{}
	for rows.Next() {
		var a Attempt
		var items []byte
		if err := rows.Scan(&a.ID, &a.StudentID, &a.TopicID, &a.AttemptNumber, &a.Score, &a.Passed,
			&a.EarnedPoints, &a.TotalPoints, &items, &a.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		if err := json.Unmarshal(items, &a.Items); err != nil {
			return nil, fmt.Errorf("decode items: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return out, nil
}

func scanSession(row pgx.Row) (Session, error) {
	var sess Session
	var draft []byte
	if err := row.Scan(&sess.StudentID, &sess.TopicID, &sess.StartedAt, &sess.Deadline, &draft); err != nil {
		return Session{}, err
	}
	if err := json.Unmarshal(draft, &sess.Draft); err != nil {
		return Session{}, fmt.Errorf("decode draft: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) OpenSession(ctx context.Context, sess Session) (Session, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`INSERT INTO attempt_sessions (student_id, topic_id, started_at, deadline)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (student_id, topic_id) DO NOTHING`,
		sess.StudentID, sess.TopicID, sess.StartedAt, sess.Deadline,
	)
	if err != nil {
		return Session{}, false, fmt.Errorf("open session: %w", err)
	}
	cur, err := s.GetSession(ctx, sess.StudentID, sess.TopicID)
	if err != nil {
		return Session{}, false, err
	}
	return cur, cmd.RowsAffected() == 1, nil
}

func (s *PostgresStore) GetSession(ctx context.Context, studentID, topicID string) (Session, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	sess, err := scanSession(s.pool.QueryRow(ctx,
		`SELECT student_id, topic_id, started_at, deadline, draft
		 FROM attempt_sessions WHERE student_id = $1 AND topic_id = $2`,
		studentID, topicID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, studentID string) ([]Session, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT student_id, topic_id, started_at, deadline, draft
		 FROM attempt_sessions WHERE student_id = $1 ORDER BY topic_id`,
		studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	out := []Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SaveDraft(ctx context.Context, studentID, topicID string, draft []Response) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if draft == nil {
		draft = []Response{}
	}
	raw, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	cmd, err := s.pool.Exec(ctx,
		`UPDATE attempt_sessions SET draft = $3 WHERE student_id = $1 AND topic_id = $2`,
		studentID, topicID, raw,
	)
	if err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNoSession
	}
	return nil
}

func (s *PostgresStore) CloseSession(ctx context.Context, studentID, topicID string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := s.pool.Exec(ctx,
		`DELETE FROM attempt_sessions WHERE student_id = $1 AND topic_id = $2`, studentID, topicID,
	); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePracticeSession(ctx context.Context, ps PracticeSession) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if ps.ID == "" {
		return fmt.Errorf("practice session id is required")
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO practice_sessions (id, student_id, topic_id, question_ids, started_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		ps.ID, ps.StudentID, ps.TopicID, ps.QuestionIDs, ps.StartedAt,
	); err != nil {
		return fmt.Errorf("create practice session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPracticeSession(ctx context.Context, id string) (PracticeSession, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var ps PracticeSession
	err := s.pool.QueryRow(ctx,
		`SELECT id, student_id, topic_id, question_ids, started_at, submitted_at, score, passed
		 FROM practice_sessions WHERE id = $1`, id,
	).Scan(&ps.ID, &ps.StudentID, &ps.TopicID, &ps.QuestionIDs, &ps.StartedAt, &ps.SubmittedAt, &ps.Score, &ps.Passed)
	if errors.Is(err, pgx.ErrNoRows) {
		return PracticeSession{}, fmt.Errorf("%w: %s", ErrNoPracticeSession, id)
	}
	if err != nil {
		return PracticeSession{}, fmt.Errorf("get practice session: %w", err)
	}
	return ps, nil
}

func (s *PostgresStore) CompletePracticeSession(ctx context.Context, id string, score int, passed bool, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`UPDATE practice_sessions
		 SET submitted_at = $2, score = $3, passed = $4
		 WHERE id = $1 AND submitted_at IS NULL`,
		id, at, score, passed,
	)
	if err != nil {
		return fmt.Errorf("complete practice session: %w", err)
	}
	if cmd.RowsAffected() == 1 {
		return nil
	}
	if _, err := s.GetPracticeSession(ctx, id); err != nil {
		return err
	}
	return ErrSessionClosed
}
