package curriculum

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pathgen/page/internal/platform/database"
)

const dbTimeout = 5 * time.Second

const topicColumns = `id, name, description, cluster, prerequisites, open_at, close_at, manual_lock, updated_at`

const contentColumns = `id, topic_id, title, description, link, type, created_by, created_at, updated_at`

// PostgresStore is a PostgreSQL-backed Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a curriculum store over pool.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) ListTopics(ctx context.Context) ([]Topic, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()
	return listTopics(ctx, s.pool)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listTopics(ctx context.Context, q querier) ([]Topic, error) {
	rows, err := q.Query(ctx, `SELECT `+topicColumns+` FROM topics ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer rows.Close()

	out := []Topic{}
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topics: %w", err)
	}
	return out, nil
}

func scanTopic(row pgx.Row) (Topic, error) {
	var t Topic
	if err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Cluster, &t.Prerequisites,
		&t.OpenAt, &t.CloseAt, &t.ManualLock, &t.UpdatedAt); err != nil {
		return Topic{}, fmt.Errorf("scan topic: %w", err)
	}
	if t.Prerequisites == nil {
		t.Prerequisites = []string{}
	}
	return t, nil
}

func (s *PostgresStore) GetTopic(ctx context.Context, id string) (Topic, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	t, err := scanTopic(s.pool.QueryRow(ctx, `SELECT `+topicColumns+` FROM topics WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Topic{}, fmt.Errorf("%w: %s", ErrTopicNotFound, id)
	}
	return t, err
}

func (s *PostgresStore) PutTopic(ctx context.Context, t Topic) (Topic, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	t.Normalize()
	if t.ID == "" {
		return Topic{}, fmt.Errorf("topic id is required")
	}

	err := database.WithinTx(ctx, s.pool, func(ctx context.Context, tx pgx.Tx) error {
		// Serialize topic writers so the cycle check sees a stable graph.
		if _, err := tx.Exec(ctx, `LOCK TABLE topics IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return fmt.Errorf("lock topics: %w", err)
		}
		existing, err := listTopics(ctx, tx)
		if err != nil {
			return err
		}
		if err := CheckAcyclic(existing, t); err != nil {
			return err
		}
		return tx.QueryRow(ctx,
			`INSERT INTO topics (id, name, description, cluster, prerequisites, open_at, close_at, manual_lock, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
			 ON CONFLICT (id) DO UPDATE
			 SET name = EXCLUDED.name,
			     description = EXCLUDED.description,
			     cluster = EXCLUDED.cluster,
			     prerequisites = EXCLUDED.prerequisites,
			     open_at = EXCLUDED.open_at,
			     close_at = EXCLUDED.close_at,
			     manual_lock = EXCLUDED.manual_lock,
			     updated_at = NOW()
			 RETURNING updated_at`,
			t.ID, t.Name, t.Description, t.Cluster, t.Prerequisites, t.OpenAt, t.CloseAt, t.ManualLock,
		).Scan(&t.UpdatedAt)
	})
	if err != nil {
		if errors.Is(err, ErrCycle) {
			return Topic{}, err
		}
		return Topic{}, fmt.Errorf("put topic: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) DeleteTopic(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	// contents cascade through the foreign key.
	cmd, err := s.pool.Exec(ctx, `DELETE FROM topics WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete topic: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrTopicNotFound, id)
	}
	return nil
}

func (s *PostgresStore) ListContents(ctx context.Context, topicID string) ([]Content, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+contentColumns+`
		 FROM contents
		 WHERE $1::text = '' OR topic_id = $1
		 ORDER BY created_at, id`,
		topicID,
	)
	if err != nil {
		return nil, fmt.Errorf("query contents: %w", err)
	}
	defer rows.Close()

	out := []Content{}
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contents: %w", err)
	}
	return out, nil
}

func scanContent(row pgx.Row) (Content, error) {
	var c Content
	if err := row.Scan(&c.ID, &c.TopicID, &c.Title, &c.Description, &c.Link, &c.Type,
		&c.CreatedBy, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Content{}, fmt.Errorf("scan content: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) GetContent(ctx context.Context, id string) (Content, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	c, err := scanContent(s.pool.QueryRow(ctx, `SELECT `+contentColumns+` FROM contents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Content{}, fmt.Errorf("%w: %s", ErrContentNotFound, id)
	}
	return c, err
}

func (s *PostgresStore) PutContent(ctx context.Context, c Content) (Content, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if err := c.Normalize(); err != nil {
		return Content{}, err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM topics WHERE id = $1)`, c.TopicID).Scan(&exists); err != nil {
		return Content{}, fmt.Errorf("check topic: %w", err)
	}
	if !exists {
		return Content{}, fmt.Errorf("%w: %s", ErrTopicNotFound, c.TopicID)
	}

	out, err := scanContent(s.pool.QueryRow(ctx,
		`INSERT INTO contents (id, topic_id, title, description, link, type, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE
		 SET topic_id = EXCLUDED.topic_id,
		     title = EXCLUDED.title,
		     description = EXCLUDED.description,
		     link = EXCLUDED.link,
		     type = EXCLUDED.type,
		     updated_at = NOW()
		 RETURNING `+contentColumns,
		c.ID, c.TopicID, c.Title, c.Description, c.Link, c.Type, c.CreatedBy,
	))
	if err != nil {
		return Content{}, fmt.Errorf("put content: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteContent(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx, `DELETE FROM contents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete content: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrContentNotFound, id)
	}
	return nil
}
