package client

import (
	"context"
	"fmt"
	"maps"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pathgen/page/internal/curriculum"
	"github.com/pathgen/page/internal/portal"
	"github.com/pathgen/page/internal/progress"
	"github.com/pathgen/page/internal/schedule"
	"github.com/pathgen/page/internal/status"
)

// DefaultInterval is how often Watch re-derives statuses.
const DefaultInterval = time.Second

// LoadView fetches everything the status resolver needs for one student.
// The requests run in parallel. Topics, the student and the path are
// required and the first failure among them cancels the rest; contents and
// overrides fall back to empty so the board still resolves.
func (c *Client) LoadView(ctx context.Context, studentID string) (status.View, error) {
	var (
		topics    []curriculum.Topic
		contents  []curriculum.Content
		student   progress.Student
		path      portal.Path
		overrides []schedule.Override
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		topics, err = c.Topics(ctx)
		return wrap("topics", err)
	})
	g.Go(func() error {
		var err error
		contents, err = c.Contents(ctx)
		if err != nil {
			c.logger.Warn("contents unavailable, continuing without", "student_id", studentID, "error", err)
			contents = []curriculum.Content{}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		student, err = c.Student(ctx, studentID)
		return wrap("student", err)
	})
	g.Go(func() error {
		var err error
		path, err = c.Path(ctx, studentID)
		return wrap("path", err)
	})
	g.Go(func() error {
		var err error
		overrides, err = c.Overrides(ctx, studentID)
		if err != nil {
			c.logger.Warn("overrides unavailable, continuing without", "student_id", studentID, "error", err)
			overrides = []schedule.Override{}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return status.View{}, err
	}

	// The path carries the mastered list after the score fallback.
	student.Mastered = path.MasteredIDs
	return status.View{
		Topics:      topics,
		Contents:    contents,
		Student:     student,
		Overrides:   overrides,
		Recommended: path.RecommendedIDs,
	}, nil
}

func wrap(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("load %s: %w", what, err)
}

// Board loads the student's view and resolves it at canonical now.
func (c *Client) Board(ctx context.Context, studentID string) (status.Board, error) {
	v, err := c.LoadView(ctx, studentID)
	if err != nil {
		return status.Board{}, err
	}
	return status.BuildBoard(v, c.clock.Now()), nil
}

// Watch resolves v immediately and then on every tick of interval, calling
// fn whenever some topic's status differs from the previous call. It
// returns when ctx is done.
func (c *Client) Watch(ctx context.Context, v status.View, interval time.Duration, fn func(status.Board)) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last map[string]status.Status
	emit := func() {
		board := status.BuildBoard(v, c.clock.Now())
		cur := make(map[string]status.Status, len(board.Entries))
		for _, e := range board.Entries {
			cur[e.TopicID] = e.Status
		}
		if last != nil && maps.Equal(last, cur) {
			return
		}
		last = cur
		fn(board)
	}

	emit()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			emit()
		}
	}
}
