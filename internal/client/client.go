// Package client is a typed Go client for the portal API. It validates
// responses against the portal schemas, keeps a clock synced to the server,
// and derives topic statuses locally.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pathgen/page/internal/assessment"
	"github.com/pathgen/page/internal/curriculum"
	"github.com/pathgen/page/internal/portal"
	"github.com/pathgen/page/internal/progress"
	"github.com/pathgen/page/internal/schedule"
	"github.com/pathgen/page/internal/schema"
)

const maxResponseBytes = 4 << 20

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("portal api error (status %d): %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Client talks to a portal server.
type Client struct {
	baseURL string
	http    *http.Client
	clock   *schedule.Clock
	schemas *schema.Validator
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithClock sets the clock synced from override responses.
func WithClock(clock *schedule.Clock) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

// WithLogger sets the logger used for skipped records.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	schemas, err := schema.New()
	if err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
		schemas: schemas,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.clock == nil {
		c.clock = schedule.NewClock(nil)
	}
	return c, nil
}

// Clock returns the client's canonical clock.
func (c *Client) Clock() *schedule.Clock {
	return c.clock
}

// do sends a request and decodes a 2xx JSON response into dst. A non-empty
// schemaName validates the raw body first.
func (c *Client) do(ctx context.Context, method, path string, body any, schemaName string, dst any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if schemaName != "" {
		if err := c.schemas.Validate(schemaName, raw); err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
	}
	if dst == nil {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func studentPath(studentID, suffix string) string {
	return "/students/" + url.PathEscape(studentID) + suffix
}

// Topics lists every topic.
func (c *Client) Topics(ctx context.Context) ([]curriculum.Topic, error) {
	var topics []curriculum.Topic
	if err := c.do(ctx, http.MethodGet, "/topics/list", nil, schema.Topics, &topics); err != nil {
		return nil, err
	}
	return topics, nil
}

// Contents lists every content item.
func (c *Client) Contents(ctx context.Context) ([]curriculum.Content, error) {
	var contents []curriculum.Content
	if err := c.do(ctx, http.MethodGet, "/content", nil, "", &contents); err != nil {
		return nil, err
	}
	return contents, nil
}

// Student fetches a student record.
func (c *Client) Student(ctx context.Context, studentID string) (progress.Student, error) {
	var st progress.Student
	if err := c.do(ctx, http.MethodGet, studentPath(studentID, ""), nil, schema.Student, &st); err != nil {
		return progress.Student{}, err
	}
	return st, nil
}

// Path fetches the student's learning path.
func (c *Client) Path(ctx context.Context, studentID string) (portal.Path, error) {
	var p portal.Path
	if err := c.do(ctx, http.MethodGet, studentPath(studentID, "/path"), nil, schema.Path, &p); err != nil {
		return portal.Path{}, err
	}
	return p, nil
}

// Overrides fetches the student's overrides and resyncs the clock from the
// server timestamp. Malformed records are skipped.
func (c *Client) Overrides(ctx context.Context, studentID string) ([]schedule.Override, error) {
	var list portal.OverrideList
	if err := c.do(ctx, http.MethodGet, studentPath(studentID, "/overrides"), nil, schema.Overrides, &list); err != nil {
		return nil, err
	}
	received := time.Now()
	if serverTime, err := time.Parse(time.RFC3339Nano, list.ServerTimeUTC); err == nil {
		offset := c.clock.Sync(serverTime, received)
		c.logger.Debug("clock synced", "student_id", studentID, "offset_ms", offset.Milliseconds())
	} else {
		c.logger.Warn("invalid server time", "server_time_utc", list.ServerTimeUTC, "error", err)
	}
	return schedule.ParseOverrides(list.Overrides, c.logger), nil
}

// Gate fetches the assessment gate for a topic.
func (c *Client) Gate(ctx context.Context, studentID, topicID string) (assessment.Gate, error) {
	var g assessment.Gate
	path := studentPath(studentID, "/topics/"+url.PathEscape(topicID)+"/gate")
	if err := c.do(ctx, http.MethodGet, path, nil, "", &g); err != nil {
		return assessment.Gate{}, err
	}
	return g, nil
}

// MarkContentSeen records a viewed content item.
func (c *Client) MarkContentSeen(ctx context.Context, studentID, contentID string) (portal.SeenResult, error) {
	var res portal.SeenResult
	body := map[string]string{"content_id": contentID}
	if err := c.do(ctx, http.MethodPost, studentPath(studentID, "/content_seen"), body, "", &res); err != nil {
		return portal.SeenResult{}, err
	}
	return res, nil
}

type answersBody struct {
	StudentID string                `json:"student_id"`
	SessionID string                `json:"session_id,omitempty"`
	Answers   []assessment.Response `json:"answers"`
}

// StartAssessment opens an attempt.
func (c *Client) StartAssessment(ctx context.Context, studentID, topicID string) (assessment.StartResult, error) {
	var res assessment.StartResult
	path := "/assessments/" + url.PathEscape(topicID) + "/start"
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"student_id": studentID}, "", &res); err != nil {
		return assessment.StartResult{}, err
	}
	return res, nil
}

// Submit grades answers for the topic's assessment.
func (c *Client) Submit(ctx context.Context, studentID, topicID string, answers []assessment.Response) (assessment.SubmitResult, error) {
	var res assessment.SubmitResult
	path := "/assessments/" + url.PathEscape(topicID) + "/submit"
	body := answersBody{StudentID: studentID, Answers: nonNil(answers)}
	if err := c.do(ctx, http.MethodPost, path, body, "", &res); err != nil {
		return assessment.SubmitResult{}, err
	}
	return res, nil
}

// StartPractice samples a practice session.
func (c *Client) StartPractice(ctx context.Context, studentID, topicID string) (assessment.PracticeStart, error) {
	var res assessment.PracticeStart
	path := "/practice/" + url.PathEscape(topicID) + "/start"
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"student_id": studentID}, "", &res); err != nil {
		return assessment.PracticeStart{}, err
	}
	return res, nil
}

// SubmitPractice grades a practice session.
func (c *Client) SubmitPractice(ctx context.Context, studentID, topicID, sessionID string, answers []assessment.Response) (assessment.PracticeResult, error) {
	var res assessment.PracticeResult
	path := "/practice/" + url.PathEscape(topicID) + "/submit"
	body := answersBody{StudentID: studentID, SessionID: sessionID, Answers: nonNil(answers)}
	if err := c.do(ctx, http.MethodPost, path, body, "", &res); err != nil {
		return assessment.PracticeResult{}, err
	}
	return res, nil
}

func nonNil(answers []assessment.Response) []assessment.Response {
	if answers == nil {
		return []assessment.Response{}
	}
	return answers
}
