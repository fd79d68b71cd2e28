// Package assessment implements topic assessments and remedial practice: the
// attempt policy, grading, practice sampling and the submission workflow.
package assessment

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Question types.
const (
	MultipleChoice = "multiple_choice"
	ShortAnswer    = "short_answer"
	Numeric        = "numeric"
	Ordering       = "ordering"
)

// DefaultPassingScore is used when an assessment or bank sets none.
const DefaultPassingScore = 70

// AnswerKey holds an answer. Ordering questions use every element; the other
// types use the first. On the wire a single answer is a scalar and a sequence
// is an array.
type AnswerKey []string

func (a AnswerKey) MarshalJSON() ([]byte, error) {
	if len(a) == 1 {
		return json.Marshal(a[0])
	}
	return json.Marshal([]string(a))
}

func (a *AnswerKey) UnmarshalJSON(data []byte) error {
	var list []json.RawMessage
	if err := json.Unmarshal(data, &list); err == nil {
		out := make(AnswerKey, 0, len(list))
		for _, raw := range list {
			s, err := scalarJSON(raw)
			if err != nil {
				return err
			}
			out = append(out, s)
		}
		*a = out
		return nil
	}
	s, err := scalarJSON(data)
	if err != nil {
		return err
	}
	if s == "" {
		*a = nil
		return nil
	}
	*a = AnswerKey{s}
	return nil
}

func scalarJSON(raw json.RawMessage) (string, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	default:
		return "", fmt.Errorf("answer must be a string, number or list, got %s", string(raw))
	}
}

func (a *AnswerKey) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		out := make(AnswerKey, 0, len(node.Content))
		for _, n := range node.Content {
			out = append(out, n.Value)
		}
		*a = out
	case yaml.ScalarNode:
		if node.Value == "" {
			*a = nil
		} else {
			*a = AnswerKey{node.Value}
		}
	default:
		return fmt.Errorf("line %d: answer must be a scalar or a list", node.Line)
	}
	return nil
}

// First returns the first element or "".
func (a AnswerKey) First() string {
	if len(a) == 0 {
		return ""
	}
	return a[0]
}

// Question is one assessment or practice item.
type Question struct {
	ID      string    `json:"question_id" yaml:"question_id"`
	Type    string    `json:"type" yaml:"type"`
	Prompt  string    `json:"question" yaml:"question"`
	Choices []string  `json:"choices,omitempty" yaml:"choices"`
	Answer  AnswerKey `json:"answer,omitempty" yaml:"answer"`
	Points  float64   `json:"points" yaml:"points"`
}

// Assessment is the graded test of a topic.
type Assessment struct {
	TopicID          string     `json:"topic_id" yaml:"topic_id"`
	Title            string     `json:"title" yaml:"title"`
	Instructions     string     `json:"instructions,omitempty" yaml:"instructions"`
	PassingScore     int        `json:"passing_score" yaml:"passing_score"`
	TimeLimitMinutes int        `json:"time_limit_minutes" yaml:"time_limit_minutes"`
	Questions        []Question `json:"questions" yaml:"questions"`
	UpdatedAt        time.Time  `json:"updated_at,omitzero" yaml:"-"`
}

// PracticeBank is the pool remedial practice sessions sample from.
type PracticeBank struct {
	TopicID      string     `json:"topic_id" yaml:"topic_id"`
	PassingScore int        `json:"passing_score" yaml:"passing_score"`
	Questions    []Question `json:"questions" yaml:"questions"`
	UpdatedAt    time.Time  `json:"updated_at,omitzero" yaml:"-"`
}

// Normalize applies defaults and validates the assessment.
func (a *Assessment) Normalize() error {
	a.TopicID = strings.TrimSpace(a.TopicID)
	if a.TopicID == "" {
		return fmt.Errorf("topic_id is required")
	}
	if a.Title == "" {
		a.Title = "Assessment"
	}
	if a.PassingScore == 0 {
		a.PassingScore = DefaultPassingScore
	}
	if a.PassingScore < 0 || a.PassingScore > 100 {
		return fmt.Errorf("passing_score must be within 0-100")
	}
	if a.TimeLimitMinutes < 0 {
		return fmt.Errorf("time_limit_minutes must not be negative")
	}
	return normalizeQuestions(a.Questions)
}

// Normalize applies defaults and validates the bank.
func (b *PracticeBank) Normalize() error {
	b.TopicID = strings.TrimSpace(b.TopicID)
	if b.TopicID == "" {
		return fmt.Errorf("topic_id is required")
	}
	if b.PassingScore == 0 {
		b.PassingScore = DefaultPassingScore
	}
	if b.PassingScore < 0 || b.PassingScore > 100 {
		return fmt.Errorf("passing_score must be within 0-100")
	}
	return normalizeQuestions(b.Questions)
}

func normalizeQuestions(qs []Question) error {
	if len(qs) == 0 {
		return fmt.Errorf("at least one question is required")
	}
	ids := make(map[string]bool, len(qs))
	for i := range qs {
		q := &qs[i]
		if q.ID == "" {
			q.ID = fmt.Sprintf("q%d", i+1)
		}
		if ids[q.ID] {
			return fmt.Errorf("duplicate question_id %q", q.ID)
		}
		ids[q.ID] = true
		if q.Type == "" {
			q.Type = MultipleChoice
		}
		if q.Points == 0 {
			q.Points = 1
		}
		if q.Points < 0 {
			return fmt.Errorf("question %s: points must be positive", q.ID)
		}
		if len(q.Answer) == 0 {
			return fmt.Errorf("question %s: answer is required", q.ID)
		}
		switch q.Type {
		case MultipleChoice:
			if len(q.Choices) < 2 {
				return fmt.Errorf("question %s: multiple_choice needs at least two choices", q.ID)
			}
			if !slices.Contains(q.Choices, q.Answer.First()) {
				return fmt.Errorf("question %s: answer %q is not one of the choices", q.ID, q.Answer.First())
			}
		case ShortAnswer:
		case Numeric:
			if _, err := strconv.ParseFloat(strings.TrimSpace(q.Answer.First()), 64); err != nil {
				return fmt.Errorf("question %s: numeric answer %q is not a number", q.ID, q.Answer.First())
			}
		case Ordering:
			if len(q.Answer) < 2 {
				return fmt.Errorf("question %s: ordering needs at least two items", q.ID)
			}
		default:
			return fmt.Errorf("question %s: unknown type %q", q.ID, q.Type)
		}
	}
	return nil
}

// Public returns a copy with answers removed, safe to show to students.
func (a Assessment) Public() Assessment {
	a.Questions = publicQuestions(a.Questions)
	return a
}

func publicQuestions(qs []Question) []Question {
	out := make([]Question, len(qs))
	for i, q := range qs {
		q.Answer = nil
		q.Choices = slices.Clone(q.Choices)
		out[i] = q
	}
	return out
}

// Response is a student's answer to one question.
type Response struct {
	QuestionID string    `json:"question_id"`
	Answer     AnswerKey `json:"answer"`
}

// ItemResult is the graded outcome of one question.
type ItemResult struct {
	QuestionID string  `json:"question_id"`
	Correct    bool    `json:"correct"`
	Points     float64 `json:"points"`
}

// Attempt is a recorded assessment submission.
type Attempt struct {
	ID            string       `json:"id"`
	StudentID     string       `json:"student_id"`
	TopicID       string       `json:"topic_id"`
	AttemptNumber int          `json:"attempt_number"`
	Score         int          `json:"score"`
	Passed        bool         `json:"passed"`
	EarnedPoints  float64      `json:"earned_points"`
	TotalPoints   float64      `json:"total_points"`
	Items         []ItemResult `json:"items"`
	SubmittedAt   time.Time    `json:"submitted_at"`
}

// Session is a started, unsubmitted attempt. While it exists the student is
// pinned to the topic.
type Session struct {
	StudentID string     `json:"student_id"`
	TopicID   string     `json:"topic_id"`
	StartedAt time.Time  `json:"started_at"`
	Deadline  *time.Time `json:"deadline,omitempty"`
	Draft     []Response `json:"draft"`
}

// Editable reports whether answers may still change at now.
func (s Session) Editable(now time.Time) bool {
	return s.Deadline == nil || now.Before(*s.Deadline)
}

// PracticeSession is one sampled practice run.
type PracticeSession struct {
	ID          string     `json:"session_id"`
	StudentID   string     `json:"student_id"`
	TopicID     string     `json:"topic_id"`
	QuestionIDs []string   `json:"question_ids"`
	StartedAt   time.Time  `json:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	Score       int        `json:"score"`
	Passed      bool       `json:"passed"`
}
