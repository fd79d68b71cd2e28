package assessment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/pathgen/page/internal/events"
	"github.com/pathgen/page/internal/progress"
)

// ServiceConfig holds dependencies for the assessment service.
type ServiceConfig struct {
	Store     Store
	Students  progress.Store
	Policy    Policy
	Publisher events.Publisher
	Sampler   *Sampler
	Now       func() time.Time // defaults to time.Now
}

// Service runs the attempt workflow: gating, starting, autosaving and
// submitting assessments, and remedial practice.
type Service struct {
	store     Store
	students  progress.Store
	policy    Policy
	publisher events.Publisher
	sampler   *Sampler
	now       func() time.Time
}

// NewService creates an assessment service.
func NewService(cfg ServiceConfig) *Service {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	students := cfg.Students
	if students == nil {
		students = progress.NewMemoryStore()
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}
	sampler := cfg.Sampler
	if sampler == nil {
		sampler = NewSampler(nil)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:     store,
		students:  students,
		policy:    cfg.Policy.withDefaults(),
		publisher: publisher,
		sampler:   sampler,
		now:       now,
	}
}

// Policy returns the effective attempt policy.
func (s *Service) Policy() Policy {
	return s.policy
}

// Store returns the underlying assessment store.
func (s *Service) Store() Store {
	return s.store
}

func (s *Service) topicProgress(ctx context.Context, studentID, topicID string) (progress.TopicProgress, error) {
	st, err := s.students.GetStudent(ctx, studentID)
	if errors.Is(err, progress.ErrStudentNotFound) {
		return progress.TopicProgress{}, nil
	}
	if err != nil {
		return progress.TopicProgress{}, err
	}
	return st.Progress(topicID), nil
}

func (s *Service) inAttempt(ctx context.Context, studentID, topicID string) (bool, error) {
	_, err := s.store.GetSession(ctx, studentID, topicID)
	if errors.Is(err, ErrNoSession) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Gate reports where studentID stands on topicID.
func (s *Service) Gate(ctx context.Context, studentID, topicID string) (Gate, error) {
	tp, err := s.topicProgress(ctx, studentID, topicID)
	if err != nil {
		return Gate{}, fmt.Errorf("load progress: %w", err)
	}
	open, err := s.inAttempt(ctx, studentID, topicID)
	if err != nil {
		return Gate{}, fmt.Errorf("load session: %w", err)
	}
	return s.policy.Evaluate(tp, open), nil
}

// refusal maps a closed gate to the error the caller should see.
func refusal(g Gate) error {
	if g.Phase == PhasePracticeRequired {
		return fmt.Errorf("%w: %d of %d sessions, %d of %d passes",
			ErrPracticeRequired, g.SessionsCompleted, g.RequiredSessions, g.Passes, g.MinPasses)
	}
	return fmt.Errorf("%w: %s, %d of %d attempts used", ErrAttemptNotAllowed, g.Phase, g.Attempts, g.AllowedAttempts)
}

// Pinned returns ErrPinned while studentID has a started, unsubmitted attempt
// on topicID.
func (s *Service) Pinned(ctx context.Context, studentID, topicID string) error {
	if studentID == "" {
		return nil
	}
	open, err := s.inAttempt(ctx, studentID, topicID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if open {
		return ErrPinned
	}
	return nil
}

// StartResult is returned when an attempt starts.
type StartResult struct {
	Assessment Assessment `json:"assessment"`
	Session    Session    `json:"session"`
	Gate       Gate       `json:"gate"`
}

// Start opens an attempt. Starting again while an attempt is open returns the
// open session.
func (s *Service) Start(ctx context.Context, studentID, topicID string) (StartResult, error) {
	if studentID == "" {
		return StartResult{}, fmt.Errorf("%w: student_id is required", ErrInvalidSubmission)
	}
	a, err := s.store.GetAssessment(ctx, topicID)
	if err != nil {
		return StartResult{}, err
	}
	gate, err := s.Gate(ctx, studentID, topicID)
	if err != nil {
		return StartResult{}, err
	}
	if gate.Phase != PhaseInAttempt && !gate.CanStart {
		return StartResult{}, refusal(gate)
	}

	now := s.now()
	sess := Session{StudentID: studentID, TopicID: topicID, StartedAt: now}
	if a.TimeLimitMinutes > 0 {
		deadline := now.Add(time.Duration(a.TimeLimitMinutes) * time.Minute)
		sess.Deadline = &deadline
	}
	sess, created, err := s.store.OpenSession(ctx, sess)
	if err != nil {
		return StartResult{}, err
	}
	if created {
		slog.Info("attempt started", "student_id", studentID, "topic_id", topicID, "attempt", gate.Attempts+1)
		s.publisher.Publish(ctx, events.Event{
			StudentID: studentID,
			TopicID:   topicID,
			Type:      events.TypeAttemptStarted,
			Data:      map[string]any{"attempt": gate.Attempts + 1},
		})
	}

	gate, err = s.Gate(ctx, studentID, topicID)
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{Assessment: a.Public(), Session: sess, Gate: gate}, nil
}

// Autosave stores draft answers of the open attempt. Drafts are refused once
// the attempt's time limit has passed.
func (s *Service) Autosave(ctx context.Context, studentID, topicID string, answers []Response) (Session, error) {
	sess, err := s.store.GetSession(ctx, studentID, topicID)
	if err != nil {
		return Session{}, err
	}
	if !sess.Editable(s.now()) {
		return Session{}, ErrDeadlinePassed
	}
	if err := s.store.SaveDraft(ctx, studentID, topicID, answers); err != nil {
		return Session{}, err
	}
	sess.Draft = answers
	return sess, nil
}

// SubmitResult is the outcome of an assessment submission.
type SubmitResult struct {
	Score           int          `json:"score"`
	Passed          bool         `json:"passed"`
	Attempts        int          `json:"attempts"`
	AllowedAttempts int          `json:"allowedAttempts"`
	Mastered        bool         `json:"mastered"`
	Locked          bool         `json:"locked"`
	AttemptID       string       `json:"attempt_id,omitempty"`
	Items           []ItemResult `json:"items,omitempty"`
}

// Submit grades answers and records the attempt. The gate is re-checked
// under the student's record lock, so concurrent submissions cannot exceed
// the allowed attempts. If the outcome cannot be persisted the returned
// result reports the topic locked and the error wraps ErrUnconfirmed.
func (s *Service) Submit(ctx context.Context, studentID, topicID string, answers []Response) (SubmitResult, error) {
	if studentID == "" {
		return SubmitResult{}, fmt.Errorf("%w: student_id is required", ErrInvalidSubmission)
	}
	a, err := s.store.GetAssessment(ctx, topicID)
	if err != nil {
		return SubmitResult{}, err
	}
	open, err := s.inAttempt(ctx, studentID, topicID)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("load session: %w", err)
	}

	graded := Grade(a.Questions, answers, a.PassingScore)
	var tp progress.TopicProgress
	var mastered bool
	_, err = s.students.UpdateStudent(ctx, studentID, func(st *progress.Student) error {
		tp = st.Progress(topicID)
		if gate := s.policy.Evaluate(tp, open); !gate.CanSubmit {
			return refusal(gate)
		}
		s.policy.ApplySubmission(&tp, graded.Score, graded.Passed)
		st.SetProgress(topicID, tp)
		if graded.Passed {
			st.AddMastered(topicID)
		}
		mastered = st.HasMastered(topicID)
		return nil
	})
	if errors.Is(err, ErrAttemptNotAllowed) || errors.Is(err, ErrPracticeRequired) {
		return SubmitResult{}, err
	}
	if err != nil {
		slog.Error("submission not persisted", "student_id", studentID, "topic_id", topicID, "error", err)
		return SubmitResult{
			Score:  graded.Score,
			Passed: graded.Passed,
			Locked: true,
		}, fmt.Errorf("%w: %v", ErrUnconfirmed, err)
	}

	attempt := Attempt{
		ID:            uuid.NewString(),
		StudentID:     studentID,
		TopicID:       topicID,
		AttemptNumber: tp.Attempts,
		Score:         graded.Score,
		Passed:        graded.Passed,
		EarnedPoints:  graded.Earned,
		TotalPoints:   graded.Total,
		Items:         graded.Items,
		SubmittedAt:   s.now(),
	}
	if err := s.store.RecordAttempt(ctx, attempt); err != nil {
		slog.Error("failed to record attempt", "student_id", studentID, "topic_id", topicID, "error", err)
		attempt.ID = ""
	}
	if err := s.store.CloseSession(ctx, studentID, topicID); err != nil {
		slog.Error("failed to close session", "student_id", studentID, "topic_id", topicID, "error", err)
	}

	slog.Info("assessment submitted",
		"student_id", studentID,
		"topic_id", topicID,
		"attempt", tp.Attempts,
		"score", graded.Score,
		"passed", graded.Passed,
	)
	s.publisher.Publish(ctx, events.Event{
		StudentID: studentID,
		TopicID:   topicID,
		Type:      events.TypeAssessmentSubmitted,
		Data: map[string]any{
			"attempt": tp.Attempts,
			"score":   graded.Score,
			"passed":  graded.Passed,
		},
	})
	if graded.Passed {
		s.publisher.Publish(ctx, events.Event{StudentID: studentID, TopicID: topicID, Type: events.TypeTopicMastered})
	}

	return SubmitResult{
		Score:           graded.Score,
		Passed:          graded.Passed,
		Attempts:        tp.Attempts,
		AllowedAttempts: s.policy.Allowed(tp),
		Mastered:        mastered,
		Locked:          tp.Locked,
		AttemptID:       attempt.ID,
		Items:           graded.Items,
	}, nil
}

// Submission lists the recorded attempts of studentID on topicID.
func (s *Service) Submission(ctx context.Context, studentID, topicID string) ([]Attempt, error) {
	return s.store.ListAttempts(ctx, AttemptFilter{StudentID: studentID, TopicID: topicID})
}

// PracticeStart is a freshly sampled practice session.
type PracticeStart struct {
	SessionID string     `json:"session_id"`
	TopicID   string     `json:"topic_id"`
	Questions []Question `json:"questions"`
	Gate      Gate       `json:"gate"`
}

// StartPractice samples questions from the topic's practice bank.
func (s *Service) StartPractice(ctx context.Context, studentID, topicID string) (PracticeStart, error) {
	if studentID == "" {
		return PracticeStart{}, fmt.Errorf("%w: student_id is required", ErrInvalidSubmission)
	}
	bank, err := s.store.GetPracticeBank(ctx, topicID)
	if err != nil {
		return PracticeStart{}, err
	}
	gate, err := s.Gate(ctx, studentID, topicID)
	if err != nil {
		return PracticeStart{}, err
	}
	if gate.Phase == PhasePassed {
		return PracticeStart{}, fmt.Errorf("%w: topic already passed", ErrAttemptNotAllowed)
	}

	picked := s.sampler.Sample(bank.Questions, s.policy.PracticeMin, s.policy.PracticeMax)
	ids := make([]string, 0, len(picked))
	for _, q := range picked {
		ids = append(ids, q.ID)
	}
	ps := PracticeSession{
		ID:          uuid.NewString(),
		StudentID:   studentID,
		TopicID:     topicID,
		QuestionIDs: ids,
		StartedAt:   s.now(),
	}
	if err := s.store.CreatePracticeSession(ctx, ps); err != nil {
		return PracticeStart{}, err
	}

	s.publisher.Publish(ctx, events.Event{
		StudentID: studentID,
		TopicID:   topicID,
		Type:      events.TypePracticeStarted,
		Data:      map[string]any{"session_id": ps.ID, "questions": len(ids)},
	})
	return PracticeStart{SessionID: ps.ID, TopicID: topicID, Questions: publicQuestions(picked), Gate: gate}, nil
}

// PracticeResult is the outcome of a practice submission.
type PracticeResult struct {
	Score             int  `json:"score"`
	Passed            bool `json:"passed"`
	SessionsCompleted int  `json:"sessionsCompleted"`
	Passes            int  `json:"passes"`
	RequiredSessions  int  `json:"requiredSessions"`
	MinPasses         int  `json:"minPasses"`
	PracticeComplete  bool `json:"practiceComplete"`
}

// SubmitPractice grades a practice session against the questions it was
// sampled with. A session can be submitted once.
func (s *Service) SubmitPractice(ctx context.Context, studentID, topicID, sessionID string, answers []Response) (PracticeResult, error) {
	if studentID == "" || sessionID == "" {
		return PracticeResult{}, fmt.Errorf("%w: student_id and session_id are required", ErrInvalidSubmission)
	}
	ps, err := s.store.GetPracticeSession(ctx, sessionID)
	if err != nil {
		return PracticeResult{}, err
	}
	if ps.StudentID != studentID || ps.TopicID != topicID {
		return PracticeResult{}, fmt.Errorf("%w: %s", ErrNoPracticeSession, sessionID)
	}
	bank, err := s.store.GetPracticeBank(ctx, topicID)
	if err != nil {
		return PracticeResult{}, err
	}

	questions := make([]Question, 0, len(ps.QuestionIDs))
	for _, q := range bank.Questions {
		if slices.Contains(ps.QuestionIDs, q.ID) {
			questions = append(questions, q)
		}
	}
	graded := Grade(questions, answers, bank.PassingScore)

	gate, err := s.Gate(ctx, studentID, topicID)
	if err != nil {
		return PracticeResult{}, err
	}
	if gate.Phase == PhasePassed {
		return PracticeResult{}, fmt.Errorf("%w: topic already passed", ErrAttemptNotAllowed)
	}

	if err := s.store.CompletePracticeSession(ctx, sessionID, graded.Score, graded.Passed, s.now()); err != nil {
		return PracticeResult{}, err
	}

	var tp progress.TopicProgress
	if _, err := s.students.UpdateStudent(ctx, studentID, func(st *progress.Student) error {
		tp = st.Progress(topicID)
		if s.policy.Phase(tp, false) == PhasePassed {
			return fmt.Errorf("%w: topic already passed", ErrAttemptNotAllowed)
		}
		s.policy.ApplyPractice(&tp, graded.Passed)
		st.SetProgress(topicID, tp)
		return nil
	}); err != nil {
		return PracticeResult{}, fmt.Errorf("update practice progress: %w", err)
	}

	s.publisher.Publish(ctx, events.Event{
		StudentID: studentID,
		TopicID:   topicID,
		Type:      events.TypePracticeSubmitted,
		Data: map[string]any{
			"session_id": sessionID,
			"score":      graded.Score,
			"passed":     graded.Passed,
		},
	})
	return PracticeResult{
		Score:             graded.Score,
		Passed:            graded.Passed,
		SessionsCompleted: tp.PracticeSessionsCompleted,
		Passes:            tp.PracticePasses,
		RequiredSessions:  s.policy.RequiredSessions,
		MinPasses:         s.policy.MinPasses,
		PracticeComplete:  tp.PracticeComplete,
	}, nil
}

// AssignRemediation grants n extra attempts on topicID.
func (s *Service) AssignRemediation(ctx context.Context, studentID, topicID string, n int) (Gate, error) {
	if studentID == "" || topicID == "" {
		return Gate{}, fmt.Errorf("%w: student_id and topic_id are required", ErrInvalidSubmission)
	}
	if n < 1 {
		return Gate{}, fmt.Errorf("%w: extra_attempts must be at least 1", ErrInvalidSubmission)
	}
	if _, err := s.students.UpdateStudent(ctx, studentID, func(st *progress.Student) error {
		tp := st.Progress(topicID)
		s.policy.GrantExtra(&tp, n)
		st.SetProgress(topicID, tp)
		return nil
	}); err != nil {
		return Gate{}, fmt.Errorf("grant extra attempts: %w", err)
	}

	slog.Info("remediation assigned", "student_id", studentID, "topic_id", topicID, "extra_attempts", n)
	s.publisher.Publish(ctx, events.Event{
		StudentID: studentID,
		TopicID:   topicID,
		Type:      events.TypeRemediationAssigned,
		Data:      map[string]any{"extra_attempts": n},
	})
	return s.Gate(ctx, studentID, topicID)
}
