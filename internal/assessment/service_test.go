package assessment_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathgen/page/internal/assessment"
	"github.com/pathgen/page/internal/events"
	"github.com/pathgen/page/internal/progress"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	svc      *assessment.Service
	store    *assessment.MemoryStore
	students *progress.MemoryStore
	events   *recorder
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    assessment.NewMemoryStore(),
		students: progress.NewMemoryStore(),
		events:   &recorder{},
		now:      time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	f.svc = assessment.NewService(assessment.ServiceConfig{
		Store:     f.store,
		Students:  f.students,
		Publisher: f.events,
		Sampler:   assessment.NewSampler(rand.New(rand.NewPCG(7, 7))),
		Now:       func() time.Time { return f.now },
	})

	_, err := f.store.PutAssessment(t.Context(), assessment.Assessment{
		TopicID:          "decimals",
		TimeLimitMinutes: 10,
		Questions: []assessment.Question{
			{ID: "q1", Type: assessment.MultipleChoice, Choices: []string{"0.5", "0.05"}, Answer: assessment.AnswerKey{"0.5"}},
			{ID: "q2", Type: assessment.Numeric, Answer: assessment.AnswerKey{"0.25"}},
		},
	})
	require.NoError(t, err)

	bank := assessment.PracticeBank{TopicID: "decimals"}
	for _, id := range []string{"p1", "p2", "p3", "p4", "p5", "p6"} {
		bank.Questions = append(bank.Questions, assessment.Question{ID: id, Type: assessment.ShortAnswer, Answer: assessment.AnswerKey{"yes"}})
	}
	_, err = f.store.PutPracticeBank(t.Context(), bank)
	require.NoError(t, err)
	return f
}

var (
	rightAnswers = []assessment.Response{
		{QuestionID: "q1", Answer: assessment.AnswerKey{"0.5"}},
		{QuestionID: "q2", Answer: assessment.AnswerKey{"0.25"}},
	}
	wrongAnswers = []assessment.Response{
		{QuestionID: "q1", Answer: assessment.AnswerKey{"0.05"}},
	}
)

func TestService_PassMastersAndLocks(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	res, err := f.svc.Submit(ctx, "s1", "decimals", rightAnswers)
	require.NoError(t, err)
	assert.Equal(t, 100, res.Score)
	assert.True(t, res.Passed)
	assert.True(t, res.Mastered)
	assert.True(t, res.Locked)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 3, res.AllowedAttempts)

	st, err := f.students.GetStudent(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, st.HasMastered("decimals"))

	_, err = f.svc.Submit(ctx, "s1", "decimals", rightAnswers)
	require.ErrorIs(t, err, assessment.ErrAttemptNotAllowed)

	assert.Equal(t, []string{events.TypeAssessmentSubmitted, events.TypeTopicMastered}, f.events.types())
}

func TestService_ExhaustingAttemptsLocksWithoutMastery(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	for i := 1; i <= 3; i++ {
		res, err := f.svc.Submit(ctx, "s1", "decimals", wrongAnswers)
		require.NoError(t, err)
		assert.Equal(t, i, res.Attempts)
		assert.Equal(t, i == 3, res.Locked)
		assert.False(t, res.Mastered)
	}

	_, err := f.svc.Start(ctx, "s1", "decimals")
	require.ErrorIs(t, err, assessment.ErrAttemptNotAllowed)

	gate, err := f.svc.Gate(ctx, "s1", "decimals")
	require.NoError(t, err)
	assert.Equal(t, assessment.PhaseFailedLocked, gate.Phase)

	attempts, err := f.svc.Submission(ctx, "s1", "decimals")
	require.NoError(t, err)
	require.Len(t, attempts, 3)
	assert.Equal(t, 3, attempts[2].AttemptNumber)
}

func TestService_RemediationFlow(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	for range 3 {
		_, err := f.svc.Submit(ctx, "s1", "decimals", wrongAnswers)
		require.NoError(t, err)
	}

	gate, err := f.svc.AssignRemediation(ctx, "s1", "decimals", 1)
	require.NoError(t, err)
	assert.Equal(t, assessment.PhasePracticeRequired, gate.Phase)
	assert.Equal(t, 4, gate.AllowedAttempts)

	_, err = f.svc.Start(ctx, "s1", "decimals")
	require.ErrorIs(t, err, assessment.ErrPracticeRequired)
	_, err = f.svc.Submit(ctx, "s1", "decimals", rightAnswers)
	require.ErrorIs(t, err, assessment.ErrPracticeRequired)

	answerAll := func(ps assessment.PracticeStart, answer string) []assessment.Response {
		out := make([]assessment.Response, 0, len(ps.Questions))
		for _, q := range ps.Questions {
			assert.Empty(t, q.Answer, "practice questions are served without answers")
			out = append(out, assessment.Response{QuestionID: q.ID, Answer: assessment.AnswerKey{answer}})
		}
		return out
	}

	var last assessment.PracticeResult
	for i, answer := range []string{"yes", "no", "yes"} {
		ps, err := f.svc.StartPractice(ctx, "s1", "decimals")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(ps.Questions), 3)
		assert.LessOrEqual(t, len(ps.Questions), 5)

		last, err = f.svc.SubmitPractice(ctx, "s1", "decimals", ps.SessionID, answerAll(ps, answer))
		require.NoError(t, err)
		assert.Equal(t, i+1, last.SessionsCompleted)
		assert.Equal(t, i == 2, last.PracticeComplete)

		_, err = f.svc.SubmitPractice(ctx, "s1", "decimals", ps.SessionID, nil)
		require.ErrorIs(t, err, assessment.ErrSessionClosed)
	}
	assert.Equal(t, 2, last.Passes)
	assert.Equal(t, 3, last.RequiredSessions)
	assert.Equal(t, 2, last.MinPasses)

	start, err := f.svc.Start(ctx, "s1", "decimals")
	require.NoError(t, err)
	assert.Equal(t, assessment.PhaseInAttempt, start.Gate.Phase)

	res, err := f.svc.Submit(ctx, "s1", "decimals", rightAnswers)
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, 4, res.Attempts)
	assert.Equal(t, 4, res.AllowedAttempts)
}

func TestService_SubmitPracticeRejectsForeignSession(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	ps, err := f.svc.StartPractice(ctx, "s1", "decimals")
	require.NoError(t, err)

	_, err = f.svc.SubmitPractice(ctx, "s2", "decimals", ps.SessionID, nil)
	require.ErrorIs(t, err, assessment.ErrNoPracticeSession)
	_, err = f.svc.SubmitPractice(ctx, "s1", "decimals", "missing", nil)
	require.ErrorIs(t, err, assessment.ErrNoPracticeSession)
}

func TestService_SubmitPracticeAfterPassIsRefused(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	ps, err := f.svc.StartPractice(ctx, "s1", "decimals")
	require.NoError(t, err)

	res, err := f.svc.Submit(ctx, "s1", "decimals", rightAnswers)
	require.NoError(t, err)
	require.True(t, res.Passed)

	answers := make([]assessment.Response, 0, len(ps.Questions))
	for _, q := range ps.Questions {
		answers = append(answers, assessment.Response{QuestionID: q.ID, Answer: assessment.AnswerKey{"yes"}})
	}
	_, err = f.svc.SubmitPractice(ctx, "s1", "decimals", ps.SessionID, answers)
	require.ErrorIs(t, err, assessment.ErrAttemptNotAllowed)

	st, err := f.students.GetStudent(ctx, "s1")
	require.NoError(t, err)
	tp := st.Progress("decimals")
	assert.Zero(t, tp.PracticeSessionsCompleted)
	assert.Zero(t, tp.PracticePasses)
}

func TestService_StartPinsAndAutosave(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	require.NoError(t, f.svc.Pinned(ctx, "s1", "decimals"))

	start, err := f.svc.Start(ctx, "s1", "decimals")
	require.NoError(t, err)
	require.NotNil(t, start.Session.Deadline)
	assert.Equal(t, f.now.Add(10*time.Minute), *start.Session.Deadline)
	for _, q := range start.Assessment.Questions {
		assert.Empty(t, q.Answer)
	}

	// Starting again returns the same session.
	again, err := f.svc.Start(ctx, "s1", "decimals")
	require.NoError(t, err)
	assert.Equal(t, start.Session.StartedAt, again.Session.StartedAt)

	require.ErrorIs(t, f.svc.Pinned(ctx, "s1", "decimals"), assessment.ErrPinned)
	require.NoError(t, f.svc.Pinned(ctx, "s2", "decimals"))

	sess, err := f.svc.Autosave(ctx, "s1", "decimals", wrongAnswers)
	require.NoError(t, err)
	assert.Len(t, sess.Draft, 1)

	f.now = f.now.Add(11 * time.Minute)
	_, err = f.svc.Autosave(ctx, "s1", "decimals", rightAnswers)
	require.ErrorIs(t, err, assessment.ErrDeadlinePassed)

	// Submission is still accepted after the soft deadline.
	_, err = f.svc.Submit(ctx, "s1", "decimals", rightAnswers)
	require.NoError(t, err)
	require.NoError(t, f.svc.Pinned(ctx, "s1", "decimals"))

	_, err = f.svc.Autosave(ctx, "s1", "decimals", rightAnswers)
	require.ErrorIs(t, err, assessment.ErrNoSession)

	assert.Equal(t, []string{
		events.TypeAttemptStarted,
		events.TypeAssessmentSubmitted,
		events.TypeTopicMastered,
	}, f.events.types())
}

func TestService_UnknownAssessment(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Start(t.Context(), "s1", "fractions")
	require.ErrorIs(t, err, assessment.ErrNoAssessment)
	_, err = f.svc.Submit(t.Context(), "s1", "fractions", nil)
	require.ErrorIs(t, err, assessment.ErrNoAssessment)
	_, err = f.svc.StartPractice(t.Context(), "s1", "fractions")
	require.ErrorIs(t, err, assessment.ErrNoPracticeBank)
}

func TestService_AssignRemediationValidates(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AssignRemediation(t.Context(), "s1", "decimals", 0)
	require.ErrorIs(t, err, assessment.ErrInvalidSubmission)
	_, err = f.svc.AssignRemediation(t.Context(), "", "decimals", 1)
	require.ErrorIs(t, err, assessment.ErrInvalidSubmission)
}

func TestService_ConcurrentSubmissionsNeverExceedAllowed(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	const workers = 12
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted, refused := 0, 0
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Submit(ctx, "s1", "decimals", wrongAnswers)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, assessment.ErrAttemptNotAllowed):
				refused++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, accepted)
	assert.Equal(t, workers-3, refused)

	st, err := f.students.GetStudent(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, st.Progress("decimals").Attempts)
}

type failingStudents struct {
	*progress.MemoryStore
}

func (failingStudents) UpdateStudent(context.Context, string, func(*progress.Student) error) (progress.Student, error) {
	return progress.Student{}, errors.New("connection reset")
}

func TestService_UnconfirmedSubmissionReportsLocked(t *testing.T) {
	store := assessment.NewMemoryStore()
	_, err := store.PutAssessment(t.Context(), assessment.Assessment{
		TopicID:   "decimals",
		Questions: []assessment.Question{{ID: "q1", Type: assessment.ShortAnswer, Answer: assessment.AnswerKey{"x"}}},
	})
	require.NoError(t, err)
	svc := assessment.NewService(assessment.ServiceConfig{
		Store:    store,
		Students: failingStudents{progress.NewMemoryStore()},
	})

	res, err := svc.Submit(t.Context(), "s1", "decimals", nil)
	require.ErrorIs(t, err, assessment.ErrUnconfirmed)
	assert.True(t, res.Locked)
}
