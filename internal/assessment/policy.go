package assessment

import (
	"github.com/pathgen/page/internal/progress"
)

// Phase is where a student stands on a topic's assessment.
type Phase string

const (
	PhaseNotStarted       Phase = "not_started"
	PhasePracticeRequired Phase = "practice_required"
	PhaseEligible         Phase = "eligible"
	PhaseInAttempt        Phase = "in_attempt"
	PhasePassed           Phase = "passed"
	PhaseFailedRetry      Phase = "failed_retry"
	PhaseFailedLocked     Phase = "failed_locked"
)

// Policy holds the attempt and remediation rules.
type Policy struct {
	BaseAttempts     int
	RequiredSessions int
	MinPasses        int
	PracticeMin      int
	PracticeMax      int
	PassingScore     int
}

// DefaultPolicy returns three base attempts, three practice sessions with at
// least two passes, samples of 3-5 questions and a passing score of 70.
func DefaultPolicy() Policy {
	return Policy{
		BaseAttempts:     3,
		RequiredSessions: 3,
		MinPasses:        2,
		PracticeMin:      3,
		PracticeMax:      5,
		PassingScore:     DefaultPassingScore,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.BaseAttempts <= 0 {
		p.BaseAttempts = d.BaseAttempts
	}
	if p.RequiredSessions <= 0 {
		p.RequiredSessions = d.RequiredSessions
	}
	if p.MinPasses <= 0 {
		p.MinPasses = d.MinPasses
	}
	if p.PracticeMin <= 0 {
		p.PracticeMin = d.PracticeMin
	}
	if p.PracticeMax < p.PracticeMin {
		p.PracticeMax = max(d.PracticeMax, p.PracticeMin)
	}
	if p.PassingScore <= 0 {
		p.PassingScore = d.PassingScore
	}
	return p
}

// Allowed is the attempt ceiling: base attempts plus teacher-granted extras.
func (p Policy) Allowed(tp progress.TopicProgress) int {
	return p.BaseAttempts + tp.ExtraAttempts
}

// Locked reports whether no further attempt may start.
func (p Policy) Locked(tp progress.TopicProgress) bool {
	return tp.Passed || tp.Completed || tp.Attempts >= p.Allowed(tp)
}

// Remedial reports whether the student is in the remedial flow.
func (p Policy) Remedial(tp progress.TopicProgress) bool {
	return tp.Attempts >= p.BaseAttempts || tp.ExtraAttempts > 0
}

// PracticeComplete reports whether the practice requirement is met.
func (p Policy) PracticeComplete(tp progress.TopicProgress) bool {
	return tp.PracticeSessionsCompleted >= p.RequiredSessions && tp.PracticePasses >= p.MinPasses
}

// Phase derives the assessment phase. inAttempt is true while a started
// attempt is unsubmitted.
func (p Policy) Phase(tp progress.TopicProgress, inAttempt bool) Phase {
	switch {
	case tp.Passed:
		return PhasePassed
	case p.Locked(tp):
		return PhaseFailedLocked
	case inAttempt:
		return PhaseInAttempt
	case p.Remedial(tp) && !p.PracticeComplete(tp):
		return PhasePracticeRequired
	case p.Remedial(tp):
		return PhaseEligible
	case tp.Attempts == 0:
		return PhaseNotStarted
	default:
		return PhaseFailedRetry
	}
}

// Gate is the decision for one student and topic.
type Gate struct {
	Phase             Phase `json:"phase"`
	CanStart          bool  `json:"canStart"`
	CanSubmit         bool  `json:"canSubmit"`
	Attempts          int   `json:"attempts"`
	AllowedAttempts   int   `json:"allowedAttempts"`
	Remaining         int   `json:"remaining"`
	Locked            bool  `json:"locked"`
	Remedial          bool  `json:"remedial"`
	SessionsCompleted int   `json:"sessionsCompleted"`
	Passes            int   `json:"passes"`
	RequiredSessions  int   `json:"requiredSessions"`
	MinPasses         int   `json:"minPasses"`
	PracticeComplete  bool  `json:"practiceComplete"`
}

// Evaluate computes the gate for tp.
func (p Policy) Evaluate(tp progress.TopicProgress, inAttempt bool) Gate {
	phase := p.Phase(tp, inAttempt)
	allowed := p.Allowed(tp)
	return Gate{
		Phase:             phase,
		CanStart:          phase == PhaseNotStarted || phase == PhaseEligible || phase == PhaseFailedRetry,
		CanSubmit:         phase == PhaseInAttempt || phase == PhaseNotStarted || phase == PhaseEligible || phase == PhaseFailedRetry,
		Attempts:          tp.Attempts,
		AllowedAttempts:   allowed,
		Remaining:         max(allowed-tp.Attempts, 0),
		Locked:            p.Locked(tp),
		Remedial:          p.Remedial(tp),
		SessionsCompleted: tp.PracticeSessionsCompleted,
		Passes:            tp.PracticePasses,
		RequiredSessions:  p.RequiredSessions,
		MinPasses:         p.MinPasses,
		PracticeComplete:  p.PracticeComplete(tp),
	}
}

// ApplySubmission records a graded attempt. A pass masters the topic and
// locks it; running out of attempts completes and locks it without mastery.
// It reports whether the topic became mastered.
func (p Policy) ApplySubmission(tp *progress.TopicProgress, score int, passed bool) bool {
	tp.Attempts++
	tp.BestScore = max(tp.BestScore, score)
	if passed {
		tp.Passed = true
		tp.Completed = true
	} else if tp.Attempts >= p.Allowed(*tp) {
		tp.Completed = true
	}
	tp.Locked = p.Locked(*tp)
	tp.PracticeComplete = p.PracticeComplete(*tp)
	return passed
}

// ApplyPractice records a submitted practice session.
func (p Policy) ApplyPractice(tp *progress.TopicProgress, passed bool) {
	tp.PracticeSessionsCompleted++
	if passed {
		tp.PracticePasses++
	}
	tp.PracticeComplete = p.PracticeComplete(*tp)
}

// GrantExtra adds n attempts. For a topic not yet passed this reopens it and
// resets practice so remediation is required again.
func (p Policy) GrantExtra(tp *progress.TopicProgress, n int) {
	tp.ExtraAttempts += n
	if !tp.Passed {
		tp.Completed = false
		tp.PracticeSessionsCompleted = 0
		tp.PracticePasses = 0
	}
	tp.PracticeComplete = p.PracticeComplete(*tp)
	tp.Locked = p.Locked(*tp)
}
