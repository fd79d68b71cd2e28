package assessment_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pathgen/page/internal/assessment"
	"github.com/pathgen/page/internal/progress"
)

func TestPolicy_Phase(t *testing.T) {
	p := assessment.DefaultPolicy()

	tests := []struct {
		name      string
		tp        progress.TopicProgress
		inAttempt bool
		want      assessment.Phase
		canStart  bool
		canSubmit bool
	}{
		{"fresh", progress.TopicProgress{}, false, assessment.PhaseNotStarted, true, true},
		{"started", progress.TopicProgress{}, true, assessment.PhaseInAttempt, false, true},
		{"one failure", progress.TopicProgress{Attempts: 1}, false, assessment.PhaseFailedRetry, true, true},
		{"passed", progress.TopicProgress{Attempts: 1, Passed: true, Completed: true}, false, assessment.PhasePassed, false, false},
		{"exhausted", progress.TopicProgress{Attempts: 3}, false, assessment.PhaseFailedLocked, false, false},
		{"completed without passing", progress.TopicProgress{Attempts: 1, Completed: true}, false, assessment.PhaseFailedLocked, false, false},
		{
			"extra granted, practice missing",
			progress.TopicProgress{Attempts: 3, ExtraAttempts: 1},
			false, assessment.PhasePracticeRequired, false, false,
		},
		{
			"extra granted, practice done",
			progress.TopicProgress{Attempts: 3, ExtraAttempts: 1, PracticeSessionsCompleted: 3, PracticePasses: 2},
			false, assessment.PhaseEligible, true, true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := p.Evaluate(tt.tp, tt.inAttempt)
			assert.Equal(t, tt.want, g.Phase)
			assert.Equal(t, tt.canStart, g.CanStart, "canStart")
			assert.Equal(t, tt.canSubmit, g.CanSubmit, "canSubmit")
		})
	}
}

func TestPolicy_AllowedAndLocked(t *testing.T) {
	p := assessment.DefaultPolicy()

	for extra := 0; extra < 4; extra++ {
		for attempts := 0; attempts < 8; attempts++ {
			for _, passed := range []bool{false, true} {
				tp := progress.TopicProgress{Attempts: attempts, ExtraAttempts: extra, Passed: passed}
				g := p.Evaluate(tp, false)
				assert.Equal(t, 3+extra, g.AllowedAttempts)
				if g.Locked {
					assert.True(t, attempts >= g.AllowedAttempts || passed || tp.Completed)
				}
			}
		}
	}
}

func TestPolicy_ThreeFailuresLock(t *testing.T) {
	p := assessment.DefaultPolicy()
	g := p.Evaluate(progress.TopicProgress{Attempts: 3, ExtraAttempts: 0, Passed: false}, false)

	assert.True(t, g.Locked)
	assert.False(t, g.CanStart)
	assert.Equal(t, 0, g.Remaining)
}

func TestPolicy_IncompletePracticeBlocksAssessment(t *testing.T) {
	p := assessment.DefaultPolicy()
	tp := progress.TopicProgress{
		Attempts:                  3,
		ExtraAttempts:             1,
		PracticeSessionsCompleted: 2,
		PracticePasses:            1,
	}

	g := p.Evaluate(tp, false)
	assert.True(t, g.Remedial)
	assert.False(t, g.PracticeComplete)
	assert.False(t, g.CanStart)
	assert.Equal(t, assessment.PhasePracticeRequired, g.Phase)

	// Three sessions but one pass is still not enough.
	tp.PracticeSessionsCompleted = 3
	assert.False(t, p.Evaluate(tp, false).PracticeComplete)
}

func TestPolicy_ApplySubmission(t *testing.T) {
	p := assessment.DefaultPolicy()

	var tp progress.TopicProgress
	p.ApplySubmission(&tp, 40, false)
	p.ApplySubmission(&tp, 55, false)
	assert.Equal(t, 2, tp.Attempts)
	assert.Equal(t, 55, tp.BestScore)
	assert.False(t, tp.Locked)

	p.ApplySubmission(&tp, 50, false)
	assert.True(t, tp.Locked)
	assert.True(t, tp.Completed)
	assert.False(t, tp.Passed)

	var won progress.TopicProgress
	assert.True(t, p.ApplySubmission(&won, 90, true))
	assert.True(t, won.Passed)
	assert.True(t, won.Locked)
}

func TestPolicy_GrantExtraReopens(t *testing.T) {
	p := assessment.DefaultPolicy()
	tp := progress.TopicProgress{Attempts: 3, Completed: true, Locked: true, PracticeSessionsCompleted: 3, PracticePasses: 3}

	p.GrantExtra(&tp, 2)
	assert.Equal(t, 2, tp.ExtraAttempts)
	assert.False(t, tp.Completed)
	assert.False(t, tp.Locked)
	assert.Zero(t, tp.PracticeSessionsCompleted)
	assert.Equal(t, assessment.PhasePracticeRequired, p.Phase(tp, false))

	passed := progress.TopicProgress{Attempts: 1, Passed: true, Completed: true, Locked: true}
	p.GrantExtra(&passed, 1)
	assert.True(t, passed.Locked, "a passed topic stays locked")
}

func TestPolicy_ApplyPractice(t *testing.T) {
	p := assessment.DefaultPolicy()
	var tp progress.TopicProgress

	p.ApplyPractice(&tp, true)
	p.ApplyPractice(&tp, false)
	assert.False(t, tp.PracticeComplete)
	p.ApplyPractice(&tp, true)
	assert.Equal(t, 3, tp.PracticeSessionsCompleted)
	assert.Equal(t, 2, tp.PracticePasses)
	assert.True(t, tp.PracticeComplete)
}
