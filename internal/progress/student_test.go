package progress_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pathgen/page/internal/progress"
)

func TestStudent_ListStatus(t *testing.T) {
	tests := []struct {
		name  string
		score float64
		final float64
		want  string
	}{
		{"exactly half", 50, 100, "PASS"},
		{"below half", 49.9, 100, "FAIL"},
		{"defaults", 0, 100, "FAIL"},
		{"small final", 5, 10, "PASS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := progress.Student{Score: tt.score, Final: tt.final}
			assert.Equal(t, tt.want, s.ListStatus())
		})
	}
}

func TestStudent_AddMastered(t *testing.T) {
	s := progress.NewStudent("s1", "Ana")
	s.InProgress = []string{"t1", "t2"}

	assert.True(t, s.AddMastered("t1"))
	assert.False(t, s.AddMastered("t1"), "second add is a no-op")
	assert.Equal(t, []string{"t1"}, s.Mastered)
	assert.Equal(t, []string{"t2"}, s.InProgress)
}

func TestStudent_MarkSeen(t *testing.T) {
	s := progress.NewStudent("s1", "")
	assert.True(t, s.MarkSeen("c1"))
	assert.False(t, s.MarkSeen("c1"))
	assert.True(t, s.HasSeen("c1"))
	assert.Equal(t, []string{"c1"}, s.ContentSeen)
}

func TestStudent_CloneIsDeep(t *testing.T) {
	s := progress.NewStudent("s1", "")
	s.Mastered = append(s.Mastered, "t1")
	s.SetProgress("t1", progress.TopicProgress{Attempts: 1})

	c := s.Clone()
	c.Mastered[0] = "changed"
	c.SetProgress("t1", progress.TopicProgress{Attempts: 9})

	assert.Equal(t, "t1", s.Mastered[0])
	assert.Equal(t, 1, s.Progress("t1").Attempts)
}

func TestNewStudent_Defaults(t *testing.T) {
	s := progress.NewStudent("s1", "Ana")
	assert.Equal(t, 100.0, s.Final)
	assert.NotNil(t, s.Scores)
	assert.NotNil(t, s.TopicProgress)
	assert.Empty(t, s.Mastered)
	assert.Equal(t, progress.TopicProgress{}, s.Progress("missing"))
}
