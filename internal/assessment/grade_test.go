package assessment_test

import (
	"encoding/json"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/pathgen/page/internal/assessment"
)

func TestIsCorrect(t *testing.T) {
	tests := []struct {
		name  string
		q     assessment.Question
		given assessment.AnswerKey
		want  bool
	}{
		{"choice exact", assessment.Question{Type: assessment.MultipleChoice, Answer: assessment.AnswerKey{"0.5"}}, assessment.AnswerKey{"0.5"}, true},
		{"choice trims", assessment.Question{Type: assessment.MultipleChoice, Answer: assessment.AnswerKey{"0.5"}}, assessment.AnswerKey{" 0.5 "}, true},
		{"choice wrong", assessment.Question{Type: assessment.MultipleChoice, Answer: assessment.AnswerKey{"0.5"}}, assessment.AnswerKey{"0.25"}, false},
		{"short folds case", assessment.Question{Type: assessment.ShortAnswer, Answer: assessment.AnswerKey{"Ratio"}}, assessment.AnswerKey{"  RATIO "}, true},
		{"short collapses spaces", assessment.Question{Type: assessment.ShortAnswer, Answer: assessment.AnswerKey{"place value"}}, assessment.AnswerKey{"place   value"}, true},
		{"short nfkc", assessment.Question{Type: assessment.ShortAnswer, Answer: assessment.AnswerKey{"ABC"}}, assessment.AnswerKey{"ＡＢＣ"}, true},
		{"short empty never matches", assessment.Question{Type: assessment.ShortAnswer, Answer: assessment.AnswerKey{" "}}, assessment.AnswerKey{""}, false},
		{"numeric equal", assessment.Question{Type: assessment.Numeric, Answer: assessment.AnswerKey{"0.75"}}, assessment.AnswerKey{".75"}, true},
		{"numeric trailing zero", assessment.Question{Type: assessment.Numeric, Answer: assessment.AnswerKey{"2"}}, assessment.AnswerKey{"2.000"}, true},
		{"numeric junk", assessment.Question{Type: assessment.Numeric, Answer: assessment.AnswerKey{"2"}}, assessment.AnswerKey{"two"}, false},
		{"ordering", assessment.Question{Type: assessment.Ordering, Answer: assessment.AnswerKey{"0.1", "0.25", "0.5"}}, assessment.AnswerKey{"0.1", "0.25", "0.5"}, true},
		{"ordering swapped", assessment.Question{Type: assessment.Ordering, Answer: assessment.AnswerKey{"0.1", "0.25", "0.5"}}, assessment.AnswerKey{"0.25", "0.1", "0.5"}, false},
		{"ordering short", assessment.Question{Type: assessment.Ordering, Answer: assessment.AnswerKey{"a", "b"}}, assessment.AnswerKey{"a"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, assessment.IsCorrect(tt.q, tt.given))
		})
	}
}

func TestGrade(t *testing.T) {
	qs := []assessment.Question{
		{ID: "q1", Type: assessment.MultipleChoice, Answer: assessment.AnswerKey{"a"}, Points: 1},
		{ID: "q2", Type: assessment.Numeric, Answer: assessment.AnswerKey{"3"}, Points: 2},
		{ID: "q3", Type: assessment.ShortAnswer, Answer: assessment.AnswerKey{"half"}, Points: 1},
	}

	res := assessment.Grade(qs, []assessment.Response{
		{QuestionID: "q1", Answer: assessment.AnswerKey{"a"}},
		{QuestionID: "q2", Answer: assessment.AnswerKey{"3"}},
		{QuestionID: "zz", Answer: assessment.AnswerKey{"ignored"}},
	}, 70)

	assert.Equal(t, 75, res.Score)
	assert.True(t, res.Passed)
	assert.Equal(t, 3.0, res.Earned)
	assert.Equal(t, 4.0, res.Total)
	require.Len(t, res.Items, 3)
	assert.False(t, res.Items[2].Correct, "unanswered is wrong")

	res = assessment.Grade(qs, nil, 70)
	assert.Zero(t, res.Score)
	assert.False(t, res.Passed)
}

func TestAnswerKey_Wire(t *testing.T) {
	var q assessment.Question
	require.NoError(t, json.Unmarshal([]byte(`{"question_id":"q1","type":"numeric","answer":2.5}`), &q))
	assert.Equal(t, assessment.AnswerKey{"2.5"}, q.Answer)

	require.NoError(t, json.Unmarshal([]byte(`{"answer":["b","a"]}`), &q))
	assert.Equal(t, assessment.AnswerKey{"b", "a"}, q.Answer)

	out, err := json.Marshal(assessment.AnswerKey{"x"})
	require.NoError(t, err)
	assert.JSONEq(t, `"x"`, string(out))

	var doc struct {
		Answer assessment.AnswerKey `yaml:"answer"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("answer: [one, two]\n"), &doc))
	assert.Equal(t, assessment.AnswerKey{"one", "two"}, doc.Answer)
	require.NoError(t, yaml.Unmarshal([]byte("answer: 7\n"), &doc))
	assert.Equal(t, assessment.AnswerKey{"7"}, doc.Answer)
}

func TestAssessment_Normalize(t *testing.T) {
	a := assessment.Assessment{
		TopicID: "decimals",
		Questions: []assessment.Question{
			{Prompt: "0.5 = ?", Choices: []string{"1/2", "1/3"}, Answer: assessment.AnswerKey{"1/2"}},
		},
	}
	require.NoError(t, a.Normalize())
	assert.Equal(t, 70, a.PassingScore)
	assert.Equal(t, "q1", a.Questions[0].ID)
	assert.Equal(t, assessment.MultipleChoice, a.Questions[0].Type)
	assert.Equal(t, 1.0, a.Questions[0].Points)

	bad := []assessment.Assessment{
		{},
		{TopicID: "t"},
		{TopicID: "t", Questions: []assessment.Question{{Choices: []string{"a", "b"}, Answer: assessment.AnswerKey{"c"}}}},
		{TopicID: "t", Questions: []assessment.Question{{Type: assessment.Numeric, Answer: assessment.AnswerKey{"x"}}}},
		{TopicID: "t", Questions: []assessment.Question{{Type: "essay", Answer: assessment.AnswerKey{"x"}}}},
		{TopicID: "t", PassingScore: 120, Questions: []assessment.Question{{Type: assessment.ShortAnswer, Answer: assessment.AnswerKey{"x"}}}},
		{TopicID: "t", Questions: []assessment.Question{
			{ID: "a", Type: assessment.ShortAnswer, Answer: assessment.AnswerKey{"x"}},
			{ID: "a", Type: assessment.ShortAnswer, Answer: assessment.AnswerKey{"y"}},
		}},
	}
	for i, b := range bad {
		assert.Error(t, b.Normalize(), "case %d", i)
	}
}

func TestAssessment_PublicStripsAnswers(t *testing.T) {
	a := assessment.Assessment{
		TopicID:   "t",
		Questions: []assessment.Question{{ID: "q1", Answer: assessment.AnswerKey{"secret"}, Choices: []string{"secret", "other"}}},
	}
	pub := a.Public()
	assert.Empty(t, pub.Questions[0].Answer)
	assert.Equal(t, assessment.AnswerKey{"secret"}, a.Questions[0].Answer, "original untouched")
}

func TestSampler_Sample(t *testing.T) {
	bank := make([]assessment.Question, 10)
	for i := range bank {
		bank[i] = assessment.Question{ID: string(rune('a' + i))}
	}
	s := assessment.NewSampler(rand.New(rand.NewPCG(1, 2)))

	for range 50 {
		got := s.Sample(bank, 3, 5)
		assert.GreaterOrEqual(t, len(got), 3)
		assert.LessOrEqual(t, len(got), 5)
		seen := map[string]bool{}
		for _, q := range got {
			assert.False(t, seen[q.ID], "duplicate %s", q.ID)
			seen[q.ID] = true
		}
	}

	assert.Len(t, s.Sample(bank[:2], 3, 5), 2, "capped by bank size")
	assert.Nil(t, s.Sample(nil, 3, 5))
}
