package assessment

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const numericTolerance = 1e-9

// Result is a graded submission.
type Result struct {
	Score  int          `json:"score"`
	Passed bool         `json:"passed"`
	Earned float64      `json:"earned_points"`
	Total  float64      `json:"total_points"`
	Items  []ItemResult `json:"items"`
}

// Grade scores responses against questions. Unanswered questions are wrong;
// responses to unknown questions are ignored.
func Grade(questions []Question, responses []Response, passingScore int) Result {
	byID := make(map[string]AnswerKey, len(responses))
	for _, r := range responses {
		byID[r.QuestionID] = r.Answer
	}

	res := Result{Items: make([]ItemResult, 0, len(questions))}
	for _, q := range questions {
		res.Total += q.Points
		given, answered := byID[q.ID]
		correct := answered && IsCorrect(q, given)
		item := ItemResult{QuestionID: q.ID, Correct: correct}
		if correct {
			item.Points = q.Points
			res.Earned += q.Points
		}
		res.Items = append(res.Items, item)
	}

	if res.Total > 0 {
		res.Score = int(math.Round(100 * res.Earned / res.Total))
	}
	res.Passed = res.Score >= passingScore
	return res
}

// IsCorrect checks one answer against q's key.
func IsCorrect(q Question, given AnswerKey) bool {
	switch q.Type {
	case MultipleChoice:
		return strings.TrimSpace(given.First()) == strings.TrimSpace(q.Answer.First())
	case ShortAnswer:
		want := NormalizeText(q.Answer.First())
		return want != "" && NormalizeText(given.First()) == want
	case Numeric:
		g, err1 := strconv.ParseFloat(strings.TrimSpace(given.First()), 64)
		w, err2 := strconv.ParseFloat(strings.TrimSpace(q.Answer.First()), 64)
		return err1 == nil && err2 == nil && math.Abs(g-w) <= numericTolerance
	case Ordering:
		if len(given) != len(q.Answer) {
			return false
		}
		for i := range given {
			if NormalizeText(given[i]) != NormalizeText(q.Answer[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// NormalizeText applies NFKC normalization and case folding, then collapses
// runs of whitespace to single spaces.
func NormalizeText(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}
