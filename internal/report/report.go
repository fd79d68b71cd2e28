// Package report builds teacher reports from student records and recorded
// attempts.
package report

import (
	"math"
	"sort"
	"strconv"

	"github.com/pathgen/page/internal/assessment"
	"github.com/pathgen/page/internal/progress"
)

// Summary is the teacher dashboard headline.
type Summary struct {
	StudentsTotal int `json:"students_total"`
	StudentsPass  int `json:"students_pass"`
	StudentsFail  int `json:"students_fail"`
	TopicCount    int `json:"topic_count"`
}

// Summarize counts students by list status.
func Summarize(students []progress.Student, topicCount int) Summary {
	s := Summary{StudentsTotal: len(students), TopicCount: topicCount}
	for _, st := range students {
		if st.ListStatus() == "PASS" {
			s.StudentsPass++
		} else {
			s.StudentsFail++
		}
	}
	return s
}

// PerformanceRow is one student's line in the performance report.
type PerformanceRow struct {
	StudentID    string  `json:"student_id"`
	Name         string  `json:"name"`
	Mastered     int     `json:"mastered"`
	Attempts     int     `json:"attempts"`
	AverageScore float64 `json:"average_score"`
	PassRate     float64 `json:"pass_rate"`
	Status       string  `json:"status"`
}

// Performance reports every student, ordered by id.
func Performance(students []progress.Student, attempts []assessment.Attempt) []PerformanceRow {
	type agg struct {
		n, passed int
		total     int
	}
	by := make(map[string]*agg)
	for _, a := range attempts {
		g := by[a.StudentID]
		if g == nil {
			g = &agg{}
			by[a.StudentID] = g
		}
		g.n++
		g.total += a.Score
		if a.Passed {
			g.passed++
		}
	}

	rows := make([]PerformanceRow, 0, len(students))
	for _, st := range students {
		row := PerformanceRow{
			StudentID: st.ID,
			Name:      st.Name,
			Mastered:  len(st.Mastered),
			Status:    st.ListStatus(),
		}
		if g := by[st.ID]; g != nil {
			row.Attempts = g.n
			row.AverageScore = round2(float64(g.total) / float64(g.n))
			row.PassRate = round2(float64(g.passed) / float64(g.n))
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].StudentID < rows[j].StudentID })
	return rows
}

// TopicAttempts groups one student's attempts on a topic.
type TopicAttempts struct {
	TopicID   string               `json:"topic_id"`
	BestScore int                  `json:"best_score"`
	Passed    bool                 `json:"passed"`
	Attempts  []assessment.Attempt `json:"attempts"`
}

// StudentAttempts groups attempts by topic, each group sorted by attempt
// number.
func StudentAttempts(attempts []assessment.Attempt) []TopicAttempts {
	by := make(map[string]*TopicAttempts)
	var order []string
	for _, a := range attempts {
		g := by[a.TopicID]
		if g == nil {
			g = &TopicAttempts{TopicID: a.TopicID}
			by[a.TopicID] = g
			order = append(order, a.TopicID)
		}
		g.Attempts = append(g.Attempts, a)
		g.BestScore = max(g.BestScore, a.Score)
		g.Passed = g.Passed || a.Passed
	}
	sort.Strings(order)

	out := make([]TopicAttempts, 0, len(order))
	for _, id := range order {
		g := by[id]
		sort.Slice(g.Attempts, func(i, j int) bool { return g.Attempts[i].AttemptNumber < g.Attempts[j].AttemptNumber })
		out = append(out, *g)
	}
	return out
}

// ItemStat is the per-question outcome across attempts.
type ItemStat struct {
	QuestionID  string  `json:"question_id"`
	Prompt      string  `json:"question"`
	Type        string  `json:"type"`
	Attempts    int     `json:"attempts"`
	Correct     int     `json:"correct"`
	CorrectRate float64 `json:"correct_rate"`
}

// ItemAnalysis is the item report of one assessment.
type ItemAnalysis struct {
	TopicID      string     `json:"topic_id"`
	Attempts     int        `json:"attempts"`
	AverageScore float64    `json:"average_score"`
	Items        []ItemStat `json:"items"`
}

// AnalyzeItems computes per-question correctness for a over attempts.
// Questions no longer in the assessment are ignored.
func AnalyzeItems(a assessment.Assessment, attempts []assessment.Attempt) ItemAnalysis {
	stats := make([]ItemStat, len(a.Questions))
	index := make(map[string]int, len(a.Questions))
	for i, q := range a.Questions {
		stats[i] = ItemStat{QuestionID: q.ID, Prompt: q.Prompt, Type: q.Type}
		index[q.ID] = i
	}

	out := ItemAnalysis{TopicID: a.TopicID}
	total := 0
	for _, at := range attempts {
		if at.TopicID != a.TopicID {
			continue
		}
		out.Attempts++
		total += at.Score
		for _, item := range at.Items {
			i, ok := index[item.QuestionID]
			if !ok {
				continue
			}
			stats[i].Attempts++
			if item.Correct {
				stats[i].Correct++
			}
		}
	}
	for i := range stats {
		if stats[i].Attempts > 0 {
			stats[i].CorrectRate = round2(float64(stats[i].Correct) / float64(stats[i].Attempts))
		}
	}
	if out.Attempts > 0 {
		out.AverageScore = round2(float64(total) / float64(out.Attempts))
	}
	out.Items = stats
	return out
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
