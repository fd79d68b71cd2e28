package portal

import (
	"context"
	"fmt"

	"github.com/pathgen/page/internal/assessment"
	"github.com/pathgen/page/internal/report"
)

// Summary returns the teacher dashboard headline counts.
func (s *Service) Summary(ctx context.Context) (report.Summary, error) {
	students, err := s.students.ListStudents(ctx)
	if err != nil {
		return report.Summary{}, fmt.Errorf("list students: %w", err)
	}
	topics, err := s.topics.ListTopics(ctx)
	if err != nil {
		return report.Summary{}, fmt.Errorf("list topics: %w", err)
	}
	return report.Summarize(students, len(topics)), nil
}

// Performance returns one row per student.
func (s *Service) Performance(ctx context.Context) ([]report.PerformanceRow, error) {
	students, err := s.students.ListStudents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	attempts, err := s.assessments.Store().ListAttempts(ctx, assessment.AttemptFilter{})
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return report.Performance(students, attempts), nil
}

// PerformanceTables returns the exportable performance and summary tables.
func (s *Service) PerformanceTables(ctx context.Context) ([]report.Table, error) {
	rows, err := s.Performance(ctx)
	if err != nil {
		return nil, err
	}
	summary, err := s.Summary(ctx)
	if err != nil {
		return nil, err
	}
	return []report.Table{report.PerformanceTable(rows), report.SummaryTable(summary)}, nil
}

// StudentAttempts returns the student's attempts grouped by topic.
func (s *Service) StudentAttempts(ctx context.Context, studentID string) ([]report.TopicAttempts, error) {
	attempts, err := s.assessments.Store().ListAttempts(ctx, assessment.AttemptFilter{StudentID: studentID})
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return report.StudentAttempts(attempts), nil
}

// ItemAnalysis reports per-question correctness for a topic's assessment.
func (s *Service) ItemAnalysis(ctx context.Context, topicID string) (report.ItemAnalysis, error) {
	a, err := s.assessments.Store().GetAssessment(ctx, topicID)
	if err != nil {
		return report.ItemAnalysis{}, err
	}
	attempts, err := s.assessments.Store().ListAttempts(ctx, assessment.AttemptFilter{TopicID: topicID})
	if err != nil {
		return report.ItemAnalysis{}, fmt.Errorf("list attempts: %w", err)
	}
	return report.AnalyzeItems(a, attempts), nil
}
