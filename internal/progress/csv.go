package progress

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ScoreRow is one validated bulk-upload row.
type ScoreRow struct {
	Line        int
	StudentID   string
	StudentName string
	TopicID     string
	Score       float64
	Final       float64
}

// RowError describes a rejected bulk-upload row.
type RowError struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// ParseScoresCSV reads rows of student_id,student_name,topic_id,score,final.
// A header row is detected and skipped. Invalid rows are reported by line and
// do not stop parsing.
func ParseScoresCSV(r io.Reader) ([]ScoreRow, []RowError, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var rows []ScoreRow
	var rowErrs []RowError
	first := true
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				rowErrs = append(rowErrs, RowError{Line: perr.Line, Reason: perr.Err.Error()})
				continue
			}
			return nil, nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := reader.FieldPos(0)
		if first && len(rec) > 0 {
			first = false
			rec[0] = strings.TrimPrefix(rec[0], "\ufeff")
			if isScoresHeader(rec) {
				continue
			}
		}
		if blank(rec) {
			continue
		}

		row, reason := parseScoreRow(rec)
		if reason != "" {
			rowErrs = append(rowErrs, RowError{Line: line, Reason: reason})
			continue
		}
		row.Line = line
		rows = append(rows, row)
	}
	return rows, rowErrs, nil
}

func isScoresHeader(rec []string) bool {
	return strings.EqualFold(strings.TrimSpace(rec[0]), "student_id") ||
		strings.EqualFold(strings.TrimSpace(rec[0]), "id")
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func parseScoreRow(rec []string) (ScoreRow, string) {
	if len(rec) < 5 {
		return ScoreRow{}, fmt.Sprintf("expected 5 columns, got %d", len(rec))
	}
	row := ScoreRow{
		StudentID:   strings.TrimSpace(rec[0]),
		StudentName: strings.TrimSpace(rec[1]),
		TopicID:     strings.TrimSpace(rec[2]),
	}
	if row.StudentID == "" {
		return ScoreRow{}, "student_id is empty"
	}
	if row.TopicID == "" {
		return ScoreRow{}, "topic_id is empty"
	}
	var err error
	if row.Score, err = strconv.ParseFloat(strings.TrimSpace(rec[3]), 64); err != nil {
		return ScoreRow{}, fmt.Sprintf("score %q is not a number", rec[3])
	}
	if row.Final, err = strconv.ParseFloat(strings.TrimSpace(rec[4]), 64); err != nil {
		return ScoreRow{}, fmt.Sprintf("final %q is not a number", rec[4])
	}
	if row.Score < 0 || row.Final <= 0 {
		return ScoreRow{}, "score must be >= 0 and final > 0"
	}
	return row, ""
}

// BulkResult summarizes an applied upload.
type BulkResult struct {
	Updated []string   `json:"updated"`
	Errors  []RowError `json:"errors"`
}

// ApplyScores upserts each row into scores[topic] and finals[topic]. A
// non-empty student name replaces the stored one.
func ApplyScores(ctx context.Context, store Store, rows []ScoreRow) (BulkResult, error) {
	res := BulkResult{Updated: []string{}, Errors: []RowError{}}
	seen := make(map[string]bool)
	for _, row := range rows {
		_, err := store.UpdateStudent(ctx, row.StudentID, func(s *Student) error {
			if row.StudentName != "" {
				s.Name = row.StudentName
			}
			s.Scores[row.TopicID] = row.Score
			s.Finals[row.TopicID] = row.Final
			return nil
		})
		if err != nil {
			return res, fmt.Errorf("apply line %d: %w", row.Line, err)
		}
		if !seen[row.StudentID] {
			seen[row.StudentID] = true
			res.Updated = append(res.Updated, row.StudentID)
		}
	}
	return res, nil
}
