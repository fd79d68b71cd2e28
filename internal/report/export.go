package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// Table is a named grid of cells, the unit of export.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string
}

// PerformanceTable renders the performance report.
func PerformanceTable(rows []PerformanceRow) Table {
	t := Table{
		Name:   "Performance",
		Header: []string{"student_id", "name", "mastered", "attempts", "average_score", "pass_rate", "status"},
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{
			r.StudentID, r.Name, strconv.Itoa(r.Mastered), strconv.Itoa(r.Attempts),
			ftoa(r.AverageScore), ftoa(r.PassRate), r.Status,
		})
	}
	return t
}

// SummaryTable renders the summary as key/value rows.
func SummaryTable(s Summary) Table {
	return Table{
		Name:   "Summary",
		Header: []string{"metric", "value"},
		Rows: [][]string{
			{"students_total", strconv.Itoa(s.StudentsTotal)},
			{"students_pass", strconv.Itoa(s.StudentsPass)},
			{"students_fail", strconv.Itoa(s.StudentsFail)},
			{"topic_count", strconv.Itoa(s.TopicCount)},
		},
	}
}

// ItemTable renders an item analysis.
func ItemTable(a ItemAnalysis) Table {
	t := Table{
		Name:   "Items " + a.TopicID,
		Header: []string{"question_id", "type", "question", "attempts", "correct", "correct_rate"},
	}
	for _, s := range a.Items {
		t.Rows = append(t.Rows, []string{
			s.QuestionID, s.Type, s.Prompt, strconv.Itoa(s.Attempts), strconv.Itoa(s.Correct), ftoa(s.CorrectRate),
		})
	}
	return t
}

// WriteCSV writes t with its header row.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	return nil
}

// WriteXLSX writes one sheet per table. Sheet names are cut to the 31
// characters Excel allows.
func WriteXLSX(w io.Writer, tables ...Table) error {
	if len(tables) == 0 {
		return fmt.Errorf("no tables to export")
	}
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	for i, t := range tables {
		name := sheetName(t.Name, i)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}

		if err := writeRow(f, name, 1, t.Header); err != nil {
			return err
		}
		last, _ := excelize.CoordinatesToCellName(max(len(t.Header), 1), 1)
		if err := f.SetCellStyle(name, "A1", last, bold); err != nil {
			return fmt.Errorf("style header: %w", err)
		}
		for r, row := range t.Rows {
			if err := writeRow(f, name, r+2, row); err != nil {
				return err
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, cells []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	values := make([]any, len(cells))
	for i, c := range cells {
		values[i] = c
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func sheetName(name string, i int) string {
	if name == "" {
		name = fmt.Sprintf("Sheet%d", i+1)
	}
	r := []rune(name)
	if len(r) > 31 {
		r = r[:31]
	}
	return string(r)
}
