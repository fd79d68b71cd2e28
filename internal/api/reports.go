package api

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pathgen/page/internal/feedback"
	"github.com/pathgen/page/internal/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.portal.Summary(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// handlePerformance serves the performance report as JSON, or as a CSV or
// XLSX download when format is set.
func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		rows, err := s.portal.Performance(ctx)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if rows == nil {
			rows = []report.PerformanceRow{}
		}
		writeJSON(w, http.StatusOK, rows)
	case "csv", "xlsx":
		tables, err := s.portal.PerformanceTables(ctx)
		if err != nil {
			writeError(w, r, err)
			return
		}
		var buf bytes.Buffer
		contentType := "text/csv"
		if format == "csv" {
			err = report.WriteCSV(&buf, tables[0])
		} else {
			contentType = xlsxContentType
			err = report.WriteXLSX(&buf, tables...)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=performance.%s", format))
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(buf.Bytes()); err != nil {
			slog.Debug("write export failed", "error", err)
		}
	default:
		writeError(w, r, fmt.Errorf("%w: unknown format %q", errBadRequest, format))
	}
}

func (s *Server) handleStudentAttempts(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "id")
	list, err := s.portal.StudentAttempts(r.Context(), studentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []report.TopicAttempts{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"student_id": studentID, "topics": list})
}

func (s *Server) handleItemAnalysis(w http.ResponseWriter, r *http.Request) {
	a, err := s.portal.ItemAnalysis(r.Context(), chi.URLParam(r, "topicId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handlePostFeedback(w http.ResponseWriter, r *http.Request) {
	var f feedback.Feedback
	if err := s.readBody(w, r, "", &f); err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := s.portal.PostFeedback(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleAllFeedback(w http.ResponseWriter, r *http.Request) {
	s.listFeedback(w, r, "")
}

func (s *Server) handleStudentFeedback(w http.ResponseWriter, r *http.Request) {
	studentID := r.URL.Query().Get("student_id")
	if studentID == "" {
		writeError(w, r, fmt.Errorf("%w: student_id is required", errBadRequest))
		return
	}
	s.listFeedback(w, r, studentID)
}

func (s *Server) listFeedback(w http.ResponseWriter, r *http.Request, studentID string) {
	list, err := s.portal.ListFeedback(r.Context(), studentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []feedback.Feedback{}
	}
	writeJSON(w, http.StatusOK, list)
}
