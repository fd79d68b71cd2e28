package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pathgen/page/internal/events"
	"github.com/pathgen/page/internal/progress"
)

const defaultActivityLimit = 50

// studentListEntry is a student row with the derived list status.
type studentListEntry struct {
	progress.Student
	Status string `json:"status"`
}

func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := s.portal.Students().ListStudents(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]studentListEntry, 0, len(students))
	for _, st := range students {
		out = append(out, studentListEntry{Student: st, Status: st.ListStatus()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	st, err := s.portal.Students().GetStudent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type saveStudentRequest struct {
	Name  string  `json:"name"`
	Score float64 `json:"score" validate:"gte=0"`
	Final float64 `json:"final" validate:"gte=0"`
}

func (s *Server) handleSaveStudent(w http.ResponseWriter, r *http.Request) {
	var req saveStudentRequest
	if err := s.readBody(w, r, "", &req); err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.portal.SaveStudent(r.Context(), progress.Student{
		ID:    chi.URLParam(r, "id"),
		Name:  req.Name,
		Score: req.Score,
		Final: req.Final,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, studentListEntry{Student: st, Status: st.ListStatus()})
}

func (s *Server) handleBulkUpload(w http.ResponseWriter, r *http.Request) {
	res, err := s.portal.BulkUpload(r.Context(), http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	p, err := s.portal.Path(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	board, err := s.portal.Dashboard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (s *Server) handleOverrides(w http.ResponseWriter, r *http.Request) {
	list, err := s.portal.Overrides(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type contentSeenRequest struct {
	ContentID string `json:"content_id" validate:"required"`
}

func (s *Server) handleContentSeen(w http.ResponseWriter, r *http.Request) {
	var req contentSeenRequest
	if err := s.readBody(w, r, "", &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.portal.MarkContentSeen(r.Context(), chi.URLParam(r, "id"), req.ContentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type masteredRequest struct {
	TopicID string `json:"topic_id" validate:"required"`
}

func (s *Server) handleMastered(w http.ResponseWriter, r *http.Request) {
	var req masteredRequest
	if err := s.readBody(w, r, "", &req); err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.portal.MarkMastered(r.Context(), chi.URLParam(r, "id"), req.TopicID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mastered": st.Mastered})
}

func (s *Server) handleGate(w http.ResponseWriter, r *http.Request) {
	g, err := s.tests.Gate(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "topicId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit := defaultActivityLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, errBadRequest)
			return
		}
		limit = n
	}
	list, err := s.activity.ListEvents(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []events.Event{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events.ServeStream(w, r, s.hub, chi.URLParam(r, "id"), s.origins)
}
