package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pathgen/page/internal/curriculum"
	"github.com/pathgen/page/internal/portal"
	"github.com/pathgen/page/internal/schedule"
)

func (s *Server) handleListTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := s.portal.Topics().ListTopics(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, topics)
}

func (s *Server) handleGraphDetails(w http.ResponseWriter, r *http.Request) {
	g, err := s.portal.Graph(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	order, err := g.TopoOrder()
	if err != nil {
		order = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"nodes":      g.Details(),
		"topo_order": order,
		"cycles":     g.Cycles(),
	})
}

func (s *Server) handlePutTopic(w http.ResponseWriter, r *http.Request) {
	var t curriculum.Topic
	if err := s.readBody(w, r, "", &t); err != nil {
		writeError(w, r, err)
		return
	}
	t.ID = chi.URLParam(r, "id")
	saved, err := s.portal.PutTopic(r.Context(), t)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteTopic(w http.ResponseWriter, r *http.Request) {
	if err := s.portal.DeleteTopic(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "topic and related data deleted"})
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var u portal.ScheduleUpdate
	if err := s.readBody(w, r, "", &u); err != nil {
		writeError(w, r, err)
		return
	}
	t, err := s.portal.UpdateSchedule(r.Context(), chi.URLParam(r, "id"), u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type openTopicRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	Days      int    `json:"days" validate:"gte=0,lte=365"`
	Until     string `json:"until"`
	CreatedBy string `json:"created_by"`
}

func (s *Server) handleOpenTopic(w http.ResponseWriter, r *http.Request) {
	var req openTopicRequest
	if err := s.readBody(w, r, "", &req); err != nil {
		writeError(w, r, err)
		return
	}
	open := portal.OpenRequest{
		TopicID:   chi.URLParam(r, "id"),
		StudentID: req.StudentID,
		Days:      req.Days,
		CreatedBy: req.CreatedBy,
	}
	if req.Until != "" {
		until, ok := schedule.ParseTimestamp(req.Until)
		if !ok {
			writeError(w, r, portal.ErrInvalidInput)
			return
		}
		open.Until = until
	}
	o, err := s.portal.OpenTopic(r.Context(), open)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type openClassRequest struct {
	Days      int    `json:"days" validate:"gte=0,lte=365"`
	CreatedBy string `json:"createdBy"`
}

func (s *Server) handleOpenTopicForClass(w http.ResponseWriter, r *http.Request) {
	var req openClassRequest
	if err := s.readBody(w, r, "", &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.portal.OpenTopicForClass(r.Context(), chi.URLParam(r, "id"), req.Days, req.CreatedBy)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"topic_id": res.TopicID,
		"until":    res.Until.UTC().Format(time.RFC3339),
		"students": res.Students,
	})
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, errBadRequest)
			return
		}
		limit = n
	}
	studentID := chi.URLParam(r, "id")
	recs, err := s.portal.Recommend(r.Context(), studentID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"student_id": studentID, "recommendations": recs})
}

func (s *Server) handleListContent(w http.ResponseWriter, r *http.Request) {
	list, err := s.portal.Topics().ListContents(r.Context(), "")
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleTopicContent lists one topic's contents. A student_id query
// parameter makes the request fail while that student is in an attempt.
func (s *Server) handleTopicContent(w http.ResponseWriter, r *http.Request) {
	list, err := s.portal.Contents(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("student_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateContent(w http.ResponseWriter, r *http.Request) {
	var c curriculum.Content
	if err := s.readBody(w, r, "", &c); err != nil {
		writeError(w, r, err)
		return
	}
	c.ID = ""
	saved, err := s.portal.SaveContent(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleUpdateContent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cur, err := s.portal.Topics().GetContent(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	// Fields missing from the body keep their stored values.
	next := cur
	if err := s.readBody(w, r, "", &next); err != nil {
		writeError(w, r, err)
		return
	}
	next.ID = cur.ID
	next.CreatedAt = cur.CreatedAt
	saved, err := s.portal.SaveContent(ctx, next)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteContent(w http.ResponseWriter, r *http.Request) {
	if err := s.portal.Topics().DeleteContent(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "content deleted"})
}
