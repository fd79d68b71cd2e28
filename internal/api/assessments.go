package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pathgen/page/internal/assessment"
	"github.com/pathgen/page/internal/portal"
	"github.com/pathgen/page/internal/schema"
)

type studentRequest struct {
	StudentID string `json:"student_id" validate:"required"`
}

type submitRequest struct {
	StudentID string                `json:"student_id" validate:"required"`
	Answers   []assessment.Response `json:"answers"`
}

type practiceSubmitRequest struct {
	StudentID string                `json:"student_id" validate:"required"`
	SessionID string                `json:"session_id" validate:"required"`
	Answers   []assessment.Response `json:"answers"`
}

type remediationRequest struct {
	StudentID     string `json:"student_id" validate:"required"`
	TopicID       string `json:"topic_id" validate:"required"`
	ExtraAttempts int    `json:"extra_attempts" validate:"gte=0,lte=10"`
}

func (s *Server) handleListAssessments(w http.ResponseWriter, r *http.Request) {
	list, err := s.tests.Store().ListAssessments(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]assessment.Assessment, 0, len(list))
	for _, a := range list {
		out = append(out, a.Public())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetAssessment(w http.ResponseWriter, r *http.Request) {
	a, err := s.tests.Store().GetAssessment(r.Context(), chi.URLParam(r, "topicId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.Public())
}

func (s *Server) handleSaveAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	topicID := chi.URLParam(r, "topicId")
	var a assessment.Assessment
	if err := s.readBody(w, r, schema.Assessment, &a); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.portal.Topics().GetTopic(ctx, topicID); err != nil {
		writeError(w, r, err)
		return
	}
	a.TopicID = topicID
	if err := a.Normalize(); err != nil {
		writeError(w, r, errors.Join(portal.ErrInvalidInput, err))
		return
	}
	saved, err := s.tests.Store().PutAssessment(ctx, a)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("assessment saved", "topic_id", topicID, "questions", len(saved.Questions))
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleStartAssessment(w http.ResponseWriter, r *http.Request) {
	var req studentRequest
	if err := s.readBody(w, r, "", &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.tests.Start(r.Context(), req.StudentID, chi.URLParam(r, "topicId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAutosave(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := s.readBody(w, r, schema.Submission, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := s.tests.Autosave(r.Context(), req.StudentID, chi.URLParam(r, "topicId"), req.Answers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// unconfirmedBody reports a graded submission whose outcome could not be
// stored. The result is reported locked.
type unconfirmedBody struct {
	assessment.SubmitResult
	Error string `json:"error"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := s.readBody(w, r, schema.Submission, &req); err != nil {
		writeError(w, r, err)
		return
	}
	topicID := chi.URLParam(r, "topicId")
	res, err := s.tests.Submit(r.Context(), req.StudentID, topicID, req.Answers)
	if errors.Is(err, assessment.ErrUnconfirmed) {
		slog.Error("submission unconfirmed", "student_id", req.StudentID, "topic_id", topicID, "error", err)
		writeJSON(w, http.StatusInternalServerError, unconfirmedBody{SubmitResult: res, Error: assessment.ErrUnconfirmed.Error()})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSubmission(w http.ResponseWriter, r *http.Request) {
	attempts, err := s.tests.Submission(r.Context(), chi.URLParam(r, "studentId"), chi.URLParam(r, "topicId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

func (s *Server) handleSaveBank(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	topicID := chi.URLParam(r, "topicId")
	var b assessment.PracticeBank
	if err := s.readBody(w, r, schema.PracticeBank, &b); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.portal.Topics().GetTopic(ctx, topicID); err != nil {
		writeError(w, r, err)
		return
	}
	b.TopicID = topicID
	if err := b.Normalize(); err != nil {
		writeError(w, r, errors.Join(portal.ErrInvalidInput, err))
		return
	}
	saved, err := s.tests.Store().PutPracticeBank(ctx, b)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleStartPractice(w http.ResponseWriter, r *http.Request) {
	var req studentRequest
	if err := s.readBody(w, r, "", &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.tests.StartPractice(r.Context(), req.StudentID, chi.URLParam(r, "topicId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSubmitPractice(w http.ResponseWriter, r *http.Request) {
	var req practiceSubmitRequest
	if err := s.readBody(w, r, schema.PracticeSubmission, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.tests.SubmitPractice(r.Context(), req.StudentID, chi.URLParam(r, "topicId"), req.SessionID, req.Answers)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAssignRemediation(w http.ResponseWriter, r *http.Request) {
	var req remediationRequest
	if err := s.readBody(w, r, "", &req); err != nil {
		writeError(w, r, err)
		return
	}
	n := req.ExtraAttempts
	if n == 0 {
		n = 1
	}
	g, err := s.tests.AssignRemediation(r.Context(), req.StudentID, req.TopicID, n)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}
