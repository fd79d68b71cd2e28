// Package api serves the portal over JSON HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pathgen/page/internal/assessment"
	"github.com/pathgen/page/internal/events"
	"github.com/pathgen/page/internal/portal"
	"github.com/pathgen/page/internal/schema"
)

const readyTimeout = 2 * time.Second

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

// Config holds dependencies for the API server.
type Config struct {
	Portal         *portal.Service
	Schemas        *schema.Validator // compiled on demand when nil
	Hub            *events.Hub
	Activity       events.Logger
	Checks         map[string]Check // run by /readyz
	AllowedOrigins []string
	RequestLogs    bool
}

// Server holds the HTTP handlers.
type Server struct {
	portal   *portal.Service
	tests    *assessment.Service
	schemas  *schema.Validator
	hub      *events.Hub
	activity events.Logger
	checks   map[string]Check
	origins  []string
	logs     bool
}

// New creates an API server.
func New(cfg Config) (*Server, error) {
	schemas := cfg.Schemas
	if schemas == nil {
		var err error
		if schemas, err = schema.New(); err != nil {
			return nil, err
		}
	}
	p := cfg.Portal
	if p == nil {
		p = portal.New(portal.Config{})
	}
	hub := cfg.Hub
	if hub == nil {
		hub = events.NewHub()
	}
	activity := cfg.Activity
	if activity == nil {
		activity = events.NewMemoryLogger()
	}
	return &Server{
		portal:   p,
		tests:    p.Assessments(),
		schemas:  schemas,
		hub:      hub,
		activity: activity,
		checks:   cfg.Checks,
		origins:  cfg.AllowedOrigins,
		logs:     cfg.RequestLogs,
	}, nil
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if s.logs {
		r.Use(requestLogger)
	}
	r.Use(middleware.Recoverer)
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	r.Route("/topics", func(r chi.Router) {
		r.Get("/list", s.handleListTopics)
		r.Get("/graph/details", s.handleGraphDetails)
		r.Post("/{id}", s.handlePutTopic)
		r.Delete("/{id}", s.handleDeleteTopic)
		r.Post("/{id}/schedule", s.handleSchedule)
		r.Post("/{id}/temporary-open", s.handleOpenTopic)
		r.Post("/{id}/temporary-open-class", s.handleOpenTopicForClass)
	})
	r.Get("/recommend/{id}", s.handleRecommend)

	r.Route("/content", func(r chi.Router) {
		r.Get("/", s.handleListContent)
		r.Post("/", s.handleCreateContent)
		r.Get("/{id}", s.handleTopicContent)
		r.Post("/{id}", s.handleUpdateContent)
		r.Delete("/{id}", s.handleDeleteContent)
	})

	r.Route("/students", func(r chi.Router) {
		r.Get("/list", s.handleListStudents)
		r.Post("/bulk_upload", s.handleBulkUpload)
		r.Get("/{id}", s.handleGetStudent)
		r.Post("/{id}", s.handleSaveStudent)
		r.Get("/{id}/path", s.handlePath)
		r.Get("/{id}/dashboard", s.handleDashboard)
		r.Get("/{id}/overrides", s.handleOverrides)
		r.Post("/{id}/content_seen", s.handleContentSeen)
		r.Post("/{id}/mastered", s.handleMastered)
		r.Get("/{id}/topics/{topicId}/gate", s.handleGate)
		r.Get("/{id}/activity", s.handleActivity)
		r.Get("/{id}/events", s.handleEvents)
	})

	r.Route("/assessments", func(r chi.Router) {
		r.Get("/", s.handleListAssessments)
		r.Get("/{topicId}", s.handleGetAssessment)
		r.Post("/{topicId}", s.handleSaveAssessment)
		r.Post("/{topicId}/start", s.handleStartAssessment)
		r.Post("/{topicId}/autosave", s.handleAutosave)
		r.Post("/{topicId}/submit", s.handleSubmit)
		r.Get("/{topicId}/submission/{studentId}", s.handleSubmission)
	})

	r.Route("/practice", func(r chi.Router) {
		r.Post("/{topicId}/bank", s.handleSaveBank)
		r.Post("/{topicId}/start", s.handleStartPractice)
		r.Post("/{topicId}/submit", s.handleSubmitPractice)
	})

	r.Post("/teachers/assign-remediation", s.handleAssignRemediation)
	r.Get("/teacher/summary", s.handleSummary)

	r.Route("/reports", func(r chi.Router) {
		r.Get("/performance", s.handlePerformance)
		r.Get("/student/{id}/attempts", s.handleStudentAttempts)
		r.Get("/assessment/{topicId}/item-analysis", s.handleItemAnalysis)
	})

	r.Route("/feedback", func(r chi.Router) {
		r.Post("/", s.handlePostFeedback)
		r.Get("/all", s.handleAllFeedback)
		r.Get("/student", s.handleStudentFeedback)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	var failed []string
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			slog.Warn("readiness check failed", "check", name, "error", err)
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
