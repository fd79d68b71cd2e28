package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pathgen/page/internal/api"
	"github.com/pathgen/page/internal/assessment"
	"github.com/pathgen/page/internal/curriculum"
	"github.com/pathgen/page/internal/events"
	"github.com/pathgen/page/internal/feedback"
	"github.com/pathgen/page/internal/platform/cache"
	"github.com/pathgen/page/internal/platform/config"
	"github.com/pathgen/page/internal/platform/database"
	"github.com/pathgen/page/internal/portal"
	"github.com/pathgen/page/internal/progress"
	"github.com/pathgen/page/internal/schedule"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.close()

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      a.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := a.sweeper.Run(ctx); err != nil {
			slog.Error("override sweeper error", "error", err)
		}
	}()

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "store", cfg.Store.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// newLogger builds the process logger from the log settings. Unknown levels
// fall back to info.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// app is the wired server.
type app struct {
	handler http.Handler
	sweeper *schedule.Sweeper
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

type stores struct {
	topics    curriculum.Store
	students  progress.Store
	overrides schedule.OverrideStore
	tests     assessment.Store
	feedback  feedback.Store
	activity  events.Logger
}

func memoryStores() stores {
	return stores{
		topics:    curriculum.NewMemoryStore(),
		students:  progress.NewMemoryStore(),
		overrides: schedule.NewMemoryOverrideStore(),
		tests:     assessment.NewMemoryStore(),
		feedback:  feedback.NewMemoryStore(),
		activity:  events.NewMemoryLogger(),
	}
}

func postgresStores(db *database.DB) (stores, error) {
	var s stores
	var err error
	if s.topics, err = curriculum.NewPostgresStore(db.Pool); err != nil {
		return s, err
	}
	if s.students, err = progress.NewPostgresStore(db.Pool); err != nil {
		return s, err
	}
	if s.overrides, err = schedule.NewPostgresOverrideStore(db.Pool); err != nil {
		return s, err
	}
	if s.tests, err = assessment.NewPostgresStore(db.Pool); err != nil {
		return s, err
	}
	if s.feedback, err = feedback.NewPostgresStore(db.Pool); err != nil {
		return s, err
	}
	s.activity = events.NewPostgresLogger(db.Pool)
	return s, nil
}

// newApp connects the configured stores, seeds the curriculum and builds the
// HTTP handler.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	checks := map[string]api.Check{}

	st := memoryStores()
	if cfg.UsesPostgres() {
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := db.Migrate(ctx); err != nil {
			a.close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		if st, err = postgresStores(db); err != nil {
			a.close()
			return nil, fmt.Errorf("create stores: %w", err)
		}
		checks["database"] = db.HealthCheck
		slog.Info("database connected", "max_conns", cfg.Database.MaxConns)
	}

	if cfg.Cache.URL != "" {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect cache: %w", err)
		}
		a.closers = append(a.closers, func() { _ = c.Close() })
		st.topics = curriculum.NewCachedStore(st.topics, c, cfg.Cache.TTL)
		checks["cache"] = c.HealthCheck
		slog.Info("topic cache enabled", "ttl", cfg.Cache.TTL)
	}

	if cfg.CurriculumDir != "" {
		loader, err := curriculum.NewLoader(cfg.CurriculumDir)
		if err != nil {
			a.close()
			return nil, err
		}
		res, err := loader.Seed(ctx, st.topics, st.tests)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("seed curriculum: %w", err)
		}
		slog.Info("curriculum seeded",
			"dir", cfg.CurriculumDir,
			"topics", res.Topics,
			"contents", res.Contents,
			"assessments", res.Assessments,
			"practice_banks", res.PracticeBanks,
		)
	}

	hub := events.NewHub()
	bus := events.NewBus(st.activity, hub)
	tests := assessment.NewService(assessment.ServiceConfig{
		Store:     st.tests,
		Students:  st.students,
		Publisher: bus,
		Policy: assessment.Policy{
			BaseAttempts:     cfg.Policy.BaseAttempts,
			RequiredSessions: cfg.Policy.RequiredSessions,
			MinPasses:        cfg.Policy.MinPasses,
			PracticeMin:      cfg.Policy.PracticeMin,
			PracticeMax:      cfg.Policy.PracticeMax,
			PassingScore:     cfg.Policy.PassingScore,
		},
	})
	p := portal.New(portal.Config{
		Topics:       st.topics,
		Students:     st.students,
		Overrides:    st.overrides,
		Assessments:  tests,
		Feedback:     st.feedback,
		Publisher:    bus,
		TempOpenDays: cfg.Overrides.DefaultDays,
	})

	srv, err := api.New(api.Config{
		Portal:         p,
		Hub:            hub,
		Activity:       st.activity,
		Checks:         checks,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestLogs:    cfg.Server.RequestLogs,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.handler = srv.Routes()
	a.sweeper = schedule.NewSweeper(st.overrides, cfg.Overrides.SweepSpec, nil, slog.Default())
	return a, nil
}
