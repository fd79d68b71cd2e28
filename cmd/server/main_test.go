package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pathgen/page/internal/platform/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Port: 5000},
		Store:     config.StoreConfig{Mode: "memory"},
		Overrides: config.OverrideConfig{DefaultDays: 3, SweepSpec: "*/15 * * * *"},
		Log:       config.LogConfig{Level: "info", Format: "json"},
	}
}

func TestHealthEndpoints(t *testing.T) {
	a, err := newApp(t.Context(), testConfig())
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.close()

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{name: "healthz returns 200", path: "/healthz", wantStatus: http.StatusOK},
		{name: "readyz returns 200", path: "/readyz", wantStatus: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestNewAppSeedsCurriculum(t *testing.T) {
	cfg := testConfig()
	cfg.CurriculumDir = "../../curriculum"
	a, err := newApp(t.Context(), cfg)
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.close()

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/topics/list", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var topics []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &topics); err != nil {
		t.Fatalf("decode topics: %v", err)
	}
	found := false
	for _, tp := range topics {
		if tp.ID == "place_val_dec" {
			found = true
		}
	}
	if !found {
		t.Errorf("seeded topics %v do not include place_val_dec", topics)
	}

	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assessments/place_val_dec", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("seeded assessment status = %d", rec.Code)
	}
}

func TestNewAppRejectsMissingCurriculum(t *testing.T) {
	cfg := testConfig()
	cfg.CurriculumDir = t.TempDir() + "/missing"
	if _, err := newApp(t.Context(), cfg); err == nil {
		t.Error("newApp() should fail for a missing curriculum dir")
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"loud", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := newLogger(config.LogConfig{Level: tt.level, Format: "text"})
			ctx := context.Background()
			if !logger.Enabled(ctx, tt.want) {
				t.Errorf("level %v should be enabled", tt.want)
			}
			if tt.want > slog.LevelDebug && logger.Enabled(ctx, tt.want-1) {
				t.Errorf("level below %v should be disabled", tt.want)
			}
		})
	}
}
