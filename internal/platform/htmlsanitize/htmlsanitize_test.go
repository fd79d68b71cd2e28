package htmlsanitize_test

import (
	"strings"
	"testing"

	"github.com/pathgen/page/internal/platform/htmlsanitize"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"plain text", "Great work on ratios!", "Great work on ratios!"},
		{"safe markup", "<p><strong>Bold</strong> and <em>italic</em></p>", "<p><strong>Bold</strong> and <em>italic</em></p>"},
		{"script removed", "<p>Hello</p><script>alert('xss')</script>", "<p>Hello</p>"},
		{"surrounding space trimmed", "  hi  ", "hi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := htmlsanitize.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitize_RemovesHandlersAndJavascriptLinks(t *testing.T) {
	for _, input := range []string{
		`<button onclick="alert('xss')">Click</button>`,
		`<a href="javascript:alert('xss')">Click</a>`,
	} {
		got := htmlsanitize.Sanitize(input)
		if strings.Contains(got, "alert") {
			t.Errorf("Sanitize(%q) = %q, still contains script", input, got)
		}
	}
}

func TestSanitize_KeepsSafeLinks(t *testing.T) {
	got := htmlsanitize.Sanitize(`<a href="https://example.com/ratios">Ratios</a>`)
	if !strings.Contains(got, "https://example.com/ratios") {
		t.Errorf("expected link preserved, got %q", got)
	}
}
