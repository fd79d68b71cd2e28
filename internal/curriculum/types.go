package curriculum

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pathgen/page/internal/platform/htmlsanitize"
)

// Topic represents a curriculum topic and its schedule.
type Topic struct {
	ID            string    `json:"id" yaml:"id"`
	Name          string    `json:"name" yaml:"name"`
	Description   string    `json:"description,omitempty" yaml:"description"`
	Cluster       string    `json:"cluster,omitempty" yaml:"cluster"`
	Prerequisites []string  `json:"prerequisites" yaml:"prerequisites"`
	OpenAt        string    `json:"open_at,omitempty" yaml:"open_at"`
	CloseAt       string    `json:"close_at,omitempty" yaml:"close_at"`
	ManualLock    bool      `json:"manual_lock" yaml:"manual_lock"`
	UpdatedAt     time.Time `json:"updated_at,omitzero" yaml:"-"`
}

// Normalize trims fields and cleans the prerequisite list: blanks, duplicates
// and self-references are dropped, order is preserved.
func (t *Topic) Normalize() {
	t.ID = strings.TrimSpace(t.ID)
	t.Name = strings.TrimSpace(t.Name)
	t.Description = htmlsanitize.Sanitize(t.Description)
	if t.Name == "" {
		t.Name = t.ID
	}
	t.OpenAt = strings.TrimSpace(t.OpenAt)
	t.CloseAt = strings.TrimSpace(t.CloseAt)

	seen := make(map[string]bool, len(t.Prerequisites))
	prereqs := make([]string, 0, len(t.Prerequisites))
	for _, p := range t.Prerequisites {
		p = strings.TrimSpace(p)
		if p == "" || p == t.ID || seen[p] {
			continue
		}
		seen[p] = true
		prereqs = append(prereqs, p)
	}
	t.Prerequisites = prereqs
}

// Content types accepted for topic materials.
const (
	ContentVideo        = "video"
	ContentPresentation = "presentation"
	ContentPDF          = "pdf"
	ContentLink         = "link"
)

// Content is a learning material attached to a topic. The material itself
// lives behind Link.
type Content struct {
	ID          string    `json:"id" yaml:"id"`
	TopicID     string    `json:"topic_id" yaml:"topic_id"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description,omitempty" yaml:"description"`
	Link        string    `json:"link" yaml:"link"`
	Type        string    `json:"type" yaml:"type"`
	CreatedBy   string    `json:"created_by" yaml:"created_by"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"-"`
}

// Normalize applies content defaults and validates the link and type.
func (c *Content) Normalize() error {
	c.TopicID = strings.TrimSpace(c.TopicID)
	c.Title = strings.TrimSpace(c.Title)
	c.Description = htmlsanitize.Sanitize(c.Description)
	c.Link = strings.TrimSpace(c.Link)
	if c.TopicID == "" {
		return fmt.Errorf("topic_id is required")
	}
	if c.Link == "" {
		return fmt.Errorf("link is required")
	}
	u, err := url.Parse(c.Link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("link must be an http(s) URL: %q", c.Link)
	}
	if c.Title == "" {
		c.Title = "Untitled"
	}
	switch c.Type {
	case "":
		c.Type = ContentVideo
	case ContentVideo, ContentPresentation, ContentPDF, ContentLink:
	default:
		return fmt.Errorf("unknown content type %q", c.Type)
	}
	if c.CreatedBy == "" {
		c.CreatedBy = "teacher"
	}
	return nil
}
