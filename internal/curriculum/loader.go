package curriculum

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pathgen/page/internal/assessment"
)

// Seed file suffixes. Any other .yaml/.yml file holds topics: one topic, a
// list of topics, or a mapping with a "topics" list.
const (
	assessmentSuffix = ".assessment.yaml"
	practiceSuffix   = ".practice.yaml"
	contentSuffix    = ".content.yaml"
	teachingSuffix   = ".teaching.md"
)

// Loader loads curriculum seed files from a directory tree.
type Loader struct {
	rootDir     string
	topics      map[string]Topic
	contents    []Content
	assessments map[string]assessment.Assessment
	banks       map[string]assessment.PracticeBank
	mu          sync.RWMutex
}

// NewLoader creates a loader and reads everything under rootDir. Files that
// fail to parse are logged and skipped.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir:     rootDir,
		topics:      make(map[string]Topic),
		assessments: make(map[string]assessment.Assessment),
		banks:       make(map[string]assessment.PracticeBank),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading curriculum: %w", err)
	}

	slog.Info("curriculum loaded",
		"topics", len(l.topics),
		"contents", len(l.contents),
		"assessments", len(l.assessments),
		"practice_banks", len(l.banks),
	)
	return l, nil
}

// GetTopic returns a topic by ID.
func (l *Loader) GetTopic(id string) (Topic, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.topics[id]
	return t, ok
}

// AllTopics returns all loaded topics ordered by name.
func (l *Loader) AllTopics() []Topic {
	l.mu.RLock()
	defer l.mu.RUnlock()
	topics := make([]Topic, 0, len(l.topics))
	for _, t := range l.topics {
		topics = append(topics, t)
	}
	SortTopics(topics)
	return topics
}

// Contents returns all loaded contents.
func (l *Loader) Contents() []Content {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Content(nil), l.contents...)
}

// Assessments returns the loaded assessments ordered by topic.
func (l *Loader) Assessments() []assessment.Assessment {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]assessment.Assessment, 0, len(l.assessments))
	for _, a := range l.assessments {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TopicID < out[j].TopicID })
	return out
}

// PracticeBanks returns the loaded practice banks ordered by topic.
func (l *Loader) PracticeBanks() []assessment.PracticeBank {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]assessment.PracticeBank, 0, len(l.banks))
	for _, b := range l.banks {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TopicID < out[j].TopicID })
	return out
}

// Graph builds the prerequisite graph of the loaded topics.
func (l *Loader) Graph() *Graph {
	return BuildGraph(l.AllTopics())
}

func (l *Loader) loadAll() error {
	if _, err := os.Stat(l.rootDir); err != nil {
		return err
	}
	var notes []string
	err := filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}

		switch {
		case strings.HasSuffix(path, teachingSuffix):
			// Notes attach to topics, so read them last.
			notes = append(notes, path)
		case strings.HasSuffix(path, assessmentSuffix):
			return l.loadAssessment(path)
		case strings.HasSuffix(path, practiceSuffix):
			return l.loadPracticeBank(path)
		case strings.HasSuffix(path, contentSuffix):
			return l.loadContents(path)
		case strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml"):
			return l.loadTopics(path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, path := range notes {
		if err := l.loadTeachingNotes(path); err != nil {
			return err
		}
	}
	return nil
}

// topicIDFromPath returns the file name up to its seed suffix.
func topicIDFromPath(path, suffix string) string {
	return strings.TrimSuffix(filepath.Base(path), suffix)
}

func (l *Loader) loadTopics(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil || len(root.Content) == 0 {
		slog.Warn("skipping invalid topic YAML", "path", path, "error", err)
		return nil
	}
	doc := root.Content[0]

	var topics []Topic
	switch doc.Kind {
	case yaml.SequenceNode:
		err = doc.Decode(&topics)
	case yaml.MappingNode:
		var wrapped struct {
			Topics []Topic `yaml:"topics"`
		}
		if err = doc.Decode(&wrapped); err == nil && len(wrapped.Topics) > 0 {
			topics = wrapped.Topics
			break
		}
		var single Topic
		if err = doc.Decode(&single); err == nil {
			topics = []Topic{single}
		}
	}
	if err != nil {
		slog.Warn("skipping invalid topic YAML", "path", path, "error", err)
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range topics {
		t.Normalize()
		if t.ID == "" {
			continue // Not a topic
		}
		l.topics[t.ID] = t
	}
	return nil
}

func (l *Loader) loadAssessment(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var a assessment.Assessment
	if err := yaml.Unmarshal(data, &a); err != nil {
		slog.Warn("skipping invalid assessment YAML", "path", path, "error", err)
		return nil
	}
	if a.TopicID == "" {
		a.TopicID = topicIDFromPath(path, assessmentSuffix)
	}
	if err := a.Normalize(); err != nil {
		slog.Warn("skipping invalid assessment", "path", path, "error", err)
		return nil
	}

	l.mu.Lock()
	l.assessments[a.TopicID] = a
	l.mu.Unlock()
	return nil
}

func (l *Loader) loadPracticeBank(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var b assessment.PracticeBank
	if err := yaml.Unmarshal(data, &b); err != nil {
		slog.Warn("skipping invalid practice YAML", "path", path, "error", err)
		return nil
	}
	if b.TopicID == "" {
		b.TopicID = topicIDFromPath(path, practiceSuffix)
	}
	if err := b.Normalize(); err != nil {
		slog.Warn("skipping invalid practice bank", "path", path, "error", err)
		return nil
	}

	l.mu.Lock()
	l.banks[b.TopicID] = b
	l.mu.Unlock()
	return nil
}

func (l *Loader) loadContents(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var items []Content
	if err := yaml.Unmarshal(data, &items); err != nil {
		slog.Warn("skipping invalid content YAML", "path", path, "error", err)
		return nil
	}

	fallback := topicIDFromPath(path, contentSuffix)
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, c := range items {
		if c.TopicID == "" {
			c.TopicID = fallback
		}
		if c.ID == "" {
			// Seeded contents get stable ids.
			c.ID = fmt.Sprintf("%s-%d", c.TopicID, i+1)
		}
		if err := c.Normalize(); err != nil {
			slog.Warn("skipping invalid content", "path", path, "title", c.Title, "error", err)
			continue
		}
		l.contents = append(l.contents, c)
	}
	return nil
}

func (l *Loader) loadTeachingNotes(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// The topic id comes from the matching YAML file.
	yamlPath := strings.TrimSuffix(path, teachingSuffix) + ".yaml"
	yamlData, err := os.ReadFile(yamlPath)
	if err != nil {
		return nil // No matching YAML, skip
	}

	var partial struct {
		ID string `yaml:"id"`
	}
	if err := yaml.Unmarshal(yamlData, &partial); err != nil || partial.ID == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.topics[partial.ID]
	if !ok || t.Description != "" {
		return nil
	}
	t.Description = strings.TrimSpace(string(data))
	l.topics[t.ID] = t
	return nil
}

// AssessmentWriter stores assessments and practice banks.
type AssessmentWriter interface {
	PutAssessment(ctx context.Context, a assessment.Assessment) (assessment.Assessment, error)
	PutPracticeBank(ctx context.Context, b assessment.PracticeBank) (assessment.PracticeBank, error)
}

// SeedResult counts what Seed wrote.
type SeedResult struct {
	Topics        int `json:"topics"`
	Contents      int `json:"contents"`
	Assessments   int `json:"assessments"`
	PracticeBanks int `json:"practice_banks"`
}

// Seed writes the loaded curriculum into the stores. Topics are written in
// prerequisite order; a cyclic set is refused before anything is written.
func (l *Loader) Seed(ctx context.Context, topics Store, tests AssessmentWriter) (SeedResult, error) {
	g := l.Graph()
	if err := g.Validate(); err != nil {
		return SeedResult{}, err
	}
	order, err := g.TopoOrder()
	if err != nil {
		return SeedResult{}, err
	}

	var res SeedResult
	for _, id := range order {
		t, ok := l.GetTopic(id)
		if !ok {
			continue // dangling prerequisite
		}
		if _, err := topics.PutTopic(ctx, t); err != nil {
			return res, fmt.Errorf("seed topic %s: %w", id, err)
		}
		res.Topics++
	}
	for _, c := range l.Contents() {
		if _, err := topics.PutContent(ctx, c); err != nil {
			return res, fmt.Errorf("seed content %q: %w", c.Title, err)
		}
		res.Contents++
	}
	if tests == nil {
		return res, nil
	}
	for _, a := range l.Assessments() {
		if _, err := tests.PutAssessment(ctx, a); err != nil {
			return res, fmt.Errorf("seed assessment %s: %w", a.TopicID, err)
		}
		res.Assessments++
	}
	for _, b := range l.PracticeBanks() {
		if _, err := tests.PutPracticeBank(ctx, b); err != nil {
			return res, fmt.Errorf("seed practice bank %s: %w", b.TopicID, err)
		}
		res.PracticeBanks++
	}
	return res, nil
}
