package status

import (
	"sort"
	"time"

	"github.com/pathgen/page/internal/curriculum"
	"github.com/pathgen/page/internal/progress"
	"github.com/pathgen/page/internal/schedule"
)

// View is one student's slice of the portal, as fetched by the server or a
// client.
type View struct {
	Topics    []curriculum.Topic
	Contents  []curriculum.Content
	Student   progress.Student
	Overrides []schedule.Override
	// Recommended is the server-computed set. Nil selects the fallback rule.
	Recommended []string
}

// Entry is one resolved topic.
type Entry struct {
	TopicID        string     `json:"topic_id"`
	Name           string     `json:"name"`
	Cluster        string     `json:"cluster,omitempty"`
	Status         Status     `json:"status"`
	OpenAt         string     `json:"open_at,omitempty"`
	CloseAt        string     `json:"close_at,omitempty"`
	TempOpenUntil  *time.Time `json:"temp_open_until,omitempty"`
	Attempts       int        `json:"attempts"`
	ExtraAttempts  int        `json:"extraAttempts"`
	Prerequisites  []string   `json:"prerequisites"`
	MissingPrereqs []string   `json:"missing_prerequisites,omitempty"`
}

// Board is every topic of a view resolved and ordered for display.
type Board struct {
	Entries []Entry        `json:"entries"`
	Counts  map[Status]int `json:"counts"`
	Now     time.Time      `json:"now"`
}

var rank = map[Status]int{
	InProgress:    0,
	Recommended:   1,
	ExtraAttempt:  1,
	TemporaryOpen: 1,
	Upcoming:      2,
	Locked:        3,
	Closed:        4,
	Mastered:      5,
}

// Sets returns the derived in-progress, mastered and recommended sets of v.
func (v View) Sets() (inProgress, mastered, recommended Set) {
	mastered = NewSet(v.Student.Mastered...)
	inProgress = DeriveInProgress(v.Student.InProgress, mastered, v.Contents, v.Student.ContentSeen)
	if v.Recommended != nil {
		recommended = NewSet(v.Recommended...)
	} else {
		recommended = FallbackRecommended(v.Topics, mastered)
	}
	return inProgress, mastered, recommended
}

// Resolve returns the status of every topic keyed by id.
func (v View) Resolve(now time.Time) map[string]Status {
	board := BuildBoard(v, now)
	out := make(map[string]Status, len(board.Entries))
	for _, e := range board.Entries {
		out[e.TopicID] = e.Status
	}
	return out
}

// BuildBoard resolves all topics of v at now and sorts them by status group,
// then name.
func BuildBoard(v View, now time.Time) Board {
	inProgress, mastered, recommended := v.Sets()
	open := schedule.ActiveByTopic(v.Overrides, now)

	board := Board{
		Entries: make([]Entry, 0, len(v.Topics)),
		Counts:  make(map[Status]int),
		Now:     now,
	}
	for _, t := range v.Topics {
		tp := v.Student.Progress(t.ID)
		until := open[t.ID]
		st := Resolve(Input{
			Topic:         t,
			Progress:      tp,
			TempOpenUntil: until,
			InProgress:    inProgress[t.ID],
			Mastered:      mastered[t.ID],
			Recommended:   recommended[t.ID],
			Now:           now,
		})

		e := Entry{
			TopicID:       t.ID,
			Name:          t.Name,
			Cluster:       t.Cluster,
			Status:        st,
			OpenAt:        t.OpenAt,
			CloseAt:       t.CloseAt,
			Attempts:      tp.Attempts,
			ExtraAttempts: tp.ExtraAttempts,
			Prerequisites: append([]string{}, t.Prerequisites...),
		}
		if !until.IsZero() {
			e.TempOpenUntil = &until
		}
		for _, p := range t.Prerequisites {
			if !mastered[p] {
				e.MissingPrereqs = append(e.MissingPrereqs, p)
			}
		}
		board.Entries = append(board.Entries, e)
		board.Counts[st]++
	}

	sort.SliceStable(board.Entries, func(i, j int) bool {
		a, b := board.Entries[i], board.Entries[j]
		if rank[a.Status] != rank[b.Status] {
			return rank[a.Status] < rank[b.Status]
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.TopicID < b.TopicID
	})
	return board
}
