package status

import (
	"sort"

	"github.com/pathgen/page/internal/curriculum"
)

// Set is a set of topic ids.
type Set map[string]bool

// NewSet builds a set from ids.
func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		if id != "" {
			s[id] = true
		}
	}
	return s
}

// Sorted returns the members in order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// DeriveInProgress is the stored in-progress list plus every unmastered topic
// the student has seen some content of.
func DeriveInProgress(stored []string, mastered Set, contents []curriculum.Content, seen []string) Set {
	out := NewSet(stored...)
	seenSet := NewSet(seen...)
	for _, c := range contents {
		if seenSet[c.ID] && !mastered[c.TopicID] {
			out[c.TopicID] = true
		}
	}
	for id := range mastered {
		delete(out, id)
	}
	return out
}

// ServerRecommended returns topics that have at least one prerequisite, all
// of them mastered, and are not mastered themselves.
func ServerRecommended(topics []curriculum.Topic, mastered Set) Set {
	out := Set{}
	for _, t := range topics {
		if mastered[t.ID] || len(t.Prerequisites) == 0 {
			continue
		}
		if allMastered(t.Prerequisites, mastered) {
			out[t.ID] = true
		}
	}
	return out
}

// FallbackRecommended returns unmastered topics whose prerequisites are all
// mastered. It is used when no server recommendation is available.
func FallbackRecommended(topics []curriculum.Topic, mastered Set) Set {
	out := Set{}
	for _, t := range topics {
		if !mastered[t.ID] && allMastered(t.Prerequisites, mastered) {
			out[t.ID] = true
		}
	}
	return out
}

func allMastered(ids []string, mastered Set) bool {
	for _, id := range ids {
		if !mastered[id] {
			return false
		}
	}
	return true
}
