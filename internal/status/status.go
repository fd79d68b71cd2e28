// Package status derives the display status of a topic for a student.
//
// Resolution is an ordered rule table: the first rule that matches decides
// the status. All time comparisons use the canonical now passed in by the
// caller, so the server and a skew-corrected client agree.
package status

import (
	"time"

	"github.com/pathgen/page/internal/curriculum"
	"github.com/pathgen/page/internal/progress"
	"github.com/pathgen/page/internal/schedule"
)

// Status is a topic's display status.
type Status string

const (
	ExtraAttempt  Status = "ExtraAttempt"
	TemporaryOpen Status = "TemporaryOpen"
	InProgress    Status = "In Progress"
	Mastered      Status = "Mastered"
	Recommended   Status = "Recommended"
	Locked        Status = "Locked"
	Closed        Status = "Closed"
	Upcoming      Status = "Upcoming"
)

// Input is everything the resolver looks at for one topic.
type Input struct {
	Topic         curriculum.Topic
	Progress      progress.TopicProgress
	TempOpenUntil time.Time // zero when no override
	InProgress    bool
	Mastered      bool
	Recommended   bool
	Now           time.Time
}

// Rule maps a predicate to the status it yields.
type Rule struct {
	Status Status
	Match  func(Input) bool
}

// Rules is the resolution order.
var Rules = []Rule{
	{ExtraAttempt, func(in Input) bool { return in.Progress.ExtraAttempts > 0 }},
	{TemporaryOpen, func(in Input) bool { return !in.TempOpenUntil.IsZero() && in.Now.Before(in.TempOpenUntil) }},
	{InProgress, func(in Input) bool { return in.InProgress }},
	{Mastered, func(in Input) bool { return in.Mastered }},
	{Recommended, func(in Input) bool { return in.Recommended }},
	// Entry topics are always open to start.
	{Recommended, func(in Input) bool { return len(in.Topic.Prerequisites) == 0 }},
	{Locked, func(in Input) bool { return in.Topic.ManualLock || schedule.Before(in.Now, in.Topic.OpenAt) }},
	{Closed, func(in Input) bool { return schedule.Passed(in.Now, in.Topic.CloseAt) }},
}

// Resolve returns the status of one topic.
func Resolve(in Input) Status {
	for _, r := range Rules {
		if r.Match(in) {
			return r.Status
		}
	}
	return Upcoming
}
