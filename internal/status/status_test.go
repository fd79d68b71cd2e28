package status_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathgen/page/internal/curriculum"
	"github.com/pathgen/page/internal/progress"
	"github.com/pathgen/page/internal/schedule"
	"github.com/pathgen/page/internal/status"
)

var now = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func stamp(t time.Time) string { return t.Format(time.RFC3339) }

func TestResolve_RuleOrder(t *testing.T) {
	future := stamp(now.Add(time.Hour))
	past := stamp(now.Add(-time.Hour))
	withPrereq := curriculum.Topic{ID: "t", Prerequisites: []string{"p"}}

	tests := []struct {
		name string
		in   status.Input
		want status.Status
	}{
		{"extra attempt first", status.Input{Topic: withPrereq, Progress: progress.TopicProgress{ExtraAttempts: 1}, Mastered: true}, status.ExtraAttempt},
		{"temporary open", status.Input{Topic: withPrereq, TempOpenUntil: now.Add(time.Minute), InProgress: true}, status.TemporaryOpen},
		{"expired override ignored", status.Input{Topic: withPrereq, TempOpenUntil: now}, status.Upcoming},
		{"in progress", status.Input{Topic: withPrereq, InProgress: true, Mastered: true}, status.InProgress},
		{"mastered", status.Input{Topic: withPrereq, Mastered: true, Recommended: true}, status.Mastered},
		{"recommended", status.Input{Topic: curriculum.Topic{ID: "t", Prerequisites: []string{"p"}, ManualLock: true}, Recommended: true}, status.Recommended},
		{"manual lock", status.Input{Topic: curriculum.Topic{ID: "t", Prerequisites: []string{"p"}, ManualLock: true}}, status.Locked},
		{"opens later", status.Input{Topic: curriculum.Topic{ID: "t", Prerequisites: []string{"p"}, OpenAt: future}}, status.Locked},
		{"closed", status.Input{Topic: curriculum.Topic{ID: "t", Prerequisites: []string{"p"}, CloseAt: past}}, status.Closed},
		{"open window", status.Input{Topic: curriculum.Topic{ID: "t", Prerequisites: []string{"p"}, OpenAt: past, CloseAt: future}}, status.Upcoming},
		{"bad timestamps are no constraint", status.Input{Topic: curriculum.Topic{ID: "t", Prerequisites: []string{"p"}, OpenAt: "soon", CloseAt: "later"}}, status.Upcoming},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.in.Now = now
			assert.Equal(t, tt.want, status.Resolve(tt.in))
		})
	}
}

func TestResolve_EntryTopicsAreRecommendedRegardlessOfSchedule(t *testing.T) {
	schedules := []curriculum.Topic{
		{ID: "a"},
		{ID: "b", ManualLock: true},
		{ID: "c", OpenAt: stamp(now.Add(24 * time.Hour))},
		{ID: "d", CloseAt: stamp(now.Add(-24 * time.Hour))},
		{ID: "e", ManualLock: true, OpenAt: stamp(now.Add(time.Hour)), CloseAt: stamp(now.Add(-time.Hour))},
	}
	for _, topic := range schedules {
		got := status.Resolve(status.Input{Topic: topic, Now: now})
		assert.Equal(t, status.Recommended, got, topic.ID)
	}
}

func TestResolve_TemporaryOpenBeatsSchedule(t *testing.T) {
	topics := []curriculum.Topic{
		{ID: "locked", Prerequisites: []string{"p"}, ManualLock: true},
		{ID: "future", Prerequisites: []string{"p"}, OpenAt: stamp(now.Add(48 * time.Hour))},
		{ID: "closed", Prerequisites: []string{"p"}, CloseAt: stamp(now.Add(-48 * time.Hour))},
	}
	for _, topic := range topics {
		in := status.Input{Topic: topic, TempOpenUntil: now.Add(time.Second), Now: now}
		assert.Equal(t, status.TemporaryOpen, status.Resolve(in), topic.ID)

		in.Now = now.Add(time.Second)
		assert.NotEqual(t, status.TemporaryOpen, status.Resolve(in), "%s after expiry", topic.ID)
	}
}

func TestResolve_ClockSkew(t *testing.T) {
	serverNow := now
	clientNow := serverNow.Add(5 * time.Second)
	local := clientNow
	clock := schedule.NewClock(func() time.Time { return local })
	require.Equal(t, -5*time.Second, clock.Sync(serverNow, clientNow))

	topic := curriculum.Topic{ID: "t", Prerequisites: []string{"p"}, OpenAt: stamp(serverNow.Add(3 * time.Second))}

	// The raw client clock is already past open_at, the canonical one is not.
	local = clientNow.Add(time.Second)
	assert.Equal(t, status.Locked, status.Resolve(status.Input{Topic: topic, Now: clock.Now()}))

	local = clientNow.Add(3 * time.Second)
	assert.Equal(t, status.Upcoming, status.Resolve(status.Input{Topic: topic, Now: clock.Now()}))
}

func TestResolve_ZonelessTimestampsAreManila(t *testing.T) {
	// 16:30 in Manila is 08:30 UTC.
	topic := curriculum.Topic{ID: "t", Prerequisites: []string{"p"}, OpenAt: "2025-03-01T16:30"}

	assert.Equal(t, status.Locked, status.Resolve(status.Input{Topic: topic, Now: now.Add(29 * time.Minute)}))
	assert.Equal(t, status.Upcoming, status.Resolve(status.Input{Topic: topic, Now: now.Add(30 * time.Minute)}))
}

func TestDeriveInProgress(t *testing.T) {
	contents := []curriculum.Content{
		{ID: "c1", TopicID: "decimals"},
		{ID: "c2", TopicID: "ratios"},
		{ID: "c3", TopicID: "fractions"},
	}
	got := status.DeriveInProgress([]string{"percent", "fractions"}, status.NewSet("fractions", "ratios"), contents, []string{"c1", "c2"})

	assert.Equal(t, []string{"decimals", "percent"}, got.Sorted())
}

func TestRecommendedSets(t *testing.T) {
	topics := []curriculum.Topic{
		{ID: "a"},
		{ID: "b", Prerequisites: []string{"a"}},
		{ID: "c", Prerequisites: []string{"a", "b"}},
		{ID: "d", Prerequisites: []string{"x"}},
	}
	mastered := status.NewSet("a")

	assert.Equal(t, []string{"b"}, status.ServerRecommended(topics, mastered).Sorted())
	assert.Equal(t, []string{"b"}, status.FallbackRecommended(topics, mastered).Sorted())
	assert.Equal(t, []string{"a"}, status.FallbackRecommended(topics, status.NewSet()).Sorted(),
		"fallback includes entry topics")
	assert.Empty(t, status.ServerRecommended(topics, status.NewSet()).Sorted())
}

func TestBuildBoard(t *testing.T) {
	until := now.Add(time.Hour)
	v := status.View{
		Topics: []curriculum.Topic{
			{ID: "decimals", Name: "Decimals"},
			{ID: "ratios", Name: "Ratios", Prerequisites: []string{"decimals"}},
			{ID: "percent", Name: "Percent", Prerequisites: []string{"ratios"}},
			{ID: "rates", Name: "Rates", Prerequisites: []string{"ratios"}, ManualLock: true},
			{ID: "algebra", Name: "Algebra", Prerequisites: []string{"percent"}, CloseAt: stamp(now.Add(-time.Hour))},
			{ID: "geometry", Name: "Geometry", Prerequisites: []string{"percent"}},
		},
		Contents: []curriculum.Content{{ID: "c1", TopicID: "ratios"}},
		Student: progress.Student{
			ID:          "s1",
			Mastered:    []string{"decimals"},
			ContentSeen: []string{"c1"},
		},
		Overrides: []schedule.Override{{StudentID: "s1", TopicID: "geometry", TempOpenUntil: &until}},
	}

	board := status.BuildBoard(v, now)
	got := make([]string, 0, len(board.Entries))
	for _, e := range board.Entries {
		got = append(got, e.TopicID+":"+string(e.Status))
	}
	assert.Equal(t, []string{
		"ratios:In Progress",
		"geometry:TemporaryOpen",
		"percent:Upcoming",
		"rates:Locked",
		"algebra:Closed",
		"decimals:Mastered",
	}, got)
	assert.Equal(t, 1, board.Counts[status.Mastered])

	geometry := board.Entries[1]
	require.NotNil(t, geometry.TempOpenUntil)
	assert.Equal(t, until, *geometry.TempOpenUntil)
	assert.Equal(t, []string{"percent"}, geometry.MissingPrereqs)

	// A server set replaces the fallback.
	v.Student.ContentSeen = nil
	v.Recommended = []string{}
	statuses := v.Resolve(now)
	assert.Equal(t, status.Upcoming, statuses["ratios"])
	v.Recommended = nil
	assert.Equal(t, status.Recommended, v.Resolve(now)["ratios"])
}
