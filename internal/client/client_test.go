package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/http/httputil"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathgen/page/internal/api"
	"github.com/pathgen/page/internal/assessment"
	"github.com/pathgen/page/internal/client"
	"github.com/pathgen/page/internal/curriculum"
	"github.com/pathgen/page/internal/portal"
	"github.com/pathgen/page/internal/progress"
	"github.com/pathgen/page/internal/schedule"
	"github.com/pathgen/page/internal/schema"
	"github.com/pathgen/page/internal/status"
)

func newServer(t *testing.T, now func() time.Time) (*httptest.Server, *portal.Service) {
	t.Helper()
	p := portal.New(portal.Config{Now: now})
	ctx := t.Context()
	for _, topic := range []curriculum.Topic{
		{ID: "place_val_dec", Name: "Place Value of Decimals"},
		{ID: "read_write_dec", Name: "Reading & Writing Decimals", Prerequisites: []string{"place_val_dec"}},
		{ID: "round_dec", Name: "Rounding Decimals", Prerequisites: []string{"read_write_dec"}},
	} {
		_, err := p.PutTopic(ctx, topic)
		require.NoError(t, err)
	}
	_, err := p.SaveContent(ctx, curriculum.Content{ID: "c1", TopicID: "round_dec", Link: "https://example.org/r"})
	require.NoError(t, err)
	_, err = p.Assessments().Store().PutAssessment(ctx, assessment.Assessment{
		TopicID:   "read_write_dec",
		Questions: []assessment.Question{{ID: "q1", Type: assessment.ShortAnswer, Answer: assessment.AnswerKey{"tenths"}}},
	})
	require.NoError(t, err)
	_, err = p.SaveStudent(ctx, progress.Student{ID: "s1", Name: "Ana"})
	require.NoError(t, err)
	_, err = p.MarkMastered(ctx, "s1", "place_val_dec")
	require.NoError(t, err)

	srv, err := api.New(api.Config{Portal: p})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts, p
}

func TestLoadViewAndBoard(t *testing.T) {
	ts, _ := newServer(t, nil)
	c, err := client.New(ts.URL)
	require.NoError(t, err)

	v, err := c.LoadView(t.Context(), "s1")
	require.NoError(t, err)
	assert.Len(t, v.Topics, 3)
	assert.Len(t, v.Contents, 1)
	assert.Equal(t, []string{"place_val_dec"}, v.Student.Mastered)
	assert.Equal(t, []string{"read_write_dec"}, v.Recommended)

	board, err := c.Board(t.Context(), "s1")
	require.NoError(t, err)
	got := map[string]status.Status{}
	for _, e := range board.Entries {
		got[e.TopicID] = e.Status
	}
	assert.Equal(t, map[string]status.Status{
		"place_val_dec":  status.Mastered,
		"read_write_dec": status.Recommended,
		"round_dec":      status.Upcoming,
	}, got)
}

func TestLoadViewFailsOnMissingStudent(t *testing.T) {
	ts, _ := newServer(t, nil)
	c, err := client.New(ts.URL)
	require.NoError(t, err)

	_, err = c.LoadView(t.Context(), "ghost")
	require.Error(t, err)
	assert.True(t, client.IsStatus(err, http.StatusNotFound), "err = %v", err)
}

// failingProxy forwards to upstream but answers 500 for the given paths.
func failingProxy(t *testing.T, upstream string, failing ...string) *httptest.Server {
	t.Helper()
	target, err := url.Parse(upstream)
	require.NoError(t, err)
	proxy := httputil.NewSingleHostReverseProxy(target)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, p := range failing {
			if r.URL.Path == p {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"error":"boom"}`))
				return
			}
		}
		proxy.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestBoardSurvivesMissingContentsAndOverrides(t *testing.T) {
	upstream, _ := newServer(t, nil)
	ts := failingProxy(t, upstream.URL, "/content", "/students/s1/overrides")
	c, err := client.New(ts.URL)
	require.NoError(t, err)

	v, err := c.LoadView(t.Context(), "s1")
	require.NoError(t, err)
	assert.Empty(t, v.Contents)
	assert.Empty(t, v.Overrides)

	board, err := c.Board(t.Context(), "s1")
	require.NoError(t, err)
	got := map[string]status.Status{}
	for _, e := range board.Entries {
		got[e.TopicID] = e.Status
	}
	assert.Equal(t, map[string]status.Status{
		"place_val_dec":  status.Mastered,
		"read_write_dec": status.Recommended,
		"round_dec":      status.Upcoming,
	}, got)
}

func TestLoadViewFailsWhenPathIsUnavailable(t *testing.T) {
	upstream, _ := newServer(t, nil)
	ts := failingProxy(t, upstream.URL, "/students/s1/path")
	c, err := client.New(ts.URL)
	require.NoError(t, err)

	_, err = c.LoadView(t.Context(), "s1")
	require.Error(t, err)
	assert.True(t, client.IsStatus(err, http.StatusInternalServerError), "err = %v", err)
}

func TestOverridesSyncClock(t *testing.T) {
	serverNow := time.Now().Add(time.Hour)
	ts, p := newServer(t, func() time.Time { return serverNow })
	_, err := p.OpenTopic(t.Context(), portal.OpenRequest{TopicID: "round_dec", StudentID: "s1", Days: 1})
	require.NoError(t, err)

	c, err := client.New(ts.URL)
	require.NoError(t, err)
	overrides, err := c.Overrides(t.Context(), "s1")
	require.NoError(t, err)

	require.Len(t, overrides, 1)
	assert.Equal(t, "round_dec", overrides[0].TopicID)
	assert.InDelta(t, time.Hour.Seconds(), c.Clock().Offset().Seconds(), 5)

	// The override is active on the server's clock.
	board, err := c.Board(t.Context(), "s1")
	require.NoError(t, err)
	for _, e := range board.Entries {
		if e.TopicID == "round_dec" {
			assert.Equal(t, status.TemporaryOpen, e.Status)
		}
	}
}

func TestOverridesSkipMalformedRecords(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"server_time_utc":"2025-03-01T00:00:00Z","overrides":[
			{"student_id":"s1","topic_id":"a","temp_open_until":"2025-03-02T00:00:00Z"},
			{"student_id":"s1","topic_id":"","temp_open_until":"2025-03-02T00:00:00Z"},
			{"student_id":"s1","topic_id":"b","temp_open_until":"next week"}
		]}`))
	}))
	defer ts.Close()

	c, err := client.New(ts.URL)
	require.NoError(t, err)
	overrides, err := c.Overrides(t.Context(), "s1")
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.Equal(t, "a", overrides[0].TopicID)
}

func TestResponsesAreSchemaChecked(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"mastered_ids":[]}`))
	}))
	defer ts.Close()

	c, err := client.New(ts.URL)
	require.NoError(t, err)
	_, err = c.Path(t.Context(), "s1")
	assert.ErrorIs(t, err, schema.ErrInvalid)
}

func TestSubmitThroughClient(t *testing.T) {
	ts, _ := newServer(t, nil)
	c, err := client.New(ts.URL)
	require.NoError(t, err)
	ctx := t.Context()

	start, err := c.StartAssessment(ctx, "s1", "read_write_dec")
	require.NoError(t, err)
	assert.Empty(t, start.Assessment.Questions[0].Answer)

	res, err := c.Submit(ctx, "s1", "read_write_dec", []assessment.Response{{QuestionID: "q1", Answer: assessment.AnswerKey{"TENTHS"}}})
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.True(t, res.Locked)

	gate, err := c.Gate(ctx, "s1", "read_write_dec")
	require.NoError(t, err)
	assert.Equal(t, assessment.PhasePassed, gate.Phase)

	_, err = c.StartAssessment(ctx, "s1", "read_write_dec")
	assert.True(t, client.IsStatus(err, http.StatusConflict), "err = %v", err)
}

type fakeLocal struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeLocal) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeLocal) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestWatchFlipsWhenServerTimePassesOpenAt(t *testing.T) {
	local := &fakeLocal{now: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}
	clock := schedule.NewClock(local.Now)
	clock.SetOffset(-5 * time.Second)
	c, err := client.New("http://unused.invalid", client.WithClock(clock))
	require.NoError(t, err)

	serverNow := clock.Now()
	v := status.View{
		Topics: []curriculum.Topic{
			{ID: "a", Name: "A"},
			{ID: "b", Name: "B", Prerequisites: []string{"a"}, OpenAt: serverNow.Add(3 * time.Second).Format(time.RFC3339)},
		},
		Student:     progress.NewStudent("s1", ""),
		Recommended: []string{},
	}

	ctx, cancel := context.WithCancel(t.Context())
	boards := make(chan status.Board, 4)
	done := make(chan error, 1)
	go func() {
		done <- c.Watch(ctx, v, 5*time.Millisecond, func(b status.Board) { boards <- b })
	}()

	statusOf := func(b status.Board, id string) status.Status {
		for _, e := range b.Entries {
			if e.TopicID == id {
				return e.Status
			}
		}
		return ""
	}

	first := <-boards
	assert.Equal(t, status.Locked, statusOf(first, "b"))

	// Local time moves past open_at but the skewed clock is still short of it.
	local.Advance(2 * time.Second)
	select {
	case b := <-boards:
		t.Fatalf("unexpected update: b = %s", statusOf(b, "b"))
	case <-time.After(50 * time.Millisecond):
	}

	local.Advance(time.Second)
	select {
	case b := <-boards:
		assert.Equal(t, status.Upcoming, statusOf(b, "b"))
	case <-time.After(2 * time.Second):
		t.Fatal("no update after open_at passed")
	}

	cancel()
	assert.True(t, errors.Is(<-done, context.Canceled))
}
